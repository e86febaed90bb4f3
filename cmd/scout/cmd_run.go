package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sqlscout/internal/batch"
	"sqlscout/internal/config"
	"sqlscout/internal/llm"
	"sqlscout/internal/schema"
	"sqlscout/internal/session"
	"sqlscout/internal/store"
)

var (
	runModel        string
	runNote         string
	runWithEvidence bool
	runLimit        int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run dialog sessions over the dataset questions",
	Long: `Runs one dialog session per question with a bounded worker pool.
Finished sessions are persisted as JSON records under the save directory;
interrupted runs resume from the records already on disk.`,
	RunE: runBatch,
}

func init() {
	runCmd.Flags().StringVar(&runModel, "model", "", "Chat model (default from config)")
	runCmd.Flags().StringVar(&runNote, "note", "v1", "Run tag, part of the save directory")
	runCmd.Flags().BoolVar(&runWithEvidence, "with-evidence", false, "Include dataset evidence; drops questions without any")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "Only run the first N questions (0 = all)")
}

// saveDir is <base>/<dataset[-with_evidence]>/<model>/<note>.
func saveDir(model string) string {
	ds := dataset
	if runWithEvidence {
		ds += "-with_evidence"
	}
	return filepath.Join(cfg.Batch.SaveDir, ds, model, runNote)
}

func runBatch(cmd *cobra.Command, args []string) error {
	ds, err := datasetConfig()
	if err != nil {
		return err
	}
	model := runModel
	if model == "" {
		model = cfg.LLM.Model
	}

	tasks, err := batch.LoadTasks(ds.DataPath, runWithEvidence)
	if err != nil {
		return err
	}
	if runLimit > 0 && runLimit < len(tasks) {
		tasks = tasks[:runLimit]
	}
	logger.Info("Loaded questions",
		zap.String("dataset", dataset),
		zap.String("model", model),
		zap.Int("count", len(tasks)))

	engine, closeEngine, err := buildEngine()
	if err != nil {
		return err
	}
	defer closeEngine()

	catalog, err := store.NewCatalogStore(ds.IndexPath)
	if err != nil {
		return err
	}
	defer catalog.Close()
	values, err := store.NewValueIndex(ds.IndexPath)
	if err != nil {
		return err
	}
	defer values.Close()

	graphs, err := openGraphCache(ds)
	if err != nil {
		return err
	}

	st, err := session.NewStore(saveDir(model))
	if err != nil {
		return err
	}

	client := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Timeout: config.ParseDuration(cfg.LLM.Timeout, 2*time.Minute),
	})

	llmCfg := cfg.LLM
	llmCfg.Model = model
	runner, err := batch.NewRunner(batch.Options{
		Client:         client,
		Engine:         engine,
		Catalog:        catalog,
		Values:         values,
		Graphs:         graphs,
		Store:          st,
		Dataset:        ds,
		LLM:            llmCfg,
		Workers:        cfg.Batch.Workers,
		MaxRounds:      cfg.Batch.MaxRounds,
		SessionTimeout: config.ParseDuration(cfg.Batch.SessionTimeout, 5*time.Minute),
	})
	if err != nil {
		return err
	}

	sum, err := runner.Run(cmd.Context(), tasks)
	if err != nil {
		return err
	}
	logger.Info("Batch finished",
		zap.String("run_id", sum.RunID),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Int("skipped", sum.Skipped))
	fmt.Printf("run %s: %d tasks, %d ok, %d failed, %d skipped\n",
		sum.RunID, sum.Total, sum.Succeeded, sum.Failed, sum.Skipped)
	if sum.Failed > 0 {
		return fmt.Errorf("%d sessions failed, re-run to retry them", sum.Failed)
	}
	return nil
}

// openGraphCache builds schema graphs on demand and snapshots them under
// the workspace cache.
func openGraphCache(ds config.DatasetConfig) (*schema.GraphCache, error) {
	scoutDir, err := cfg.ScoutDir()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(scoutDir, "cache", "graph", dataset)
	return schema.NewGraphCache(dir, func(db string) (*schema.Graph, error) {
		path, err := batch.FindDatabase(ds.DatabaseDirs, db)
		if err != nil {
			return nil, err
		}
		conn, err := schema.Open(path)
		if err != nil {
			return nil, err
		}
		defer conn.Close()
		return schema.BuildGraph(conn)
	})
}
