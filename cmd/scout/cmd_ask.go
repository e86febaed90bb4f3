package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"sqlscout/internal/batch"
	"sqlscout/internal/config"
	"sqlscout/internal/executor"
	"sqlscout/internal/llm"
	"sqlscout/internal/results"
	"sqlscout/internal/session"
	"sqlscout/internal/store"
)

var (
	askDB       string
	askEvidence string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a single question against one database",
	Long: `Runs one dialog session and prints the full exchange, then the final
predicted SQL. Useful for poking at a database or debugging the prompts.

Example:
  scout ask --dataset spider-dev --db concert_singer "How many singers do we have?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askDB, "db", "", "Database id (required)")
	askCmd.Flags().StringVar(&askEvidence, "evidence", "", "Extra evidence appended to the question")
	askCmd.Flags().StringVar(&runModel, "model", "", "Chat model (default from config)")
	askCmd.MarkFlagRequired("db")
}

var (
	roleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107")).Bold(true)
	sqlStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")).Bold(true)
)

func runAsk(cmd *cobra.Command, args []string) error {
	ds, err := datasetConfig()
	if err != nil {
		return err
	}
	model := runModel
	if model == "" {
		model = cfg.LLM.Model
	}
	question := strings.Join(args, " ")

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

	sqlitePath, err := batch.FindDatabase(ds.DatabaseDirs, askDB)
	if err != nil {
		return err
	}

	toolDesc, err := session.LoadToolDesc(ds.PromptDir)
	if err != nil {
		return err
	}
	demos, err := session.LoadDemos(ds.PromptDir)
	if err != nil {
		return err
	}
	md, err := markdownFor(ds, askDB)
	if err != nil {
		return err
	}

	client := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Timeout: config.ParseDuration(cfg.LLM.Timeout, 2*time.Minute),
	})
	exec, err := executor.New(executor.Options{
		DB:            askDB,
		SQLitePath:    sqlitePath,
		Engine:        engine,
		Catalog:       catalog,
		Values:        values,
		Graphs:        graphs,
		Guards:        ds.Guards,
		SearchTimeout: config.ParseDuration(ds.SearchTimeout, 60*time.Second),
		SQLTimeout:    config.ParseDuration(ds.SQLTimeout, 100*time.Second),
	})
	if err != nil {
		return err
	}
	ctrl := &session.Controller{
		Client:      client,
		Exec:        exec,
		Model:       model,
		MaxRounds:   cfg.Batch.MaxRounds,
		Samples:     cfg.LLM.Samples,
		Temperature: cfg.LLM.Temperature,
		TopP:        cfg.LLM.TopP,
		MaxTokens:   cfg.LLM.MaxTokens,
	}

	task := session.Task{ID: "ask", DB: askDB, Question: question, Evidence: askEvidence}
	system := session.BuildSystem(toolDesc, demos)
	start := session.StartText(askDB, md, question, askEvidence)

	rec, err := ctrl.Run(cmd.Context(), task, system, start)
	if err != nil {
		return err
	}

	for _, m := range rec.Dialog[2:] {
		label := "User"
		if m.Role == "assistant" {
			label = "LLM"
		}
		fmt.Printf("%s %s\n", roleStyle.Render(label+":"), m.Content)
	}
	fmt.Printf("\n%s %s\n", sqlStyle.Render("SQL:"), results.ExtractFinalSQL(rec.Dialog))
	return nil
}

// markdownFor reads the generated schema summary for db.
func markdownFor(ds config.DatasetConfig, db string) (string, error) {
	data, err := readSchemaSummary(ds.SchemaDir, db)
	if err != nil {
		return "", fmt.Errorf("missing schema summary for %s, run `scout index` first: %w", db, err)
	}
	return data, nil
}
