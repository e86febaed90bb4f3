// Command scout is the interactive text-to-SQL driver: it indexes the
// databases of a dataset, runs dialog sessions over its questions, and
// assembles the final predictions.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"sqlscout/internal/config"
	"sqlscout/internal/logging"
)

var (
	// Global flags
	configPath string
	dataset    string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "scout",
	Short: "sqlscout - interactive text-to-SQL over relational databases",
	Long: `sqlscout answers natural language questions against SQLite databases by
letting a language model explore the schema through tools: column search,
value search, join-path finding and guarded SQL execution.

Typical flow:
  scout index --dataset spider      # build catalog, value index and schemas
  scout run --dataset spider-dev    # run sessions over the question set
  scout results --dataset spider-dev # extract final SQL predictions`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.DebugMode = true
			cfg.Logging.Level = "debug"
		}

		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		return logging.Initialize(cfg.Workspace, logging.Options{
			DebugMode:  cfg.Logging.DebugMode,
			Level:      cfg.Logging.Level,
			Categories: cfg.Logging.Categories,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (YAML)")
	rootCmd.PersistentFlags().StringVarP(&dataset, "dataset", "d", "", "Dataset name from the config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(askCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// datasetConfig resolves the --dataset flag against the config.
func datasetConfig() (config.DatasetConfig, error) {
	if dataset == "" {
		return config.DatasetConfig{}, fmt.Errorf("--dataset is required")
	}
	return cfg.Dataset(dataset)
}

func readSchemaSummary(dir, db string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, db+".md"))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
