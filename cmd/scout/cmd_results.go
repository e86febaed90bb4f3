package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"sqlscout/internal/batch"
	"sqlscout/internal/results"
)

var (
	resultsFormat string
	resultsOut    string
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Extract final SQL predictions from saved dialogs",
	Long: `Reads the saved session records of a run and writes the predicted SQL
in the order of the dataset's question list.

Formats:
  spider  one rewritten SQL per line
  bird    JSON object {"0": "sql\t----- bird -----\tdb", ...}`,
	RunE: runResults,
}

func init() {
	resultsCmd.Flags().StringVar(&runModel, "model", "", "Chat model (default from config)")
	resultsCmd.Flags().StringVar(&runNote, "note", "v1", "Run tag, part of the save directory")
	resultsCmd.Flags().BoolVar(&runWithEvidence, "with-evidence", false, "Read the with-evidence run")
	resultsCmd.Flags().StringVar(&resultsFormat, "format", "spider", "Output format: spider or bird")
	resultsCmd.Flags().StringVarP(&resultsOut, "out", "o", "", "Output file (required)")
	resultsCmd.MarkFlagRequired("out")
}

func runResults(cmd *cobra.Command, args []string) error {
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
	questions := make([]string, len(tasks))
	for i, t := range tasks {
		questions[i] = t.Question
	}

	preds, err := results.Collect(saveDir(model))
	if err != nil {
		return err
	}

	var payload []byte
	switch resultsFormat {
	case "spider":
		lines, err := results.SpiderLines(questions, preds)
		if err != nil {
			return err
		}
		payload = []byte(strings.Join(lines, "\n"))
	case "bird":
		entries, err := results.BirdEntries(questions, preds)
		if err != nil {
			return err
		}
		payload, err = json.MarshalIndent(entries, "", "    ")
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown format %q, use spider or bird", resultsFormat)
	}

	if err := os.MkdirAll(filepath.Dir(resultsOut), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(resultsOut, payload, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %d predictions to %s\n", len(questions), resultsOut)
	return nil
}
