package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"sqlscout/internal/logging"
	"sqlscout/internal/session"
)

// BirdSeparator joins the predicted SQL with its database id in the layout
// the BIRD evaluator consumes.
const BirdSeparator = "\t----- bird -----\t"

// Prediction is one extracted answer.
type Prediction struct {
	ID       string
	Question string
	DB       string
	SQL      string
}

// Collect loads every record under dir and extracts its final SQL, keyed by
// question. Unreadable files are skipped with a log entry.
func Collect(dir string) (map[string]Prediction, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no records found under %s", dir)
	}

	preds := make(map[string]Prediction, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		var rec session.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			logging.Results("Skipping unreadable record %s: %v", p, err)
			continue
		}
		preds[rec.Question] = Prediction{
			ID:       rec.ID,
			Question: rec.Question,
			DB:       rec.DB,
			SQL:      ExtractFinalSQL(rec.Dialog),
		}
	}
	logging.Results("Collected %d predictions from %s", len(preds), dir)
	return preds, nil
}

// SpiderLines orders predictions by the dataset's question list and applies
// the evaluator rewrites, one SQL per line.
func SpiderLines(questions []string, preds map[string]Prediction) ([]string, error) {
	lines := make([]string, 0, len(questions))
	for _, q := range questions {
		pred, ok := preds[q]
		if !ok {
			return nil, fmt.Errorf("no prediction for question %q", q)
		}
		lines = append(lines, strings.ReplaceAll(PostProcess(pred.SQL), "\n", " "))
	}
	return lines, nil
}

// BirdEntries maps question list positions to "sql<sep>db" strings.
func BirdEntries(questions []string, preds map[string]Prediction) (map[string]string, error) {
	entries := make(map[string]string, len(questions))
	for i, q := range questions {
		pred, ok := preds[q]
		if !ok {
			return nil, fmt.Errorf("no prediction for question %q", q)
		}
		entries[strconv.Itoa(i)] = pred.SQL + BirdSeparator + pred.DB
	}
	return entries, nil
}
