// Package batch fans a dataset of questions out over a bounded worker pool,
// one dialog session per question, resuming past completed ids.
package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"sqlscout/internal/logging"
	"sqlscout/internal/session"
)

// flexID accepts either a string or a number, since some dataset files carry
// numeric ids.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type rawTask struct {
	ID         flexID  `json:"id"`
	QuestionID *flexID `json:"question_id"`
	DB         string  `json:"db_id"`
	Question   string  `json:"question"`
	Evidence   string  `json:"evidence"`
}

// LoadTasks reads a dataset file. Entries without an id get one synthesized
// from the database and question id. When withEvidence is set, entries with
// empty evidence are dropped; they belong to the no-evidence run.
func LoadTasks(path string, withEvidence bool) ([]session.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	var raws []rawTask
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("failed to decode dataset %s: %w", path, err)
	}

	tasks := make([]session.Task, 0, len(raws))
	for i, r := range raws {
		id := string(r.ID)
		if id == "" && r.QuestionID != nil {
			id = fmt.Sprintf("%s-%s", r.DB, string(*r.QuestionID))
		}
		if id == "" {
			return nil, fmt.Errorf("dataset entry %d has no id or question_id", i)
		}
		if r.DB == "" || r.Question == "" {
			return nil, fmt.Errorf("dataset entry %s is missing db_id or question", id)
		}
		if withEvidence && r.Evidence == "" {
			continue
		}
		tasks = append(tasks, session.Task{
			ID:       id,
			DB:       r.DB,
			Question: r.Question,
			Evidence: r.Evidence,
		})
	}
	logging.Batch("Loaded %d tasks from %s", len(tasks), path)
	return tasks, nil
}

// FindDatabase locates the sqlite file for db under the configured database
// directories.
func FindDatabase(dirs []string, db string) (string, error) {
	for _, dir := range dirs {
		candidates := []string{
			filepath.Join(dir, db, db+".sqlite"),
			filepath.Join(dir, db, db+".db"),
			filepath.Join(dir, db+".sqlite"),
			filepath.Join(dir, db+".db"),
		}
		for _, p := range candidates {
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("database %s not found under %v", db, dirs)
}
