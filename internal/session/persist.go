package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"sqlscout/internal/logging"
)

// Store persists one Record per task as <dir>/<id>.json. Completed ids are
// how interrupted batch runs resume where they left off.
type Store struct {
	dir string
}

// NewStore creates the save directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create save dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the file a record with the given id persists to.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Has reports whether a record for id exists.
func (s *Store) Has(id string) bool {
	_, err := os.Stat(s.Path(id))
	return err == nil
}

// Save writes rec through a temp file and rename, so a crash mid-write
// never leaves a half-record that would be skipped on resume.
func (s *Store) Save(rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
	}
	tmp, err := os.CreateTemp(s.dir, rec.ID+"-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.Path(rec.ID)); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	logging.Session("Saved record %s", rec.ID)
	return nil
}

// Delete removes the record for id if present.
func (s *Store) Delete(id string) error {
	err := os.Remove(s.Path(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Load reads the record for id.
func (s *Store) Load(id string) (*Record, error) {
	data, err := os.ReadFile(s.Path(id))
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("corrupt record %s: %w", id, err)
	}
	return &rec, nil
}

// CompletedIDs scans the save directory and returns the ids of all
// persisted records. The id field inside each file is authoritative, not
// the filename.
func (s *Store) CompletedIDs() (map[string]struct{}, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		var partial struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(data, &partial); err != nil {
			logging.Session("Skipping unreadable record %s: %v", p, err)
			continue
		}
		if partial.ID != "" {
			ids[partial.ID] = struct{}{}
		}
	}
	return ids, nil
}
