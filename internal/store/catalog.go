// Package store holds the on-disk search indexes: the column catalog with
// its embedding vectors and the full-text index over cell values. Both live
// in SQLite so an indexed dataset is a pair of ordinary files.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"sqlscout/internal/embedding"
	"sqlscout/internal/logging"
)

// ColumnRecord is one catalog entry: a column of one database together
// with the profile text shown to the model.
type ColumnRecord struct {
	DB          string
	Table       string
	Column      string
	Type        string
	Statistics  string
	Description string
}

// ColumnHit pairs a catalog entry with its cosine distance to the query.
type ColumnHit struct {
	ColumnRecord
	Distance float64
}

// CatalogStore persists column records and their embedding vectors.
type CatalogStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	path      string
	vectorExt bool
}

// NewCatalogStore opens (creating if needed) the catalog database at path.
func NewCatalogStore(path string) (*CatalogStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewCatalogStore")
	defer timer.Stop()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}

	s := &CatalogStore{db: db, path: path}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}

	// Probe for the sqlite-vec extension. Without it vector search runs a
	// brute-force cosine scan, which is fine at schema-catalog sizes.
	var version string
	if err := db.QueryRow("SELECT vec_version()").Scan(&version); err == nil {
		s.vectorExt = true
		logging.Store("Catalog vector extension available: %s", version)
	} else {
		logging.StoreDebug("sqlite-vec not available, using brute-force search: %v", err)
	}

	logging.Store("Catalog opened at %s", path)
	return s, nil
}

func (s *CatalogStore) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS columns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		db_id TEXT NOT NULL,
		tbl TEXT NOT NULL,
		col TEXT NOT NULL,
		col_type TEXT NOT NULL DEFAULT '',
		statistics TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		UNIQUE(db_id, tbl, col)
	);
	CREATE INDEX IF NOT EXISTS idx_columns_db ON columns(db_id);
	CREATE TABLE IF NOT EXISTS column_vectors (
		column_id INTEGER PRIMARY KEY REFERENCES columns(id) ON DELETE CASCADE,
		vec TEXT NOT NULL
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create catalog schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *CatalogStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// HasDatabase reports whether any columns are registered for db.
func (s *CatalogStore) HasDatabase(db string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM columns WHERE db_id = ?", db).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to count columns: %w", err)
	}
	return n > 0, nil
}

// RegisteredDatabases lists all database ids present in the catalog.
func (s *CatalogStore) RegisteredDatabases() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query("SELECT DISTINCT db_id FROM columns ORDER BY db_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// InsertColumns registers column records, replacing existing entries with
// the same (db, table, column) identity.
func (s *CatalogStore) InsertColumns(records []ColumnRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO columns
		(db_id, tbl, col, col_type, statistics, description)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(r.DB, r.Table, r.Column, r.Type, r.Statistics, r.Description); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert column %s.%s: %w", r.Table, r.Column, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit columns: %w", err)
	}
	logging.StoreDebug("Inserted %d column records", len(records))
	return nil
}

// PutVector attaches an embedding vector to a registered column.
func (s *CatalogStore) PutVector(db, table, column string, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	err := s.db.QueryRow(
		"SELECT id FROM columns WHERE db_id = ? AND tbl = ? AND col = ?",
		db, table, column,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return fmt.Errorf("column %s.%s.%s not registered", db, table, column)
	}
	if err != nil {
		return fmt.Errorf("failed to look up column: %w", err)
	}

	encoded, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("failed to encode vector: %w", err)
	}
	if _, err := s.db.Exec(
		"INSERT OR REPLACE INTO column_vectors (column_id, vec) VALUES (?, ?)",
		id, string(encoded),
	); err != nil {
		return fmt.Errorf("failed to store vector: %w", err)
	}
	return nil
}

// SearchColumns returns the k catalog entries of db nearest to the query
// vector by cosine distance, nearest first.
func (s *CatalogStore) SearchColumns(ctx context.Context, db string, query []float32, k int) ([]ColumnHit, error) {
	timer := logging.StartTimer(logging.CategoryStore, "SearchColumns")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.vectorExt {
		return s.searchColumnsVec(ctx, db, query, k)
	}
	return s.searchColumnsBrute(ctx, db, query, k)
}

// searchColumnsVec pushes the distance computation into sqlite-vec. Vectors
// are stored as JSON arrays, which vec_distance_cosine accepts directly.
func (s *CatalogStore) searchColumnsVec(ctx context.Context, db string, query []float32, k int) ([]ColumnHit, error) {
	encoded, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query vector: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.db_id, c.tbl, c.col, c.col_type, c.statistics, c.description,
		       vec_distance_cosine(v.vec, ?) AS dist
		FROM columns c
		JOIN column_vectors v ON v.column_id = c.id
		WHERE c.db_id = ?
		ORDER BY dist
		LIMIT ?`, string(encoded), db, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()
	return scanHits(rows)
}

func (s *CatalogStore) searchColumnsBrute(ctx context.Context, db string, query []float32, k int) ([]ColumnHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.db_id, c.tbl, c.col, c.col_type, c.statistics, c.description, v.vec
		FROM columns c
		JOIN column_vectors v ON v.column_id = c.id
		WHERE c.db_id = ?`, db)
	if err != nil {
		return nil, fmt.Errorf("failed to scan vectors: %w", err)
	}
	defer rows.Close()

	var hits []ColumnHit
	for rows.Next() {
		var hit ColumnHit
		var encoded string
		if err := rows.Scan(&hit.DB, &hit.Table, &hit.Column, &hit.Type, &hit.Statistics, &hit.Description, &encoded); err != nil {
			return nil, err
		}
		var vec []float32
		if err := json.Unmarshal([]byte(encoded), &vec); err != nil {
			return nil, fmt.Errorf("corrupt vector for %s.%s: %w", hit.Table, hit.Column, err)
		}
		dist, err := embedding.CosineDistance(query, vec)
		if err != nil {
			return nil, fmt.Errorf("distance for %s.%s: %w", hit.Table, hit.Column, err)
		}
		hit.Distance = dist
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func scanHits(rows *sql.Rows) ([]ColumnHit, error) {
	var hits []ColumnHit
	for rows.Next() {
		var hit ColumnHit
		if err := rows.Scan(&hit.DB, &hit.Table, &hit.Column, &hit.Type, &hit.Statistics, &hit.Description, &hit.Distance); err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}
