package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"sqlscout/internal/logging"
)

// ValueHit is one full-text match over indexed cell values.
type ValueHit struct {
	Contents string
	DB       string
	Table    string
	Column   string
	Score    float64
}

// lookupFetchSize is how many ranked hits a query pulls before the caller
// filters by table and column.
const lookupFetchSize = 50

// ValueIndex is a full-text index over the distinct values of text columns.
type ValueIndex struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// NewValueIndex opens (creating if needed) the value index at path.
func NewValueIndex(path string) (*ValueIndex, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open value index: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}

	schema := `
	CREATE VIRTUAL TABLE IF NOT EXISTS cell_values USING fts5(
		contents, db_id UNINDEXED, tbl UNINDEXED, col UNINDEXED
	);
	CREATE TABLE IF NOT EXISTS indexed_databases (
		db_id TEXT PRIMARY KEY,
		text_fields INTEGER NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create value index schema: %w", err)
	}

	logging.Store("Value index opened at %s", path)
	return &ValueIndex{db: db, path: path}, nil
}

// Close releases the underlying database handle.
func (v *ValueIndex) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.db.Close()
}

// InsertValues indexes the distinct values of one text column.
func (v *ValueIndex) InsertValues(db, table, column string, values []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	tx, err := v.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.Prepare("INSERT INTO cell_values (contents, db_id, tbl, col) VALUES (?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, val := range values {
		if _, err := stmt.Exec(val, db, table, column); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to index value in %s.%s: %w", table, column, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit values: %w", err)
	}
	logging.StoreDebug("Indexed %d values for %s.%s.%s", len(values), db, table, column)
	return nil
}

// MarkIndexed records that db has been processed and how many text fields
// it contributed. Zero means the database has no searchable text columns.
func (v *ValueIndex) MarkIndexed(db string, textFields int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, err := v.db.Exec(
		"INSERT OR REPLACE INTO indexed_databases (db_id, text_fields) VALUES (?, ?)",
		db, textFields,
	); err != nil {
		return fmt.Errorf("failed to mark database indexed: %w", err)
	}
	return nil
}

// HasTextFields reports whether db was indexed and whether it has any text
// columns worth searching.
func (v *ValueIndex) HasTextFields(db string) (indexed, hasText bool, err error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var fields int
	err = v.db.QueryRow("SELECT text_fields FROM indexed_databases WHERE db_id = ?", db).Scan(&fields)
	if err == sql.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to query indexed databases: %w", err)
	}
	return true, fields > 0, nil
}

// Lookup runs a ranked full-text query over the values of db. It returns
// up to lookupFetchSize hits ordered best match first; the caller narrows
// by table and column afterwards.
func (v *ValueIndex) Lookup(ctx context.Context, db, query string) ([]ValueHit, error) {
	timer := logging.StartTimer(logging.CategoryStore, "ValueLookup")
	defer timer.Stop()

	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	rows, err := v.db.QueryContext(ctx, `
		SELECT contents, db_id, tbl, col, bm25(cell_values) AS score
		FROM cell_values
		WHERE cell_values MATCH ? AND db_id = ?
		ORDER BY score
		LIMIT ?`, match, db, lookupFetchSize)
	if err != nil {
		return nil, fmt.Errorf("full-text lookup failed: %w", err)
	}
	defer rows.Close()

	var hits []ValueHit
	for rows.Next() {
		var hit ValueHit
		if err := rows.Scan(&hit.Contents, &hit.DB, &hit.Table, &hit.Column, &hit.Score); err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// ftsQuery turns free text into an FTS5 query: each token quoted so user
// punctuation cannot be read as query syntax, tokens joined with OR to
// match the loosest token.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		terms = append(terms, `"`+f+`"`)
	}
	return strings.Join(terms, " OR ")
}
