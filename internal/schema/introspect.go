// Package schema reads dataset sqlite files: table and column listing,
// per-column statistics profiling, the schema summary table shown to the
// model, and the join graph behind shortest-path search.
package schema

import (
	"database/sql"
	"fmt"
	"strings"

	"sqlscout/internal/store"
)

// Column is one entry of PRAGMA table_info.
type Column struct {
	Index      int
	Name       string
	Type       string
	NotNull    bool
	PrimaryKey bool
}

// ForeignKey is one entry of PRAGMA foreign_key_list: From in this table
// references To in RefTable.
type ForeignKey struct {
	RefTable string
	From     string
	To       string
}

// Open opens a dataset sqlite file read-only.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open(store.DriverName, "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Tables lists user tables, excluding sqlite internals.
func Tables(db *sql.DB) ([]string, error) {
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='table'")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if strings.EqualFold(name, "sqlite_sequence") {
			continue
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// Columns lists the columns of table in declaration order.
func Columns(db *sql.DB, table string) ([]Column, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(`%s`)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to read table_info for %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			c       Column
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&c.Index, &c.Name, &c.Type, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		c.NotNull = notNull != 0
		c.PrimaryKey = pk != 0
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// PrimaryKeys lists the primary key column names of table.
func PrimaryKeys(db *sql.DB, table string) ([]string, error) {
	cols, err := Columns(db, table)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, c := range cols {
		if c.PrimaryKey {
			keys = append(keys, c.Name)
		}
	}
	return keys, nil
}

// ForeignKeys lists the foreign keys declared on table.
func ForeignKeys(db *sql.DB, table string) ([]ForeignKey, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA foreign_key_list(`%s`)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign_key_list for %s: %w", table, err)
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var (
			id, seq            int
			fk                 ForeignKey
			to                 sql.NullString
			onUpdate, onDelete string
			match              string
		)
		if err := rows.Scan(&id, &seq, &fk.RefTable, &fk.From, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, err
		}
		// A NULL "to" means the reference targets the primary key.
		fk.To = to.String
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

// RowCount counts the rows of table.
func RowCount(db *sql.DB, table string) (int64, error) {
	var n int64
	if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM `%s`", table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows of %s: %w", table, err)
	}
	return n, nil
}

// IsTextType reports whether a declared column type holds searchable text.
func IsTextType(colType string) bool {
	colType = strings.ToLower(colType)
	for _, kw := range []string{"varchar", "text", "char"} {
		if strings.Contains(colType, kw) {
			return true
		}
	}
	return false
}
