package schema

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// MarkdownSummary renders the per-database schema table given to the model
// at dialog start. Row counts are included because empty tables are a real
// hazard in these datasets.
func MarkdownSummary(db *sql.DB) (string, error) {
	tables, err := Tables(db)
	if err != nil {
		return "", err
	}
	sort.Strings(tables)

	var b strings.Builder
	b.WriteString("| Table | Primary Key | Foreign Key | Row Count |\n")
	b.WriteString("| --- | --- | --- | --- |\n")

	for _, table := range tables {
		pks, err := PrimaryKeys(db, table)
		if err != nil {
			return "", err
		}
		fks, err := ForeignKeys(db, table)
		if err != nil {
			return "", err
		}
		count, err := RowCount(db, table)
		if err != nil {
			return "", err
		}

		fkParts := make([]string, 0, len(fks))
		for _, fk := range fks {
			fkParts = append(fkParts, fmt.Sprintf("%s references %s(%s)", fk.From, fk.RefTable, fk.To))
		}

		fmt.Fprintf(&b, "| %s | %s | %s | %d |\n",
			table, strings.Join(pks, ", "), strings.Join(fkParts, ", "), count)
	}
	return b.String(), nil
}
