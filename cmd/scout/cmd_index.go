package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sqlscout/internal/batch"
	"sqlscout/internal/embedding"
	"sqlscout/internal/logging"
	"sqlscout/internal/schema"
	"sqlscout/internal/store"
)

var indexForce bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Profile dataset databases and build the search indexes",
	Long: `Walks every database of the dataset and builds what the session tools
need: column statistics and embeddings for SearchColumn, a full-text index
of cell values for SearchValue, schema graphs for FindShortestPath, and the
markdown schema summaries the dialog prompts embed.

Already indexed databases are skipped unless --force is given.`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexForce, "force", false, "Re-index databases that are already indexed")
}

const embedBatchSize = 500

func runIndex(cmd *cobra.Command, args []string) error {
	ds, err := datasetConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

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

	if err := os.MkdirAll(ds.SchemaDir, 0o755); err != nil {
		return err
	}

	dbs, err := listDatabases(ds.DatabaseDirs)
	if err != nil {
		return err
	}
	logger.Info("Indexing databases", zap.String("dataset", dataset), zap.Int("count", len(dbs)))
	logging.Boot("Indexing %d databases for dataset %s", len(dbs), dataset)

	for _, db := range dbs {
		indexed, err := catalog.HasDatabase(db)
		if err != nil {
			return err
		}
		if indexed && !indexForce {
			continue
		}
		if err := indexDatabase(ctx, ds.DatabaseDirs, db, engine, catalog, values, ds.SchemaDir); err != nil {
			return fmt.Errorf("failed to index %s: %w", db, err)
		}
		fmt.Printf("indexed %s\n", db)
	}
	return nil
}

func indexDatabase(ctx context.Context, dirs []string, db string, engine embedding.Engine, catalog *store.CatalogStore, values *store.ValueIndex, schemaDir string) error {
	timer := logging.StartTimer(logging.CategoryStore, "index "+db)
	defer timer.Stop()

	path, err := batch.FindDatabase(dirs, db)
	if err != nil {
		return err
	}
	conn, err := schema.Open(path)
	if err != nil {
		return err
	}
	defer conn.Close()

	tables, err := schema.Tables(conn)
	if err != nil {
		return err
	}

	var records []store.ColumnRecord
	textFields := 0
	for _, table := range tables {
		cols, err := schema.Columns(conn, table)
		if err != nil {
			return err
		}
		for _, col := range cols {
			profile, err := schema.ProfileColumn(conn, table, col)
			if err != nil {
				return err
			}
			records = append(records, store.ColumnRecord{
				DB:         db,
				Table:      table,
				Column:     col.Name,
				Type:       col.Type,
				Statistics: profile.Statistics,
			})
			if !profile.TextField {
				continue
			}
			textFields++
			vals, err := schema.TextValues(conn, table, col.Name)
			if err != nil {
				return err
			}
			if err := values.InsertValues(db, table, col.Name, vals); err != nil {
				return err
			}
		}
	}
	if err := catalog.InsertColumns(records); err != nil {
		return err
	}
	if err := values.MarkIndexed(db, textFields); err != nil {
		return err
	}

	if err := embedColumns(ctx, engine, catalog, records); err != nil {
		return err
	}

	md, err := schema.MarkdownSummary(conn)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(schemaDir, db+".md"), []byte(md), 0o644); err != nil {
		return err
	}

	logging.Store("Indexed %s: %d columns, %d text fields", db, len(records), textFields)
	return nil
}

// embedColumns vectorizes "a column named X in Y." descriptions in batches.
func embedColumns(ctx context.Context, engine embedding.Engine, catalog *store.CatalogStore, records []store.ColumnRecord) error {
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = columnEmbeddingText(r.Table, r.Column)
	}
	for start := 0; start < len(records); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(records) {
			end = len(records)
		}
		vecs, err := engine.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return err
		}
		for i, vec := range vecs {
			r := records[start+i]
			if err := catalog.PutVector(r.DB, r.Table, r.Column, vec); err != nil {
				return err
			}
		}
	}
	return nil
}

func columnEmbeddingText(table, column string) string {
	col := strings.ToLower(strings.ReplaceAll(column, "_", " "))
	tbl := strings.ToLower(strings.ReplaceAll(table, "_", " "))
	return fmt.Sprintf("a column named %s in %s.", col, tbl)
}

// listDatabases scans the database directories for <db>/<db>.sqlite layouts
// and flat <db>.sqlite files.
func listDatabases(dirs []string) ([]string, error) {
	seen := map[string]struct{}{}
	var dbs []string
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		dbs = append(dbs, name)
	}

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to read database dir: %w", err)
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() {
				if _, err := batch.FindDatabase([]string{dir}, name); err == nil {
					add(name)
				}
				continue
			}
			for _, ext := range []string{".sqlite", ".db"} {
				if strings.HasSuffix(name, ext) {
					add(strings.TrimSuffix(name, ext))
				}
			}
		}
	}
	sort.Strings(dbs)
	return dbs, nil
}

// buildEngine creates the configured embedding engine, wrapped in the
// persistent cache when one is configured.
func buildEngine() (embedding.Engine, func(), error) {
	engine, err := embedding.NewEngine(embedding.Config{
		Provider:   cfg.Embedding.Provider,
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		TaskType:   cfg.Embedding.TaskType,
		Dimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		return nil, nil, err
	}
	if cfg.Embedding.CachePath == "" {
		return engine, func() {}, nil
	}
	cached, err := embedding.NewCachedEngine(engine, cfg.Embedding.CachePath)
	if err != nil {
		return nil, nil, err
	}
	return cached, func() { cached.Close() }, nil
}
