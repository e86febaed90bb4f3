package executor

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sqlscout/internal/action"
	"sqlscout/internal/config"
	"sqlscout/internal/schema"
	"sqlscout/internal/store"
)

// stubEngine returns canned vectors keyed by exact text.
type stubEngine struct {
	vecs map[string][]float32
}

func (s *stubEngine) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := s.vecs[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func (s *stubEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEngine) Dimensions() int { return 3 }
func (s *stubEngine) Name() string    { return "stub" }

const testDB = "concert_singer"

func buildFixture(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, testDB+".sqlite")
	db, err := sql.Open(store.DriverName, path)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE stadium (stadium_id INTEGER PRIMARY KEY, name TEXT, capacity INTEGER)`,
		`CREATE TABLE singer (singer_id INTEGER PRIMARY KEY, name TEXT, age INTEGER)`,
		`CREATE TABLE concert (
			concert_id INTEGER PRIMARY KEY,
			stadium_id INTEGER,
			year INTEGER,
			FOREIGN KEY (stadium_id) REFERENCES stadium(stadium_id)
		)`,
		`INSERT INTO stadium VALUES (1, 'Stark Arena', 20000), (2, 'Letzigrund', 26000)`,
		`INSERT INTO singer VALUES (1, 'John', 32), (2, 'Rose', 41), (3, 'Ama', 25), (4, 'Rose', 41), (5, 'Zed', 19)`,
		`INSERT INTO concert VALUES (1, 1, 2014), (2, 2, 2015)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("fixture stmt: %v\n%s", err, s)
		}
	}
	return path
}

func newTestExecutor(t *testing.T, guards config.GuardConfig) *Executor {
	t.Helper()
	dir := t.TempDir()
	sqlitePath := buildFixture(t, dir)

	catalog, err := store.NewCatalogStore(filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatalf("NewCatalogStore: %v", err)
	}
	t.Cleanup(func() { catalog.Close() })

	records := []store.ColumnRecord{
		{DB: testDB, Table: "singer", Column: "age", Type: "INTEGER", Statistics: "min: 19, max: 41. distinct count: 4"},
		{DB: testDB, Table: "singer", Column: "name", Type: "TEXT", Statistics: "{'John': 1, 'Rose': 2, 'Ama': 1, 'Zed': 1}"},
		{DB: testDB, Table: "concert", Column: "age", Type: "INTEGER"},
		{DB: testDB, Table: "stadium", Column: "capacity", Type: "INTEGER"},
	}
	if err := catalog.InsertColumns(records); err != nil {
		t.Fatalf("InsertColumns: %v", err)
	}
	vectors := map[string][]float32{
		"singer.age":       {0, 1, 0},
		"singer.name":      {0.8, 0.2, 0},
		"concert.age":      {0, 0.9, 0.1},
		"stadium.capacity": {0, 0, 1},
	}
	for _, r := range records {
		if err := catalog.PutVector(r.DB, r.Table, r.Column, vectors[r.Table+"."+r.Column]); err != nil {
			t.Fatalf("PutVector: %v", err)
		}
	}

	values, err := store.NewValueIndex(filepath.Join(dir, "values.db"))
	if err != nil {
		t.Fatalf("NewValueIndex: %v", err)
	}
	t.Cleanup(func() { values.Close() })
	if err := values.InsertValues(testDB, "singer", "name", []string{"John", "Rose", "Ama", "Zed"}); err != nil {
		t.Fatalf("InsertValues: %v", err)
	}
	if err := values.InsertValues(testDB, "stadium", "name", []string{"Stark Arena", "Letzigrund"}); err != nil {
		t.Fatalf("InsertValues: %v", err)
	}
	if err := values.MarkIndexed(testDB, 2); err != nil {
		t.Fatalf("MarkIndexed: %v", err)
	}

	graphs, err := schema.NewGraphCache(filepath.Join(dir, "graphs"), func(string) (*schema.Graph, error) {
		db, err := schema.Open(sqlitePath)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		return schema.BuildGraph(db)
	})
	if err != nil {
		t.Fatalf("NewGraphCache: %v", err)
	}

	engine := &stubEngine{vecs: map[string][]float32{
		"a column about age.":      {0, 1, 0},
		"a column about capacity.": {0, 0, 1},
	}}

	e, err := New(Options{
		DB:         testDB,
		SQLitePath: sqlitePath,
		Engine:     engine,
		Catalog:    catalog,
		Values:     values,
		Graphs:     graphs,
		Guards:     guards,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestNewRejectsUnindexedDatabase(t *testing.T) {
	dir := t.TempDir()
	catalog, err := store.NewCatalogStore(filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatalf("NewCatalogStore: %v", err)
	}
	t.Cleanup(func() { catalog.Close() })

	_, err = New(Options{DB: "never_indexed", Catalog: catalog})
	if err == nil || !strings.Contains(err.Error(), "not indexed") {
		t.Errorf("New = %v, want unindexed error", err)
	}
}

func dispatch(t *testing.T, e *Executor, expr string) string {
	t.Helper()
	call, perr := action.ParseCall(expr)
	if perr != nil {
		t.Fatalf("ParseCall(%q): %v", expr, perr)
	}
	obs, err := e.Dispatch(context.Background(), call)
	if err != nil {
		t.Fatalf("Dispatch(%q): %v", expr, err)
	}
	return obs
}

func spiderGuards() config.GuardConfig {
	return config.GuardConfig{
		DisallowLeftJoin:   true,
		DisallowTableAlias: true,
		DisallowInClause:   true,
		DisallowIDEquality: true,
	}
}

// =============================================================================
// SEARCH COLUMN
// =============================================================================

func TestSearchColumnRanksByDistance(t *testing.T) {
	e := newTestExecutor(t, config.GuardConfig{})
	obs := dispatch(t, e, `SearchColumn("capacity", topk=1)`)

	if !strings.HasPrefix(obs, "[{'column': 'capacity', 'format': 'INTEGER', 'table': 'stadium'}") {
		t.Errorf("obs = %q", obs)
	}
}

func TestSearchColumnExactNameTieInflation(t *testing.T) {
	e := newTestExecutor(t, config.GuardConfig{})

	// Both singer.age and concert.age force distance zero on an exact name
	// match, so topk=1 inflates to keep both.
	obs := dispatch(t, e, `SearchColumn("age", topk=1)`)
	if got := strings.Count(obs, "'column': 'age'"); got != 2 {
		t.Errorf("want 2 age entries, got %d in %q", got, obs)
	}
	if strings.Contains(obs, "'column': 'capacity'") {
		t.Errorf("capacity should not appear: %q", obs)
	}
}

func TestSearchColumnHistogramStatistics(t *testing.T) {
	e := newTestExecutor(t, config.GuardConfig{})
	obs := dispatch(t, e, `SearchColumn("age", topk=5)`)

	if !strings.Contains(obs, "'statistics': 'min: 19, max: 41. distinct count: 4'") {
		t.Errorf("range statistics missing: %q", obs)
	}
	if !strings.Contains(obs, `'statistics': "categorical field. ['John', 'Rose', 'Ama', 'Zed']"`) {
		t.Errorf("categorical statistics missing: %q", obs)
	}
}

func TestSearchColumnMultiQuery(t *testing.T) {
	e := newTestExecutor(t, config.GuardConfig{})
	obs := dispatch(t, e, `SearchColumn(["age", "capacity"], topk=1)`)

	if !strings.HasPrefix(obs, "{'age': [") || !strings.Contains(obs, "'capacity': [") {
		t.Errorf("multi-query result should be keyed by query: %q", obs)
	}
}

// =============================================================================
// SEARCH VALUE
// =============================================================================

func TestSearchValueFindsRow(t *testing.T) {
	e := newTestExecutor(t, config.GuardConfig{})
	obs := dispatch(t, e, `SearchValue("John")`)

	if !strings.Contains(obs, "{'contents': 'John', 'table': 'singer', 'column': 'name'}") {
		t.Errorf("obs = %q", obs)
	}
}

func TestSearchValueTableFilter(t *testing.T) {
	e := newTestExecutor(t, config.GuardConfig{})

	obs := dispatch(t, e, `SearchValue("Stark Arena", table="stadium", column="name")`)
	if !strings.Contains(obs, "'contents': 'Stark Arena'") {
		t.Errorf("obs = %q", obs)
	}
	if strings.Contains(obs, "'table': 'singer'") {
		t.Errorf("singer rows should be filtered out: %q", obs)
	}
}

func TestSearchValueArityMismatch(t *testing.T) {
	e := newTestExecutor(t, config.GuardConfig{})
	obs := dispatch(t, e, `SearchValue(["John", "Rose"], table=["singer"])`)
	if obs != "Error. Length of query, table, column should be the same." {
		t.Errorf("obs = %q", obs)
	}
}

func TestSearchValueNoTextFields(t *testing.T) {
	e := newTestExecutor(t, config.GuardConfig{})
	if err := e.opts.Values.MarkIndexed(testDB, 0); err != nil {
		t.Fatalf("MarkIndexed: %v", err)
	}
	obs := dispatch(t, e, `SearchValue("John")`)
	if obs != "Error. Tables in db `concert_singer` do not have text field." {
		t.Errorf("obs = %q", obs)
	}
}

// =============================================================================
// FIND SHORTEST PATH
// =============================================================================

func TestFindShortestPathSinglePair(t *testing.T) {
	e := newTestExecutor(t, config.GuardConfig{})
	obs := dispatch(t, e, `FindShortestPath("concert.year", "stadium.name")`)
	want := "concert.year <-> concert.stadium_id = stadium.stadium_id <-> stadium.name"
	if obs != want {
		t.Errorf("obs = %q, want %q", obs, want)
	}
}

func TestFindShortestPathCrossProduct(t *testing.T) {
	e := newTestExecutor(t, config.GuardConfig{})
	obs := dispatch(t, e, `FindShortestPath("concert", ["stadium", "stadium.name"])`)

	if !strings.HasPrefix(obs, "[('concert', 'stadium', ") {
		t.Errorf("obs = %q", obs)
	}
	if !strings.Contains(obs, "('concert', 'stadium.name', ") {
		t.Errorf("missing second pair: %q", obs)
	}
}

func TestFindShortestPathMissingNode(t *testing.T) {
	e := newTestExecutor(t, config.GuardConfig{})
	obs := dispatch(t, e, `FindShortestPath("ghost", "stadium")`)
	if obs != "Error. Node ghost not found in concert_singer." {
		t.Errorf("obs = %q", obs)
	}
}

// =============================================================================
// EXECUTE SQL
// =============================================================================

func TestExecuteSQLScalar(t *testing.T) {
	e := newTestExecutor(t, config.GuardConfig{})
	e.DisableHint()
	obs := dispatch(t, e, `ExecuteSQL("SELECT count(*) FROM singer")`)
	if obs != "[(5,)]" {
		t.Errorf("obs = %q", obs)
	}
}

func TestExecuteSQLDedupesAndSorts(t *testing.T) {
	e := newTestExecutor(t, config.GuardConfig{})
	e.DisableHint()
	obs := dispatch(t, e, `ExecuteSQL("SELECT age FROM singer")`)
	if obs != "[(19,), (25,), (32,), (41,)]" {
		t.Errorf("obs = %q", obs)
	}
}

func TestExecuteSQLTruncatesLongResults(t *testing.T) {
	e := newTestExecutor(t, config.GuardConfig{})
	e.DisableHint()
	obs := dispatch(t, e, `ExecuteSQL("SELECT singer.singer_id, stadium.name, concert.year FROM singer JOIN stadium JOIN concert")`)
	if len(obs) != 203 || !strings.HasSuffix(obs, "...") {
		t.Errorf("len = %d, obs = %q", len(obs), obs)
	}
}

func TestExecuteSQLColumnOrderHintOnce(t *testing.T) {
	e := newTestExecutor(t, config.GuardConfig{})

	obs := dispatch(t, e, `ExecuteSQL("SELECT count(*) FROM singer")`)
	if !strings.Contains(obs, HintMarker) {
		t.Errorf("first aggregate result should carry the hint: %q", obs)
	}

	e.DisableHint()
	obs = dispatch(t, e, `ExecuteSQL("SELECT count(*) FROM singer")`)
	if strings.Contains(obs, HintMarker) {
		t.Errorf("hint should not repeat: %q", obs)
	}
}

func TestExecuteSQLNoHintOnSingleColumn(t *testing.T) {
	e := newTestExecutor(t, config.GuardConfig{})
	obs := dispatch(t, e, `ExecuteSQL("SELECT name FROM singer WHERE age = 32")`)
	if strings.Contains(obs, HintMarker) {
		t.Errorf("single plain column should not hint: %q", obs)
	}
	if obs != "[('John',)]" {
		t.Errorf("obs = %q", obs)
	}
}

func TestExecuteSQLGuards(t *testing.T) {
	e := newTestExecutor(t, spiderGuards())

	cases := []struct {
		sql  string
		want string
	}{
		{"SELECT name FROM singer LEFT JOIN concert ON 1=1", "Error. Do not support 'left join'."},
		{"SELECT name FROM singer WHERE age IN (32, 41)", "Error. Do not support 'where ... in (...)' syntax, please use 'OR' instead."},
		{"SELECT year FROM concert WHERE stadium_id = 2", "Error. Do not use '_id = ' in where clause, please write the full condition."},
	}
	for _, c := range cases {
		call := &action.Call{Kind: action.KindExecuteSQL, SQL: c.sql, StrMode: true}
		obs, err := e.Dispatch(context.Background(), call)
		if err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
		if obs != c.want {
			t.Errorf("sql %q: obs = %q, want %q", c.sql, obs, c.want)
		}
	}
}

func TestExecuteSQLAliasGuardFiresOnce(t *testing.T) {
	e := newTestExecutor(t, spiderGuards())

	sql := "SELECT s.name FROM singer s WHERE s.age = 32"
	call := &action.Call{Kind: action.KindExecuteSQL, SQL: sql, StrMode: true}
	obs, err := e.Dispatch(context.Background(), call)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if obs != "Error. Do not use table alias, please write the full table name." {
		t.Errorf("obs = %q", obs)
	}

	// Second time through, the latch has released and the query runs.
	obs, err = e.Dispatch(context.Background(), call)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if strings.HasPrefix(obs, "Error. Do not use table alias") {
		t.Errorf("alias guard fired twice: %q", obs)
	}
}

func TestExecuteSQLBadQueryBecomesObservation(t *testing.T) {
	e := newTestExecutor(t, config.GuardConfig{})
	obs := dispatch(t, e, `ExecuteSQL("SELECT nope FROM missing_table")`)
	if !strings.Contains(obs, "missing_table") {
		t.Errorf("obs = %q", obs)
	}
}

func TestExecuteSQLStripsWrappingQuotes(t *testing.T) {
	e := newTestExecutor(t, config.GuardConfig{})
	e.DisableHint()
	call := &action.Call{Kind: action.KindExecuteSQL, SQL: `"SELECT count(*) FROM singer"`, StrMode: true}
	obs, err := e.Dispatch(context.Background(), call)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if obs != "[(5,)]" {
		t.Errorf("obs = %q", obs)
	}
}

// =============================================================================
// TIMEOUTS
// =============================================================================

func TestWithTimeoutExpires(t *testing.T) {
	e, err := New(Options{DB: "d"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = e.withTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) (string, error) {
		select {
		case <-time.After(time.Second):
			return "late", nil
		case <-ctx.Done():
			// Keep waiting past cancellation like a blocked driver call.
			time.Sleep(50 * time.Millisecond)
			return "late", nil
		}
	})
	if !errors.Is(err, ErrCapabilityTimeout) {
		t.Errorf("err = %v, want ErrCapabilityTimeout", err)
	}
}

func TestWithTimeoutPropagatesParentCancel(t *testing.T) {
	e, err := New(Options{DB: "d"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.withTimeout(ctx, time.Minute, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		return "", nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
