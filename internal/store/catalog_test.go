package store

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestCatalog(t *testing.T) *CatalogStore {
	t.Helper()
	s, err := NewCatalogStore(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("NewCatalogStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCatalogInsertAndList(t *testing.T) {
	s := newTestCatalog(t)

	records := []ColumnRecord{
		{DB: "concert_singer", Table: "singer", Column: "name", Type: "text"},
		{DB: "concert_singer", Table: "singer", Column: "age", Type: "number"},
		{DB: "pets_1", Table: "pets", Column: "pet_age", Type: "number"},
	}
	if err := s.InsertColumns(records); err != nil {
		t.Fatalf("InsertColumns: %v", err)
	}

	ok, err := s.HasDatabase("concert_singer")
	if err != nil || !ok {
		t.Fatalf("HasDatabase(concert_singer) = %v, %v; want true", ok, err)
	}
	ok, err = s.HasDatabase("unknown_db")
	if err != nil || ok {
		t.Fatalf("HasDatabase(unknown_db) = %v, %v; want false", ok, err)
	}

	dbs, err := s.RegisteredDatabases()
	if err != nil {
		t.Fatalf("RegisteredDatabases: %v", err)
	}
	if len(dbs) != 2 || dbs[0] != "concert_singer" || dbs[1] != "pets_1" {
		t.Errorf("RegisteredDatabases = %v", dbs)
	}
}

func TestCatalogInsertReplacesExisting(t *testing.T) {
	s := newTestCatalog(t)

	first := []ColumnRecord{{DB: "d", Table: "t", Column: "c", Statistics: "old"}}
	second := []ColumnRecord{{DB: "d", Table: "t", Column: "c", Statistics: "new"}}
	if err := s.InsertColumns(first); err != nil {
		t.Fatalf("InsertColumns: %v", err)
	}
	if err := s.InsertColumns(second); err != nil {
		t.Fatalf("InsertColumns: %v", err)
	}

	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM columns").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("column count = %d, want 1", n)
	}
}

func TestCatalogSearchOrdersByDistance(t *testing.T) {
	s := newTestCatalog(t)

	records := []ColumnRecord{
		{DB: "d", Table: "singer", Column: "age"},
		{DB: "d", Table: "singer", Column: "name"},
		{DB: "d", Table: "stadium", Column: "capacity"},
	}
	if err := s.InsertColumns(records); err != nil {
		t.Fatalf("InsertColumns: %v", err)
	}

	// Orthogonal-ish vectors with known distances to the query {1, 0, 0}.
	vectors := map[string][]float32{
		"age":      {1, 0, 0},
		"name":     {0.9, 0.1, 0},
		"capacity": {0, 1, 0},
	}
	for _, r := range records {
		if err := s.PutVector(r.DB, r.Table, r.Column, vectors[r.Column]); err != nil {
			t.Fatalf("PutVector(%s): %v", r.Column, err)
		}
	}

	hits, err := s.SearchColumns(context.Background(), "d", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("SearchColumns: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].Column != "age" || hits[1].Column != "name" {
		t.Errorf("hit order = %s, %s; want age, name", hits[0].Column, hits[1].Column)
	}
	if hits[0].Distance > 1e-6 {
		t.Errorf("exact match distance = %f, want ~0", hits[0].Distance)
	}
	if hits[0].Distance >= hits[1].Distance {
		t.Errorf("distances not increasing: %f >= %f", hits[0].Distance, hits[1].Distance)
	}
}

func TestCatalogSearchScopedToDatabase(t *testing.T) {
	s := newTestCatalog(t)

	records := []ColumnRecord{
		{DB: "a", Table: "t", Column: "x"},
		{DB: "b", Table: "t", Column: "y"},
	}
	if err := s.InsertColumns(records); err != nil {
		t.Fatalf("InsertColumns: %v", err)
	}
	for _, r := range records {
		if err := s.PutVector(r.DB, r.Table, r.Column, []float32{1, 0}); err != nil {
			t.Fatalf("PutVector: %v", err)
		}
	}

	hits, err := s.SearchColumns(context.Background(), "a", []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("SearchColumns: %v", err)
	}
	if len(hits) != 1 || hits[0].Column != "x" {
		t.Errorf("hits = %+v, want only column x from db a", hits)
	}
}

func TestCatalogPutVectorUnknownColumn(t *testing.T) {
	s := newTestCatalog(t)
	if err := s.PutVector("d", "t", "ghost", []float32{1}); err == nil {
		t.Fatal("expected error for unregistered column")
	}
}
