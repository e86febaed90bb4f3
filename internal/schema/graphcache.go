package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"sqlscout/internal/logging"
)

// graphSnapshot is the on-disk form of a join graph.
type graphSnapshot struct {
	Nodes []string    `json:"nodes"`
	Edges []graphEdge `json:"edges"`
}

// GraphCache memoizes join graphs per database, backed by JSON snapshots
// so repeated runs skip introspection. Safe for concurrent sessions.
type GraphCache struct {
	dir       string
	mu        sync.Mutex
	graphs    map[string]*Graph
	buildPath func(db string) (*Graph, error)
}

// NewGraphCache creates a cache rooted at dir. build constructs a graph
// from scratch on a cold miss.
func NewGraphCache(dir string, build func(db string) (*Graph, error)) (*GraphCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create graph cache dir: %w", err)
	}
	return &GraphCache{dir: dir, graphs: map[string]*Graph{}, buildPath: build}, nil
}

// Get returns the join graph of db, loading the snapshot or building and
// persisting it on a cold miss.
func (c *GraphCache) Get(db string) (*Graph, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if g, ok := c.graphs[db]; ok {
		return g, nil
	}
	if g, err := c.load(db); err == nil {
		c.graphs[db] = g
		return g, nil
	}
	return c.rebuildLocked(db)
}

// Rebuild discards any cached graph for db and constructs it fresh.
func (c *GraphCache) Rebuild(db string) (*Graph, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rebuildLocked(db)
}

func (c *GraphCache) rebuildLocked(db string) (*Graph, error) {
	g, err := c.buildPath(db)
	if err != nil {
		return nil, err
	}
	if err := c.store(db, g); err != nil {
		logging.Graph("Failed to persist graph snapshot for %s: %v", db, err)
	}
	c.graphs[db] = g
	return g, nil
}

func (c *GraphCache) snapshotPath(db string) string {
	return filepath.Join(c.dir, db+".json")
}

func (c *GraphCache) load(db string) (*Graph, error) {
	data, err := os.ReadFile(c.snapshotPath(db))
	if err != nil {
		return nil, err
	}
	var snap graphSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("corrupt graph snapshot for %s: %w", db, err)
	}
	g := NewGraph()
	for _, n := range snap.Nodes {
		g.AddNode(n)
	}
	for _, e := range snap.Edges {
		g.AddEdge(e.A, e.B, e.Label)
	}
	return g, nil
}

// store writes the snapshot through a temp file and rename so concurrent
// readers never see a partial file.
func (c *GraphCache) store(db string, g *Graph) error {
	nodes := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	data, err := json.MarshalIndent(graphSnapshot{Nodes: nodes, Edges: g.edges}, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(c.dir, db+"-*.tmp")
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
	return os.Rename(tmp.Name(), c.snapshotPath(db))
}
