package schema

import (
	"database/sql"
	"fmt"
	"strings"

	"sqlscout/internal/logging"
)

// Graph is the join graph of one database. Nodes are table names and
// qualified column names ("table.column"). A column connects to its table;
// a foreign key connects the two tables it joins. Edge labels carry the
// text a path renders to.
type Graph struct {
	nodes map[string]struct{}
	// adjacency preserves edge insertion order so path search is
	// deterministic.
	neighbors map[string][]string
	labels    map[[2]string]string
	// edges in insertion order, kept for snapshotting.
	edges []graphEdge
}

type graphEdge struct {
	A     string `json:"a"`
	B     string `json:"b"`
	Label string `json:"label"`
}

// NewGraph returns an empty join graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:     map[string]struct{}{},
		neighbors: map[string][]string{},
		labels:    map[[2]string]string{},
	}
}

// BuildGraph introspects db and constructs its join graph.
func BuildGraph(db *sql.DB) (*Graph, error) {
	g := NewGraph()

	tables, err := Tables(db)
	if err != nil {
		return nil, err
	}
	for _, table := range tables {
		g.AddNode(table)
	}
	for _, table := range tables {
		cols, err := Columns(db, table)
		if err != nil {
			return nil, err
		}
		for _, col := range cols {
			node := table + "." + col.Name
			g.AddNode(node)
			g.AddEdge(table, node, "Col: "+node)
		}

		fks, err := ForeignKeys(db, table)
		if err != nil {
			return nil, err
		}
		for _, fk := range fks {
			label := fmt.Sprintf("FK: %s.%s = %s.%s", table, fk.From, fk.RefTable, fk.To)
			g.AddEdge(table, fk.RefTable, label)
		}
	}
	logging.Graph("Built join graph: %d nodes", len(g.nodes))
	return g, nil
}

// AddNode registers a node if not already present.
func (g *Graph) AddNode(name string) {
	g.nodes[name] = struct{}{}
}

// AddEdge connects a and b with a labeled undirected edge. A later edge
// between the same pair replaces the label, mirroring how parallel foreign
// keys collapse in path rendering.
func (g *Graph) AddEdge(a, b, label string) {
	g.AddNode(a)
	g.AddNode(b)
	if _, dup := g.labels[[2]string{a, b}]; !dup {
		g.neighbors[a] = append(g.neighbors[a], b)
		g.neighbors[b] = append(g.neighbors[b], a)
	}
	g.labels[[2]string{a, b}] = label
	g.labels[[2]string{b, a}] = label
	g.edges = append(g.edges, graphEdge{A: a, B: b, Label: label})
}

// HasNode reports whether name is a node of the graph.
func (g *Graph) HasNode(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// ShortestPath finds a minimum-hop path between start and end and renders
// it as the labels of its edges joined with " <-> ", with the label kind
// prefixes stripped. Missing nodes and unreachable pairs render as error
// text rather than failing, since the result goes back to the model as an
// observation.
func (g *Graph) ShortestPath(db, start, end string) string {
	if !g.HasNode(start) {
		return fmt.Sprintf("Error. Node %s not found in %s.", start, db)
	}
	if !g.HasNode(end) {
		return fmt.Sprintf("Error. Node %s not found in %s.", end, db)
	}

	path := g.bfs(start, end)
	if path == nil {
		return fmt.Sprintf("Error. No path between %s and %s.", start, end)
	}

	edges := make([]string, 0, len(path)-1)
	for i := 0; i+1 < len(path); i++ {
		edges = append(edges, g.labels[[2]string{path[i], path[i+1]}])
	}
	res := strings.Join(edges, " <-> ")
	res = strings.ReplaceAll(res, "Col: ", "")
	res = strings.ReplaceAll(res, "FK: ", "")
	return res
}

func (g *Graph) bfs(start, end string) []string {
	if start == end {
		return []string{start}
	}
	parent := map[string]string{start: start}
	queue := []string{start}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range g.neighbors[node] {
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = node
			if next == end {
				var path []string
				for cur := end; cur != start; cur = parent[cur] {
					path = append(path, cur)
				}
				path = append(path, start)
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path
			}
			queue = append(queue, next)
		}
	}
	return nil
}
