package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"sqlscout/internal/action"
	"sqlscout/internal/config"
	"sqlscout/internal/embedding"
	"sqlscout/internal/logging"
	"sqlscout/internal/pyfmt"
	"sqlscout/internal/schema"
	"sqlscout/internal/store"
)

// ErrCapabilityTimeout reports that a capability ran past its deadline.
// The dialog controller treats it as fatal for the session.
var ErrCapabilityTimeout = errors.New("capability timed out")

// HintMarker identifies the column-order hint in an observation. The
// controller disables further hints once one has been delivered.
const HintMarker = "(Hint: DOUBLE-CHECK the columns"

const columnHint = " (Hint: DOUBLE-CHECK the columns in the SELECT clause, do not select irrelevant columns, and the order of the columns must strictly match the requirements of the question. Re-call ExecuteSQL function if necessary.)"

// minColumnFetch is the floor on catalog hits fetched per query before the
// topk cut, so zero-distance ties can inflate past a small topk.
const minColumnFetch = 10

// Options wires an Executor to the indexes of one database.
type Options struct {
	DB         string
	SQLitePath string
	Engine     embedding.Engine
	Catalog    *store.CatalogStore
	Values     *store.ValueIndex
	Graphs     *schema.GraphCache
	Guards     config.GuardConfig

	SearchTimeout time.Duration
	SQLTimeout    time.Duration
}

// Executor runs parsed actions against one database. Safe for use by a
// single session; the hint and alias-guard latches are per-session state.
type Executor struct {
	opts Options

	mu         sync.Mutex
	hintArmed  bool
	aliasArmed bool
}

// New creates an Executor with both one-shot latches armed. When a catalog
// is wired, the target database must already be indexed.
func New(opts Options) (*Executor, error) {
	if opts.Catalog != nil {
		indexed, err := opts.Catalog.HasDatabase(opts.DB)
		if err != nil {
			return nil, err
		}
		if !indexed {
			return nil, fmt.Errorf("database %s is not indexed, run `scout index` first", opts.DB)
		}
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = 60 * time.Second
	}
	if opts.SQLTimeout <= 0 {
		opts.SQLTimeout = 100 * time.Second
	}
	return &Executor{opts: opts, hintArmed: true, aliasArmed: true}, nil
}

// DisableHint turns off the column-order hint for the rest of the session.
func (e *Executor) DisableHint() {
	e.mu.Lock()
	e.hintArmed = false
	e.mu.Unlock()
}

// HintArmed reports whether the column-order hint can still fire.
func (e *Executor) HintArmed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hintArmed
}

// Dispatch runs one parsed action and returns the observation text. A
// non-nil error means the session cannot continue (timeouts, lost indexes);
// recoverable problems come back as "Error..." observations instead.
func (e *Executor) Dispatch(ctx context.Context, call *action.Call) (string, error) {
	timer := logging.StartTimer(logging.CategoryExecutor, string(call.Kind))
	defer timer.Stop()

	switch call.Kind {
	case action.KindSearchColumn:
		return e.withTimeout(ctx, e.opts.SearchTimeout, func(ctx context.Context) (string, error) {
			return e.searchColumn(ctx, call)
		})
	case action.KindSearchValue:
		return e.withTimeout(ctx, e.opts.SearchTimeout, func(ctx context.Context) (string, error) {
			return e.searchValue(ctx, call)
		})
	case action.KindFindShortestPath:
		return e.withTimeout(ctx, e.opts.SearchTimeout, func(ctx context.Context) (string, error) {
			return e.findShortestPath(ctx, call)
		})
	case action.KindExecuteSQL:
		return e.withTimeout(ctx, e.opts.SQLTimeout, func(ctx context.Context) (string, error) {
			return e.executeSQL(ctx, call)
		})
	default:
		return "", fmt.Errorf("action %s is not executable", call.Kind)
	}
}

func (e *Executor) withTimeout(parent context.Context, d time.Duration, fn func(context.Context) (string, error)) (string, error) {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()

	type outcome struct {
		obs string
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		obs, err := fn(ctx)
		ch <- outcome{obs, err}
	}()

	select {
	case out := <-ch:
		return out.obs, out.err
	case <-ctx.Done():
		if parent.Err() != nil {
			return "", parent.Err()
		}
		return "", fmt.Errorf("%w after %s", ErrCapabilityTimeout, d)
	}
}

// =============================================================================
// SEARCH COLUMN
// =============================================================================

func (e *Executor) searchColumn(ctx context.Context, call *action.Call) (string, error) {
	outer := pyfmt.Dict{}
	for _, rawQuery := range call.Query {
		q := strings.ToLower(strings.TrimSpace(rawQuery))
		desc := fmt.Sprintf("a column about %s.", q)

		vec, err := e.opts.Engine.Embed(ctx, desc)
		if err != nil {
			return "", fmt.Errorf("failed to embed column query: %w", err)
		}

		fetch := call.TopK
		if fetch < minColumnFetch {
			fetch = minColumnFetch
		}
		hits, err := e.opts.Catalog.SearchColumns(ctx, e.opts.DB, vec, fetch)
		if err != nil {
			return "", fmt.Errorf("column search failed: %w", err)
		}

		type entry struct {
			doc  pyfmt.Dict
			dist float64
		}
		entries := make([]entry, 0, len(hits))
		zeroDistance := 0
		for _, h := range hits {
			dist := h.Distance
			// An exact name match is authoritative regardless of what the
			// embedding thinks.
			if q == strings.ToLower(h.Column) {
				dist = 0.0
			}
			doc := pyfmt.Dict{
				{Key: "column", Value: h.Column},
				{Key: "format", Value: h.Type},
				{Key: "table", Value: h.Table},
			}
			if h.Description != "" {
				doc = append(doc, pyfmt.Pair{Key: "value_description", Value: h.Description})
			}
			if h.Statistics != "" {
				doc = append(doc, pyfmt.Pair{Key: "statistics", Value: formatStatistics(h.Statistics)})
			}
			if dist == 0.0 {
				zeroDistance++
			}
			entries = append(entries, entry{doc: doc, dist: dist})
		}
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].dist < entries[j].dist })

		topk := call.TopK
		if zeroDistance > topk {
			logging.Search("DB: `%s`, Query: `%s`, Topk: %d, Num(distance==0): %d",
				e.opts.DB, q, topk, zeroDistance)
			topk = zeroDistance
		}
		if topk > len(entries) {
			topk = len(entries)
		}

		list := make([]interface{}, 0, topk)
		for _, en := range entries[:topk] {
			list = append(list, en.doc)
		}
		outer = append(outer, pyfmt.Pair{Key: q, Value: list})
	}

	if len(outer) == 1 {
		return pyfmt.Repr(outer[0].Value), nil
	}
	return pyfmt.Repr(outer), nil
}

// =============================================================================
// SEARCH VALUE
// =============================================================================

func (e *Executor) searchValue(ctx context.Context, call *action.Call) (string, error) {
	indexed, hasText, err := e.opts.Values.HasTextFields(e.opts.DB)
	if err != nil {
		return "", fmt.Errorf("value index unavailable: %w", err)
	}
	if !indexed || !hasText {
		return fmt.Sprintf("Error. Tables in db `%s` do not have text field.", e.opts.DB), nil
	}

	tables := call.Table
	if len(tables) == 0 {
		tables = make([]string, len(call.Query))
	}
	columns := call.Column
	if len(columns) == 0 {
		columns = make([]string, len(call.Query))
	}
	if len(call.Query) != len(tables) || len(call.Query) != len(columns) {
		return "Error. Length of query, table, column should be the same.", nil
	}

	outer := pyfmt.Dict{}
	for i, q := range call.Query {
		hits, err := e.opts.Values.Lookup(ctx, e.opts.DB, q)
		if err != nil {
			return "", fmt.Errorf("value search failed: %w", err)
		}

		list := []interface{}{}
		for _, h := range hits {
			if tables[i] != "" && h.Table != tables[i] {
				continue
			}
			if columns[i] != "" && h.Column != columns[i] {
				continue
			}
			list = append(list, pyfmt.Dict{
				{Key: "contents", Value: h.Contents},
				{Key: "table", Value: h.Table},
				{Key: "column", Value: h.Column},
			})
			if len(list) == call.TopK {
				break
			}
		}
		outer = append(outer, pyfmt.Pair{Key: q, Value: list})
	}

	if len(outer) == 1 {
		return pyfmt.Repr(outer[0].Value), nil
	}
	return pyfmt.Repr(outer), nil
}

// =============================================================================
// FIND SHORTEST PATH
// =============================================================================

func (e *Executor) findShortestPath(_ context.Context, call *action.Call) (string, error) {
	var g *schema.Graph
	var err error
	if call.Debug {
		g, err = e.opts.Graphs.Rebuild(e.opts.DB)
	} else {
		g, err = e.opts.Graphs.Get(e.opts.DB)
	}
	if err != nil {
		return "", fmt.Errorf("join graph unavailable for %s: %w", e.opts.DB, err)
	}

	starts := sortedUnique(call.Start)
	ends := sortedUnique(call.End)

	var results []interface{}
	for _, s := range starts {
		for _, t := range ends {
			r := g.ShortestPath(e.opts.DB, s, t)
			results = append(results, pyfmt.Tuple{s, t, r})
		}
	}
	if len(results) == 1 {
		return results[0].(pyfmt.Tuple)[2].(string), nil
	}
	return pyfmt.Repr(results), nil
}

func sortedUnique(items []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, it := range items {
		if _, dup := seen[it]; dup {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// EXECUTE SQL
// =============================================================================

func (e *Executor) executeSQL(ctx context.Context, call *action.Call) (string, error) {
	query := strings.TrimSpace(call.SQL)
	if len(query) >= 2 && query[0] == '"' && query[len(query)-1] == '"' {
		query = strings.Trim(query, `"`)
	}

	view := guardView(query)
	if obs := e.applyGuards(view, call.StrMode); obs != "" {
		return obs, nil
	}

	db, err := schema.Open(e.opts.SQLitePath)
	if err != nil {
		return "", err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		// SQL mistakes go back to the model as observations.
		return err.Error(), nil
	}
	tuples, err := readRows(rows)
	rows.Close()
	if err != nil {
		return err.Error(), nil
	}

	result := renderRows(dedupeAndSort(tuples))
	if len(result) > 200 {
		result = result[:200] + "..."
	}

	if call.StrMode && result != "[]" && e.HintArmed() &&
		(containsMultiColumnsInSelect(view) || containsAggregateInSelect(view)) {
		result += columnHint
	}
	return result, nil
}

// applyGuards runs the dataset's SQL-shape rules and returns the rejection
// observation, or "" when the query passes.
func (e *Executor) applyGuards(view string, strMode bool) string {
	if !strMode {
		return ""
	}
	g := e.opts.Guards

	if g.DisallowLeftJoin && strings.Contains(view, " left join ") {
		return "Error. Do not support 'left join'."
	}
	if g.DisallowTableAlias {
		e.mu.Lock()
		armed := e.aliasArmed
		e.mu.Unlock()
		if armed && len(extractTableAliases(view)) > 0 {
			// Rejecting aliases more than once stalls sessions that insist
			// on them, so this guard fires a single time.
			e.mu.Lock()
			e.aliasArmed = false
			e.mu.Unlock()
			return "Error. Do not use table alias, please write the full table name."
		}
	}
	if g.DisallowInClause && containsInClause(view) {
		return "Error. Do not support 'where ... in (...)' syntax, please use 'OR' instead."
	}
	if g.DisallowIDEquality && strings.Contains(extractWhereClause(view), "_id = ") {
		return "Error. Do not use '_id = ' in where clause, please write the full condition."
	}
	return ""
}
