package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sqlscout/internal/config"
	"sqlscout/internal/embedding"
	"sqlscout/internal/executor"
	"sqlscout/internal/llm"
	"sqlscout/internal/logging"
	"sqlscout/internal/schema"
	"sqlscout/internal/session"
	"sqlscout/internal/store"
)

var (
	progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A"))
	failStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935"))
)

// Options wires a Runner. The catalog, value index and graph cache are
// shared across sessions; each session gets a fresh executor for its latches.
type Options struct {
	Client  llm.ChatClient
	Engine  embedding.Engine
	Catalog *store.CatalogStore
	Values  *store.ValueIndex
	Graphs  *schema.GraphCache
	Store   *session.Store

	Dataset config.DatasetConfig
	LLM     config.LLMConfig

	Workers        int
	MaxRounds      int
	SessionTimeout time.Duration
}

// Summary reports one batch run.
type Summary struct {
	RunID     string
	Total     int
	Skipped   int
	Succeeded int
	Failed    int
}

// Runner executes sessions for a task list with a bounded worker pool.
type Runner struct {
	opts   Options
	system string

	searchTimeout time.Duration
	sqlTimeout    time.Duration
}

// NewRunner loads the prompt material once and prepares the pool settings.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Workers <= 0 {
		opts.Workers = 20
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = 12
	}
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = 5 * time.Minute
	}

	toolDesc, err := session.LoadToolDesc(opts.Dataset.PromptDir)
	if err != nil {
		return nil, err
	}
	demos, err := session.LoadDemos(opts.Dataset.PromptDir)
	if err != nil {
		return nil, err
	}

	return &Runner{
		opts:          opts,
		system:        session.BuildSystem(toolDesc, demos),
		searchTimeout: config.ParseDuration(opts.Dataset.SearchTimeout, 60*time.Second),
		sqlTimeout:    config.ParseDuration(opts.Dataset.SQLTimeout, 100*time.Second),
	}, nil
}

// Run executes every task not already persisted. Session failures are
// logged and counted; they never abort the rest of the batch.
func (r *Runner) Run(ctx context.Context, tasks []session.Task) (*Summary, error) {
	sum := &Summary{RunID: uuid.NewString(), Total: len(tasks)}

	completed, err := r.opts.Store.CompletedIDs()
	if err != nil {
		return nil, err
	}
	pending := make([]session.Task, 0, len(tasks))
	for _, t := range tasks {
		if _, ok := completed[t.ID]; ok {
			sum.Skipped++
			continue
		}
		pending = append(pending, t)
	}
	logging.Batch("Run %s: %d tasks, %d already done", sum.RunID, len(tasks), sum.Skipped)

	var done, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for _, task := range pending {
		task := task
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, r.opts.SessionTimeout)
			defer cancel()

			if err := r.runOne(sctx, task); err != nil {
				failed.Add(1)
				logging.Batch("Task %s failed: %v", task.ID, err)
				fmt.Fprintln(os.Stderr, failStyle.Render(fmt.Sprintf("task %s failed: %v", task.ID, err)))
			}
			n := done.Add(1)
			fmt.Fprintln(os.Stderr, progressStyle.Render(fmt.Sprintf("[%d/%d] %s", n, len(pending), task.ID)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sum.Failed = int(failed.Load())
	sum.Succeeded = len(pending) - sum.Failed
	logging.Batch("Run %s finished: %d ok, %d failed, %d skipped", sum.RunID, sum.Succeeded, sum.Failed, sum.Skipped)
	return sum, nil
}

func (r *Runner) runOne(ctx context.Context, task session.Task) error {
	sqlitePath, err := FindDatabase(r.opts.Dataset.DatabaseDirs, task.DB)
	if err != nil {
		return err
	}
	md, err := os.ReadFile(filepath.Join(r.opts.Dataset.SchemaDir, task.DB+".md"))
	if err != nil {
		return fmt.Errorf("missing schema summary for %s, run `scout index` first: %w", task.DB, err)
	}

	start := session.StartText(task.DB, string(md), task.Question, task.Evidence)

	build := func() (*session.Controller, error) {
		exec, err := executor.New(executor.Options{
			DB:            task.DB,
			SQLitePath:    sqlitePath,
			Engine:        r.opts.Engine,
			Catalog:       r.opts.Catalog,
			Values:        r.opts.Values,
			Graphs:        r.opts.Graphs,
			Guards:        r.opts.Dataset.Guards,
			SearchTimeout: r.searchTimeout,
			SQLTimeout:    r.sqlTimeout,
		})
		if err != nil {
			return nil, err
		}
		return &session.Controller{
			Client:      r.opts.Client,
			Exec:        exec,
			Model:       r.opts.LLM.Model,
			MaxRounds:   r.opts.MaxRounds,
			Samples:     r.opts.LLM.Samples,
			Temperature: r.opts.LLM.Temperature,
			TopP:        r.opts.LLM.TopP,
			MaxTokens:   r.opts.LLM.MaxTokens,
		}, nil
	}

	return session.RunWithRetry(ctx, r.opts.Store, task, r.system, start, build)
}
