package session

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"sqlscout/internal/config"
	"sqlscout/internal/executor"
	"sqlscout/internal/llm"
	"sqlscout/internal/store"
)

// scriptClient replays canned responses in order. Each script entry is the
// list of sampled candidates for one round.
type scriptClient struct {
	script [][]string
	calls  int
	reqs   []llm.Request
}

func (s *scriptClient) Chat(_ context.Context, req llm.Request) (*llm.Response, error) {
	s.reqs = append(s.reqs, req)
	if s.calls >= len(s.script) {
		return nil, fmt.Errorf("script exhausted after %d calls", s.calls)
	}
	choices := s.script[s.calls]
	s.calls++
	return &llm.Response{
		Choices: choices,
		Usage:   llm.Usage{PromptTokens: 100 + s.calls, CompletionTokens: 10 + s.calls},
	}, nil
}

func buildSessionFixture(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "concert_singer.sqlite")
	db, err := sql.Open(store.DriverName, path)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE singer (singer_id INTEGER PRIMARY KEY, name TEXT, age INTEGER)`,
		`INSERT INTO singer VALUES (1, 'John', 32), (2, 'Rose', 41), (3, 'Ama', 25), (4, 'Mary', 41), (5, 'Zed', 19)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("fixture stmt: %v", err)
		}
	}
	return path
}

func newTestController(t *testing.T, client llm.ChatClient, samples int) *Controller {
	t.Helper()
	path := buildSessionFixture(t, t.TempDir())
	exec, err := executor.New(executor.Options{
		DB:         "concert_singer",
		SQLitePath: path,
		Guards:     config.GuardConfig{},
	})
	if err != nil {
		t.Fatalf("executor.New: %v", err)
	}
	return &Controller{
		Client:      client,
		Exec:        exec,
		Model:       "test-model",
		MaxRounds:   8,
		Samples:     samples,
		Temperature: 0.7,
		MaxTokens:   512,
	}
}

var testTask = Task{ID: "42", DB: "concert_singer", Question: "How many singers are there?"}

func TestRunStopsAfterExecutionAndDone(t *testing.T) {
	client := &scriptClient{script: [][]string{
		{"I will look up the age.\nAction: ExecuteSQL(\"SELECT age FROM singer WHERE singer_id = 5\")"},
		{"Thought: The answer is 19.\nAction: Done"},
	}}
	ctrl := newTestController(t, client, 1)

	rec, err := ctrl.Run(context.Background(), testTask, "system prompt", "start text")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{
		"system prompt",
		"start text",
		"Thought: I will look up the age. \nAction: ExecuteSQL(\"SELECT age FROM singer WHERE singer_id = 5\")",
		"Observation: [(19,)]",
		"Thought: The answer is 19. \nAction: Done",
		"Stop condition detected.",
	}
	if len(rec.Dialog) != len(want) {
		t.Fatalf("dialog length = %d, want %d\n%+v", len(rec.Dialog), len(want), rec.Dialog)
	}
	for i, w := range want {
		if rec.Dialog[i].Content != w {
			t.Errorf("dialog[%d] = %q, want %q", i, rec.Dialog[i].Content, w)
		}
	}
	if len(rec.PromptTokens) != 2 || len(rec.CompletionTokens) != 2 {
		t.Errorf("token lists = %v / %v, want two entries each", rec.PromptTokens, rec.CompletionTokens)
	}
	if rec.ModelName != "test-model" || rec.DB != "concert_singer" {
		t.Errorf("record metadata = %+v", rec)
	}
	if len(client.reqs) == 0 || len(client.reqs[0].Stop) != 3 {
		t.Errorf("stop sequences not forwarded: %+v", client.reqs)
	}
}

func TestRunRejectsDoneWithoutExecution(t *testing.T) {
	client := &scriptClient{script: [][]string{
		{"Thought: I already know the answer.\nAction: Done"},
		{"Thought: I must run it first.\nAction: ExecuteSQL(\"SELECT count(*) FROM singer\")"},
		{"Thought: Now I am done.\nAction: Done"},
	}}
	ctrl := newTestController(t, client, 1)

	rec, err := ctrl.Run(context.Background(), testTask, "sys", "start")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var corrective bool
	for _, m := range rec.Dialog {
		if m.Content == "Observation: Error. You must call ExecuteSQL function to provide the answer at least once." {
			corrective = true
		}
	}
	if !corrective {
		t.Errorf("missing corrective observation: %+v", rec.Dialog)
	}
	if last := rec.Dialog[len(rec.Dialog)-1].Content; last != "Stop condition detected." {
		t.Errorf("last message = %q", last)
	}
}

func TestRunBreaksOnRepetition(t *testing.T) {
	same := "Thought: trying again.\nAction: ExecuteSQL(\"SELECT age FROM missing_table\")"
	client := &scriptClient{script: [][]string{{same}, {same}}}
	ctrl := newTestController(t, client, 1)

	rec, err := ctrl.Run(context.Background(), testTask, "sys", "start")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if last := rec.Dialog[len(rec.Dialog)-1].Content; last != "STOP because of repetition." {
		t.Errorf("last message = %q", last)
	}
	var assistants int
	for _, m := range rec.Dialog {
		if m.Role == "assistant" {
			assistants++
		}
	}
	if assistants != 1 {
		t.Errorf("assistant turns = %d, want 1", assistants)
	}
}

func TestRunPrefersRankedValidObservation(t *testing.T) {
	client := &scriptClient{script: [][]string{
		{
			"Thought: guess one.\nAction: ExecuteSQL(\"SELECT age FROM missing_table\")",
			"Thought: guess two.\nAction: ExecuteSQL(\"SELECT age FROM singer WHERE name = 'Zed'\")",
		},
		{"Thought: done.\nAction: Done"},
	}}
	ctrl := newTestController(t, client, 2)

	rec, err := ctrl.Run(context.Background(), testTask, "sys", "start")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := rec.Dialog[3].Content; got != "Observation: [(19,)]" {
		t.Errorf("observation = %q, want the result of the valid candidate", got)
	}
	if got := rec.Dialog[2].Content; !strings.Contains(got, "guess two") {
		t.Errorf("assistant turn = %q, want the winning candidate recorded", got)
	}
}

func TestRunIgnoresDonePluralityWhenValidCandidateExists(t *testing.T) {
	client := &scriptClient{script: [][]string{
		{
			"Thought: done a.\nAction: Done",
			"Thought: done b.\nAction: Done",
			"Thought: run it.\nAction: ExecuteSQL(\"SELECT age FROM singer WHERE singer_id = 5\")",
		},
		{"Thought: done.\nAction: Done"},
	}}
	ctrl := newTestController(t, client, 3)

	rec, err := ctrl.Run(context.Background(), testTask, "sys", "start")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := rec.Dialog[2].Content; !strings.Contains(got, "ExecuteSQL") {
		t.Errorf("assistant turn = %q, want the executing candidate over the terminal majority", got)
	}
	if got := rec.Dialog[3].Content; got != "Observation: [(19,)]" {
		t.Errorf("observation = %q, want the executing candidate's result", got)
	}
	if last := rec.Dialog[len(rec.Dialog)-1].Content; last != "Stop condition detected." {
		t.Errorf("last message = %q", last)
	}
}

func TestRunKeepsDefaultObservationWhenAllInvalid(t *testing.T) {
	client := &scriptClient{script: [][]string{
		{"Thought: broken.\nAction: ExecuteSQL(\"SELECT age FROM missing_table\")"},
		{"Thought: stop now.\nAction: ExecuteSQL(\"SELECT count(*) FROM singer\")"},
		{"Thought: done.\nAction: Done"},
	}}
	ctrl := newTestController(t, client, 1)

	rec, err := ctrl.Run(context.Background(), testTask, "sys", "start")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := rec.Dialog[3].Content; !strings.Contains(got, "missing_table") {
		t.Errorf("observation = %q, want the driver error surfaced", got)
	}
}

func TestRunSurfacesParseErrorsAsObservations(t *testing.T) {
	client := &scriptClient{script: [][]string{
		{"Thought: I forgot the action."},
		{"Thought: fixed.\nAction: ExecuteSQL(\"SELECT count(*) FROM singer\")"},
		{"Thought: done.\nAction: Done"},
	}}
	ctrl := newTestController(t, client, 1)

	rec, err := ctrl.Run(context.Background(), testTask, "sys", "start")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := rec.Dialog[3].Content; !strings.Contains(got, "No valid action found") {
		t.Errorf("observation = %q, want the parse error", got)
	}
}

func TestRunWithRetryRerunsInvalidSessions(t *testing.T) {
	// First attempt repeats a broken call; the transcript ends on an error
	// observation and gets discarded. The second attempt succeeds.
	broken := "Thought: again.\nAction: ExecuteSQL(\"SELECT age FROM missing_table\")"
	client := &scriptClient{script: [][]string{
		{broken},
		{broken},
		{"Thought: count.\nAction: ExecuteSQL(\"SELECT count(*) FROM singer\")"},
		{"Thought: done.\nAction: Done"},
	}}

	dir := t.TempDir()
	st, err := NewStore(filepath.Join(dir, "records"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	err = RunWithRetry(context.Background(), st, testTask, "sys", "start", func() (*Controller, error) {
		return newTestController(t, client, 1), nil
	})
	if err != nil {
		t.Fatalf("RunWithRetry: %v", err)
	}
	if client.calls != 4 {
		t.Errorf("chat calls = %d, want 4", client.calls)
	}

	rec, err := st.Load(testTask.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if last := rec.Dialog[len(rec.Dialog)-1].Content; last != "Stop condition detected." {
		t.Errorf("kept record ends with %q", last)
	}
}

func TestLastObservationValid(t *testing.T) {
	valid := []llm.Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "start"},
		{Role: "assistant", Content: "Thought: x\nAction: ExecuteSQL(\"SELECT 1\")"},
		{Role: "user", Content: "Observation: [(1,)]"},
		{Role: "assistant", Content: "Thought: done\nAction: Done"},
		{Role: "user", Content: "Stop condition detected."},
	}
	if !lastObservationValid(valid) {
		t.Errorf("valid transcript rejected")
	}

	invalid := append(append([]llm.Message{}, valid[:3]...),
		llm.Message{Role: "user", Content: "Observation: Error. no such table: t"},
		llm.Message{Role: "user", Content: "STOP because of repetition."},
	)
	if lastObservationValid(invalid) {
		t.Errorf("error transcript accepted")
	}
}
