package results

import (
	"path/filepath"
	"testing"

	"sqlscout/internal/llm"
	"sqlscout/internal/session"
)

func writeRecords(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "records")
	st, err := session.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	records := []*session.Record{
		{
			ID: "1", Question: "How many singers?", DB: "concert_singer",
			Dialog: []llm.Message{
				{Role: "system", Content: "sys"},
				{Role: "user", Content: "start"},
				{Role: "assistant", Content: "Thought: count. \nAction: ExecuteSQL(\"SELECT count(*) FROM singer\")"},
				{Role: "user", Content: "Observation: [(5,)]"},
			},
		},
		{
			ID: "2", Question: "List stadium names.", DB: "concert_singer",
			Dialog: []llm.Message{
				{Role: "system", Content: "sys"},
				{Role: "user", Content: "start"},
				{Role: "assistant", Content: "Thought: list. \nAction: ExecuteSQL(\"SELECT name FROM stadium\")"},
				{Role: "user", Content: "Observation: [('Stark Arena',)]"},
			},
		},
	}
	for _, rec := range records {
		if err := st.Save(rec); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	return dir
}

func TestCollectAndFormat(t *testing.T) {
	preds, err := Collect(writeRecords(t))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(preds) != 2 {
		t.Fatalf("preds = %v", preds)
	}

	questions := []string{"List stadium names.", "How many singers?"}
	lines, err := SpiderLines(questions, preds)
	if err != nil {
		t.Fatalf("SpiderLines: %v", err)
	}
	if lines[0] != "SELECT name FROM stadium" || lines[1] != "SELECT count(*) FROM singer" {
		t.Errorf("lines = %v", lines)
	}

	entries, err := BirdEntries(questions, preds)
	if err != nil {
		t.Fatalf("BirdEntries: %v", err)
	}
	want := "SELECT name FROM stadium" + BirdSeparator + "concert_singer"
	if entries["0"] != want {
		t.Errorf("entries[0] = %q, want %q", entries["0"], want)
	}

	if _, err := SpiderLines([]string{"unknown question"}, preds); err == nil {
		t.Error("missing prediction not reported")
	}
}
