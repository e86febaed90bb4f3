package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LoadToolDesc reads the capability description block from the prompt
// directory.
func LoadToolDesc(promptDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(promptDir, "tool_desc.txt"))
	if err != nil {
		return "", fmt.Errorf("failed to read tool description: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// LoadDemos assembles the few-shot demonstrations. Each subdirectory of
// promptDir is one demo database: its schema.txt plus every example
// transcript, comment lines stripped. A "-- START --" separator marks
// preamble to drop.
func LoadDemos(promptDir string) ([]string, error) {
	entries, err := os.ReadDir(promptDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt dir: %w", err)
	}

	var demos []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		db := entry.Name()
		dbDir := filepath.Join(promptDir, db)

		schemaData, err := os.ReadFile(filepath.Join(dbDir, "schema.txt"))
		if err != nil {
			return nil, fmt.Errorf("failed to read schema for demo db %s: %w", db, err)
		}

		paths, err := filepath.Glob(filepath.Join(dbDir, "*.txt"))
		if err != nil {
			return nil, err
		}
		sort.Strings(paths)

		var examples []string
		for _, p := range paths {
			base := filepath.Base(p)
			if base == "schema.txt" || base == "test.txt" {
				continue
			}
			data, err := os.ReadFile(p)
			if err != nil {
				return nil, fmt.Errorf("failed to read demo %s: %w", p, err)
			}
			var lines []string
			for _, line := range strings.Split(string(data), "\n") {
				if strings.HasPrefix(line, "#") {
					continue
				}
				lines = append(lines, line)
			}
			content := strings.Join(lines, "\n")
			if idx := strings.Index(content, "-- START --"); idx != -1 {
				content = content[idx+len("-- START --"):]
			}
			examples = append(examples, strings.TrimSpace(content))
		}

		demo := fmt.Sprintf("Schema of database %s:\n%s\n\n%s",
			db, strings.TrimSpace(string(schemaData)), strings.Join(examples, "\n\n"))
		demos = append(demos, demo)
	}
	if len(demos) == 0 {
		return nil, fmt.Errorf("no demo databases found under %s", promptDir)
	}
	return demos, nil
}

// BuildSystem composes the system prompt from the tool description and the
// demo transcripts.
func BuildSystem(toolDesc string, demos []string) string {
	return toolDesc + "\n\n" + strings.Join(demos, "\n\n") +
		"\n\nNow, solve the following question step by step."
}

// StartText composes the first user turn: the target database schema
// followed by the question, with dataset evidence appended when present.
func StartText(db, schemaMarkdown, question, evidence string) string {
	text := fmt.Sprintf("Schema of database %s:\n%s\n\nQ: %s",
		db, strings.TrimSpace(schemaMarkdown), strings.TrimSpace(question))
	if evidence != "" {
		text += "\nEvidence: " + strings.TrimSpace(strings.ReplaceAll(evidence, "\n", " "))
	}
	return text
}
