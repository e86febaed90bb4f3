// Package session runs one dialog between the model and the capability
// executor, persists the transcript, and retries sessions that end on an
// uninformative observation.
package session

import "sqlscout/internal/llm"

// Task is one question to solve against one database.
type Task struct {
	ID       string `json:"id"`
	DB       string `json:"db_id"`
	Question string `json:"question"`
	Evidence string `json:"evidence,omitempty"`
}

// Record is the persisted outcome of one session. Token counts are
// per-round, so their length is the number of model calls made.
type Record struct {
	ID               string        `json:"id"`
	Question         string        `json:"question"`
	DB               string        `json:"db_id"`
	Evidence         string        `json:"evidence,omitempty"`
	Dialog           []llm.Message `json:"dialog"`
	ModelName        string        `json:"model_name"`
	CompletionTokens []int         `json:"completion_tokens"`
	PromptTokens     []int         `json:"prompt_tokens"`
}
