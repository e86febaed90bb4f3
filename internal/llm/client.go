// Package llm provides the chat completion client used by the dialog
// controller. Providers expose an OpenAI-compatible API surface.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Message is one role-tagged entry in a conversation.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// Request holds one chat completion call.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	TopP        float64
	MaxTokens   int
	N           int // number of sampled candidates
	Stop        []string
}

// Usage carries the provider's token accounting for one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Response holds the sampled candidate texts and usage for one call.
type Response struct {
	Choices []string
	Usage   Usage
}

// ChatClient is the provider contract. Implementations must return a
// *BadRequestError for provider-side request rejections so callers can
// treat them as fatal without retrying.
type ChatClient interface {
	Chat(ctx context.Context, req Request) (*Response, error)
}

// BadRequestError marks a request the provider rejected as malformed
// (HTTP 400 family). Retrying the same payload cannot succeed.
type BadRequestError struct {
	Status  int
	Message string
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("bad request (status %d): %s", e.Status, e.Message)
}

// IsBadRequest reports whether err is a provider bad-request rejection.
func IsBadRequest(err error) bool {
	var bre *BadRequestError
	return errors.As(err, &bre)
}
