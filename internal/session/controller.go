package session

import (
	"context"
	"fmt"
	"strings"

	"sqlscout/internal/action"
	"sqlscout/internal/executor"
	"sqlscout/internal/llm"
	"sqlscout/internal/logging"
)

// Controller drives one reasoning dialog: it alternates model turns with
// capability executions until the model signals Done, repeats itself, or the
// round budget runs out.
type Controller struct {
	Client      llm.ChatClient
	Exec        *executor.Executor
	Model       string
	MaxRounds   int
	Samples     int
	Temperature float64
	TopP        float64
	MaxTokens   int
}

var dialogStop = []string{"\nObservation", "\nThought", "[END]"}

// Run executes the dialog for one task and returns the finished record.
// A non-nil error means the session failed without a usable transcript.
func (c *Controller) Run(ctx context.Context, task Task, system, start string) (*Record, error) {
	messages := []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: start},
	}

	maxRounds := c.MaxRounds
	if maxRounds <= 0 {
		maxRounds = 12
	}
	samples := c.Samples
	if samples <= 0 {
		samples = 1
	}

	var promptTokens, completionTokens []int
	lastOut := ""

	round := 0
	for round < maxRounds {
		if round > 0 {
			logging.SessionDebug("round %d for task %s", round, task.ID)
		}

		resp, err := c.Client.Chat(ctx, llm.Request{
			Model:       c.Model,
			Messages:    messages,
			Temperature: c.Temperature,
			TopP:        c.TopP,
			MaxTokens:   c.MaxTokens,
			N:           samples,
			Stop:        dialogStop,
		})
		if err != nil {
			return nil, fmt.Errorf("chat failed for task %s: %w", task.ID, err)
		}

		promptTokens = append(promptTokens, resp.Usage.PromptTokens)
		completionTokens = append(completionTokens, resp.Usage.CompletionTokens)

		var choices []string
		for _, raw := range resp.Choices {
			s := strings.TrimSpace(raw)
			if s == "" {
				continue
			}
			s = strings.Split(s, "Observation")[0]
			choices = append(choices, action.Preprocess(s))
		}
		if len(choices) == 0 {
			return nil, fmt.Errorf("model returned no usable choices for task %s", task.ID)
		}

		ranked, _, _ := action.Rank(choices)

		// Execute the first sample as the default observation, then
		// replace it with the first ranked one that yields a usable
		// result. The raw content follows whichever choice won.
		out := strings.TrimSpace(choices[0])
		obs, err := c.execute(ctx, out)
		if err != nil {
			return nil, err
		}
		for _, content := range ranked {
			alt, err := c.execute(ctx, content)
			if err != nil {
				return nil, err
			}
			if action.IsValidResult(alt) {
				obs = alt
				out = strings.TrimSpace(content)
				break
			}
		}
		obs = strings.TrimSpace(obs)

		// Treat the n samples as one call: a column hint in the chosen
		// observation disarms the hint for the rest of the session.
		if strings.Contains(obs, executor.HintMarker) {
			c.Exec.DisableHint()
		}

		if out == lastOut {
			messages = append(messages, llm.Message{Role: "user", Content: "STOP because of repetition."})
			break
		}
		lastOut = out

		if !strings.HasPrefix(out, "Thought: ") {
			out = "Thought: " + out
		}
		messages = append(messages, llm.Message{Role: "assistant", Content: out})

		if obs != action.DoneSentinel {
			messages = append(messages, llm.Message{Role: "user", Content: "Observation: " + obs})
			round++
			continue
		}

		if hasExecution(messages) {
			messages = append(messages, llm.Message{Role: "user", Content: "Stop condition detected."})
			break
		}
		messages = append(messages, llm.Message{
			Role:    "user",
			Content: "Observation: Error. You must call ExecuteSQL function to provide the answer at least once.",
		})
		round++
	}

	return &Record{
		ID:               task.ID,
		Question:         task.Question,
		DB:               task.DB,
		Evidence:         task.Evidence,
		Dialog:           messages,
		ModelName:        c.Model,
		CompletionTokens: completionTokens,
		PromptTokens:     promptTokens,
	}, nil
}

// execute parses one model output and runs its capability call. Parse and
// argument errors come back as observations so the model can correct itself.
// A non-nil error is fatal for the session.
func (c *Controller) execute(ctx context.Context, content string) (string, error) {
	expr := action.Parse(content)
	if expr == action.DoneSentinel {
		return action.DoneSentinel, nil
	}
	if strings.HasPrefix(expr, "Error") {
		return expr, nil
	}
	call, perr := action.ParseCall(expr)
	if perr != nil {
		return perr.Render(), nil
	}
	return c.Exec.Dispatch(ctx, call)
}

// hasExecution reports whether any assistant turn after the opening pair
// actually called ExecuteSQL.
func hasExecution(messages []llm.Message) bool {
	for i := len(messages) - 1; i >= 2; i-- {
		m := messages[i]
		if m.Role == "assistant" && strings.Contains(m.Content, "ExecuteSQL(") {
			return true
		}
	}
	return false
}
