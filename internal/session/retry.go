package session

import (
	"context"
	"strings"

	"sqlscout/internal/action"
	"sqlscout/internal/llm"
	"sqlscout/internal/logging"
)

const maxAttempts = 3

// RunWithRetry runs a session and re-runs it when the saved dialog ends on an
// empty or error observation. Each attempt gets a fresh controller so the
// per-session executor latches reset. The record of the final attempt is kept
// even when it is still invalid; a fatal session error aborts without a
// record.
func RunWithRetry(ctx context.Context, store *Store, task Task, system, start string, build func() (*Controller, error)) error {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		ctrl, err := build()
		if err != nil {
			return err
		}
		rec, err := ctrl.Run(ctx, task, system, start)
		if err != nil {
			return err
		}
		if err := store.Save(rec); err != nil {
			return err
		}
		if lastObservationValid(rec.Dialog) {
			return nil
		}
		if attempt < maxAttempts-1 {
			logging.Session("task %s ended on an invalid observation, retrying (attempt %d)", task.ID, attempt+2)
			if err := store.Delete(task.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// lastObservationValid inspects the observation preceding the closing turn.
func lastObservationValid(dialog []llm.Message) bool {
	if len(dialog) < 2 {
		return false
	}
	for i := len(dialog) - 2; i >= 0; i-- {
		if dialog[i].Role != "user" {
			continue
		}
		obs := strings.TrimSpace(strings.ReplaceAll(dialog[i].Content, "Observation: ", ""))
		return action.IsValidResult(obs)
	}
	return false
}
