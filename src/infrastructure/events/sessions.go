package events

import (
	"context"

	"algomind/src/core/model"
	"algomind/src/core/reasoning"
	"algomind/src/log"
)

// SessionAppender stores conversation turns
type SessionAppender interface {
	Append(ctx context.Context, sessionID string, turns ...model.Turn) error
}

// RecordSessions appends the question and answer of every completed run to its
// session. Errored runs and anonymous requests are skipped.
func RecordSessions(store SessionAppender) CompletionHandler {
	return func(ctx context.Context, c CompletionMessage) error {
		if c.State != string(reasoning.StateCompleted) || c.SessionID == "" {
			return nil
		}
		err := store.Append(ctx, c.SessionID,
			model.Turn{Role: "user", Content: c.Question},
			model.Turn{Role: "assistant", Content: c.Answer},
		)
		if err != nil {
			return err
		}
		log.V(1).Info("session turn recorded", "session_id", c.SessionID, "request_id", c.RequestID)
		return nil
	}
}
