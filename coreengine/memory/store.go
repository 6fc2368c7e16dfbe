// Package memory provides per-session conversation memory used to give the
// research stage context from earlier exchanges.
//
// Two backends are available: Redis (shared, survives restarts) and an
// in-process TTL cache.
package memory

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DefaultHistoryLimit is how many exchanges Context renders.
const DefaultHistoryLimit = 5

// Exchange is one completed query/response pair.
type Exchange struct {
	Query     string    `json:"query"`
	Intent    string    `json:"intent"`
	InputType string    `json:"input_type"`
	Summary   string    `json:"summary"`
	Timestamp time.Time `json:"timestamp"`
}

// Store persists conversation history per session.
type Store interface {
	// Append records an exchange for the session.
	Append(ctx context.Context, sessionID string, ex Exchange) error
	// History returns at most limit exchanges, oldest first.
	History(ctx context.Context, sessionID string, limit int) ([]Exchange, error)
	// Clear removes the session's history.
	Clear(ctx context.Context, sessionID string) error
}

// Context renders recent history as a prompt fragment; "" when there is none.
func Context(ctx context.Context, store Store, sessionID string, limit int) (string, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	history, err := store.History(ctx, sessionID, limit)
	if err != nil {
		return "", err
	}
	return FormatContext(history), nil
}

// FormatContext renders exchanges as "Previous question / Previous answer" lines.
func FormatContext(history []Exchange) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	for i, ex := range history {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Previous question: %s\n", ex.Query)
		if ex.Summary != "" {
			fmt.Fprintf(&b, "Previous answer: %s\n", ex.Summary)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
