package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/becomeliminal/convctx/core"
)

// ExportFormat selects the Export encoding.
type ExportFormat string

const (
	ExportJSON  ExportFormat = "json"
	ExportJSONL ExportFormat = "jsonl"
)

// Analytics aggregates a user's indexed exchanges.
type Analytics struct {
	UserID             string         `json:"user_id"`
	TotalConversations int            `json:"total_conversations"`
	UniqueSessions     int            `json:"unique_sessions"`
	AvgMessageLength   float64        `json:"average_message_length"`
	AvgResponseLength  float64        `json:"average_response_length"`
	IntentDistribution map[string]int `json:"intent_distribution"`
	TopicDistribution  map[string]int `json:"topic_distribution"`
	MultiTurnCount     int            `json:"multi_turn_conversations"`
	ContextUsedCount   int            `json:"context_used_count"`
	Since              *time.Time     `json:"since,omitempty"`
}

// ExchangeFilter narrows QueryExchanges. Zero fields match everything.
type ExchangeFilter struct {
	Intent    string
	Topic     string
	SessionID string
	Since     time.Time
	Limit     int
}

func (f ExchangeFilter) match(ex *core.Exchange) bool {
	if f.Intent != "" && ex.Intent != f.Intent {
		return false
	}
	if f.SessionID != "" && ex.SessionID != f.SessionID {
		return false
	}
	if !f.Since.IsZero() && ex.Timestamp.Before(f.Since) {
		return false
	}
	if f.Topic != "" {
		for _, t := range ex.Topics {
			if t == f.Topic {
				return true
			}
		}
		return false
	}
	return true
}

// QueryExchanges lists the user's indexed exchanges matching filter, oldest
// first. It fails only when the index is unavailable.
func (m *ConversationManager) QueryExchanges(ctx context.Context, userID string, filter ExchangeFilter) ([]*core.Exchange, error) {
	all, err := m.similarity.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*core.Exchange, 0, len(all))
	for _, ex := range all {
		if filter.match(ex) {
			out = append(out, ex)
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, nil
}

// Analytics aggregates the user's exchanges since the given time (zero for
// all of them).
func (m *ConversationManager) Analytics(ctx context.Context, userID string, since time.Time) (*Analytics, error) {
	exchanges, err := m.QueryExchanges(ctx, userID, ExchangeFilter{Since: since})
	if err != nil {
		return nil, err
	}

	a := &Analytics{
		UserID:             userID,
		TotalConversations: len(exchanges),
		IntentDistribution: map[string]int{},
		TopicDistribution:  map[string]int{},
	}
	if !since.IsZero() {
		a.Since = &since
	}
	if len(exchanges) == 0 {
		return a, nil
	}

	sessions := make(map[string]bool)
	var msgLen, respLen int
	for _, ex := range exchanges {
		sessions[ex.SessionID] = true
		msgLen += utf8.RuneCountInString(ex.UserMessage)
		respLen += utf8.RuneCountInString(ex.Response)
		if ex.Intent != "" {
			a.IntentDistribution[ex.Intent]++
		}
		for _, t := range ex.Topics {
			a.TopicDistribution[t]++
		}
		if ex.Turn > 0 {
			a.MultiTurnCount++
		}
		if ex.ContextUsed {
			a.ContextUsedCount++
		}
	}
	n := float64(len(exchanges))
	a.UniqueSessions = len(sessions)
	a.AvgMessageLength = float64(msgLen) / n
	a.AvgResponseLength = float64(respLen) / n
	return a, nil
}

// Export writes the user's indexed exchanges, oldest first.
func (m *ConversationManager) Export(ctx context.Context, userID string, w io.Writer, format ExportFormat) error {
	exchanges, err := m.QueryExchanges(ctx, userID, ExchangeFilter{})
	if err != nil {
		return fmt.Errorf("export %s: %w", userID, err)
	}

	switch format {
	case ExportJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(exchanges); err != nil {
			return fmt.Errorf("export %s: %w", userID, err)
		}
	case ExportJSONL:
		enc := json.NewEncoder(w)
		for _, ex := range exchanges {
			if err := enc.Encode(ex); err != nil {
				return fmt.Errorf("export %s: %w", userID, err)
			}
		}
	default:
		return fmt.Errorf("export: unsupported format %q", format)
	}
	return nil
}
