package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// exchangeNamespace scopes deterministic exchange ids.
var exchangeNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("conversation.bot"))

// Exchange is one user message and the assistant response to it.
// It is the unit stored in both the recency cache and the similarity index,
// keyed by ID in each.
type Exchange struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	UserMessage string    `json:"message"`
	Response    string    `json:"response"`
	Timestamp   time.Time `json:"timestamp"`
	Intent      string    `json:"intent,omitempty"`

	// Index-side metadata.
	Topics      []string `json:"topics,omitempty"`
	SessionID   string   `json:"session_id,omitempty"`
	Turn        int      `json:"turn"`
	ContextUsed bool     `json:"context_used"`

	// RelevanceScore is set during retrieval only and is never persisted.
	RelevanceScore float64 `json:"-"`
}

// NewExchangeID derives the stable id for an exchange from its owner and
// timestamp. The same inputs always produce the same id.
func NewExchangeID(userID string, ts time.Time) string {
	name := fmt.Sprintf("%s:%s", userID, ts.UTC().Format(time.RFC3339Nano))
	return uuid.NewSHA1(exchangeNamespace, []byte(name)).String()
}

// EmbeddingText is the text the similarity index embeds for this exchange.
func (e *Exchange) EmbeddingText() string {
	return fmt.Sprintf("User: %s\nBot: %s", e.UserMessage, e.Response)
}

// RelevanceText is the text the relevance filter embeds for this exchange.
func (e *Exchange) RelevanceText() string {
	return e.UserMessage + " " + e.Response
}

// Age returns how long ago the exchange happened relative to now.
func (e *Exchange) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}
