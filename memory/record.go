package memory

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/becomeliminal/convctx/core"
)

// exchangePoint converts an exchange and its vector to an index point.
// The full exchange travels as JSON content; the metadata copies the fields
// that queries filter on.
func exchangePoint(ex *core.Exchange, vector []float32) (Point, error) {
	content, err := json.Marshal(ex)
	if err != nil {
		return Point{}, fmt.Errorf("marshal exchange: %w", err)
	}

	metadata := map[string]string{
		MetaOwnerID:     ex.UserID,
		MetaExchangeID:  ex.ID,
		MetaTimestamp:   ex.Timestamp.UTC().Format(time.RFC3339Nano),
		MetaTurn:        strconv.Itoa(ex.Turn),
		MetaContextUsed: strconv.FormatBool(ex.ContextUsed),
	}
	if ex.Intent != "" {
		metadata[MetaIntent] = ex.Intent
	}
	if ex.SessionID != "" {
		metadata[MetaSessionID] = ex.SessionID
	}
	if len(ex.Topics) > 0 {
		metadata[MetaTopics] = strings.Join(ex.Topics, ",")
	}

	return Point{
		ID:       ex.ID,
		OwnerID:  ex.UserID,
		Vector:   vector,
		Content:  string(content),
		Metadata: metadata,
	}, nil
}

// exchangeFromPoint restores an exchange from an index point.
func exchangeFromPoint(p *Point) (*core.Exchange, error) {
	var ex core.Exchange
	if err := json.Unmarshal([]byte(p.Content), &ex); err != nil {
		return nil, fmt.Errorf("unmarshal exchange %s: %w", p.ID, err)
	}
	if ex.ID == "" {
		ex.ID = p.ID
	}
	if ex.UserID == "" {
		ex.UserID = p.OwnerID
	}
	return &ex, nil
}

// encodeExchange serializes an exchange for a cache hash field.
func encodeExchange(ex *core.Exchange) (string, error) {
	b, err := json.Marshal(ex)
	if err != nil {
		return "", fmt.Errorf("marshal exchange: %w", err)
	}
	return string(b), nil
}

// decodeExchange parses a cache hash field. Older entries stored the reply
// under "bot_response"; both keys are accepted.
func decodeExchange(field, value string) (*core.Exchange, error) {
	var ex core.Exchange
	if err := json.Unmarshal([]byte(value), &ex); err != nil {
		return nil, fmt.Errorf("unmarshal exchange %s: %w", field, err)
	}
	if ex.Response == "" {
		var legacy struct {
			BotResponse string `json:"bot_response"`
		}
		if err := json.Unmarshal([]byte(value), &legacy); err == nil {
			ex.Response = legacy.BotResponse
		}
	}
	if ex.ID == "" {
		ex.ID = field
	}
	return &ex, nil
}

// truncateLog truncates text for logging.
func truncateLog(s string, maxLen int) string {
	head, cut := truncateRunes(s, maxLen)
	if !cut {
		return s
	}
	return head + "..."
}

// truncateRunes returns the first n characters of s and whether anything
// was dropped.
func truncateRunes(s string, n int) (string, bool) {
	if utf8.RuneCountInString(s) <= n {
		return s, false
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], true
		}
		i++
	}
	return s, false
}
