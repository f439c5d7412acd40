package memory

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/becomeliminal/convctx/core"
)

// Conversation patterns reported by DetectPatterns.
const (
	PatternRapid    = "rapid_conversation"
	PatternSporadic = "sporadic_conversation"
	PatternFocused  = "focused_topic"
	PatternDetailed = "detailed_messages"
	PatternBrief    = "brief_messages"
)

// Pattern thresholds.
const (
	rapidInterval    = 60 * time.Second
	sporadicInterval = time.Hour
	focusedShare     = 0.7
	detailedLength   = 100
	briefLength      = 20
)

// PatternStatistics are the figures behind a PatternReport.
type PatternStatistics struct {
	TotalMessages    int     `json:"total_messages"`
	AvgMessageLength float64 `json:"avg_message_length"`
	UniqueIntents    int     `json:"unique_intents"`
	SpanHours        float64 `json:"conversation_span_hours"`
}

// PatternReport describes conversational rhythm, focus and verbosity. It is
// descriptive only and never drives control flow.
type PatternReport struct {
	Patterns   []string          `json:"patterns"`
	Insights   []string          `json:"insights"`
	Statistics PatternStatistics `json:"statistics"`
}

// Has reports whether pattern was detected.
func (r *PatternReport) Has(pattern string) bool {
	for _, p := range r.Patterns {
		if p == pattern {
			return true
		}
	}
	return false
}

// DetectPatterns classifies messages, which must be oldest first.
func DetectPatterns(messages []*core.Exchange) *PatternReport {
	report := &PatternReport{Patterns: []string{}, Insights: []string{}}
	if len(messages) == 0 {
		return report
	}

	if len(messages) > 1 {
		span := messages[len(messages)-1].Timestamp.Sub(messages[0].Timestamp)
		mean := span / time.Duration(len(messages)-1)
		switch {
		case mean < rapidInterval:
			report.add(PatternRapid, "User is actively engaged in rapid conversation")
		case mean > sporadicInterval:
			report.add(PatternSporadic, "Conversation happens sporadically over time")
		}
		report.Statistics.SpanHours = span.Hours()
	}

	intents := make(map[string]bool)
	tagged := 0
	for _, m := range messages {
		if m.Intent != "" {
			intents[m.Intent] = true
			tagged++
		}
	}
	if intent, count := dominantIntent(messages); tagged > 0 && float64(count) > float64(tagged)*focusedShare {
		report.add(PatternFocused, fmt.Sprintf("Conversation is focused on %s", intent))
	}

	total := 0
	for _, m := range messages {
		total += utf8.RuneCountInString(m.UserMessage)
	}
	avg := float64(total) / float64(len(messages))
	switch {
	case avg > detailedLength:
		report.add(PatternDetailed, "User provides detailed, lengthy messages")
	case avg < briefLength:
		report.add(PatternBrief, "User prefers brief, concise messages")
	}

	report.Statistics.TotalMessages = len(messages)
	report.Statistics.AvgMessageLength = avg
	report.Statistics.UniqueIntents = len(intents)
	return report
}

func (r *PatternReport) add(pattern, insight string) {
	r.Patterns = append(r.Patterns, pattern)
	r.Insights = append(r.Insights, insight)
}
