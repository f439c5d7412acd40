package memory

import (
	"math"
	"time"

	"github.com/becomeliminal/convctx/core"
)

// ConfidenceSignals are the four normalized inputs of the confidence score.
type ConfidenceSignals struct {
	MessageCount      float64
	Recency           float64
	Relevance         float64
	IntentConsistency float64
}

// confidenceDecay is the age at which the recency signal reaches zero.
const confidenceDecay = 24 * time.Hour

// Signals computes the normalized confidence inputs for messages at now.
func Signals(messages []*core.Exchange, now time.Time) ConfidenceSignals {
	if len(messages) == 0 {
		return ConfidenceSignals{}
	}

	var totalAge time.Duration
	var totalRelevance float64
	intents := make(map[string]int)
	tagged := 0
	for _, m := range messages {
		totalAge += m.Age(now)
		totalRelevance += m.RelevanceScore
		if m.Intent != "" {
			intents[m.Intent]++
			tagged++
		}
	}
	n := float64(len(messages))

	s := ConfidenceSignals{
		MessageCount: math.Min(n/10, 1),
		Recency:      1 - float64(totalAge)/n/float64(confidenceDecay),
		Relevance:    totalRelevance / n,
	}
	if tagged > 0 {
		s.IntentConsistency = 1 - float64(len(intents))/float64(tagged)
	} else {
		// No intent information: neither focused nor scattered.
		s.IntentConsistency = 0.5
	}

	s.Recency = clamp01(s.Recency)
	s.Relevance = clamp01(s.Relevance)
	return s
}

// Score combines the signals with w. The result is within [0, 1] whenever
// w is valid.
func (s ConfidenceSignals) Score(w Weights) float64 {
	score := s.MessageCount*w.MessageCount +
		s.Recency*w.Recency +
		s.Relevance*w.Relevance +
		s.IntentConsistency*w.IntentConsistency
	return clamp01(score)
}

// Confidence scores how trustworthy messages are as context at now.
// Empty input scores exactly 0.
func Confidence(messages []*core.Exchange, now time.Time, w Weights) float64 {
	if len(messages) == 0 {
		return 0
	}
	return Signals(messages, now).Score(w)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
