package memory

import (
	"math"
	"testing"
	"time"

	"github.com/becomeliminal/convctx/core"
)

func scored(n int, age time.Duration, relevance float64, intents ...string) []*core.Exchange {
	out := make([]*core.Exchange, n)
	for i := range out {
		ex := exchange("alice", i, "m", "r")
		ex.Timestamp = testEpoch.Add(-age)
		ex.RelevanceScore = relevance
		if len(intents) > 0 {
			ex.Intent = intents[i%len(intents)]
		}
		out[i] = ex
	}
	return out
}

func TestConfidence_Empty(t *testing.T) {
	if got := Confidence(nil, testEpoch, DefaultWeights); got != 0 {
		t.Errorf("expected 0 for empty context, got %f", got)
	}
}

func TestConfidence_Values(t *testing.T) {
	tests := []struct {
		name     string
		messages []*core.Exchange
		want     float64
	}{
		{"full signals", scored(10, 0, 1, "code", "code"), 0.2 + 0.3 + 0.4 + 0.1*0.9},
		{"no intents", scored(5, 0, 0), 0.2*0.5 + 0.3 + 0.1*0.5},
		{"stale", scored(10, 48*time.Hour, 0.5), 0.2 + 0.4*0.5 + 0.1*0.5},
		{"half day old", scored(10, 12*time.Hour, 0), 0.2 + 0.3*0.5 + 0.1*0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Confidence(tt.messages, testEpoch, DefaultWeights)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Confidence = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestConfidence_RangeAndMonotonicity(t *testing.T) {
	for n := 1; n <= 20; n++ {
		for _, rel := range []float64{-1, 0, 0.3, 1, 2} {
			got := Confidence(scored(n, time.Duration(n)*time.Hour, rel, "a", "b"), testEpoch, DefaultWeights)
			if got < 0 || got > 1 {
				t.Fatalf("confidence %f out of range (n=%d rel=%f)", got, n, rel)
			}
		}
	}

	low := Confidence(scored(5, time.Hour, 0.2), testEpoch, DefaultWeights)
	high := Confidence(scored(5, time.Hour, 0.8), testEpoch, DefaultWeights)
	if high <= low {
		t.Errorf("higher relevance should raise confidence: %f <= %f", high, low)
	}

	old := Confidence(scored(5, 20*time.Hour, 0.5), testEpoch, DefaultWeights)
	fresh := Confidence(scored(5, time.Minute, 0.5), testEpoch, DefaultWeights)
	if fresh <= old {
		t.Errorf("fresher context should raise confidence: %f <= %f", fresh, old)
	}
}

func TestWeights_Validate(t *testing.T) {
	if err := DefaultWeights.Validate(); err != nil {
		t.Errorf("default weights invalid: %v", err)
	}
	if err := (Weights{0.5, 0.5, 0.5, 0}).Validate(); err == nil {
		t.Error("expected error for weights summing to 1.5")
	}
	if err := (Weights{1.2, -0.2, 0, 0}).Validate(); err == nil {
		t.Error("expected error for negative weight")
	}
}
