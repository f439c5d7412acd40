package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/becomeliminal/convctx/core"
)

func TestDetectClearIntent(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"please clear our conversation", true},
		{"Delete my chat history", true},
		{"history clear now", true},
		{"forget everything", true},
		{"Reset the chat", true},
		{"clear all", true},
		{"let's start fresh", true},
		{"NEW CONVERSATION", true},
		{"remove the conversation log", true},
		{"what's the weather like?", false},
		{"clear the cache on my server", false},
		{"tell me a story about history", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := DetectClearIntent(tt.text); got != tt.want {
			t.Errorf("DetectClearIntent(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

// failingIndex is a VectorIndex whose every call fails.
type failingIndex struct{}

func (failingIndex) Upsert(ctx context.Context, p Point) error { return errBackendDown }
func (failingIndex) Search(ctx context.Context, q Query) ([]ScoredPoint, error) {
	return nil, errBackendDown
}
func (failingIndex) Retrieve(ctx context.Context, ownerID, id string) (*Point, error) {
	return nil, errBackendDown
}
func (failingIndex) DeleteOwner(ctx context.Context, ownerID string) error { return errBackendDown }
func (failingIndex) List(ctx context.Context, ownerID string) ([]Point, error) {
	return nil, errBackendDown
}
func (failingIndex) Close() error { return nil }

func TestLifecycle_PartialClear(t *testing.T) {
	ctx := context.Background()
	cache := newMapCache()
	recency := NewRecencyStore(cache, time.Hour, 50, discard)
	similarity := NewSimilarityIndex(failingIndex{}, wordEmbedder{dims: 32}, discard)
	l := NewLifecycle(recency, similarity, 50, discard)

	recency.Put(ctx, exchange("alice", 0, "hi", "hello"))

	err := l.Clear(ctx, "alice")
	var partial *core.PartialClearError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialClearError, got %v", err)
	}
	if partial.CacheErr != nil || partial.IndexErr == nil || partial.Total() {
		t.Errorf("expected only the index to fail: %+v", partial)
	}
	if !errors.Is(err, core.ErrStoreUnavailable) || !errors.Is(err, errBackendDown) {
		t.Errorf("expected tagged index error, got %v", err)
	}
	if n, _ := recency.Count(ctx, "alice"); n != 0 {
		t.Errorf("cache should be cleared despite index failure, %d left", n)
	}

	cache.err = errBackendDown
	err = l.Clear(ctx, "alice")
	if !errors.As(err, &partial) || !partial.Total() {
		t.Errorf("expected total failure, got %v", err)
	}
}

func TestLifecycle_TrimAll(t *testing.T) {
	ctx := context.Background()
	recency := NewRecencyStore(newMapCache(), time.Hour, 100, discard)
	l := NewLifecycle(recency, NewSimilarityIndex(nil, nil, discard), 5, discard)

	for _, user := range []string{"alice", "bob"} {
		for i := 0; i < 8; i++ {
			recency.Put(ctx, exchange(user, i, fmt.Sprintf("m%d", i), "r"))
		}
		l.Track(user)
	}
	recency.Put(ctx, exchange("carol", 0, "untracked", "r"))

	if removed := l.TrimAll(ctx); removed != 6 {
		t.Errorf("expected 6 evictions, got %d", removed)
	}
	for _, user := range []string{"alice", "bob"} {
		got := recency.ListRecent(ctx, user, -1)
		if len(got) != 5 || got[4].UserMessage != "m3" {
			t.Errorf("%s: expected newest 5 kept, got %d ending %q", user, len(got), got[len(got)-1].UserMessage)
		}
	}
}

func TestLifecycle_RunStopsOnCancel(t *testing.T) {
	recency := NewRecencyStore(newMapCache(), time.Hour, 100, discard)
	l := NewLifecycle(recency, NewSimilarityIndex(nil, nil, discard), 5, discard)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
