package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/becomeliminal/convctx/core"
)

func TestRecencyStore_TrimKeepsNewest(t *testing.T) {
	ctx := context.Background()
	store := NewRecencyStore(newMapCache(), 7*24*time.Hour, 50, discard)

	for i := 0; i < 60; i++ {
		ex := exchange("alice", i, fmt.Sprintf("message %d", i), "ok")
		if err := store.Put(ctx, ex); err != nil {
			t.Fatalf("Put %d failed: %v", i, err)
		}
	}

	n, err := store.Count(ctx, "alice")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 50 {
		t.Fatalf("expected 50 cached exchanges, got %d", n)
	}

	all := store.ListRecent(ctx, "alice", -1)
	if all[0].UserMessage != "message 59" {
		t.Errorf("expected newest first, got %q", all[0].UserMessage)
	}
	if all[len(all)-1].UserMessage != "message 10" {
		t.Errorf("expected oldest kept to be message 10, got %q", all[len(all)-1].UserMessage)
	}

	recent := store.ListRecent(ctx, "alice", 20)
	if len(recent) != 20 {
		t.Errorf("expected 20 recent, got %d", len(recent))
	}
}

func TestRecencyStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := testEpoch
	cache := newMapCache()
	cache.now = func() time.Time { return now }
	store := NewRecencyStore(cache, 7*24*time.Hour, 50, discard)

	if err := store.Put(ctx, exchange("alice", 0, "hi", "hello")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	now = now.Add(6 * 24 * time.Hour)
	if err := store.Put(ctx, exchange("alice", 1, "again", "hello")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// The TTL is refreshed by the second write.
	now = now.Add(2 * 24 * time.Hour)
	if got := store.ListRecent(ctx, "alice", 20); len(got) != 2 {
		t.Fatalf("expected 2 exchanges within refreshed TTL, got %d", len(got))
	}

	now = now.Add(6 * 24 * time.Hour)
	got := store.ListRecent(ctx, "alice", 20)
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil result after expiry, got %v", got)
	}
}

func TestRecencyStore_Unavailable(t *testing.T) {
	ctx := context.Background()

	store := NewRecencyStore(nil, time.Hour, 50, discard)
	if err := store.Put(ctx, exchange("alice", 0, "hi", "hello")); !errors.Is(err, core.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
	if got := store.ListRecent(ctx, "alice", 10); len(got) != 0 {
		t.Errorf("expected no exchanges, got %d", len(got))
	}

	cache := newMapCache()
	cache.err = errBackendDown
	store = NewRecencyStore(cache, time.Hour, 50, discard)
	err := store.Put(ctx, exchange("alice", 0, "hi", "hello"))
	if !errors.Is(err, core.ErrStoreUnavailable) || !errors.Is(err, errBackendDown) {
		t.Errorf("expected tagged backend error, got %v", err)
	}
	if got := store.ListRecent(ctx, "alice", 10); len(got) != 0 {
		t.Errorf("expected no exchanges from failing cache, got %d", len(got))
	}
}

func TestRecencyStore_LegacyEntries(t *testing.T) {
	ctx := context.Background()
	cache := newMapCache()
	store := NewRecencyStore(cache, time.Hour, 50, discard)

	legacy := `{"user_id":"alice","message":"hi","bot_response":"hello there","timestamp":"2024-03-01T12:00:00Z"}`
	cache.HSet(ctx, recencyKey("alice"), "legacy-id", legacy)
	cache.HSet(ctx, recencyKey("alice"), "broken", "{not json")

	got := store.ListRecent(ctx, "alice", 10)
	if len(got) != 1 {
		t.Fatalf("expected 1 readable exchange, got %d", len(got))
	}
	if got[0].Response != "hello there" || got[0].ID != "legacy-id" {
		t.Errorf("unexpected legacy decode: %+v", got[0])
	}
}

func TestRecencyStore_GetAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewRecencyStore(newMapCache(), time.Hour, 50, discard)
	ex := exchange("alice", 0, "hi", "hello")
	store.Put(ctx, ex)

	got, err := store.Get(ctx, "alice", ex.ID)
	if err != nil || got.UserMessage != "hi" {
		t.Fatalf("Get = %+v, %v", got, err)
	}
	if _, err := store.Get(ctx, "alice", "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Get(ctx, "bob", ex.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound for other user, got %v", err)
	}

	if err := store.Delete(ctx, "alice"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n, _ := store.Count(ctx, "alice"); n != 0 {
		t.Errorf("expected 0 after delete, got %d", n)
	}
}
