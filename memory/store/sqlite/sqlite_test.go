package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/becomeliminal/convctx/core"
	"github.com/becomeliminal/convctx/memory"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func point(owner, id string, intent string, vec ...float32) memory.Point {
	return memory.Point{
		ID:       id,
		OwnerID:  owner,
		Vector:   vec,
		Content:  "content " + id,
		Metadata: map[string]string{memory.MetaIntent: intent},
	}
}

func TestSearch(t *testing.T) {
	s := openStore(t, ":memory:")
	ctx := context.Background()

	must(t, s.Upsert(ctx, point("alice", "a1", "code", 1, 0, 0)))
	must(t, s.Upsert(ctx, point("alice", "a2", "chat", 0.8, 0.6, 0)))
	must(t, s.Upsert(ctx, point("alice", "a3", "code", 0, 0, 1)))
	must(t, s.Upsert(ctx, point("bob", "b1", "code", 1, 0, 0)))

	hits, err := s.Search(ctx, memory.Query{OwnerID: "alice", Vector: []float32{1, 0, 0}, Limit: 2})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 2 || hits[0].ID != "a1" || hits[1].ID != "a2" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
	if hits[0].Score < 0.999 {
		t.Errorf("expected score ~1, got %f", hits[0].Score)
	}

	hits, err = s.Search(ctx, memory.Query{OwnerID: "alice", Vector: []float32{1, 0, 0}, Limit: 10, MinScore: 0.5})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("expected a3 filtered by MinScore, got %d hits", len(hits))
	}

	hits, err = s.Search(ctx, memory.Query{
		OwnerID: "alice",
		Vector:  []float32{1, 0, 0},
		Limit:   10,
		Where:   map[string]string{memory.MetaIntent: "code"},
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 2 || hits[0].ID != "a1" || hits[1].ID != "a3" {
		t.Errorf("unexpected filtered hits: %+v", hits)
	}
	for _, h := range hits {
		if h.OwnerID != "alice" {
			t.Errorf("hit %s leaked from %s", h.ID, h.OwnerID)
		}
	}

	if _, err := s.Search(ctx, memory.Query{Vector: []float32{1}, Limit: 1}); !errors.Is(err, memory.ErrMissingOwner) {
		t.Errorf("expected ErrMissingOwner, got %v", err)
	}
}

func TestUpsertRetrieveDelete(t *testing.T) {
	s := openStore(t, ":memory:")
	ctx := context.Background()

	must(t, s.Upsert(ctx, point("alice", "a1", "x", 1, 2)))
	p := point("alice", "a1", "y", 3, 4)
	p.Content = "patched"
	must(t, s.Upsert(ctx, p))

	got, err := s.Retrieve(ctx, "alice", "a1")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if got.Content != "patched" || got.Metadata[memory.MetaIntent] != "y" {
		t.Errorf("upsert did not replace: %+v", got)
	}
	if got.Vector[0] != 3 || got.Vector[1] != 4 {
		t.Errorf("vector round trip failed: %v", got.Vector)
	}
	if got.Metadata[memory.MetaOwnerID] != "alice" {
		t.Errorf("owner metadata missing: %v", got.Metadata)
	}

	if _, err := s.Retrieve(ctx, "bob", "a1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	must(t, s.DeleteOwner(ctx, "alice"))
	list, err := s.List(ctx, "alice")
	if err != nil || len(list) != 0 {
		t.Errorf("List after delete = %v, %v", list, err)
	}
}

func TestDurableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	must(t, s.Upsert(ctx, point("alice", "a1", "x", 1, 0)))
	must(t, s.Close())

	reopened := openStore(t, path)
	list, err := reopened.List(ctx, "alice")
	if err != nil || len(list) != 1 || list[0].ID != "a1" {
		t.Errorf("List after reopen = %v, %v", list, err)
	}
}

func TestDecodeVectorRejectsTruncatedBlob(t *testing.T) {
	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for 3-byte blob")
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
