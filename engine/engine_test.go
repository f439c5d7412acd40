package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/becomeliminal/convctx/core"
	"github.com/becomeliminal/convctx/engine"
	"github.com/becomeliminal/convctx/memory"
	"github.com/becomeliminal/convctx/memory/cache/ristretto"
	"github.com/becomeliminal/convctx/memory/embedder/hashing"
	"github.com/becomeliminal/convctx/memory/store/chromem"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newMemory(t *testing.T) *memory.ConversationManager {
	t.Helper()
	cache, err := ristretto.New(ristretto.Config{})
	if err != nil {
		t.Fatalf("ristretto.New failed: %v", err)
	}
	index, err := chromem.New()
	if err != nil {
		t.Fatalf("chromem.New failed: %v", err)
	}
	m, err := memory.NewConversationManager(cache, index, hashing.New(), nil, memory.WithLogger(quiet))
	if err != nil {
		t.Fatalf("NewConversationManager failed: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

// recordingResponder echoes the message and remembers every request.
type recordingResponder struct {
	requests []engine.Request
	pending  bool
	err      error
}

func (r *recordingResponder) Respond(ctx context.Context, req engine.Request) (engine.Reply, error) {
	r.requests = append(r.requests, req)
	if r.err != nil {
		return engine.Reply{}, r.err
	}
	return engine.Reply{Text: "answer about " + req.Message, Pending: r.pending}, nil
}

func TestEngine_RecordsAndUsesContext(t *testing.T) {
	ctx := context.Background()
	mem := newMemory(t)
	resp := &recordingResponder{}
	classify := engine.ClassifierFunc(func(ctx context.Context, msg string) string {
		if strings.Contains(strings.ToLower(msg), "python") {
			return "programming_help"
		}
		return ""
	})
	e := engine.NewEngine(mem, resp, engine.WithClassifier(classify), engine.WithLogger(quiet))

	first, err := e.Handle(ctx, engine.Input{UserID: "alice", Username: "Alice", Message: "How do I write python functions?"})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if first.Type != engine.OutputComplete || first.ExchangeID == "" || first.ContextUsed {
		t.Fatalf("unexpected first output: %+v", first)
	}
	if first.Intent != "programming_help" {
		t.Errorf("expected classifier intent, got %q", first.Intent)
	}

	second, err := e.Handle(ctx, engine.Input{UserID: "alice", Message: "more on python functions"})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !second.ContextUsed {
		t.Fatalf("expected context on second turn, confidence %f", second.Confidence)
	}
	last := resp.requests[len(resp.requests)-1]
	if !strings.Contains(last.Context, "How do I write python functions?") {
		t.Errorf("responder did not receive history: %q", last.Context)
	}
	if last.Summary == "" {
		t.Error("expected summary with context")
	}

	recent := mem.ListRecent(ctx, "alice", 10)
	if len(recent) != 2 || !recent[0].ContextUsed || recent[1].ContextUsed {
		t.Errorf("context_used not recorded: %+v", recent)
	}
}

func TestEngine_ConfidenceGate(t *testing.T) {
	ctx := context.Background()
	mem := newMemory(t)
	resp := &recordingResponder{}
	e := engine.NewEngine(mem, resp, engine.WithLogger(quiet), engine.WithMinConfidence(1.1))

	e.Handle(ctx, engine.Input{UserID: "alice", Message: "python functions"})
	out, _ := e.Handle(ctx, engine.Input{UserID: "alice", Message: "python functions again"})
	if out.ContextUsed || resp.requests[1].Context != "" {
		t.Errorf("context passed below confidence threshold: %+v", out)
	}
	if out.Confidence == 0 {
		t.Error("expected a non-zero confidence to be reported")
	}
}

func TestEngine_ClearIntent(t *testing.T) {
	ctx := context.Background()
	mem := newMemory(t)
	resp := &recordingResponder{}
	e := engine.NewEngine(mem, resp, engine.WithLogger(quiet))

	e.Handle(ctx, engine.Input{UserID: "alice", Message: "python functions"})
	out, err := e.Handle(ctx, engine.Input{UserID: "alice", Message: "Please clear my conversation history"})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if out.Type != engine.OutputCleared || out.Text != engine.ClearedReply {
		t.Errorf("unexpected clear output: %+v", out)
	}
	if len(resp.requests) != 1 {
		t.Errorf("responder called for clear request")
	}
	if got := mem.GetContext(ctx, "alice", "python functions", true); len(got.Messages) != 0 {
		t.Error("history survived clear")
	}
}

func TestEngine_PendingAndComplete(t *testing.T) {
	ctx := context.Background()
	mem := newMemory(t)
	resp := &recordingResponder{pending: true}
	e := engine.NewEngine(mem, resp, engine.WithLogger(quiet))

	out, err := e.Handle(ctx, engine.Input{UserID: "alice", Message: "run the nightly report"})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if out.Type != engine.OutputPending {
		t.Fatalf("expected pending output, got %v", out.Type)
	}
	recent := mem.ListRecent(ctx, "alice", 1)
	if len(recent) != 1 || recent[0].Response != engine.PendingPlaceholder {
		t.Fatalf("expected placeholder response, got %+v", recent)
	}

	if err := e.Complete(ctx, "alice", out.ExchangeID, "report finished: 42 rows"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	recent = mem.ListRecent(ctx, "alice", 1)
	if recent[0].Response != "report finished: 42 rows" {
		t.Errorf("response not patched: %q", recent[0].Response)
	}

	if err := e.Complete(ctx, "alice", "unknown", "x"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEngine_ResponderError(t *testing.T) {
	ctx := context.Background()
	mem := newMemory(t)
	resp := &recordingResponder{err: errors.New("upstream timeout")}
	e := engine.NewEngine(mem, resp, engine.WithLogger(quiet))

	out, err := e.Handle(ctx, engine.Input{UserID: "alice", Message: "hello"})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if out.Type != engine.OutputError || out.Error == nil {
		t.Errorf("expected OutputError, got %+v", out)
	}
	if n := len(mem.ListRecent(ctx, "alice", 10)); n != 0 {
		t.Errorf("failed turn was recorded: %d exchanges", n)
	}
}

func TestEngine_RequiresUser(t *testing.T) {
	e := engine.NewEngine(newMemory(t), &recordingResponder{}, engine.WithLogger(quiet))
	if _, err := e.Handle(context.Background(), engine.Input{Message: "hi"}); err == nil {
		t.Error("expected error for missing user id")
	}
}

// clearFailingManager reports a clear failure and delegates everything else.
type clearFailingManager struct {
	memory.Manager
	err error
}

func (m clearFailingManager) ClearHistory(ctx context.Context, userID string) error {
	return m.err
}

func TestEngine_ClearFailures(t *testing.T) {
	ctx := context.Background()
	down := errors.New("down")

	partial := clearFailingManager{Manager: newMemory(t), err: &core.PartialClearError{UserID: "alice", IndexErr: down}}
	out, _ := engine.NewEngine(partial, &recordingResponder{}, engine.WithLogger(quiet)).
		Handle(ctx, engine.Input{UserID: "alice", Message: "start fresh"})
	if out.Type != engine.OutputCleared || out.Warning == "" {
		t.Errorf("partial clear should report cleared with warning: %+v", out)
	}

	total := clearFailingManager{Manager: newMemory(t), err: &core.PartialClearError{UserID: "alice", CacheErr: down, IndexErr: down}}
	out, _ = engine.NewEngine(total, &recordingResponder{}, engine.WithLogger(quiet)).
		Handle(ctx, engine.Input{UserID: "alice", Message: "start fresh"})
	if out.Type != engine.OutputError || !errors.Is(out.Error, down) {
		t.Errorf("total clear failure should be an error: %+v", out)
	}
}
