package engine_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/becomeliminal/convctx/engine"
)

type messagesRequest struct {
	Model     string `json:"model"`
	MaxTokens int64  `json:"max_tokens"`
	System    []struct {
		Text string `json:"text"`
	} `json:"system"`
	Messages []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"messages"`
}

// fakeMessagesAPI serves canned Messages API answers and keeps the requests.
type fakeMessagesAPI struct {
	mu       sync.Mutex
	requests []messagesRequest
	status   int
}

func (f *fakeMessagesAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/messages" {
		http.NotFound(w, r)
		return
	}
	var req messagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if f.status != 0 {
		w.WriteHeader(f.status)
		w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"overloaded"}}`))
		return
	}
	w.Write([]byte(`{
		"id": "msg_01",
		"type": "message",
		"role": "assistant",
		"model": "` + req.Model + `",
		"content": [
			{"type": "text", "text": "Decorators wrap "},
			{"type": "text", "text": "functions."}
		],
		"stop_reason": "end_turn",
		"stop_sequence": null,
		"usage": {"input_tokens": 42, "output_tokens": 5}
	}`))
}

func newClaude(t *testing.T, api *fakeMessagesAPI, cfg engine.ClaudeConfig) *engine.ClaudeResponder {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	client := anthropic.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(srv.URL),
		option.WithMaxRetries(0),
	)
	return engine.NewClaudeResponder(&client, cfg)
}

func TestClaudeResponder_SendsHistoryInSystemPrompt(t *testing.T) {
	api := &fakeMessagesAPI{}
	r := newClaude(t, api, engine.ClaudeConfig{})

	reply, err := r.Respond(context.Background(), engine.Request{
		UserID:  "alice",
		Message: "What about decorators?",
		Context: "User: How do python functions work?\nAssistant: They are defined with def.",
		Summary: "Conversation about programming",
		Topics:  []string{"programming"},
	})
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if reply.Text != "Decorators wrap functions." {
		t.Errorf("unexpected reply %q", reply.Text)
	}

	if len(api.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(api.requests))
	}
	got := api.requests[0]
	if got.Model != "claude-sonnet-4-20250514" || got.MaxTokens != 4096 {
		t.Errorf("unexpected defaults: model=%q max_tokens=%d", got.Model, got.MaxTokens)
	}
	if len(got.System) != 1 {
		t.Fatalf("expected 1 system block, got %d", len(got.System))
	}
	system := got.System[0].Text
	for _, want := range []string{engine.DefaultClaudeSystemPrompt, "Conversation about programming", "Topics: programming", "How do python functions work?"} {
		if !strings.Contains(system, want) {
			t.Errorf("system prompt missing %q:\n%s", want, system)
		}
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}
	if len(got.Messages[0].Content) != 1 || got.Messages[0].Content[0].Text != "What about decorators?" {
		t.Errorf("unexpected user content: %+v", got.Messages[0].Content)
	}
}

func TestClaudeResponder_NoHistory(t *testing.T) {
	api := &fakeMessagesAPI{}
	r := newClaude(t, api, engine.ClaudeConfig{Model: "claude-3-5-haiku-latest", MaxTokens: 256, SystemPrompt: "Be brief."})

	if _, err := r.Respond(context.Background(), engine.Request{UserID: "alice", Message: "hi"}); err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	got := api.requests[0]
	if got.Model != "claude-3-5-haiku-latest" || got.MaxTokens != 256 {
		t.Errorf("config not applied: model=%q max_tokens=%d", got.Model, got.MaxTokens)
	}
	if got.System[0].Text != "Be brief." {
		t.Errorf("expected bare system prompt, got %q", got.System[0].Text)
	}
}

func TestClaudeResponder_APIError(t *testing.T) {
	api := &fakeMessagesAPI{status: http.StatusInternalServerError}
	r := newClaude(t, api, engine.ClaudeConfig{})

	_, err := r.Respond(context.Background(), engine.Request{UserID: "alice", Message: "hi"})
	if err == nil || !strings.Contains(err.Error(), "claude API error") {
		t.Fatalf("expected wrapped API error, got %v", err)
	}
}

func TestClaudeResponder_BehindEngine(t *testing.T) {
	api := &fakeMessagesAPI{}
	e := engine.NewEngine(newMemory(t), newClaude(t, api, engine.ClaudeConfig{}), engine.WithLogger(quiet))

	out, err := e.Handle(context.Background(), engine.Input{UserID: "alice", Message: "How do python functions work?"})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if out.Text != "Decorators wrap functions." {
		t.Errorf("unexpected output %q", out.Text)
	}
}
