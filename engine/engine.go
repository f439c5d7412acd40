package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/becomeliminal/convctx/core"
	"github.com/becomeliminal/convctx/memory"
)

// PendingPlaceholder is recorded as the response of an exchange whose reply
// will be produced later and patched in with Complete.
const PendingPlaceholder = "(pending)"

var tracer = otel.Tracer("github.com/becomeliminal/convctx/engine")

// Engine handles one user message at a time: it short-circuits history
// wipes, looks up conversation context, calls the responder and records the
// exchange.
type Engine struct {
	memory        memory.Manager
	responder     Responder
	classifier    IntentClassifier // Optional: tags exchanges with an intent
	minConfidence float64
	logger        *slog.Logger
}

// Option configures the engine.
type Option func(*Engine)

// WithClassifier sets the intent classifier.
func WithClassifier(c IntentClassifier) Option {
	return func(e *Engine) {
		e.classifier = c
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMinConfidence sets the confidence a context needs before it is passed
// to the responder. Default: 0.3.
func WithMinConfidence(c float64) Option {
	return func(e *Engine) {
		e.minConfidence = c
	}
}

// NewEngine creates a new engine over the memory manager and responder.
func NewEngine(m memory.Manager, r Responder, opts ...Option) *Engine {
	e := &Engine{
		memory:        m,
		responder:     r,
		minConfidence: memory.DefaultConfig().MinConfidence,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "engine")
	return e
}

// Input is one incoming message.
type Input struct {
	UserID   string
	Username string
	Message  string
}

// Output is the result of handling a message.
type Output struct {
	// Type indicates the kind of output.
	Type OutputType

	// Text is the reply to deliver.
	Text string

	// ExchangeID is the id of the recorded exchange. Empty for clears,
	// errors and unrecorded replies.
	ExchangeID string

	// Intent is the classifier's tag, if any.
	Intent string

	// ContextUsed reports whether history was passed to the responder.
	ContextUsed bool

	// Confidence is the confidence of the assembled context.
	Confidence float64

	// Warning is set when the turn succeeded with a degraded side effect,
	// such as a partial history wipe or a failed recording.
	Warning string

	// Error is set when Type is OutputError.
	Error error
}

// OutputType indicates the kind of output.
type OutputType int

const (
	// OutputComplete indicates the reply is final.
	OutputComplete OutputType = iota

	// OutputCleared indicates the message was a history wipe request.
	OutputCleared

	// OutputPending indicates the reply will arrive later through Complete.
	OutputPending

	// OutputError indicates the responder failed.
	OutputError
)

func (t OutputType) String() string {
	switch t {
	case OutputComplete:
		return "complete"
	case OutputCleared:
		return "cleared"
	case OutputPending:
		return "pending"
	case OutputError:
		return "error"
	default:
		return fmt.Sprintf("OutputType(%d)", int(t))
	}
}

// ClearedReply is the text returned after a successful history wipe.
const ClearedReply = "Your conversation history has been cleared."

// Handle processes one message.
func (e *Engine) Handle(ctx context.Context, in Input) (*Output, error) {
	if in.UserID == "" {
		return nil, errors.New("handle: user id is required")
	}

	ctx, span := tracer.Start(ctx, "engine.Handle")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", in.UserID))

	if e.memory.DetectClearIntent(in.Message) {
		return e.clear(ctx, in), nil
	}

	var intent string
	if e.classifier != nil {
		intent = e.classifier.Classify(ctx, in.Message)
	}

	bundle := e.memory.ProcessContext(ctx, in.UserID, in.Message, 0)
	req := Request{
		UserID:   in.UserID,
		Username: in.Username,
		Message:  in.Message,
		Intent:   intent,
	}
	if bundle.Confidence >= e.minConfidence && bundle.Text != "" {
		req.Context = bundle.Text
		req.Summary = bundle.Summary
		req.Topics = bundle.Topics
	}
	span.SetAttributes(
		attribute.Float64("confidence", bundle.Confidence),
		attribute.Int("context.messages", bundle.MessageCount),
		attribute.Bool("context.used", req.Context != ""),
	)

	reply, err := e.responder.Respond(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "responder failed")
		e.logger.Warn("responder failed", "user_id", in.UserID, "error", err)
		return &Output{
			Type:       OutputError,
			Intent:     intent,
			Confidence: bundle.Confidence,
			Error:      fmt.Errorf("respond: %w", err),
		}, nil
	}

	out := &Output{
		Type:        OutputComplete,
		Text:        reply.Text,
		Intent:      intent,
		ContextUsed: req.Context != "",
		Confidence:  bundle.Confidence,
	}
	response := reply.Text
	if reply.Pending {
		out.Type = OutputPending
		response = PendingPlaceholder
	}

	id, err := e.memory.AddExchange(ctx, memory.ExchangeInput{
		UserID:      in.UserID,
		Username:    in.Username,
		UserMessage: in.Message,
		Response:    response,
		Intent:      intent,
		ContextUsed: out.ContextUsed,
	})
	if err != nil {
		e.logger.Warn("exchange not recorded", "user_id", in.UserID, "error", err)
		out.Warning = "exchange not recorded: " + err.Error()
		return out, nil
	}
	out.ExchangeID = id
	e.logger.Debug("handled message",
		"user_id", in.UserID,
		"exchange_id", id,
		"type", out.Type.String(),
		"context_used", out.ContextUsed)
	return out, nil
}

func (e *Engine) clear(ctx context.Context, in Input) *Output {
	out := &Output{Type: OutputCleared, Text: ClearedReply}
	err := e.memory.ClearHistory(ctx, in.UserID)
	if err == nil {
		return out
	}

	var partial *core.PartialClearError
	if errors.As(err, &partial) && !partial.Total() {
		out.Warning = err.Error()
		return out
	}
	e.logger.Warn("history clear failed", "user_id", in.UserID, "error", err)
	return &Output{
		Type:  OutputError,
		Text:  "Sorry, I couldn't clear your conversation history.",
		Error: err,
	}
}

// Complete stores the final reply of a pending exchange.
func (e *Engine) Complete(ctx context.Context, userID, exchangeID, response string) error {
	if err := e.memory.PatchResponse(ctx, exchangeID, userID, response); err != nil {
		return fmt.Errorf("complete %s: %w", exchangeID, err)
	}
	return nil
}
