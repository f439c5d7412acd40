package engine

import "context"

// Request is what the responder sees for one message.
type Request struct {
	UserID   string
	Username string
	Message  string
	Intent   string

	// Context is the rendered conversation history. Empty when there is no
	// history or its confidence is below the engine's threshold.
	Context string
	Summary string
	Topics  []string
}

// Reply is the responder's answer.
type Reply struct {
	Text string

	// Pending marks replies produced later by an automation step. Text is
	// an acknowledgement to show now; the final reply arrives via
	// Engine.Complete.
	Pending bool
}

// Responder produces replies. Reply generation lives outside this module.
type Responder interface {
	Respond(ctx context.Context, req Request) (Reply, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, req Request) (Reply, error)

func (f ResponderFunc) Respond(ctx context.Context, req Request) (Reply, error) {
	return f(ctx, req)
}

// IntentClassifier tags a message with a routing intent such as
// "programming_help". An empty string means unclassified.
type IntentClassifier interface {
	Classify(ctx context.Context, message string) string
}

// ClassifierFunc adapts a function to IntentClassifier.
type ClassifierFunc func(ctx context.Context, message string) string

func (f ClassifierFunc) Classify(ctx context.Context, message string) string {
	return f(ctx, message)
}
