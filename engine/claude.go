package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// DefaultClaudeSystemPrompt frames the conversation history for the model.
const DefaultClaudeSystemPrompt = "You are a helpful assistant. Use the conversation history when it is relevant to the user's message and ignore it otherwise."

// ClaudeConfig configures a ClaudeResponder.
type ClaudeConfig struct {
	// Model is the Claude model to use.
	Model string

	// MaxTokens is the maximum response tokens.
	MaxTokens int64

	SystemPrompt string
}

// ClaudeResponder answers with the Anthropic Messages API. The rendered
// history, summary and topics travel in the system prompt.
type ClaudeResponder struct {
	client       *anthropic.Client
	model        string
	maxTokens    int64
	systemPrompt string
}

// NewClaudeResponder creates a responder over an Anthropic client.
func NewClaudeResponder(client *anthropic.Client, cfg ClaudeConfig) *ClaudeResponder {
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultClaudeSystemPrompt
	}
	return &ClaudeResponder{
		client:       client,
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		systemPrompt: cfg.SystemPrompt,
	}
}

// Respond sends one user turn and joins the text blocks of the answer.
func (c *ClaudeResponder) Respond(ctx context.Context, req Request) (Reply, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: c.system(req)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Message)),
		},
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return Reply{}, fmt.Errorf("claude API error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return Reply{Text: text.String()}, nil
}

func (c *ClaudeResponder) system(req Request) string {
	if req.Context == "" {
		return c.systemPrompt
	}
	var b strings.Builder
	b.WriteString(c.systemPrompt)
	b.WriteString("\n\n")
	if req.Summary != "" {
		b.WriteString(req.Summary)
		b.WriteString("\n")
	}
	if len(req.Topics) > 0 {
		b.WriteString("Topics: ")
		b.WriteString(strings.Join(req.Topics, ", "))
		b.WriteString("\n")
	}
	b.WriteString(req.Context)
	return b.String()
}
