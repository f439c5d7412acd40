package memory

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/becomeliminal/convctx/core"
)

// Chunk is an analysis window over consecutive exchanges. Chunks are rebuilt
// on demand and never stored.
type Chunk struct {
	ID        string
	Messages  []*core.Exchange
	StartTime time.Time
	EndTime   time.Time
	Keywords  []string
	Summary   string
}

// ContextBundle is what the routing and response layer consumes.
type ContextBundle struct {
	Text            string
	Summary         string
	Topics          []string
	Confidence      float64
	ChunksProcessed int
	MessageCount    int
	Messages        []*core.Exchange
	Patterns        *PatternReport
}

// noHistorySummary is the summary of an empty context.
const noHistorySummary = "No previous conversation history"

// chunkKeywordLimit caps keywords per chunk.
const chunkKeywordLimit = 10

// Processor derives chunks, topics, patterns and summaries from assembled
// context.
type Processor struct {
	assembler *Assembler
	extractor KeywordExtractor
	config    *Config
	now       func() time.Time
}

// NewProcessor creates a processor over assembler.
func NewProcessor(assembler *Assembler, extractor KeywordExtractor, config *Config, now func() time.Time) *Processor {
	if extractor == nil {
		extractor = HeuristicExtractor{}
	}
	if now == nil {
		now = time.Now
	}
	return &Processor{
		assembler: assembler,
		extractor: extractor,
		config:    config,
		now:       now,
	}
}

// Process assembles context for currentMessage, including similarity
// results, and wraps it with derived analysis. maxChars <= 0 uses the
// configured budget.
func (p *Processor) Process(ctx context.Context, userID, currentMessage string, maxChars int) *ContextBundle {
	assembled := p.assembler.Assemble(ctx, userID, currentMessage, AssembleOptions{
		MaxChars:          maxChars,
		IncludeSimilarity: true,
	})
	return p.Bundle(assembled)
}

// Bundle derives the analysis for an already assembled context.
func (p *Processor) Bundle(assembled *AssembledContext) *ContextBundle {
	if assembled.Empty() {
		return &ContextBundle{
			Summary:  noHistorySummary,
			Topics:   []string{},
			Messages: []*core.Exchange{},
			Patterns: DetectPatterns(nil),
		}
	}

	messages := assembled.Messages
	return &ContextBundle{
		Text:            assembled.Text,
		Summary:         Summarize(messages, p.now()),
		Topics:          p.Topics(messages),
		Confidence:      assembled.Confidence,
		ChunksProcessed: len(p.Chunks(messages)),
		MessageCount:    len(messages),
		Messages:        messages,
		Patterns:        DetectPatterns(messages),
	}
}

// Chunks partitions messages into windows of ChunkSize that overlap by
// ChunkOverlap.
func (p *Processor) Chunks(messages []*core.Exchange) []Chunk {
	if len(messages) == 0 {
		return nil
	}
	size := p.config.ChunkSize
	step := size - p.config.ChunkOverlap

	var chunks []Chunk
	for start := 0; start < len(messages); start += step {
		end := min(start+size, len(messages))
		window := messages[start:end]

		var text strings.Builder
		for _, m := range window {
			text.WriteString(m.RelevanceText())
			text.WriteByte(' ')
		}

		chunks = append(chunks, Chunk{
			ID:        fmt.Sprintf("chunk_%d_%d", start, len(window)),
			Messages:  window,
			StartTime: window[0].Timestamp,
			EndTime:   window[len(window)-1].Timestamp,
			Keywords:  p.extractor.Keywords(text.String(), chunkKeywordLimit),
			Summary:   summarizeChunk(window),
		})
		if end == len(messages) {
			break
		}
	}
	return chunks
}

// summarizeChunk names up to three substantial messages of a chunk.
func summarizeChunk(messages []*core.Exchange) string {
	var topics []string
	seen := make(map[string]bool)
	for _, m := range messages {
		if utf8.RuneCountInString(m.UserMessage) <= 20 {
			continue
		}
		head, _ := truncateRunes(m.UserMessage, 50)
		head += "..."
		if !seen[head] {
			seen[head] = true
			topics = append(topics, head)
		}
	}
	if len(topics) == 0 {
		return fmt.Sprintf("Conversation chunk with %d messages", len(messages))
	}
	if len(topics) > 3 {
		topics = topics[:3]
	}
	return "Discussion about: " + strings.Join(topics, ", ")
}

// Topics ranks intent tags and capitalized words across messages and
// returns the top TopicLimit.
func (p *Processor) Topics(messages []*core.Exchange) []string {
	var candidates []string
	for _, m := range messages {
		if m.Intent != "" {
			candidates = append(candidates, normalizeIntent(m.Intent))
		}
		candidates = append(candidates, p.extractor.CapitalizedWords(m.UserMessage)...)
	}
	topics := topByFrequency(candidates, p.config.TopicLimit)
	if topics == nil {
		return []string{}
	}
	return topics
}

// Summarize renders a one-sentence description of messages (oldest first).
func Summarize(messages []*core.Exchange, now time.Time) string {
	if len(messages) == 0 {
		return noHistorySummary
	}

	parts := []string{fmt.Sprintf("Conversation with %d messages", len(messages))}

	span := messages[len(messages)-1].Timestamp.Sub(messages[0].Timestamp)
	if span > time.Hour {
		hours := int(span / time.Hour)
		plural := "s"
		if hours == 1 {
			plural = ""
		}
		parts = append(parts, fmt.Sprintf("spanning %d hour%s", hours, plural))
	}

	if intent, _ := dominantIntent(messages); intent != "" {
		parts = append(parts, "mainly about "+normalizeIntent(intent))
	}

	recent := 0
	for _, m := range messages {
		if m.Age(now) < time.Hour {
			recent++
		}
	}
	if recent > 0 {
		parts = append(parts, fmt.Sprintf("with %d recent messages", recent))
	}

	return strings.Join(parts, ". ") + "."
}

// dominantIntent returns the most frequent non-empty intent and its count.
// Ties go to the intent seen first.
func dominantIntent(messages []*core.Exchange) (string, int) {
	counts := make(map[string]int)
	best, bestCount := "", 0
	for _, m := range messages {
		if m.Intent == "" {
			continue
		}
		counts[m.Intent]++
	}
	for _, m := range messages {
		if c := counts[m.Intent]; m.Intent != "" && c > bestCount {
			best, bestCount = m.Intent, c
		}
	}
	return best, bestCount
}
