// Package annotate generates search metadata (tags, summary) for text
// chunks via an LLM collaborator.
package annotate

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// LLMProvider matches core.LLMProvider; declared locally so the package
// depends only on what it calls.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}

const tagSystemPrompt = `You extract topic tags from text. Reply with a single line ` +
	`containing a comma-separated list of short tags (1-3 words each, lowercase). ` +
	`Reply with an empty line if no tags apply. Do not add any other text.`

const summarySystemPromptFmt = `Summarize the text in its original language in at most %d characters. ` +
	`Optimize the summary for semantic search recall, not for human readability: ` +
	`prefer dense keywords and named entities over prose. Do not add any other text.`

// Annotator asks the completion collaborator for a tag list and a
// bounded summary per chunk. It performs no writes of its own.
type Annotator struct {
	llm LLMProvider
	log zerolog.Logger
}

func New(llm LLMProvider, log zerolog.Logger) *Annotator {
	return &Annotator{llm: llm, log: log.With().Str("component", "annotator").Logger()}
}

// Annotate returns the generated tags and summary for chunkText.
// Tag generation is best-effort: a failed or malformed completion
// degrades to an empty tag list. A summary failure is returned as an
// error because the summary is a required payload field.
func (a *Annotator) Annotate(ctx context.Context, chunkText string, maxSummaryChars int) ([]string, string, error) {
	if maxSummaryChars < 1 {
		return nil, "", fmt.Errorf("annotate: maxSummaryChars must be >= 1, got %d", maxSummaryChars)
	}

	tags := a.generateTags(ctx, chunkText)

	raw, err := a.llm.Generate(ctx, fmt.Sprintf(summarySystemPromptFmt, maxSummaryChars), chunkText)
	if err != nil {
		return nil, "", fmt.Errorf("annotate: summary generation: %w", err)
	}
	summary := truncate(strings.TrimSpace(raw), maxSummaryChars)

	return tags, summary, nil
}

func (a *Annotator) generateTags(ctx context.Context, chunkText string) []string {
	raw, err := a.llm.Generate(ctx, tagSystemPrompt, chunkText)
	if err != nil {
		a.log.Warn().Err(err).Msg("tag generation failed, continuing with empty tag list")
		return nil
	}
	return ParseTagList(raw)
}

// ParseTagList splits a comma-separated completion into trimmed tags.
// A multi-line response is treated as malformed and yields an empty
// list, as does an empty response.
func ParseTagList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, "\r\n") {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// truncate bounds s to max runes without splitting a rune.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
