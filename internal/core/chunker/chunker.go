// Package chunker splits extracted document text into token-bounded
// chunks whose character offsets map back into the source text.
package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/memora-ai/memora/internal/models"
)

const defaultEncoding = "cl100k_base"

// ErrNotInitialized is returned when ChunkText is called before Setup.
var ErrNotInitialized = errors.New("chunker: not initialized, call Setup first")

// CountFunc measures the token length of a piece of text. The counter,
// not the chunker, defines what a token is.
type CountFunc func(text string) int

// Chunker greedily packs text units into chunks whose token count stays
// within a caller-supplied budget. Every chunk is a verbatim substring
// of the source text and consecutive chunks are separated by exactly
// one character, so offsets stay contiguous and non-overlapping.
type Chunker struct {
	count    CountFunc
	encoding string
}

func New() *Chunker {
	return &Chunker{}
}

// Setup binds a tiktoken encoding to the chunker. model may be an
// encoding name ("cl100k_base") or a model name ("gpt-4o"); unknown
// values fall back to the default encoding.
func (c *Chunker) Setup(model string) error {
	if model == "" {
		model = defaultEncoding
	}
	name := model
	tke, err := tiktoken.GetEncoding(model)
	if err != nil {
		tke, err = tiktoken.EncodingForModel(model)
		if err != nil {
			name = defaultEncoding
			tke, err = tiktoken.GetEncoding(defaultEncoding)
			if err != nil {
				return fmt.Errorf("chunker: get default encoding %q: %w", defaultEncoding, err)
			}
		}
	}
	c.encoding = name
	c.count = func(s string) int {
		return len(tke.Encode(s, nil, nil))
	}
	return nil
}

// SetCounter replaces the token counter. Mainly for tests and callers
// whose embedding model ships its own tokenizer.
func (c *Chunker) SetCounter(fn CountFunc) {
	c.count = fn
}

// Encoding reports the encoding bound by Setup, empty if a custom
// counter is in use.
func (c *Chunker) Encoding() string {
	return c.encoding
}

// unit is one indivisible piece of text plus its position in the source.
// Adjacent units are always exactly one separator character apart.
type unit struct {
	text  string
	start int
}

// ChunkText splits text into chunks of at most maxTokens tokens each.
// Units are lines; a line that alone exceeds the budget is split at
// word boundaries instead. Tokens inside a unit are never split. The
// result is a pure function of (maxTokens, text, counter).
func (c *Chunker) ChunkText(maxTokens int, text string) ([]models.Chunk, error) {
	if c.count == nil {
		return nil, ErrNotInitialized
	}
	if maxTokens < 1 {
		return nil, fmt.Errorf("chunker: maxTokens must be >= 1, got %d", maxTokens)
	}
	if text == "" {
		return nil, nil
	}

	units := c.splitUnits(maxTokens, text)

	var out []models.Chunk
	bufStart := -1 // start offset of the open chunk, -1 when none
	bufEnd := 0

	flush := func() {
		if bufStart < 0 {
			return
		}
		out = append(out, models.Chunk{
			Text:        text[bufStart:bufEnd],
			StartOffset: bufStart,
			EndOffset:   bufEnd,
		})
		bufStart = -1
	}

	for _, u := range units {
		if bufStart >= 0 {
			candidate := text[bufStart : u.start+len(u.text)]
			if c.count(candidate) > maxTokens && bufEnd > bufStart {
				flush()
			}
		}
		if bufStart < 0 {
			bufStart = u.start
		}
		bufEnd = u.start + len(u.text)
	}
	flush()

	return out, nil
}

// splitUnits breaks the text into lines, demoting any line whose own
// token count exceeds the budget to word granularity. Words within a
// line sit one space apart, lines one newline apart, so every unit
// boundary costs exactly one character.
func (c *Chunker) splitUnits(maxTokens int, text string) []unit {
	var units []unit
	pos := 0
	for _, line := range strings.Split(text, "\n") {
		if line != "" && c.count(line) > maxTokens {
			wpos := pos
			for _, w := range strings.Split(line, " ") {
				units = append(units, unit{text: w, start: wpos})
				wpos += len(w) + 1
			}
		} else {
			units = append(units, unit{text: line, start: pos})
		}
		pos += len(line) + 1
	}
	return units
}
