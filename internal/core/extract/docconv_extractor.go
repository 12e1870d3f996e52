// Package extract pulls plain text and document metadata out of raw
// file bytes, dispatched by MIME type.
package extract

import (
	"bytes"
	"context"
	"fmt"

	"code.sajari.com/docconv"

	"github.com/memora-ai/memora/internal/core"
)

// DocconvExtractor implements core.DocumentExtractor using
// sajari/docconv, which handles PDF, DOCX, HTML, plain text and more.
type DocconvExtractor struct {
	useReadability bool
}

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

// Extract converts the document to plain text. The returned metadata
// comes straight from docconv and may include keys like Author and
// CreationDate depending on the format.
func (e *DocconvExtractor) Extract(ctx context.Context, data []byte, contentType string) (string, map[string]string, error) {
	res, err := docconv.Convert(bytes.NewReader(data), contentType, e.useReadability)
	if err != nil {
		return "", nil, fmt.Errorf("docconv: extract %s: %w", contentType, err)
	}
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	if res.Body == "" {
		return "", nil, fmt.Errorf("docconv: extracted empty text for content type %q", contentType)
	}
	return res.Body, res.Meta, nil
}
