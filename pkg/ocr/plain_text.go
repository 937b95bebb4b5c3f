package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// PlainTextExtractor reads digital text submissions directly.
type PlainTextExtractor struct {
	Timeout time.Duration
}

// Extract downloads the artifact and returns its text.
func (e PlainTextExtractor) Extract(ctx context.Context, artifact Artifact) (string, error) {
	body, err := download(ctx, artifact.URL, e.Timeout)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(body) {
		return "", fmt.Errorf("%w: text artifact is not valid utf-8", ErrExtractionFailed)
	}
	return strings.TrimSpace(string(body)), nil
}
