// Package ocr turns stored answer-sheet artifacts into plain text.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

var (
	// ErrExtractionFailed means the provider could not produce text for the artifact.
	ErrExtractionFailed = errors.New("text extraction failed")
	// ErrUnsupportedMedia means no extractor handles the artifact's media type.
	ErrUnsupportedMedia = errors.New("unsupported media type for extraction")
)

// Artifact is a stored file reachable through a resolvable URL.
type Artifact struct {
	Key      string
	URL      string
	MimeType string
}

// Extractor returns the text content of an artifact. An empty string is a valid result.
type Extractor interface {
	Extract(ctx context.Context, artifact Artifact) (string, error)
}

// MediaRouter is implemented by extractors that know up front which media types they can read.
type MediaRouter interface {
	Supports(mimeType string) bool
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, artifact Artifact) (string, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, artifact Artifact) (string, error) {
	return f(ctx, artifact)
}

func requestTimeout(ctx context.Context, fallback time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < fallback || fallback <= 0 {
			return remaining
		}
	}
	return fallback
}

func agentError(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// download fetches the artifact body through the fiber HTTP client.
func download(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("%w: artifact has no url", ErrExtractionFailed)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	agent := fiber.Get(url)
	agent.Timeout(requestTimeout(ctx, timeout))
	status, body, errs := agent.Bytes()
	if err := agentError(errs); err != nil {
		return nil, fmt.Errorf("%w: download artifact: %v", ErrExtractionFailed, err)
	}
	if status < fiber.StatusOK || status >= fiber.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: download artifact: status %d", ErrExtractionFailed, status)
	}
	return body, nil
}
