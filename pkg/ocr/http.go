package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// HTTPExtractor delegates recognition to an external OCR service that
// answers with a {code, msg, data: {content}} envelope. code 0 means success.
type HTTPExtractor struct {
	endpoint string
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewHTTPExtractor constructs an extractor for the OCR service at endpoint.
func NewHTTPExtractor(endpoint string, timeout time.Duration, logger zerolog.Logger) (*HTTPExtractor, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("ocr service url must be provided")
	}
	return &HTTPExtractor{
		endpoint: strings.TrimRight(endpoint, "/"),
		timeout:  timeout,
		logger:   logger.With().Str("component", "http_ocr").Logger(),
	}, nil
}

type ocrRequest struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}

type ocrResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Content string `json:"content"`
	} `json:"data"`
}

// Extract posts the artifact URL to the OCR service.
func (e *HTTPExtractor) Extract(ctx context.Context, artifact Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	agent := fiber.Post(e.endpoint)
	agent.Timeout(requestTimeout(ctx, e.timeout))
	agent.JSON(ocrRequest{URL: artifact.URL, MimeType: artifact.MimeType})

	var payload ocrResponse
	status, _, errs := agent.Struct(&payload)
	if err := agentError(errs); err != nil {
		return "", fmt.Errorf("%w: ocr service: %v", ErrExtractionFailed, err)
	}
	if status < fiber.StatusOK || status >= fiber.StatusMultipleChoices {
		return "", fmt.Errorf("%w: ocr service status %d", ErrExtractionFailed, status)
	}
	if payload.Code != 0 {
		e.logger.Warn().Int("code", payload.Code).Str("msg", payload.Msg).Str("key", artifact.Key).Msg("ocr service rejected artifact")
		return "", fmt.Errorf("%w: ocr service code %d: %s", ErrExtractionFailed, payload.Code, payload.Msg)
	}

	return strings.TrimSpace(payload.Data.Content), nil
}
