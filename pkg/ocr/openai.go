package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ocrDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "gradeflow",
	Subsystem: "ocr",
	Name:      "vision_duration_seconds",
	Help:      "Duration of vision model transcription requests",
}, []string{"model"})

const transcriptionSchema = `{
  "type": "object",
  "required": ["status", "text"],
  "properties": {
    "status": {"enum": ["ok", "unreadable"]},
    "text": {"type": "string"}
  }
}`

var transcriptionValidator = jsonschema.MustCompileString("transcription.json", transcriptionSchema)

const transcriptionPrompt = "Transcribe the handwritten or printed answer sheet in the image exactly as written, " +
	"preserving question numbers, line breaks and mathematical notation. Do not correct mistakes. " +
	"Respond with a JSON object {\"status\": \"ok\" | \"unreadable\", \"text\": string}. " +
	"Use status unreadable only when nothing legible is present."

// OpenAIConfig configures the vision model extractor.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  zerolog.Logger
}

// OpenAIExtractor transcribes images with a vision-capable chat model.
type OpenAIExtractor struct {
	client *openai.Client
	model  string
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIExtractor builds the vision extractor.
func NewOpenAIExtractor(cfg OpenAIConfig) (*OpenAIExtractor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIExtractor{
		client: openai.NewClientWithConfig(config),
		model:  cfg.Model,
		tracer: otel.Tracer("github.com/pleastandby/major-project-sub000/pkg/ocr/openai"),
		logger: cfg.Logger.With().Str("component", "openai_ocr").Logger(),
	}, nil
}

// Extract asks the model to transcribe the image behind artifact.URL.
func (e *OpenAIExtractor) Extract(parent context.Context, artifact Artifact) (string, error) {
	ctx, span := e.tracer.Start(parent, "openai.transcribe", trace.WithAttributes(
		attribute.String("model", e.model),
		attribute.String("mime_type", artifact.MimeType),
	))
	defer span.End()

	if !strings.HasPrefix(artifact.MimeType, "image/") {
		err := fmt.Errorf("%w: %s", ErrUnsupportedMedia, artifact.MimeType)
		span.RecordError(err)
		span.SetStatus(codes.Error, "unsupported_media")
		return "", err
	}

	start := time.Now()
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: transcriptionPrompt},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
						URL:    artifact.URL,
						Detail: openai.ImageURLDetailHigh,
					}},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	ocrDuration.WithLabelValues(e.model).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transcription_failed")
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	if len(resp.Choices) == 0 {
		span.SetStatus(codes.Error, "empty_response")
		return "", fmt.Errorf("%w: no choices returned", ErrExtractionFailed)
	}

	text, err := parseTranscription(resp.Choices[0].Message.Content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unusable_transcription")
		e.logger.Warn().Err(err).Str("key", artifact.Key).Msg("vision model returned no usable transcription")
		return "", err
	}

	span.SetAttributes(attribute.Int("text_length", len(text)))
	return text, nil
}

func parseTranscription(content string) (string, error) {
	content = strings.TrimSpace(content)

	decoder := json.NewDecoder(bytes.NewReader([]byte(content)))
	decoder.UseNumber()
	var raw interface{}
	if err := decoder.Decode(&raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	if err := transcriptionValidator.Validate(raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	var payload struct {
		Status string `json:"status"`
		Text   string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	if payload.Status != "ok" {
		return "", fmt.Errorf("%w: artifact is unreadable", ErrExtractionFailed)
	}
	return strings.TrimSpace(payload.Text), nil
}
