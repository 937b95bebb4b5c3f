package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
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

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gradeflow",
		Subsystem: "ai",
		Name:      "grading_duration_seconds",
		Help:      "Duration of AI grading requests",
	}, []string{"model"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gradeflow",
		Subsystem: "ai",
		Name:      "grading_failures_total",
		Help:      "Number of AI grading failures",
	}, []string{"model"})
)

const gradeResponseSchema = `{
  "type": "object",
  "required": ["grade", "feedback", "analysis"],
  "properties": {
    "grade": {"type": "number"},
    "feedback": {"type": "string"},
    "analysis": {"type": "string"}
  }
}`

var gradeSchema = jsonschema.MustCompileString("grade_response.json", gradeResponseSchema)

// OpenAIConfig defines configuration options for the OpenAI grader.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIGrader implements Grader against the OpenAI chat completion API.
type OpenAIGrader struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIGrader builds a new grader using the provided configuration.
func NewOpenAIGrader(cfg OpenAIConfig) (*OpenAIGrader, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIGrader{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/pleastandby/major-project-sub000/pkg/ai/openai"),
		logger: cfg.Logger.With().Str("component", "openai_grader").Logger(),
	}, nil
}

// Grade sends the extracted text and rubric to OpenAI and parses the verdict.
func (g *OpenAIGrader) Grade(parent context.Context, input GradeInput) (GradeResult, error) {
	ctx, span := g.tracer.Start(parent, "openai.grade", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
		attribute.String("valuation_mode", input.ValuationMode),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: graderSystemPrompt(input.ValuationMode),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildUserPrompt(input),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := g.client.CreateChatCompletion(ctx, request)
	aiDuration.WithLabelValues(g.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		aiFailures.WithLabelValues(g.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return GradeResult{}, fmt.Errorf("openai grade: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("%w: no choices returned", ErrMalformedResponse)
		aiFailures.WithLabelValues(g.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return GradeResult{}, err
	}

	result, err := ParseGradeResponse(resp.Choices[0].Message.Content)
	if err != nil {
		aiFailures.WithLabelValues(g.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Warn().Err(err).Msg("grader returned an unusable answer")
		return GradeResult{}, err
	}

	span.SetAttributes(attribute.Float64("grade", result.Grade))
	return result, nil
}

func graderSystemPrompt(mode string) string {
	base := "You are an examiner grading a student's handwritten answer sheet that was transcribed by OCR. " +
		"Respond with a JSON object with the keys grade (number), feedback (markdown addressed to the student) " +
		"and analysis (notes for the instructor explaining how marks were awarded per question). "
	if strings.EqualFold(mode, ValuationLiberal) {
		return base + "Grade liberally: award partial marks for correct reasoning even when the final answer is wrong, " +
			"and tolerate notation slips or OCR noise."
	}
	return base + "Grade strictly: award marks only for complete and correct answers, and do not give credit for " +
		"ambiguous or incomplete steps."
}

func buildUserPrompt(input GradeInput) string {
	builder := strings.Builder{}
	builder.WriteString("# Rubric\n")
	if len(input.Questions) == 0 {
		builder.WriteString("No per-question breakdown was provided. Grade the answer as a whole.\n")
	}
	for i, question := range input.Questions {
		fmt.Fprintf(&builder, "%d. %s (%g marks)\n", i+1, strings.TrimSpace(question.Text), question.Marks)
	}
	fmt.Fprintf(&builder, "\nMaximum score: %g. The grade must be between 0 and %g.\n", input.MaxScore, input.MaxScore)
	builder.WriteString("\n# Student answer\n")
	builder.WriteString(input.Text)
	builder.WriteString("\n\nReturn JSON.")
	return builder.String()
}

// ParseGradeResponse validates the model answer against the grading schema.
func ParseGradeResponse(content string) (GradeResult, error) {
	content = strings.TrimSpace(content)

	decoder := json.NewDecoder(bytes.NewReader([]byte(content)))
	decoder.UseNumber()
	var raw interface{}
	if err := decoder.Decode(&raw); err != nil {
		return GradeResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := gradeSchema.Validate(raw); err != nil {
		return GradeResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var payload struct {
		Grade    float64 `json:"grade"`
		Feedback string  `json:"feedback"`
		Analysis string  `json:"analysis"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return GradeResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if math.IsNaN(payload.Grade) || math.IsInf(payload.Grade, 0) {
		return GradeResult{}, fmt.Errorf("%w: grade is not a finite number", ErrMalformedResponse)
	}

	return GradeResult{
		Grade:    payload.Grade,
		Feedback: strings.TrimSpace(payload.Feedback),
		Analysis: strings.TrimSpace(payload.Analysis),
	}, nil
}
