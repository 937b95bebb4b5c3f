package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/pleastandby/major-project-sub000/internal/dto"
	"github.com/pleastandby/major-project-sub000/internal/events"
	"github.com/pleastandby/major-project-sub000/internal/models"
	"github.com/pleastandby/major-project-sub000/internal/observability"
	"github.com/pleastandby/major-project-sub000/internal/repository"
	"github.com/pleastandby/major-project-sub000/pkg/ai"
)

const gradeTolerance = 1e-9

// GradingService drives the AI grading, approval and override transitions.
type GradingService interface {
	RequestAIGrade(ctx context.Context, actor ActivityActor, submissionID uint) (dto.ReviewSubmissionResponse, error)
	Approve(ctx context.Context, actor ActivityActor, submissionID uint) (dto.ReviewSubmissionResponse, error)
	Override(ctx context.Context, actor ActivityActor, submissionID uint, payload dto.GradeOverrideRequest) (dto.ReviewSubmissionResponse, error)
}

// GradingServiceConfig bundles the collaborators of the grading service.
type GradingServiceConfig struct {
	Assignments repository.AssignmentRepository
	Submissions repository.SubmissionRepository
	Grader      ai.Grader
	Validator   *validator.Validate
	Activity    ActivityRecorder
	Hooks       PipelineHooks
	Timeout     time.Duration
	Logger      zerolog.Logger
}

type gradingService struct {
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	grader      ai.Grader
	validator   *validator.Validate
	activity    ActivityRecorder
	hooks       PipelineHooks
	timeout     time.Duration
	locks       *submissionLocks
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewGradingService constructs the grading service.
func NewGradingService(cfg GradingServiceConfig) GradingService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &gradingService{
		assignments: cfg.Assignments,
		submissions: cfg.Submissions,
		grader:      cfg.Grader,
		validator:   cfg.Validator,
		activity:    cfg.Activity,
		hooks:       cfg.Hooks,
		timeout:     timeout,
		locks:       newSubmissionLocks(),
		sanitizer:   bluemonday.UGCPolicy(),
		logger:      cfg.Logger.With().Str("component", "grading_service").Logger(),
		tracer:      otel.Tracer("github.com/pleastandby/major-project-sub000/internal/service/grading"),
		now:         time.Now,
	}
}

// RequestAIGrade runs the automated grader and fully replaces grade, feedback and analysis.
// Nothing is written when the grader fails or times out.
func (s *gradingService) RequestAIGrade(ctx context.Context, actor ActivityActor, submissionID uint) (dto.ReviewSubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grading.ai", trace.WithAttributes(
		attribute.Int64("grading.submission_id", int64(submissionID)),
		attribute.Int64("grading.actor_id", int64(actor.ID)),
	))
	defer span.End()

	if !s.locks.TryLock(submissionID) {
		span.SetStatus(codes.Error, "grading_in_progress")
		return dto.ReviewSubmissionResponse{}, ErrGradingInProgress
	}
	defer s.locks.Unlock(submissionID)

	submission, assignment, err := s.load(ctx, actor, submissionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup_failed")
		return dto.ReviewSubmissionResponse{}, err
	}

	if submission.OCRText == nil {
		span.SetStatus(codes.Error, "missing_extraction")
		return dto.ReviewSubmissionResponse{}, ErrMissingExtraction
	}
	next, err := nextState(submission.State, eventAIGrade)
	if err != nil {
		span.SetStatus(codes.Error, "invalid_transition")
		return dto.ReviewSubmissionResponse{}, err
	}

	maxScore := assignment.EffectiveMax()
	input := ai.GradeInput{
		Text: *submission.OCRText,
		Questions: lo.Map(assignment.Questions, func(q models.Question, _ int) ai.Question {
			return ai.Question{Text: q.QuestionText, Marks: q.Marks}
		}),
		MaxScore:      maxScore,
		ValuationMode: string(assignment.Mode()),
	}

	gradeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	result, err := s.grader.Grade(gradeCtx, input)
	timedOut := errors.Is(gradeCtx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		span.RecordError(err)
		if timedOut || errors.Is(err, context.DeadlineExceeded) {
			observability.PipelineFailures().WithLabelValues("ai_grade", "timeout").Inc()
			span.SetStatus(codes.Error, "grading_timeout")
			s.logger.Warn().Uint("submission_id", submissionID).Dur("timeout", s.timeout).Msg("ai grading timed out")
			return dto.ReviewSubmissionResponse{}, ErrGradingTimeout
		}
		observability.PipelineFailures().WithLabelValues("ai_grade", "provider").Inc()
		span.SetStatus(codes.Error, "grading_failed")
		s.logger.Warn().Err(err).Uint("submission_id", submissionID).Msg("ai grading failed")
		return dto.ReviewSubmissionResponse{}, fmt.Errorf("%w: %v", ErrGrading, err)
	}
	if math.IsNaN(result.Grade) || math.IsInf(result.Grade, 0) {
		observability.PipelineFailures().WithLabelValues("ai_grade", "malformed").Inc()
		span.SetStatus(codes.Error, "grading_malformed")
		return dto.ReviewSubmissionResponse{}, fmt.Errorf("%w: grade is not a finite number", ErrGrading)
	}

	grade := clampGrade(result.Grade, maxScore)
	if grade != result.Grade {
		observability.GradesClamped().Inc()
		s.logger.Warn().
			Uint("submission_id", submissionID).
			Float64("raw_grade", result.Grade).
			Float64("max_score", maxScore).
			Msg("ai grade outside range was clamped")
	}

	gradedAt := s.now().UTC()
	feedback := sanitizeMarkdown(s.sanitizer, result.Feedback)
	updated := submission
	updated.Grade = floatPtr(grade)
	updated.Feedback = stringPtr(feedback)
	updated.AIAnalysis = stringPtr(sanitizeMarkdown(s.sanitizer, result.Analysis))
	updated.GradingMode = stringPtr(models.GradingModeAI)
	updated.GradedBy = nil
	updated.GradedAt = &gradedAt
	updated.SetState(next)

	history := &models.SubmissionGradeHistory{
		Event:       models.GradeEventAIGraded,
		GradingMode: models.GradingModeAI,
		Score:       grade,
		Feedback:    feedback,
		GradedAt:    gradedAt,
	}
	if err := s.submissions.UpdateVersioned(ctx, &updated, history); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist_failed")
		return dto.ReviewSubmissionResponse{}, translateWriteError(err)
	}

	s.hooks.afterMutation(ctx, assignment.CourseID, updated, events.TypeAIGraded, actor.ID)
	span.SetAttributes(attribute.Float64("grading.score", grade))

	return dto.NewReviewSubmissionResponse(updated, maxScore), nil
}

// Approve publishes the AI grade. Re-approving a reviewed submission is a no-op.
func (s *gradingService) Approve(ctx context.Context, actor ActivityActor, submissionID uint) (dto.ReviewSubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grading.approve", trace.WithAttributes(
		attribute.Int64("grading.submission_id", int64(submissionID)),
		attribute.Int64("grading.actor_id", int64(actor.ID)),
	))
	defer span.End()

	submission, assignment, err := s.load(ctx, actor, submissionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup_failed")
		return dto.ReviewSubmissionResponse{}, err
	}
	maxScore := assignment.EffectiveMax()

	if submission.Grade == nil {
		span.SetStatus(codes.Error, "not_graded")
		return dto.ReviewSubmissionResponse{}, ErrNotGraded
	}
	next, err := nextState(submission.State, eventApprove)
	if err != nil {
		span.SetStatus(codes.Error, "invalid_transition")
		return dto.ReviewSubmissionResponse{}, err
	}
	if submission.State.Reviewed() {
		span.SetAttributes(attribute.Bool("grading.idempotent", true))
		return dto.NewReviewSubmissionResponse(submission, maxScore), nil
	}

	approvedAt := s.now().UTC()
	approver := actor.ID
	updated := submission
	updated.GradedBy = &approver
	updated.GradedAt = &approvedAt
	updated.SetState(next)

	history := &models.SubmissionGradeHistory{
		Event:       models.GradeEventApproved,
		GradingMode: lo.FromPtrOr(updated.GradingMode, models.GradingModeAI),
		Score:       *updated.Grade,
		Feedback:    lo.FromPtr(updated.Feedback),
		GradedBy:    &approver,
		GradedAt:    approvedAt,
	}
	if err := s.submissions.UpdateVersioned(ctx, &updated, history); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist_failed")
		return dto.ReviewSubmissionResponse{}, translateWriteError(err)
	}

	s.record(ctx, actor, "submission.approved", updated, map[string]interface{}{
		"grade": *updated.Grade,
	})
	s.hooks.afterMutation(ctx, assignment.CourseID, updated, events.TypeApproved, actor.ID)

	return dto.NewReviewSubmissionResponse(updated, maxScore), nil
}

// Override sets an instructor grade. It is allowed in every state and keeps the last AI analysis.
func (s *gradingService) Override(ctx context.Context, actor ActivityActor, submissionID uint, payload dto.GradeOverrideRequest) (dto.ReviewSubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grading.override", trace.WithAttributes(
		attribute.Int64("grading.submission_id", int64(submissionID)),
		attribute.Int64("grading.actor_id", int64(actor.ID)),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.ReviewSubmissionResponse{}, err
	}

	submission, assignment, err := s.load(ctx, actor, submissionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup_failed")
		return dto.ReviewSubmissionResponse{}, err
	}

	maxScore := assignment.EffectiveMax()
	grade := *payload.Grade
	if math.IsNaN(grade) || grade < 0 || grade > maxScore+gradeTolerance {
		span.SetStatus(codes.Error, "grade_out_of_range")
		return dto.ReviewSubmissionResponse{}, fmt.Errorf("%w: %g is not within [0, %g]", ErrOutOfRangeGrade, grade, maxScore)
	}

	next, err := nextState(submission.State, eventOverride)
	if err != nil {
		return dto.ReviewSubmissionResponse{}, err
	}

	feedback := strings.TrimSpace(payload.Feedback)
	if sanitizeMarkdown(s.sanitizer, feedback) != feedback {
		span.SetStatus(codes.Error, "unsafe_feedback")
		return dto.ReviewSubmissionResponse{}, ErrUnsafeFeedback
	}

	gradedAt := s.now().UTC()
	grader := actor.ID
	previous := submission.Grade

	updated := submission
	updated.Grade = floatPtr(grade)
	updated.Feedback = nil
	if feedback != "" {
		updated.Feedback = stringPtr(feedback)
	}
	updated.GradingMode = stringPtr(models.GradingModeManual)
	updated.GradedBy = &grader
	updated.GradedAt = &gradedAt
	updated.SetState(next)

	history := &models.SubmissionGradeHistory{
		Event:       models.GradeEventOverridden,
		GradingMode: models.GradingModeManual,
		Score:       grade,
		Feedback:    feedback,
		GradedBy:    &grader,
		GradedAt:    gradedAt,
	}
	if err := s.submissions.UpdateVersioned(ctx, &updated, history); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist_failed")
		return dto.ReviewSubmissionResponse{}, translateWriteError(err)
	}

	metadata := map[string]interface{}{"grade": grade}
	if previous != nil {
		metadata["previous_grade"] = *previous
	}
	s.record(ctx, actor, "submission.overridden", updated, metadata)
	s.hooks.afterMutation(ctx, assignment.CourseID, updated, events.TypeOverridden, actor.ID)
	span.SetAttributes(attribute.Float64("grading.score", grade))

	return dto.NewReviewSubmissionResponse(updated, maxScore), nil
}

// load reads the submission and its assignment once and checks the actor reviews the course.
func (s *gradingService) load(ctx context.Context, actor ActivityActor, submissionID uint) (models.Submission, models.Assignment, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, models.Assignment{}, ErrSubmissionNotFound
		}
		return models.Submission{}, models.Assignment{}, err
	}

	assignment, err := s.assignments.GetByID(ctx, submission.AssignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Submission{}, models.Assignment{}, err
	}

	if !actor.CanReview(assignment.Course) {
		return models.Submission{}, models.Assignment{}, ErrForbidden
	}

	return submission, assignment, nil
}

func (s *gradingService) record(ctx context.Context, actor ActivityActor, action string, submission models.Submission, metadata map[string]interface{}) {
	if s.activity == nil {
		return
	}
	metadata["assignment_id"] = submission.AssignmentID
	metadata["student_id"] = submission.StudentID
	if _, err := s.activity.Record(ctx, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: "submission",
		EntityID:   &submission.ID,
		Metadata:   metadata,
	}); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("failed to record activity")
	}
}

func clampGrade(grade, maxScore float64) float64 {
	if grade < 0 {
		return 0
	}
	if grade > maxScore {
		return maxScore
	}
	return grade
}
