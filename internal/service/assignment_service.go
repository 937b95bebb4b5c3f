package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/pleastandby/major-project-sub000/internal/dto"
	"github.com/pleastandby/major-project-sub000/internal/models"
	"github.com/pleastandby/major-project-sub000/internal/repository"
)

// AssignmentService exposes assignment use cases needed by the grading pipeline.
type AssignmentService interface {
	Get(ctx context.Context, id uint) (dto.AssignmentResponse, error)
	Create(ctx context.Context, actor ActivityActor, payload dto.AssignmentCreateRequest) (dto.AssignmentResponse, error)
	UpdateValuationMode(ctx context.Context, actor ActivityActor, id uint, payload dto.ValuationModeUpdateRequest) (dto.AssignmentResponse, error)
}

type assignmentService struct {
	repo      repository.AssignmentRepository
	courses   repository.CourseRepository
	validator *validator.Validate
	activity  ActivityRecorder
	cache     ReviewCache
	logger    zerolog.Logger
}

// NewAssignmentService builds a new assignment service. reviewCache may be nil.
func NewAssignmentService(repo repository.AssignmentRepository, courses repository.CourseRepository, validate *validator.Validate, activity ActivityRecorder, reviewCache ReviewCache, logger zerolog.Logger) AssignmentService {
	return &assignmentService{
		repo:      repo,
		courses:   courses,
		validator: validate,
		activity:  activity,
		cache:     reviewCache,
		logger:    logger.With().Str("component", "assignment_service").Logger(),
	}
}

func (s *assignmentService) Get(ctx context.Context, id uint) (dto.AssignmentResponse, error) {
	assignment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, ErrAssignmentNotFound
		}
		return dto.AssignmentResponse{}, err
	}

	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) Create(ctx context.Context, actor ActivityActor, payload dto.AssignmentCreateRequest) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	course, err := s.courses.GetByID(ctx, payload.CourseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, ErrCourseNotFound
		}
		return dto.AssignmentResponse{}, err
	}
	if !actor.CanReview(course) {
		return dto.AssignmentResponse{}, ErrForbidden
	}

	mode := models.ValuationStrict
	if payload.ValuationMode != "" {
		mode, _ = models.ParseValuationMode(payload.ValuationMode)
	}

	assignment := models.Assignment{
		CourseID:    course.ID,
		Title:       strings.TrimSpace(payload.Title),
		Description: strings.TrimSpace(payload.Description),
		Questions: lo.Map(payload.Questions, func(q dto.QuestionPayload, _ int) models.Question {
			return models.Question{QuestionText: strings.TrimSpace(q.QuestionText), Marks: q.Marks}
		}),
		MaxPoints:     payload.MaxPoints,
		ValuationMode: mode,
	}

	if payload.DueDate != "" {
		due, err := time.Parse(time.RFC3339, payload.DueDate)
		if err != nil {
			return dto.AssignmentResponse{}, fmt.Errorf("invalid due date: %w", err)
		}
		due = due.UTC()
		assignment.DueDate = &due
	}

	if err := s.repo.Create(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.logger.Info().Uint("assignment_id", assignment.ID).Float64("effective_max", assignment.EffectiveMax()).Msg("assignment created")

	// Course summaries list every assignment of the course.
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, course.ID, 0); err != nil {
			s.logger.Warn().Err(err).Uint("course_id", course.ID).Msg("failed to invalidate review cache")
		}
	}

	return dto.NewAssignmentResponse(assignment), nil
}

// UpdateValuationMode changes how future AI passes are instructed. Stored grades are untouched.
func (s *assignmentService) UpdateValuationMode(ctx context.Context, actor ActivityActor, id uint, payload dto.ValuationModeUpdateRequest) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}
	mode, ok := models.ParseValuationMode(payload.ValuationMode)
	if !ok {
		return dto.AssignmentResponse{}, fmt.Errorf("unknown valuation mode %q", payload.ValuationMode)
	}

	assignment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, ErrAssignmentNotFound
		}
		return dto.AssignmentResponse{}, err
	}
	if !actor.CanReview(assignment.Course) {
		return dto.AssignmentResponse{}, ErrForbidden
	}

	previous := assignment.Mode()
	if previous == mode {
		return dto.NewAssignmentResponse(assignment), nil
	}

	if err := s.repo.UpdateValuationMode(ctx, id, mode); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, ErrAssignmentNotFound
		}
		return dto.AssignmentResponse{}, err
	}
	assignment.ValuationMode = mode

	if s.activity != nil {
		_, _ = s.activity.Record(ctx, ActivityEntry{
			ActorID:    actor.ID,
			ActorRole:  actor.Role,
			Action:     "assignment.valuation_mode_changed",
			EntityType: "assignment",
			EntityID:   &assignment.ID,
			Metadata: map[string]interface{}{
				"from": string(previous),
				"to":   string(mode),
			},
		})
	}

	return dto.NewAssignmentResponse(assignment), nil
}
