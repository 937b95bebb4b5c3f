package service

import (
	"context"
	"errors"
	"sort"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/pleastandby/major-project-sub000/internal/dto"
	"github.com/pleastandby/major-project-sub000/internal/models"
	"github.com/pleastandby/major-project-sub000/internal/observability"
	"github.com/pleastandby/major-project-sub000/internal/repository"
)

// ReviewService projects submissions for instructor review.
type ReviewService interface {
	ListSubmissions(ctx context.Context, actor ActivityActor, assignmentID uint) ([]dto.ReviewSubmissionResponse, error)
	ListForCourses(ctx context.Context, actor ActivityActor, courseIDs []uint) ([]dto.ReviewAssignmentSummary, error)
	Audit(ctx context.Context, actor ActivityActor, submissionID uint) (dto.SubmissionAuditResponse, error)
}

// ActivityLister reads the audit trail of one entity.
type ActivityLister interface {
	ListForEntity(ctx context.Context, entityType string, entityID uint) ([]dto.ActivityResponse, error)
}

// ReviewServiceConfig bundles the collaborators of the review service.
type ReviewServiceConfig struct {
	Assignments repository.AssignmentRepository
	Courses     repository.CourseRepository
	Submissions repository.SubmissionRepository
	Activity    ActivityLister
	Cache       ReviewCache
	Logger      zerolog.Logger
}

type reviewService struct {
	assignments repository.AssignmentRepository
	courses     repository.CourseRepository
	submissions repository.SubmissionRepository
	activity    ActivityLister
	cache       ReviewCache
	logger      zerolog.Logger
}

// NewReviewService constructs the review queue projection.
func NewReviewService(cfg ReviewServiceConfig) ReviewService {
	return &reviewService{
		assignments: cfg.Assignments,
		courses:     cfg.Courses,
		submissions: cfg.Submissions,
		activity:    cfg.Activity,
		cache:       cfg.Cache,
		logger:      cfg.Logger.With().Str("component", "review_service").Logger(),
	}
}

func (s *reviewService) ListSubmissions(ctx context.Context, actor ActivityActor, assignmentID uint) ([]dto.ReviewSubmissionResponse, error) {
	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}
	if !actor.CanReview(assignment.Course) {
		return nil, ErrForbidden
	}

	cacheKey := ""
	if s.cache != nil {
		var cached []dto.ReviewSubmissionResponse
		hit, key, err := s.lookup(ctx, func() (string, error) { return s.cache.SubmissionsKey(ctx, assignmentID) }, &cached)
		if err != nil {
			s.logger.Warn().Err(err).Uint("assignment_id", assignmentID).Msg("review cache read failed")
		} else if hit {
			return cached, nil
		}
		cacheKey = key
	}

	submissions, err := s.submissions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	maxScore := assignment.EffectiveMax()
	result := lo.Map(submissions, func(item models.Submission, _ int) dto.ReviewSubmissionResponse {
		return dto.NewReviewSubmissionResponse(item, maxScore)
	})

	if cacheKey != "" {
		if err := s.cache.Store(ctx, cacheKey, result); err != nil {
			s.logger.Warn().Err(err).Uint("assignment_id", assignmentID).Msg("review cache write failed")
		}
	}

	return result, nil
}

func (s *reviewService) ListForCourses(ctx context.Context, actor ActivityActor, courseIDs []uint) ([]dto.ReviewAssignmentSummary, error) {
	ids := lo.Uniq(lo.Filter(courseIDs, func(id uint, _ int) bool { return id != 0 }))
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) == 0 {
		return []dto.ReviewAssignmentSummary{}, nil
	}

	for _, id := range ids {
		course, err := s.courses.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrCourseNotFound
			}
			return nil, err
		}
		if !actor.CanReview(course) {
			return nil, ErrForbidden
		}
	}

	cacheKey := ""
	if s.cache != nil {
		var cached []dto.ReviewAssignmentSummary
		hit, key, err := s.lookup(ctx, func() (string, error) { return s.cache.CourseSummaryKey(ctx, ids) }, &cached)
		if err != nil {
			s.logger.Warn().Err(err).Msg("review cache read failed")
		} else if hit {
			return cached, nil
		}
		cacheKey = key
	}

	assignments, err := s.assignments.ListByCourseIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	counts, err := s.submissions.CountByAssignments(ctx, lo.Map(assignments, func(item models.Assignment, _ int) uint {
		return item.ID
	}))
	if err != nil {
		return nil, err
	}

	result := make([]dto.ReviewAssignmentSummary, 0, len(assignments))
	for _, assignment := range assignments {
		c := counts[assignment.ID]
		result = append(result, dto.ReviewAssignmentSummary{
			Assignment: dto.NewAssignmentLite(assignment),
			Counts: dto.SubmissionCounts{
				Total:              c.Total,
				AwaitingExtraction: c.AwaitingExtraction,
				AwaitingGrading:    c.AwaitingGrading,
				AwaitingReview:     c.AwaitingReview,
				Graded:             c.Graded,
			},
		})
	}

	if cacheKey != "" {
		if err := s.cache.Store(ctx, cacheKey, result); err != nil {
			s.logger.Warn().Err(err).Msg("review cache write failed")
		}
	}

	return result, nil
}

// Audit returns the grade history and instructor activity of one submission.
func (s *reviewService) Audit(ctx context.Context, actor ActivityActor, submissionID uint) (dto.SubmissionAuditResponse, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionAuditResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionAuditResponse{}, err
	}

	assignment, err := s.assignments.GetByID(ctx, submission.AssignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionAuditResponse{}, ErrAssignmentNotFound
		}
		return dto.SubmissionAuditResponse{}, err
	}
	if !actor.CanReview(assignment.Course) {
		return dto.SubmissionAuditResponse{}, ErrForbidden
	}

	history, err := s.submissions.ListHistory(ctx, submissionID)
	if err != nil {
		return dto.SubmissionAuditResponse{}, err
	}

	response := dto.SubmissionAuditResponse{
		SubmissionID: submissionID,
		History:      lo.Map(history, func(item models.SubmissionGradeHistory, _ int) dto.GradeHistoryResponse { return dto.NewGradeHistoryResponse(item) }),
		Activity:     []dto.ActivityResponse{},
	}

	if s.activity != nil {
		activity, err := s.activity.ListForEntity(ctx, "submission", submissionID)
		if err != nil {
			return dto.SubmissionAuditResponse{}, err
		}
		response.Activity = activity
	}

	return response, nil
}

// lookup resolves the entry key before any database read so a concurrent
// invalidation moves later readers past whatever this request stores.
func (s *reviewService) lookup(ctx context.Context, resolve func() (string, error), dest interface{}) (bool, string, error) {
	key, err := resolve()
	if err != nil {
		s.observeLookup(false, err)
		return false, "", err
	}
	hit, err := s.cache.Load(ctx, key, dest)
	s.observeLookup(hit, err)
	if err != nil {
		return false, "", err
	}
	return hit, key, nil
}

func (s *reviewService) observeLookup(hit bool, err error) {
	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case hit:
		result = "hit"
	}
	observability.ReviewCacheLookups().WithLabelValues(result).Inc()
}
