package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pleastandby/major-project-sub000/internal/events"
	"github.com/pleastandby/major-project-sub000/internal/models"
	"github.com/pleastandby/major-project-sub000/internal/observability"
	"github.com/pleastandby/major-project-sub000/pkg/storage"
)

// ContentStore persists artifacts and resolves them to fetchable URLs.
type ContentStore interface {
	Put(ctx context.Context, object storage.Object) (storage.Stored, error)
	URL(ctx context.Context, stored storage.Stored) (string, error)
}

// ReviewCache caches instructor review projections under generation-scoped keys.
// Callers resolve a key before reading the database and store under that same key.
type ReviewCache interface {
	SubmissionsKey(ctx context.Context, assignmentID uint) (string, error)
	CourseSummaryKey(ctx context.Context, courseIDs []uint) (string, error)
	Load(ctx context.Context, key string, dest interface{}) (bool, error)
	Store(ctx context.Context, key string, value interface{}) error
	Invalidate(ctx context.Context, courseID, assignmentID uint) error
}

// PipelineHooks runs the side effects that follow every persisted submission mutation.
// Failures are logged and never fail the request.
type PipelineHooks struct {
	Publisher events.Publisher
	Cache     ReviewCache
	Logger    zerolog.Logger
}

func (h PipelineHooks) afterMutation(ctx context.Context, courseID uint, submission models.Submission, eventType string, actorID uint) {
	observability.SubmissionTransitions().WithLabelValues(string(submission.State)).Inc()

	if h.Cache != nil {
		if err := h.Cache.Invalidate(ctx, courseID, submission.AssignmentID); err != nil {
			h.Logger.Warn().Err(err).Uint("assignment_id", submission.AssignmentID).Msg("failed to invalidate review cache")
		}
	}

	if h.Publisher == nil || eventType == "" {
		return
	}

	event := events.Event{
		Type:          eventType,
		SubmissionID:  submission.ID,
		AssignmentID:  submission.AssignmentID,
		StudentID:     submission.StudentID,
		State:         string(submission.State),
		Grade:         submission.Grade,
		ActorID:       actorID,
		CorrelationID: observability.CorrelationID(ctx),
		OccurredAt:    time.Now().UTC(),
	}
	if err := h.Publisher.Publish(ctx, event); err != nil {
		h.Logger.Warn().Err(err).Str("event", eventType).Uint("submission_id", submission.ID).Msg("failed to publish lifecycle event")
	}
}

// submissionLocks gives one in-process owner per submission id.
type submissionLocks struct {
	mu   sync.Mutex
	held map[uint]struct{}
}

func newSubmissionLocks() *submissionLocks {
	return &submissionLocks{held: make(map[uint]struct{})}
}

func (l *submissionLocks) TryLock(id uint) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[id]; busy {
		return false
	}
	l.held[id] = struct{}{}
	return true
}

func (l *submissionLocks) Unlock(id uint) {
	l.mu.Lock()
	delete(l.held, id)
	l.mu.Unlock()
}

func stringPtr(value string) *string {
	return &value
}

func floatPtr(value float64) *float64 {
	return &value
}
