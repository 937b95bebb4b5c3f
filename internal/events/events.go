// Package events publishes submission lifecycle events to a message broker.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Event types.
const (
	TypeSubmitted  = "submission.submitted"
	TypeExtracted  = "submission.extracted"
	TypeAIGraded   = "submission.ai_graded"
	TypeApproved   = "submission.approved"
	TypeOverridden = "submission.overridden"
)

// Event describes one lifecycle transition.
type Event struct {
	Type          string    `json:"type"`
	SubmissionID  uint      `json:"submission_id"`
	AssignmentID  uint      `json:"assignment_id"`
	StudentID     uint      `json:"student_id"`
	State         string    `json:"state"`
	Grade         *float64  `json:"grade,omitempty"`
	ActorID       uint      `json:"actor_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Publisher delivers events. Delivery is best effort; callers log failures and move on.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

func encode(event Event) ([]byte, error) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	return json.Marshal(event)
}

// Nop discards every event.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, Event) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }
