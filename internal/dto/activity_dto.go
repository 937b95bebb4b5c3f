package dto

import (
	"time"

	"github.com/pleastandby/major-project-sub000/internal/models"
)

// ActivityResponse is one audit log entry.
type ActivityResponse struct {
	ID         uint                   `json:"id"`
	ActorID    uint                   `json:"actor_id"`
	ActorRole  string                 `json:"actor_role"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entity_type"`
	EntityID   *uint                  `json:"entity_id"`
	Metadata   map[string]interface{} `json:"metadata"`
	CreatedAt  time.Time              `json:"created_at"`
}

// GradeHistoryResponse is one grading action on a submission.
type GradeHistoryResponse struct {
	Event       string    `json:"event"`
	GradingMode string    `json:"grading_mode"`
	Score       float64   `json:"score"`
	Feedback    string    `json:"feedback"`
	GradedBy    *uint     `json:"graded_by"`
	GradedAt    time.Time `json:"graded_at"`
}

// SubmissionAuditResponse combines the grade history and the instructor audit trail.
type SubmissionAuditResponse struct {
	SubmissionID uint                   `json:"submission_id"`
	History      []GradeHistoryResponse `json:"history"`
	Activity     []ActivityResponse     `json:"activity"`
}

// NewActivityResponse converts a model into a DTO.
func NewActivityResponse(model models.ActivityLog) ActivityResponse {
	metadata := map[string]interface{}{}
	for key, value := range model.Metadata {
		metadata[key] = value
	}

	return ActivityResponse{
		ID:         model.ID,
		ActorID:    model.ActorID,
		ActorRole:  model.ActorRole,
		Action:     model.Action,
		EntityType: model.EntityType,
		EntityID:   model.EntityID,
		Metadata:   metadata,
		CreatedAt:  model.CreatedAt,
	}
}

// NewGradeHistoryResponse converts a history row into a DTO.
func NewGradeHistoryResponse(model models.SubmissionGradeHistory) GradeHistoryResponse {
	return GradeHistoryResponse{
		Event:       model.Event,
		GradingMode: model.GradingMode,
		Score:       model.Score,
		Feedback:    model.Feedback,
		GradedBy:    model.GradedBy,
		GradedAt:    model.GradedAt,
	}
}
