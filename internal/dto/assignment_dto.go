package dto

import (
	"time"

	"github.com/samber/lo"

	"github.com/pleastandby/major-project-sub000/internal/models"
)

// QuestionPayload is one rubric item in an assignment request.
type QuestionPayload struct {
	QuestionText string  `json:"question_text" validate:"required,min=1"`
	Marks        float64 `json:"marks" validate:"gte=0"`
}

// AssignmentCreateRequest describes the payload for creating a new assignment.
type AssignmentCreateRequest struct {
	CourseID      uint              `json:"course_id" validate:"required,gt=0"`
	Title         string            `json:"title" validate:"required,min=3"`
	Description   string            `json:"description"`
	Questions     []QuestionPayload `json:"questions" validate:"omitempty,dive"`
	MaxPoints     float64           `json:"max_points" validate:"gte=0"`
	ValuationMode string            `json:"valuation_mode" validate:"omitempty,oneof=strict liberal"`
	DueDate       string            `json:"due_date" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// ValuationModeUpdateRequest switches the grading policy of an assignment.
type ValuationModeUpdateRequest struct {
	ValuationMode string `json:"valuation_mode" validate:"required,oneof=strict liberal"`
}

// QuestionResponse is a rubric item as returned to clients.
type QuestionResponse struct {
	QuestionText string  `json:"question_text"`
	Marks        float64 `json:"marks"`
}

// AssignmentResponse is the serialized representation returned to API clients.
type AssignmentResponse struct {
	ID            uint               `json:"id"`
	CourseID      uint               `json:"course_id"`
	Title         string             `json:"title"`
	Description   string             `json:"description"`
	Questions     []QuestionResponse `json:"questions"`
	MaxPoints     float64            `json:"max_points"`
	EffectiveMax  float64            `json:"effective_max"`
	ValuationMode string             `json:"valuation_mode"`
	DueDate       *time.Time         `json:"due_date"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// AssignmentLite summarizes an assignment in review responses.
type AssignmentLite struct {
	ID           uint       `json:"id"`
	CourseID     uint       `json:"course_id"`
	Title        string     `json:"title"`
	EffectiveMax float64    `json:"effective_max"`
	DueDate      *time.Time `json:"due_date"`
}

// NewAssignmentResponse converts a model into a DTO.
func NewAssignmentResponse(model models.Assignment) AssignmentResponse {
	return AssignmentResponse{
		ID:          model.ID,
		CourseID:    model.CourseID,
		Title:       model.Title,
		Description: model.Description,
		Questions: lo.Map(model.Questions, func(q models.Question, _ int) QuestionResponse {
			return QuestionResponse{QuestionText: q.QuestionText, Marks: q.Marks}
		}),
		MaxPoints:     model.MaxPoints,
		EffectiveMax:  model.EffectiveMax(),
		ValuationMode: string(model.Mode()),
		DueDate:       model.DueDate,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}
}

// NewAssignmentLite converts a model into its summary form.
func NewAssignmentLite(model models.Assignment) AssignmentLite {
	return AssignmentLite{
		ID:           model.ID,
		CourseID:     model.CourseID,
		Title:        model.Title,
		EffectiveMax: model.EffectiveMax(),
		DueDate:      model.DueDate,
	}
}
