package dto

import (
	"time"

	"github.com/samber/lo"

	"github.com/pleastandby/major-project-sub000/internal/models"
)

// GradeOverrideRequest is the instructor's manual grade.
type GradeOverrideRequest struct {
	Grade    *float64 `json:"grade" validate:"required"`
	Feedback string   `json:"feedback" validate:"max=20000"`
}

// ArtifactResponse describes one stored file.
type ArtifactResponse struct {
	Ref       string `json:"ref"`
	URL       string `json:"url"`
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// SubmissionResponse is the student's view of a submission. The AI analysis is withheld.
type SubmissionResponse struct {
	ID           uint               `json:"id"`
	AssignmentID uint               `json:"assignment_id"`
	StudentID    uint               `json:"student_id"`
	Files        []ArtifactResponse `json:"files"`
	OCRText      *string            `json:"ocr_text"`
	State        string             `json:"state"`
	Status       string             `json:"status"`
	GradingMode  *string            `json:"grading_mode"`
	Grade        *float64           `json:"grade"`
	MaxScore     float64            `json:"max_score"`
	Feedback     *string            `json:"feedback"`
	GradedAt     *time.Time         `json:"graded_at"`
	SubmittedAt  time.Time          `json:"submitted_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// ReviewSubmissionResponse is the instructor's view of a submission.
type ReviewSubmissionResponse struct {
	SubmissionResponse
	AIAnalysis *string     `json:"ai_analysis"`
	GradedBy   *uint       `json:"graded_by"`
	Version    int         `json:"version"`
	Student    StudentLite `json:"student"`
}

// StudentLite summarizes a student without exposing full profile data.
type StudentLite struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ReviewAssignmentSummary is one row of the instructor's review queue.
type ReviewAssignmentSummary struct {
	Assignment AssignmentLite   `json:"assignment"`
	Counts     SubmissionCounts `json:"counts"`
}

// SubmissionCounts breaks down an assignment's submissions by lifecycle position.
type SubmissionCounts struct {
	Total              int64 `json:"total"`
	AwaitingExtraction int64 `json:"awaiting_extraction"`
	AwaitingGrading    int64 `json:"awaiting_grading"`
	AwaitingReview     int64 `json:"awaiting_review"`
	Graded             int64 `json:"graded"`
}

// NewSubmissionResponse converts a Submission model into the student DTO.
// Grading results stay hidden until an instructor approves or overrides them.
func NewSubmissionResponse(model models.Submission, maxScore float64) SubmissionResponse {
	response := submissionFields(model, maxScore)
	if !model.State.Reviewed() {
		response.GradingMode = nil
		response.Grade = nil
		response.Feedback = nil
		response.GradedAt = nil
	}
	return response
}

func submissionFields(model models.Submission, maxScore float64) SubmissionResponse {
	return SubmissionResponse{
		ID:           model.ID,
		AssignmentID: model.AssignmentID,
		StudentID:    model.StudentID,
		Files: lo.Map(model.Files, func(ref models.ArtifactRef, _ int) ArtifactResponse {
			return ArtifactResponse{
				Ref:       ref.Ref,
				URL:       ref.URL,
				FileName:  ref.FileName,
				MimeType:  ref.MimeType,
				SizeBytes: ref.SizeBytes,
				Checksum:  ref.Checksum,
			}
		}),
		OCRText:     model.OCRText,
		State:       string(model.State),
		Status:      model.Status,
		GradingMode: model.GradingMode,
		Grade:       model.Grade,
		MaxScore:    maxScore,
		Feedback:    model.Feedback,
		GradedAt:    model.GradedAt,
		SubmittedAt: model.SubmittedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

// NewReviewSubmissionResponse converts a Submission model into the instructor DTO.
func NewReviewSubmissionResponse(model models.Submission, maxScore float64) ReviewSubmissionResponse {
	response := ReviewSubmissionResponse{
		SubmissionResponse: submissionFields(model, maxScore),
		AIAnalysis:         model.AIAnalysis,
		GradedBy:           model.GradedBy,
		Version:            model.Version,
	}

	if model.Student.ID != 0 {
		response.Student = StudentLite{
			ID:    model.Student.ID,
			Name:  model.Student.Name,
			Email: model.Student.Email,
		}
	}

	return response
}
