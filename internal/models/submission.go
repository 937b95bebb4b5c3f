package models

import (
	"time"

	"gorm.io/datatypes"
)

// SubmissionState is the lifecycle position of a submission.
type SubmissionState string

const (
	// StateCreated means the artifact is stored but no text has been extracted yet.
	StateCreated SubmissionState = "created"
	// StateExtracted means OCR text is available.
	StateExtracted SubmissionState = "extracted"
	// StateAIGraded means the automated grader produced a provisional grade.
	StateAIGraded SubmissionState = "ai_graded"
	// StateApproved means an instructor published the AI grade.
	StateApproved SubmissionState = "approved"
	// StateOverridden means an instructor set the grade manually.
	StateOverridden SubmissionState = "overridden"
)

// Reviewed reports whether an instructor has acted on the submission.
func (s SubmissionState) Reviewed() bool {
	return s == StateApproved || s == StateOverridden
}

const (
	// SubmissionStatusSubmitted indicates the submission has been uploaded but not graded.
	SubmissionStatusSubmitted = "submitted"
	// SubmissionStatusGraded indicates the submission has been evaluated.
	SubmissionStatusGraded = "graded"
)

const (
	// GradingModeAI marks a grade produced by the automated grader.
	GradingModeAI = "ai"
	// GradingModeManual marks a grade entered by an instructor.
	GradingModeManual = "manual"
)

// ArtifactRef points at one stored artifact in the content store.
type ArtifactRef struct {
	Ref       string `json:"ref"`
	URL       string `json:"url"`
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// Submission is the single record a student owns for an assignment.
type Submission struct {
	ID           uint                             `gorm:"primaryKey" json:"id"`
	AssignmentID uint                             `gorm:"not null;uniqueIndex:idx_submission_assignment_student" json:"assignment_id"`
	StudentID    uint                             `gorm:"not null;uniqueIndex:idx_submission_assignment_student" json:"student_id"`
	Files        datatypes.JSONSlice[ArtifactRef] `json:"files"`
	OCRText      *string                          `gorm:"type:text" json:"ocr_text"`
	State        SubmissionState                  `gorm:"size:16;not null;index" json:"state"`
	Status       string                           `gorm:"size:32;not null" json:"status"`
	GradingMode  *string                          `gorm:"size:16" json:"grading_mode"`
	Grade        *float64                         `json:"grade"`
	Feedback     *string                          `gorm:"type:text" json:"feedback"`
	AIAnalysis   *string                          `gorm:"type:text" json:"ai_analysis"`
	GradedBy     *uint                            `json:"graded_by"`
	GradedAt     *time.Time                       `json:"graded_at"`
	Version      int                              `gorm:"not null;default:1" json:"version"`
	SubmittedAt  time.Time                        `json:"submitted_at"`
	CreatedAt    time.Time                        `json:"created_at"`
	UpdatedAt    time.Time                        `json:"updated_at"`
	Assignment   Assignment                       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Student      Student                          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// IsGraded reports whether the submission has a published grade.
func (s Submission) IsGraded() bool {
	return s.Status == SubmissionStatusGraded
}

// SetState moves the submission to state and keeps the derived status in sync.
func (s *Submission) SetState(state SubmissionState) {
	s.State = state
	if state.Reviewed() {
		s.Status = SubmissionStatusGraded
		return
	}
	s.Status = SubmissionStatusSubmitted
}

// PrimaryFile returns the first stored artifact, if any.
func (s Submission) PrimaryFile() (ArtifactRef, bool) {
	if len(s.Files) == 0 {
		return ArtifactRef{}, false
	}
	return s.Files[0], true
}

// Provenance describes where the current grade came from.
type Provenance interface {
	provenance()
}

// AIProvenance is a grade written by the automated grader.
type AIProvenance struct {
	Grade    float64
	Feedback string
	Analysis string
}

// ManualProvenance is a grade written by an instructor.
type ManualProvenance struct {
	Grade    float64
	Feedback string
	GradedBy uint
}

func (AIProvenance) provenance()     {}
func (ManualProvenance) provenance() {}

// CurrentProvenance returns the grade source, or nil when no grade exists.
func (s Submission) CurrentProvenance() Provenance {
	if s.Grade == nil || s.GradingMode == nil {
		return nil
	}
	switch *s.GradingMode {
	case GradingModeAI:
		return AIProvenance{Grade: *s.Grade, Feedback: deref(s.Feedback), Analysis: deref(s.AIAnalysis)}
	case GradingModeManual:
		var by uint
		if s.GradedBy != nil {
			by = *s.GradedBy
		}
		return ManualProvenance{Grade: *s.Grade, Feedback: deref(s.Feedback), GradedBy: by}
	default:
		return nil
	}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// Grade history events.
const (
	GradeEventAIGraded   = "ai_graded"
	GradeEventApproved   = "approved"
	GradeEventOverridden = "overridden"
)

// SubmissionGradeHistory is an append-only record of grading actions on a submission.
type SubmissionGradeHistory struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubmissionID uint      `gorm:"not null;index" json:"submission_id"`
	Event        string    `gorm:"size:32;not null" json:"event"`
	GradingMode  string    `gorm:"size:16;not null" json:"grading_mode"`
	Score        float64   `json:"score"`
	Feedback     string    `gorm:"type:text" json:"feedback"`
	GradedBy     *uint     `json:"graded_by"`
	GradedAt     time.Time `json:"graded_at"`
}
