package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pleastandby/major-project-sub000/internal/models"
)

// ErrStaleSubmission is returned when a versioned write loses against a concurrent writer.
var ErrStaleSubmission = errors.New("submission version is stale")

// SubmissionStateCounts aggregates submissions of one assignment by lifecycle position.
type SubmissionStateCounts struct {
	Total              int64 `json:"total"`
	AwaitingExtraction int64 `json:"awaiting_extraction"`
	AwaitingGrading    int64 `json:"awaiting_grading"`
	AwaitingReview     int64 `json:"awaiting_review"`
	Graded             int64 `json:"graded"`
}

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	GetByAssignmentAndStudent(ctx context.Context, assignmentID, studentID uint) (models.Submission, error)
	ListByAssignment(ctx context.Context, assignmentID uint) ([]models.Submission, error)
	CountByAssignments(ctx context.Context, assignmentIDs []uint) (map[uint]SubmissionStateCounts, error)
	Create(ctx context.Context, submission *models.Submission) error
	UpdateVersioned(ctx context.Context, submission *models.Submission, history *models.SubmissionGradeHistory) error
	ListHistory(ctx context.Context, submissionID uint) ([]models.SubmissionGradeHistory, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) GetByAssignmentAndStudent(ctx context.Context, assignmentID, studentID uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Where("student_id = ?", studentID).
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) ListByAssignment(ctx context.Context, assignmentID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := r.db.WithContext(ctx).
		Preload("Student").
		Where("assignment_id = ?", assignmentID).
		Order("submitted_at DESC").
		Order("id ASC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) CountByAssignments(ctx context.Context, assignmentIDs []uint) (map[uint]SubmissionStateCounts, error) {
	result := make(map[uint]SubmissionStateCounts, len(assignmentIDs))
	if len(assignmentIDs) == 0 {
		return result, nil
	}

	type row struct {
		AssignmentID uint
		State        models.SubmissionState
		Count        int64
	}

	var rows []row
	if err := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Select("assignment_id, state, COUNT(*) AS count").
		Where("assignment_id IN ?", assignmentIDs).
		Group("assignment_id, state").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	for _, id := range assignmentIDs {
		result[id] = SubmissionStateCounts{}
	}

	for _, item := range rows {
		counts := result[item.AssignmentID]
		counts.Total += item.Count
		switch item.State {
		case models.StateCreated:
			counts.AwaitingExtraction += item.Count
		case models.StateExtracted:
			counts.AwaitingGrading += item.Count
		case models.StateAIGraded:
			counts.AwaitingReview += item.Count
		case models.StateApproved, models.StateOverridden:
			counts.Graded += item.Count
		}
		result[item.AssignmentID] = counts
	}

	return result, nil
}

// Create inserts a first submission. A concurrent insert for the same
// assignment and student surfaces as ErrStaleSubmission.
func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	if submission.Version == 0 {
		submission.Version = 1
	}

	result := r.db.WithContext(ctx).
		Omit("Assignment", "Student").
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "assignment_id"}, {Name: "student_id"}},
			DoNothing: true,
		}).
		Create(submission)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleSubmission
	}
	return nil
}

// UpdateVersioned writes every mutable column when the stored version still
// matches submission.Version, then bumps the version. The optional history
// row is appended in the same transaction.
func (r *submissionRepository) UpdateVersioned(ctx context.Context, submission *models.Submission, history *models.SubmissionGradeHistory) error {
	expected := submission.Version

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Submission{}).
			Where("id = ? AND version = ?", submission.ID, expected).
			Updates(map[string]interface{}{
				"files":        submission.Files,
				"ocr_text":     submission.OCRText,
				"state":        submission.State,
				"status":       submission.Status,
				"grading_mode": submission.GradingMode,
				"grade":        submission.Grade,
				"feedback":     submission.Feedback,
				"ai_analysis":  submission.AIAnalysis,
				"graded_by":    submission.GradedBy,
				"graded_at":    submission.GradedAt,
				"submitted_at": submission.SubmittedAt,
				"version":      expected + 1,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrStaleSubmission
		}

		if history != nil {
			history.SubmissionID = submission.ID
			if err := tx.Create(history).Error; err != nil {
				return err
			}
		}

		submission.Version = expected + 1
		return nil
	})
}

func (r *submissionRepository) ListHistory(ctx context.Context, submissionID uint) ([]models.SubmissionGradeHistory, error) {
	var entries []models.SubmissionGradeHistory
	if err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("graded_at ASC").
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}

	return entries, nil
}
