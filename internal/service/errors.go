package service

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidArtifact indicates the uploaded file is missing, too large or of a disallowed type.
	ErrInvalidArtifact = errors.New("invalid artifact")
	// ErrStorage indicates the content store could not persist or resolve an artifact.
	ErrStorage = errors.New("artifact storage failed")
	// ErrExtraction indicates OCR could not produce text for the artifact.
	ErrExtraction = errors.New("text extraction failed")
	// ErrMissingExtraction indicates grading was requested before any text was extracted.
	ErrMissingExtraction = errors.New("submission has no extracted text")
	// ErrGrading indicates the automated grader failed or returned unusable output.
	ErrGrading = errors.New("automated grading failed")
	// ErrGradingTimeout indicates the automated grader did not answer in time.
	ErrGradingTimeout = errors.New("automated grading timed out")
	// ErrGradingInProgress indicates another grading request holds the submission.
	ErrGradingInProgress = errors.New("grading already in progress for submission")
	// ErrNotGraded indicates approval was requested for a submission without a grade.
	ErrNotGraded = errors.New("submission has no grade to approve")
	// ErrOutOfRangeGrade indicates a manual grade outside [0, effective max].
	ErrOutOfRangeGrade = errors.New("grade is outside the allowed range")
	// ErrUnsafeFeedback indicates manual feedback carries HTML markup that is not allowed.
	ErrUnsafeFeedback = errors.New("feedback contains markup that is not allowed")
	// ErrInvalidTransition indicates the action is not allowed in the submission's current state.
	ErrInvalidTransition = errors.New("action not allowed in current submission state")
	// ErrResubmissionLocked indicates the submission was already reviewed by an instructor.
	ErrResubmissionLocked = errors.New("submission was reviewed and can no longer be replaced")
	// ErrConcurrentModification indicates the submission changed while the request was running.
	ErrConcurrentModification = errors.New("submission was modified concurrently")
	// ErrSubmissionNotFound indicates the submission does not exist.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrAssignmentNotFound indicates the assignment does not exist.
	ErrAssignmentNotFound = errors.New("assignment not found")
	// ErrCourseNotFound indicates the referenced course does not exist.
	ErrCourseNotFound = errors.New("course not found")
	// ErrNotEnrolled indicates the student is not enrolled in the assignment's course.
	ErrNotEnrolled = errors.New("student is not enrolled in this course")
	// ErrForbidden indicates the caller may not act on the resource.
	ErrForbidden = errors.New("forbidden")
)

// ErrorKind groups errors by what the caller should do next.
type ErrorKind string

const (
	KindFixInput   ErrorKind = "fix_input"
	KindRetry      ErrorKind = "retry"
	KindWrongOrder ErrorKind = "wrong_order"
	KindNotFound   ErrorKind = "not_found"
	KindForbidden  ErrorKind = "forbidden"
	KindInternal   ErrorKind = "internal"
)

// Classification tells a caller how to react to an error.
type Classification struct {
	Kind      ErrorKind
	Retryable bool
}

// ClassifyError maps pipeline errors onto caller actions.
func ClassifyError(err error) Classification {
	var validationErrors validator.ValidationErrors
	switch {
	case err == nil:
		return Classification{}
	case errors.As(err, &validationErrors),
		errors.Is(err, ErrInvalidArtifact),
		errors.Is(err, ErrOutOfRangeGrade),
		errors.Is(err, ErrUnsafeFeedback):
		return Classification{Kind: KindFixInput}
	case errors.Is(err, ErrStorage),
		errors.Is(err, ErrExtraction),
		errors.Is(err, ErrGrading),
		errors.Is(err, ErrGradingTimeout),
		errors.Is(err, ErrGradingInProgress),
		errors.Is(err, ErrConcurrentModification):
		return Classification{Kind: KindRetry, Retryable: true}
	case errors.Is(err, ErrMissingExtraction),
		errors.Is(err, ErrNotGraded),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrResubmissionLocked):
		return Classification{Kind: KindWrongOrder}
	case errors.Is(err, ErrSubmissionNotFound),
		errors.Is(err, ErrAssignmentNotFound),
		errors.Is(err, ErrCourseNotFound):
		return Classification{Kind: KindNotFound}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, ErrNotEnrolled):
		return Classification{Kind: KindForbidden}
	default:
		return Classification{Kind: KindInternal}
	}
}
