package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/pleastandby/major-project-sub000/internal/dto"
	"github.com/pleastandby/major-project-sub000/internal/events"
	"github.com/pleastandby/major-project-sub000/internal/models"
	"github.com/pleastandby/major-project-sub000/internal/observability"
	"github.com/pleastandby/major-project-sub000/internal/repository"
	"github.com/pleastandby/major-project-sub000/pkg/ocr"
	"github.com/pleastandby/major-project-sub000/pkg/storage"
)

var allowedArtifactTypes = map[string]struct{}{
	"application/pdf": {},
	"image/png":       {},
	"image/jpeg":      {},
	"image/webp":      {},
	"image/heic":      {},
	"text/plain":      {},
}

// SubmissionService handles artifact ingestion and text extraction.
type SubmissionService interface {
	Submit(ctx context.Context, actor ActivityActor, assignmentID uint, file *multipart.FileHeader) (dto.SubmissionResponse, error)
	Fetch(ctx context.Context, assignmentID, studentID uint) (*dto.SubmissionResponse, error)
	RetryExtraction(ctx context.Context, actor ActivityActor, submissionID uint) (dto.SubmissionResponse, error)
}

// SubmissionServiceConfig bundles the collaborators of the submission service.
type SubmissionServiceConfig struct {
	Assignments repository.AssignmentRepository
	Courses     repository.CourseRepository
	Submissions repository.SubmissionRepository
	Store       ContentStore
	Extractor   ocr.Extractor
	Hooks       PipelineHooks
	MaxSizeMB   int
	Logger      zerolog.Logger
}

type submissionService struct {
	assignments repository.AssignmentRepository
	courses     repository.CourseRepository
	submissions repository.SubmissionRepository
	store       ContentStore
	extractor   ocr.Extractor
	hooks       PipelineHooks
	maxSize     int64
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewSubmissionService constructs the ingestion service.
func NewSubmissionService(cfg SubmissionServiceConfig) SubmissionService {
	maxSizeMB := cfg.MaxSizeMB
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	return &submissionService{
		assignments: cfg.Assignments,
		courses:     cfg.Courses,
		submissions: cfg.Submissions,
		store:       cfg.Store,
		extractor:   cfg.Extractor,
		hooks:       cfg.Hooks,
		maxSize:     int64(maxSizeMB) * 1024 * 1024,
		logger:      cfg.Logger.With().Str("component", "submission_service").Logger(),
		tracer:      otel.Tracer("github.com/pleastandby/major-project-sub000/internal/service/submission"),
		now:         time.Now,
	}
}

type validatedArtifact struct {
	name     string
	mimeType string
	payload  []byte
	checksum string
}

// Submit stores the artifact, creates or resets the student's submission and runs extraction.
// When extraction fails the persisted submission is returned together with ErrExtraction.
func (s *submissionService) Submit(ctx context.Context, actor ActivityActor, assignmentID uint, file *multipart.FileHeader) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submission.submit", trace.WithAttributes(
		attribute.Int64("submission.assignment_id", int64(assignmentID)),
		attribute.Int64("submission.student_id", int64(actor.ID)),
	))
	defer span.End()

	start := time.Now()
	artifact, err := s.validateArtifact(file)
	observability.UploadLatency().Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid_artifact")
		return dto.SubmissionResponse{}, err
	}
	span.SetAttributes(attribute.String("submission.mime_type", artifact.mimeType))

	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assignment_lookup_failed")
		return dto.SubmissionResponse{}, err
	}

	enrolled, err := s.courses.IsEnrolled(ctx, assignment.CourseID, actor.ID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	if !enrolled {
		span.SetStatus(codes.Error, "not_enrolled")
		return dto.SubmissionResponse{}, ErrNotEnrolled
	}

	existing, found, err := s.findExisting(ctx, assignmentID, actor.ID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	if found {
		if _, err := nextState(existing.State, eventResubmit); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "resubmission_locked")
			return dto.SubmissionResponse{}, err
		}
	}

	stored, err := s.store.Put(ctx, storage.Object{
		Name:        artifact.name,
		ContentType: artifact.mimeType,
		Size:        int64(len(artifact.payload)),
		Body:        bytes.NewReader(artifact.payload),
	})
	if err != nil {
		observability.UploadRejected().WithLabelValues("storage").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage_failed")
		s.logger.Error().Err(err).Uint("assignment_id", assignmentID).Msg("failed to store artifact")
		return dto.SubmissionResponse{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	ref := models.ArtifactRef{
		Ref:       stored.Key,
		URL:       stored.URL,
		FileName:  artifact.name,
		MimeType:  artifact.mimeType,
		SizeBytes: int64(len(artifact.payload)),
		Checksum:  artifact.checksum,
	}

	submission := existing
	if found {
		resetSubmission(&submission, ref, s.now().UTC())
		err = s.submissions.UpdateVersioned(ctx, &submission, nil)
	} else {
		submission = models.Submission{
			AssignmentID: assignmentID,
			StudentID:    actor.ID,
			Files:        []models.ArtifactRef{ref},
			SubmittedAt:  s.now().UTC(),
		}
		submission.SetState(models.StateCreated)
		err = s.submissions.Create(ctx, &submission)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist_failed")
		return dto.SubmissionResponse{}, translateWriteError(err)
	}

	observability.UploadRequests().WithLabelValues(artifact.mimeType).Inc()
	s.hooks.afterMutation(ctx, assignment.CourseID, submission, events.TypeSubmitted, actor.ID)
	s.logger.Info().
		Uint("submission_id", submission.ID).
		Bool("resubmission", found).
		Str("mime_type", artifact.mimeType).
		Msg("artifact submitted")

	if err := s.extract(ctx, assignment, &submission, actor.ID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction_failed")
		return dto.NewSubmissionResponse(submission, assignment.EffectiveMax()), err
	}

	span.SetStatus(codes.Ok, "submitted")
	return dto.NewSubmissionResponse(submission, assignment.EffectiveMax()), nil
}

func (s *submissionService) Fetch(ctx context.Context, assignmentID, studentID uint) (*dto.SubmissionResponse, error) {
	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	submission, found, err := s.findExisting(ctx, assignmentID, studentID)
	if err != nil || !found {
		return nil, err
	}

	response := dto.NewSubmissionResponse(submission, assignment.EffectiveMax())
	return &response, nil
}

// RetryExtraction re-runs OCR for a submission that has not been graded yet.
func (s *submissionService) RetryExtraction(ctx context.Context, actor ActivityActor, submissionID uint) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submission.retry_extraction", trace.WithAttributes(
		attribute.Int64("submission.id", int64(submissionID)),
	))
	defer span.End()

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	assignment, err := s.loadAssignment(ctx, submission.AssignmentID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	if submission.StudentID != actor.ID && !actor.CanReview(assignment.Course) {
		return dto.SubmissionResponse{}, ErrForbidden
	}

	if _, err := nextState(submission.State, eventExtract); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid_transition")
		return dto.SubmissionResponse{}, err
	}

	if err := s.extract(ctx, assignment, &submission, actor.ID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction_failed")
		return dto.NewSubmissionResponse(submission, assignment.EffectiveMax()), err
	}

	return dto.NewSubmissionResponse(submission, assignment.EffectiveMax()), nil
}

// extract runs OCR on the primary artifact and persists the text. On failure the
// submission is left untouched.
func (s *submissionService) extract(ctx context.Context, assignment models.Assignment, submission *models.Submission, actorID uint) error {
	file, ok := submission.PrimaryFile()
	if !ok {
		return fmt.Errorf("%w: submission has no stored artifact", ErrInvalidTransition)
	}

	next, err := nextState(submission.State, eventExtract)
	if err != nil {
		return err
	}

	url, err := s.store.URL(ctx, storage.Stored{Key: file.Ref, URL: file.URL})
	if err != nil {
		observability.PipelineFailures().WithLabelValues("extract", "storage").Inc()
		s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("failed to resolve artifact url")
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	text, err := s.extractor.Extract(ctx, ocr.Artifact{Key: file.Ref, URL: url, MimeType: file.MimeType})
	if err != nil {
		kind := "provider"
		if errors.Is(err, ocr.ErrUnsupportedMedia) {
			kind = "unsupported_media"
		}
		observability.PipelineFailures().WithLabelValues("extract", kind).Inc()
		s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Str("mime_type", file.MimeType).Msg("text extraction failed")
		if kind == "unsupported_media" {
			return fmt.Errorf("%w: %w: %v", ErrInvalidArtifact, ErrExtraction, err)
		}
		return fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	updated := *submission
	updated.OCRText = stringPtr(text)
	updated.SetState(next)
	if err := s.submissions.UpdateVersioned(ctx, &updated, nil); err != nil {
		return translateWriteError(err)
	}
	*submission = updated

	s.hooks.afterMutation(ctx, assignment.CourseID, *submission, events.TypeExtracted, actorID)
	return nil
}

func (s *submissionService) validateArtifact(file *multipart.FileHeader) (validatedArtifact, error) {
	if file == nil {
		observability.UploadRejected().WithLabelValues("missing").Inc()
		return validatedArtifact{}, fmt.Errorf("%w: file is required", ErrInvalidArtifact)
	}
	if file.Size > s.maxSize {
		observability.UploadRejected().WithLabelValues("size").Inc()
		return validatedArtifact{}, fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidArtifact, s.maxSize)
	}

	handle, err := file.Open()
	if err != nil {
		return validatedArtifact{}, fmt.Errorf("%w: unreadable file: %v", ErrInvalidArtifact, err)
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		return validatedArtifact{}, fmt.Errorf("%w: unreadable file: %v", ErrInvalidArtifact, err)
	}
	if buf.Len() == 0 {
		observability.UploadRejected().WithLabelValues("empty").Inc()
		return validatedArtifact{}, fmt.Errorf("%w: file is empty", ErrInvalidArtifact)
	}
	if int64(buf.Len()) > s.maxSize {
		observability.UploadRejected().WithLabelValues("size").Inc()
		return validatedArtifact{}, fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidArtifact, s.maxSize)
	}

	mimeType := normalizeMime(mimetype.Detect(buf.Bytes()).String())
	if _, ok := allowedArtifactTypes[mimeType]; !ok {
		observability.UploadRejected().WithLabelValues("type").Inc()
		return validatedArtifact{}, fmt.Errorf("%w: media type %s is not accepted", ErrInvalidArtifact, mimeType)
	}

	if router, ok := s.extractor.(ocr.MediaRouter); ok && !router.Supports(mimeType) {
		observability.UploadRejected().WithLabelValues("no_extractor").Inc()
		return validatedArtifact{}, fmt.Errorf("%w: media type %s cannot be read by the configured text extraction", ErrInvalidArtifact, mimeType)
	}

	checksum := sha256.Sum256(buf.Bytes())
	return validatedArtifact{
		name:     sanitizeFileName(file.Filename),
		mimeType: mimeType,
		payload:  buf.Bytes(),
		checksum: hex.EncodeToString(checksum[:]),
	}, nil
}

func (s *submissionService) loadAssignment(ctx context.Context, id uint) (models.Assignment, error) {
	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Assignment{}, err
	}
	return assignment, nil
}

func (s *submissionService) findExisting(ctx context.Context, assignmentID, studentID uint) (models.Submission, bool, error) {
	submission, err := s.submissions.GetByAssignmentAndStudent(ctx, assignmentID, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, false, nil
		}
		return models.Submission{}, false, err
	}
	return submission, true, nil
}

// resetSubmission replaces the artifact and clears everything derived from the previous one.
func resetSubmission(submission *models.Submission, ref models.ArtifactRef, now time.Time) {
	submission.Files = []models.ArtifactRef{ref}
	submission.OCRText = nil
	submission.GradingMode = nil
	submission.Grade = nil
	submission.Feedback = nil
	submission.AIAnalysis = nil
	submission.GradedBy = nil
	submission.GradedAt = nil
	submission.SubmittedAt = now
	submission.SetState(models.StateCreated)
}

func translateWriteError(err error) error {
	if errors.Is(err, repository.ErrStaleSubmission) {
		return ErrConcurrentModification
	}
	return err
}

func sanitizeFileName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = "submission"
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".bin"
	}
	return base + ext
}

func normalizeMime(m string) string {
	lower := strings.ToLower(strings.TrimSpace(m))
	if idx := strings.Index(lower, ";"); idx >= 0 {
		lower = strings.TrimSpace(lower[:idx])
	}
	if lower == "image/heif" {
		return "image/heic"
	}
	return lower
}
