package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/textproto"
	"sort"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pleastandby/major-project-sub000/internal/dto"
	"github.com/pleastandby/major-project-sub000/internal/models"
	"github.com/pleastandby/major-project-sub000/internal/repository"
	"github.com/pleastandby/major-project-sub000/pkg/ai"
	"github.com/pleastandby/major-project-sub000/pkg/ocr"
	"github.com/pleastandby/major-project-sub000/pkg/storage"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

type assignmentRepoStub struct {
	assignments map[uint]models.Assignment
	modeUpdates int
}

func newAssignmentRepoStub(items ...models.Assignment) *assignmentRepoStub {
	stub := &assignmentRepoStub{assignments: map[uint]models.Assignment{}}
	for _, item := range items {
		stub.assignments[item.ID] = item
	}
	return stub
}

func (s *assignmentRepoStub) GetByID(ctx context.Context, id uint) (models.Assignment, error) {
	item, ok := s.assignments[id]
	if !ok {
		return models.Assignment{}, gorm.ErrRecordNotFound
	}
	return item, nil
}

func (s *assignmentRepoStub) ListByCourseIDs(ctx context.Context, courseIDs []uint) ([]models.Assignment, error) {
	var result []models.Assignment
	for _, item := range s.assignments {
		if lo.Contains(courseIDs, item.CourseID) {
			result = append(result, item)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *assignmentRepoStub) Create(ctx context.Context, assignment *models.Assignment) error {
	next := uint(1)
	for id := range s.assignments {
		if id >= next {
			next = id + 1
		}
	}
	assignment.ID = next
	s.assignments[assignment.ID] = *assignment
	return nil
}

func (s *assignmentRepoStub) UpdateValuationMode(ctx context.Context, id uint, mode models.ValuationMode) error {
	item, ok := s.assignments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	item.ValuationMode = mode
	s.assignments[id] = item
	s.modeUpdates++
	return nil
}

type courseRepoStub struct {
	courses  map[uint]models.Course
	enrolled map[uint]map[uint]bool
}

func newCourseRepoStub(courses ...models.Course) *courseRepoStub {
	stub := &courseRepoStub{courses: map[uint]models.Course{}, enrolled: map[uint]map[uint]bool{}}
	for _, course := range courses {
		stub.courses[course.ID] = course
	}
	return stub
}

func (s *courseRepoStub) enroll(courseID, studentID uint) {
	if s.enrolled[courseID] == nil {
		s.enrolled[courseID] = map[uint]bool{}
	}
	s.enrolled[courseID][studentID] = true
}

func (s *courseRepoStub) GetByID(ctx context.Context, id uint) (models.Course, error) {
	course, ok := s.courses[id]
	if !ok {
		return models.Course{}, gorm.ErrRecordNotFound
	}
	return course, nil
}

func (s *courseRepoStub) IsEnrolled(ctx context.Context, courseID, studentID uint) (bool, error) {
	return s.enrolled[courseID][studentID], nil
}

// submissionRepoStub keeps submissions in memory and enforces the version check.
type submissionRepoStub struct {
	mu          sync.Mutex
	submissions map[uint]models.Submission
	history     []models.SubmissionGradeHistory
	updateCalls int
}

func newSubmissionRepoStub(items ...models.Submission) *submissionRepoStub {
	stub := &submissionRepoStub{submissions: map[uint]models.Submission{}}
	for _, item := range items {
		if item.Version == 0 {
			item.Version = 1
		}
		stub.submissions[item.ID] = item
	}
	return stub
}

func (s *submissionRepoStub) get(id uint) models.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submissions[id]
}

func (s *submissionRepoStub) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.submissions[id]
	if !ok {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return item, nil
}

func (s *submissionRepoStub) GetByAssignmentAndStudent(ctx context.Context, assignmentID, studentID uint) (models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.submissions {
		if item.AssignmentID == assignmentID && item.StudentID == studentID {
			return item, nil
		}
	}
	return models.Submission{}, gorm.ErrRecordNotFound
}

func (s *submissionRepoStub) ListByAssignment(ctx context.Context, assignmentID uint) ([]models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Submission
	for _, item := range s.submissions {
		if item.AssignmentID == assignmentID {
			result = append(result, item)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *submissionRepoStub) CountByAssignments(ctx context.Context, assignmentIDs []uint) (map[uint]repository.SubmissionStateCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := map[uint]repository.SubmissionStateCounts{}
	for _, id := range assignmentIDs {
		counts := repository.SubmissionStateCounts{}
		for _, item := range s.submissions {
			if item.AssignmentID != id {
				continue
			}
			counts.Total++
			switch item.State {
			case models.StateCreated:
				counts.AwaitingExtraction++
			case models.StateExtracted:
				counts.AwaitingGrading++
			case models.StateAIGraded:
				counts.AwaitingReview++
			default:
				counts.Graded++
			}
		}
		result[id] = counts
	}
	return result, nil
}

func (s *submissionRepoStub) Create(ctx context.Context, submission *models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.submissions {
		if item.AssignmentID == submission.AssignmentID && item.StudentID == submission.StudentID {
			return repository.ErrStaleSubmission
		}
	}
	submission.ID = uint(len(s.submissions) + 1)
	submission.Version = 1
	s.submissions[submission.ID] = *submission
	return nil
}

func (s *submissionRepoStub) UpdateVersioned(ctx context.Context, submission *models.Submission, history *models.SubmissionGradeHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.submissions[submission.ID]
	if !ok || current.Version != submission.Version {
		return repository.ErrStaleSubmission
	}
	submission.Version++
	s.submissions[submission.ID] = *submission
	s.updateCalls++
	if history != nil {
		entry := *history
		entry.SubmissionID = submission.ID
		s.history = append(s.history, entry)
	}
	return nil
}

func (s *submissionRepoStub) ListHistory(ctx context.Context, submissionID uint) ([]models.SubmissionGradeHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.SubmissionGradeHistory
	for _, entry := range s.history {
		if entry.SubmissionID == submissionID {
			result = append(result, entry)
		}
	}
	return result, nil
}

type storeStub struct {
	puts   int
	err    error
	bodies [][]byte
}

func (s *storeStub) Put(ctx context.Context, object storage.Object) (storage.Stored, error) {
	if s.err != nil {
		return storage.Stored{}, s.err
	}
	body, err := io.ReadAll(object.Body)
	if err != nil {
		return storage.Stored{}, err
	}
	s.puts++
	s.bodies = append(s.bodies, body)
	key := storage.ObjectKey("submissions", object.Name)
	return storage.Stored{Key: key, URL: "https://files.test/" + key}, nil
}

func (s *storeStub) URL(ctx context.Context, stored storage.Stored) (string, error) {
	return stored.URL, nil
}

type graderStub struct {
	mu     sync.Mutex
	calls  int
	inputs []ai.GradeInput
	grade  func(ctx context.Context, input ai.GradeInput) (ai.GradeResult, error)
}

func (g *graderStub) Grade(ctx context.Context, input ai.GradeInput) (ai.GradeResult, error) {
	g.mu.Lock()
	g.calls++
	g.inputs = append(g.inputs, input)
	g.mu.Unlock()
	return g.grade(ctx, input)
}

func fixedGrader(result ai.GradeResult) *graderStub {
	return &graderStub{grade: func(ctx context.Context, input ai.GradeInput) (ai.GradeResult, error) {
		return result, nil
	}}
}

type activityStub struct {
	entries []ActivityEntry
}

func (a *activityStub) Record(ctx context.Context, entry ActivityEntry) (dto.ActivityResponse, error) {
	a.entries = append(a.entries, entry)
	return dto.ActivityResponse{Action: entry.Action}, nil
}

func textExtractor(text string) ocr.Extractor {
	return ocr.ExtractorFunc(func(ctx context.Context, artifact ocr.Artifact) (string, error) {
		return text, nil
	})
}

func failingExtractor() ocr.Extractor {
	return ocr.ExtractorFunc(func(ctx context.Context, artifact ocr.Artifact) (string, error) {
		return "", errors.New("provider unavailable")
	})
}

func ptrFloat(v float64) *float64 {
	return &v
}

func ptrString(v string) *string {
	return &v
}

func buildFileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {"form-data; name=\"file\"; filename=\"" + filename + "\""},
		"Content-Type":        {"application/octet-stream"},
	})
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	writer.Close()

	reader := multipart.NewReader(body, writer.Boundary())
	form, err := reader.ReadForm(int64(len(content) + 1024))
	require.NoError(t, err)
	files := form.File["file"]
	require.Len(t, files, 1)
	return files[0]
}
