package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/pleastandby/major-project-sub000/internal/dto"
	"github.com/pleastandby/major-project-sub000/internal/models"
	"github.com/pleastandby/major-project-sub000/pkg/ai"
)

var reviewer = ActivityActor{ID: 7, Role: "instructor"}

func gradingAssignment() models.Assignment {
	return models.Assignment{
		ID:       2,
		CourseID: 1,
		Title:    "Thermodynamics",
		Questions: []models.Question{
			{QuestionText: "State the first law", Marks: 40},
			{QuestionText: "Derive the Carnot efficiency", Marks: 60},
		},
		MaxPoints:     100,
		ValuationMode: models.ValuationLiberal,
		Course:        models.Course{ID: 1, InstructorID: 7},
	}
}

func extractedSubmission() models.Submission {
	return models.Submission{
		ID:           10,
		AssignmentID: 2,
		StudentID:    3,
		OCRText:      ptrString("Energy is conserved."),
		State:        models.StateExtracted,
		Status:       models.SubmissionStatusSubmitted,
		Version:      1,
	}
}

type gradingFixture struct {
	svc         GradingService
	submissions *submissionRepoStub
	grader      *graderStub
	activity    *activityStub
}

func newGradingFixture(t *testing.T, submission models.Submission, grader *graderStub, timeout time.Duration) gradingFixture {
	t.Helper()
	submissions := newSubmissionRepoStub(submission)
	activity := &activityStub{}
	svc := NewGradingService(GradingServiceConfig{
		Assignments: newAssignmentRepoStub(gradingAssignment()),
		Submissions: submissions,
		Grader:      grader,
		Validator:   validator.New(validator.WithRequiredStructEnabled()),
		Activity:    activity,
		Hooks:       PipelineHooks{Logger: testLogger()},
		Timeout:     timeout,
		Logger:      testLogger(),
	})
	return gradingFixture{svc: svc, submissions: submissions, grader: grader, activity: activity}
}

func TestGradingOverrideAfterAIGrade(t *testing.T) {
	grader := fixedGrader(ai.GradeResult{Grade: 85, Feedback: "Solid derivation", Analysis: "Q1 full marks, Q2 missed a step"})
	f := newGradingFixture(t, extractedSubmission(), grader, time.Second)
	ctx := context.Background()

	graded, err := f.svc.RequestAIGrade(ctx, reviewer, 10)
	require.NoError(t, err)
	require.Equal(t, 85.0, *graded.Grade)
	require.Equal(t, models.GradingModeAI, *graded.GradingMode)
	require.Equal(t, string(models.StateAIGraded), graded.State)
	require.Equal(t, models.SubmissionStatusSubmitted, graded.Status)
	require.Equal(t, 100.0, graded.MaxScore)

	require.Len(t, grader.inputs, 1)
	require.Equal(t, 100.0, grader.inputs[0].MaxScore)
	require.Equal(t, ai.ValuationLiberal, grader.inputs[0].ValuationMode)
	require.Len(t, grader.inputs[0].Questions, 2)

	overridden, err := f.svc.Override(ctx, reviewer, 10, dto.GradeOverrideRequest{Grade: ptrFloat(90), Feedback: "Good work"})
	require.NoError(t, err)
	require.Equal(t, 90.0, *overridden.Grade)
	require.Equal(t, models.GradingModeManual, *overridden.GradingMode)
	require.Equal(t, models.SubmissionStatusGraded, overridden.Status)
	require.Equal(t, "Good work", *overridden.Feedback)
	require.Equal(t, "Q1 full marks, Q2 missed a step", *overridden.AIAnalysis)
	require.Equal(t, reviewer.ID, *overridden.GradedBy)

	stored := f.submissions.get(10)
	require.Equal(t, models.StateOverridden, stored.State)
	require.Len(t, f.submissions.history, 2)
	require.Equal(t, models.GradeEventOverridden, f.submissions.history[1].Event)
	require.Len(t, f.activity.entries, 1)
	require.Equal(t, "submission.overridden", f.activity.entries[0].Action)
	require.Equal(t, 85.0, f.activity.entries[0].Metadata["previous_grade"])
}

func TestGradingOverrideOutOfRangeLeavesSubmission(t *testing.T) {
	f := newGradingFixture(t, extractedSubmission(), fixedGrader(ai.GradeResult{}), time.Second)

	_, err := f.svc.Override(context.Background(), reviewer, 10, dto.GradeOverrideRequest{Grade: ptrFloat(101)})
	require.ErrorIs(t, err, ErrOutOfRangeGrade)
	require.Equal(t, KindFixInput, ClassifyError(err).Kind)

	_, err = f.svc.Override(context.Background(), reviewer, 10, dto.GradeOverrideRequest{Grade: ptrFloat(-1)})
	require.ErrorIs(t, err, ErrOutOfRangeGrade)

	stored := f.submissions.get(10)
	require.Nil(t, stored.Grade)
	require.Equal(t, models.StateExtracted, stored.State)
	require.Equal(t, 0, f.submissions.updateCalls)
}

func TestGradingOverrideRequiresGrade(t *testing.T) {
	f := newGradingFixture(t, extractedSubmission(), fixedGrader(ai.GradeResult{}), time.Second)

	_, err := f.svc.Override(context.Background(), reviewer, 10, dto.GradeOverrideRequest{Feedback: "missing"})
	require.Error(t, err)
	require.Equal(t, KindFixInput, ClassifyError(err).Kind)
}

func TestGradingOverrideAfterApproval(t *testing.T) {
	f := newGradingFixture(t, extractedSubmission(), fixedGrader(ai.GradeResult{Grade: 70, Feedback: "ok"}), time.Second)
	ctx := context.Background()

	_, err := f.svc.RequestAIGrade(ctx, reviewer, 10)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, reviewer, 10)
	require.NoError(t, err)

	result, err := f.svc.Override(ctx, reviewer, 10, dto.GradeOverrideRequest{Grade: ptrFloat(75)})
	require.NoError(t, err)
	require.Equal(t, string(models.StateOverridden), result.State)
	require.Equal(t, models.GradingModeManual, *result.GradingMode)
	require.Nil(t, result.Feedback)
}

func TestGradingAIRequiresExtraction(t *testing.T) {
	submission := extractedSubmission()
	submission.OCRText = nil
	submission.State = models.StateCreated
	grader := fixedGrader(ai.GradeResult{Grade: 50})
	f := newGradingFixture(t, submission, grader, time.Second)

	_, err := f.svc.RequestAIGrade(context.Background(), reviewer, 10)
	require.ErrorIs(t, err, ErrMissingExtraction)
	require.Equal(t, KindWrongOrder, ClassifyError(err).Kind)
	require.Equal(t, 0, grader.calls)
}

func TestGradingAIRegenerationReplacesFields(t *testing.T) {
	results := []ai.GradeResult{
		{Grade: 60, Feedback: "first pass", Analysis: "first analysis"},
		{Grade: 72, Feedback: "second pass", Analysis: "second analysis"},
	}
	grader := &graderStub{}
	grader.grade = func(ctx context.Context, input ai.GradeInput) (ai.GradeResult, error) {
		return results[grader.calls-1], nil
	}
	f := newGradingFixture(t, extractedSubmission(), grader, time.Second)
	ctx := context.Background()

	_, err := f.svc.RequestAIGrade(ctx, reviewer, 10)
	require.NoError(t, err)
	second, err := f.svc.RequestAIGrade(ctx, reviewer, 10)
	require.NoError(t, err)

	require.Equal(t, 72.0, *second.Grade)
	require.Equal(t, "second pass", *second.Feedback)
	require.Equal(t, "second analysis", *second.AIAnalysis)
	require.Equal(t, 3, second.Version)
}

func TestGradingAIClampsOutOfRangeGrade(t *testing.T) {
	f := newGradingFixture(t, extractedSubmission(), fixedGrader(ai.GradeResult{Grade: 130, Feedback: "generous"}), time.Second)

	result, err := f.svc.RequestAIGrade(context.Background(), reviewer, 10)
	require.NoError(t, err)
	require.Equal(t, 100.0, *result.Grade)
}

func TestGradingAISanitizesFeedback(t *testing.T) {
	f := newGradingFixture(t, extractedSubmission(), fixedGrader(ai.GradeResult{Grade: 50, Feedback: "Nice<script>alert(1)</script>", Analysis: "<b>ok</b>"}), time.Second)

	result, err := f.svc.RequestAIGrade(context.Background(), reviewer, 10)
	require.NoError(t, err)
	require.Equal(t, "Nice", *result.Feedback)
	require.Equal(t, "<b>ok</b>", *result.AIAnalysis)
}

func TestGradingFeedbackKeepsMarkdownPunctuation(t *testing.T) {
	grader := fixedGrader(ai.GradeResult{Grade: 70, Feedback: "Check that x < 5 && y > 2", Analysis: "Q2: `a -> b` & 3 > 2"})
	f := newGradingFixture(t, extractedSubmission(), grader, time.Second)
	ctx := context.Background()

	graded, err := f.svc.RequestAIGrade(ctx, reviewer, 10)
	require.NoError(t, err)
	require.Equal(t, "Check that x < 5 && y > 2", *graded.Feedback)
	require.Equal(t, "Q2: `a -> b` & 3 > 2", *graded.AIAnalysis)
	require.Equal(t, "Check that x < 5 && y > 2", f.submissions.history[0].Feedback)

	overridden, err := f.svc.Override(ctx, reviewer, 10, dto.GradeOverrideRequest{Grade: ptrFloat(75), Feedback: "Use a < b & c > d in **step 2**"})
	require.NoError(t, err)
	require.Equal(t, "Use a < b & c > d in **step 2**", *overridden.Feedback)
	require.Equal(t, "Use a < b & c > d in **step 2**", *f.submissions.get(10).Feedback)
}

func TestGradingAIStripsEncodedMarkup(t *testing.T) {
	f := newGradingFixture(t, extractedSubmission(), fixedGrader(ai.GradeResult{Grade: 60, Feedback: "&lt;script&gt;alert(1)&lt;/script&gt;Fine"}), time.Second)

	result, err := f.svc.RequestAIGrade(context.Background(), reviewer, 10)
	require.NoError(t, err)
	require.Equal(t, "Fine", *result.Feedback)
}

func TestGradingOverrideRejectsDisallowedMarkup(t *testing.T) {
	f := newGradingFixture(t, extractedSubmission(), fixedGrader(ai.GradeResult{}), time.Second)

	_, err := f.svc.Override(context.Background(), reviewer, 10, dto.GradeOverrideRequest{Grade: ptrFloat(80), Feedback: "Nice<script>alert(1)</script>"})
	require.ErrorIs(t, err, ErrUnsafeFeedback)
	require.Equal(t, KindFixInput, ClassifyError(err).Kind)
	require.Equal(t, 0, f.submissions.updateCalls)
	require.Nil(t, f.submissions.get(10).Grade)
}

func TestGradingAITimeoutWritesNothing(t *testing.T) {
	grader := &graderStub{grade: func(ctx context.Context, input ai.GradeInput) (ai.GradeResult, error) {
		<-ctx.Done()
		return ai.GradeResult{}, ctx.Err()
	}}
	f := newGradingFixture(t, extractedSubmission(), grader, 20*time.Millisecond)

	_, err := f.svc.RequestAIGrade(context.Background(), reviewer, 10)
	require.ErrorIs(t, err, ErrGradingTimeout)
	require.True(t, ClassifyError(err).Retryable)

	stored := f.submissions.get(10)
	require.Nil(t, stored.Grade)
	require.Equal(t, models.StateExtracted, stored.State)
	require.Equal(t, 0, f.submissions.updateCalls)
}

func TestGradingAIProviderFailure(t *testing.T) {
	grader := &graderStub{grade: func(ctx context.Context, input ai.GradeInput) (ai.GradeResult, error) {
		return ai.GradeResult{}, ai.ErrMalformedResponse
	}}
	f := newGradingFixture(t, extractedSubmission(), grader, time.Second)

	_, err := f.svc.RequestAIGrade(context.Background(), reviewer, 10)
	require.ErrorIs(t, err, ErrGrading)
	require.Equal(t, KindRetry, ClassifyError(err).Kind)
}

func TestGradingAIRejectsConcurrentRequest(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	grader := &graderStub{grade: func(ctx context.Context, input ai.GradeInput) (ai.GradeResult, error) {
		close(started)
		<-release
		return ai.GradeResult{Grade: 40, Feedback: "done"}, nil
	}}
	f := newGradingFixture(t, extractedSubmission(), grader, 5*time.Second)

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = f.svc.RequestAIGrade(context.Background(), reviewer, 10)
	}()

	<-started
	_, err := f.svc.RequestAIGrade(context.Background(), reviewer, 10)
	require.ErrorIs(t, err, ErrGradingInProgress)

	close(release)
	wg.Wait()
	require.NoError(t, firstErr)
	require.Equal(t, 1, grader.calls)
}

func TestGradingAIAfterReviewIsRejected(t *testing.T) {
	submission := extractedSubmission()
	submission.State = models.StateApproved
	submission.Grade = ptrFloat(80)
	grader := fixedGrader(ai.GradeResult{Grade: 10})
	f := newGradingFixture(t, submission, grader, time.Second)

	_, err := f.svc.RequestAIGrade(context.Background(), reviewer, 10)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, 0, grader.calls)
}

func TestGradingApproveWithoutGrade(t *testing.T) {
	f := newGradingFixture(t, extractedSubmission(), fixedGrader(ai.GradeResult{}), time.Second)

	_, err := f.svc.Approve(context.Background(), reviewer, 10)
	require.ErrorIs(t, err, ErrNotGraded)
	require.Equal(t, KindWrongOrder, ClassifyError(err).Kind)
}

func TestGradingApproveIsIdempotent(t *testing.T) {
	f := newGradingFixture(t, extractedSubmission(), fixedGrader(ai.GradeResult{Grade: 55, Feedback: "fine"}), time.Second)
	ctx := context.Background()

	_, err := f.svc.RequestAIGrade(ctx, reviewer, 10)
	require.NoError(t, err)

	approved, err := f.svc.Approve(ctx, reviewer, 10)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusGraded, approved.Status)
	require.Equal(t, models.GradingModeAI, *approved.GradingMode)
	require.Equal(t, reviewer.ID, *approved.GradedBy)

	again, err := f.svc.Approve(ctx, reviewer, 10)
	require.NoError(t, err)
	require.Equal(t, approved.Version, again.Version)
	require.Len(t, f.activity.entries, 1)
}

func TestGradingApproveKeepsManualProvenance(t *testing.T) {
	f := newGradingFixture(t, extractedSubmission(), fixedGrader(ai.GradeResult{}), time.Second)
	ctx := context.Background()

	_, err := f.svc.Override(ctx, reviewer, 10, dto.GradeOverrideRequest{Grade: ptrFloat(64)})
	require.NoError(t, err)

	result, err := f.svc.Approve(ctx, reviewer, 10)
	require.NoError(t, err)
	require.Equal(t, string(models.StateOverridden), result.State)
	require.Equal(t, models.GradingModeManual, *result.GradingMode)
}

func TestGradingRequiresCourseInstructor(t *testing.T) {
	f := newGradingFixture(t, extractedSubmission(), fixedGrader(ai.GradeResult{Grade: 10}), time.Second)
	ctx := context.Background()

	_, err := f.svc.RequestAIGrade(ctx, ActivityActor{ID: 8, Role: "instructor"}, 10)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Override(ctx, ActivityActor{ID: 3, Role: "student"}, 10, dto.GradeOverrideRequest{Grade: ptrFloat(100)})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Approve(ctx, reviewer, 999)
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestGradingStaleWriteIsConcurrentModification(t *testing.T) {
	f := newGradingFixture(t, extractedSubmission(), fixedGrader(ai.GradeResult{}), time.Second)
	f.grader.grade = func(ctx context.Context, input ai.GradeInput) (ai.GradeResult, error) {
		_, err := f.svc.Override(ctx, reviewer, 10, dto.GradeOverrideRequest{Grade: ptrFloat(90)})
		if err != nil {
			return ai.GradeResult{}, errors.New("override failed")
		}
		return ai.GradeResult{Grade: 20, Feedback: "late"}, nil
	}

	_, err := f.svc.RequestAIGrade(context.Background(), reviewer, 10)
	require.ErrorIs(t, err, ErrConcurrentModification)

	stored := f.submissions.get(10)
	require.Equal(t, 90.0, *stored.Grade)
	require.Equal(t, models.GradingModeManual, *stored.GradingMode)
}
