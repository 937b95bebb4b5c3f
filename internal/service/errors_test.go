package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/pleastandby/major-project-sub000/internal/models"
)

func TestClassifyError(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validationErr := validate.Struct(struct {
		Name string `validate:"required"`
	}{})

	cases := []struct {
		err       error
		kind      ErrorKind
		retryable bool
	}{
		{validationErr, KindFixInput, false},
		{fmt.Errorf("%w: too big", ErrInvalidArtifact), KindFixInput, false},
		{ErrOutOfRangeGrade, KindFixInput, false},
		{fmt.Errorf("override: %w", ErrUnsafeFeedback), KindFixInput, false},
		{fmt.Errorf("%w: s3 down", ErrStorage), KindRetry, true},
		{ErrExtraction, KindRetry, true},
		{ErrGradingTimeout, KindRetry, true},
		{ErrConcurrentModification, KindRetry, true},
		{ErrMissingExtraction, KindWrongOrder, false},
		{ErrResubmissionLocked, KindWrongOrder, false},
		{ErrSubmissionNotFound, KindNotFound, false},
		{ErrNotEnrolled, KindForbidden, false},
		{errors.New("boom"), KindInternal, false},
	}

	for _, tc := range cases {
		got := ClassifyError(tc.err)
		require.Equal(t, tc.kind, got.Kind, tc.err.Error())
		require.Equal(t, tc.retryable, got.Retryable, tc.err.Error())
	}
}

func TestNextState(t *testing.T) {
	next, err := nextState(models.StateCreated, eventExtract)
	require.NoError(t, err)
	require.Equal(t, models.StateExtracted, next)

	next, err = nextState(models.StateApproved, eventOverride)
	require.NoError(t, err)
	require.Equal(t, models.StateOverridden, next)

	next, err = nextState(models.StateOverridden, eventApprove)
	require.NoError(t, err)
	require.Equal(t, models.StateOverridden, next)

	_, err = nextState(models.StateApproved, eventResubmit)
	require.ErrorIs(t, err, ErrResubmissionLocked)

	_, err = nextState(models.StateCreated, eventAIGrade)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = nextState(models.StateExtracted, eventApprove)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSubmissionLocks(t *testing.T) {
	locks := newSubmissionLocks()
	require.True(t, locks.TryLock(1))
	require.False(t, locks.TryLock(1))
	require.True(t, locks.TryLock(2))
	locks.Unlock(1)
	require.True(t, locks.TryLock(1))
}
