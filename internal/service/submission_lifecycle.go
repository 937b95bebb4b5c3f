package service

import (
	"fmt"

	"github.com/pleastandby/major-project-sub000/internal/models"
)

// lifecycleEvent is something that moves a submission between states.
type lifecycleEvent string

const (
	eventResubmit lifecycleEvent = "resubmit"
	eventExtract  lifecycleEvent = "extract"
	eventAIGrade  lifecycleEvent = "ai_grade"
	eventApprove  lifecycleEvent = "approve"
	eventOverride lifecycleEvent = "override"
)

var transitions = map[lifecycleEvent]map[models.SubmissionState]models.SubmissionState{
	eventResubmit: {
		models.StateCreated:   models.StateCreated,
		models.StateExtracted: models.StateCreated,
		models.StateAIGraded:  models.StateCreated,
	},
	eventExtract: {
		models.StateCreated:   models.StateExtracted,
		models.StateExtracted: models.StateExtracted,
	},
	eventAIGrade: {
		models.StateExtracted: models.StateAIGraded,
		models.StateAIGraded:  models.StateAIGraded,
	},
	eventApprove: {
		models.StateAIGraded:   models.StateApproved,
		models.StateApproved:   models.StateApproved,
		models.StateOverridden: models.StateOverridden,
	},
	eventOverride: {
		models.StateCreated:    models.StateOverridden,
		models.StateExtracted:  models.StateOverridden,
		models.StateAIGraded:   models.StateOverridden,
		models.StateApproved:   models.StateOverridden,
		models.StateOverridden: models.StateOverridden,
	},
}

// nextState returns the target state for event, or ErrInvalidTransition.
func nextState(from models.SubmissionState, event lifecycleEvent) (models.SubmissionState, error) {
	to, ok := transitions[event][from]
	if !ok {
		if event == eventResubmit && from.Reviewed() {
			return "", ErrResubmissionLocked
		}
		return "", fmt.Errorf("%w: cannot %s a submission in state %q", ErrInvalidTransition, event, from)
	}
	return to, nil
}
