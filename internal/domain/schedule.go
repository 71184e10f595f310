package domain

import (
	"fmt"
	"time"
)

// Step is one scheduled emission, relative to connection establishment.
type Step struct {
	Offset time.Duration
	Update StatusUpdate
}

// DefaultSchedule returns the scripted pipeline run every connection receives.
func DefaultSchedule() []Step {
	return []Step{
		{Offset: 2 * time.Second, Update: StatusUpdate{Stage: StageCodePushed, Status: StatusSuccess}},
		{Offset: 4 * time.Second, Update: StatusUpdate{Stage: StageGitHubActions, Status: StatusProcessing}},
		{Offset: 6 * time.Second, Update: StatusUpdate{Stage: StageGitHubActions, Status: StatusSuccess}},
		{Offset: 8 * time.Second, Update: StatusUpdate{Stage: StageDockerBuild, Status: StatusProcessing}},
		{Offset: 10 * time.Second, Update: StatusUpdate{Stage: StageDockerBuild, Status: StatusSuccess}},
		{Offset: 12 * time.Second, Update: StatusUpdate{Stage: StageDeployment, Status: StatusProcessing}},
		{Offset: 14 * time.Second, Update: StatusUpdate{Stage: StageDeployment, Status: StatusSuccess}},
	}
}

// ValidateSchedule rejects steps a display client could not render and
// offsets before connection time.
func ValidateSchedule(steps []Step) error {
	for i, step := range steps {
		if step.Offset < 0 {
			return fmt.Errorf("step %d: %w: %v", i, ErrNegativeOffset, step.Offset)
		}
		if err := step.Update.Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}
