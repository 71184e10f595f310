package domain

import (
	"encoding/json"
	"fmt"
)

// Stage identifies one step of the depicted pipeline. Values double as element
// identifiers on the display page.
type Stage string

const (
	StageCodePushed    Stage = "code-pushed"
	StageGitHubActions Stage = "github-actions"
	StageDockerBuild   Stage = "docker-build"
	StageDeployment    Stage = "deployment"
)

// Stages returns every stage in pipeline order.
func Stages() []Stage {
	return []Stage{StageCodePushed, StageGitHubActions, StageDockerBuild, StageDeployment}
}

func (s Stage) Valid() bool {
	switch s {
	case StageCodePushed, StageGitHubActions, StageDockerBuild, StageDeployment:
		return true
	}
	return false
}

// Status is the depicted state of a stage.
type Status string

const (
	StatusProcessing Status = "Processing"
	StatusSuccess    Status = "Success"
)

func (s Status) Valid() bool {
	return s == StatusProcessing || s == StatusSuccess
}

// TriggerMessage is the fixed payload a display client sends when the user asks
// for a simulation. The notifier does not act on it.
const TriggerMessage = "start-simulation"

// StatusUpdate is the only message the notifier sends to clients.
type StatusUpdate struct {
	Stage  Stage  `json:"stage"`
	Status Status `json:"status"`
}

func (u StatusUpdate) String() string {
	return fmt.Sprintf("%s=%s", u.Stage, u.Status)
}

// Validate reports whether both fields hold known values.
func (u StatusUpdate) Validate() error {
	if !u.Stage.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStage, u.Stage)
	}
	if !u.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, u.Status)
	}
	return nil
}

// DecodeStatusUpdate parses a wire message. Unknown stage or status values are
// accepted; receivers decide what to do with them.
func DecodeStatusUpdate(data []byte) (StatusUpdate, error) {
	var u StatusUpdate
	if err := json.Unmarshal(data, &u); err != nil {
		return StatusUpdate{}, fmt.Errorf("decode status update: %w", err)
	}
	return u, nil
}
