package domain

import "errors"

var (
	ErrUnknownStage   = errors.New("unknown stage")
	ErrUnknownStatus  = errors.New("unknown status")
	ErrNegativeOffset = errors.New("negative step offset")
)
