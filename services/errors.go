package services

import (
	"errors"
	"fmt"
)

// ErrNoMedia is returned when media resolution finds no candidate for a
// query. Nothing is cached on this path, so retries start from scratch.
var ErrNoMedia = errors.New("no media found")

// ErrNotFound is returned when a cache artifact or metadata record is absent.
var ErrNotFound = errors.New("not found")

// StageError wraps a dependency failure with the pipeline stage it occurred
// in, so callers can distinguish resolve failures from fetch failures.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with its originating stage.
func NewStageError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
