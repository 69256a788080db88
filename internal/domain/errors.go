package domain

import (
	"errors"
	"fmt"
)

var (
	ErrExtraction        = errors.New("template text extraction failed")
	ErrGenerationIO      = errors.New("document write failed")
	ErrNotFound          = errors.New("not found")
	ErrSchemaUnavailable = errors.New("failed to parse schema from template")
	ErrInvalidInput      = errors.New("invalid input")
)

type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// WithStage tags err with stage. An error already carrying a stage is returned unchanged.
func WithStage(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

// StageOf reports the stage err was tagged with, or "" when untagged.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// ServiceError is a failed call to the generative-language model. Status is
// zero when the request never produced a response.
type ServiceError struct {
	Status int
	Body   string
	Err    error
}

func (e *ServiceError) Error() string {
	switch {
	case e.Status == 0 && e.Err != nil:
		return fmt.Sprintf("model service unreachable: %v", e.Err)
	case e.Status == 0:
		return "model service unreachable"
	case e.Body != "":
		return fmt.Sprintf("model service status %d: %s", e.Status, e.Body)
	default:
		return fmt.Sprintf("model service status %d", e.Status)
	}
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Transient reports whether a retry may succeed: transport failures, 429 and 5xx.
func (e *ServiceError) Transient() bool {
	return e.Status == 0 || e.Status == 429 || e.Status >= 500
}
