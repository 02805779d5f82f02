package trial

import (
	"context"
	"errors"
	"strings"

	"github.com/RyanBlaney/sonido-canto/scoring"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrExtraction    = errors.New("extraction failed")
	ErrConfiguration = errors.New("configuration error")
)

// Stages of one trial.
const (
	StageValidate = "validate"
	StageExtract  = "extract"
	StageScore    = "score"
)

// StageError carries the trial and stage a failure happened in. It matches
// both its marker and its cause with errors.Is.
type StageError struct {
	Marker  error
	TrialID string
	Stage   string
	Message string
	Err     error
}

// Wrap tags err with a marker and the trial/stage context. The marker
// should be one of the exported sentinel errors above.
func Wrap(marker error, trialID, stage, message string, err error) error {
	if marker == nil {
		marker = ErrExtraction
	}
	return &StageError{
		Marker:  marker,
		TrialID: strings.TrimSpace(trialID),
		Stage:   strings.TrimSpace(stage),
		Message: strings.TrimSpace(message),
		Err:     err,
	}
}

func (e *StageError) Error() string {
	parts := make([]string, 0, 5)
	parts = append(parts, e.Marker.Error())
	if e.TrialID != "" {
		parts = append(parts, "trial "+e.TrialID)
	}
	if e.Stage != "" {
		parts = append(parts, e.Stage)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Marker}
	}
	return []error{e.Marker, e.Err}
}

// Classify names the failure class of err for reports: "ok", "canceled",
// "invalid_input", "configuration" or "extraction".
func Classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrInvalidInput), errors.Is(err, scoring.ErrEmptyChord), errors.Is(err, scoring.ErrInvalidPitch):
		return "invalid_input"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "extraction"
	}
}
