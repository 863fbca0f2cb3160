package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrExtraction means the source audio could not be decoded. It is fatal.
	ErrExtraction = errors.New("audio extraction failed")
	// ErrCleaning means the cleaning filter chain failed as a whole.
	ErrCleaning = errors.New("cleaning chain failed")
	// ErrMeasurementParse means loudness statistics were missing or unusable.
	ErrMeasurementParse = errors.New("loudness measurement unparsable")
	// ErrNoiseReduction means spectral noise reduction failed.
	ErrNoiseReduction = errors.New("noise reduction failed")
	// ErrNormalization means a loudness correction pass failed.
	ErrNormalization = errors.New("loudness normalization failed")
	// ErrFinalize means the output could not be written in recognition format.
	ErrFinalize = errors.New("finalize failed")
)

// Stage names a step of the cleaning pipeline.
type Stage string

const (
	StageExtract   Stage = "extract"
	StageClean     Stage = "clean"
	StageDenoise   Stage = "denoise"
	StageMeasure   Stage = "measure"
	StageNormalize Stage = "normalize"
	StageFinalize  Stage = "finalize"
)

// StageError ties a failure to the pipeline stage that produced it. Kind is
// one of the package sentinels; Err is the underlying cause.
type StageError struct {
	Stage Stage
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

// Unwrap exposes both the sentinel and the cause to errors.Is and errors.As.
func (e *StageError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func stageErr(stage Stage, kind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// Outcome classifies how completely a pipeline run succeeded.
type Outcome int

const (
	// OutcomeFull means every stage ran as configured.
	OutcomeFull Outcome = iota
	// OutcomeDegraded means output was produced but at least one stage fell back.
	OutcomeDegraded
	// OutcomeFailed means no usable output was produced.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFull:
		return "full"
	case OutcomeDegraded:
		return "degraded"
	case OutcomeFailed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Degradation records a stage that failed recoverably and how it was handled.
type Degradation struct {
	Stage    Stage
	Err      error
	Fallback string
}
