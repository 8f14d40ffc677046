package models

import (
	"errors"
	"fmt"
)

// ErrValidation represents a validation error with field and message.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Engine error taxonomy. Sentinels classify job failures; detail is carried
// by wrapping, e.g. fmt.Errorf("%w: %s", ErrEncoderFailed, tail).
var (
	// ErrProbeFailed indicates ffprobe could not analyze the input file.
	ErrProbeFailed = errors.New("probe failed")

	// ErrEncoderUnavailable indicates no encoder can produce the target codec.
	ErrEncoderUnavailable = errors.New("no capable encoder available")

	// ErrEncoderFailed indicates ffmpeg exited with an error during encoding.
	ErrEncoderFailed = errors.New("encoder failed")

	// ErrCancelled indicates the job was cancelled while running.
	ErrCancelled = errors.New("job cancelled")

	// ErrQualityCheckFailed indicates the encoded output scored below the
	// configured VMAF threshold.
	ErrQualityCheckFailed = errors.New("quality check failed")

	// ErrOutputRejected indicates the encoded output failed a finalize gate
	// (missing, empty, or insufficient size reduction).
	ErrOutputRejected = errors.New("output rejected")

	// ErrStoreError indicates a persistence failure.
	ErrStoreError = errors.New("store error")

	// ErrJobNotFound indicates the requested job does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidState indicates an operation is not valid for the job's
	// current state.
	ErrInvalidState = errors.New("invalid job state for operation")

	// ErrNotRunning indicates the engine is not running.
	ErrNotRunning = errors.New("engine not running")
)
