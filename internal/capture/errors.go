package capture

import (
	"context"
	"errors"

	"github.com/fpang/flipbook-booth/internal/camera"
)

// ErrorKind categorizes session failures.
type ErrorKind int

const (
	// ResourceUnavailable means the camera was denied, missing or busy.
	ResourceUnavailable ErrorKind = iota
	// AcquisitionTimeout means the target frame count was not reached in time.
	AcquisitionTimeout
	// EncodingFailure means a frame still failed to encode after retries.
	EncodingFailure
	// GenerationError means the cover-art call failed. It never fails a session.
	GenerationError
	// Canceled means the session was torn down or retaken.
	Canceled
	// ConfigurationError means the style and output size cannot be composited.
	ConfigurationError
)

func (k ErrorKind) String() string {
	switch k {
	case ResourceUnavailable:
		return "resource_unavailable"
	case AcquisitionTimeout:
		return "acquisition_timeout"
	case EncodingFailure:
		return "encoding_failure"
	case GenerationError:
		return "generation_error"
	case Canceled:
		return "canceled"
	case ConfigurationError:
		return "configuration_error"
	default:
		return "unknown"
	}
}

// Error is a session failure. Message is safe to show to the user.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Sentinel errors for result hand-off.
var (
	ErrResultConsumed = errors.New("capture result already consumed")
	ErrNotComplete    = errors.New("capture session has not completed")
	ErrAlreadyStarted = errors.New("capture session already started")
)

// KindOf returns the ErrorKind carried by err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// classifyAcquireError maps a camera provider failure to a session error.
func classifyAcquireError(err error) *Error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: Canceled, Message: "Session canceled before the camera was ready", Err: err}
	case errors.Is(err, camera.ErrPermissionDenied):
		return &Error{Kind: ResourceUnavailable, Message: "Camera access was denied. Allow camera access and try again", Err: err}
	case errors.Is(err, camera.ErrNoDevice):
		return &Error{Kind: ResourceUnavailable, Message: "No camera was found", Err: err}
	case errors.Is(err, camera.ErrBusy):
		return &Error{Kind: ResourceUnavailable, Message: "The camera is in use by another application", Err: err}
	default:
		return &Error{Kind: ResourceUnavailable, Message: "Could not access the camera", Err: err}
	}
}

// asError normalizes an acquisition or finalization failure.
func asError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: Canceled, Message: "Session canceled", Err: err}
	}
	if errors.Is(err, camera.ErrReleased) {
		return &Error{Kind: ResourceUnavailable, Message: "The camera was released during capture", Err: err}
	}
	return &Error{Kind: ResourceUnavailable, Message: "Capture failed", Err: err}
}
