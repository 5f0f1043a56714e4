// Package camera defines the webcam resource a capture session owns, and the
// providers that can supply it.
//
// A Stream is exclusively owned: at most one is live per Exclusive guard, and
// Release stops every underlying track. Streams that can record continuously
// also implement Recorder.
package camera

import (
	"context"
	"errors"
	"image"
	"time"
)

// Provider failures. ErrPermissionDenied and ErrNoDevice are the only errors a
// session may see when starting.
var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNoDevice         = errors.New("no camera device found")
	ErrBusy             = errors.New("camera is in use by another session")
	ErrNotReady         = errors.New("camera has not produced a frame yet")
	ErrReleased         = errors.New("camera stream has been released")
	ErrNoRecorder       = errors.New("camera stream does not support recording")
)

// Constraints request a camera configuration. Width and Height are ideals,
// not guarantees.
type Constraints struct {
	FacingMode string
	Width      int
	Height     int
}

// DefaultConstraints asks for the front camera at 1280x720.
func DefaultConstraints() Constraints {
	return Constraints{FacingMode: "user", Width: 1280, Height: 720}
}

// Provider acquires camera streams.
type Provider interface {
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is a live camera. Frame returns the most recent frame; its
// dimensions may change between calls if the device renegotiates.
type Stream interface {
	Frame() (image.Image, error)
	Release() error
}

// Recorder is implemented by streams that can record a clip.
type Recorder interface {
	Record(ctx context.Context, d time.Duration) (Clip, error)
}

// Clip is a finished recording. Duration is the measured length, which can
// differ from the requested one.
type Clip interface {
	Duration() time.Duration
	FrameAt(ctx context.Context, t time.Duration) (image.Image, error)
	Close() error
}
