package capture

import (
	"image"
	"time"

	"github.com/fpang/flipbook-booth/internal/compositor"
	"github.com/fpang/flipbook-booth/internal/style"
	"golang.org/x/image/draw"
)

// Sample is one acquired frame, either already encoded or waiting for the
// finalization pass. Samples are owned by their session and never shared.
type Sample interface {
	Encode(c *compositor.Compositor) (compositor.Frame, error)
}

// EncodedSample is a frame composited and encoded during acquisition.
type EncodedSample struct {
	Frame compositor.Frame
}

// Encode returns the stored frame.
func (s EncodedSample) Encode(*compositor.Compositor) (compositor.Frame, error) {
	return s.Frame, nil
}

// RawSample is a private copy of a camera frame, composited and encoded
// only when Encode is called.
type RawSample struct {
	Pixels *image.RGBA
	Style  style.Spec
}

// Snapshot copies src so later camera frames cannot alter it.
func Snapshot(src image.Image, s style.Spec) RawSample {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return RawSample{Pixels: dst, Style: s}
}

// Encode composites and encodes the snapshot.
func (s RawSample) Encode(c *compositor.Compositor) (compositor.Frame, error) {
	return c.Composite(s.Pixels, s.Style)
}

// FinishedSequence is the immutable result of a completed session: the
// requested number of frames in temporal order plus one end card.
type FinishedSequence struct {
	SessionID  string
	Strategy   string
	Style      style.Spec
	CapturedAt time.Time
	Frames     []compositor.Frame
	EndCard    compositor.Frame
}

// Len returns the number of images including the end card.
func (f *FinishedSequence) Len() int {
	return len(f.Frames) + 1
}

// Images returns every frame followed by the end card.
func (f *FinishedSequence) Images() []compositor.Frame {
	out := make([]compositor.Frame, 0, f.Len())
	out = append(out, f.Frames...)
	return append(out, f.EndCard)
}

// DataURIs returns Images as data URIs.
func (f *FinishedSequence) DataURIs() []string {
	images := f.Images()
	out := make([]string, len(images))
	for i, img := range images {
		out[i] = img.DataURI()
	}
	return out
}
