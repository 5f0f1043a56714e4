// Package preview renders a finished sequence as a looping flipbook.
package preview

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"time"

	"github.com/fpang/flipbook-booth/internal/clock"
	"github.com/fpang/flipbook-booth/internal/compositor"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
)

// Defaults match the on-screen flipbook.
const (
	DefaultWidth  = 320
	DefaultHeight = 180
	DefaultDelay  = 150 * time.Millisecond
)

const (
	counterSize    = 10
	counterPadding = 6
)

var counterBackground = color.NRGBA{A: 140}

// Options configure the preview animation.
type Options struct {
	Width   int
	Height  int
	Delay   time.Duration
	Counter bool
}

// DefaultOptions returns a 320x180 loop at 150ms per frame with a counter.
func DefaultOptions() Options {
	return Options{Width: DefaultWidth, Height: DefaultHeight, Delay: DefaultDelay, Counter: true}
}

// Label is the frame counter text for zero-based index i of n.
func Label(i, n int) string {
	return fmt.Sprintf("%d — %d", i+1, n)
}

// Render decodes frames and builds a looping GIF.
func Render(frames []compositor.Frame, opts Options) (*gif.GIF, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("preview needs at least one frame")
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("preview size must be positive, got %dx%d", opts.Width, opts.Height)
	}
	delay := int(opts.Delay / (10 * time.Millisecond))
	if delay <= 0 {
		delay = int(DefaultDelay / (10 * time.Millisecond))
	}

	var face font.Face
	if opts.Counter {
		f, err := compositor.MonoFace(counterSize)
		if err != nil {
			return nil, err
		}
		face = f
	}

	start := time.Now()
	out := &gif.GIF{LoopCount: 0}
	bounds := image.Rect(0, 0, opts.Width, opts.Height)
	for i, frame := range frames {
		src, _, err := image.Decode(bytes.NewReader(frame.Data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode frame %d: %w", i, err)
		}

		scaled := image.NewRGBA(bounds)
		draw.CatmullRom.Scale(scaled, bounds, src, src.Bounds(), draw.Src, nil)
		if face != nil {
			drawCounter(scaled, face, Label(i, len(frames)))
		}

		paletted := image.NewPaletted(bounds, palette.Plan9)
		draw.FloydSteinberg.Draw(paletted, bounds, scaled, image.Point{})
		out.Image = append(out.Image, paletted)
		out.Delay = append(out.Delay, delay)
	}

	log.Debug().
		Int("frame_count", len(frames)).
		Int("delay_cs", delay).
		Dur("duration", time.Since(start)).
		Msg("Preview rendered")

	return out, nil
}

// Encode writes the preview GIF to w.
func Encode(w io.Writer, frames []compositor.Frame, opts Options) error {
	g, err := Render(frames, opts)
	if err != nil {
		return err
	}
	if err := gif.EncodeAll(w, g); err != nil {
		return fmt.Errorf("failed to encode preview: %w", err)
	}
	return nil
}

// drawCounter draws label in the bottom-right corner on a dark plate.
func drawCounter(dst *image.RGBA, face font.Face, label string) {
	text := compositor.RenderText(face, label, color.White)
	tb := text.Bounds()
	if tb.Empty() {
		return
	}
	b := dst.Bounds()
	origin := image.Pt(b.Max.X-tb.Dx()-2*counterPadding, b.Max.Y-tb.Dy()-2*counterPadding)
	plate := image.Rect(origin.X, origin.Y, b.Max.X-counterPadding/2, b.Max.Y-counterPadding/2)
	draw.Draw(dst, plate, image.NewUniform(counterBackground), image.Point{}, draw.Over)
	at := origin.Add(image.Pt(counterPadding/2, counterPadding/2))
	draw.Draw(dst, tb.Add(at), text, image.Point{}, draw.Over)
}

// Loop calls show with successive frame indices every delay, wrapping after
// n, until ctx is done. The first index is shown immediately.
func Loop(ctx context.Context, clk clock.Clock, n int, delay time.Duration, show func(i int)) error {
	if n <= 0 {
		return fmt.Errorf("preview needs at least one frame")
	}
	if clk == nil {
		clk = clock.Real()
	}
	if delay <= 0 {
		delay = DefaultDelay
	}

	i := 0
	show(i)
	ticker := clk.NewTicker(delay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			i = (i + 1) % n
			show(i)
		}
	}
}
