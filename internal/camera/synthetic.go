package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fpang/flipbook-booth/internal/clock"
)

// Synthetic is a Provider that renders a moving test pattern. It needs no
// hardware, which makes it the provider for tests and dry runs.
type Synthetic struct {
	Width  int
	Height int

	// AcquireErr, when set, is returned from every Acquire.
	AcquireErr error
	// NotReadyFrames is how many initial Frame calls return ErrNotReady.
	NotReadyFrames int
	// FrameInterval paces recording. Defaults to 33ms.
	FrameInterval time.Duration
	// Clock drives recording. Defaults to the real clock.
	Clock clock.Clock

	acquired atomic.Int32
	released atomic.Int32
}

// NewSynthetic returns a Synthetic provider producing w x h frames.
func NewSynthetic(w, h int) *Synthetic {
	return &Synthetic{Width: w, Height: h}
}

// Acquired returns how many streams have been handed out.
func (s *Synthetic) Acquired() int { return int(s.acquired.Load()) }

// Released returns how many streams have been released.
func (s *Synthetic) Released() int { return int(s.released.Load()) }

// Acquire returns a new synthetic stream.
func (s *Synthetic) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.AcquireErr != nil {
		return nil, s.AcquireErr
	}
	w, h := s.Width, s.Height
	if w <= 0 || h <= 0 {
		w, h = c.Width, c.Height
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: synthetic camera has no size", ErrNoDevice)
	}

	clk := s.Clock
	if clk == nil {
		clk = clock.Real()
	}
	interval := s.FrameInterval
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}

	s.acquired.Add(1)
	return &syntheticStream{
		owner:    s,
		width:    w,
		height:   h,
		notReady: s.NotReadyFrames,
		clock:    clk,
		interval: interval,
	}, nil
}

type syntheticStream struct {
	owner    *Synthetic
	width    int
	height   int
	clock    clock.Clock
	interval time.Duration

	mu       sync.Mutex
	seq      int
	notReady int
	released bool
}

func (s *syntheticStream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil, ErrReleased
	}
	if s.notReady > 0 {
		s.notReady--
		return nil, ErrNotReady
	}
	img := Pattern(s.width, s.height, s.seq)
	s.seq++
	return img, nil
}

func (s *syntheticStream) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	s.owner.released.Add(1)
	return nil
}

// Record collects frames every interval until d elapses on the stream clock.
func (s *syntheticStream) Record(ctx context.Context, d time.Duration) (Clip, error) {
	start := s.clock.Now()
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	timer := s.clock.NewTimer(d)
	defer timer.Stop()

	clip := &memoryClip{}
	grab := func(at time.Time) error {
		img, err := s.Frame()
		if err != nil {
			if errors.Is(err, ErrNotReady) {
				return nil
			}
			return err
		}
		clip.add(at.Sub(start), img)
		return nil
	}

	if err := grab(start); err != nil {
		return nil, err
	}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case at := <-ticker.C():
			if err := grab(at); err != nil {
				return nil, err
			}
		case <-timer.C():
			clip.duration = s.clock.Since(start)
			return clip, nil
		}
	}
}

// Pattern renders test frame seq: a diagonal gradient shifted by seq with a
// solid marker band on the left edge so mirroring is visible.
func Pattern(w, h, seq int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	band := w / 8
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < band {
				img.SetRGBA(x, y, color.RGBA{R: 255, A: 255})
				continue
			}
			v := uint8((x + y + seq*16) % 256)
			img.SetRGBA(x, y, color.RGBA{R: v, G: 255 - v, B: uint8(seq * 32), A: 255})
		}
	}
	return img
}

// memoryClip holds recorded frames with their offsets from the start.
type memoryClip struct {
	offsets  []time.Duration
	frames   []image.Image
	duration time.Duration
}

// NewMemoryClip returns a Clip over the given frames. offsets must be sorted.
func NewMemoryClip(duration time.Duration, offsets []time.Duration, frames []image.Image) (Clip, error) {
	if len(offsets) != len(frames) {
		return nil, fmt.Errorf("clip has %d offsets for %d frames", len(offsets), len(frames))
	}
	return &memoryClip{offsets: offsets, frames: frames, duration: duration}, nil
}

func (c *memoryClip) add(at time.Duration, img image.Image) {
	c.offsets = append(c.offsets, at)
	c.frames = append(c.frames, img)
}

func (c *memoryClip) Duration() time.Duration { return c.duration }

// FrameAt returns the last frame at or before t.
func (c *memoryClip) FrameAt(ctx context.Context, t time.Duration) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(c.frames) == 0 {
		return nil, fmt.Errorf("clip is empty")
	}
	i := 0
	for i+1 < len(c.offsets) && c.offsets[i+1] <= t {
		i++
	}
	return c.frames[i], nil
}

func (c *memoryClip) Close() error {
	c.frames = nil
	c.offsets = nil
	return nil
}
