package camera

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Exclusive wraps a Provider so that only one stream is live at a time.
// Acquiring while a stream is live releases it first.
type Exclusive struct {
	provider Provider

	mu   sync.Mutex
	live *guardedStream
}

// NewExclusive returns an Exclusive guard over p.
func NewExclusive(p Provider) *Exclusive {
	return &Exclusive{provider: p}
}

// Acquire releases any live stream, then acquires a new one.
func (e *Exclusive) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.live != nil {
		log.Warn().Msg("Releasing live camera stream before acquiring a new one")
		if err := e.live.release(); err != nil {
			log.Warn().Err(err).Msg("Failed to release previous camera stream")
		}
		e.live = nil
	}

	s, err := e.provider.Acquire(ctx, c)
	if err != nil {
		return nil, err
	}

	g := &guardedStream{owner: e, inner: s}
	e.live = g
	return g, nil
}

// Live reports whether a stream is currently held.
func (e *Exclusive) Live() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.live != nil
}

func (e *Exclusive) clear(g *guardedStream) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.live == g {
		e.live = nil
	}
}

type guardedStream struct {
	owner *Exclusive
	inner Stream

	mu       sync.Mutex
	released bool
}

func (g *guardedStream) Frame() (image.Image, error) {
	g.mu.Lock()
	released := g.released
	g.mu.Unlock()
	if released {
		return nil, ErrReleased
	}
	return g.inner.Frame()
}

func (g *guardedStream) Record(ctx context.Context, d time.Duration) (Clip, error) {
	g.mu.Lock()
	released := g.released
	g.mu.Unlock()
	if released {
		return nil, ErrReleased
	}
	r, ok := g.inner.(Recorder)
	if !ok {
		return nil, ErrNoRecorder
	}
	return r.Record(ctx, d)
}

func (g *guardedStream) Release() error {
	err := g.release()
	g.owner.clear(g)
	return err
}

// release stops the inner stream once.
func (g *guardedStream) release() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return nil
	}
	g.released = true
	return g.inner.Release()
}
