package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/fpang/flipbook-booth/internal/camera"
	"github.com/fpang/flipbook-booth/internal/clock"
	"github.com/fpang/flipbook-booth/internal/compositor"
	"github.com/fpang/flipbook-booth/internal/style"
)

// Strategy names accepted by NewStrategy.
const (
	StrategyInterval = "interval"
	StrategyDeferred = "deferred"
	StrategyRecord   = "record"
)

// Default acquisition timings.
const (
	DefaultInterval       = 600 * time.Millisecond
	DefaultRecordDuration = 6 * time.Second
	DefaultPollInterval   = 100 * time.Millisecond
	DefaultTimeout        = 30 * time.Second
)

// Progress reports how far acquisition or finalization has got.
type Progress struct {
	Fraction      float64
	Indeterminate bool
	Captured      int
	Target        int
}

// Request is everything a strategy needs for one acquisition. Callbacks are
// invoked on the session goroutine.
type Request struct {
	Stream     camera.Stream
	Style      style.Spec
	Count      int
	Compositor *compositor.Compositor
	Clock      clock.Clock

	OnProgress func(Progress)
	OnShutter  func()
	OnSkip     func(error)
}

func (r Request) progress(captured int) {
	if r.OnProgress == nil {
		return
	}
	frac := 1.0
	if r.Count > 0 {
		frac = float64(captured) / float64(r.Count)
	}
	r.OnProgress(Progress{Fraction: frac, Captured: captured, Target: r.Count})
}

func (r Request) indeterminate(captured int) {
	if r.OnProgress != nil {
		r.OnProgress(Progress{Indeterminate: true, Captured: captured, Target: r.Count})
	}
}

func (r Request) shutter() {
	if r.OnShutter != nil {
		r.OnShutter()
	}
}

func (r Request) skip(err error) {
	if r.OnSkip != nil {
		r.OnSkip(err)
	}
}

// Strategy acquires Count samples from a live stream. Implementations either
// return exactly Count samples in temporal order or an error.
type Strategy interface {
	Name() string
	Acquire(ctx context.Context, req Request) ([]Sample, error)
}

// StrategyConfig selects and tunes a strategy.
type StrategyConfig struct {
	Name string
	// Interval is the tick period for the interval strategy.
	Interval time.Duration
	// Duration is the sampling window for deferred and the clip length for record.
	Duration time.Duration
	// Timeout is the hard deadline for reaching the target count.
	Timeout time.Duration
	// PollInterval paces progress reports while recording.
	PollInterval time.Duration
	// EncodeAttempts bounds retries of a single frame extraction.
	EncodeAttempts int
}

// NewStrategy builds the named strategy, filling unset timings with defaults.
func NewStrategy(cfg StrategyConfig) (Strategy, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.EncodeAttempts <= 0 {
		cfg.EncodeAttempts = DefaultEncodeAttempts
	}

	switch cfg.Name {
	case "", StrategyInterval:
		if cfg.Interval <= 0 {
			cfg.Interval = DefaultInterval
		}
		return &IntervalStrategy{Interval: cfg.Interval, Timeout: cfg.Timeout}, nil
	case StrategyDeferred:
		if cfg.Duration <= 0 {
			cfg.Duration = DefaultRecordDuration
		}
		return &DeferredStrategy{Duration: cfg.Duration, Timeout: cfg.Timeout}, nil
	case StrategyRecord:
		if cfg.Duration <= 0 {
			cfg.Duration = DefaultRecordDuration
		}
		if cfg.PollInterval <= 0 {
			cfg.PollInterval = DefaultPollInterval
		}
		return &RecordStrategy{
			Duration:       cfg.Duration,
			PollInterval:   cfg.PollInterval,
			Timeout:        cfg.Timeout,
			EncodeAttempts: cfg.EncodeAttempts,
		}, nil
	default:
		return nil, fmt.Errorf("unknown capture strategy %q (expected %s, %s or %s)",
			cfg.Name, StrategyInterval, StrategyDeferred, StrategyRecord)
	}
}
