// Package capture runs booth capture sessions: camera acquisition, the
// countdown, frame acquisition through a pluggable strategy, finalization
// and hand-off of the finished sequence.
//
// Each session is driven by a single goroutine that is the only writer of
// its state. Timers are armed only on that goroutine and are stopped before
// the camera is released.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fpang/flipbook-booth/internal/camera"
	"github.com/fpang/flipbook-booth/internal/clock"
	"github.com/fpang/flipbook-booth/internal/compositor"
	"github.com/fpang/flipbook-booth/internal/metrics"
	"github.com/fpang/flipbook-booth/internal/style"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Session defaults.
const (
	DefaultFrames            = 15
	DefaultCountdownFrom     = 3
	DefaultCountdownInterval = time.Second
)

// DefaultEncodeAttempts bounds retries of one frame extracted from a recorded
// clip, where a seek can fail transiently.
const DefaultEncodeAttempts = 3

// Config holds per-session capture settings.
type Config struct {
	Frames            int
	CountdownFrom     int
	CountdownInterval time.Duration
	Constraints       camera.Constraints
}

// DefaultConfig returns the booth's standard 15-frame, 3-second session.
func DefaultConfig() Config {
	return Config{
		Frames:            DefaultFrames,
		CountdownFrom:     DefaultCountdownFrom,
		CountdownInterval: DefaultCountdownInterval,
		Constraints:       camera.DefaultConstraints(),
	}
}

// Cues plays feedback sounds. audio.Cues satisfies it.
type Cues interface {
	Tick()
	Shutter()
}

// Hooks receive session events on the session goroutine. Any may be nil.
// The terminal OnPhase call is always the last event.
type Hooks struct {
	OnPhase     func(Phase)
	OnCountdown func(remaining int)
	OnProgress  func(Progress)
	// OnComplete takes ownership of the result; Take then reports
	// ErrResultConsumed.
	OnComplete func(*FinishedSequence)
	// OnFailed is not called for Canceled sessions.
	OnFailed func(*Error)
}

// Options wires a session to its collaborators.
type Options struct {
	Config     Config
	Provider   camera.Provider
	Strategy   Strategy
	Compositor *compositor.Compositor
	Clock      clock.Clock
	Cues       Cues
	Hooks      Hooks
}

// State is a point-in-time snapshot of a session.
type State struct {
	Phase              Phase
	CountdownRemaining int
	Progress           Progress
	Captured           int
	Err                *Error
}

// Session is one capture attempt. It cannot be restarted.
type Session struct {
	id       string
	cfg      Config
	style    style.Spec
	provider camera.Provider
	strategy Strategy
	comp     *compositor.Compositor
	clock    clock.Clock
	cues     Cues
	hooks    Hooks

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	skipped int

	mu     sync.Mutex
	state  State
	result *FinishedSequence
	taken  bool
}

// NewSession validates the style against the compositor's output size and
// returns an Idle session.
func NewSession(s style.Spec, opts Options) (*Session, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("capture session requires a camera provider")
	}
	if opts.Strategy == nil {
		return nil, fmt.Errorf("capture session requires an acquisition strategy")
	}
	if opts.Compositor == nil {
		return nil, fmt.Errorf("capture session requires a compositor")
	}
	if opts.Config.Frames <= 0 {
		return nil, &Error{Kind: ConfigurationError, Message: fmt.Sprintf("Frame count must be positive, got %d", opts.Config.Frames)}
	}
	if opts.Config.CountdownFrom < 0 {
		return nil, &Error{Kind: ConfigurationError, Message: "Countdown must not be negative"}
	}
	if opts.Config.CountdownFrom > 0 && opts.Config.CountdownInterval <= 0 {
		return nil, &Error{Kind: ConfigurationError, Message: "Countdown interval must be positive"}
	}
	if err := s.Validate(); err != nil {
		return nil, &Error{Kind: ConfigurationError, Message: "Invalid style", Err: err}
	}
	if _, err := opts.Compositor.Layout(s); err != nil {
		return nil, &Error{Kind: ConfigurationError, Message: fmt.Sprintf("Style %s does not fit the output frame", s.ID), Err: err}
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}

	return &Session{
		id:       uuid.NewString(),
		cfg:      opts.Config,
		style:    s,
		provider: opts.Provider,
		strategy: opts.Strategy,
		comp:     opts.Compositor,
		clock:    opts.Clock,
		cues:     opts.Cues,
		hooks:    opts.Hooks,
		done:     make(chan struct{}),
		state:    State{Phase: Idle, CountdownRemaining: opts.Config.CountdownFrom},
	}, nil
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// Start begins the session on its own goroutine.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	go s.run()
	return nil
}

// Cancel aborts the session and discards any partial samples. It returns
// without waiting; use Stop or Done to wait for teardown.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Stop cancels the session and waits until its timers are stopped and the
// camera is released. Stopping an unstarted session is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return
	}
	s.Cancel()
	<-s.done
}

// Done is closed once the session reaches a terminal phase and has released
// its resources.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Take hands over the finished sequence. It succeeds at most once.
func (s *Session) Take() (*FinishedSequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Phase != Complete {
		if s.state.Err != nil {
			return nil, s.state.Err
		}
		return nil, ErrNotComplete
	}
	if s.taken {
		return nil, ErrResultConsumed
	}
	s.taken = true
	r := s.result
	s.result = nil
	return r, nil
}

// run drives the session to a terminal phase. Done is closed before the
// terminal hooks fire so a hook may start the next session.
func (s *Session) run() {
	start := s.clock.Now()
	seq, failure := s.execute()
	s.cancel()

	if failure != nil {
		s.fail(failure, start)
	} else {
		s.complete(seq, start)
	}
}

// execute owns the camera for the whole attempt. Every timer is stopped
// before it returns, and the camera is released last.
func (s *Session) execute() (*FinishedSequence, *Error) {
	logger := log.With().Str("session_id", s.id).Str("strategy", s.strategy.Name()).Logger()
	logger.Info().
		Str("style", s.style.ID).
		Int("target_frames", s.cfg.Frames).
		Msg("Capture session starting")

	stream, err := s.provider.Acquire(s.ctx, s.cfg.Constraints)
	if err != nil {
		return nil, classifyAcquireError(err)
	}
	defer func() {
		if err := stream.Release(); err != nil {
			logger.Warn().Err(err).Msg("Failed to release camera")
		}
	}()

	s.transition(CountingDown)
	if err := s.countdown(); err != nil {
		return nil, asError(err)
	}

	s.transition(Acquiring)
	samples, err := s.strategy.Acquire(s.ctx, Request{
		Stream:     stream,
		Style:      s.style,
		Count:      s.cfg.Frames,
		Compositor: s.comp,
		Clock:      s.clock,
		OnProgress: s.setProgress,
		OnShutter:  s.shutter,
		OnSkip: func(error) {
			s.skipped++
		},
	})
	if err != nil {
		return nil, asError(err)
	}
	if e := s.checkCount(len(samples)); e != nil {
		return nil, e
	}

	s.transition(Finalizing)
	seq, err := s.finalize(samples)
	if err != nil {
		return nil, asError(err)
	}
	return seq, nil
}

func (s *Session) checkCount(n int) *Error {
	switch {
	case n == 0:
		return &Error{Kind: ResourceUnavailable, Message: "The camera produced no frames"}
	case n != s.cfg.Frames:
		return &Error{Kind: AcquisitionTimeout, Message: fmt.Sprintf("Captured %d of %d frames", n, s.cfg.Frames)}
	}
	return nil
}

// countdown emits CountdownFrom immediately, then one decrement per
// interval down to zero.
func (s *Session) countdown() error {
	remaining := s.cfg.CountdownFrom
	s.setCountdown(remaining)
	if remaining == 0 {
		return nil
	}

	ticker := s.clock.NewTicker(s.cfg.CountdownInterval)
	defer ticker.Stop()

	for remaining > 0 {
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		case <-ticker.C():
			remaining--
			s.setCountdown(remaining)
		}
	}
	return nil
}

// finalize encodes every sample in order and appends the end card.
func (s *Session) finalize(samples []Sample) (*FinishedSequence, error) {
	frames := make([]compositor.Frame, 0, len(samples))
	s.setProgress(Progress{Indeterminate: true, Target: len(samples)})

	for i, sample := range samples {
		if err := s.ctx.Err(); err != nil {
			return nil, err
		}

		// Encoding is deterministic, so a failed sample is not retried.
		frame, err := sample.Encode(s.comp)
		if err != nil {
			log.Debug().Err(err).
				Str("session_id", s.id).
				Int("index", i).
				Msg("Frame encoding failed")
			return nil, &Error{
				Kind:    EncodingFailure,
				Message: fmt.Sprintf("Frame %d could not be encoded", i+1),
				Err:     err,
			}
		}
		frames = append(frames, frame)
	}

	endCard, err := s.comp.EndCard(s.style)
	if err != nil {
		return nil, &Error{Kind: EncodingFailure, Message: "End card could not be encoded", Err: err}
	}

	return &FinishedSequence{
		SessionID:  s.id,
		Strategy:   s.strategy.Name(),
		Style:      s.style,
		CapturedAt: s.clock.Now(),
		Frames:     frames,
		EndCard:    endCard,
	}, nil
}

func (s *Session) transition(to Phase) {
	s.mu.Lock()
	from := s.state.Phase
	if !CanTransition(from, to) {
		s.mu.Unlock()
		// Unreachable unless run is miswired.
		panic(fmt.Sprintf("capture: invalid transition %s -> %s", from, to))
	}
	s.state.Phase = to
	s.mu.Unlock()

	log.Debug().Str("session_id", s.id).Str("from", from.String()).Str("to", to.String()).Msg("Session phase changed")
	if s.hooks.OnPhase != nil {
		s.hooks.OnPhase(to)
	}
}

func (s *Session) setCountdown(remaining int) {
	s.mu.Lock()
	s.state.CountdownRemaining = remaining
	s.mu.Unlock()

	if remaining > 0 && s.cues != nil {
		s.cues.Tick()
	}
	if s.hooks.OnCountdown != nil {
		s.hooks.OnCountdown(remaining)
	}
}

func (s *Session) setProgress(p Progress) {
	s.mu.Lock()
	s.state.Progress = p
	s.state.Captured = p.Captured
	s.mu.Unlock()

	if s.hooks.OnProgress != nil {
		s.hooks.OnProgress(p)
	}
}

func (s *Session) shutter() {
	if s.cues != nil {
		s.cues.Shutter()
	}
}

func (s *Session) complete(seq *FinishedSequence, start time.Time) {
	s.mu.Lock()
	s.state.Phase = Complete
	s.state.Progress = Progress{Fraction: 1, Captured: len(seq.Frames), Target: s.cfg.Frames}
	s.state.Captured = len(seq.Frames)
	handOff := s.hooks.OnComplete != nil
	if handOff {
		s.taken = true
	} else {
		s.result = seq
	}
	s.mu.Unlock()

	elapsed := s.clock.Since(start)
	log.Info().
		Str("session_id", s.id).
		Str("strategy", s.strategy.Name()).
		Int("frames", len(seq.Frames)).
		Int("ticks_skipped", s.skipped).
		Dur("duration", elapsed).
		Msg("Capture session complete")
	s.emitMetrics(Complete.String(), len(seq.Frames), elapsed)
	close(s.done)

	if handOff {
		s.hooks.OnComplete(seq)
	}
	if s.hooks.OnPhase != nil {
		s.hooks.OnPhase(Complete)
	}
}

func (s *Session) fail(e *Error, start time.Time) {
	s.mu.Lock()
	s.state.Phase = Failed
	s.state.Err = e
	s.state.Captured = 0
	s.mu.Unlock()

	elapsed := s.clock.Since(start)
	evt := log.Warn()
	if e.Kind == Canceled {
		evt = log.Info()
	}
	evt.Err(e.Err).
		Str("session_id", s.id).
		Str("kind", e.Kind.String()).
		Int("ticks_skipped", s.skipped).
		Dur("duration", elapsed).
		Msg(e.Message)
	s.emitMetrics(e.Kind.String(), 0, elapsed)
	close(s.done)

	if e.Kind != Canceled && s.hooks.OnFailed != nil {
		s.hooks.OnFailed(e)
	}
	if s.hooks.OnPhase != nil {
		s.hooks.OnPhase(Failed)
	}
}

func (s *Session) emitMetrics(result string, frames int, elapsed time.Duration) {
	metrics.New(metrics.Namespace).
		Dimension("Strategy", s.strategy.Name()).
		Dimension("Result", result).
		Metric("SessionDurationMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Metric("FramesCaptured", float64(frames), metrics.UnitCount).
		Metric("TicksSkipped", float64(s.skipped), metrics.UnitCount).
		Count("SessionResult").
		Property("session_id", s.id).
		Property("style", s.style.ID).
		Flush()
}

// IsCanceled reports whether err is a Canceled session error.
func IsCanceled(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == Canceled
}
