package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fpang/flipbook-booth/internal/camera"
	"github.com/fpang/flipbook-booth/internal/compositor"
	"github.com/rs/zerolog/log"
)

// RecordStrategy records one continuous clip, then extracts evenly spaced
// frames from it using the clip's measured duration. Timeout bounds recording
// and extraction together; zero means DefaultTimeout.
type RecordStrategy struct {
	Duration       time.Duration
	PollInterval   time.Duration
	Timeout        time.Duration
	EncodeAttempts int
}

var errRecordDeadline = errors.New("record deadline exceeded")

func (s *RecordStrategy) Name() string { return StrategyRecord }

// SampleTimes returns n offsets i/n x measured for i in [0, n).
func SampleTimes(n int, measured time.Duration) []time.Duration {
	if n <= 0 {
		return nil
	}
	out := make([]time.Duration, n)
	for i := range out {
		out[i] = time.Duration(int64(measured) * int64(i) / int64(n))
	}
	return out
}

type recordResult struct {
	clip camera.Clip
	err  error
}

func (s *RecordStrategy) Acquire(ctx context.Context, req Request) ([]Sample, error) {
	rec, ok := req.Stream.(camera.Recorder)
	if !ok {
		return nil, &Error{Kind: ResourceUnavailable, Message: "This camera cannot record video", Err: camera.ErrNoRecorder}
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	actx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	deadline := req.Clock.NewTimer(timeout)
	defer deadline.Stop()
	go func() {
		select {
		case <-deadline.C():
			cancel(errRecordDeadline)
		case <-actx.Done():
		}
	}()

	samples, err := s.acquire(actx, req, rec)
	if err != nil && ctx.Err() == nil && errors.Is(context.Cause(actx), errRecordDeadline) {
		return nil, &Error{
			Kind:    AcquisitionTimeout,
			Message: fmt.Sprintf("Recording did not finish within %v", timeout),
			Err:     err,
		}
	}
	return samples, err
}

func (s *RecordStrategy) acquire(ctx context.Context, req Request, rec camera.Recorder) ([]Sample, error) {
	clip, err := s.record(ctx, req, rec)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := clip.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close recorded clip")
		}
	}()

	return s.extract(ctx, req, clip)
}

// record runs the recorder in the background and polls progress until the
// clip is ready.
func (s *RecordStrategy) record(ctx context.Context, req Request, rec camera.Recorder) (camera.Clip, error) {
	recCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan recordResult, 1)
	go func() {
		clip, err := rec.Record(recCtx, s.Duration)
		done <- recordResult{clip: clip, err: err}
	}()

	poll := req.Clock.NewTicker(s.PollInterval)
	defer poll.Stop()
	start := req.Clock.Now()

	req.shutter()
	req.progress(0)

	for {
		select {
		case <-ctx.Done():
			cancel()
			if r := <-done; r.clip != nil {
				_ = r.clip.Close()
			}
			return nil, ctx.Err()
		case <-poll.C():
			frac := float64(req.Clock.Since(start)) / float64(s.Duration)
			if frac > 0.99 {
				frac = 0.99
			}
			if req.OnProgress != nil {
				req.OnProgress(Progress{Fraction: frac, Target: req.Count})
			}
		case r := <-done:
			if r.err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, &Error{Kind: ResourceUnavailable, Message: "Recording failed", Err: r.err}
			}
			log.Debug().
				Dur("requested", s.Duration).
				Dur("measured", r.clip.Duration()).
				Msg("Clip recorded")
			return r.clip, nil
		}
	}
}

// extract composites one frame per sample time. A frame that fails is
// retried; exhausting the attempts fails the whole acquisition.
func (s *RecordStrategy) extract(ctx context.Context, req Request, clip camera.Clip) ([]Sample, error) {
	measured := clip.Duration()
	if measured <= 0 {
		return nil, &Error{Kind: EncodingFailure, Message: "Recorded clip has no duration"}
	}

	req.indeterminate(0)
	samples := make([]Sample, 0, req.Count)

	for i, at := range SampleTimes(req.Count, measured) {
		var (
			frame compositor.Frame
			err   error
		)
		for attempt := 1; attempt <= s.EncodeAttempts; attempt++ {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			frame, err = s.extractOne(ctx, req, clip, at)
			if err == nil {
				break
			}
			log.Debug().Err(err).
				Int("index", i).
				Dur("at", at).
				Int("attempt", attempt).
				Msg("Frame extraction failed")
			req.skip(err)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &Error{
				Kind:    EncodingFailure,
				Message: fmt.Sprintf("Could not extract frame %d at %v", i+1, at),
				Err:     err,
			}
		}

		samples = append(samples, EncodedSample{Frame: frame})
		req.indeterminate(len(samples))
	}

	return samples, nil
}

func (s *RecordStrategy) extractOne(ctx context.Context, req Request, clip camera.Clip, at time.Duration) (compositor.Frame, error) {
	img, err := clip.FrameAt(ctx, at)
	if err != nil {
		return compositor.Frame{}, err
	}
	return req.Compositor.Composite(img, req.Style)
}
