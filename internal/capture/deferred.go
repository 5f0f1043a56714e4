package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fpang/flipbook-booth/internal/camera"
	"github.com/rs/zerolog/log"
)

// DeferredStrategy snapshots raw frames every Duration/N and leaves
// compositing and encoding to the finalization pass, keeping the sampling
// loop free of slow work.
type DeferredStrategy struct {
	Duration time.Duration
	Timeout  time.Duration
}

func (s *DeferredStrategy) Name() string { return StrategyDeferred }

// SampleInterval returns the tick period for n samples.
func (s *DeferredStrategy) SampleInterval(n int) time.Duration {
	if n <= 0 {
		return s.Duration
	}
	return s.Duration / time.Duration(n)
}

func (s *DeferredStrategy) Acquire(ctx context.Context, req Request) ([]Sample, error) {
	interval := s.SampleInterval(req.Count)
	if interval <= 0 {
		return nil, &Error{Kind: ConfigurationError, Message: fmt.Sprintf("Sampling window %v is too short for %d frames", s.Duration, req.Count)}
	}

	ticker := req.Clock.NewTicker(interval)
	defer ticker.Stop()
	deadline := req.Clock.NewTimer(s.Timeout)
	defer deadline.Stop()

	samples := make([]Sample, 0, req.Count)
	req.progress(0)

	for len(samples) < req.Count {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C():
			return nil, &Error{
				Kind:    AcquisitionTimeout,
				Message: fmt.Sprintf("Sampled %d of %d frames before the %v deadline", len(samples), req.Count, s.Timeout),
			}
		case <-ticker.C():
			img, err := req.Stream.Frame()
			if errors.Is(err, camera.ErrReleased) {
				return nil, err
			}
			if err == nil && img.Bounds().Empty() {
				err = camera.ErrNotReady
			}
			if err != nil {
				log.Debug().Err(err).Int("captured", len(samples)).Msg("Skipping tick: camera frame unavailable")
				req.skip(err)
				continue
			}

			samples = append(samples, Snapshot(img, req.Style))
			req.shutter()
			req.progress(len(samples))
		}
	}

	return samples, nil
}
