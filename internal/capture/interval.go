package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fpang/flipbook-booth/internal/camera"
	"github.com/rs/zerolog/log"
)

// IntervalStrategy composites and encodes one frame per tick. A tick that
// cannot produce a frame is skipped and does not count.
type IntervalStrategy struct {
	Interval time.Duration
	Timeout  time.Duration
}

func (s *IntervalStrategy) Name() string { return StrategyInterval }

func (s *IntervalStrategy) Acquire(ctx context.Context, req Request) ([]Sample, error) {
	ticker := req.Clock.NewTicker(s.Interval)
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
				Message: fmt.Sprintf("Captured %d of %d frames before the %v deadline", len(samples), req.Count, s.Timeout),
			}
		case <-ticker.C():
			img, err := req.Stream.Frame()
			if errors.Is(err, camera.ErrReleased) {
				return nil, err
			}
			if err != nil {
				log.Debug().Err(err).Int("captured", len(samples)).Msg("Skipping tick: camera frame unavailable")
				req.skip(err)
				continue
			}

			frame, err := req.Compositor.Composite(img, req.Style)
			if err != nil {
				log.Debug().Err(err).Int("captured", len(samples)).Msg("Skipping tick: composite failed")
				req.skip(err)
				continue
			}

			samples = append(samples, EncodedSample{Frame: frame})
			req.shutter()
			req.progress(len(samples))
		}
	}

	return samples, nil
}
