package config

import (
	"errors"
	"fmt"

	"github.com/fpang/flipbook-booth/internal/capture"
	"github.com/fpang/flipbook-booth/internal/export"
	"github.com/fpang/flipbook-booth/internal/geometry"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	if err := c.validateCamera(); err != nil {
		return err
	}
	if err := c.validateCover(); err != nil {
		return err
	}
	if err := c.validateExport(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateStyles()
}

func (c *Config) validateCapture() error {
	switch c.Capture.Strategy {
	case capture.StrategyInterval, capture.StrategyDeferred, capture.StrategyRecord:
	default:
		return fmt.Errorf("capture.strategy must be %s, %s or %s, got %q",
			capture.StrategyInterval, capture.StrategyDeferred, capture.StrategyRecord, c.Capture.Strategy)
	}
	if c.Capture.Frames <= 0 {
		return errors.New("capture.frames must be positive")
	}
	if c.Capture.CountdownSeconds < 0 {
		return errors.New("capture.countdown_seconds must be >= 0")
	}
	if c.Capture.CountdownIntervalMS <= 0 {
		return errors.New("capture.countdown_interval_ms must be positive")
	}
	if c.Capture.IntervalMS <= 0 {
		return errors.New("capture.interval_ms must be positive")
	}
	if c.Capture.DurationMS <= 0 {
		return errors.New("capture.duration_ms must be positive")
	}
	if c.Capture.Strategy == capture.StrategyDeferred && c.Capture.DurationMS < c.Capture.Frames {
		return fmt.Errorf("capture.duration_ms (%d) is too short to sample %d frames", c.Capture.DurationMS, c.Capture.Frames)
	}
	if c.Capture.TimeoutMS <= 0 {
		return errors.New("capture.timeout_ms must be positive")
	}
	if err := c.validateTimeoutBudget(); err != nil {
		return err
	}
	if c.Capture.JPEGQuality < 1 || c.Capture.JPEGQuality > 100 {
		return errors.New("capture.jpeg_quality must be between 1 and 100")
	}
	return nil
}

// validateTimeoutBudget rejects timings whose best case already reaches the
// acquisition deadline, so every session would end in a timeout.
func (c *Config) validateTimeoutBudget() error {
	switch c.Capture.Strategy {
	case capture.StrategyInterval:
		if need := c.Capture.Frames * c.Capture.IntervalMS; need >= c.Capture.TimeoutMS {
			return fmt.Errorf("capture.timeout_ms (%d) must exceed frames * interval_ms (%d)", c.Capture.TimeoutMS, need)
		}
	case capture.StrategyDeferred, capture.StrategyRecord:
		if c.Capture.DurationMS >= c.Capture.TimeoutMS {
			return fmt.Errorf("capture.timeout_ms (%d) must exceed duration_ms (%d)", c.Capture.TimeoutMS, c.Capture.DurationMS)
		}
	}
	return nil
}

func (c *Config) validateOutput() error {
	if c.Capture.OutputWidth <= 0 || c.Capture.OutputHeight <= 0 {
		return errors.New("capture.output_width and capture.output_height must be positive")
	}
	if c.Capture.GutterFraction < 0 || c.Capture.GutterFraction >= 1 {
		return errors.New("capture.gutter_fraction must be in [0, 1)")
	}
	return nil
}

func (c *Config) validateCamera() error {
	switch c.Camera.Provider {
	case "ffmpeg", "synthetic":
	default:
		return fmt.Errorf("camera.provider must be ffmpeg or synthetic, got %q", c.Camera.Provider)
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return errors.New("camera.width and camera.height must be positive")
	}
	if c.Camera.FrameRate <= 0 {
		return errors.New("camera.frame_rate must be positive")
	}
	return nil
}

func (c *Config) validateCover() error {
	if c.Cover.Enabled && c.Cover.TimeoutSeconds <= 0 {
		return errors.New("cover.timeout_seconds must be positive when cover.enabled is true")
	}
	return nil
}

func (c *Config) validateExport() error {
	if _, err := export.ParseCompression(c.Export.Compression); err != nil {
		return fmt.Errorf("export.compression: %w", err)
	}
	if c.Export.S3Prefix != "" && c.Export.S3Bucket == "" {
		return errors.New("export.s3_bucket must be set when export.s3_prefix is set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format must be auto, console or json, got %q", c.Logging.Format)
	}
	return nil
}

// validateStyles checks every catalog style against the output frame so a
// degenerate border is reported at load time rather than mid-session.
func (c *Config) validateStyles() error {
	catalog, err := c.Catalog()
	if err != nil {
		return err
	}
	for _, s := range catalog.All() {
		if _, err := geometry.GutterLayout(c.Capture.OutputWidth, c.Capture.OutputHeight, c.Capture.GutterFraction, s.BorderThickness); err != nil {
			return fmt.Errorf("style %s: %w", s.ID, err)
		}
	}
	if c.Capture.DefaultStyle != "" {
		if _, err := catalog.Lookup(c.Capture.DefaultStyle); err != nil {
			return fmt.Errorf("capture.default_style: %w", err)
		}
	}
	return nil
}
