package config

import (
	"time"

	"github.com/fpang/flipbook-booth/internal/auth"
	"github.com/fpang/flipbook-booth/internal/camera"
	"github.com/fpang/flipbook-booth/internal/capture"
	"github.com/fpang/flipbook-booth/internal/compositor"
	"github.com/fpang/flipbook-booth/internal/coverart"
)

const (
	defaultConfigPath          = "~/.config/flipbook/config.toml"
	projectConfigName          = "flipbook.toml"
	defaultStrategy            = capture.StrategyInterval
	defaultCountdownIntervalMS = 1000
	defaultIntervalMS          = 600
	defaultDurationMS          = 6000
	defaultTimeoutMS           = 30000
	defaultCameraProvider      = "ffmpeg"
	defaultCameraWidth         = 1280
	defaultCameraHeight        = 720
	defaultCameraFrameRate     = 30
	defaultCoverTimeoutSeconds = 120
	defaultExportDir           = "~/Pictures/flipbook"
	defaultCompression         = "deflate"
	defaultLogFormat           = "auto"
	defaultLogLevel            = "info"
	defaultMetricsPath         = "~/.local/share/flipbook/metrics.jsonl"
)

// Default returns a Config populated with the booth's standard settings:
// fifteen frames every 600ms after a three-second countdown, composited at
// 960x540.
func Default() Config {
	ffmpeg := camera.DefaultFFmpegConfig()
	return Config{
		Capture: Capture{
			Strategy:            defaultStrategy,
			Frames:              capture.DefaultFrames,
			CountdownSeconds:    capture.DefaultCountdownFrom,
			CountdownIntervalMS: defaultCountdownIntervalMS,
			IntervalMS:          defaultIntervalMS,
			DurationMS:          defaultDurationMS,
			TimeoutMS:           defaultTimeoutMS,
			OutputWidth:         compositor.DefaultWidth,
			OutputHeight:        compositor.DefaultHeight,
			GutterFraction:      compositor.DefaultGutterFraction,
			JPEGQuality:         compositor.DefaultQuality,
			Caption:             compositor.DefaultCaption,
		},
		Camera: Camera{
			Provider:    defaultCameraProvider,
			Device:      ffmpeg.Device,
			InputFormat: ffmpeg.InputFormat,
			Width:       defaultCameraWidth,
			Height:      defaultCameraHeight,
			FrameRate:   defaultCameraFrameRate,
			LockDir:     ffmpeg.LockDir,
		},
		Cover: Cover{
			Enabled:        true,
			Model:          coverart.Model,
			TimeoutSeconds: defaultCoverTimeoutSeconds,
		},
		Export: Export{
			Dir:         defaultExportDir,
			Compression: defaultCompression,
		},
		Audio: Audio{
			Enabled: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Metrics: Metrics{
			Enabled: false,
			Path:    defaultMetricsPath,
		},
	}
}

// SessionConfig returns the per-session capture settings.
func (c *Config) SessionConfig() capture.Config {
	return capture.Config{
		Frames:            c.Capture.Frames,
		CountdownFrom:     c.Capture.CountdownSeconds,
		CountdownInterval: millis(c.Capture.CountdownIntervalMS),
		Constraints: camera.Constraints{
			FacingMode: "user",
			Width:      c.Camera.Width,
			Height:     c.Camera.Height,
		},
	}
}

// StrategyConfig returns the acquisition strategy selection.
func (c *Config) StrategyConfig() capture.StrategyConfig {
	return capture.StrategyConfig{
		Name:           c.Capture.Strategy,
		Interval:       millis(c.Capture.IntervalMS),
		Duration:       millis(c.Capture.DurationMS),
		Timeout:        millis(c.Capture.TimeoutMS),
		PollInterval:   capture.DefaultPollInterval,
		EncodeAttempts: capture.DefaultEncodeAttempts,
	}
}

// CompositorOptions returns the output surface settings.
func (c *Config) CompositorOptions() compositor.Options {
	return compositor.Options{
		Width:          c.Capture.OutputWidth,
		Height:         c.Capture.OutputHeight,
		GutterFraction: c.Capture.GutterFraction,
		Quality:        c.Capture.JPEGQuality,
		Caption:        c.Capture.Caption,
		CaptionSize:    compositor.DefaultCaptionSize,
	}
}

// FFmpegConfig returns the webcam provider settings.
func (c *Config) FFmpegConfig() camera.FFmpegConfig {
	return camera.FFmpegConfig{
		FFmpegPath:  c.Camera.FFmpegPath,
		FFprobePath: c.Camera.FFprobePath,
		InputFormat: c.Camera.InputFormat,
		Device:      c.Camera.Device,
		FrameRate:   c.Camera.FrameRate,
		LockDir:     c.Camera.LockDir,
	}
}

// CoverTimeout returns the cover-art request timeout.
func (c *Config) CoverTimeout() time.Duration {
	return time.Duration(c.Cover.TimeoutSeconds) * time.Second
}

// AuthOptions returns where to look for the Gemini API key.
func (c *Config) AuthOptions() auth.Options {
	return auth.Options{
		KeyFile:        c.Cover.KeyFile,
		CredentialFile: c.Cover.CredentialFile,
		PassphraseFile: c.Cover.PassphraseFile,
	}
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
