package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fpang/flipbook-booth/internal/audio"
	"github.com/fpang/flipbook-booth/internal/auth"
	"github.com/fpang/flipbook-booth/internal/camera"
	"github.com/fpang/flipbook-booth/internal/capture"
	"github.com/fpang/flipbook-booth/internal/compositor"
	"github.com/fpang/flipbook-booth/internal/config"
	"github.com/fpang/flipbook-booth/internal/coverart"
	"github.com/fpang/flipbook-booth/internal/logging"
	"github.com/fpang/flipbook-booth/internal/metrics"
	"github.com/rs/zerolog/log"
)

// env is the loaded configuration plus the resources opened for it.
type env struct {
	name    string
	start   time.Time
	cfg     *config.Config
	path    string
	exists  bool
	closers []io.Closer
}

// loadEnv loads the configuration, initializes logging and opens the metrics
// file when enabled.
func loadEnv(name string) (*env, error) {
	start := time.Now()
	cfg, path, exists, err := config.Load(configFlag)
	if err != nil {
		return nil, err
	}
	if logLevelFlag != "" {
		cfg.Logging.Level = logLevelFlag
	}
	logging.Init(cfg.Logging.Level, cfg.Logging.Format)

	e := &env{name: name, start: start, cfg: cfg, path: path, exists: exists}
	if cfg.Metrics.Enabled {
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, err
		}
		f, err := metrics.OpenFile(cfg.Metrics.Path)
		if err != nil {
			return nil, err
		}
		metrics.SetOutput(f)
		e.closers = append(e.closers, f)
	}
	return e, nil
}

func (e *env) Close() {
	metrics.SetOutput(nil)
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close resource")
		}
	}
}

// provider returns the configured camera provider.
func (e *env) provider() camera.Provider {
	if e.cfg.Camera.Provider == "synthetic" {
		return camera.NewSynthetic(e.cfg.Camera.Width, e.cfg.Camera.Height)
	}
	return camera.NewFFmpeg(e.cfg.FFmpegConfig())
}

// cues returns the feedback sound handle, or nil when audio is off.
func (e *env) cues() *audio.Cues {
	if !e.cfg.Audio.Enabled {
		return nil
	}
	player := audio.FindPlayer(e.cfg.Audio.Player)
	if player == nil {
		log.Info().Msg("No audio player found, cues disabled")
		return nil
	}
	c := audio.NewCues(player)
	e.closers = append(e.closers, c)
	return c
}

// covers returns the cover generator. Missing credentials disable it.
func (e *env) covers(ctx context.Context) (*coverart.Generator, error) {
	if !e.cfg.Cover.Enabled {
		return &coverart.Generator{}, nil
	}
	key, err := auth.GetAPIKey(ctx, e.cfg.AuthOptions())
	if err != nil {
		log.Info().Err(err).Msg("Cover generation disabled")
		return &coverart.Generator{}, nil
	}
	g, err := coverart.NewGenerator(ctx, key, e.cfg.CoverTimeout())
	if err != nil {
		return nil, err
	}
	return g.WithModel(e.cfg.Cover.Model), nil
}

// logStartup emits the one-line startup summary.
func (e *env) logStartup(covers *coverart.Generator, cues *audio.Cues) {
	cfg := e.cfg
	logging.NewStartupLogger(e.name).
		CommitHash(commitHash).
		BuildTime(buildTime).
		ConfigPath(e.path, e.exists).
		Camera("provider", cfg.Camera.Provider).
		Camera("device", cfg.Camera.Device).
		Camera("input_format", cfg.Camera.InputFormat).
		Camera("size", fmt.Sprintf("%dx%d", cfg.Camera.Width, cfg.Camera.Height)).
		Capture("strategy", cfg.Capture.Strategy).
		Capture("frames", strconv.Itoa(cfg.Capture.Frames)).
		Capture("countdown_seconds", strconv.Itoa(cfg.Capture.CountdownSeconds)).
		Capture("output", fmt.Sprintf("%dx%d", cfg.Capture.OutputWidth, cfg.Capture.OutputHeight)).
		Feature("cover", covers.Enabled()).
		Feature("audio", cues != nil).
		Feature("metrics", cfg.Metrics.Enabled).
		Feature("s3_upload", cfg.Export.S3Bucket != "").
		Config("export_dir", cfg.Export.Dir).
		Config("compression", cfg.Export.Compression).
		InitDuration(time.Since(e.start)).
		Log()
}

// manager builds the capture manager for the configured strategy.
func (e *env) manager(cues *audio.Cues) (*capture.Manager, error) {
	if e.cfg.Camera.Provider == "ffmpeg" && e.cfg.Capture.Strategy == capture.StrategyRecord {
		if err := camera.CheckFFprobeAvailable(e.cfg.Camera.FFprobePath); err != nil {
			return nil, err
		}
	}
	strategy, err := capture.NewStrategy(e.cfg.StrategyConfig())
	if err != nil {
		return nil, err
	}
	comp, err := compositor.New(e.cfg.CompositorOptions())
	if err != nil {
		return nil, err
	}
	opts := capture.Options{
		Config:     e.cfg.SessionConfig(),
		Provider:   e.provider(),
		Strategy:   strategy,
		Compositor: comp,
	}
	if cues != nil {
		opts.Cues = cues
	}
	return capture.NewManager(opts), nil
}
