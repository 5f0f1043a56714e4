package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fpang/flipbook-booth/internal/capture"
	"github.com/fpang/flipbook-booth/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("FLIPBOOK_LOG_LEVEL", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if want := filepath.Join(tempHome, ".config", "flipbook", "config.toml"); resolved != want {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, want)
	}
	if want := filepath.Join(tempHome, "Pictures", "flipbook"); cfg.Export.Dir != want {
		t.Fatalf("unexpected export dir: got %q want %q", cfg.Export.Dir, want)
	}
	if cfg.Capture.Strategy != capture.StrategyInterval {
		t.Fatalf("expected interval strategy by default, got %q", cfg.Capture.Strategy)
	}
	if cfg.Capture.Frames != 15 {
		t.Fatalf("expected 15 frames, got %d", cfg.Capture.Frames)
	}
	if cfg.Capture.OutputWidth != 960 || cfg.Capture.OutputHeight != 540 {
		t.Fatalf("unexpected output size %dx%d", cfg.Capture.OutputWidth, cfg.Capture.OutputHeight)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected info log level, got %q", cfg.Logging.Level)
	}
}

func TestLoadProjectFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := t.TempDir()
	t.Chdir(dir)

	content := `
[capture]
strategy = "Record"
frames = 20
duration_ms = 6000

[camera]
provider = "synthetic"

[cover]
key_file = "~/.config/flipbook/gemini.key"

[export]
compression = "zstd"

[[styles]]
id = "sunset"
name = "Sunset"
border_color = "#ff7f50"
border_width = 24
border_radius = 8
overlay = "vintage"
`
	if err := os.WriteFile(filepath.Join(dir, "flipbook.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || filepath.Base(resolved) != "flipbook.toml" {
		t.Fatalf("expected project config to be found, got %q exists=%v", resolved, exists)
	}
	if cfg.Capture.Strategy != capture.StrategyRecord {
		t.Fatalf("strategy should be lowercased, got %q", cfg.Capture.Strategy)
	}

	if want := filepath.Join(home, ".config", "flipbook", "gemini.key"); cfg.AuthOptions().KeyFile != want {
		t.Fatalf("key file: got %q, want %q", cfg.AuthOptions().KeyFile, want)
	}

	sc := cfg.StrategyConfig()
	if sc.Name != capture.StrategyRecord || sc.Duration != 6*time.Second {
		t.Fatalf("unexpected strategy config %+v", sc)
	}
	if got := cfg.SessionConfig().Frames; got != 20 {
		t.Fatalf("session frames: got %d", got)
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	sunset, err := catalog.Lookup("sunset")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if sunset.BorderThickness != 24 || sunset.CornerRadius != 8 {
		t.Fatalf("unexpected sunset style %+v", sunset)
	}
	if len(catalog.All()) != 5 {
		t.Fatalf("expected 4 builtin styles plus sunset, got %d", len(catalog.All()))
	}
}

func TestLoadExplicitMissingPathUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "absent.toml")

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists || resolved != path {
		t.Fatalf("got resolved=%q exists=%v", resolved, exists)
	}
	if cfg.Capture.Frames != capture.DefaultFrames {
		t.Fatalf("expected default frames, got %d", cfg.Capture.Frames)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[capture]\nframez = 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestLogLevelEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FLIPBOOK_LOG_LEVEL", "DEBUG")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected env log level, got %q", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"unknown strategy", func(c *config.Config) { c.Capture.Strategy = "burst" }, "capture.strategy"},
		{"zero frames", func(c *config.Config) { c.Capture.Frames = 0 }, "capture.frames"},
		{"negative countdown", func(c *config.Config) { c.Capture.CountdownSeconds = -1 }, "countdown_seconds"},
		{"bad quality", func(c *config.Config) { c.Capture.JPEGQuality = 101 }, "jpeg_quality"},
		{"gutter too wide", func(c *config.Config) { c.Capture.GutterFraction = 1 }, "gutter_fraction"},
		{"bad provider", func(c *config.Config) { c.Camera.Provider = "v4l" }, "camera.provider"},
		{"bad compression", func(c *config.Config) { c.Export.Compression = "lzma" }, "export.compression"},
		{"prefix without bucket", func(c *config.Config) { c.Export.S3Prefix = "booth" }, "s3_bucket"},
		{"bad level", func(c *config.Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"unknown default style", func(c *config.Config) { c.Capture.DefaultStyle = "neon" }, "default_style"},
		{"deferred window too short", func(c *config.Config) {
			c.Capture.Strategy = capture.StrategyDeferred
			c.Capture.DurationMS = 10
		}, "too short"},
		{"interval frames outlast timeout", func(c *config.Config) {
			c.Capture.Frames = 100
			c.Capture.IntervalMS = 600
			c.Capture.TimeoutMS = 30000
		}, "frames * interval_ms"},
		{"deferred window outlasts timeout", func(c *config.Config) {
			c.Capture.Strategy = capture.StrategyDeferred
			c.Capture.DurationMS = 60000
			c.Capture.TimeoutMS = 30000
		}, "exceed duration_ms"},
		{"record clip outlasts timeout", func(c *config.Config) {
			c.Capture.Strategy = capture.StrategyRecord
			c.Capture.DurationMS = 30000
			c.Capture.TimeoutMS = 30000
		}, "exceed duration_ms"},
		{"degenerate border", func(c *config.Config) {
			c.Capture.OutputHeight = 30
		}, "style"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	opts := cfg.CompositorOptions()
	if opts.Width != 960 || opts.Height != 540 || opts.Quality != 90 {
		t.Fatalf("unexpected compositor options %+v", opts)
	}
	if cfg.SessionConfig().CountdownInterval != time.Second {
		t.Fatalf("expected one-second countdown")
	}
}
