package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/fpang/flipbook-booth/internal/style"
)

// Capture contains session timing, frame count and output surface settings.
type Capture struct {
	Strategy            string  `toml:"strategy"`
	Frames              int     `toml:"frames"`
	CountdownSeconds    int     `toml:"countdown_seconds"`
	CountdownIntervalMS int     `toml:"countdown_interval_ms"`
	IntervalMS          int     `toml:"interval_ms"`
	DurationMS          int     `toml:"duration_ms"`
	TimeoutMS           int     `toml:"timeout_ms"`
	OutputWidth         int     `toml:"output_width"`
	OutputHeight        int     `toml:"output_height"`
	GutterFraction      float64 `toml:"gutter_fraction"`
	JPEGQuality         int     `toml:"jpeg_quality"`
	Caption             string  `toml:"caption"`
	DefaultStyle        string  `toml:"default_style"`
}

// Camera selects the camera provider and device.
type Camera struct {
	// Provider is "ffmpeg" for a real webcam or "synthetic" for a test pattern.
	Provider    string `toml:"provider"`
	Device      string `toml:"device"`
	InputFormat string `toml:"input_format"`
	Width       int    `toml:"width"`
	Height      int    `toml:"height"`
	FrameRate   int    `toml:"frame_rate"`
	FFmpegPath  string `toml:"ffmpeg_path"`
	FFprobePath string `toml:"ffprobe_path"`
	LockDir     string `toml:"lock_dir"`
}

// Cover contains cover-art generation settings.
type Cover struct {
	Enabled        bool   `toml:"enabled"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	KeyFile        string `toml:"key_file"`
	CredentialFile string `toml:"credential_file"`
	PassphraseFile string `toml:"passphrase_file"`
}

// Export contains download bundle settings.
type Export struct {
	Dir         string `toml:"dir"`
	Compression string `toml:"compression"`
	S3Bucket    string `toml:"s3_bucket"`
	S3Prefix    string `toml:"s3_prefix"`
}

// Audio contains feedback cue settings.
type Audio struct {
	Enabled bool   `toml:"enabled"`
	Player  string `toml:"player"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics contains configuration for the EMF metrics file.
type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Config encapsulates all configuration values for the booth.
//
// Configuration sections by subsystem:
//   - Capture: strategy, countdown, frame count and output frame
//   - Camera: provider, device and ffmpeg locations
//   - Cover: Gemini cover-art generation
//   - Export: bundle directory, compression and optional S3 upload
//   - Audio: feedback cues
//   - Logging: log format and level
//   - Metrics: EMF metrics file
//   - Styles: extra frame styles merged over the built-in catalog
type Config struct {
	Capture Capture      `toml:"capture"`
	Camera  Camera       `toml:"camera"`
	Cover   Cover        `toml:"cover"`
	Export  Export       `toml:"export"`
	Audio   Audio        `toml:"audio"`
	Logging Logging      `toml:"logging"`
	Metrics Metrics      `toml:"metrics"`
	Styles  []style.Spec `toml:"styles"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. A missing file is
// not an error; the defaults are used instead.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the export directory and the metrics file's parent.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Export.Dir, 0o755); err != nil {
		return fmt.Errorf("create export directory %q: %w", c.Export.Dir, err)
	}
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		if err := os.MkdirAll(filepath.Dir(c.Metrics.Path), 0o755); err != nil {
			return fmt.Errorf("create metrics directory: %w", err)
		}
	}
	return nil
}

// Catalog returns the built-in styles with any configured styles merged over them.
func (c *Config) Catalog() (*style.Catalog, error) {
	catalog := style.Builtin()
	if len(c.Styles) == 0 {
		return catalog, nil
	}
	merged, err := catalog.Merge(c.Styles...)
	if err != nil {
		return nil, fmt.Errorf("styles: %w", err)
	}
	return merged, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
