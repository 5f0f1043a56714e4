package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeCapture()
	if err := c.normalizeCamera(); err != nil {
		return err
	}
	if err := c.normalizeCover(); err != nil {
		return err
	}
	if err := c.normalizeExport(); err != nil {
		return err
	}
	c.normalizeLogging()
	return c.normalizeMetrics()
}

func (c *Config) normalizeCapture() {
	c.Capture.Strategy = strings.ToLower(strings.TrimSpace(c.Capture.Strategy))
	if c.Capture.Strategy == "" {
		c.Capture.Strategy = defaultStrategy
	}
	c.Capture.DefaultStyle = strings.TrimSpace(c.Capture.DefaultStyle)
}

func (c *Config) normalizeCamera() error {
	c.Camera.Provider = strings.ToLower(strings.TrimSpace(c.Camera.Provider))
	if c.Camera.Provider == "" {
		c.Camera.Provider = defaultCameraProvider
	}
	if value, ok := os.LookupEnv("FLIPBOOK_CAMERA_DEVICE"); ok && strings.TrimSpace(value) != "" {
		c.Camera.Device = strings.TrimSpace(value)
	}
	if c.Camera.LockDir != "" {
		var err error
		if c.Camera.LockDir, err = expandPath(c.Camera.LockDir); err != nil {
			return fmt.Errorf("camera.lock_dir: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeCover() error {
	paths := []struct {
		key   string
		value *string
	}{
		{"cover.key_file", &c.Cover.KeyFile},
		{"cover.credential_file", &c.Cover.CredentialFile},
		{"cover.passphrase_file", &c.Cover.PassphraseFile},
	}
	for _, p := range paths {
		if *p.value == "" {
			continue
		}
		expanded, err := expandPath(*p.value)
		if err != nil {
			return fmt.Errorf("%s: %w", p.key, err)
		}
		*p.value = expanded
	}
	return nil
}

func (c *Config) normalizeExport() error {
	var err error
	if strings.TrimSpace(c.Export.Dir) == "" {
		c.Export.Dir = defaultExportDir
	}
	if c.Export.Dir, err = expandPath(c.Export.Dir); err != nil {
		return fmt.Errorf("export.dir: %w", err)
	}
	c.Export.Compression = strings.ToLower(strings.TrimSpace(c.Export.Compression))
	if c.Export.Compression == "" {
		c.Export.Compression = defaultCompression
	}
	if c.Export.S3Bucket == "" {
		if value, ok := os.LookupEnv("FLIPBOOK_S3_BUCKET"); ok {
			c.Export.S3Bucket = strings.TrimSpace(value)
		}
	}
	c.Export.S3Prefix = strings.Trim(strings.TrimSpace(c.Export.S3Prefix), "/")
	return nil
}

func (c *Config) normalizeLogging() {
	if value, ok := os.LookupEnv("FLIPBOOK_LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}

func (c *Config) normalizeMetrics() error {
	if strings.TrimSpace(c.Metrics.Path) == "" {
		c.Metrics.Path = defaultMetricsPath
	}
	var err error
	if c.Metrics.Path, err = expandPath(c.Metrics.Path); err != nil {
		return fmt.Errorf("metrics.path: %w", err)
	}
	return nil
}
