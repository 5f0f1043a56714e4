package logging

import (
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StartupLogger collects build identity, camera and capture settings, and
// feature flags, then emits a single structured zerolog event summarising how
// the booth was configured. This makes it easy to tell from one log line why
// a session behaved the way it did.
type StartupLogger struct {
	name         string
	commitHash   string
	buildTime    string
	configPath   string
	initDuration time.Duration

	camera   map[string]string
	capture  map[string]string
	features map[string]bool
	config   map[string]string
}

// NewStartupLogger creates a StartupLogger for the given command name
// (e.g. "flipbook capture").
func NewStartupLogger(name string) *StartupLogger {
	return &StartupLogger{
		name:     name,
		camera:   make(map[string]string),
		capture:  make(map[string]string),
		features: make(map[string]bool),
		config:   make(map[string]string),
	}
}

// CommitHash sets the git commit hash baked into the binary at build time.
func (s *StartupLogger) CommitHash(hash string) *StartupLogger {
	s.commitHash = hash
	return s
}

// BuildTime sets the UTC build timestamp baked into the binary at build time.
func (s *StartupLogger) BuildTime(t string) *StartupLogger {
	s.buildTime = t
	return s
}

// ConfigPath records which configuration file was loaded.
func (s *StartupLogger) ConfigPath(path string, exists bool) *StartupLogger {
	if exists {
		s.configPath = path
	} else {
		s.configPath = "(defaults)"
	}
	return s
}

// Camera registers a camera setting such as provider or device.
func (s *StartupLogger) Camera(key, value string) *StartupLogger {
	s.camera[key] = value
	return s
}

// Capture registers a capture setting such as strategy or frame count.
func (s *StartupLogger) Capture(key, value string) *StartupLogger {
	s.capture[key] = value
	return s
}

// Feature registers a boolean feature flag (e.g. "cover", "audio").
func (s *StartupLogger) Feature(name string, enabled bool) *StartupLogger {
	s.features[name] = enabled
	return s
}

// Config registers a non-sensitive configuration key-value pair.
func (s *StartupLogger) Config(key, value string) *StartupLogger {
	s.config[key] = value
	return s
}

// InitDuration records how long startup took.
func (s *StartupLogger) InitDuration(d time.Duration) *StartupLogger {
	s.initDuration = d
	return s
}

// Log emits a single structured INFO log event with all collected information.
func (s *StartupLogger) Log() {
	evt := log.Info()

	build := zerolog.Dict().
		Str("name", s.name).
		Str("go_version", runtime.Version()).
		Str("os", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Str("log_level", zerolog.GlobalLevel().String())
	if s.commitHash != "" {
		build = build.Str("commit_hash", s.commitHash)
	}
	if s.buildTime != "" {
		build = build.Str("build_time", s.buildTime)
	}
	if host, err := os.Hostname(); err == nil {
		build = build.Str("host", host)
	}
	evt = evt.Dict("booth", build)

	if s.configPath != "" {
		evt = evt.Str("config_path", s.configPath)
	}
	if len(s.camera) > 0 {
		evt = evt.Dict("camera", dictFromMap(s.camera))
	}
	if len(s.capture) > 0 {
		evt = evt.Dict("capture", dictFromMap(s.capture))
	}
	if len(s.features) > 0 {
		d := zerolog.Dict()
		for k, v := range s.features {
			d = d.Bool(k, v)
		}
		evt = evt.Dict("features", d)
	}
	if len(s.config) > 0 {
		evt = evt.Dict("config", dictFromMap(s.config))
	}
	if s.initDuration > 0 {
		evt = evt.Dur("init_duration", s.initDuration)
	}

	evt.Msg("Booth startup complete")
}

// dictFromMap converts a map[string]string into a zerolog.Event (Dict).
func dictFromMap(m map[string]string) *zerolog.Event {
	d := zerolog.Dict()
	for k, v := range m {
		d = d.Str(k, v)
	}
	return d
}
