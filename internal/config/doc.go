// Package config loads the booth's TOML configuration.
//
// Files are looked up in order: an explicit path, ~/.config/flipbook/config.toml,
// then ./flipbook.toml. Missing files fall back to Default. Loaded values are
// normalized (paths expanded, enums lowercased, environment overrides applied)
// and validated before use. Converters on Config hand typed settings to the
// capture, compositor and camera packages.
package config
