// Package auth resolves the Gemini API key used for cover art.
//
// Keys are looked up in order: the GEMINI_API_KEY environment variable, a
// plain key file, then a GPG-encrypted credentials file. The booth keeps
// running without a key; cover generation is simply turned off.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// EnvKey is the environment variable checked first.
const EnvKey = "GEMINI_API_KEY"

const (
	credentialDir  = ".config/flipbook"
	credentialFile = "credentials.gpg"
	passphraseFile = "gpg-passphrase"
	passphraseEnv  = "FLIPBOOK_GPG_PASSPHRASE_FILE"
)

// ErrNoAPIKey is returned when no source yields a key.
var ErrNoAPIKey = errors.New("gemini API key not found")

// errUnset marks a source that is not configured on this machine.
var errUnset = errors.New("source not configured")

// Options locates the on-disk key sources. Empty paths fall back to files
// under ~/.config/flipbook.
type Options struct {
	// KeyFile holds the key in plain text. It must be readable by the owner
	// only.
	KeyFile string
	// CredentialFile is a GPG-encrypted key.
	CredentialFile string
	// PassphraseFile unlocks CredentialFile without a pinentry prompt.
	PassphraseFile string
	// GPGPath overrides the gpg binary.
	GPGPath string
}

type source struct {
	name   string
	lookup func(context.Context, Options) (string, error)
}

var sources = []source{
	{"env", fromEnv},
	{"key_file", fromKeyFile},
	{"gpg", fromGPG},
}

// GetAPIKey returns the first key found. The error wraps ErrNoAPIKey when no
// source is configured, or carries the failure of a configured source that
// could not be read.
func GetAPIKey(ctx context.Context, opts Options) (string, error) {
	var failures []error
	for _, s := range sources {
		key, err := s.lookup(ctx, opts)
		switch {
		case err == nil && key != "":
			log.Debug().Str("source", s.name).Msg("Using Gemini API key")
			return key, nil
		case err == nil, errors.Is(err, errUnset):
			continue
		default:
			log.Warn().Err(err).Str("source", s.name).Msg("API key source unreadable")
			failures = append(failures, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	if len(failures) > 0 {
		return "", fmt.Errorf("%w: %w", ErrNoAPIKey, errors.Join(failures...))
	}
	return "", fmt.Errorf("%w: set %s or store it encrypted at ~/%s/%s", ErrNoAPIKey, EnvKey, credentialDir, credentialFile)
}

func fromEnv(context.Context, Options) (string, error) {
	return strings.TrimSpace(os.Getenv(EnvKey)), nil
}

func fromKeyFile(_ context.Context, opts Options) (string, error) {
	if opts.KeyFile == "" {
		return "", errUnset
	}
	if err := ownerOnly(opts.KeyFile); err != nil {
		return "", err
	}
	data, err := os.ReadFile(opts.KeyFile)
	if err != nil {
		return "", fmt.Errorf("read key file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func fromGPG(ctx context.Context, opts Options) (string, error) {
	credPath := opts.CredentialFile
	if credPath == "" {
		var err error
		if credPath, err = configFile(credentialFile); err != nil {
			return "", err
		}
	}
	if _, err := os.Stat(credPath); errors.Is(err, os.ErrNotExist) {
		return "", errUnset
	}

	args := []string{"--decrypt", "--quiet", "--batch"}
	if pass := passphrasePath(opts); pass != "" {
		if err := ownerOnly(pass); err != nil {
			log.Warn().Err(err).Str("passphrase_file", pass).Msg("Skipping passphrase file")
		} else {
			args = append(args, "--pinentry-mode", "loopback", "--passphrase-file", pass)
		}
	}
	args = append(args, credPath)

	gpg := opts.GPGPath
	if gpg == "" {
		gpg = "gpg"
	}
	log.Debug().Str("file", credPath).Msg("Decrypting GPG credentials")
	output, err := exec.CommandContext(ctx, gpg, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("gpg decrypt: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("gpg decrypt: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// passphrasePath picks the explicit file, then the env override, then the
// default location if it exists.
func passphrasePath(opts Options) string {
	if opts.PassphraseFile != "" {
		return opts.PassphraseFile
	}
	if p := strings.TrimSpace(os.Getenv(passphraseEnv)); p != "" {
		return p
	}
	p, err := configFile(passphraseFile)
	if err != nil {
		return ""
	}
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

func ownerOnly(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := fi.Mode().Perm(); mode&0o077 != 0 {
		return fmt.Errorf("%s has permissions %04o, want 0600", path, mode)
	}
	return nil
}

func configFile(name string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home directory: %w", err)
	}
	return filepath.Join(home, credentialDir, name), nil
}
