package config

import (
	"errors"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when the api backend is selected without a key.
var ErrNoAPIKey = errors.New("no Anthropic API key configured (set ANTHROPIC_API_KEY or anthropic.api_key)")

// KeySource is where an API key was found.
type KeySource string

const (
	KeySourceEnv    KeySource = "environment"
	KeySourceConfig KeySource = "config_file"
	KeySourceNone   KeySource = "none"
)

// ResolveAPIKey returns the Anthropic key and where it came from. The
// ANTHROPIC_API_KEY environment variable wins over the config file; a config
// value that is still an unexpanded ${VAR} reference counts as unset.
func ResolveAPIKey(cfg *Config) (string, KeySource) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return key, KeySourceEnv
	}
	if cfg == nil {
		return "", KeySourceNone
	}
	key := os.ExpandEnv(cfg.Anthropic.APIKey)
	if key == "" || strings.HasPrefix(key, "${") {
		return "", KeySourceNone
	}
	return key, KeySourceConfig
}

// GetAPIKey returns the configured key or ErrNoAPIKey.
func GetAPIKey(cfg *Config) (string, error) {
	key, src := ResolveAPIKey(cfg)
	if src == KeySourceNone {
		return "", ErrNoAPIKey
	}
	return key, nil
}

// MaskAPIKey shortens a key for display, keeping the sk-ant- prefix and the
// last four characters.
func MaskAPIKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) <= 15:
		return "***"
	default:
		return key[:7] + "..." + key[len(key)-4:]
	}
}
