// Package xdg provides helpers to resolve XDG Base Directory paths for agentfit.
// Configuration lives under the config directory; run history and persisted
// reports default to the state directory.
package xdg

import (
	"os"
	"path/filepath"
)

const appDir = "agentfit"

// ConfigDir returns the XDG config directory for agentfit.
// The directory is created with private permissions (0700) if missing.
// It falls back to ~/.config/agentfit when XDG_CONFIG_HOME is unset.
func ConfigDir() (string, error) {
	return ensure("XDG_CONFIG_HOME", ".config")
}

// StateDir returns the XDG state directory for agentfit.
// The directory is created with private permissions (0700) if missing.
// It falls back to ~/.local/state/agentfit when XDG_STATE_HOME is unset.
func StateDir() (string, error) {
	return ensure("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

func ensure(env, fallback string) (string, error) {
	base := os.Getenv(env)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, fallback)
	}
	dir := filepath.Join(base, appDir)
	if err := os.MkdirAll(dir, 0o700); err != nil { // private dir
		return "", err
	}
	return dir, nil
}
