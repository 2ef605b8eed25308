// Package xdg resolves XDG Base Directory paths for osql, falling back to
// the traditional ~/.config and ~/.local/state locations when the XDG
// environment variables are unset.
package xdg

import (
	"os"
	"path/filepath"
)

// ConfigDir returns the osql config directory, creating it with private
// permissions (0700) if missing. Falls back to ~/.config/osql.
func ConfigDir() (string, error) {
	return appDir("XDG_CONFIG_HOME", ".config")
}

// StateDir returns the osql state directory (log files live here), creating
// it with private permissions (0700) if missing. Falls back to
// ~/.local/state/osql.
func StateDir() (string, error) {
	return appDir("XDG_STATE_HOME", ".local", "state")
}

func appDir(envVar string, fallback ...string) (string, error) {
	base := os.Getenv(envVar)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(append([]string{home}, fallback...)...)
	}
	dir := filepath.Join(base, "osql")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}
