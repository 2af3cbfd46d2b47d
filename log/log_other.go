//go:build !windows

package log

import (
	"os"
	"path/filepath"
	"runtime"
)

func defaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return stateDir(runtime.GOOS, home, os.Getenv), nil
}

// stateDir follows each platform's home for logs: ~/Library/Logs on macOS,
// XDG_STATE_HOME elsewhere.
func stateDir(goos, home string, getenv func(string) string) string {
	if goos == "darwin" {
		return filepath.Join(home, "Library", "Logs", "jot")
	}
	base := getenv("XDG_STATE_HOME")
	if !filepath.IsAbs(base) {
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, "jot", "logs")
}
