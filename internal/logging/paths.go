package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.aix/logs, or a temp-dir fallback when the home
// directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".aix", "logs")
	}
	return filepath.Join(home, ".aix", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "amankb.log")
}
