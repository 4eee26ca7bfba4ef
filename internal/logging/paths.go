package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir is $XDG_STATE_HOME/cmsindex, else ~/.cmsindex/logs, else a
// directory under the temp dir.
func DefaultLogDir() string {
	if state := os.Getenv("XDG_STATE_HOME"); state != "" {
		return filepath.Join(state, "cmsindex")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".cmsindex", "logs")
	}
	return filepath.Join(home, ".cmsindex", "logs")
}

// DefaultLogPath is the log file shared by every cmsindex command.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "cmsindex.log")
}
