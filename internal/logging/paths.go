package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.retrivo/logs/).
// Falls back to temp directory if home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".retrivo", "logs")
	}
	return filepath.Join(home, ".retrivo", "logs")
}

// DefaultLogPath returns the default daemon log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "retrivo.log")
}

// DaemonLogPath returns the retrieval daemon's log path (indexing, search,
// watch events). Equivalent to DefaultLogPath; named for symmetry with
// PatchLogPath.
func DaemonLogPath() string {
	return DefaultLogPath()
}

// PatchLogPath returns the Patch Gate's log path.
func PatchLogPath() string {
	return filepath.Join(DefaultLogDir(), "patch.log")
}

// LogSource selects which log stream(s) a viewer reads from.
type LogSource int

const (
	// LogSourceDaemon is the retrieval daemon's log (indexing, search, watch).
	LogSourceDaemon LogSource = iota
	// LogSourcePatch is the Patch Gate's log (verify/apply/commit pipeline).
	LogSourcePatch
	// LogSourceAll merges daemon and patch logs, ordered by timestamp.
	LogSourceAll
)

// ParseLogSource parses the --source flag value. Unrecognised values fall
// back to LogSourceDaemon.
func ParseLogSource(s string) LogSource {
	switch s {
	case "patch":
		return LogSourcePatch
	case "all":
		return LogSourceAll
	default:
		return LogSourceDaemon
	}
}

// FindLogFileBySource resolves the log file path(s) to view for the given
// source. An explicit path (from --file) always wins and is returned alone,
// regardless of source. Otherwise it resolves the default daemon and/or
// patch log paths; paths that don't yet exist are omitted unless they are
// the only candidate, in which case FindLogFile's not-found error is
// returned.
func FindLogFileBySource(source LogSource, explicit string) ([]string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return nil, fmt.Errorf("log file not found: %s", explicit)
		}
		return []string{explicit}, nil
	}

	switch source {
	case LogSourcePatch:
		path := PatchLogPath()
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("no patch log found. Run `retrivo patch` at least once.\nExpected at: %s", path)
		}
		return []string{path}, nil
	case LogSourceAll:
		var paths []string
		if _, err := os.Stat(DaemonLogPath()); err == nil {
			paths = append(paths, DaemonLogPath())
		}
		if _, err := os.Stat(PatchLogPath()); err == nil {
			paths = append(paths, PatchLogPath())
		}
		if len(paths) == 0 {
			return nil, fmt.Errorf("no log files found under %s", DefaultLogDir())
		}
		return paths, nil
	default:
		path, err := FindLogFile("")
		if err != nil {
			return nil, err
		}
		return []string{path}, nil
	}
}

// FindLogFile attempts to find the log file for viewing.
// Priority:
// 1. Explicit path (if provided)
// 2. ~/.retrivo/logs/retrivo.log (global)
//
// Returns an error if no log file is found.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	globalPath := DefaultLogPath()
	if _, err := os.Stat(globalPath); err == nil {
		return globalPath, nil
	}

	return "", fmt.Errorf("no log file found. Daemon may not have run with --debug yet.\nExpected at: %s", globalPath)
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir() error {
	dir := DefaultLogDir()
	return os.MkdirAll(dir, 0o755)
}
