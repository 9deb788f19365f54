package patchgate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/retrivo/core/internal/errors"
)

// TaskLock is a task-scoped advisory lock preventing two concurrent
// Patch Gate runs for the same task_id in the same repository. It is
// backed by exclusive file creation under <repo>/.autopilot/locks/, not
// flock, so a stale lock from a killed process is visible as a leftover
// file rather than silently releasing.
type TaskLock struct {
	path string
}

// lockFileName builds <repo-hash-8>.<task_id>.lock from the repo's
// absolute path and the task id, truncating the hash to 8 hex chars —
// content integrity never relies on this truncation, it's a filename
// disambiguator only.
func lockFileName(repoPath, taskID string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(repoPath)))
	repoHash := hex.EncodeToString(sum[:])[:8]
	return fmt.Sprintf("%s.%s.lock", repoHash, taskID)
}

// AcquireTaskLock attempts to exclusively create the lock file for
// (repoPath, taskID). It returns ErrCodeTaskLocked if another run
// already holds it.
func AcquireTaskLock(repoPath, taskID string) (*TaskLock, error) {
	dir := filepath.Join(repoPath, ".autopilot", "locks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.IOError("failed to create lock directory", err)
	}

	path := filepath.Join(dir, lockFileName(repoPath, taskID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, errors.New(errors.ErrCodeTaskLocked, fmt.Sprintf("task %s is already locked for this repository", taskID), err)
		}
		return nil, errors.IOError("failed to create lock file", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "pid=%d\n", os.Getpid()); err != nil {
		_ = os.Remove(path)
		return nil, errors.IOError("failed to write lock file", err)
	}

	return &TaskLock{path: path}, nil
}

// Release removes the lock file. Safe to call once; a second call is a
// no-op.
func (l *TaskLock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	err := os.Remove(l.path)
	l.path = ""
	if err != nil && !os.IsNotExist(err) {
		return errors.IOError("failed to release lock file", err)
	}
	return nil
}
