package index

import (
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/retrivo/core/internal/errors"
)

// lockRefreshInterval is how long a held workspace lock may go without a
// liveness touch before RefreshIfStale updates the lock file's mtime.
const lockRefreshInterval = 15 * time.Second

// WorkspaceLock is the advisory lock serialising mutating passes over one
// workspace's index. Searches don't take it; only indexing does, so
// readers run concurrently while writers exclude each other.
type WorkspaceLock struct {
	fl          *flock.Flock
	path        string
	lastRefresh time.Time
}

// AcquireWorkspaceLock takes the exclusive index lock for dataDir,
// retrying until timeout. Failing fast on a still-held lock returns the
// lock-timeout error code so callers can surface "another indexing pass
// is running" rather than a raw I/O failure.
func AcquireWorkspaceLock(dataDir string, timeout time.Duration) (*WorkspaceLock, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errors.IOError("failed to create index data directory", err)
	}

	path := filepath.Join(dataDir, "index.lock")
	fl := flock.New(path)

	deadline := time.Now().Add(timeout)
	for {
		ok, err := fl.TryLock()
		if err != nil {
			return nil, errors.IOError("failed to acquire workspace lock", err)
		}
		if ok {
			return &WorkspaceLock{fl: fl, path: path, lastRefresh: time.Now()}, nil
		}
		if time.Now().After(deadline) {
			return nil, errors.LockTimeout(dataDir, nil)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// RefreshIfStale touches the lock file's mtime when lockRefreshInterval
// has elapsed since the last touch, so an operator inspecting a
// long-running pass can distinguish it from a crashed one.
func (l *WorkspaceLock) RefreshIfStale() {
	if time.Since(l.lastRefresh) < lockRefreshInterval {
		return
	}
	now := time.Now()
	_ = os.Chtimes(l.path, now, now)
	l.lastRefresh = now
}

// Release drops the lock. Safe to call more than once.
func (l *WorkspaceLock) Release() error {
	return l.fl.Unlock()
}
