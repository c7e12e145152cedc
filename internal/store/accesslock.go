// Package store's AccessLock guards one SQLite database file against being
// opened by two engined processes at once, grounded on
// internal/storage/dolt's AcquireAccessLock/Release pair: an advisory flock
// on a sidecar file next to the database, polled until acquired or timed
// out, exclusive because this engine is always a single writer.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/clustersmith/enginecore/internal/lockfile"
)

const (
	accessLockSuffix = ".lock"
	lockPollInterval = 50 * time.Millisecond
)

// AccessLock holds an exclusive advisory lock on a database file's sidecar
// lock file for the lifetime of one engined process.
type AccessLock struct {
	file *os.File
	path string
}

// AcquireAccessLock acquires an exclusive non-blocking flock on
// dbPath+".lock", polling every lockPollInterval until acquired or timeout
// elapses. Returns lockfile.ErrLockBusy (wrapped) on timeout.
func AcquireAccessLock(dbPath string, timeout time.Duration) (*AccessLock, error) {
	lockPath := dbPath + accessLockSuffix
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o750); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	// #nosec G304 - lockPath is derived from the operator-supplied database path
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open access lock %s: %w", lockPath, err)
	}

	if err := lockfile.FlockExclusiveNonBlock(f); err == nil {
		return &AccessLock{file: f, path: lockPath}, nil
	} else if !errors.Is(err, lockfile.ErrLockBusy) {
		_ = f.Close()
		return nil, fmt.Errorf("access lock %s: %w", lockPath, err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		time.Sleep(lockPollInterval)
		if err := lockfile.FlockExclusiveNonBlock(f); err == nil {
			return &AccessLock{file: f, path: lockPath}, nil
		} else if !errors.Is(err, lockfile.ErrLockBusy) {
			_ = f.Close()
			return nil, fmt.Errorf("access lock %s: %w", lockPath, err)
		}
	}

	_ = f.Close()
	return nil, fmt.Errorf("access lock %s timed out after %v: another engined process is using this database: %w",
		lockPath, timeout, lockfile.ErrLockBusy)
}

// Release releases the lock and closes the underlying file. Safe to call
// more than once, and safe to call on a nil *AccessLock.
func (l *AccessLock) Release() {
	if l == nil || l.file == nil {
		return
	}
	_ = lockfile.FlockUnlock(l.file)
	_ = l.file.Close()
	l.file = nil
}
