// Package lockfile provides cross-process advisory file locking via flock,
// used by store.AccessLock to keep two engined processes from opening the
// same database file at once.
package lockfile

import "errors"

// ErrLockBusy is returned when a non-blocking lock cannot be acquired
// because another process holds a conflicting lock.
var ErrLockBusy = errors.New("lock busy: held by another process")
