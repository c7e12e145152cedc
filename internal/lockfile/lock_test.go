package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFlockExclusiveNonBlock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.lock")

	f1, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		t.Fatalf("open first handle: %v", err)
	}
	defer f1.Close()

	if err := FlockExclusiveNonBlock(f1); err != nil {
		t.Fatalf("first acquire should succeed: %v", err)
	}

	f2, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		t.Fatalf("open second handle: %v", err)
	}
	defer f2.Close()

	if err := FlockExclusiveNonBlock(f2); !errors.Is(err, ErrLockBusy) {
		t.Fatalf("second acquire: got %v, want ErrLockBusy", err)
	}

	if err := FlockUnlock(f1); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	if err := FlockExclusiveNonBlock(f2); err != nil {
		t.Fatalf("acquire after unlock should succeed: %v", err)
	}
	if err := FlockUnlock(f2); err != nil {
		t.Fatalf("unlock f2: %v", err)
	}
}
