package sqlite

import (
	"context"
	"testing"
)

func TestNodeLockCreateStealRelease(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	owner, err := st.NodeLockCreate(ctx, "n1", "engine-a")
	if err != nil {
		t.Fatalf("NodeLockCreate failed: %v", err)
	}
	if owner != "" {
		t.Fatalf("expected no existing owner on first create, got %q", owner)
	}

	owner, err = st.NodeLockCreate(ctx, "n1", "engine-b")
	if err != nil {
		t.Fatalf("NodeLockCreate (second) failed: %v", err)
	}
	if owner != "engine-a" {
		t.Fatalf("expected existing owner engine-a, got %q", owner)
	}

	currentOwner, stolen, err := st.NodeLockSteal(ctx, "n1", "engine-a", "engine-b")
	if err != nil {
		t.Fatalf("NodeLockSteal failed: %v", err)
	}
	if !stolen || currentOwner != "" {
		t.Fatalf("expected a clean steal, got stolen=%v currentOwner=%q", stolen, currentOwner)
	}

	released, err := st.NodeLockRelease(ctx, "n1", "engine-b")
	if err != nil {
		t.Fatalf("NodeLockRelease failed: %v", err)
	}
	if !released {
		t.Fatalf("expected engine-b's release to succeed")
	}

	released, err = st.NodeLockRelease(ctx, "n1", "engine-b")
	if err != nil {
		t.Fatalf("NodeLockRelease (second) failed: %v", err)
	}
	if released {
		t.Fatalf("releasing an already-released lock must be a no-op, not error")
	}
}

func TestNodeLockStealFailsAgainstWrongOldOwner(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if _, err := st.NodeLockCreate(ctx, "n1", "engine-a"); err != nil {
		t.Fatalf("NodeLockCreate failed: %v", err)
	}

	currentOwner, stolen, err := st.NodeLockSteal(ctx, "n1", "engine-wrong", "engine-c")
	if err != nil {
		t.Fatalf("NodeLockSteal failed: %v", err)
	}
	if stolen {
		t.Fatalf("steal should fail when oldWorker does not match the actual owner")
	}
	if currentOwner != "engine-a" {
		t.Fatalf("expected current owner to still be engine-a, got %q", currentOwner)
	}
}

func TestNodeLockStealOnReleasedLockReportsEmptyOwner(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	currentOwner, stolen, err := st.NodeLockSteal(ctx, "never-created", "engine-a", "engine-b")
	if err != nil {
		t.Fatalf("NodeLockSteal failed: %v", err)
	}
	if stolen {
		t.Fatalf("stealing a lock that was never created should not succeed")
	}
	if currentOwner != "" {
		t.Fatalf("expected empty current owner for a nonexistent lock, got %q", currentOwner)
	}
}
