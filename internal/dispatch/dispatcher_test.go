package dispatch

import (
	"context"
	"errors"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/clustersmith/enginecore/internal/actions"
	"github.com/clustersmith/enginecore/internal/store/sqlite"
	"github.com/clustersmith/enginecore/internal/types"
)

// memBackend is a minimal in-memory lock.Backend, one row per target id.
type memBackend struct{ rows map[string]string }

func newMemBackend() *memBackend { return &memBackend{rows: map[string]string{}} }

func (b *memBackend) Create(ctx context.Context, targetID, workerID string) (string, error) {
	if owner, ok := b.rows[targetID]; ok {
		return owner, nil
	}
	b.rows[targetID] = workerID
	return "", nil
}

func (b *memBackend) Steal(ctx context.Context, targetID, oldWorker, newWorker string) (string, bool, error) {
	owner, ok := b.rows[targetID]
	if !ok {
		return "", false, nil
	}
	if owner != oldWorker {
		return owner, false, nil
	}
	b.rows[targetID] = newWorker
	return "", true, nil
}

func (b *memBackend) Release(ctx context.Context, targetID, workerID string) (bool, error) {
	if b.rows[targetID] != workerID {
		return false, nil
	}
	delete(b.rows, targetID)
	return true, nil
}

// alwaysDeadProber reports every engine as dead, so a stale lock is always
// stealable -- the dispatcher tests don't exercise contention from a live
// rival engine.
type alwaysDeadProber struct{}

func (alwaysDeadProber) IsAlive(ctx context.Context, engineID string) bool { return false }

func newTestDispatcher(t *testing.T, cfg Config) (*Dispatcher, *actions.Registry, *sqlite.Store) {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("sqlite.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	registry := actions.New(st)
	cfg.PeriodicInterval = 10 * time.Millisecond
	cfg.ActionTimeout = time.Second
	if cfg.EngineID == "" {
		cfg.EngineID = "engine-test"
	}
	d := New(cfg, registry, st, newMemBackend(), newMemBackend(), alwaysDeadProber{}, log.New(log.Writer(), "", 0))
	return d, registry, st
}

func TestClaimAndRunSucceeds(t *testing.T) {
	d, registry, st := newTestDispatcher(t, Config{})
	var invoked bool
	d.RegisterHandler(types.VerbClusterCreate, func(ctx context.Context, a *types.Action) (string, error) {
		invoked = true
		return `{"ok":true}`, nil
	})

	a, err := registry.Submit(context.Background(), "c1", types.TargetCluster, types.VerbClusterCreate, "", nil)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	did, err := d.claimAndRun(context.Background())
	if err != nil {
		t.Fatalf("claimAndRun failed: %v", err)
	}
	if !did {
		t.Fatalf("expected claimAndRun to report it claimed work")
	}
	if !invoked {
		t.Fatalf("expected the registered handler to run")
	}

	got, err := st.ActionGet(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != types.ActionSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s", got.Status)
	}
}

func TestClaimAndRunMarksFailedOnHandlerError(t *testing.T) {
	d, registry, st := newTestDispatcher(t, Config{})
	boom := errors.New("boom")
	d.RegisterHandler(types.VerbClusterCreate, func(ctx context.Context, a *types.Action) (string, error) {
		return "", boom
	})

	a, err := registry.Submit(context.Background(), "c1", types.TargetCluster, types.VerbClusterCreate, "", nil)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := d.claimAndRun(context.Background()); err != nil {
		t.Fatalf("claimAndRun failed: %v", err)
	}

	got, err := st.ActionGet(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != types.ActionFailed {
		t.Fatalf("expected FAILED, got %s", got.Status)
	}
	if got.StatusReason == "" {
		t.Fatalf("expected a status reason recording the handler's error")
	}
}

func TestClaimAndRunRecoversFromHandlerPanic(t *testing.T) {
	d, registry, st := newTestDispatcher(t, Config{})
	d.RegisterHandler(types.VerbClusterCreate, func(ctx context.Context, a *types.Action) (string, error) {
		panic("handler exploded")
	})

	a, err := registry.Submit(context.Background(), "c1", types.TargetCluster, types.VerbClusterCreate, "", nil)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := d.claimAndRun(context.Background()); err != nil {
		t.Fatalf("claimAndRun should not propagate a handler panic as a worker error: %v", err)
	}

	got, err := st.ActionGet(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != types.ActionFailed {
		t.Fatalf("expected a panicking handler to result in FAILED, got %s", got.Status)
	}
}

func TestClaimAndRunFailsMissingHandler(t *testing.T) {
	d, registry, st := newTestDispatcher(t, Config{})

	a, err := registry.Submit(context.Background(), "c1", types.TargetCluster, types.VerbClusterCreate, "", nil)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := d.claimAndRun(context.Background()); err != nil {
		t.Fatalf("claimAndRun failed: %v", err)
	}

	got, err := st.ActionGet(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != types.ActionFailed {
		t.Fatalf("expected an unhandled verb to be marked FAILED, got %s", got.Status)
	}
}

func TestClaimAndRunSkipsWhenNothingReady(t *testing.T) {
	d, _, _ := newTestDispatcher(t, Config{})
	did, err := d.claimAndRun(context.Background())
	if err != nil {
		t.Fatalf("claimAndRun failed: %v", err)
	}
	if did {
		t.Fatalf("expected no work to be claimed from an empty queue")
	}
}

func TestClaimAndRunPromotesDependentOnCompletion(t *testing.T) {
	d, registry, st := newTestDispatcher(t, Config{})
	d.RegisterHandler(types.VerbClusterCreate, func(ctx context.Context, a *types.Action) (string, error) {
		return "{}", nil
	})
	d.RegisterHandler(types.VerbClusterUpdate, func(ctx context.Context, a *types.Action) (string, error) {
		return "{}", nil
	})

	up, err := registry.Submit(context.Background(), "c1", types.TargetCluster, types.VerbClusterCreate, "", nil)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	down, err := registry.Submit(context.Background(), "c1", types.TargetCluster, types.VerbClusterUpdate, "", []string{up.ID})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// The dependent isn't READY yet; only the root should be claimable.
	if _, err := d.claimAndRun(context.Background()); err != nil {
		t.Fatalf("claimAndRun (root) failed: %v", err)
	}
	if _, err := d.claimAndRun(context.Background()); err != nil {
		t.Fatalf("claimAndRun (dependent) failed: %v", err)
	}

	got, err := st.ActionGet(context.Background(), down.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != types.ActionSucceeded {
		t.Fatalf("expected the dependent to run to completion once promoted, got %s", got.Status)
	}
}
