package actions

import (
	"context"
	"testing"

	"github.com/clustersmith/enginecore/internal/apierr"
	"github.com/clustersmith/enginecore/internal/types"
)

// fakeStore is a minimal in-memory ActionStore, enough to drive Registry's
// own logic (Submit, AddDependency/wouldCycle, notify) without pulling in
// internal/store/sqlite. Its MarkSucceeded/MarkTerminal reimplement the
// same promote/cascade rules internal/store/sqlite/actions.go persists, so
// Registry-level behavior can be verified against a store double.
type fakeStore struct {
	actions map[string]*types.Action
	owner   map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{actions: map[string]*types.Action{}, owner: map[string]string{}}
}

func (s *fakeStore) ActionCreate(ctx context.Context, a *types.Action) error {
	cp := *a
	cp.DependsOn = map[string]struct{}{}
	cp.DependedBy = map[string]struct{}{}
	s.actions[a.ID] = &cp
	return nil
}

func (s *fakeStore) ActionGet(ctx context.Context, id string) (*types.Action, error) {
	a, ok := s.actions[id]
	if !ok {
		return nil, apierr.NotFoundf("action %s", id)
	}
	cp := *a
	return &cp, nil
}

func (s *fakeStore) ActionGetFirstReady(ctx context.Context) (*types.Action, error) {
	for _, a := range s.actions {
		if a.Status == types.ActionReady {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) ActionGetAllReady(ctx context.Context) ([]*types.Action, error) {
	var out []*types.Action
	for _, a := range s.actions {
		if a.Status == types.ActionReady {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) ActionGetAllByOwner(ctx context.Context, owner string) ([]*types.Action, error) {
	var out []*types.Action
	for _, a := range s.actions {
		if a.Owner == owner {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) ActionDelete(ctx context.Context, id string) error {
	delete(s.actions, id)
	return nil
}

func (s *fakeStore) ActionAddDependency(ctx context.Context, depended, dependent []string) error {
	for _, up := range depended {
		for _, down := range dependent {
			s.actions[up].DependedBy[down] = struct{}{}
			s.actions[down].DependsOn[up] = struct{}{}
		}
	}
	return nil
}

func (s *fakeStore) ActionDelDependency(ctx context.Context, depended, dependent []string) error {
	for _, up := range depended {
		for _, down := range dependent {
			delete(s.actions[up].DependedBy, down)
			delete(s.actions[down].DependsOn, up)
		}
	}
	return nil
}

func (s *fakeStore) ActionSetStatus(ctx context.Context, id string, status types.ActionStatus, reason string) error {
	s.actions[id].Status = status
	s.actions[id].StatusReason = reason
	return nil
}

func (s *fakeStore) ActionStartWorkOn(ctx context.Context, id, owner string) error {
	a := s.actions[id]
	if a.Status != types.ActionReady {
		return apierr.Conflictf("action %s is not READY", id)
	}
	a.Status = types.ActionRunning
	a.Owner = owner
	return nil
}

func (s *fakeStore) ActionLockCheck(ctx context.Context, id string) (string, bool, error) {
	a := s.actions[id]
	return a.Owner, a.Owner != "", nil
}

func (s *fakeStore) ActionSetControl(ctx context.Context, id string, control types.ControlSignal) error {
	s.actions[id].Control = control
	return nil
}

func (s *fakeStore) ActionControlCheck(ctx context.Context, id string) (types.ControlSignal, error) {
	return s.actions[id].Control, nil
}

func (s *fakeStore) ActionMarkSucceeded(ctx context.Context, id string) ([]string, error) {
	s.actions[id].Status = types.ActionSucceeded
	var promoted []string
	for down := range s.actions[id].DependedBy {
		delete(s.actions[down].DependsOn, id)
		if len(s.actions[down].DependsOn) == 0 && s.actions[down].Status == types.ActionWaiting {
			s.actions[down].Status = types.ActionReady
			promoted = append(promoted, down)
		}
	}
	s.actions[id].DependedBy = map[string]struct{}{}
	return promoted, nil
}

func (s *fakeStore) ActionMarkTerminal(ctx context.Context, id string, status types.ActionStatus, reason string) ([]string, error) {
	s.actions[id].Status = status
	s.actions[id].StatusReason = reason

	var cascaded []string
	visited := map[string]bool{id: true}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for down := range s.actions[cur].DependedBy {
			if visited[down] {
				continue
			}
			visited[down] = true
			if !s.actions[down].Status.IsTerminal() {
				s.actions[down].Status = status
				s.actions[down].StatusReason = reason
				cascaded = append(cascaded, down)
			}
			queue = append(queue, down)
		}
	}
	return cascaded, nil
}

func submitted(t *testing.T, r *Registry, verb types.ActionVerb, deps ...string) *types.Action {
	t.Helper()
	a, err := r.Submit(context.Background(), "target-1", types.TargetCluster, verb, "", deps)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	return a
}

func TestSubmitWithoutDependenciesIsReady(t *testing.T) {
	r := New(newFakeStore())
	a := submitted(t, r, types.VerbClusterCreate)
	if a.Status != types.ActionReady {
		t.Fatalf("expected READY, got %s", a.Status)
	}
}

func TestSubmitWithDependenciesWaits(t *testing.T) {
	r := New(newFakeStore())
	up := submitted(t, r, types.VerbClusterCreate)
	down := submitted(t, r, types.VerbClusterUpdate, up.ID)
	if down.Status != types.ActionWaiting {
		t.Fatalf("expected WAITING, got %s", down.Status)
	}
}

func TestAddDependencyRejectsCycle(t *testing.T) {
	r := New(newFakeStore())
	a := submitted(t, r, types.VerbClusterCreate)
	b := submitted(t, r, types.VerbClusterUpdate, a.ID)

	err := r.AddDependency(context.Background(), []string{b.ID}, []string{a.ID})
	if apierr.KindOf(err) != apierr.Invalid {
		t.Fatalf("expected cycle to be rejected as Invalid, got %v", err)
	}
}

func TestMarkSucceededPromotesDependent(t *testing.T) {
	store := newFakeStore()
	r := New(store)
	up := submitted(t, r, types.VerbClusterCreate)
	down := submitted(t, r, types.VerbClusterUpdate, up.ID)

	if err := r.StartWorkOn(context.Background(), up.ID, "engine-a"); err != nil {
		t.Fatalf("StartWorkOn failed: %v", err)
	}
	if err := r.MarkSucceeded(context.Background(), up.ID); err != nil {
		t.Fatalf("MarkSucceeded failed: %v", err)
	}

	got, err := store.ActionGet(context.Background(), down.ID)
	if err != nil {
		t.Fatalf("ActionGet failed: %v", err)
	}
	if got.Status != types.ActionReady {
		t.Fatalf("expected dependent to be promoted to READY, got %s", got.Status)
	}
}

func TestMarkFailedCascadesToDependents(t *testing.T) {
	store := newFakeStore()
	r := New(store)
	up := submitted(t, r, types.VerbClusterCreate)
	mid := submitted(t, r, types.VerbClusterUpdate, up.ID)
	leaf := submitted(t, r, types.VerbClusterScale, mid.ID)

	if err := r.MarkFailed(context.Background(), up.ID, "boom"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	for _, id := range []string{mid.ID, leaf.ID} {
		got, err := store.ActionGet(context.Background(), id)
		if err != nil {
			t.Fatalf("ActionGet(%s) failed: %v", id, err)
		}
		if got.Status != types.ActionFailed {
			t.Errorf("expected %s to cascade to FAILED, got %s", id, got.Status)
		}
	}
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	r := New(newFakeStore())
	var seen []types.ActionStatus
	unsubscribe := r.Subscribe(func(a *types.Action) { seen = append(seen, a.Status) })
	defer unsubscribe()

	a := submitted(t, r, types.VerbClusterCreate)
	if err := r.StartWorkOn(context.Background(), a.ID, "engine-a"); err != nil {
		t.Fatalf("StartWorkOn failed: %v", err)
	}
	if err := r.MarkSucceeded(context.Background(), a.ID); err != nil {
		t.Fatalf("MarkSucceeded failed: %v", err)
	}

	if len(seen) < 3 {
		t.Fatalf("expected submit+start+succeed notifications, got %v", seen)
	}
}
