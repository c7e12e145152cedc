// Package actions implements the Action lifecycle state machine on top of
// internal/store: admission, dependency-DAG edits with cycle rejection,
// claiming, completion hooks (including the cascade the original's
// mark_failed/mark_cancelled never implemented), and an in-process
// broadcast fan-out for anything watching an action's progress — grounded
// on the teacher's internal/eventbus.Bus Register/Dispatch shape, minus its
// JetStream persistence leg, which has no counterpart here.
package actions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clustersmith/enginecore/internal/apierr"
	"github.com/clustersmith/enginecore/internal/store"
	"github.com/clustersmith/enginecore/internal/types"
)

// Subscriber receives every Action transition the registry produces.
type Subscriber func(a *types.Action)

// Registry is the single access point the dispatcher and any API layer use
// to mutate and observe Actions.
type Registry struct {
	store store.ActionStore

	mu          sync.RWMutex
	subscribers map[int]Subscriber
	nextSubID   int
}

// New builds a Registry over the given ActionStore.
func New(s store.ActionStore) *Registry {
	return &Registry{store: s, subscribers: map[int]Subscriber{}}
}

// Subscribe registers fn to be called with every Action this registry
// transitions, returning an unsubscribe function. Delivery is synchronous
// and best-effort: a slow subscriber slows the caller, the same tradeoff
// the teacher's in-process Bus.Dispatch makes for its own handlers.
func (r *Registry) Subscribe(fn Subscriber) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextSubID
	r.nextSubID++
	r.subscribers[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subscribers, id)
		r.mu.Unlock()
	}
}

func (r *Registry) notify(a *types.Action) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, fn := range r.subscribers {
		fn(a)
	}
}

// Submit creates a new Action. If dependsOn is non-empty the action starts
// WAITING and the dependency edges are recorded; otherwise it starts READY
// for immediate claiming.
func (r *Registry) Submit(ctx context.Context, targetID string, targetType types.TargetType, verb types.ActionVerb, inputs string, dependsOn []string) (*types.Action, error) {
	now := time.Now().UTC()
	status := types.ActionReady
	if len(dependsOn) > 0 {
		status = types.ActionWaiting
	}

	a := &types.Action{
		ID:         uuid.NewString(),
		TargetID:   targetID,
		TargetType: targetType,
		Verb:       verb,
		Inputs:     inputs,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := r.store.ActionCreate(ctx, a); err != nil {
		return nil, err
	}
	if len(dependsOn) > 0 {
		if err := r.AddDependency(ctx, dependsOn, []string{a.ID}); err != nil {
			return nil, err
		}
		a.DependsOn = make(map[string]struct{}, len(dependsOn))
		for _, id := range dependsOn {
			a.DependsOn[id] = struct{}{}
		}
	}
	r.notify(a)
	return a, nil
}

// AddDependency adds an edge for every (up, down) pair in the Cartesian
// product of depended x dependent, rejecting the whole batch if any single
// pair would introduce a cycle (checked against the graph as it stands
// before this call — pairs within the same call are not cross-checked
// against each other, matching how the original API always supplies one
// concrete edge set per call).
func (r *Registry) AddDependency(ctx context.Context, depended, dependent []string) error {
	for _, up := range depended {
		for _, down := range dependent {
			cyclic, err := r.wouldCycle(ctx, up, down)
			if err != nil {
				return err
			}
			if cyclic {
				return apierr.Invalidf("adding dependency %s -> %s would introduce a cycle", up, down)
			}
		}
	}
	return r.store.ActionAddDependency(ctx, depended, dependent)
}

// wouldCycle reports whether adding edge up->down (down depends on up)
// would create a cycle, i.e. whether up is already reachable from down by
// walking forward through existing dependent edges.
func (r *Registry) wouldCycle(ctx context.Context, up, down string) (bool, error) {
	if up == down {
		return true, nil
	}
	visited := map[string]bool{down: true}
	queue := []string{down}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		a, err := r.store.ActionGet(ctx, cur)
		if err != nil {
			if apierr.KindOf(err) == apierr.NotFound {
				continue
			}
			return false, fmt.Errorf("failed to walk dependency graph from %s: %w", cur, err)
		}
		for dependentID := range a.DependedBy {
			if dependentID == up {
				return true, nil
			}
			if !visited[dependentID] {
				visited[dependentID] = true
				queue = append(queue, dependentID)
			}
		}
	}
	return false, nil
}

// DelDependency removes the edges for every (up, down) pair.
func (r *Registry) DelDependency(ctx context.Context, depended, dependent []string) error {
	return r.store.ActionDelDependency(ctx, depended, dependent)
}

// GetFirstReady returns the oldest READY action, or nil if none exist.
func (r *Registry) GetFirstReady(ctx context.Context) (*types.Action, error) {
	return r.store.ActionGetFirstReady(ctx)
}

// StartWorkOn claims a READY action for owner, transitioning it to RUNNING.
func (r *Registry) StartWorkOn(ctx context.Context, id, owner string) error {
	if err := r.store.ActionStartWorkOn(ctx, id, owner); err != nil {
		return err
	}
	a, err := r.store.ActionGet(ctx, id)
	if err == nil {
		r.notify(a)
	}
	return nil
}

// LockCheck reports the current owner of an action and whether it is held.
func (r *Registry) LockCheck(ctx context.Context, id string) (string, bool, error) {
	return r.store.ActionLockCheck(ctx, id)
}

// SetControl sets the cooperative control signal an action handler should
// observe (CANCEL/SUSPEND/RESUME).
func (r *Registry) SetControl(ctx context.Context, id string, control types.ControlSignal) error {
	return r.store.ActionSetControl(ctx, id, control)
}

// ControlCheck reads the current control signal for an action.
func (r *Registry) ControlCheck(ctx context.Context, id string) (types.ControlSignal, error) {
	return r.store.ActionControlCheck(ctx, id)
}

// MarkSucceeded transitions id to SUCCEEDED and promotes any dependent
// whose dependencies are now all satisfied to READY, notifying subscribers
// for id and every promoted action.
func (r *Registry) MarkSucceeded(ctx context.Context, id string) error {
	promoted, err := r.store.ActionMarkSucceeded(ctx, id)
	if err != nil {
		return err
	}
	r.notifyByID(ctx, id)
	for _, p := range promoted {
		r.notifyByID(ctx, p)
	}
	return nil
}

// MarkFailed transitions id to FAILED and cascades FAILED to every action
// that (transitively) depends on it, resolving the gap the original leaves
// as a no-op stub.
func (r *Registry) MarkFailed(ctx context.Context, id, reason string) error {
	return r.markTerminal(ctx, id, types.ActionFailed, reason)
}

// MarkCancelled transitions id to CANCELLED and cascades CANCELLED to every
// action that (transitively) depends on it.
func (r *Registry) MarkCancelled(ctx context.Context, id, reason string) error {
	return r.markTerminal(ctx, id, types.ActionCancelled, reason)
}

func (r *Registry) markTerminal(ctx context.Context, id string, status types.ActionStatus, reason string) error {
	cascaded, err := r.store.ActionMarkTerminal(ctx, id, status, reason)
	if err != nil {
		return err
	}
	r.notifyByID(ctx, id)
	for _, c := range cascaded {
		r.notifyByID(ctx, c)
	}
	return nil
}

func (r *Registry) notifyByID(ctx context.Context, id string) {
	a, err := r.store.ActionGet(ctx, id)
	if err != nil {
		return
	}
	r.notify(a)
}
