// Package dispatch runs the worker pool that claims READY actions and
// drives them to completion, grounded on internal/controller.Controller's
// ticker-driven reconcile loop (Start/reconcileOnce), generalized from one
// controller goroutine to a bounded pool of them via
// golang.org/x/sync/errgroup, and from "reconcile K8s pods against desired
// state" to "poll -> lock -> claim -> run -> complete" for one Action at a
// time.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/clustersmith/enginecore/internal/actions"
	"github.com/clustersmith/enginecore/internal/apierr"
	"github.com/clustersmith/enginecore/internal/lock"
	"github.com/clustersmith/enginecore/internal/store"
	"github.com/clustersmith/enginecore/internal/types"
)

// dispatchMeter and dispatchMetrics mirror the dolt storage backend's own
// doltMetrics: instruments are registered against the global delegating
// meter provider at init time, so they start recording for real the moment
// internal/telemetry.Init installs a real provider, and stay harmless no-ops
// until then.
var dispatchMeter = otel.Meter("github.com/clustersmith/enginecore/dispatch")

var dispatchMetrics struct {
	actionDurationMs metric.Float64Histogram
	actionsTotal     metric.Int64Counter
	workersInFlight  metric.Int64UpDownCounter
}

func init() {
	dispatchMetrics.actionDurationMs, _ = dispatchMeter.Float64Histogram("engine.action.duration_ms",
		metric.WithDescription("Wall-clock time spent running one action's handler"),
		metric.WithUnit("ms"),
	)
	dispatchMetrics.actionsTotal, _ = dispatchMeter.Int64Counter("engine.action.completed_total",
		metric.WithDescription("Actions completed by this engine, by outcome"),
		metric.WithUnit("{action}"),
	)
	dispatchMetrics.workersInFlight, _ = dispatchMeter.Int64UpDownCounter("engine.dispatch.workers_in_flight",
		metric.WithDescription("Workers currently running a claimed action's handler"),
		metric.WithUnit("{worker}"),
	)
}

// Handler executes one Action's verb against its target, returning opaque
// JSON outputs on success.
type Handler func(ctx context.Context, a *types.Action) (outputs string, err error)

// Config tunes the dispatcher, mirroring spec.md §6's worker-pool knobs.
type Config struct {
	NumWorkers       int
	PeriodicInterval time.Duration // idle poll interval when no READY action is found
	ActionTimeout    time.Duration // per-action wall-clock limit
	ErrorWaitTime    time.Duration // grace period before a failed target is retried
	EngineID         string
}

// Dispatcher owns the worker pool and the verb -> Handler table.
type Dispatcher struct {
	cfg         Config
	registry    *actions.Registry
	store       store.Store
	clusterLock *lock.Manager[lockTarget]
	nodeLock    *lock.Manager[lockTarget]
	handlers    map[types.ActionVerb]Handler
	logger      *log.Logger
}

// lockTarget is a minimal internal/lock.Target built directly from an
// Action's target id, avoiding a round trip to the store just to name the
// thing being locked.
type lockTarget struct{ id string }

func (t lockTarget) LockID() string   { return t.id }
func (t lockTarget) LockName() string { return t.id }

// New builds a Dispatcher. clusterBackend/nodeBackend and prober come from
// internal/lock and internal/liveness respectively.
func New(cfg Config, registry *actions.Registry, s store.Store, clusterBackend, nodeBackend lock.Backend, prober lock.Prober, logger *log.Logger) *Dispatcher {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 4
	}
	if cfg.PeriodicInterval <= 0 {
		cfg.PeriodicInterval = 2 * time.Second
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 10 * time.Minute
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{
		cfg:         cfg,
		registry:    registry,
		store:       s,
		clusterLock: lock.NewManager[lockTarget](clusterBackend, prober, cfg.EngineID, "cluster"),
		nodeLock:    lock.NewManager[lockTarget](nodeBackend, prober, cfg.EngineID, "node"),
		handlers:    map[types.ActionVerb]Handler{},
		logger:      logger,
	}
}

// RegisterHandler binds verb to h. Call before Start.
func (d *Dispatcher) RegisterHandler(verb types.ActionVerb, h Handler) {
	d.handlers[verb] = h
}

// Start runs cfg.NumWorkers poll loops until ctx is cancelled. It returns
// the first worker error, or ctx.Err() on clean shutdown.
func (d *Dispatcher) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.cfg.NumWorkers; i++ {
		g.Go(func() error { return d.workerLoop(ctx) })
	}
	return g.Wait()
}

func (d *Dispatcher) workerLoop(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.PeriodicInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for {
				did, err := d.claimAndRun(ctx)
				if err != nil {
					d.logger.Printf("dispatch: claim/run error: %v", err)
					break
				}
				if !did {
					break
				}
				// Another READY action may be waiting; don't idle out the
				// full interval.
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
			}
		}
	}
}

// claimAndRun polls for one READY action and, if found, locks its target,
// claims it, runs its handler, and completes it. It reports whether work
// was actually claimed this call.
func (d *Dispatcher) claimAndRun(ctx context.Context) (bool, error) {
	a, err := d.registry.GetFirstReady(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to poll for ready action: %w", err)
	}
	if a == nil {
		return false, nil
	}

	mgr := d.clusterLock
	if a.TargetType == types.TargetNode {
		mgr = d.nodeLock
	}
	target := lockTarget{id: a.TargetID}

	stolen, previousOwner, err := mgr.AcquireReportingSteal(ctx, target)
	if err != nil {
		if apierr.KindOf(err) == apierr.ActionInProgress {
			// Target is busy with something else; leave this action READY
			// and try again next tick.
			return false, nil
		}
		return false, fmt.Errorf("failed to acquire lock on %s %s: %w", a.TargetType, a.TargetID, err)
	}
	defer mgr.Release(ctx, a.TargetID)

	if stolen {
		if err := d.finalizeStolenAction(ctx, a.TargetID, previousOwner); err != nil {
			return false, fmt.Errorf("failed to finalize stolen lock on %s %s: %w", a.TargetType, a.TargetID, err)
		}
	}

	if err := d.registry.StartWorkOn(ctx, a.ID, d.cfg.EngineID); err != nil {
		return false, fmt.Errorf("failed to start work on action %s: %w", a.ID, err)
	}

	d.run(ctx, a)
	return true, nil
}

// finalizeStolenAction marks FAILED (reason "stolen") whichever RUNNING
// action previousOwner left behind on targetID when its lock was stolen out
// from under it — otherwise that action stays RUNNING forever alongside the
// new owner's action on the same target, violating the invariant that at
// most one action may be RUNNING per target at a time, and its dependents
// never cascade off of it.
func (d *Dispatcher) finalizeStolenAction(ctx context.Context, targetID, previousOwner string) error {
	owned, err := d.store.ActionGetAllByOwner(ctx, previousOwner)
	if err != nil {
		return fmt.Errorf("failed to list actions owned by %s: %w", previousOwner, err)
	}
	for _, stale := range owned {
		if stale.TargetID != targetID || stale.Status != types.ActionRunning {
			continue
		}
		if err := d.registry.MarkFailed(ctx, stale.ID, "stolen"); err != nil {
			return fmt.Errorf("failed to mark stolen action %s failed: %w", stale.ID, err)
		}
	}
	return nil
}

// controlPollInterval is how often run watches an executing action's
// control channel for a cooperative CANCEL signal.
const controlPollInterval = 250 * time.Millisecond

// run executes a's handler with a timeout and panic recovery, then applies
// the completion hook matching the outcome. Before starting, and throughout
// execution, it polls the action's control channel (set via
// registry.SetControl, e.g. from an operator's cancel request) and cancels
// the handler's context the moment a CANCEL signal appears, routing the
// outcome to MarkCancelled instead of MarkFailed/MarkSucceeded.
func (d *Dispatcher) run(ctx context.Context, a *types.Action) {
	if d.checkCancelled(ctx, a.ID) {
		return
	}

	handler, ok := d.handlers[a.Verb]
	if !ok {
		if err := d.registry.MarkFailed(ctx, a.ID, fmt.Sprintf("no handler registered for verb %s", a.Verb)); err != nil {
			d.logger.Printf("dispatch: failed to mark action %s failed: %v", a.ID, err)
		}
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, d.cfg.ActionTimeout)
	defer cancel()

	dispatchMetrics.workersInFlight.Add(ctx, 1)
	defer dispatchMetrics.workersInFlight.Add(ctx, -1)

	var cancelled atomic.Bool
	watchDone := make(chan struct{})
	go d.watchControl(ctx, a.ID, cancel, &cancelled, watchDone)
	defer func() {
		close(watchDone)
	}()

	start := time.Now()
	outputs, err := d.invoke(runCtx, handler, a)
	elapsedMs := float64(time.Since(start).Microseconds()) / 1000

	verbAttr := attribute.String("verb", string(a.Verb))
	dispatchMetrics.actionDurationMs.Record(ctx, elapsedMs, metric.WithAttributes(verbAttr))

	if cancelled.Load() {
		dispatchMetrics.actionsTotal.Add(ctx, 1, metric.WithAttributes(verbAttr, attribute.String("outcome", "cancelled")))
		if merr := d.registry.MarkCancelled(ctx, a.ID, "cancelled by operator"); merr != nil {
			d.logger.Printf("dispatch: failed to mark action %s cancelled: %v", a.ID, merr)
		}
		return
	}

	if err != nil {
		dispatchMetrics.actionsTotal.Add(ctx, 1, metric.WithAttributes(verbAttr, attribute.String("outcome", "failed")))
		d.logger.Printf("dispatch: action %s (%s) failed: %v", a.ID, a.Verb, err)
		if merr := d.registry.MarkFailed(ctx, a.ID, err.Error()); merr != nil {
			d.logger.Printf("dispatch: failed to mark action %s failed: %v", a.ID, merr)
		}
		return
	}

	dispatchMetrics.actionsTotal.Add(ctx, 1, metric.WithAttributes(verbAttr, attribute.String("outcome", "succeeded")))
	a.Outputs = outputs
	if err := d.registry.MarkSucceeded(ctx, a.ID); err != nil {
		d.logger.Printf("dispatch: failed to mark action %s succeeded: %v", a.ID, err)
	}
}

// checkCancelled marks id CANCELLED and reports true if its control signal
// is already CANCEL before the handler ever runs.
func (d *Dispatcher) checkCancelled(ctx context.Context, id string) bool {
	signal, err := d.registry.ControlCheck(ctx, id)
	if err != nil {
		d.logger.Printf("dispatch: failed to check control signal for action %s: %v", id, err)
		return false
	}
	if signal != types.ControlCancel {
		return false
	}
	if err := d.registry.MarkCancelled(ctx, id, "cancelled by operator"); err != nil {
		d.logger.Printf("dispatch: failed to mark action %s cancelled: %v", id, err)
	}
	return true
}

// watchControl polls id's control channel every controlPollInterval until
// done is closed, cancelling the running handler's context and recording
// cancelled=true the moment a CANCEL signal is observed.
func (d *Dispatcher) watchControl(ctx context.Context, id string, cancel context.CancelFunc, cancelled *atomic.Bool, done chan struct{}) {
	ticker := time.NewTicker(controlPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			signal, err := d.registry.ControlCheck(ctx, id)
			if err != nil {
				continue
			}
			if signal == types.ControlCancel {
				cancelled.Store(true)
				cancel()
				return
			}
		}
	}
}

// invoke runs handler, converting a panic into an error so one bad handler
// never takes down a worker goroutine.
func (d *Dispatcher) invoke(ctx context.Context, handler Handler, a *types.Action) (outputs string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, a)
}
