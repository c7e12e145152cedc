// Package engine wires one process's Store, lock Managers, Action
// Registry, liveness Service, and Dispatcher together behind one explicit
// handle, replacing any package-level global facade the way spec.md's
// design note asks: callers always hold and pass an *Engine rather than
// reaching for ambient state.
package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/clustersmith/enginecore/internal/actions"
	"github.com/clustersmith/enginecore/internal/config"
	"github.com/clustersmith/enginecore/internal/dispatch"
	"github.com/clustersmith/enginecore/internal/liveness"
	"github.com/clustersmith/enginecore/internal/lock"
	"github.com/clustersmith/enginecore/internal/store"
	"github.com/clustersmith/enginecore/internal/store/sqlite"
	"github.com/clustersmith/enginecore/internal/types"
)

// Engine is one running instance of the orchestration core.
type Engine struct {
	ID         string
	Config     *config.Config
	Store      store.Store
	Actions    *actions.Registry
	Liveness   *liveness.Service
	Dispatcher *dispatch.Dispatcher
	ClusterLock *lock.Manager[*types.Cluster]
	NodeLock    *lock.Manager[*types.Node]

	logger *log.Logger
}

// New opens the database, connects the liveness transports, and wires the
// Action registry and Dispatcher. It does not register any verb handlers
// or start the dispatch loop — callers register handlers, then call
// Dispatcher.Start.
func New(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Engine, error) {
	if logger == nil {
		logger = log.Default()
	}
	engineID := cfg.EngineID
	if engineID == "" {
		engineID = uuid.NewString()
	}

	st, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	liv, err := liveness.New(ctx, liveness.Config{
		RedisAddr:    cfg.RedisAddr,
		NATSURL:      cfg.NATSURL,
		EngineID:     engineID,
		ProbeTimeout: cfg.EngineLifeCheckTimeout,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to start liveness service: %w", err)
	}

	clusterBackend := lock.ClusterBackend{Store: st}
	nodeBackend := lock.NodeBackend{Store: st}
	clusterLock := lock.NewManager[*types.Cluster](clusterBackend, liv, engineID, "cluster")
	nodeLock := lock.NewManager[*types.Node](nodeBackend, liv, engineID, "node")

	registry := actions.New(st)

	dispatcher := dispatch.New(dispatch.Config{
		NumWorkers:       cfg.NumEngineWorkers,
		PeriodicInterval: cfg.PeriodicInterval,
		ActionTimeout:    cfg.DefaultActionTimeout,
		ErrorWaitTime:    cfg.ErrorWaitTime,
		EngineID:         engineID,
	}, registry, st, clusterBackend, nodeBackend, liv, logger)

	return &Engine{
		ID:          engineID,
		Config:      cfg,
		Store:       st,
		Actions:     registry,
		Liveness:    liv,
		Dispatcher:  dispatcher,
		ClusterLock: clusterLock,
		NodeLock:    nodeLock,
		logger:      logger,
	}, nil
}

// Close releases the store and liveness transports.
func (e *Engine) Close() error {
	e.Liveness.Close()
	return e.Store.Close()
}
