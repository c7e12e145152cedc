// Command engined runs one orchestration engine process: it opens the
// store, connects the liveness transports, registers every verb handler,
// and drives the dispatch worker pool until a shutdown signal arrives.
// Structure follows cmd/agent-controller's flag-driven daemon loop rather
// than cmd/bd's cobra CLI, since this binary takes a config file and runs
// forever with no subcommands.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clustersmith/enginecore/internal/config"
	"github.com/clustersmith/enginecore/internal/engine"
	"github.com/clustersmith/enginecore/internal/handlers"
	"github.com/clustersmith/enginecore/internal/store"
	"github.com/clustersmith/enginecore/internal/telemetry"
)

func main() {
	var (
		configPath      = flag.String("config", "", "path to engine config YAML (optional; defaults apply if omitted)")
		heartbeatPeriod = flag.Duration("heartbeat-interval", 5*time.Second, "how often to refresh this engine's liveness heartbeat")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[engined] ", log.LstdFlags|log.Lmsgprefix)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("received signal %v, shutting down", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger, *heartbeatPeriod); err != nil && err != context.Canceled {
		logger.Fatalf("engine error: %v", err)
	}
	logger.Printf("engined stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger, heartbeatPeriod time.Duration) error {
	shutdownTelemetry, err := telemetry.Init(ctx, "enginecore")
	if err != nil {
		return fmt.Errorf("failed to start telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Printf("telemetry shutdown: %v", err)
		}
	}()

	accessLock, err := store.AcquireAccessLock(cfg.DatabasePath, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to acquire database access lock: %w", err)
	}
	defer accessLock.Release()

	eng, err := engine.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	defer eng.Close()

	h := handlers.New(eng.Store, eng.Config)
	h.RegisterAll(eng.Dispatcher)

	go heartbeatLoop(ctx, eng, logger, heartbeatPeriod)

	logger.Printf("engine %s started (workers=%d, db=%s)", eng.ID, cfg.NumEngineWorkers, cfg.DatabasePath)

	if err := eng.Dispatcher.Start(ctx); err != nil && err != context.Canceled {
		return fmt.Errorf("dispatcher stopped: %w", err)
	}
	return nil
}

// heartbeatLoop refreshes this engine's liveness key so peers don't steal
// its locks out from under it while it's still healthy.
func heartbeatLoop(ctx context.Context, eng *engine.Engine, logger *log.Logger, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	if err := eng.Liveness.Heartbeat(ctx); err != nil {
		logger.Printf("initial heartbeat failed: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := eng.Liveness.Heartbeat(ctx); err != nil {
				logger.Printf("heartbeat failed: %v", err)
			}
		}
	}
}
