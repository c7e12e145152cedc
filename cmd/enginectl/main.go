// Command enginectl is the operator CLI for the orchestration core. It
// opens the same SQLite database an engined process uses and submits
// Actions through the same internal/actions.Registry engined's dispatcher
// drains — no RPC layer, by design: writes are just rows another process's
// dispatcher will pick up, the same "talk to the shared store directly"
// shape cmd/bd falls back to in its own --no-daemon mode.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/clustersmith/enginecore/internal/actions"
	"github.com/clustersmith/enginecore/internal/store"
	"github.com/clustersmith/enginecore/internal/store/sqlite"
)

var (
	dbPath      string
	projectID   string
	jsonOutput  bool
	waitTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "enginectl",
	Short:         "Operate clusters, nodes, and actions against an orchestration core database",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "enginecore.db", "path to the engine's SQLite database")
	rootCmd.PersistentFlags().StringVar(&projectID, "project", "default", "project id clusters are scoped to")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON")
	rootCmd.PersistentFlags().DurationVar(&waitTimeout, "wait-timeout", 30*time.Second, "how long --wait blocks for an action to finish")

	rootCmd.AddCommand(clusterCmd, nodeCmd, actionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		FatalError("%v", err)
	}
}

// FatalError writes an error to stderr and exits 1, matching cmd/bd's
// top-level error convention.
func FatalError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// openStore opens the database at --db. Multiple enginectl invocations and
// one engined process may hold it open concurrently; the store's own
// BEGIN IMMEDIATE retry loop serializes writers.
func openStore() store.Store {
	st, err := sqlite.Open(dbPath)
	if err != nil {
		FatalError("failed to open database %s: %v", dbPath, err)
	}
	return st
}

func openRegistry() (store.Store, *actions.Registry) {
	st := openStore()
	return st, actions.New(st)
}
