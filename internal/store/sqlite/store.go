// Package sqlite implements internal/store.Store on top of
// modernc.org/sqlite, the pure-Go driver that needs no CGO toolchain on the
// host. Every multi-row mutation runs inside a BEGIN IMMEDIATE transaction
// taken on a dedicated connection, retried with backoff on SQLITE_BUSY, the
// same shape the retrieved reference store's dedicated-connection
// transactions use.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	_ "modernc.org/sqlite"
)

var tracer = otel.Tracer("github.com/clustersmith/enginecore/store/sqlite")

// Store implements store.Store.
type Store struct {
	db *sql.DB
	mu sync.RWMutex // serializes writers; SQLite allows only one at a time anyway
}

// Open opens (creating if absent) the database at path and brings its
// schema up to date.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers across conns
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

const busyRetryMaxElapsed = 5 * time.Second

func newBusyBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxElapsedTime = busyRetryMaxElapsed
	return bo
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "SQLITE_BUSY") || strings.Contains(s, "database is locked")
}

// querier is the subset of *sql.Conn that migration-free row access needs;
// every per-concern file writes its queries against this inside withTx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx acquires a dedicated connection, issues BEGIN IMMEDIATE (retried
// with backoff on SQLITE_BUSY so a reader-in-progress doesn't fail the
// whole write outright), runs fn, and commits with a raw COMMIT. database/sql's
// own *sql.Tx always opens in DEFERRED mode with no way to request
// IMMEDIATE, so the transaction is driven by hand on the conn instead.
func (s *Store) withTx(ctx context.Context, spanName string, fn func(q querier) error) error {
	ctx, span := tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	bo := newBusyBackoff()
	err = backoff.Retry(func() error {
		_, berr := conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		if berr != nil && isBusyErr(berr) {
			return berr
		}
		if berr != nil {
			return backoff.Permanent(berr)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(conn); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}
