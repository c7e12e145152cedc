// Package liveness answers "is this engine still alive?" for the lock
// manager's stale-lock decision, generalizing BaseLock.engine_alive's
// request-reply RPC probe into a dual-transport check: a cheap Redis TTL
// key is consulted first, falling back to a NATS request-reply "listening"
// probe with a hard timeout — so a missed Redis heartbeat refresh doesn't
// by itself declare a live engine dead.
package liveness

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix  = "enginecore:alive:"
	heartbeatTTL    = 15 * time.Second
	listeningSubj   = "enginecore.listening."
	natsProbeReply  = "alive"
	redisDialMaxLag = 5 * time.Second
)

// Service implements internal/lock.Prober and also publishes this
// process's own heartbeat.
type Service struct {
	redis    *redis.Client
	nats     *nats.Conn
	engineID string
	timeout  time.Duration
}

// Config is the dial information for both transports.
type Config struct {
	RedisAddr string
	NATSURL   string
	EngineID  string
	// ProbeTimeout bounds the NATS request-reply probe (defaults to 2s).
	ProbeTimeout time.Duration
}

// New dials Redis (retried with backoff, since a daemon restart can race
// the Redis container coming up) and connects to NATS.
func New(ctx context.Context, cfg Config) (*Service, error) {
	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = redisDialMaxLag
	if err := backoff.Retry(func() error {
		return rdb.Ping(ctx).Err()
	}, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", cfg.NATSURL, err)
	}

	s := &Service{redis: rdb, nats: nc, engineID: cfg.EngineID, timeout: timeout}

	if _, err := nc.Subscribe(listeningSubj+cfg.EngineID, func(msg *nats.Msg) {
		msg.Respond([]byte(natsProbeReply))
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to subscribe to liveness probe subject: %w", err)
	}

	return s, nil
}

// Close releases both transports.
func (s *Service) Close() {
	s.nats.Close()
	s.redis.Close()
}

// Heartbeat refreshes this engine's Redis TTL key. Callers run this on a
// ticker shorter than heartbeatTTL so the key never expires while the
// engine is actually up.
func (s *Service) Heartbeat(ctx context.Context) error {
	if err := s.redis.Set(ctx, redisKeyPrefix+s.engineID, "1", heartbeatTTL).Err(); err != nil {
		return fmt.Errorf("failed to refresh heartbeat for engine %s: %w", s.engineID, err)
	}
	return nil
}

// IsAlive reports whether engineID is still up. The Redis TTL key is
// checked first as a cheap common case; if it is missing (expired or never
// set, e.g. across a Redis restart) a NATS request-reply probe is used as
// the authoritative fallback, mirroring engine_alive's direct RPC call.
func (s *Service) IsAlive(ctx context.Context, engineID string) bool {
	n, err := s.redis.Exists(ctx, redisKeyPrefix+engineID).Result()
	if err == nil && n > 0 {
		return true
	}
	return s.natsAlive(ctx, engineID)
}

// natsAlive is IsAlive's NATS request-reply fallback, split out so it can be
// exercised against an embedded test server without also standing up Redis.
func (s *Service) natsAlive(ctx context.Context, engineID string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.nats.RequestWithContext(probeCtx, listeningSubj+engineID, nil)
	return err == nil
}
