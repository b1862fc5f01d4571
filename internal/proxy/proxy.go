// Package proxy implements the byte-forwarding hot path: an accept loop
// with immediate-reject admission control, round-robin-with-failover
// backend selection, and a bidirectional relay with half-close and
// idle-timeout semantics. It mirrors the donor's L4Handler accept-loop
// and per-connection-goroutine shape, extended with the multi-candidate
// failover the donor's single-shot connectToBackend never needed.
package proxy

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/mir00r/bal/internal/backendpool"
	"github.com/mir00r/bal/internal/balerr"
	"github.com/mir00r/bal/internal/domain"
	"github.com/mir00r/bal/internal/loadbalancer"
	"github.com/mir00r/bal/internal/protection"
	"github.com/mir00r/bal/pkg/logger"
)

// SnapshotProvider returns the currently live config snapshot, so every
// accepted connection dials with the method and tuning bounds in effect at
// accept time, even across reloads.
type SnapshotProvider func() *domain.Snapshot

// Server forwards accepted TCP connections to the live backend pool,
// failing over across candidates and reshaping retry timing under the
// shared Protection Controller.
type Server struct {
	store      *backendpool.Store
	current    SnapshotProvider
	protection *protection.Controller
	log        *logger.Logger

	activeConns atomic.Int64
}

// New creates a Server bound to the pool store, the live-snapshot provider
// and the shared Protection Controller.
func New(store *backendpool.Store, current SnapshotProvider, protection *protection.Controller, log *logger.Logger) *Server {
	return &Server{store: store, current: current, protection: protection, log: log.ForComponent("proxy")}
}

// ActiveConnections reports the number of connections currently being relayed.
func (s *Server) ActiveConnections() int64 { return s.activeConns.Load() }

// Serve runs the accept loop against ln until ctx is cancelled or the
// listener returns a non-transient error. Connections beyond
// max_concurrent_connections are closed immediately without ever reaching a
// backend — the reject overload policy is the only one config validation
// accepts, so admission control here is a plain counter rather than a
// listener wrapper that would instead queue the accept.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("started", "proxy accept loop started")
	defer s.log.Info("stopped", "proxy accept loop stopped")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return balerr.Wrap(err, balerr.BindFailed, "proxy", "accept failed")
		}

		limit := int64(s.current().Runtime.MaxConcurrentConnections)
		if s.activeConns.Load() >= limit {
			_ = conn.Close()
			s.log.Warn("connection_rejected", "max_concurrent_connections reached")
			continue
		}

		s.activeConns.Add(1)
		go func() {
			defer s.activeConns.Add(-1)
			s.handleConn(ctx, conn)
		}()
	}
}

// handleConn dials a backend with failover and, once connected, relays
// bytes until both directions have stopped (each on close, error or idle
// timeout).
func (s *Server) handleConn(ctx context.Context, client net.Conn) {
	defer client.Close()

	tuning := s.current().Runtime
	backend, err := s.dialWithFailover(ctx, tuning)
	if err != nil {
		s.log.WithError(err).Warn("no_backend_available", "exhausted every eligible backend")
		return
	}
	defer backend.Close()

	s.relay(client, backend, tuning.ConnectionIdleTimeout())
}

// dialWithFailover walks the pool's eligible entries in load-balancer order,
// dialing each with a bounded timeout and sleeping a backoff-bounded delay
// between attempts, until one connects or every distinct eligible candidate
// has been tried once.
func (s *Server) dialWithFailover(ctx context.Context, tuning domain.RuntimeTuning) (net.Conn, error) {
	pool := s.store.Current()
	if len(pool.Entries()) == 0 {
		return nil, balerr.New(balerr.NoBackendAvailable, "proxy", "pool is empty")
	}

	sel := loadbalancer.New(s.current().Method)
	multiplier := s.protection.BackoffMultiplier()
	backoffMax := tuning.FailoverBackoffMax()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = tuning.FailoverBackoffInitial()
	bo.MaxInterval = tuning.FailoverBackoffMax()
	bo.RandomizationFactor = 0

	tried := make(map[string]struct{}, len(pool.Entries()))
	for attempts := 0; attempts < len(pool.Entries()); attempts++ {
		now := time.Now()
		entry, ok := sel.Pick(pool, now)
		if !ok {
			s.protection.RecordNoEligibleBackends(now)
			return nil, balerr.New(balerr.NoBackendAvailable, "proxy", "no eligible backend")
		}
		if _, seen := tried[entry.Endpoint.Key()]; seen {
			// the round-robin cursor has wrapped back onto a candidate
			// already attempted this connection; every distinct
			// eligible entry has had its turn.
			break
		}
		tried[entry.Endpoint.Key()] = struct{}{}

		conn, dialErr := s.dialOne(ctx, entry.Endpoint, tuning.BackendConnectTimeout())
		if dialErr == nil {
			entry.MarkSuccess(uint32(tuning.HealthCheckSuccessThreshold), now)
			return conn, nil
		}

		outcome := classifyDialErr(dialErr)
		cooldown := tuning.BackendCooldown() * s.protection.CooldownMultiplier()
		entry.MarkFailure(uint32(tuning.HealthCheckFailThreshold), now, outcome, cooldown)
		s.protection.RecordFailure(now, outcome)
		s.log.WithFields(map[string]interface{}{
			"endpoint": entry.Endpoint.String(),
			"outcome":  string(outcome),
		}).Warn("backend_connect_failed", "failing over to next candidate")

		if len(tried) >= len(pool.Entries()) {
			break
		}

		wait := bo.NextBackOff()
		wait *= multiplier
		if wait > backoffMax {
			wait = backoffMax
		}

		select {
		case <-ctx.Done():
			return nil, balerr.Wrap(ctx.Err(), balerr.ShutdownRequested, "proxy", "shutdown during failover")
		case <-time.After(wait):
		}
	}

	return nil, balerr.New(balerr.NoBackendAvailable, "proxy", "every eligible backend refused connection")
}

func (s *Server) dialOne(ctx context.Context, ep domain.Endpoint, timeout time.Duration) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var d net.Dialer
	return d.DialContext(dialCtx, "tcp", ep.String())
}

// classifyDialErr maps a net.Dial error into one of the three failure
// outcomes the Backend Entry tracks. Kept local to this package rather than
// shared with the health checker's identical helper — the two call sites
// never need to agree on anything but the classification rule itself.
func classifyDialErr(err error) domain.ProbeOutcome {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ProbeTimeout
	}
	if strings.Contains(err.Error(), "connection refused") {
		return domain.ProbeRefused
	}
	return domain.ProbeOther
}
