// Package health implements the Health Checker: a periodic task that
// probes every backend in parallel with a bounded-timeout TCP connect and
// updates the pool's hysteresis counters and the Protection Controller.
package health

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/mir00r/bal/internal/backendpool"
	"github.com/mir00r/bal/internal/domain"
	"github.com/mir00r/bal/internal/protection"
	"github.com/mir00r/bal/pkg/logger"
)

// SnapshotProvider returns the currently live config snapshot, so the
// checker always probes with the interval/timeout/thresholds in effect at
// the start of each round, even across reloads.
type SnapshotProvider func() *domain.Snapshot

// Checker runs the periodic probe loop against a Store.
type Checker struct {
	store      *backendpool.Store
	current    SnapshotProvider
	protection *protection.Controller
	log        *logger.Logger
	dialer     net.Dialer
}

// New creates a Checker bound to a pool store, a live-snapshot provider and
// the shared Protection Controller.
func New(store *backendpool.Store, current SnapshotProvider, protection *protection.Controller, log *logger.Logger) *Checker {
	return &Checker{
		store:      store,
		current:    current,
		protection: protection,
		log:        log.ForComponent("health"),
	}
}

// Run probes the pool on every tick until ctx is cancelled. Rounds never
// overlap: if a round's probes take longer than the configured interval,
// the next round starts immediately after, without queueing.
func (c *Checker) Run(ctx context.Context) error {
	c.log.Info("started", "health check loop started")
	defer c.log.Info("stopped", "health check loop stopped")

	for {
		tuning := c.current().Runtime
		start := time.Now()
		c.runRound(ctx, tuning)

		wait := tuning.HealthCheckInterval() - time.Since(start)
		if wait < 0 {
			wait = 0
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

type probeResult struct {
	outcome domain.ProbeOutcome
	success bool
}

// runRound fans a TCP-connect probe out to every backend currently in the
// pool, waits for all of them, then folds the results into the Protection
// Controller once the pool's post-round eligibility is known.
func (c *Checker) runRound(ctx context.Context, tuning domain.RuntimeTuning) {
	pool := c.store.Current()
	entries := pool.Entries()
	if len(entries) == 0 {
		return
	}

	results := make([]probeResult, len(entries))
	var wg sync.WaitGroup
	wg.Add(len(entries))

	for i, entry := range entries {
		go func(i int, entry *backendpool.Entry) {
			defer wg.Done()
			results[i] = c.probeOne(ctx, entry, tuning)
		}(i, entry)
	}
	wg.Wait()

	now := time.Now()
	eligibleNonEmpty := len(pool.Eligible(now)) > 0
	if !eligibleNonEmpty {
		c.protection.RecordNoEligibleBackends(now)
	}
	for _, r := range results {
		if r.success {
			c.protection.RecordSuccess(now, eligibleNonEmpty)
		} else {
			c.protection.RecordFailure(now, r.outcome)
		}
	}
}

func (c *Checker) probeOne(ctx context.Context, entry *backendpool.Entry, tuning domain.RuntimeTuning) probeResult {
	probeCtx, cancel := context.WithTimeout(ctx, tuning.HealthCheckTimeout())
	defer cancel()

	now := time.Now()
	conn, err := c.dialer.DialContext(probeCtx, "tcp", entry.Endpoint.String())
	if err != nil {
		outcome := classifyDialErr(err)
		cooldown := tuning.BackendCooldown() * c.protection.CooldownMultiplier()
		transitioned := entry.MarkFailure(uint32(tuning.HealthCheckFailThreshold), now, outcome, cooldown)
		if transitioned {
			c.log.WithFields(map[string]interface{}{
				"endpoint": entry.Endpoint.String(),
				"outcome":  string(outcome),
			}).Warn("backend_unavailable", "backend marked unavailable")
		}
		return probeResult{outcome: outcome, success: false}
	}

	// Connection established: no payload exchanged, close immediately.
	_ = conn.Close()
	transitioned := entry.MarkSuccess(uint32(tuning.HealthCheckSuccessThreshold), now)
	if transitioned {
		c.log.WithField("endpoint", entry.Endpoint.String()).Info("backend_available", "backend marked available")
	}
	return probeResult{outcome: domain.ProbeOK, success: true}
}

// classifyDialErr maps a net.Dial error into one of the three failure
// outcomes the Backend Entry tracks.
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

// CheckOnce performs a single bounded-timeout TCP connect against host:port,
// used by the doctor/status CLI reports to test connectivity outside the
// running daemon's own probe loop.
func CheckOnce(ctx context.Context, endpoint domain.Endpoint, timeout time.Duration) error {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(probeCtx, "tcp", endpoint.String())
	if err != nil {
		return err
	}
	return conn.Close()
}
