// Package supervisor owns the daemon's whole-process lifecycle: starting
// the proxy accept loop and the health-check loop as a group, installing
// signal handlers, reloading configuration on SIGHUP without downtime, and
// draining active connections on SIGTERM/SIGINT within a bounded grace
// period. Grounded on the original_source supervisor module's signal-select
// main loop, rebuilt around errgroup instead of a broadcast channel.
package supervisor

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/mir00r/bal/internal/backendpool"
	"github.com/mir00r/bal/internal/balerr"
	"github.com/mir00r/bal/internal/config"
	"github.com/mir00r/bal/internal/domain"
	"github.com/mir00r/bal/internal/health"
	"github.com/mir00r/bal/internal/protection"
	"github.com/mir00r/bal/internal/proxy"
	"github.com/mir00r/bal/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// gracefulShutdownTimeout bounds how long Run waits for active connections
// to drain after a stop signal before it returns anyway.
const gracefulShutdownTimeout = 30 * time.Second

// Supervisor wires the backend pool, proxy server, health checker and
// protection controller together and drives their shared lifecycle.
type Supervisor struct {
	log *logger.Logger

	snapshot atomic.Pointer[domain.Snapshot]
	store    *backendpool.Store
	prot     *protection.Controller
	proxySrv *proxy.Server
	checker  *health.Checker
}

// New builds a Supervisor from an already-validated initial snapshot.
func New(initial *domain.Snapshot, log *logger.Logger) *Supervisor {
	s := &Supervisor{log: log.ForComponent("supervisor")}
	s.snapshot.Store(initial)
	s.store = backendpool.NewStore(initial.Backends)
	s.prot = protection.New(initial.Runtime)
	current := s.Current
	s.proxySrv = proxy.New(s.store, current, s.prot, log)
	s.checker = health.New(s.store, current, s.prot, log)
	return s
}

// Current returns the live config snapshot via a lock-free atomic load.
// Safe for concurrent use by every component that reads tuning/method on
// each operation, including the proxy's per-connection hot path and the
// health loop's per-tick read.
func (s *Supervisor) Current() *domain.Snapshot {
	return s.snapshot.Load()
}

// Run starts the proxy listener and health-check loop, installs signal
// handlers, and blocks until ctx is cancelled or a SIGTERM/SIGINT arrives.
// SIGHUP triggers an in-place config reload without tearing anything down.
func (s *Supervisor) Run(ctx context.Context) error {
	snap := s.Current()
	ln, err := net.Listen("tcp", snap.ListenAddr())
	if err != nil {
		return balerr.Wrap(err, balerr.BindFailed, "supervisor", fmt.Sprintf("listen on %s", snap.ListenAddr()))
	}
	s.log.WithField("addr", snap.ListenAddr()).Info("listening", "proxy listener bound")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error { return s.proxySrv.Serve(groupCtx, ln) })
	group.Go(func() error { return s.checker.Run(groupCtx) })

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-runCtx.Done():
			return s.shutdown(group, cancel)
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				s.log.Info("reload_requested", "SIGHUP received, reloading configuration")
				if err := s.Reload(s.Current().ConfigPath); err != nil {
					s.log.WithError(err).Error("reload_failed", "configuration reload failed")
				}
			default:
				s.log.WithField("signal", sig.String()).Info("shutdown_requested", "stop signal received, starting graceful shutdown")
				return s.shutdown(group, cancel)
			}
		}
	}
}

// Reload re-reads the config at path, validates it, and if valid, swaps the
// backend pool (preserving per-endpoint health state) and republishes the
// snapshot with an incremented generation. An invalid or unreadable file
// leaves the running config untouched.
func (s *Supervisor) Reload(path string) error {
	next, err := config.Load(path)
	if err != nil {
		return balerr.Wrap(err, balerr.ConfigInvalid, "supervisor", "reload: load failed")
	}
	if err := next.Validate(); err != nil {
		return balerr.Wrap(err, balerr.ConfigInvalid, "supervisor", "reload: validation failed")
	}

	next.Generation = s.Current().Generation + 1
	s.store.Rebuild(next.Backends)
	s.snapshot.Store(next)

	s.log.WithFields(map[string]interface{}{
		"generation": next.Generation,
		"backends":   len(next.Backends),
	}).Info("reloaded", "configuration reloaded")
	return nil
}

// shutdown stops accepting new work, then waits up to
// gracefulShutdownTimeout total for the proxy and health loops to exit and
// every in-flight connection to drain, forcing a return regardless once
// the deadline passes.
func (s *Supervisor) shutdown(group *errgroup.Group, cancel context.CancelFunc) error {
	cancel()
	deadline := time.Now().Add(gracefulShutdownTimeout)

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			s.log.WithError(err).Warn("shutdown_error", "a service task returned an error during shutdown")
		}
	case <-time.After(time.Until(deadline)):
		s.log.Warn("shutdown_timeout", "graceful shutdown timed out waiting for service tasks, forcing exit")
		return nil
	}

	if active := s.proxySrv.ActiveConnections(); active > 0 {
		s.log.WithField("active_connections", active).Info("draining", "waiting for active connections to close")
	}
	for s.proxySrv.ActiveConnections() > 0 && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}
	if active := s.proxySrv.ActiveConnections(); active > 0 {
		s.log.WithField("active_connections", active).Warn("drain_timeout", "forcing shutdown with connections still active")
	}

	s.log.Info("shutdown_complete", "supervisor shutdown complete")
	return nil
}
