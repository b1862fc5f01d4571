package cliapp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mir00r/bal/internal/config"
	"github.com/mir00r/bal/internal/domain"
	"github.com/mir00r/bal/internal/health"
	"github.com/mir00r/bal/internal/pidfile"
)

// BackendStatus is one pool entry's reachability as observed by this
// standalone status probe, not the daemon's own hysteresis state — a
// separate CLI invocation has no channel into the running process's
// in-memory Backend Entries.
type BackendStatus struct {
	Endpoint         string `json:"endpoint"`
	Available        bool   `json:"available"`
	LastProbeOutcome string `json:"last_probe_outcome"`
}

// StatusReport is the {running, pid, ...} contract from spec.md §6.
type StatusReport struct {
	Running           bool                  `json:"running"`
	PID               int                   `json:"pid,omitempty"`
	ListenEndpoint    string                `json:"listen_endpoint"`
	Method            string                `json:"method"`
	BackendTotal      int                   `json:"backend_total"`
	BackendReachable  int                   `json:"backend_reachable"`
	Backends          []BackendStatus       `json:"backends"`
	ActiveConnections int                   `json:"active_connections"`
	LastCheckTime     time.Time             `json:"last_check_time"`
	ProtectionMode    ProtectionModeSummary `json:"protection_mode"`
}

// RunStatus reports whether the daemon named by the PID file is alive and,
// regardless, probes the configured backends directly so the report is
// useful even when no daemon is running (e.g. right after `bal check`).
func RunStatus(path string) (*StatusReport, error) {
	report := &StatusReport{LastCheckTime: time.Now().UTC()}

	if pidPath, err := pidfile.Path(); err == nil {
		if pid, rerr := pidfile.Read(pidPath); rerr == nil && pidfile.IsRunning(pid) {
			report.Running = true
			report.PID = pid
		}
	}

	resolved, err := config.Resolve(path)
	if err != nil {
		return report, err
	}
	snap, err := config.Load(resolved)
	if err != nil {
		return report, err
	}

	report.ListenEndpoint = snap.ListenAddr()
	report.Method = string(snap.Method)
	report.BackendTotal = len(snap.Backends)

	for _, ep := range snap.Backends {
		outcome := domain.ProbeOK
		available := true
		ctx, cancel := context.WithTimeout(context.Background(), backendCheckTimeout)
		if err := health.CheckOnce(ctx, ep, backendCheckTimeout); err != nil {
			available = false
			outcome = domain.ProbeOther
		} else {
			report.BackendReachable++
		}
		cancel()
		report.Backends = append(report.Backends, BackendStatus{
			Endpoint:         ep.String(),
			Available:        available,
			LastProbeOutcome: string(outcome),
		})
	}

	return report, nil
}

// ToJSON renders the report as pretty JSON, matching the --json contract.
func (r *StatusReport) ToJSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ToPlainText renders the human-readable report. brief (the default) shows
// only the top-level counters; verbose lists every backend.
func (r *StatusReport) ToPlainText(verbose bool) string {
	running := "stopped"
	if r.Running {
		running = fmt.Sprintf("running (pid %d)", r.PID)
	}

	lines := []string{
		"bal status",
		fmt.Sprintf("  daemon: %s", running),
		fmt.Sprintf("  listen: %s", r.ListenEndpoint),
		fmt.Sprintf("  method: %s", r.Method),
		fmt.Sprintf("  backends: %d/%d reachable", r.BackendReachable, r.BackendTotal),
		fmt.Sprintf("  active_connections: %d", r.ActiveConnections),
	}

	if !verbose {
		return strings.Join(lines, "\n")
	}

	lines = append(lines, fmt.Sprintf("  last_check_time: %s", r.LastCheckTime.Format(time.RFC3339)))
	for _, b := range r.Backends {
		state := "down"
		if b.Available {
			state = "up"
		}
		lines = append(lines, fmt.Sprintf("  - %s: %s (%s)", b.Endpoint, state, b.LastProbeOutcome))
	}
	return strings.Join(lines, "\n")
}
