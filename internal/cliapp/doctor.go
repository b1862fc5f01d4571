package cliapp

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/mir00r/bal/internal/config"
	"github.com/mir00r/bal/internal/domain"
	"github.com/mir00r/bal/internal/health"
	"github.com/mir00r/bal/internal/pidfile"
)

// backendCheckTimeout bounds each standalone reachability probe run by
// doctor; it is not the daemon's own health_check_timeout_ms, since doctor
// runs as a one-shot process with no config-tuning context for a daemon
// that may not even be running yet.
const backendCheckTimeout = 500 * time.Millisecond

// CheckLevel is the severity of a single doctor finding.
type CheckLevel string

const (
	LevelOK       CheckLevel = "ok"
	LevelWarn     CheckLevel = "warn"
	LevelCritical CheckLevel = "critical"
)

func (l CheckLevel) label() string {
	switch l {
	case LevelCritical:
		return "CRITICAL"
	case LevelWarn:
		return "WARN"
	default:
		return "OK"
	}
}

// DoctorCheck is one named diagnostic finding.
type DoctorCheck struct {
	Name    string     `json:"name"`
	Level   CheckLevel `json:"level"`
	Summary string     `json:"summary"`
	Hint    string     `json:"hint,omitempty"`
}

// ProtectionModeSummary mirrors the protection_mode object in the
// status/doctor contracts. A standalone CLI invocation has no channel back
// into a separately-running daemon's in-memory Controller, so this is
// always reported disabled.
type ProtectionModeSummary struct {
	Enabled bool   `json:"enabled"`
	Reason  string `json:"reason,omitempty"`
}

// DoctorReport is the runtime-diagnostics result.
type DoctorReport struct {
	Checks         []DoctorCheck         `json:"checks"`
	ProtectionMode ProtectionModeSummary `json:"protection_mode"`
}

// HasCriticalFailure reports whether any check came back CRITICAL.
func (r *DoctorReport) HasCriticalFailure() bool {
	for _, c := range r.Checks {
		if c.Level == LevelCritical {
			return true
		}
	}
	return false
}

// ToPlainText renders the human-readable report, collapsing to an overall
// line plus an action triplet in non-verbose mode.
func (r *DoctorReport) ToPlainText(verbose bool) string {
	var critical, warn int
	for _, c := range r.Checks {
		switch c.Level {
		case LevelCritical:
			critical++
		case LevelWarn:
			warn++
		}
	}
	overall := "OK"
	switch {
	case critical > 0:
		overall = "FAILED"
	case warn > 0:
		overall = "WARN"
	}

	protection := "off"
	if r.ProtectionMode.Enabled {
		protection = "on"
	}
	if r.ProtectionMode.Reason != "" {
		protection = fmt.Sprintf("%s (%s)", protection, r.ProtectionMode.Reason)
	}

	lines := []string{
		"bal doctor",
		fmt.Sprintf("  overall: %s", overall),
		fmt.Sprintf("  critical: %d", critical),
		fmt.Sprintf("  warnings: %d", warn),
		fmt.Sprintf("  protection_mode: %s", protection),
	}

	if !verbose {
		switch {
		case critical > 0:
			lines = append(lines, renderOperatorMessage(
				"runtime diagnostics found critical failures",
				"daemon state, bind target, or backend connectivity is broken",
				"run 'bal doctor --verbose' and fix critical checks before 'bal status'",
			)...)
		case warn > 0:
			lines = append(lines, renderOperatorMessage(
				"runtime diagnostics found warnings",
				"partial connectivity or port ownership needs confirmation",
				"run 'bal status' now, then inspect details with 'bal doctor --verbose'",
			)...)
		default:
			lines = append(lines, "  next: run 'bal status'")
		}
		return strings.Join(lines, "\n")
	}

	for _, c := range r.Checks {
		lines = append(lines, fmt.Sprintf("  - [%s] %s: %s", c.Level.label(), c.Name, c.Summary))
		if c.Hint != "" {
			lines = append(lines, "    hint: "+c.Hint)
		}
	}
	return strings.Join(lines, "\n")
}

// RunDoctor runs every runtime diagnostic: PID-file consistency, whether
// the listen address is bindable, and per-backend reachability. The PID
// check always runs; if the config cannot be resolved, loaded or validated,
// the report ends with that critical config finding and the bind and
// backend checks are not run.
func RunDoctor(path string) *DoctorReport {
	report := &DoctorReport{}
	report.Checks = append(report.Checks, checkPIDConsistency())

	resolved, err := config.Resolve(path)
	if err != nil {
		report.Checks = append(report.Checks, DoctorCheck{
			Name:    "config",
			Level:   LevelCritical,
			Summary: fmt.Sprintf("cannot resolve config path: %v", err),
			Hint:    "provide a config path with --config <FILE>",
		})
		return report
	}

	snap, err := config.Load(resolved)
	if err != nil {
		report.Checks = append(report.Checks, DoctorCheck{
			Name:    "config",
			Level:   LevelCritical,
			Summary: fmt.Sprintf("failed to load config: %v", err),
			Hint:    "fix YAML syntax and required fields in the config file",
		})
		return report
	}
	if err := snap.Validate(); err != nil {
		report.Checks = append(report.Checks, DoctorCheck{
			Name:    "config",
			Level:   LevelCritical,
			Summary: fmt.Sprintf("config failed validation: %v", err),
			Hint:    "run 'bal check --verbose' for the full list of errors",
		})
		return report
	}
	report.Checks = append(report.Checks, DoctorCheck{
		Name:    "config",
		Level:   LevelOK,
		Summary: fmt.Sprintf("loaded %s", resolved),
	})

	report.Checks = append(report.Checks, checkBindability(snap.ListenAddr()))
	report.Checks = append(report.Checks, checkBackends(snap.Backends))

	return report
}

func checkPIDConsistency() DoctorCheck {
	path, err := pidfile.Path()
	if err != nil {
		return DoctorCheck{Name: "pid", Level: LevelOK, Summary: "pid file location unavailable, skipping"}
	}
	pid, err := pidfile.Read(path)
	if err != nil {
		return DoctorCheck{Name: "pid", Level: LevelOK, Summary: "pid file absent and no daemon state conflict"}
	}
	if pidfile.IsRunning(pid) {
		return DoctorCheck{Name: "pid", Level: LevelOK, Summary: fmt.Sprintf("pid file is consistent (pid %d)", pid)}
	}
	return DoctorCheck{
		Name:    "pid",
		Level:   LevelCritical,
		Summary: fmt.Sprintf("stale pid file detected (pid %d)", pid),
		Hint:    fmt.Sprintf("remove stale pid file: %s", path),
	}
}

func checkBindability(addr string) DoctorCheck {
	ln, err := net.Listen("tcp", addr)
	if err == nil {
		_ = ln.Close()
		return DoctorCheck{Name: "bind", Level: LevelOK, Summary: fmt.Sprintf("%s is bindable", addr)}
	}
	if strings.Contains(err.Error(), "address already in use") {
		if running, _ := pidfile.Path(); running != "" {
			if pid, rerr := pidfile.Read(running); rerr == nil && pidfile.IsRunning(pid) {
				return DoctorCheck{
					Name:    "bind",
					Level:   LevelWarn,
					Summary: fmt.Sprintf("%s is already in use by an active bal process", addr),
					Hint:    "run 'bal status' to confirm it is the expected daemon",
				}
			}
		}
		return DoctorCheck{
			Name:    "bind",
			Level:   LevelCritical,
			Summary: fmt.Sprintf("%s is already in use", addr),
			Hint:    "stop the conflicting process or change bind_address/port in config",
		}
	}
	return DoctorCheck{
		Name:    "bind",
		Level:   LevelCritical,
		Summary: fmt.Sprintf("cannot bind %s: %v", addr, err),
		Hint:    "check permissions and bind_address/port settings",
	}
}

func checkBackends(backends []domain.Endpoint) DoctorCheck {
	total := len(backends)
	if total == 0 {
		return DoctorCheck{
			Name:    "backend",
			Level:   LevelCritical,
			Summary: "no backends configured",
			Hint:    "configure at least one backend server",
		}
	}

	reachable := 0
	var unreachable []string
	for _, ep := range backends {
		ctx, cancel := context.WithTimeout(context.Background(), backendCheckTimeout)
		err := health.CheckOnce(ctx, ep, backendCheckTimeout)
		cancel()
		if err == nil {
			reachable++
		} else {
			unreachable = append(unreachable, ep.String())
		}
	}

	summary := fmt.Sprintf("reachable %d/%d", reachable, total)
	if reachable == 0 {
		return DoctorCheck{
			Name:    "backend",
			Level:   LevelCritical,
			Summary: summary,
			Hint:    "no backend is reachable; verify backend host/port and network path",
		}
	}
	if len(unreachable) == 0 {
		return DoctorCheck{Name: "backend", Level: LevelOK, Summary: summary}
	}
	return DoctorCheck{
		Name:    "backend",
		Level:   LevelWarn,
		Summary: summary,
		Hint:    fmt.Sprintf("unreachable: %s | check DNS/firewall/service health", strings.Join(unreachable, ", ")),
	}
}
