// Package protection implements the Protection Controller: a process-wide
// feedback loop that amplifies failover backoff and backend cooldown when
// failure density spikes, and relaxes once the backend pool has
// demonstrably recovered. It never refuses traffic by itself — it only
// reshapes retry timing for the proxy and cooldown for the backend pool.
package protection

import (
	"sync"
	"time"

	"github.com/mir00r/bal/internal/domain"
)

// Reason is the stable, externally-visible code for why protection is on.
type Reason string

const (
	ReasonWindowFailureSpike Reason = "window_failure_spike"
	ReasonNoEligibleBackends Reason = "no_eligible_backends"
)

// Snapshot is a race-free read of the controller's current state, suitable
// for the status/doctor contracts.
type Snapshot struct {
	Enabled   bool
	Reason    Reason
	UpdatedAt time.Time
}

// Controller holds the failure-density window and the single protection_on
// flag. The window is fixed, not sliding: it opens at the first counted
// failure and its count restarts from zero with the first failure that
// arrives more than `window` after that start. It mirrors the donor's CircuitBreaker
// mutex-guarded state machine but driven by the spec's two independent ON
// triggers and one hysteresis-gated OFF transition rather than a
// closed/open/half-open cycle.
type Controller struct {
	mu sync.Mutex

	triggerThreshold int
	window           time.Duration
	stableThreshold  int

	enabled   bool
	reason    Reason
	updatedAt time.Time

	windowStart        time.Time
	windowCount        int
	stableSuccessCount int
}

// New creates a Controller using the runtime tuning's protection parameters.
func New(tuning domain.RuntimeTuning) *Controller {
	return &Controller{
		triggerThreshold: tuning.ProtectionTriggerThreshold,
		window:           tuning.ProtectionWindow(),
		stableThreshold:  tuning.ProtectionStableSuccessThr,
	}
}

// RecordFailure registers a probe/connect failure outcome at time now. Only
// timeout and refused outcomes count toward the failure-density window —
// other outcomes still break any in-progress recovery streak, since they
// are evidence the backend has not yet stabilized.
func (c *Controller) RecordFailure(now time.Time, outcome domain.ProbeOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stableSuccessCount = 0

	if outcome != domain.ProbeTimeout && outcome != domain.ProbeRefused {
		return
	}

	if c.windowStart.IsZero() || now.Sub(c.windowStart) > c.window {
		c.windowStart = now
		c.windowCount = 0
	}
	c.windowCount++

	if !c.enabled && c.windowCount >= c.triggerThreshold {
		c.enableLocked(now, ReasonWindowFailureSpike)
	}
}

// RecordNoEligibleBackends registers that the pool's eligible set has just
// become empty — the second, immediate ON trigger.
func (c *Controller) RecordNoEligibleBackends(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		c.enableLocked(now, ReasonNoEligibleBackends)
	}
}

// RecordSuccess registers a probe/connect success at time now. eligibleNonEmpty
// must reflect whether the pool currently has at least one eligible
// backend; protection only clears once both the stable-success streak and
// eligibility hold simultaneously, per the hysteresis rule in §4.6.
func (c *Controller) RecordSuccess(now time.Time, eligibleNonEmpty bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return
	}

	c.stableSuccessCount++
	if c.stableSuccessCount >= c.stableThreshold && eligibleNonEmpty {
		c.disableLocked(now)
	}
}

func (c *Controller) enableLocked(now time.Time, reason Reason) {
	c.enabled = true
	c.reason = reason
	c.updatedAt = now
	c.stableSuccessCount = 0
}

func (c *Controller) disableLocked(now time.Time) {
	c.enabled = false
	c.reason = ""
	c.updatedAt = now
	c.windowCount = 0
	c.stableSuccessCount = 0
}

// Enabled reports whether protection is currently active.
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Snapshot returns a race-free read of the controller's full state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{Enabled: c.enabled, Reason: c.reason, UpdatedAt: c.updatedAt}
}

// BackoffMultiplier returns 2 while protection is on, 1 otherwise — applied
// to the failover backoff bounds in §4.5.
func (c *Controller) BackoffMultiplier() time.Duration {
	if c.Enabled() {
		return 2
	}
	return 1
}

// CooldownMultiplier returns 2 while protection is on, 1 otherwise —
// applied to the backend cooldown in §4.2's mark_failure.
func (c *Controller) CooldownMultiplier() time.Duration {
	return c.BackoffMultiplier()
}
