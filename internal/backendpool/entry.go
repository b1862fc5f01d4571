package backendpool

import (
	"sync/atomic"
	"time"

	"github.com/mir00r/bal/internal/domain"
)

// outcome codes stored in Entry.lastProbeOutcome, avoiding atomic.Value for
// a field that only ever holds one of four small constants.
const (
	outcomeOK      int32 = iota
	outcomeTimeout
	outcomeRefused
	outcomeOther
)

func outcomeToCode(o domain.ProbeOutcome) int32 {
	switch o {
	case domain.ProbeTimeout:
		return outcomeTimeout
	case domain.ProbeRefused:
		return outcomeRefused
	case domain.ProbeOther:
		return outcomeOther
	default:
		return outcomeOK
	}
}

func codeToOutcome(c int32) domain.ProbeOutcome {
	switch c {
	case outcomeTimeout:
		return domain.ProbeTimeout
	case outcomeRefused:
		return domain.ProbeRefused
	case outcomeOther:
		return domain.ProbeOther
	default:
		return domain.ProbeOK
	}
}

// Entry is a Backend Entry: an immutable endpoint plus mutable health
// counters. All mutable fields are accessed through sync/atomic so that
// concurrent probes and connection attempts against distinct entries never
// contend on a shared lock — only entries that share an endpoint (there are
// none, by Pool's uniqueness invariant) would ever race.
type Entry struct {
	Endpoint domain.Endpoint

	available            atomic.Bool
	consecutiveSuccesses atomic.Uint32
	consecutiveFailures  atomic.Uint32
	cooldownUntilNano    atomic.Int64
	lastProbeOutcome     atomic.Int32
	lastProbeAtNano      atomic.Int64
}

// newEntry creates a fresh entry, available from the moment it joins the pool.
func newEntry(ep domain.Endpoint) *Entry {
	e := &Entry{Endpoint: ep}
	e.available.Store(true)
	return e
}

// Eligible reports whether the entry may be selected at time now: available
// and past its cooldown deadline.
func (e *Entry) Eligible(now time.Time) bool {
	if !e.available.Load() {
		return false
	}
	cooldown := e.cooldownUntilNano.Load()
	return cooldown == 0 || now.UnixNano() >= cooldown
}

// Available reports the raw availability flag, ignoring cooldown.
func (e *Entry) Available() bool { return e.available.Load() }

// ConsecutiveSuccesses returns the current success streak.
func (e *Entry) ConsecutiveSuccesses() uint32 { return e.consecutiveSuccesses.Load() }

// ConsecutiveFailures returns the current failure streak.
func (e *Entry) ConsecutiveFailures() uint32 { return e.consecutiveFailures.Load() }

// CooldownUntil returns the cooldown deadline, or the zero Time if none is set.
func (e *Entry) CooldownUntil() time.Time {
	n := e.cooldownUntilNano.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// LastProbeOutcome returns the most recently recorded probe/connect outcome.
func (e *Entry) LastProbeOutcome() domain.ProbeOutcome {
	return codeToOutcome(e.lastProbeOutcome.Load())
}

// LastProbeAt returns the timestamp of the most recent probe/connect attempt.
func (e *Entry) LastProbeAt() time.Time {
	n := e.lastProbeAtNano.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// MarkSuccess records a successful probe/connect outcome: increments the
// success streak, resets the failure streak, and — once the streak reaches
// successThreshold — flips the entry available and clears its cooldown.
// Logging on the actual availability transition (not on every success) is
// the caller's responsibility, driven by the returned transitioned flag.
func (e *Entry) MarkSuccess(successThreshold uint32, now time.Time) (transitioned bool) {
	e.consecutiveFailures.Store(0)
	successes := e.consecutiveSuccesses.Add(1)
	e.lastProbeOutcome.Store(outcomeOK)
	e.lastProbeAtNano.Store(now.UnixNano())

	if successes >= successThreshold && !e.available.Load() {
		e.available.Store(true)
		e.cooldownUntilNano.Store(0)
		return true
	}
	return false
}

// MarkFailure records a failed probe/connect outcome: increments the
// failure streak, resets the success streak, and — once the streak reaches
// failThreshold — flips the entry unavailable and sets cooldownUntil to
// now+cooldown. cooldown should already be doubled by the caller when
// protection mode is active (spec's cooldown_ms = base × (2 if protection
// else 1)).
func (e *Entry) MarkFailure(failThreshold uint32, now time.Time, outcome domain.ProbeOutcome, cooldown time.Duration) (transitioned bool) {
	e.consecutiveSuccesses.Store(0)
	failures := e.consecutiveFailures.Add(1)
	e.lastProbeOutcome.Store(outcomeToCode(outcome))
	e.lastProbeAtNano.Store(now.UnixNano())

	if failures >= failThreshold && e.available.Load() {
		e.available.Store(false)
		e.cooldownUntilNano.Store(now.Add(cooldown).UnixNano())
		return true
	}
	return false
}

// Snapshot is a point-in-time, race-free copy of an entry's observable
// state, suitable for status/doctor reporting.
type Snapshot struct {
	Endpoint             domain.Endpoint
	Available            bool
	Eligible             bool
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
	CooldownUntil        time.Time
	LastProbeOutcome     domain.ProbeOutcome
	LastProbeAt          time.Time
}

// Snapshot takes a consistent-enough read of the entry for reporting
// purposes. Individual fields may be read a few nanoseconds apart from one
// another under concurrent mutation; that's acceptable for status output
// and never observed on the byte-forwarding hot path, which only ever
// calls Eligible/MarkSuccess/MarkFailure.
func (e *Entry) Snapshot(now time.Time) Snapshot {
	return Snapshot{
		Endpoint:             e.Endpoint,
		Available:            e.Available(),
		Eligible:             e.Eligible(now),
		ConsecutiveSuccesses: e.ConsecutiveSuccesses(),
		ConsecutiveFailures:  e.ConsecutiveFailures(),
		CooldownUntil:        e.CooldownUntil(),
		LastProbeOutcome:     e.LastProbeOutcome(),
		LastProbeAt:          e.LastProbeAt(),
	}
}
