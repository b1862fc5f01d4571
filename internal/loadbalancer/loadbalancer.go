// Package loadbalancer selects a backend from the pool for a given
// balancing method. Today only round_robin exists, but the contract is
// written as a dispatch over domain.Method so a future method is a new
// case, not an interface change — the same shape the donor's strategy
// dispatch used for its (larger) set of algorithms.
package loadbalancer

import (
	"time"

	"github.com/mir00r/bal/internal/backendpool"
	"github.com/mir00r/bal/internal/domain"
)

// Selector picks a backend entry from a pool under a configured method.
type Selector struct {
	method domain.Method
}

// New creates a Selector for the given method. Config validation rejects
// any method other than round_robin before a Selector is ever constructed.
func New(method domain.Method) *Selector {
	return &Selector{method: method}
}

// Pick returns the next backend per the selector's method, or ok=false if
// the pool's eligible set is empty.
func (s *Selector) Pick(pool *backendpool.Pool, now time.Time) (*backendpool.Entry, bool) {
	switch s.method {
	case domain.RoundRobin:
		return pool.PickRoundRobin(now)
	default:
		return pool.PickRoundRobin(now)
	}
}
