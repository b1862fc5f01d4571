package backendpool

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mir00r/bal/internal/domain"
)

// Pool is an ordered, immutable sequence of Backend Entries plus the
// round-robin cursor for that generation. A Pool value never has entries
// added or removed after construction — "rebuilding the pool" means
// constructing a brand new Pool and swapping it into the Store, which is
// exactly why the cursor lives here: a fresh Pool means a fresh cursor,
// satisfying the "reset to 0 on config swap" rule for free.
type Pool struct {
	entries []*Entry
	cursor  atomic.Uint64
}

func newPool(entries []*Entry) *Pool {
	return &Pool{entries: entries}
}

// Entries returns the pool in insertion order (the order backends appeared
// in the config snapshot).
func (p *Pool) Entries() []*Entry {
	return p.entries
}

// Eligible returns the subset of entries that are available and past their
// cooldown, in pool order, as defined by §4.2's eligible_snapshot.
func (p *Pool) Eligible(now time.Time) []*Entry {
	out := make([]*Entry, 0, len(p.entries))
	for _, e := range p.entries {
		if e.Eligible(now) {
			out = append(out, e)
		}
	}
	return out
}

// PickRoundRobin returns the next eligible entry in round-robin order, or
// ok=false if the eligible set is empty. The cursor advances by a single
// atomic fetch-and-add so concurrent callers always land on distinct
// indices modulo the eligible-set size.
func (p *Pool) PickRoundRobin(now time.Time) (entry *Entry, ok bool) {
	eligible := p.Eligible(now)
	if len(eligible) == 0 {
		return nil, false
	}
	idx := p.cursor.Add(1) - 1
	return eligible[idx%uint64(len(eligible))], true
}

// Snapshot returns a point-in-time view of every entry, for status/doctor reporting.
func (p *Pool) Snapshot(now time.Time) []Snapshot {
	out := make([]Snapshot, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e.Snapshot(now))
	}
	return out
}

// Store owns the currently-live Pool behind an atomic pointer, so the proxy
// hot path reads it with a single lock-free load, and serializes rebuilds
// behind a mutex so two concurrent reloads can never interleave their
// "read old, build new, publish" sequence.
type Store struct {
	current   atomic.Pointer[Pool]
	rebuildMu sync.Mutex
}

// NewStore builds the initial pool from a fresh set of endpoints; every
// entry starts available with zeroed counters.
func NewStore(endpoints []domain.Endpoint) *Store {
	s := &Store{}
	entries := make([]*Entry, len(endpoints))
	for i, ep := range endpoints {
		entries[i] = newEntry(ep)
	}
	s.current.Store(newPool(entries))
	return s
}

// Current returns the live pool. Lock-free, wait-free.
func (s *Store) Current() *Pool {
	return s.current.Load()
}

// Rebuild replaces the live pool with one built from newEndpoints,
// migrating health state for endpoints present in both generations:
// unchanged endpoints keep their counters, availability and cooldown;
// removed endpoints are dropped; added endpoints start fresh. Rebuilds
// are serialized so the migration always reads a consistent prior
// generation, even if Rebuild is called concurrently (e.g. overlapping
// reload signals).
func (s *Store) Rebuild(newEndpoints []domain.Endpoint) *Pool {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	old := s.current.Load()
	byKey := make(map[string]*Entry, len(old.entries))
	for _, e := range old.entries {
		byKey[e.Endpoint.Key()] = e
	}

	entries := make([]*Entry, len(newEndpoints))
	for i, ep := range newEndpoints {
		if existing, ok := byKey[ep.Key()]; ok {
			entries[i] = existing
			continue
		}
		entries[i] = newEntry(ep)
	}

	next := newPool(entries)
	s.current.Store(next)
	return next
}
