package backendpool

import (
	"testing"
	"time"

	"github.com/mir00r/bal/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eps(ports ...int) []domain.Endpoint {
	out := make([]domain.Endpoint, len(ports))
	for i, p := range ports {
		out[i] = domain.Endpoint{Host: "127.0.0.1", Port: p}
	}
	return out
}

func TestPickRoundRobin_CyclesEligibleSetInOrder(t *testing.T) {
	store := NewStore(eps(9000, 9100))
	pool := store.Current()
	now := time.Now()

	var got []int
	for i := 0; i < 6; i++ {
		e, ok := pool.PickRoundRobin(now)
		require.True(t, ok)
		got = append(got, e.Endpoint.Port)
	}
	assert.Equal(t, []int{9000, 9100, 9000, 9100, 9000, 9100}, got)
}

func TestPickRoundRobin_SkipsIneligibleBackend(t *testing.T) {
	store := NewStore(eps(9000, 9100, 9200))
	pool := store.Current()
	now := time.Now()

	pool.Entries()[1].MarkFailure(1, now, domain.ProbeTimeout, time.Minute)

	var got []int
	for i := 0; i < 4; i++ {
		e, ok := pool.PickRoundRobin(now)
		require.True(t, ok)
		got = append(got, e.Endpoint.Port)
	}
	assert.Equal(t, []int{9000, 9200, 9000, 9200}, got)
}

func TestPickRoundRobin_EmptyEligibleSetReturnsNotOK(t *testing.T) {
	store := NewStore(eps(9000))
	pool := store.Current()
	now := time.Now()

	pool.Entries()[0].MarkFailure(1, now, domain.ProbeRefused, time.Minute)

	_, ok := pool.PickRoundRobin(now)
	assert.False(t, ok)
}

func TestRebuild_PreservesStateForUnchangedEndpoints(t *testing.T) {
	store := NewStore(eps(9000, 9100))
	now := time.Now()
	old := store.Current()
	old.Entries()[0].MarkFailure(1, now, domain.ProbeTimeout, time.Minute)

	next := store.Rebuild(eps(9000, 9100, 9200))

	require.Len(t, next.Entries(), 3)
	assert.False(t, next.Entries()[0].Available(), "endpoint 9000 keeps its unhealthy state across swap")
	assert.True(t, next.Entries()[1].Available())
	assert.True(t, next.Entries()[2].Available(), "new endpoint starts fresh")
	assert.Equal(t, uint32(0), next.Entries()[2].ConsecutiveFailures())
}

func TestRebuild_DropsRemovedEndpoints(t *testing.T) {
	store := NewStore(eps(9000, 9100, 9200))
	next := store.Rebuild(eps(9100))

	require.Len(t, next.Entries(), 1)
	assert.Equal(t, 9100, next.Entries()[0].Endpoint.Port)
}

func TestRebuild_ResetsCursorOnNewGeneration(t *testing.T) {
	store := NewStore(eps(9000, 9100))
	now := time.Now()
	pool := store.Current()
	pool.PickRoundRobin(now)
	pool.PickRoundRobin(now)

	next := store.Rebuild(eps(9000, 9100))
	e, ok := next.PickRoundRobin(now)
	require.True(t, ok)
	assert.Equal(t, 9000, e.Endpoint.Port, "fresh pool starts its cursor at 0 again")
}
