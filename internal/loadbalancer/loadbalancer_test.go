package loadbalancer

import (
	"testing"
	"time"

	"github.com/mir00r/bal/internal/backendpool"
	"github.com/mir00r/bal/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelector_RoundRobinFairness(t *testing.T) {
	store := backendpool.NewStore([]domain.Endpoint{
		{Host: "127.0.0.1", Port: 9000},
		{Host: "127.0.0.1", Port: 9100},
	})
	sel := New(domain.RoundRobin)
	now := time.Now()

	var sequence []int
	for i := 0; i < 6; i++ {
		e, ok := sel.Pick(store.Current(), now)
		require.True(t, ok)
		sequence = append(sequence, e.Endpoint.Port)
	}

	assert.Equal(t, []int{9000, 9100, 9000, 9100, 9000, 9100}, sequence)
}

func TestSelector_NoneWhenEligibleSetEmpty(t *testing.T) {
	store := backendpool.NewStore([]domain.Endpoint{{Host: "127.0.0.1", Port: 9000}})
	now := time.Now()
	store.Current().Entries()[0].MarkFailure(1, now, domain.ProbeRefused, time.Minute)

	sel := New(domain.RoundRobin)
	_, ok := sel.Pick(store.Current(), now)
	assert.False(t, ok)
}
