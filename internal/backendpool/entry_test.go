package backendpool

import (
	"testing"
	"time"

	"github.com/mir00r/bal/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkFailure_TransitionsExactlyOnThreshold(t *testing.T) {
	e := newEntry(domain.Endpoint{Host: "127.0.0.1", Port: 9000})
	now := time.Now()

	require.True(t, e.Available())

	transitioned := e.MarkFailure(3, now, domain.ProbeTimeout, time.Second)
	assert.False(t, transitioned)
	assert.True(t, e.Available())

	transitioned = e.MarkFailure(3, now, domain.ProbeTimeout, time.Second)
	assert.False(t, transitioned)
	assert.True(t, e.Available())

	transitioned = e.MarkFailure(3, now, domain.ProbeTimeout, time.Second)
	assert.True(t, transitioned)
	assert.False(t, e.Available())
	assert.Equal(t, uint32(3), e.ConsecutiveFailures())
}

func TestMarkSuccess_TransitionsExactlyOnThreshold(t *testing.T) {
	e := newEntry(domain.Endpoint{Host: "127.0.0.1", Port: 9000})
	now := time.Now()
	e.MarkFailure(1, now, domain.ProbeRefused, time.Second)
	require.False(t, e.Available())

	transitioned := e.MarkSuccess(2, now)
	assert.False(t, transitioned)
	assert.False(t, e.Available())

	transitioned = e.MarkSuccess(2, now)
	assert.True(t, transitioned)
	assert.True(t, e.Available())
}

func TestMarkFailure_ResetsOppositeCounter(t *testing.T) {
	e := newEntry(domain.Endpoint{Host: "127.0.0.1", Port: 9000})
	now := time.Now()

	e.MarkSuccess(5, now)
	e.MarkSuccess(5, now)
	assert.Equal(t, uint32(2), e.ConsecutiveSuccesses())

	e.MarkFailure(5, now, domain.ProbeTimeout, time.Second)
	assert.Equal(t, uint32(0), e.ConsecutiveSuccesses())
	assert.Equal(t, uint32(1), e.ConsecutiveFailures())
}

func TestEligible_RequiresAvailableAndPastCooldown(t *testing.T) {
	e := newEntry(domain.Endpoint{Host: "127.0.0.1", Port: 9000})
	now := time.Now()

	e.MarkFailure(1, now, domain.ProbeTimeout, 50*time.Millisecond)
	assert.False(t, e.Eligible(now))
	assert.False(t, e.Eligible(now.Add(10*time.Millisecond)))

	e.MarkSuccess(1, now.Add(60*time.Millisecond))
	assert.True(t, e.Eligible(now.Add(60*time.Millisecond)))
}

func TestMarkFailure_DoubledCooldownUnderProtection(t *testing.T) {
	e := newEntry(domain.Endpoint{Host: "127.0.0.1", Port: 9000})
	now := time.Now()
	base := 1 * time.Second

	e.MarkFailure(1, now, domain.ProbeRefused, base*2)
	deadline := e.CooldownUntil()
	assert.WithinDuration(t, now.Add(2*time.Second), deadline, 10*time.Millisecond)
}
