package balerr

import (
	"errors"
	"testing"

	"github.com/mir00r/bal/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_HasNoCauseAndFormatsWithoutCauseSuffix(t *testing.T) {
	err := New(ConfigInvalid, "config", "backend list must not be empty")
	assert.Equal(t, "[config_invalid] config: backend list must not be empty", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestWrap_NilErrorReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ConnectFailed, "proxy", "dial"))
}

func TestWrap_CarriesCauseInMessageAndUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, ConnectFailed, "proxy", "dial backend")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Same(t, cause, err.Unwrap())
}

func TestKindOf_ExtractsKindFromWrappedError(t *testing.T) {
	err := New(NoBackendAvailable, "proxy", "pool is empty")
	assert.Equal(t, NoBackendAvailable, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain error")))
}

func TestIs_MatchesOnKindOnly(t *testing.T) {
	err := New(Overloaded, "proxy", "max_concurrent_connections reached")
	assert.True(t, Is(err, Overloaded))
	assert.False(t, Is(err, BindFailed))
}

func TestRetryable_TrueOnlyForProbeAndConnectFailures(t *testing.T) {
	assert.True(t, New(ProbeFailed, "health", "x").Retryable())
	assert.True(t, New(ConnectFailed, "proxy", "x").Retryable())
	assert.False(t, New(ConfigInvalid, "config", "x").Retryable())
	assert.False(t, New(ShutdownRequested, "supervisor", "x").Retryable())
}

func TestWithOutcome_AttachesDomainProbeOutcome(t *testing.T) {
	err := New(ConnectFailed, "proxy", "dial failed").WithOutcome(domain.ProbeRefused)
	require.Equal(t, domain.ProbeRefused, err.Outcome)
}
