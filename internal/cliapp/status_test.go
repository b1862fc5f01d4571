package cliapp

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStatus_NotRunningWhenNoPidFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	path := writeConfig(t, `
port: 9200
backends:
  - host: 127.0.0.1
    port: `+portOf(t, ln)+`
`)

	report, err := RunStatus(path)
	require.NoError(t, err)
	assert.False(t, report.Running)
	assert.Equal(t, 1, report.BackendTotal)
	assert.Equal(t, 1, report.BackendReachable)
}

func TestRunStatus_ReturnsErrorWhenConfigCannotBeResolved(t *testing.T) {
	report, err := RunStatus(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	assert.NotNil(t, report)
	assert.False(t, report.Running)
}

func TestStatusReport_PlainTextBriefHidesBackendList(t *testing.T) {
	report := &StatusReport{
		ListenEndpoint:   "127.0.0.1:9200",
		Method:           "round_robin",
		BackendTotal:     2,
		BackendReachable: 1,
		Backends: []BackendStatus{
			{Endpoint: "127.0.0.1:9001", Available: true, LastProbeOutcome: "ok"},
			{Endpoint: "127.0.0.1:9002", Available: false, LastProbeOutcome: "refused"},
		},
	}
	rendered := report.ToPlainText(false)
	assert.Contains(t, rendered, "backends: 1/2 reachable")
	assert.NotContains(t, rendered, "127.0.0.1:9001")
}

func TestStatusReport_PlainTextVerboseListsEveryBackend(t *testing.T) {
	report := &StatusReport{
		Backends: []BackendStatus{
			{Endpoint: "127.0.0.1:9001", Available: true, LastProbeOutcome: "ok"},
			{Endpoint: "127.0.0.1:9002", Available: false, LastProbeOutcome: "refused"},
		},
	}
	rendered := report.ToPlainText(true)
	assert.Contains(t, rendered, "127.0.0.1:9001: up (ok)")
	assert.Contains(t, rendered, "127.0.0.1:9002: down (refused)")
}

func TestStatusReport_ToJSONRoundTripsRunningState(t *testing.T) {
	report := &StatusReport{Running: true, PID: 4242}
	out, err := report.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, out, `"running": true`)
	assert.Contains(t, out, `"pid": 4242`)
}
