package proxy

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/mir00r/bal/internal/backendpool"
	"github.com/mir00r/bal/internal/domain"
	"github.com/mir00r/bal/internal/protection"
	"github.com/mir00r/bal/pkg/logger"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(logger.Config{Level: "debug"})
	require.NoError(t, err)
	return l
}

// echoListener accepts one connection and echoes every byte back until the
// client closes its write side.
func echoListener(t *testing.T) (net.Listener, domain.Endpoint) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = io.Copy(conn, conn)
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return ln, domain.Endpoint{Host: "127.0.0.1", Port: addr.Port}
}

func closedPortEndpoint(t *testing.T) domain.Endpoint {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())
	return domain.Endpoint{Host: "127.0.0.1", Port: addr.Port}
}

func tuningFor(backends int) domain.RuntimeTuning {
	t := domain.DefaultRuntimeTuning(backends)
	t.BackendConnectTimeoutMS = 200
	t.FailoverBackoffInitialMS = 1
	t.FailoverBackoffMaxMS = 5
	t.ConnectionIdleTimeoutMS = 2000
	return t
}

func TestServer_RelaysBytesToHealthyBackend(t *testing.T) {
	backendLn, ep := echoListener(t)
	defer backendLn.Close()

	store := backendpool.NewStore([]domain.Endpoint{ep})
	snap := &domain.Snapshot{Method: domain.RoundRobin, Runtime: tuningFor(1)}
	srv := New(store, func() *domain.Snapshot { return snap }, protection.New(snap.Runtime), testLogger(t))

	proxyLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer proxyLn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx, proxyLn)

	client, err := net.Dial("tcp", proxyLn.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = io.ReadFull(client, buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf))
}

func TestServer_RejectsConnectionsBeyondConcurrencyLimit(t *testing.T) {
	backendLn, ep := echoListener(t)
	defer backendLn.Close()

	store := backendpool.NewStore([]domain.Endpoint{ep})
	tuning := tuningFor(1)
	tuning.MaxConcurrentConnections = 0
	snap := &domain.Snapshot{Method: domain.RoundRobin, Runtime: tuning}
	srv := New(store, func() *domain.Snapshot { return snap }, protection.New(snap.Runtime), testLogger(t))

	proxyLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer proxyLn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx, proxyLn)

	client, err := net.Dial("tcp", proxyLn.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1)
	_, err = client.Read(buf)
	require.Error(t, err, "rejected connections must be closed by the proxy, not left open")
}

func TestDialWithFailover_SkipsDownBackendAndConnectsToNext(t *testing.T) {
	down := closedPortEndpoint(t)
	backendLn, up := echoListener(t)
	defer backendLn.Close()

	store := backendpool.NewStore([]domain.Endpoint{down, up})
	tuning := tuningFor(2)
	tuning.HealthCheckFailThreshold = 1
	snap := &domain.Snapshot{Method: domain.RoundRobin, Runtime: tuning}
	srv := New(store, func() *domain.Snapshot { return snap }, protection.New(tuning), testLogger(t))

	conn, err := srv.dialWithFailover(context.Background(), tuning)
	require.NoError(t, err)
	defer conn.Close()

	entries := store.Current().Entries()
	require.False(t, entries[0].Available(), "the down backend must be marked unavailable on its first dial failure")
}

func TestDialWithFailover_ReturnsErrorWhenEveryBackendIsDown(t *testing.T) {
	down1 := closedPortEndpoint(t)
	down2 := closedPortEndpoint(t)

	store := backendpool.NewStore([]domain.Endpoint{down1, down2})
	tuning := tuningFor(2)
	tuning.HealthCheckFailThreshold = 100 // never flips available, so both stay eligible for this test
	snap := &domain.Snapshot{Method: domain.RoundRobin, Runtime: tuning}
	srv := New(store, func() *domain.Snapshot { return snap }, protection.New(tuning), testLogger(t))

	_, err := srv.dialWithFailover(context.Background(), tuning)
	require.Error(t, err)
}
