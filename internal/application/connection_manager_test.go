package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"substrate-gateway/internal/domain"
	"substrate-gateway/internal/domain/entity"
	domainService "substrate-gateway/internal/domain/service"
	"substrate-gateway/internal/metrics"
	"substrate-gateway/internal/pkg/apperrors"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T, transport domainService.Transport, timeout time.Duration) (*ConnectionManager, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewNop()
	mgr := NewConnectionManager(context.Background(), registry(t), transport, timeout, m, zap.NewNop())
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr, m
}

func TestConnectionManager_ReusesLiveConnection(t *testing.T) {
	conn := newFakeConn("wss://a")
	transport := connSequence(conn)
	mgr, m := newTestManager(t, transport, time.Second)
	ctx := context.Background()

	first, err := mgr.GetConnection(ctx, entity.NetworkPolkadot)
	require.NoError(t, err)
	second, err := mgr.GetConnection(ctx, entity.NetworkPolkadot)
	require.NoError(t, err)

	assert.Same(t, conn, first)
	assert.Same(t, first, second)
	assert.EqualValues(t, 1, transport.dials.Load())
	assert.Equal(t, entity.ConnectionStatus{
		Network:   entity.NetworkPolkadot,
		Connected: true,
		Endpoint:  "wss://a",
	}, mgr.Status(entity.NetworkPolkadot))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LiveConnections.WithLabelValues("polkadot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectionAttempts.WithLabelValues("polkadot", metrics.OutcomeSuccess)))
}

func TestConnectionManager_CoalescesConcurrentCallers(t *testing.T) {
	release := make(chan struct{})
	conn := newFakeConn("wss://a")
	transport := &fakeTransport{dial: func(ctx context.Context, _ entity.Network) (domainService.Connection, error) {
		<-release
		return conn, nil
	}}
	mgr, _ := newTestManager(t, transport, 5*time.Second)

	const callers = 32
	results := make([]domainService.Connection, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = mgr.GetConnection(context.Background(), entity.NetworkPolkadot)
		}(i)
	}

	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, transport.dials.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, conn, results[i])
	}
}

func TestConnectionManager_SharesFailureWithAllCallers(t *testing.T) {
	release := make(chan struct{})
	transport := &fakeTransport{dial: func(ctx context.Context, _ entity.Network) (domainService.Connection, error) {
		<-release
		return nil, apperrors.ErrConnectionRefused
	}}
	mgr, m := newTestManager(t, transport, 5*time.Second)

	const callers = 16
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = mgr.GetConnection(context.Background(), entity.NetworkAcala)
		}(i)
	}

	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, transport.dials.Load())
	for _, err := range errs {
		assert.ErrorIs(t, err, apperrors.ErrConnectionRefused)
	}
	assert.False(t, mgr.Status(entity.NetworkAcala).Connected)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectionAttempts.WithLabelValues("acala", metrics.OutcomeRefused)))

	// The slot is empty again, so the next call starts a fresh attempt.
	_, err := mgr.GetConnection(context.Background(), entity.NetworkAcala)
	assert.ErrorIs(t, err, apperrors.ErrConnectionRefused)
	assert.EqualValues(t, 2, transport.dials.Load())
}

func TestConnectionManager_ReconnectsStaleConnection(t *testing.T) {
	first := newFakeConn("wss://a")
	second := newFakeConn("wss://b")
	transport := connSequence(first, second)
	mgr, m := newTestManager(t, transport, time.Second)
	ctx := context.Background()

	got, err := mgr.GetConnection(ctx, entity.NetworkPolkadot)
	require.NoError(t, err)
	require.Same(t, first, got)

	first.drop()
	assert.False(t, mgr.Status(entity.NetworkPolkadot).Connected)

	got, err = mgr.GetConnection(ctx, entity.NetworkPolkadot)
	require.NoError(t, err)
	assert.Same(t, second, got)
	assert.NotSame(t, first, got)
	assert.True(t, first.closed.Load())
	assert.EqualValues(t, 2, transport.dials.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StaleReconnects.WithLabelValues("polkadot")))
}

func TestConnectionManager_AttemptDiscardsSlotThatWentStale(t *testing.T) {
	first := newFakeConn("wss://a")
	second := newFakeConn("wss://b")
	transport := connSequence(second)
	mgr, m := newTestManager(t, transport, time.Second)

	// An earlier attempt stored first, which dropped before this attempt ran.
	mgr.mu.Lock()
	mgr.slots[entity.NetworkPolkadot] = first
	mgr.mu.Unlock()
	first.drop()

	network, err := mgr.networks.GetNetwork(entity.NetworkPolkadot)
	require.NoError(t, err)
	got, err := mgr.connect(network)
	require.NoError(t, err)

	assert.Same(t, second, got)
	assert.True(t, first.closed.Load())
	assert.EqualValues(t, 1, transport.dials.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StaleReconnects.WithLabelValues("polkadot")))
	assert.Equal(t, entity.EndpointURL("wss://b"), mgr.Status(entity.NetworkPolkadot).Endpoint)
}

func TestConnectionManager_EnforcesOverallTimeout(t *testing.T) {
	// The transport honours its context.
	honest := &fakeTransport{dial: func(ctx context.Context, _ entity.Network) (domainService.Connection, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	// The transport ignores its context and would retry forever.
	stuck := make(chan struct{})
	t.Cleanup(func() { close(stuck) })
	stubborn := &fakeTransport{dial: func(context.Context, entity.Network) (domainService.Connection, error) {
		<-stuck
		return newFakeConn("wss://late"), nil
	}}

	for name, transport := range map[string]*fakeTransport{"honest": honest, "stubborn": stubborn} {
		t.Run(name, func(t *testing.T) {
			const bound = 150 * time.Millisecond
			mgr, m := newTestManager(t, transport, bound)

			start := time.Now()
			_, err := mgr.GetConnection(context.Background(), entity.NetworkPolkadot)
			elapsed := time.Since(start)

			assert.ErrorIs(t, err, apperrors.ErrConnectionTimeout)
			assert.ErrorIs(t, err, apperrors.ErrTimeout)
			assert.GreaterOrEqual(t, elapsed, bound)
			assert.Less(t, elapsed, bound+time.Second)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectionAttempts.WithLabelValues("polkadot", metrics.OutcomeTimeout)))
		})
	}
}

func TestConnectionManager_CallerCancellationDoesNotAbortAttempt(t *testing.T) {
	release := make(chan struct{})
	conn := newFakeConn("wss://a")
	transport := &fakeTransport{dial: func(ctx context.Context, _ entity.Network) (domainService.Connection, error) {
		select {
		case <-release:
			return conn, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}
	mgr, _ := newTestManager(t, transport, 5*time.Second)

	patient := make(chan error, 1)
	go func() {
		_, err := mgr.GetConnection(context.Background(), entity.NetworkPolkadot)
		patient <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := mgr.GetConnection(ctx, entity.NetworkPolkadot)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	select {
	case err := <-patient:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("patient caller never got the connection")
	}
	assert.EqualValues(t, 1, transport.dials.Load())
	assert.True(t, mgr.Status(entity.NetworkPolkadot).Connected)
}

func TestConnectionManager_UnsupportedNetworks(t *testing.T) {
	transport := connSequence()
	mgr, _ := newTestManager(t, transport, time.Second)

	_, err := mgr.GetConnection(context.Background(), entity.NetworkEthereum)
	assert.ErrorIs(t, err, domain.ErrNoEndpoints)

	_, err = mgr.GetConnection(context.Background(), entity.NetworkID("kusama"))
	assert.ErrorIs(t, err, domain.ErrNetworkNotFound)

	assert.Zero(t, transport.dials.Load())
}

func TestConnectionManager_Close(t *testing.T) {
	conn := newFakeConn("wss://a")
	transport := connSequence(conn, newFakeConn("wss://b"))
	mgr, m := newTestManager(t, transport, time.Second)

	_, err := mgr.GetConnection(context.Background(), entity.NetworkPolkadot)
	require.NoError(t, err)

	require.NoError(t, mgr.Close())
	assert.True(t, conn.closed.Load())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LiveConnections.WithLabelValues("polkadot")))

	_, err = mgr.GetConnection(context.Background(), entity.NetworkPolkadot)
	assert.True(t, errors.Is(err, apperrors.ErrConnectionClosed))
	assert.EqualValues(t, 1, transport.dials.Load())
}
