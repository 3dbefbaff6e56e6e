package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"substrate-gateway/internal/application/port"
	"substrate-gateway/internal/domain"
	"substrate-gateway/internal/domain/entity"
	domainRepo "substrate-gateway/internal/domain/repository"
	domainService "substrate-gateway/internal/domain/service"
	"substrate-gateway/internal/metrics"
	"substrate-gateway/internal/pkg/apperrors"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Compile-time check
var _ port.ConnectionProvider = (*ConnectionManager)(nil)

// DefaultAttemptTimeout bounds a whole connection attempt when none is configured.
const DefaultAttemptTimeout = 30 * time.Second

var errManagerClosed = errors.New("connection manager closed")

// ConnectionManager owns one connection slot per network. A slot is empty,
// being connected (exactly one attempt in flight) or live. GetConnection is
// the only writer of the slots besides Close.
type ConnectionManager struct {
	rootCtx   context.Context
	networks  domainRepo.NetworkRepository
	transport domainService.Transport
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    *zap.Logger

	attempts singleflight.Group

	mu     sync.Mutex
	slots  map[entity.NetworkID]domainService.Connection
	closed bool
}

// NewConnectionManager creates a manager. Attempts run under rootCtx and
// end when it is cancelled.
func NewConnectionManager(
	rootCtx context.Context,
	networks domainRepo.NetworkRepository,
	transport domainService.Transport,
	timeout time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ConnectionManager {
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	return &ConnectionManager{
		rootCtx:   rootCtx,
		networks:  networks,
		transport: transport,
		timeout:   timeout,
		metrics:   m,
		logger:    logger.Named("ConnectionManager"),
		slots:     make(map[entity.NetworkID]domainService.Connection),
	}
}

// GetConnection returns the live connection of id. If the stored connection
// went stale it is discarded and a new attempt starts. Concurrent callers
// join the attempt in flight. The attempt does not depend on ctx: a caller
// whose ctx ends gets ctx.Err() while the attempt carries on for the others.
func (m *ConnectionManager) GetConnection(ctx context.Context, id entity.NetworkID) (domainService.Connection, error) {
	network, err := m.networks.GetNetwork(id)
	if err != nil {
		return nil, err
	}
	if len(network.Endpoints) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoEndpoints, id)
	}

	if conn := m.liveConnection(id); conn != nil {
		return conn, nil
	}

	ch := m.attempts.DoChan(id.String(), func() (any, error) {
		return m.connect(network)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(domainService.Connection), nil
	case <-ctx.Done():
		m.logger.Debug("Caller stopped waiting for connection attempt",
			zap.String("network", id.String()), zap.Error(ctx.Err()))
		return nil, ctx.Err()
	}
}

// liveConnection returns the stored connection if it is still connected. A
// stale one is removed from the slot and closed best-effort.
func (m *ConnectionManager) liveConnection(id entity.NetworkID) domainService.Connection {
	m.mu.Lock()
	conn, ok := m.slots[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if conn.IsConnected() {
		m.mu.Unlock()
		return conn
	}
	delete(m.slots, id)
	m.mu.Unlock()

	m.logger.Warn("Discarding stale connection",
		zap.String("network", id.String()), zap.String("endpoint", conn.Endpoint().String()))
	m.metrics.StaleReconnects.WithLabelValues(id.String()).Inc()
	m.metrics.LiveConnections.WithLabelValues(id.String()).Set(0)
	_ = conn.Close()
	return nil
}

// connect is the body of the single attempt of a network.
func (m *ConnectionManager) connect(network entity.Network) (domainService.Connection, error) {
	id := network.ID

	// The slot may have been filled, or gone stale, between the caller's check
	// and this attempt starting.
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrConnectionClosed, errManagerClosed)
	}
	if conn := m.liveConnection(id); conn != nil {
		return conn, nil
	}

	m.logger.Info("Connecting", zap.String("network", id.String()), zap.Int("endpoints", len(network.Endpoints)))
	start := time.Now()

	conn, err := m.dialBounded(network)
	if err != nil {
		m.metrics.ConnectionAttempts.WithLabelValues(id.String(), attemptOutcome(err)).Inc()
		m.logger.Warn("Connection attempt failed",
			zap.String("network", id.String()), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %v", apperrors.ErrConnectionClosed, errManagerClosed)
	}
	m.slots[id] = conn
	m.mu.Unlock()

	m.metrics.ConnectionAttempts.WithLabelValues(id.String(), metrics.OutcomeSuccess).Inc()
	m.metrics.LiveConnections.WithLabelValues(id.String()).Set(1)
	m.logger.Info("Connection established",
		zap.String("network", id.String()),
		zap.String("endpoint", conn.Endpoint().String()),
		zap.Duration("elapsed", time.Since(start)))
	return conn, nil
}

type dialResult struct {
	conn domainService.Connection
	err  error
}

// dialBounded enforces the overall timeout even against a transport that
// ignores its context. A connection that arrives after the deadline is closed.
func (m *ConnectionManager) dialBounded(network entity.Network) (domainService.Connection, error) {
	ctx, cancel := context.WithTimeout(m.rootCtx, m.timeout)
	defer cancel()

	done := make(chan dialResult, 1)
	go func() {
		conn, err := m.transport.Dial(ctx, network)
		done <- dialResult{conn: conn, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && ctx.Err() != nil {
			return nil, attemptContextError(ctx, network.ID, res.err)
		}
		return res.conn, res.err
	case <-ctx.Done():
		go func() {
			if res := <-done; res.conn != nil {
				_ = res.conn.Close()
			}
		}()
		return nil, attemptContextError(ctx, network.ID, nil)
	}
}

func attemptContextError(ctx context.Context, id entity.NetworkID, dialErr error) error {
	if dialErr != nil && errors.Is(dialErr, apperrors.ErrConnectionTimeout) {
		return dialErr
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", apperrors.ErrConnectionTimeout, id)
	}
	return fmt.Errorf("%w: %s: %v", apperrors.ErrConnectionClosed, id, ctx.Err())
}

func attemptOutcome(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrTimeout):
		return metrics.OutcomeTimeout
	case errors.Is(err, apperrors.ErrConnectionRefused):
		return metrics.OutcomeRefused
	default:
		return metrics.OutcomeError
	}
}

// Status reports the slot of id without starting an attempt.
func (m *ConnectionManager) Status(id entity.NetworkID) entity.ConnectionStatus {
	status := entity.ConnectionStatus{Network: id}
	m.mu.Lock()
	conn, ok := m.slots[id]
	m.mu.Unlock()
	if ok && conn.IsConnected() {
		status.Connected = true
		status.Endpoint = conn.Endpoint()
	}
	return status
}

// Close tears down every stored connection. Later calls to GetConnection fail.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	m.closed = true
	slots := m.slots
	m.slots = make(map[entity.NetworkID]domainService.Connection)
	m.mu.Unlock()

	var errs []error
	for id, conn := range slots {
		m.metrics.LiveConnections.WithLabelValues(id.String()).Set(0)
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", id, err))
		}
	}
	m.logger.Info("Connection manager closed", zap.Int("connections", len(slots)))
	return errors.Join(errs...)
}
