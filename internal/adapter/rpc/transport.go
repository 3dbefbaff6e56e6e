package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"substrate-gateway/internal/config"
	"substrate-gateway/internal/domain"
	"substrate-gateway/internal/domain/entity"
	domainService "substrate-gateway/internal/domain/service"
	"substrate-gateway/internal/pkg/apperrors"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Compile-time check
var _ domainService.Transport = (*WSTransport)(nil)

// Options tunes endpoint rotation and per-connection behavior.
type Options struct {
	// RetryDelay is the pause before trying the next endpoint.
	RetryDelay time.Duration
	// MaxRounds bounds how many times the whole endpoint list is walked.
	MaxRounds int
	// HandshakeTimeout bounds dialing plus the readiness probe of one endpoint.
	HandshakeTimeout time.Duration
	// RequestTimeout bounds every call made on an established connection.
	RequestTimeout time.Duration
	// PingInterval is the keep-alive period; zero uses the default.
	PingInterval time.Duration
}

// OptionsFromConfig maps the connection configuration to transport options.
func OptionsFromConfig(cfg config.ConnectionConfig) Options {
	return Options{
		RetryDelay:       cfg.RetryDelay,
		MaxRounds:        cfg.MaxRounds,
		HandshakeTimeout: cfg.HandshakeTimeout,
		RequestTimeout:   cfg.RequestTimeout,
	}
}

// WSTransport dials Substrate nodes over WebSocket with ordered failover.
type WSTransport struct {
	dialer *websocket.Dialer
	opts   Options
	logger *zap.Logger
}

// NewWSTransport creates a WebSocket transport.
func NewWSTransport(opts Options, logger *zap.Logger) *WSTransport {
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = 1
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	return &WSTransport{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		opts:   opts,
		logger: logger.Named("WSTransport"),
	}
}

// Dial tries the network's endpoints in priority order, rotating through the
// list up to MaxRounds times with RetryDelay between attempts. It gives up
// when ctx ends.
func (t *WSTransport) Dial(ctx context.Context, network entity.Network) (domainService.Connection, error) {
	if len(network.Endpoints) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoEndpoints, network.ID)
	}

	var lastErr error
	attempts := 0
	for round := 0; round < t.opts.MaxRounds; round++ {
		for _, endpoint := range network.Endpoints {
			if attempts > 0 && t.opts.RetryDelay > 0 {
				timer := time.NewTimer(t.opts.RetryDelay)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return nil, contextFailure(ctx, network.ID, lastErr)
				}
			}
			if ctx.Err() != nil {
				return nil, contextFailure(ctx, network.ID, lastErr)
			}
			attempts++

			conn, err := t.dialEndpoint(ctx, network, endpoint)
			if err == nil {
				t.logger.Info("Connected to endpoint",
					zap.String("network", network.ID.String()),
					zap.String("endpoint", endpoint.String()),
					zap.Int("attempt", attempts))
				return conn, nil
			}
			lastErr = err
			t.logger.Debug("Endpoint attempt failed",
				zap.String("network", network.ID.String()),
				zap.String("endpoint", endpoint.String()),
				zap.Int("round", round),
				zap.Error(err))
		}
	}

	return nil, fmt.Errorf("%w: %s after %d attempts: %v",
		apperrors.ErrConnectionRefused, network.ID, attempts, lastErr)
}

func contextFailure(ctx context.Context, id entity.NetworkID, lastErr error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		if lastErr == nil {
			return fmt.Errorf("%w: %s", apperrors.ErrConnectionTimeout, id)
		}
		return fmt.Errorf("%w: %s: last error: %v", apperrors.ErrConnectionTimeout, id, lastErr)
	}
	return ctx.Err()
}

// dialEndpoint opens the socket and waits until the node answers the
// readiness probe (the genesis block hash).
func (t *WSTransport) dialEndpoint(ctx context.Context, network entity.Network, endpoint entity.EndpointURL) (*Client, error) {
	if !endpoint.IsWebSocket() {
		return nil, fmt.Errorf("%w: endpoint %s is not a websocket url", apperrors.ErrInvalidInput, endpoint)
	}

	hctx, cancel := context.WithTimeout(ctx, t.opts.HandshakeTimeout)
	defer cancel()

	ws, _, err := t.dialer.DialContext(hctx, endpoint.String(), nil)
	if err != nil {
		if errors.Is(hctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: dial %s: %v", apperrors.ErrTimeout, endpoint, err)
		}
		return nil, fmt.Errorf("%w: dial %s: %v", apperrors.ErrExternalServiceFailure, endpoint, err)
	}

	client := newClient(ws, endpoint, t.opts, t.logger)

	var genesis string
	if err := client.Call(hctx, "chain_getBlockHash", []any{0}, &genesis); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("readiness probe on %s: %w", endpoint, err)
	}
	if network.GenesisHash != "" && !strings.EqualFold(genesis, network.GenesisHash) {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %s reports %s", domain.ErrGenesisMismatch, endpoint, genesis)
	}
	return client, nil
}
