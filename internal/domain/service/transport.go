package service

import (
	"context"
	"encoding/json"

	"substrate-gateway/internal/domain/entity"
)

// Connection is a live JSON-RPC connection to one endpoint of a network.
// Callers borrow it for a single request and must not keep it: the
// connection manager may replace it at any time.
type Connection interface {
	// Endpoint is the endpoint the connection is bound to.
	Endpoint() entity.EndpointURL

	// IsConnected reports the liveness flag of the connection.
	IsConnected() bool

	// Call issues a request and decodes its result into result (if non-nil).
	Call(ctx context.Context, method string, params []any, result any) error

	// Subscribe starts a subscription; handler receives every notification payload.
	Subscribe(ctx context.Context, method, unsubscribeMethod string, params []any, handler func(json.RawMessage)) (Subscription, error)

	// Close tears the connection down.
	Close() error
}

// Subscription is an active server-side subscription.
type Subscription interface {
	// Unsubscribe stops the subscription.
	Unsubscribe(ctx context.Context) error

	// Err is closed (after delivering the cause, if any) when the subscription ends.
	Err() <-chan error
}

// Transport establishes connections to a network's endpoints.
type Transport interface {
	// Dial walks the network's endpoints in priority order until one completes
	// the handshake or ctx ends.
	Dial(ctx context.Context, network entity.Network) (Connection, error)
}

// TransferIndexer fetches account transfer history from an external indexer.
type TransferIndexer interface {
	FetchTransfers(ctx context.Context, network entity.Network, address string) ([]entity.IndexedTransfer, error)
}
