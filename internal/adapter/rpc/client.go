package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"substrate-gateway/internal/domain/entity"
	domainService "substrate-gateway/internal/domain/service"
	"substrate-gateway/internal/pkg/apperrors"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Compile-time check
var _ domainService.Connection = (*Client)(nil)

const (
	writeTimeout            = 10 * time.Second
	notificationBufferSize  = 64
	defaultPingInterval     = 20 * time.Second
	pongWaitPerPingInterval = 3
)

var errClosedByClient = errors.New("closed by client")

// Client is a JSON-RPC 2.0 connection to a single node over WebSocket. Calls
// are multiplexed by id; notifications are routed to their subscription.
// The first read or write failure marks the client disconnected for good.
type Client struct {
	endpoint       entity.EndpointURL
	conn           *websocket.Conn
	logger         *zap.Logger
	requestTimeout time.Duration

	writeMu   sync.Mutex
	nextID    atomic.Uint64
	connected atomic.Bool

	mu       sync.Mutex
	pending  map[uint64]*pendingCall
	subs     map[string]*subscription
	closeErr error

	done      chan struct{}
	closeOnce sync.Once
}

type pendingCall struct {
	ch  chan *jsonRPCMessage
	sub *subscription
}

func newClient(conn *websocket.Conn, endpoint entity.EndpointURL, opts Options, logger *zap.Logger) *Client {
	c := &Client{
		endpoint:       endpoint,
		conn:           conn,
		logger:         logger.Named("RPCClient").With(zap.String("endpoint", endpoint.String())),
		requestTimeout: opts.RequestTimeout,
		pending:        make(map[uint64]*pendingCall),
		subs:           make(map[string]*subscription),
		done:           make(chan struct{}),
	}
	c.connected.Store(true)

	pingInterval := opts.PingInterval
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	pongWait := pingInterval * pongWaitPerPingInterval
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readLoop(pongWait)
	go c.keepAlive(pingInterval)
	return c
}

// Endpoint is the endpoint the client is bound to.
func (c *Client) Endpoint() entity.EndpointURL {
	return c.endpoint
}

// IsConnected reports whether the underlying socket is still usable.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Call issues method with params and decodes the result into result (if non-nil).
func (c *Client) Call(ctx context.Context, method string, params []any, result any) error {
	msg, err := c.roundTrip(ctx, method, params, nil)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(msg.Result, result); err != nil {
		return fmt.Errorf("%w: %s result from %s: %v", apperrors.ErrMalformedResponse, method, c.endpoint, err)
	}
	return nil
}

// Subscribe starts a subscription; handler runs on a dedicated goroutine per subscription.
func (c *Client) Subscribe(
	ctx context.Context,
	method, unsubscribeMethod string,
	params []any,
	handler func(json.RawMessage),
) (domainService.Subscription, error) {
	sub := &subscription{
		client:            c,
		unsubscribeMethod: unsubscribeMethod,
		handler:           handler,
		notifications:     make(chan json.RawMessage, notificationBufferSize),
		errCh:             make(chan error, 1),
		quit:              make(chan struct{}),
		logger:            c.logger.With(zap.String("method", method)),
	}
	go sub.run()

	if _, err := c.roundTrip(ctx, method, params, sub); err != nil {
		c.removeSubscription(sub)
		sub.end(nil)
		return nil, err
	}
	return sub, nil
}

// Close tears the connection down. Pending calls fail with ErrConnectionClosed.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()
	c.shutdown(errClosedByClient)
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method string, params []any, sub *subscription) (*jsonRPCMessage, error) {
	if !c.IsConnected() {
		return nil, c.closedError()
	}
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	id := c.nextID.Add(1)
	payload, err := encodeRequest(id, method, params)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding %s request: %v", apperrors.ErrInvalidInput, method, err)
	}

	call := &pendingCall{ch: make(chan *jsonRPCMessage, 1), sub: sub}
	c.mu.Lock()
	if c.closeErr != nil {
		c.mu.Unlock()
		return nil, c.closedError()
	}
	c.pending[id] = call
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(payload); err != nil {
		c.shutdown(err)
		return nil, fmt.Errorf("%w: writing %s to %s: %v", apperrors.ErrConnectionClosed, method, c.endpoint, err)
	}

	select {
	case msg := <-call.ch:
		if msg.Error != nil {
			return nil, fmt.Errorf("%w: %s on %s: %v", apperrors.ErrExternalServiceFailure, method, c.endpoint, msg.Error)
		}
		return msg, nil
	case <-c.done:
		return nil, c.closedError()
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s on %s: %v", apperrors.ErrTimeout, method, c.endpoint, ctx.Err())
		}
		return nil, ctx.Err()
	}
}

func (c *Client) write(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Client) readLoop(pongWait time.Duration) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}
		// Any traffic proves the peer is alive.
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.dispatch(data)
	}
}

func (c *Client) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.shutdown(err)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) dispatch(data []byte) {
	var msg jsonRPCMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Debug("Dropping undecodable frame", zap.ByteString("body", data), zap.Error(err))
		return
	}

	if msg.ID != nil {
		c.mu.Lock()
		call := c.pending[*msg.ID]
		if call != nil {
			delete(c.pending, *msg.ID)
			// Register before the next frame is read so no notification is missed.
			if call.sub != nil && msg.Error == nil {
				if key := subscriptionKey(msg.Result); key != "" {
					call.sub.key = key
					call.sub.rawID = append(json.RawMessage(nil), msg.Result...)
					c.subs[key] = call.sub
				}
			}
		}
		c.mu.Unlock()
		if call == nil {
			c.logger.Debug("Dropping response without pending call", zap.Uint64("id", *msg.ID))
			return
		}
		call.ch <- &msg
		return
	}

	if msg.Method != "" && msg.Params != nil {
		key := subscriptionKey(msg.Params.Subscription)
		c.mu.Lock()
		sub := c.subs[key]
		c.mu.Unlock()
		if sub == nil {
			c.logger.Debug("Dropping notification for unknown subscription",
				zap.String("method", msg.Method), zap.String("subscription", key))
			return
		}
		sub.deliver(msg.Params.Result)
		return
	}

	c.logger.Debug("Dropping unrecognized frame", zap.ByteString("body", data))
}

func (c *Client) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		if cause == nil {
			cause = errClosedByClient
		}

		c.mu.Lock()
		c.closeErr = cause
		subs := c.subs
		c.subs = make(map[string]*subscription)
		c.mu.Unlock()

		close(c.done)
		_ = c.conn.Close()

		subErr := fmt.Errorf("%w: %v", apperrors.ErrConnectionClosed, cause)
		for _, s := range subs {
			s.end(subErr)
		}

		if errors.Is(cause, errClosedByClient) {
			c.logger.Debug("Connection closed")
		} else {
			c.logger.Warn("Connection lost", zap.Error(cause))
		}
	})
}

func (c *Client) closedError() error {
	c.mu.Lock()
	cause := c.closeErr
	c.mu.Unlock()
	if cause == nil {
		return fmt.Errorf("%w: %s", apperrors.ErrConnectionClosed, c.endpoint)
	}
	return fmt.Errorf("%w: %s: %v", apperrors.ErrConnectionClosed, c.endpoint, cause)
}

func (c *Client) removeSubscription(s *subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.key != "" && c.subs[s.key] == s {
		delete(c.subs, s.key)
	}
}

// subscription delivers notifications to its handler in arrival order.
type subscription struct {
	client            *Client
	unsubscribeMethod string
	handler           func(json.RawMessage)
	notifications     chan json.RawMessage
	errCh             chan error
	quit              chan struct{}
	endOnce           sync.Once
	logger            *zap.Logger

	// key and rawID are guarded by client.mu.
	key   string
	rawID json.RawMessage
}

func (s *subscription) run() {
	for {
		select {
		case raw := <-s.notifications:
			s.handler(raw)
		case <-s.quit:
			return
		}
	}
}

func (s *subscription) deliver(raw json.RawMessage) {
	select {
	case s.notifications <- raw:
	default:
		s.logger.Warn("Dropping notification, handler is falling behind")
	}
}

func (s *subscription) end(err error) {
	s.endOnce.Do(func() {
		if err != nil {
			s.errCh <- err
		}
		close(s.errCh)
		close(s.quit)
	})
}

// Unsubscribe stops delivery and cancels the subscription on the node.
func (s *subscription) Unsubscribe(ctx context.Context) error {
	c := s.client
	c.mu.Lock()
	rawID := s.rawID
	c.mu.Unlock()
	c.removeSubscription(s)
	s.end(nil)

	if rawID == nil || !c.IsConnected() {
		return nil
	}
	var ok bool
	if err := c.Call(ctx, s.unsubscribeMethod, []any{rawID}, &ok); err != nil {
		return err
	}
	if !ok {
		s.logger.Debug("Node reported unknown subscription on unsubscribe")
	}
	return nil
}

// Err delivers the cause when the subscription ends because the connection dropped.
func (s *subscription) Err() <-chan error {
	return s.errCh
}
