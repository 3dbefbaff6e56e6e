package application

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"substrate-gateway/internal/domain/entity"
	domainService "substrate-gateway/internal/domain/service"
	"substrate-gateway/internal/pkg/apperrors"
)

type callHandler func(params []any) (any, error)

// fakeConn is a scripted node connection. Results go through a JSON round
// trip so decoding behaves like the real client.
type fakeConn struct {
	endpoint  entity.EndpointURL
	connected atomic.Bool
	closed    atomic.Bool

	mu       sync.Mutex
	handlers map[string]callHandler
	calls    map[string]int
	subs     []*fakeSub
}

func newFakeConn(endpoint string) *fakeConn {
	c := &fakeConn{
		endpoint: entity.EndpointURL(endpoint),
		handlers: make(map[string]callHandler),
		calls:    make(map[string]int),
	}
	c.connected.Store(true)
	return c
}

func (c *fakeConn) handle(method string, h callHandler) *fakeConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[method] = h
	return c
}

func (c *fakeConn) reply(method string, result any) *fakeConn {
	return c.handle(method, func([]any) (any, error) { return result, nil })
}

func (c *fakeConn) callCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

func (c *fakeConn) Endpoint() entity.EndpointURL { return c.endpoint }

func (c *fakeConn) IsConnected() bool { return c.connected.Load() }

func (c *fakeConn) Call(_ context.Context, method string, params []any, result any) error {
	if !c.IsConnected() {
		return fmt.Errorf("%w: %s", apperrors.ErrConnectionClosed, c.endpoint)
	}
	c.mu.Lock()
	c.calls[method]++
	h := c.handlers[method]
	c.mu.Unlock()
	if h == nil {
		return fmt.Errorf("%w: %s: method not found", apperrors.ErrExternalServiceFailure, method)
	}

	value, err := h(params)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("%w: %s: %v", apperrors.ErrMalformedResponse, method, err)
	}
	return nil
}

func (c *fakeConn) Subscribe(
	_ context.Context,
	method, _ string,
	params []any,
	handler func(json.RawMessage),
) (domainService.Subscription, error) {
	if !c.IsConnected() {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrConnectionClosed, c.endpoint)
	}
	sub := &fakeSub{method: method, params: params, handler: handler, errCh: make(chan error, 1)}
	c.mu.Lock()
	c.calls[method]++
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub, nil
}

func (c *fakeConn) subscriptions() []*fakeSub {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeSub(nil), c.subs...)
}

// drop simulates a lost connection.
func (c *fakeConn) drop() {
	c.connected.Store(false)
	for _, s := range c.subscriptions() {
		s.end(fmt.Errorf("%w: dropped", apperrors.ErrConnectionClosed))
	}
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	c.connected.Store(false)
	return nil
}

type fakeSub struct {
	method       string
	params       []any
	handler      func(json.RawMessage)
	errCh        chan error
	endOnce      sync.Once
	unsubscribed atomic.Bool
}

func (s *fakeSub) push(v any) {
	raw, _ := json.Marshal(v)
	s.handler(raw)
}

func (s *fakeSub) end(err error) {
	s.endOnce.Do(func() {
		if err != nil {
			s.errCh <- err
		}
		close(s.errCh)
	})
}

func (s *fakeSub) Unsubscribe(context.Context) error {
	s.unsubscribed.Store(true)
	s.end(nil)
	return nil
}

func (s *fakeSub) Err() <-chan error { return s.errCh }

// fakeTransport counts dials and delegates to dial.
type fakeTransport struct {
	dials atomic.Int32
	dial  func(ctx context.Context, network entity.Network) (domainService.Connection, error)
}

func (t *fakeTransport) Dial(ctx context.Context, network entity.Network) (domainService.Connection, error) {
	t.dials.Add(1)
	return t.dial(ctx, network)
}

// connSequence returns a transport handing out the given connections in order.
func connSequence(conns ...*fakeConn) *fakeTransport {
	var next atomic.Int32
	return &fakeTransport{dial: func(context.Context, entity.Network) (domainService.Connection, error) {
		i := int(next.Add(1)) - 1
		if i >= len(conns) {
			return nil, fmt.Errorf("%w: no more fake connections", apperrors.ErrConnectionRefused)
		}
		return conns[i], nil
	}}
}
