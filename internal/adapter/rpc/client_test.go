package rpc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"substrate-gateway/internal/domain/entity"
	"substrate-gateway/internal/pkg/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testOptions() Options {
	return Options{
		RetryDelay:       10 * time.Millisecond,
		MaxRounds:        2,
		HandshakeTimeout: 2 * time.Second,
		RequestTimeout:   2 * time.Second,
	}
}

func dialNode(t *testing.T, node *fakeNode) *Client {
	t.Helper()
	tr := NewWSTransport(testOptions(), zap.NewNop())
	network := entity.Network{ID: entity.NetworkPolkadot, Endpoints: []entity.EndpointURL{node.wsURL()}}
	conn, err := tr.Dial(context.Background(), network)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn.(*Client)
}

func TestClientCall(t *testing.T) {
	node := newFakeNode(t)
	node.handle("state_getRuntimeVersion", func(*nodeConn, nodeRequest) (any, *JSONRPCError) {
		return map[string]any{"specName": "polkadot", "specVersion": 1002003}, nil
	})
	c := dialNode(t, node)

	var rv struct {
		SpecName    string `json:"specName"`
		SpecVersion uint32 `json:"specVersion"`
	}
	require.NoError(t, c.Call(context.Background(), "state_getRuntimeVersion", nil, &rv))
	assert.Equal(t, "polkadot", rv.SpecName)
	assert.Equal(t, uint32(1002003), rv.SpecVersion)
	assert.True(t, c.IsConnected())
	assert.Equal(t, node.wsURL(), c.Endpoint())
}

func TestClientCallErrors(t *testing.T) {
	node := newFakeNode(t)
	node.handle("state_getRuntimeVersion", func(*nodeConn, nodeRequest) (any, *JSONRPCError) {
		return "not an object", nil
	})
	c := dialNode(t, node)
	ctx := context.Background()

	err := c.Call(ctx, "author_rotateKeys", nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrExternalServiceFailure)

	var rv struct{ SpecName string }
	err = c.Call(ctx, "state_getRuntimeVersion", nil, &rv)
	assert.ErrorIs(t, err, apperrors.ErrMalformedResponse)
}

func TestClientSubscription(t *testing.T) {
	node := newFakeNode(t)
	node.handle("chain_subscribeNewHeads", func(conn *nodeConn, _ nodeRequest) (any, *JSONRPCError) {
		// Notifications follow the subscription response closely.
		go func() {
			time.Sleep(10 * time.Millisecond)
			conn.notify("chain_newHead", "sub-1", map[string]any{"number": "0x10"})
			conn.notify("chain_newHead", "sub-1", map[string]any{"number": "0x11"})
		}()
		return "sub-1", nil
	})
	node.handle("chain_unsubscribeNewHeads", func(*nodeConn, nodeRequest) (any, *JSONRPCError) {
		return true, nil
	})
	c := dialNode(t, node)

	got := make(chan string, 2)
	sub, err := c.Subscribe(context.Background(), "chain_subscribeNewHeads", "chain_unsubscribeNewHeads", nil,
		func(raw json.RawMessage) {
			var h struct{ Number string }
			_ = json.Unmarshal(raw, &h)
			got <- h.Number
		})
	require.NoError(t, err)

	assert.Equal(t, "0x10", <-got)
	assert.Equal(t, "0x11", <-got)

	require.NoError(t, sub.Unsubscribe(context.Background()))
	assert.Equal(t, 1, node.callCount("chain_unsubscribeNewHeads"))
	_, open := <-sub.Err()
	assert.False(t, open)
}

func TestClientConnectionLoss(t *testing.T) {
	node := newFakeNode(t)
	block := make(chan struct{})
	node.handle("state_getStorage", func(*nodeConn, nodeRequest) (any, *JSONRPCError) {
		<-block
		return nil, nil
	})
	node.handle("chain_subscribeNewHeads", func(*nodeConn, nodeRequest) (any, *JSONRPCError) {
		return "sub-1", nil
	})
	c := dialNode(t, node)

	sub, err := c.Subscribe(context.Background(), "chain_subscribeNewHeads", "chain_unsubscribeNewHeads", nil,
		func(json.RawMessage) {})
	require.NoError(t, err)

	callErr := make(chan error, 1)
	go func() {
		callErr <- c.Call(context.Background(), "state_getStorage", []any{"0x00"}, nil)
	}()

	time.Sleep(20 * time.Millisecond)
	node.dropConnections()
	close(block)

	select {
	case err := <-callErr:
		assert.ErrorIs(t, err, apperrors.ErrConnectionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending call was not failed after connection loss")
	}

	select {
	case err := <-sub.Err():
		assert.ErrorIs(t, err, apperrors.ErrConnectionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription was not ended after connection loss")
	}

	assert.False(t, c.IsConnected())
	err = c.Call(context.Background(), "chain_getBlockHash", []any{0}, nil)
	assert.ErrorIs(t, err, apperrors.ErrConnectionClosed)
}

func TestClientCloseIsIdempotent(t *testing.T) {
	node := newFakeNode(t)
	c := dialNode(t, node)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
}
