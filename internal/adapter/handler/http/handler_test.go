package http

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"substrate-gateway/internal/domain"
	"substrate-gateway/internal/domain/entity"
	domainService "substrate-gateway/internal/domain/service"
	"substrate-gateway/internal/pkg/apperrors"

	"github.com/fasthttp/router"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const alice = "15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5"

type fakeSubscription struct {
	errCh        chan error
	unsubscribed bool
}

func (s *fakeSubscription) Unsubscribe(context.Context) error {
	s.unsubscribed = true
	return nil
}

func (s *fakeSubscription) Err() <-chan error { return s.errCh }

// fakeChain answers every query with the configured result or request error.
type fakeChain struct {
	err       error
	balance   entity.Result[entity.AccountBalance]
	staking   entity.Result[entity.StakingInfo]
	transfers entity.Result[[]entity.Transfer]
	status    entity.NetworkStatus
	networks  []entity.Network
	sub       *fakeSubscription
	calls     int
}

func (f *fakeChain) FetchAccountData(context.Context, entity.NetworkID, string) (entity.Result[entity.AccountBalance], error) {
	f.calls++
	return f.balance, f.err
}

func (f *fakeChain) SubscribeAccountData(
	context.Context, entity.NetworkID, string, func(entity.Result[entity.AccountBalance]),
) (domainService.Subscription, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.sub, nil
}

func (f *fakeChain) FetchStakingData(context.Context, entity.NetworkID, string) (entity.Result[entity.StakingInfo], error) {
	f.calls++
	return f.staking, f.err
}

func (f *fakeChain) FetchValidators(context.Context, entity.NetworkID) (entity.Result[[]entity.Validator], error) {
	f.calls++
	return entity.Live([]entity.Validator{}, time.Now()), f.err
}

func (f *fakeChain) FetchNominations(context.Context, entity.NetworkID, string) (entity.Result[[]string], error) {
	f.calls++
	return entity.Live([]string{alice}, time.Now()), f.err
}

func (f *fakeChain) FetchChainMetadata(context.Context, entity.NetworkID) (entity.Result[entity.ChainMetadata], error) {
	f.calls++
	return entity.Live(entity.ChainMetadata{SpecName: "polkadot"}, time.Now()), f.err
}

func (f *fakeChain) SubscribeNewBlocks(context.Context, entity.NetworkID, func(entity.BlockHeader)) (domainService.Subscription, error) {
	f.calls++
	return f.sub, f.err
}

func (f *fakeChain) FetchTransactionHistory(context.Context, entity.NetworkID, string) (entity.Result[[]entity.Transfer], error) {
	f.calls++
	return f.transfers, f.err
}

func (f *fakeChain) NetworkStatus(entity.NetworkID) (entity.NetworkStatus, error) {
	f.calls++
	return f.status, f.err
}

func (f *fakeChain) ListNetworks() []entity.Network { return f.networks }

type fakeEndpoints struct {
	details []entity.EndpointDetail
	err     error
}

func (f *fakeEndpoints) CheckEndpoints(context.Context, entity.NetworkID) ([]entity.EndpointDetail, error) {
	return f.details, f.err
}

type fakeAddresses struct{}

func (fakeAddresses) IsValidAddress(string) bool { return true }

func (fakeAddresses) ValidateAddressPrefix(string, int) bool { return true }

func (fakeAddresses) NormalizeAddress(a string, _ entity.NetworkID) string { return a }

func (fakeAddresses) ValidateForNetwork(a string, id entity.NetworkID) (entity.AddressReport, error) {
	return entity.AddressReport{Address: a, Network: id, Valid: true, PrefixMatches: true, Normalized: a}, nil
}

func newTestRouter(chain *fakeChain, endpoints *fakeEndpoints) fasthttp.RequestHandler {
	h := NewChainHandler(context.Background(), chain, endpoints, fakeAddresses{}, time.Second, zap.NewNop())
	r := router.New()
	r.GET("/networks", h.ListNetworks)
	r.GET("/networks/{network}/status", h.GetNetworkStatus)
	r.GET("/networks/{network}/endpoints", h.GetEndpoints)
	r.GET("/networks/{network}/addresses/{address}", h.GetAddress)
	r.GET("/networks/{network}/validators", h.GetValidators)
	r.GET("/networks/{network}/accounts/{address}/balance", h.GetBalance)
	r.GET("/networks/{network}/accounts/{address}/balance/stream", h.StreamBalance)
	r.GET("/networks/{network}/accounts/{address}/staking", h.GetStaking)
	r.GET("/networks/{network}/accounts/{address}/transfers", h.GetTransfers)
	return r.Handler
}

func get(handler fasthttp.RequestHandler, uri string) *fasthttp.RequestCtx {
	req := fasthttp.AcquireRequest()
	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(uri)
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(req, nil, nil)
	handler(ctx)
	return ctx
}

func decode(t *testing.T, ctx *fasthttp.RequestCtx) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body), string(ctx.Response.Body()))
	return body
}

func dot(planck uint64) entity.Amount {
	return entity.NewAmount(uint256.NewInt(planck), 10)
}

func TestChainHandler_GetBalance(t *testing.T) {
	fetchedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	balance := entity.AccountBalance{Free: dot(15_000_000_000), Reserved: dot(0), Frozen: dot(10_000_000_000)}

	t.Run("live", func(t *testing.T) {
		chain := &fakeChain{balance: entity.Live(balance, fetchedAt)}
		ctx := get(newTestRouter(chain, nil), "/networks/Polkadot/accounts/"+alice+"/balance")

		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		assert.Equal(t, "application/json", string(ctx.Response.Header.ContentType()))
		body := decode(t, ctx)
		assert.Equal(t, "polkadot", body["network"])
		assert.Equal(t, "live", body["status"])
		assert.Equal(t, "2026-01-02T03:04:05Z", body["fetchedAt"])
		assert.Equal(t, map[string]any{"free": "1.5", "reserved": "0", "frozen": "1"}, body["data"])
		assert.NotContains(t, body, "error")
	})

	t.Run("stale", func(t *testing.T) {
		chain := &fakeChain{balance: entity.Stale(balance, fetchedAt, apperrors.ErrConnectionTimeout)}
		ctx := get(newTestRouter(chain, nil), "/networks/polkadot/accounts/"+alice+"/balance")

		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		body := decode(t, ctx)
		assert.Equal(t, "stale", body["status"])
		assert.Equal(t, apperrors.ErrConnectionTimeout.Error(), body["error"])
		assert.NotNil(t, body["data"])
	})

	t.Run("unavailable", func(t *testing.T) {
		chain := &fakeChain{balance: entity.Unavailable[entity.AccountBalance](apperrors.ErrConnectionRefused)}
		ctx := get(newTestRouter(chain, nil), "/networks/polkadot/accounts/"+alice+"/balance")

		assert.Equal(t, fasthttp.StatusServiceUnavailable, ctx.Response.StatusCode())
		body := decode(t, ctx)
		assert.Equal(t, "unavailable", body["status"])
		assert.Nil(t, body["data"])
		assert.NotContains(t, body, "fetchedAt")
	})
}

func TestChainHandler_RequestErrors(t *testing.T) {
	tests := []struct {
		name   string
		uri    string
		err    error
		status int
	}{
		{"invalid address", "/networks/polkadot/accounts/nope/balance",
			fmt.Errorf("%w: nope", domain.ErrInvalidAddress), fasthttp.StatusUnprocessableEntity},
		{"prefix mismatch", "/networks/polkadot/accounts/" + alice + "/staking",
			fmt.Errorf("%w: prefix 42", domain.ErrPrefixMismatch), fasthttp.StatusUnprocessableEntity},
		{"no endpoints", "/networks/ethereum/accounts/0xabc/balance",
			fmt.Errorf("%w: ethereum", domain.ErrNoEndpoints), fasthttp.StatusNotImplemented},
		{"no indexer", "/networks/ethereum/accounts/0xabc/transfers",
			fmt.Errorf("%w: no transfer indexer", apperrors.ErrNotFound), fasthttp.StatusNotFound},
		{"endpoint check interrupted", "/networks/polkadot/endpoints",
			fmt.Errorf("interrupted: %w", context.DeadlineExceeded), fasthttp.StatusGatewayTimeout},
		{"stream rejected", "/networks/polkadot/accounts/nope/balance/stream",
			fmt.Errorf("%w: nope", domain.ErrInvalidAddress), fasthttp.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := &fakeChain{err: tt.err}
			ctx := get(newTestRouter(chain, &fakeEndpoints{err: tt.err}), tt.uri)

			assert.Equal(t, tt.status, ctx.Response.StatusCode())
			assert.Equal(t, tt.err.Error(), decode(t, ctx)["error"])
		})
	}
}

func TestChainHandler_UnknownNetwork(t *testing.T) {
	chain := &fakeChain{}
	for _, uri := range []string{
		"/networks/kusama/status",
		"/networks/kusama/validators",
		"/networks/kusama/accounts/" + alice + "/balance",
		"/networks/kusama/accounts/" + alice + "/balance/stream",
	} {
		ctx := get(newTestRouter(chain, nil), uri)
		assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode(), uri)
	}
	assert.Zero(t, chain.calls)
}

func TestChainHandler_ListNetworks(t *testing.T) {
	chain := &fakeChain{networks: []entity.Network{
		{ID: entity.NetworkPolkadot, Name: "Polkadot", Ticker: "DOT", Decimals: 10, Prefix: 0,
			Endpoints: []entity.EndpointURL{"wss://rpc.polkadot.io"}, IndexerSlug: "polkadot", Staking: true},
		{ID: entity.NetworkEthereum, Name: "Ethereum", Ticker: "ETH", Decimals: 18, Prefix: entity.NoPrefix, ChainID: 1},
	}}
	ctx := get(newTestRouter(chain, nil), "/networks")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	var body []map[string]any
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
	require.Len(t, body, 2)
	assert.EqualValues(t, 0, body[0]["ss58Prefix"])
	assert.Equal(t, true, body[0]["transferHistory"])
	assert.Equal(t, []any{"wss://rpc.polkadot.io"}, body[0]["endpoints"])
	assert.Nil(t, body[1]["ss58Prefix"])
	assert.Equal(t, []any{}, body[1]["endpoints"])
	assert.Equal(t, false, body[1]["transferHistory"])
}

func TestChainHandler_StatusEndpointsAndAddress(t *testing.T) {
	working := true
	latency := int64(12)
	chain := &fakeChain{status: entity.NetworkStatus{
		ConnectionStatus: entity.ConnectionStatus{Network: entity.NetworkPolkadot, Connected: true, Endpoint: "wss://a"},
		LatestBlock:      &entity.BlockHeader{Number: 42, Hash: "0x01", ParentHash: "0x00"},
		Synced:           true,
	}}
	endpoints := &fakeEndpoints{details: []entity.EndpointDetail{
		{URL: "wss://a", Protocol: entity.ProtocolWSS, IsWorking: &working, LatencyMs: &latency},
	}}
	handler := newTestRouter(chain, endpoints)

	ctx := get(handler, "/networks/polkadot/status")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	body := decode(t, ctx)
	assert.Equal(t, true, body["connected"])
	assert.Equal(t, true, body["synced"])
	assert.Equal(t, "wss://a", body["endpoint"])

	ctx = get(handler, "/networks/polkadot/endpoints")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	body = decode(t, ctx)
	assert.Equal(t, "polkadot", body["network"])
	require.Len(t, body["endpoints"], 1)

	ctx = get(handler, "/networks/acala/addresses/"+alice)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	body = decode(t, ctx)
	assert.Equal(t, "acala", body["network"])
	assert.Equal(t, true, body["valid"])
}

func TestChainHandler_StreamBalanceOpensEventStream(t *testing.T) {
	chain := &fakeChain{sub: &fakeSubscription{errCh: make(chan error)}}
	ctx := get(newTestRouter(chain, nil), "/networks/polkadot/accounts/"+alice+"/balance/stream")

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "text/event-stream", string(ctx.Response.Header.ContentType()))
	assert.Equal(t, "no-cache", string(ctx.Response.Header.Peek("Cache-Control")))
	assert.True(t, ctx.Response.IsBodyStream())
	assert.Equal(t, 1, chain.calls)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, fasthttp.StatusNotFound, statusFor(domain.ErrNetworkNotFound))
	assert.Equal(t, fasthttp.StatusBadGateway, statusFor(apperrors.ErrConnectionRefused))
	assert.Equal(t, fasthttp.StatusBadGateway, statusFor(apperrors.ErrMalformedResponse))
	assert.Equal(t, fasthttp.StatusGatewayTimeout, statusFor(apperrors.ErrConnectionTimeout))
	assert.Equal(t, fasthttp.StatusInternalServerError, statusFor(fmt.Errorf("boom")))
}
