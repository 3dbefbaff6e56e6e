package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"substrate-gateway/internal/application/port"
	"substrate-gateway/internal/domain"
	"substrate-gateway/internal/domain/entity"
	"substrate-gateway/internal/pkg/apperrors"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// DefaultRequestTimeout bounds a single API request, connection set-up included.
const DefaultRequestTimeout = 45 * time.Second

// ChainHandler serves the gateway API.
type ChainHandler struct {
	chains         port.ChainService
	endpoints      port.EndpointService
	addresses      port.AddressService
	logger         *zap.Logger
	rootCtx        context.Context
	requestTimeout time.Duration
	keepAlive      time.Duration
}

// NewChainHandler creates the handler. rootCtx ends open streams on shutdown.
func NewChainHandler(
	rootCtx context.Context,
	chains port.ChainService,
	endpoints port.EndpointService,
	addresses port.AddressService,
	requestTimeout time.Duration,
	logger *zap.Logger,
) *ChainHandler {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	return &ChainHandler{
		chains:         chains,
		endpoints:      endpoints,
		addresses:      addresses,
		logger:         logger.Named("ChainHandler"),
		rootCtx:        rootCtx,
		requestTimeout: requestTimeout,
		keepAlive:      15 * time.Second,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// resultResponse is the envelope of every chain or indexer query.
type resultResponse struct {
	Network   entity.NetworkID  `json:"network"`
	Status    entity.DataStatus `json:"status"`
	Data      any               `json:"data"`
	FetchedAt *time.Time        `json:"fetchedAt,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func newResultResponse[T any](network entity.NetworkID, r entity.Result[T]) resultResponse {
	resp := resultResponse{Network: network, Status: r.Status}
	if r.Available() {
		fetchedAt := r.FetchedAt
		resp.Data = r.Value
		resp.FetchedAt = &fetchedAt
	}
	if r.Err != nil {
		resp.Error = r.Err.Error()
	}
	return resp
}

type networkResponse struct {
	ID                 entity.NetworkID     `json:"id"`
	Name               string               `json:"name"`
	Ticker             string               `json:"ticker"`
	Decimals           int                  `json:"decimals"`
	Prefix             *int                 `json:"ss58Prefix"`
	ChainID            int64                `json:"chainId"`
	ExistentialDeposit string               `json:"existentialDeposit"`
	Endpoints          []entity.EndpointURL `json:"endpoints"`
	Staking            bool                 `json:"staking"`
	TransferHistory    bool                 `json:"transferHistory"`
}

func toNetworkResponse(n entity.Network) networkResponse {
	resp := networkResponse{
		ID:                 n.ID,
		Name:               n.Name,
		Ticker:             n.Ticker,
		Decimals:           n.Decimals,
		ChainID:            n.ChainID,
		ExistentialDeposit: n.ExistentialDeposit,
		Endpoints:          n.Endpoints,
		Staking:            n.Staking,
		TransferHistory:    n.IndexerSlug != "",
	}
	if resp.Endpoints == nil {
		resp.Endpoints = []entity.EndpointURL{}
	}
	if n.UsesPrefix() {
		prefix := n.Prefix
		resp.Prefix = &prefix
	}
	return resp
}

type endpointsResponse struct {
	Network   entity.NetworkID        `json:"network"`
	Endpoints []entity.EndpointDetail `json:"endpoints"`
}

// statusFor maps request-level errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNetworkNotFound), errors.Is(err, apperrors.ErrNotFound):
		return fasthttp.StatusNotFound
	case errors.Is(err, domain.ErrInvalidAddress), errors.Is(err, domain.ErrPrefixMismatch):
		return fasthttp.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNoEndpoints):
		return fasthttp.StatusNotImplemented
	case errors.Is(err, apperrors.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fasthttp.StatusGatewayTimeout
	case errors.Is(err, apperrors.ErrExternalServiceFailure),
		errors.Is(err, apperrors.ErrConnectionClosed),
		errors.Is(err, apperrors.ErrMalformedResponse):
		return fasthttp.StatusBadGateway
	default:
		return fasthttp.StatusInternalServerError
	}
}

func (h *ChainHandler) writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	if err := json.NewEncoder(ctx).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *ChainHandler) writeError(ctx *fasthttp.RequestCtx, err error) {
	status := statusFor(err)
	if status >= fasthttp.StatusInternalServerError {
		h.logger.Error("Request failed", zap.ByteString("uri", ctx.RequestURI()), zap.Error(err))
	} else {
		h.logger.Debug("Request rejected", zap.ByteString("uri", ctx.RequestURI()), zap.Error(err))
	}
	h.writeJSON(ctx, status, errorResponse{Error: err.Error()})
}

// writeResult answers 200 for live and stale data and 503 when nothing is available.
func (h *ChainHandler) writeResult(ctx *fasthttp.RequestCtx, resp resultResponse) {
	status := fasthttp.StatusOK
	if resp.Status == entity.StatusUnavailable {
		status = fasthttp.StatusServiceUnavailable
	}
	h.writeJSON(ctx, status, resp)
}

// networkParam parses the {network} path segment.
func (h *ChainHandler) networkParam(ctx *fasthttp.RequestCtx) (entity.NetworkID, bool) {
	raw, _ := ctx.UserValue("network").(string)
	id, err := entity.ParseNetworkID(raw)
	if err != nil {
		h.writeError(ctx, fmt.Errorf("%w: %q", domain.ErrNetworkNotFound, raw))
		return "", false
	}
	return id, true
}

func addressParam(ctx *fasthttp.RequestCtx) string {
	address, _ := ctx.UserValue("address").(string)
	return address
}

func (h *ChainHandler) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, h.requestTimeout)
}

// ListNetworks handles GET /networks.
func (h *ChainHandler) ListNetworks(ctx *fasthttp.RequestCtx) {
	networks := h.chains.ListNetworks()
	resp := make([]networkResponse, 0, len(networks))
	for _, n := range networks {
		resp = append(resp, toNetworkResponse(n))
	}
	h.writeJSON(ctx, fasthttp.StatusOK, resp)
}

// GetNetworkStatus handles GET /networks/{network}/status.
func (h *ChainHandler) GetNetworkStatus(ctx *fasthttp.RequestCtx) {
	id, ok := h.networkParam(ctx)
	if !ok {
		return
	}
	status, err := h.chains.NetworkStatus(id)
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	h.writeJSON(ctx, fasthttp.StatusOK, status)
}

// GetEndpoints handles GET /networks/{network}/endpoints.
func (h *ChainHandler) GetEndpoints(ctx *fasthttp.RequestCtx) {
	id, ok := h.networkParam(ctx)
	if !ok {
		return
	}
	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	details, err := h.endpoints.CheckEndpoints(reqCtx, id)
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	if details == nil {
		details = []entity.EndpointDetail{}
	}
	h.writeJSON(ctx, fasthttp.StatusOK, endpointsResponse{Network: id, Endpoints: details})
}

// GetAddress handles GET /networks/{network}/addresses/{address}.
func (h *ChainHandler) GetAddress(ctx *fasthttp.RequestCtx) {
	id, ok := h.networkParam(ctx)
	if !ok {
		return
	}
	report, err := h.addresses.ValidateForNetwork(addressParam(ctx), id)
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	h.writeJSON(ctx, fasthttp.StatusOK, report)
}

// GetMetadata handles GET /networks/{network}/metadata.
func (h *ChainHandler) GetMetadata(ctx *fasthttp.RequestCtx) {
	id, ok := h.networkParam(ctx)
	if !ok {
		return
	}
	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	res, err := h.chains.FetchChainMetadata(reqCtx, id)
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	h.writeResult(ctx, newResultResponse(id, res))
}

// GetValidators handles GET /networks/{network}/validators.
func (h *ChainHandler) GetValidators(ctx *fasthttp.RequestCtx) {
	id, ok := h.networkParam(ctx)
	if !ok {
		return
	}
	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	res, err := h.chains.FetchValidators(reqCtx, id)
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	h.writeResult(ctx, newResultResponse(id, res))
}

// GetBalance handles GET /networks/{network}/accounts/{address}/balance.
func (h *ChainHandler) GetBalance(ctx *fasthttp.RequestCtx) {
	id, ok := h.networkParam(ctx)
	if !ok {
		return
	}
	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	res, err := h.chains.FetchAccountData(reqCtx, id, addressParam(ctx))
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	h.writeResult(ctx, newResultResponse(id, res))
}

// GetStaking handles GET /networks/{network}/accounts/{address}/staking.
func (h *ChainHandler) GetStaking(ctx *fasthttp.RequestCtx) {
	id, ok := h.networkParam(ctx)
	if !ok {
		return
	}
	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	res, err := h.chains.FetchStakingData(reqCtx, id, addressParam(ctx))
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	h.writeResult(ctx, newResultResponse(id, res))
}

// GetNominations handles GET /networks/{network}/accounts/{address}/nominations.
func (h *ChainHandler) GetNominations(ctx *fasthttp.RequestCtx) {
	id, ok := h.networkParam(ctx)
	if !ok {
		return
	}
	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	res, err := h.chains.FetchNominations(reqCtx, id, addressParam(ctx))
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	h.writeResult(ctx, newResultResponse(id, res))
}

// GetTransfers handles GET /networks/{network}/accounts/{address}/transfers.
func (h *ChainHandler) GetTransfers(ctx *fasthttp.RequestCtx) {
	id, ok := h.networkParam(ctx)
	if !ok {
		return
	}
	reqCtx, cancel := h.requestContext(ctx)
	defer cancel()

	res, err := h.chains.FetchTransactionHistory(reqCtx, id, addressParam(ctx))
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	h.writeResult(ctx, newResultResponse(id, res))
}
