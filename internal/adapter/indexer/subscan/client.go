// Package subscan fetches transfer history from the Subscan indexer API.
package subscan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"substrate-gateway/internal/adapter/indexer/subscan/dto"
	"substrate-gateway/internal/config"
	"substrate-gateway/internal/domain/entity"
	domainService "substrate-gateway/internal/domain/service"
	"substrate-gateway/internal/metrics"
	"substrate-gateway/internal/pkg/apperrors"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Compile-time check
var _ domainService.TransferIndexer = (*Client)(nil)

const (
	transfersPath  = "/api/scan/transfers"
	defaultRows    = 15
	defaultTimeout = 15 * time.Second
)

// Client implements TransferIndexer against the Subscan API.
type Client struct {
	client  *fasthttp.Client
	cfg     config.IndexerConfig
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewClient creates a Subscan client.
func NewClient(cfg config.IndexerConfig, m *metrics.Metrics, logger *zap.Logger) *Client {
	return &Client{
		client:  &fasthttp.Client{},
		cfg:     cfg,
		metrics: m,
		logger:  logger.Named("SubscanIndexer"),
	}
}

// FetchTransfers returns the latest transfers of address on network.
func (c *Client) FetchTransfers(
	ctx context.Context,
	network entity.Network,
	address string,
) ([]entity.IndexedTransfer, error) {
	if network.IndexerSlug == "" {
		return nil, fmt.Errorf("%w: no transfer indexer for %s", apperrors.ErrNotFound, network.ID)
	}

	transfers, err := c.fetch(ctx, network, address)
	c.metrics.IndexerRequests.WithLabelValues(network.ID.String(), outcome(err)).Inc()
	return transfers, err
}

func (c *Client) fetch(ctx context.Context, network entity.Network, address string) ([]entity.IndexedTransfer, error) {
	rows := c.cfg.Rows
	if rows <= 0 {
		rows = defaultRows
	}
	payload, err := json.Marshal(dto.TransfersRequest{Address: address, Row: rows, Page: 0})
	if err != nil {
		return nil, fmt.Errorf("%w: encode transfers request: %v", apperrors.ErrInternal, err)
	}

	url := fmt.Sprintf(c.cfg.BaseURLTemplate, network.IndexerSlug) + transfersPath

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set(fasthttp.HeaderAcceptEncoding, "gzip")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}
	req.SetBody(payload)

	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: indexer request for %s: %v", apperrors.ErrTimeout, network.ID, ctx.Err())
	}

	c.logger.Debug("Fetching transfers",
		zap.String("network", network.ID.String()), zap.String("url", url), zap.Duration("timeout", timeout))

	if err := c.client.DoTimeout(req, resp, timeout); err != nil {
		c.logger.Warn("Indexer request failed", zap.String("network", network.ID.String()), zap.Error(err))
		if errors.Is(err, fasthttp.ErrTimeout) {
			return nil, fmt.Errorf("%w: indexer request for %s", apperrors.ErrTimeout, network.ID)
		}
		return nil, fmt.Errorf("%w: indexer request for %s: %v", apperrors.ErrExternalServiceFailure, network.ID, err)
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		c.logger.Warn("Indexer returned non-OK status",
			zap.String("network", network.ID.String()),
			zap.Int("statusCode", resp.StatusCode()),
			zap.ByteString("body", resp.Body()[:min(512, len(resp.Body()))]),
		)
		return nil, fmt.Errorf("%w: indexer returned status %d for %s",
			apperrors.ErrExternalServiceFailure, resp.StatusCode(), network.ID)
	}

	body := resp.Body()
	if bytes.EqualFold(resp.Header.Peek(fasthttp.HeaderContentEncoding), []byte("gzip")) {
		body, err = resp.BodyGunzip()
		if err != nil {
			return nil, fmt.Errorf("%w: decompress indexer response: %v", apperrors.ErrMalformedResponse, err)
		}
	}

	return parseTransfers(body, network.Decimals)
}

// parseTransfers validates a transfers envelope and maps its items.
func parseTransfers(body []byte, decimals int) ([]entity.IndexedTransfer, error) {
	var env dto.Envelope
	if err := json.Unmarshal(stripControl(body), &env); err != nil {
		return nil, fmt.Errorf("%w: indexer response: %v", apperrors.ErrMalformedResponse, err)
	}
	if env.Code == nil {
		return nil, fmt.Errorf("%w: indexer response without code", apperrors.ErrMalformedResponse)
	}
	if *env.Code != 0 {
		return nil, fmt.Errorf("%w: indexer error %d: %s", apperrors.ErrExternalServiceFailure, *env.Code, env.Message)
	}
	if env.Data == nil {
		return nil, fmt.Errorf("%w: indexer response without data", apperrors.ErrMalformedResponse)
	}
	// Subscan reports an empty history as a null list.
	return toDomainTransfers(env.Data.Transfers, decimals)
}

// stripControl removes control characters and byte order marks that some
// proxies inject into otherwise valid JSON.
func stripControl(body []byte) []byte {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == '\uFEFF' {
			return -1
		}
		return r
	}, string(body))
	return []byte(strings.TrimSpace(cleaned))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, apperrors.ErrMalformedResponse):
		return metrics.OutcomeMalformed
	case errors.Is(err, apperrors.ErrTimeout):
		return metrics.OutcomeTimeout
	default:
		return metrics.OutcomeError
	}
}
