package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"substrate-gateway/internal/domain/entity"
	domainService "substrate-gateway/internal/domain/service"
	"substrate-gateway/internal/pkg/apperrors"

	"github.com/gorilla/websocket"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Compile-time check
var _ domainService.EndpointChecker = (*Checker)(nil)

// Checker probes node endpoints with system_health.
type Checker struct {
	client *fasthttp.Client
	logger *zap.Logger
}

// NewChecker creates a new endpoint checker instance.
func NewChecker(logger *zap.Logger) *Checker {
	return &Checker{
		client: &fasthttp.Client{
			ReadTimeout: 10 * time.Second,
		},
		logger: logger.Named("EndpointChecker"),
	}
}

// healthPayload asks a Substrate node for its sync and peer state.
var healthPayload = []byte(`{"jsonrpc":"2.0","method":"system_health","params":[],"id":1}`)

// systemHealth is the result of system_health.
type systemHealth struct {
	Peers           *int  `json:"peers"`
	IsSyncing       *bool `json:"isSyncing"`
	ShouldHavePeers bool  `json:"shouldHavePeers"`
}

// CheckEndpoint reports whether the endpoint answers system_health and is not syncing.
func (c *Checker) CheckEndpoint(
	ctx context.Context,
	endpoint entity.EndpointURL,
) (isWorking bool, latency time.Duration, err error) {
	startTime := time.Now()

	switch endpoint.Protocol() {
	case entity.ProtocolWS, entity.ProtocolWSS:
		return c.checkWS(ctx, endpoint.String(), startTime)
	case entity.ProtocolHTTP, entity.ProtocolHTTPS:
		return c.checkHTTP(ctx, endpoint.String(), startTime)
	default:
		c.logger.Warn("Skipping check for unsupported protocol", zap.String("url", endpoint.String()))
		return false, 0, fmt.Errorf("%w: unsupported protocol in URL %s", apperrors.ErrInvalidInput, endpoint)
	}
}

// checkHTTP performs the health check over HTTP/HTTPS.
func (c *Checker) checkHTTP(ctx context.Context, url string, startTime time.Time) (bool, time.Duration, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(healthPayload)

	timeout := effectiveTimeout(ctx, c.client.ReadTimeout)
	requestErr := c.client.DoTimeout(req, resp, timeout)
	latency := time.Since(startTime)

	if requestErr != nil {
		if errors.Is(requestErr, fasthttp.ErrTimeout) {
			c.logger.Debug("HTTP health check timed out",
				zap.String("url", url), zap.Duration("timeout", timeout), zap.Error(requestErr))
			return false, latency, fmt.Errorf("%w: http request to %s timed out after %v: %v",
				apperrors.ErrTimeout, url, timeout, requestErr,
			)
		}
		c.logger.Debug("HTTP health check request failed", zap.String("url", url), zap.Error(requestErr))
		return false, latency, fmt.Errorf("%w: http request to %s failed: %v",
			apperrors.ErrExternalServiceFailure, url, requestErr,
		)
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		c.logger.Debug("HTTP health check returned non-OK status",
			zap.String("url", url), zap.Int("statusCode", resp.StatusCode()))
		return false, latency, fmt.Errorf("%w: endpoint %s returned non-OK http status: %d",
			apperrors.ErrExternalServiceFailure, url, resp.StatusCode(),
		)
	}

	ok, err := c.validateHealthResponse(url, resp.Body())
	return ok, latency, err
}

// checkWS performs the health check over WS/WSS.
func (c *Checker) checkWS(ctx context.Context, url string, startTime time.Time) (bool, time.Duration, error) {
	timeout := effectiveTimeout(ctx, c.client.ReadTimeout)
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		c.logger.Debug("WS dial failed", zap.String("url", url), zap.Error(err))
		return false, time.Since(startTime), wsFailure(ctx, "dial", url, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(effectiveTimeout(ctx, timeout))
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)

	if err := conn.WriteMessage(websocket.TextMessage, healthPayload); err != nil {
		c.logger.Debug("WS write message failed", zap.String("url", url), zap.Error(err))
		return false, time.Since(startTime), wsFailure(ctx, "write", url, err)
	}

	_, message, err := conn.ReadMessage()
	latency := time.Since(startTime)
	if err != nil {
		c.logger.Debug("WS read message failed", zap.String("url", url), zap.Error(err))
		return false, latency, wsFailure(ctx, "read", url, err)
	}

	ok, err := c.validateHealthResponse(url, message)
	return ok, latency, err
}

func wsFailure(ctx context.Context, op, url string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: ws %s %s timed out: %v", apperrors.ErrTimeout, op, url, err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: ws %s %s timed out: %v", apperrors.ErrTimeout, op, url, err)
	}
	return fmt.Errorf("%w: ws %s %s failed: %v", apperrors.ErrExternalServiceFailure, op, url, err)
}

// effectiveTimeout is the smaller of fallback and the time left on ctx.
func effectiveTimeout(ctx context.Context, fallback time.Duration) time.Duration {
	timeout := fallback
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left > 0 && (timeout <= 0 || left < timeout) {
			timeout = left
		}
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return timeout
}

// validateHealthResponse checks the JSON-RPC envelope and the health payload.
func (c *Checker) validateHealthResponse(url string, body []byte) (bool, error) {
	var msg jsonRPCMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		c.logger.Debug("Health check returned invalid JSON",
			zap.String("url", url), zap.ByteString("body", body), zap.Error(err))
		return false, fmt.Errorf("%w: endpoint %s returned invalid JSON response: %v",
			apperrors.ErrMalformedResponse, url, err,
		)
	}
	if msg.Error != nil {
		c.logger.Debug("Health check returned JSON-RPC error",
			zap.String("url", url), zap.Int("errorCode", msg.Error.Code), zap.String("errorMessage", msg.Error.Message))
		return false, fmt.Errorf("%w: endpoint %s returned %v",
			apperrors.ErrExternalServiceFailure, url, msg.Error,
		)
	}
	if msg.JSONRPC != "2.0" || len(msg.Result) == 0 {
		return false, fmt.Errorf("%w: endpoint %s returned invalid JSON-RPC structure",
			apperrors.ErrMalformedResponse, url,
		)
	}

	var health systemHealth
	if err := json.Unmarshal(msg.Result, &health); err != nil || health.Peers == nil || health.IsSyncing == nil {
		return false, fmt.Errorf("%w: endpoint %s returned unexpected system_health shape",
			apperrors.ErrMalformedResponse, url,
		)
	}
	if *health.IsSyncing {
		c.logger.Debug("Endpoint is still syncing", zap.String("url", url), zap.Int("peers", *health.Peers))
		return false, nil
	}
	return true, nil
}
