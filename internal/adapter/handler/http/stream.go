package http

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"substrate-gateway/internal/domain/entity"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// streamBuffer is how many undelivered updates a slow client may lag behind
// before updates are dropped.
const streamBuffer = 16

// StreamBalance handles GET /networks/{network}/accounts/{address}/balance/stream
// as server-sent events, one "balance" event per storage change.
func (h *ChainHandler) StreamBalance(ctx *fasthttp.RequestCtx) {
	id, ok := h.networkParam(ctx)
	if !ok {
		return
	}
	address := addressParam(ctx)
	logger := h.logger.With(zap.String("network", id.String()), zap.String("address", address))

	updates := make(chan resultResponse, streamBuffer)
	subCtx, cancel := h.requestContext(ctx)
	sub, err := h.chains.SubscribeAccountData(subCtx, id, address, func(r entity.Result[entity.AccountBalance]) {
		select {
		case updates <- newResultResponse(id, r):
		default:
			logger.Warn("Balance stream client is lagging, dropping update")
		}
	})
	cancel()
	if err != nil {
		h.writeError(ctx, err)
		return
	}

	ctx.SetContentType("text/event-stream")
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.Response.Header.Set("Connection", "keep-alive")
	ctx.Response.Header.Set("X-Accel-Buffering", "no")
	ctx.SetStatusCode(fasthttp.StatusOK)

	ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
		logger.Debug("Balance stream opened")
		err := pumpEvents(w, "balance", updates, sub.Err(), h.rootCtx.Done(), h.keepAlive)

		unsubCtx, unsubCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer unsubCancel()
		if uerr := sub.Unsubscribe(unsubCtx); uerr != nil {
			logger.Debug("Unsubscribe failed", zap.Error(uerr))
		}
		logger.Debug("Balance stream closed", zap.Error(err))
	})
}

// pumpEvents writes every update as an SSE event until the subscription
// ends, done closes, or the client goes away. Keep-alive comments detect
// clients that left while no updates were flowing.
func pumpEvents(
	w *bufio.Writer,
	event string,
	updates <-chan resultResponse,
	subErr <-chan error,
	done <-chan struct{},
	keepAlive time.Duration,
) error {
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case update := <-updates:
			payload, err := json.Marshal(update)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}
		case err, ok := <-subErr:
			if !ok || err == nil {
				err = fmt.Errorf("subscription ended")
			}
			payload, _ := json.Marshal(errorResponse{Error: err.Error()})
			_, _ = fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
			_ = w.Flush()
			return err
		case <-ticker.C:
			if _, err := w.WriteString(": keep-alive\n\n"); err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}
		case <-done:
			return nil
		}
	}
}
