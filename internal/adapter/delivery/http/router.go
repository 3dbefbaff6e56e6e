package http

import (
	"time"

	handler "substrate-gateway/internal/adapter/handler/http"

	"github.com/fasthttp/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// RegisterRoutes sets up the API routes, the metrics endpoint and the health check.
func RegisterRoutes(r *router.Router, h *handler.ChainHandler, gatherer prometheus.Gatherer, logger *zap.Logger) {
	logger.Info("Setting up application-specific routes...")

	r.GET("/networks", h.ListNetworks)
	r.GET("/networks/{network}/status", h.GetNetworkStatus)
	r.GET("/networks/{network}/endpoints", h.GetEndpoints)
	r.GET("/networks/{network}/metadata", h.GetMetadata)
	r.GET("/networks/{network}/validators", h.GetValidators)
	r.GET("/networks/{network}/addresses/{address}", h.GetAddress)
	r.GET("/networks/{network}/accounts/{address}/balance", h.GetBalance)
	r.GET("/networks/{network}/accounts/{address}/balance/stream", h.StreamBalance)
	r.GET("/networks/{network}/accounts/{address}/staking", h.GetStaking)
	r.GET("/networks/{network}/accounts/{address}/nominations", h.GetNominations)
	r.GET("/networks/{network}/accounts/{address}/transfers", h.GetTransfers)

	logger.Info("Setting up metrics route...")
	r.GET("/metrics", fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	logger.Info("Setting up health check route...")
	r.GET("/health", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("OK")
	})

	logger.Info("All routes registered.")
}

// LoggingMiddleware logs every request with its status and duration.
func LoggingMiddleware(next fasthttp.RequestHandler, logger *zap.Logger) fasthttp.RequestHandler {
	logger = logger.Named("HTTP")
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)
		logger.Info("Request handled",
			zap.ByteString("method", ctx.Method()),
			zap.ByteString("uri", ctx.RequestURI()),
			zap.Int("status", ctx.Response.StatusCode()),
			zap.Duration("duration", time.Since(start)))
	}
}
