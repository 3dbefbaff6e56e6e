package application

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"substrate-gateway/internal/application/port"
	"substrate-gateway/internal/config"
	"substrate-gateway/internal/domain/entity"
	domainRepo "substrate-gateway/internal/domain/repository"
	domainService "substrate-gateway/internal/domain/service"
	"substrate-gateway/internal/metrics"

	"go.uber.org/zap"
)

// Compile-time check
var _ port.EndpointService = (*endpointService)(nil)

// endpointService probes node endpoints and caches their health.
type endpointService struct {
	networks   domainRepo.NetworkRepository
	cacheRepo  domainRepo.CacheRepository
	checker    domainService.EndpointChecker
	metrics    *metrics.Metrics
	logger     *zap.Logger
	cfg        config.CheckerConfig
	rootCtx    context.Context
	isChecking *atomic.Bool
}

// NewEndpointService creates the service and starts the periodic refresh.
func NewEndpointService(
	rootCtx context.Context,
	networks domainRepo.NetworkRepository,
	cacheRepo domainRepo.CacheRepository,
	checker domainService.EndpointChecker,
	m *metrics.Metrics,
	logger *zap.Logger,
	cfg config.CheckerConfig,
) port.EndpointService {
	s := &endpointService{
		networks:   networks,
		cacheRepo:  cacheRepo,
		checker:    checker,
		metrics:    m,
		logger:     logger.Named("EndpointService"),
		cfg:        cfg,
		rootCtx:    rootCtx,
		isChecking: new(atomic.Bool),
	}

	go s.startBackgroundChecker()

	return s
}

// CheckEndpoints returns cached results when present, otherwise probes now.
func (s *endpointService) CheckEndpoints(ctx context.Context, id entity.NetworkID) ([]entity.EndpointDetail, error) {
	network, err := s.networks.GetNetwork(id)
	if err != nil {
		return nil, err
	}

	cached, found, err := s.cacheRepo.GetEndpointDetails(ctx, id)
	if err != nil {
		s.logger.Warn("Cache error when getting endpoint details", zap.String("network", id.String()), zap.Error(err))
	}
	if found {
		s.logger.Debug("Cache hit for endpoint details", zap.String("network", id.String()))
		return cached, nil
	}

	details := s.checkNetwork(ctx, network)
	if ctx.Err() != nil {
		return nil, fmt.Errorf("endpoint check for %s interrupted: %w", id, ctx.Err())
	}
	if err := s.cacheRepo.SetEndpointDetails(ctx, id, details, s.cfg.GetCacheTTL()); err != nil {
		s.logger.Warn("Failed to cache endpoint details", zap.String("network", id.String()), zap.Error(err))
	}
	return details, nil
}

// refreshAll checks every network and replaces the cached results.
func (s *endpointService) refreshAll(ctx context.Context) {
	s.logger.Info("Starting endpoint checks for all networks")
	for _, network := range s.networks.ListNetworks() {
		if ctx.Err() != nil {
			s.logger.Warn("Context cancelled during endpoint refresh, cache not updated", zap.Error(ctx.Err()))
			return
		}
		if len(network.Endpoints) == 0 {
			continue
		}
		details := s.checkNetwork(ctx, network)
		if ctx.Err() != nil {
			s.logger.Warn("Context cancelled during endpoint refresh, cache not updated", zap.Error(ctx.Err()))
			return
		}
		if err := s.cacheRepo.SetEndpointDetails(ctx, network.ID, details, s.cfg.GetCacheTTL()); err != nil {
			s.logger.Warn("Failed to cache endpoint details",
				zap.String("network", network.ID.String()), zap.Error(err))
		}
	}
	s.logger.Info("Endpoint refresh finished")
}

type checkJob struct {
	index int
	url   entity.EndpointURL
}

// checkNetwork probes the endpoints of network with a bounded worker pool.
// Results keep the registry order.
func (s *endpointService) checkNetwork(ctx context.Context, network entity.Network) []entity.EndpointDetail {
	endpoints := network.Endpoints
	if len(endpoints) == 0 {
		return nil
	}

	details := make([]entity.EndpointDetail, len(endpoints))
	var wg sync.WaitGroup

	numWorkers := s.cfg.MaxWorkers
	if numWorkers <= 0 {
		numWorkers = 10
	}
	if len(endpoints) < numWorkers {
		numWorkers = len(endpoints)
	}

	jobs := make(chan checkJob, len(endpoints))

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for job := range jobs {
				details[job.index] = s.checkOne(ctx, network.ID, job.url)
			}
			s.logger.Debug("Endpoint check worker finished", zap.Int("workerID", workerID))
		}(w)
	}

	for i, u := range endpoints {
		jobs <- checkJob{index: i, url: u}
	}
	close(jobs)

	wg.Wait()
	return details
}

func (s *endpointService) checkOne(ctx context.Context, id entity.NetworkID, u entity.EndpointURL) entity.EndpointDetail {
	detail := entity.EndpointDetail{URL: u, Protocol: u.Protocol()}
	if detail.Protocol == entity.ProtocolUnknown {
		notWorking := false
		detail.IsWorking = &notWorking
		s.logger.Error("Endpoint with unknown protocol", zap.String("url", u.String()))
		return detail
	}

	timeout := s.cfg.GetTimeout()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	isWorking, latency, err := s.checker.CheckEndpoint(checkCtx, u)
	cancel()

	if err != nil {
		s.logger.Debug("Endpoint check failed", zap.String("url", u.String()), zap.Error(err))
		notWorking := false
		detail.IsWorking = &notWorking
		return detail
	}

	detail.IsWorking = &isWorking
	if isWorking {
		latencyMs := latency.Milliseconds()
		detail.LatencyMs = &latencyMs
		s.metrics.EndpointLatency.WithLabelValues(id.String()).Observe(latency.Seconds())
		s.logger.Debug("Endpoint is working", zap.String("url", u.String()), zap.Duration("latency", latency))
	} else {
		s.logger.Debug("Endpoint is not working (checker reported)", zap.String("url", u.String()))
	}
	return detail
}

// startBackgroundChecker refreshes the cached results every check interval.
func (s *endpointService) startBackgroundChecker() {
	if s.cfg.RunOnStartup {
		s.trigger()
	}

	interval := s.cfg.GetCheckInterval()
	if interval <= 0 {
		s.logger.Info("Background checker disabled (interval <= 0)")
		return
	}

	s.logger.Info("Starting background checker", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.trigger()
		case <-s.rootCtx.Done():
			s.logger.Info("Background checker stopping due to context cancellation.")
			return
		}
	}
}

// trigger starts a refresh unless one is already running.
func (s *endpointService) trigger() {
	if !s.isChecking.CompareAndSwap(false, true) {
		s.logger.Debug("Background checker tick: check already in progress.")
		return
	}
	go func() {
		defer s.isChecking.Store(false)
		s.refreshAll(s.rootCtx)
	}()
}
