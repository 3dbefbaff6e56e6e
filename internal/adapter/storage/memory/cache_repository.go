package memory

import (
	"context"
	"fmt"
	"time"

	"substrate-gateway/internal/config"
	"substrate-gateway/internal/domain"
	"substrate-gateway/internal/domain/entity"
	domainRepo "substrate-gateway/internal/domain/repository"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Compile-time check
var _ domainRepo.CacheRepository = (*CacheRepository)(nil)

// Cache keys
const (
	endpointDetailsKeyPrefix = "endpoint_details_v1_"
	snapshotKeyPrefix        = "snapshot_v1_"
)

// CacheRepository implements domainRepo.CacheRepository using the go-cache in-memory library.
type CacheRepository struct {
	cache   *cache.Cache
	logger  *zap.Logger
	fullCfg config.Config
}

// NewCacheRepository creates a new in-memory cache repository instance.
func NewCacheRepository(cfg config.Config, logger *zap.Logger) *CacheRepository {
	defaultExpiration := cfg.Cache.GetDefaultExpiration()
	cleanupInterval := cfg.Cache.GetCleanupInterval()

	c := cache.New(defaultExpiration, cleanupInterval)
	logger.Info(
		"Initialized go-cache for memory storage",
		zap.Duration("defaultExpiration", defaultExpiration),
		zap.Duration("cleanupInterval", cleanupInterval),
	)

	return &CacheRepository{
		cache:   c,
		logger:  logger.Named("MemoryCacheStorage"),
		fullCfg: cfg,
	}
}

// GetEndpointDetails retrieves cached endpoint checks for a network, returning found status.
func (r *CacheRepository) GetEndpointDetails(_ context.Context, network entity.NetworkID) ([]entity.EndpointDetail, bool, error) {
	key := endpointDetailsKeyPrefix + network.String()
	if x, found := r.cache.Get(key); found {
		if details, ok := x.([]entity.EndpointDetail); ok {
			r.logger.Debug("Memory cache hit", zap.String("key", key))
			return details, true, nil
		}
		r.logger.Warn(
			"Memory cache data type mismatch for key",
			zap.String("key", key), zap.String("type", fmt.Sprintf("%T", x)),
		)
		return nil, false, fmt.Errorf("%w: key %s holds %T", domain.ErrCacheFailure, key, x)
	}
	r.logger.Debug("Memory cache miss", zap.String("key", key))
	return nil, false, nil
}

// SetEndpointDetails caches endpoint checks for a network with a given TTL.
func (r *CacheRepository) SetEndpointDetails(
	_ context.Context,
	network entity.NetworkID,
	details []entity.EndpointDetail,
	ttl time.Duration,
) error {
	key := endpointDetailsKeyPrefix + network.String()
	if ttl <= 0 {
		ttl = r.fullCfg.Checker.GetCacheTTL()
		if ttl <= 0 {
			ttl = r.fullCfg.Cache.GetDefaultExpiration()
		}
	}
	r.cache.Set(key, details, ttl)
	r.logger.Debug("Memory cache set", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}

// GetSnapshot retrieves the last-known value stored under key.
func (r *CacheRepository) GetSnapshot(_ context.Context, key string) (entity.Snapshot, bool, error) {
	key = snapshotKeyPrefix + key
	if x, found := r.cache.Get(key); found {
		if snap, ok := x.(entity.Snapshot); ok {
			r.logger.Debug("Memory cache hit", zap.String("key", key))
			return snap, true, nil
		}
		r.logger.Warn(
			"Memory cache data type mismatch for key",
			zap.String("key", key), zap.String("type", fmt.Sprintf("%T", x)),
		)
		return entity.Snapshot{}, false, fmt.Errorf("%w: key %s holds %T", domain.ErrCacheFailure, key, x)
	}
	r.logger.Debug("Memory cache miss", zap.String("key", key))
	return entity.Snapshot{}, false, nil
}

// SetSnapshot stores a last-known value under key with a given TTL.
func (r *CacheRepository) SetSnapshot(_ context.Context, key string, snapshot entity.Snapshot, ttl time.Duration) error {
	key = snapshotKeyPrefix + key
	if ttl <= 0 {
		ttl = r.fullCfg.Cache.SnapshotTTL
		if ttl <= 0 {
			ttl = r.fullCfg.Cache.GetDefaultExpiration()
		}
	}
	r.cache.Set(key, snapshot, ttl)
	r.logger.Debug("Memory cache set", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}
