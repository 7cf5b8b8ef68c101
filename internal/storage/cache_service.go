package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wallet-insight/internal/types"
)

// CacheService provides JSON caching of wallet reports on top of Redis
type CacheService struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewCacheService creates a new cache service
func NewCacheService(redis *RedisCache, ttl time.Duration) *CacheService {
	return &CacheService{
		redis: redis,
		ttl:   ttl,
	}
}

// CacheKeyType represents different types of cache keys
type CacheKeyType string

const (
	// CacheKeyReport is for assembled wallet reports
	CacheKeyReport CacheKeyType = "report"
	// CacheKeyPrice is for spot prices
	CacheKeyPrice CacheKeyType = "price"
)

// GenerateCacheKey generates a cache key for a given type and parameters
// Format: <type>:<param1>:<param2>:...
func GenerateCacheKey(keyType CacheKeyType, params ...string) string {
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, string(keyType))
	for _, param := range params {
		parts = append(parts, strings.ToLower(strings.TrimSpace(param)))
	}
	return strings.Join(parts, ":")
}

// ReportKey generates the cache key of a wallet report
// Format: report:<chain>:<address>
func ReportKey(chain types.ChainSymbol, address string) string {
	return GenerateCacheKey(CacheKeyReport, string(chain), address)
}

// Set stores a value in cache with the configured TTL
func (c *CacheService) Set(ctx context.Context, key string, value interface{}) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

// SetWithTTL stores a value in cache with a custom TTL
func (c *CacheService) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return c.redis.Set(ctx, key, data, ttl)
}

// Get retrieves a value from cache and deserializes it.
// A miss is reported as (false, nil).
func (c *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.redis.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get from cache: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}

	return true, nil
}

// Invalidate removes one or more keys from cache
func (c *CacheService) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...)
}

// GetReport returns a cached wallet report
func (c *CacheService) GetReport(ctx context.Context, chain types.ChainSymbol, address string) (*types.WalletReport, bool, error) {
	var report types.WalletReport
	found, err := c.Get(ctx, ReportKey(chain, address), &report)
	if err != nil || !found {
		return nil, false, err
	}
	return &report, true, nil
}

// SetReport caches a wallet report under its chain and address
func (c *CacheService) SetReport(ctx context.Context, report *types.WalletReport) error {
	return c.Set(ctx, ReportKey(report.Chain, report.Address), report)
}

// InvalidateReport drops the cached report of an address
func (c *CacheService) InvalidateReport(ctx context.Context, chain types.ChainSymbol, address string) error {
	return c.Invalidate(ctx, ReportKey(chain, address))
}
