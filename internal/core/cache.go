// Package core provides the business logic and service layer for the dispatchq task queue.
package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dispatchq/dispatchq/internal/domain/model"
)

// CacheRepository defines the interface for caching operations.
// This follows the hexagonal architecture pattern where the core defines interfaces
// and the data layer provides implementations.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// Exists checks if a key exists in the cache.
	Exists(ctx context.Context, key string) (bool, error)

	// SetTTL updates the TTL for an existing key.
	// Returns true if the key exists and TTL was updated.
	SetTTL(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// SetIfNotExists atomically sets a key only if it doesn't already exist.
	// Returns true if the key was set, false if it already existed.
	// This is useful for implementing distributed locks and deduplication.
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}

// statsCacheKey is versioned so a changed TaskStats shape never deserializes
// stale entries written by an older build.
const statsCacheKey = "tasks:stats:v1"

// StatsCacheService caches computed task statistics.
// The stats query aggregates over the whole tasks table, so dashboards polling
// the stats endpoint are served from this cache between recomputes.
type StatsCacheService struct {
	cache CacheRepository
	ttl   time.Duration
}

// StatsCacheConfig holds configuration for stats caching.
type StatsCacheConfig struct {
	TTL time.Duration `json:"ttl"`
}

// StatsCacheServiceOptions bundles dependencies for NewStatsCacheService.
type StatsCacheServiceOptions struct {
	Cache  CacheRepository
	Config StatsCacheConfig
}

// DefaultStatsCacheConfig returns a StatsCacheConfig with sensible defaults.
func DefaultStatsCacheConfig() StatsCacheConfig {
	return StatsCacheConfig{
		TTL: 5 * time.Second, // Short TTL keeps counts near-live under polling
	}
}

// NewStatsCacheService creates a new StatsCacheService.
func NewStatsCacheService(opts StatsCacheServiceOptions) *StatsCacheService {
	ttl := opts.Config.TTL
	if ttl <= 0 {
		ttl = DefaultStatsCacheConfig().TTL
	}
	return &StatsCacheService{
		cache: opts.Cache,
		ttl:   ttl,
	}
}

// CachedStats returns the cached task statistics, or nil on a cache miss.
// Corrupt entries are treated as a miss so the caller recomputes.
func (s *StatsCacheService) CachedStats(ctx context.Context) (*model.TaskStats, error) {
	raw, err := s.cache.Get(ctx, statsCacheKey)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var stats model.TaskStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, nil
	}
	return &stats, nil
}

// StoreStats caches the given statistics for the configured TTL.
func (s *StatsCacheService) StoreStats(ctx context.Context, stats *model.TaskStats) error {
	if stats == nil {
		return nil
	}

	raw, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, statsCacheKey, raw, s.ttl)
}

// Invalidate drops the cached statistics so the next read recomputes.
// This should be called after task mutations that change status counts.
func (s *StatsCacheService) Invalidate(ctx context.Context) error {
	_, err := s.cache.Delete(ctx, statsCacheKey)
	return err
}
