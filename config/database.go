package config

import (
	"strings"
	"time"
)

// DBConfig contains PostgreSQL database configuration.
// Field names are relative to the POSTGRES_ prefix applied in AppConfig;
// a non-empty DATABASE_URL takes precedence over all of them.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"postgres"`
	Password string `env:"PASSWORD" envDefault:"postgres"`
	Name     string `env:"DB"       envDefault:"taskqueue"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS" envDefault:"true"`
}

// RedisConfig contains Redis configuration for the stats cache.
// An empty URI disables the cache; the queue itself never depends on Redis.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:""`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// Enabled reports whether any Redis topology is configured.
func (c RedisConfig) Enabled() bool {
	return c.UseCluster || c.UseSentinel || strings.TrimSpace(c.URI) != ""
}

// CacheConfig contains cache tuning for derived read paths.
type CacheConfig struct {
	// StatsTTL bounds how stale a cached queue stats snapshot may be.
	StatsTTL time.Duration `env:"STATS_CACHE_TTL" envDefault:"5s"`
}

// Sanitize applies guardrails to cache configuration values.
func (c *CacheConfig) Sanitize() {
	if c.StatsTTL <= 0 {
		c.StatsTTL = 5 * time.Second
	}
}
