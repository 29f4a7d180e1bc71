package config

import "time"

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// MaxClaimWait caps how long POST /api/tasks/claim may block on its
	// `wait` query parameter. Keep it below the server write timeout so a
	// poll that finds nothing still returns a clean 204.
	MaxClaimWait time.Duration `env:"HTTP_MAX_CLAIM_WAIT" envDefault:"25s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (c *HTTPConfig) Sanitize() {
	if c.MaxClaimWait <= 0 {
		c.MaxClaimWait = 25 * time.Second
	}
}
