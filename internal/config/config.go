// Package config loads and validates configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all settings for the marketplace client tooling.
type Config struct {
	// Marketplace connection.
	MarketURL      string // Root URL of the marketplace server.
	APIKey         string // Optional bearer token for fronted deployments.
	RequestTimeout time.Duration

	// Job polling.
	PollInterval time.Duration // Delay armed after each poll response.
	PollDeadline time.Duration // Wall-clock budget per submitted job.

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible
// defaults. All malformed variables are reported together.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := Config{
		MarketURL:    envStr("ROOMS_MARKET_URL", "http://localhost:8000"),
		APIKey:       envStr("ROOMS_API_KEY", ""),
		OTELEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:  envStr("OTEL_SERVICE_NAME", "rooms"),
		LogLevel:     envStr("ROOMS_LOG_LEVEL", "info"),
	}

	var err error
	cfg.RequestTimeout, err = envDuration("ROOMS_REQUEST_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.PollInterval, err = envDuration("ROOMS_POLL_INTERVAL", 500*time.Millisecond)
	collect(err)
	cfg.PollDeadline, err = envDuration("ROOMS_POLL_DEADLINE", 300*time.Second)
	collect(err)
	cfg.OTELInsecure, err = envBool("OTEL_EXPORTER_OTLP_INSECURE", false)
	collect(err)

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and coherent.
func (c Config) Validate() error {
	if c.MarketURL == "" {
		return fmt.Errorf("config: ROOMS_MARKET_URL is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: ROOMS_POLL_INTERVAL must be positive")
	}
	if c.PollDeadline <= c.PollInterval {
		return fmt.Errorf("config: ROOMS_POLL_DEADLINE must exceed the poll interval")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
