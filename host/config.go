package main

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the host runtime configuration, loaded from the environment.
type Config struct {
	// VsockPort is the vsock port the host listens on.
	VsockPort uint32 `env:"HOST_VSOCK_PORT" envDefault:"5000"`

	// MaxWorkers bounds the number of concurrently handled connections.
	MaxWorkers int `env:"HOST_MAX_WORKERS,required"`

	// DBPath is the SQLite database holding auction records and balances.
	DBPath string `env:"HOST_DB_PATH" envDefault:"auctions.db"`
}

// LoadConfig parses the host configuration from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse host config: %w", err)
	}
	if cfg.MaxWorkers <= 0 {
		return Config{}, fmt.Errorf("HOST_MAX_WORKERS must be positive, got %d", cfg.MaxWorkers)
	}
	return cfg, nil
}
