package config

import "github.com/caarlos0/env/v6"

type Config struct {
	// Port the HTTP server listens on
	Port string `env:"PORT" envDefault:"5250"`

	// Path to the SQLite database file
	DatabasePath string `env:"DATABASE_PATH" envDefault:"database/catalog.db"`

	// Redis address for the server-side query cache; empty disables caching
	RedisAddr string `env:"REDIS_ADDR" envDefault:""`

	// Query cache TTL in seconds
	CacheTTL int `env:"CACHE_TTL" envDefault:"600"`

	Query struct {
		// Default page size when the caller omits limit
		DefaultLimit int `env:"QUERY_DEFAULT_LIMIT" envDefault:"12"`

		// Hard ceiling on page size to prevent unbounded scans
		MaxLimit int `env:"QUERY_MAX_LIMIT" envDefault:"100"`
	}

	Hub struct {
		// Per-listener outbound buffer; a listener that falls this far
		// behind is dropped rather than allowed to block fan-out
		SendBuffer int `env:"HUB_SEND_BUFFER" envDefault:"64"`

		// Write deadline for a single outbound frame (in seconds)
		WriteTimeout int `env:"HUB_WRITE_TIMEOUT" envDefault:"10"`
	}

	Listener struct {
		// Fixed delay between reconnect attempts (in seconds)
		ReconnectDelay int `env:"LISTENER_RECONNECT_DELAY" envDefault:"3"`
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
