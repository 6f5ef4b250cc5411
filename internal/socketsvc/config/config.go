package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port      string `env:"SOCKET_SERVICE_PORT" envDefault:"8091"`
	RateLimit int    `env:"RATE_LIMIT" envDefault:"120"`
	JWTSecret string `env:"JWT_SECRET_KEY,notEmpty"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
