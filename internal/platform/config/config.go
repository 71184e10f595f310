package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv     string `env:"APP_ENV" default:"development"`
	Port       string `env:"PORT" default:"8080"`
	PublicHost string `env:"PUBLIC_HOST" default:"localhost"`
	LogLevel   string `env:"LOG_LEVEL" default:"info"`
	LogFormat  string `env:"LOG_FORMAT" default:"text"`

	// Comma-separated list of browser origins accepted outside development.
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`

	MaxConnections      int     `env:"MAX_CONNECTIONS" default:"1000"`
	MaxConnectionsPerIP int     `env:"MAX_CONNECTIONS_PER_IP" default:"20"`
	ConnectionRate      float64 `env:"CONNECTION_RATE" default:"10"`
	ConnectionBurst     int     `env:"CONNECTION_BURST" default:"20"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.AppEnv {
	case "development", "production":
	default:
		return fmt.Errorf("APP_ENV must be development or production, got %q", cfg.AppEnv)
	}

	if cfg.Port == "" {
		return errors.New("PORT is required")
	}

	positive := map[string]float64{
		"MAX_CONNECTIONS":        float64(cfg.MaxConnections),
		"MAX_CONNECTIONS_PER_IP": float64(cfg.MaxConnectionsPerIP),
		"CONNECTION_RATE":        cfg.ConnectionRate,
		"CONNECTION_BURST":       float64(cfg.ConnectionBurst),
		"SHUTDOWN_TIMEOUT":       cfg.ShutdownTimeout.Seconds(),
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	return nil
}

// IsDevelopment reports whether the server runs with relaxed origin checks.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Origins returns ALLOWED_ORIGINS split on commas, blanks dropped.
func (c *Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// ListenAddr is the address the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return ":" + c.Port
}

// WebSocketURL is the endpoint advertised in the readiness message.
func (c *Config) WebSocketURL() string {
	return "ws://" + c.PublicHost + ":" + c.Port
}
