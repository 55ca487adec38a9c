// Package config loads client and server settings from the environment,
// optionally seeded from a .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/gameday/event-chat/internal/poller"
)

// Client configures the eventchat terminal client.
type Client struct {
	BaseURL           string        `env:"BASE_URL" envDefault:"http://localhost:8080"`
	Token             string        `env:"TOKEN"`
	UserName          string        `env:"USER_NAME"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	RequestsPerSecond float64       `env:"REQUESTS_PER_SECOND" envDefault:"5"`
	Burst             int           `env:"BURST" envDefault:"5"`
	PageLimit         int           `env:"PAGE_LIMIT" envDefault:"50"`
	MaxMessages       int           `env:"MAX_MESSAGES" envDefault:"200"`
	Poll              Poll          `envPrefix:"POLL_"`
	Log               Log           `envPrefix:"LOG_"`
}

// Poll mirrors poller.Config.
type Poll struct {
	MinInterval      time.Duration `env:"MIN_INTERVAL" envDefault:"1s"`
	StartInterval    time.Duration `env:"START_INTERVAL" envDefault:"3s"`
	MaxInterval      time.Duration `env:"MAX_INTERVAL" envDefault:"30s"`
	InactiveInterval time.Duration `env:"INACTIVE_INTERVAL" envDefault:"60s"`
}

// Poller converts to the scheduler's configuration.
func (p Poll) Poller() poller.Config {
	return poller.Config{
		MinInterval:      p.MinInterval,
		StartInterval:    p.StartInterval,
		MaxInterval:      p.MaxInterval,
		InactiveInterval: p.InactiveInterval,
	}
}

// Server configures the chatserver binary. Empty DatabaseURL, RedisAddr or
// NATSURL select the in-memory store, no rate limiting and no event feed.
type Server struct {
	ListenAddr      string        `env:"LISTEN_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	AutoMigrate     bool          `env:"AUTO_MIGRATE" envDefault:"true"`
	RedisAddr       string        `env:"REDIS_ADDR"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`
	SendLimit       int           `env:"SEND_LIMIT" envDefault:"5"`
	SendWindow      time.Duration `env:"SEND_WINDOW" envDefault:"10s"`
	NATSURL         string        `env:"NATS_URL"`
	Log             Log           `envPrefix:"LOG_"`
}

// Log selects logger level and encoding.
type Log struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"` // json | console
}

const (
	ClientPrefix = "EVENTCHAT_"
	ServerPrefix = "CHATSERVER_"
)

// LoadClient reads EVENTCHAT_* variables.
func LoadClient() (*Client, error) {
	cfg := &Client{}
	if err := load(cfg, ClientPrefix); err != nil {
		return nil, err
	}
	if err := cfg.Poll.Poller().Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.PageLimit < 1 || cfg.PageLimit > 200 {
		return nil, fmt.Errorf("config: %sPAGE_LIMIT must be between 1 and 200", ClientPrefix)
	}
	return cfg, nil
}

// LoadServer reads CHATSERVER_* variables.
func LoadServer() (*Server, error) {
	cfg := &Server{}
	if err := load(cfg, ServerPrefix); err != nil {
		return nil, err
	}
	if cfg.SendLimit < 1 || cfg.SendWindow <= 0 {
		return nil, fmt.Errorf("config: %sSEND_LIMIT and %sSEND_WINDOW must be positive", ServerPrefix, ServerPrefix)
	}
	return cfg, nil
}

func load(cfg any, prefix string) error {
	// A missing .env is normal; variables may come from the process.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: load .env: %w", err)
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: prefix}); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
