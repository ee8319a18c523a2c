// Package config holds the settings shared by the relay backend and the chat client.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ServerAddr    = ":8000"
	APIURL        = "http://localhost:8000"
	WebSocketURL  = "ws://localhost:8000/chat/ws"
	NatsURL       = "nats://127.0.0.1:4222"
	StreamName    = "CHAT_MESSAGES"
	SubjectPrefix = "chat.user"

	// Websocket tuning
	MaxMessageSize = 8 * 1024
	WriteWait      = 10 * time.Second
	PongWait       = 60 * time.Second
	PingPeriod     = (PongWait * 9) / 10

	RequestTimeout = 10 * time.Second
)

// Config is the full application configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Client    Client    `yaml:"client"`
	Transport Transport `yaml:"transport"`
	NATS      NATS      `yaml:"nats"`
	Store     Store     `yaml:"store"`
	Logging   Logging   `yaml:"logging"`
	Seed      Seed      `yaml:"seed"`
}

// Server configures the relay backend.
type Server struct {
	Addr   string `yaml:"addr"`
	Broker string `yaml:"broker"` // local, nats
}

// Client configures how the chat client reaches the backend.
type Client struct {
	APIURL         string        `yaml:"api_url"`
	WebSocketURL   string        `yaml:"websocket_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Reconnect      Reconnect     `yaml:"reconnect"`
}

// Reconnect configures automatic redial of a dropped live channel. Zero attempts disables it.
type Reconnect struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// Transport holds websocket timing limits.
type Transport struct {
	MaxMessageSize int64         `yaml:"max_message_size"`
	WriteWait      time.Duration `yaml:"write_wait"`
	PongWait       time.Duration `yaml:"pong_wait"`
	PingPeriod     time.Duration `yaml:"ping_period"`
}

// NATS configures the JetStream broker.
type NATS struct {
	URL           string        `yaml:"url"`
	StreamName    string        `yaml:"stream_name"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	MaxAge        time.Duration `yaml:"max_age"`
}

// Store selects the relay persistence.
type Store struct {
	Driver string `yaml:"driver"` // memory, sqlite
	DSN    string `yaml:"dsn"`
}

// Logging configures the zap logger.
type Logging struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Seed lists users and cars loaded into an empty store at startup.
type Seed struct {
	Users []SeedUser `yaml:"users"`
	Cars  []SeedCar  `yaml:"cars"`
}

type SeedUser struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
}

type SeedCar struct {
	OwnerEmail  string  `yaml:"owner_email"`
	Name        string  `yaml:"name"`
	PricePerDay float64 `yaml:"price_per_day"`
	Location    string  `yaml:"location"`
	CarType     string  `yaml:"car_type"`
	Description string  `yaml:"description"`
	ImageURL    string  `yaml:"image_url"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: Server{Addr: ServerAddr, Broker: "local"},
		Client: Client{
			APIURL:         APIURL,
			WebSocketURL:   WebSocketURL,
			RequestTimeout: RequestTimeout,
		},
		Transport: Transport{
			MaxMessageSize: MaxMessageSize,
			WriteWait:      WriteWait,
			PongWait:       PongWait,
			PingPeriod:     PingPeriod,
		},
		NATS: NATS{
			URL:           NatsURL,
			StreamName:    StreamName,
			SubjectPrefix: SubjectPrefix,
			MaxAge:        24 * time.Hour,
		},
		Store:   Store{Driver: "memory"},
		Logging: Logging{Level: "info", Format: "console"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (optional; a
// missing file is not an error), a .env file in the working directory, and RENTCHAT_*
// environment variables, in that order of precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"RENTCHAT_ADDR":          &c.Server.Addr,
		"RENTCHAT_BROKER":        &c.Server.Broker,
		"RENTCHAT_API_URL":       &c.Client.APIURL,
		"RENTCHAT_WEBSOCKET_URL": &c.Client.WebSocketURL,
		"RENTCHAT_NATS_URL":      &c.NATS.URL,
		"RENTCHAT_STORE_DRIVER":  &c.Store.Driver,
		"RENTCHAT_STORE_DSN":     &c.Store.DSN,
		"RENTCHAT_LOG_LEVEL":     &c.Logging.Level,
		"RENTCHAT_LOG_FORMAT":    &c.Logging.Format,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := os.LookupEnv("RENTCHAT_RECONNECT_ATTEMPTS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RENTCHAT_RECONNECT_ATTEMPTS: %w", err)
		}
		c.Client.Reconnect.MaxAttempts = n
	}
	return nil
}

// Validate checks option values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Server.Broker {
	case "local", "nats":
	default:
		return fmt.Errorf("server.broker: unknown broker %q", c.Server.Broker)
	}
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.DSN == "" {
			return errors.New("store.dsn: required for sqlite")
		}
	default:
		return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}
	if c.Transport.PingPeriod >= c.Transport.PongWait {
		return errors.New("transport.ping_period must be shorter than transport.pong_wait")
	}
	if c.Client.Reconnect.MaxAttempts < 0 {
		return errors.New("client.reconnect.max_attempts must not be negative")
	}
	return nil
}
