// Package config loads server configuration from the environment, with an
// optional TOML file underneath. Environment variables win over the file;
// command-line flags are applied on top by the caller.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Host              string        // HIVEWIRE_HOST (default "127.0.0.1")
	Port              int           // HIVEWIRE_PORT, streaming listener (default 7690; 0 = OS-assigned)
	HTTPPort          int           // HIVEWIRE_HTTP_PORT, one-shot/admin listener (default Port+1)
	MaxConnections    int           // HIVEWIRE_MAX_CONNECTIONS (default 64; 0 = unlimited)
	HeartbeatInterval time.Duration // HIVEWIRE_HEARTBEAT_INTERVAL (default 30s; timeout = 2x)
	ReplayBufferSize  int           // HIVEWIRE_REPLAY_BUFFER (default 1000)
	NATSURL           string        // HIVEWIRE_NATS_URL (optional, empty = ingress bridge disabled)
	NATSSubject       string        // HIVEWIRE_NATS_SUBJECT (default "hivewire.ingest")
	LogLevel          string        // HIVEWIRE_LOG_LEVEL (default "info")
}

// fileConfig mirrors Config for the optional TOML file. Durations are
// strings in Go duration syntax.
type fileConfig struct {
	Host              string `toml:"host"`
	Port              int    `toml:"port"`
	HTTPPort          int    `toml:"http_port"`
	MaxConnections    int    `toml:"max_connections"`
	HeartbeatInterval string `toml:"heartbeat_interval"`
	ReplayBufferSize  int    `toml:"replay_buffer"`
	NATSURL           string `toml:"nats_url"`
	NATSSubject       string `toml:"nats_subject"`
	LogLevel          string `toml:"log_level"`
}

// Load builds the configuration from defaults, then the TOML file at path
// (when non-empty), then environment variables.
func Load(path string) (*Config, error) {
	c := &Config{
		Host:              "127.0.0.1",
		Port:              7690,
		HTTPPort:          -1, // resolved below after overrides
		MaxConnections:    64,
		HeartbeatInterval: 30 * time.Second,
		ReplayBufferSize:  1000,
		NATSSubject:       "hivewire.ingest",
		LogLevel:          "info",
	}

	if path != "" {
		if err := c.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}

	if c.HTTPPort < 0 {
		if c.Port == 0 {
			c.HTTPPort = 0
		} else {
			c.HTTPPort = c.Port + 1
		}
	}

	if c.HeartbeatInterval <= 0 {
		return nil, fmt.Errorf("heartbeat interval must be positive, got %v", c.HeartbeatInterval)
	}
	if c.ReplayBufferSize < 1 {
		return nil, fmt.Errorf("replay buffer size must be at least 1, got %d", c.ReplayBufferSize)
	}
	if c.MaxConnections < 0 {
		return nil, fmt.Errorf("max connections must not be negative, got %d", c.MaxConnections)
	}
	return c, nil
}

func (c *Config) applyFile(path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	if fc.Host != "" {
		c.Host = fc.Host
	}
	if fc.Port != 0 {
		c.Port = fc.Port
	}
	if fc.HTTPPort != 0 {
		c.HTTPPort = fc.HTTPPort
	}
	if fc.MaxConnections != 0 {
		c.MaxConnections = fc.MaxConnections
	}
	if fc.HeartbeatInterval != "" {
		d, err := time.ParseDuration(fc.HeartbeatInterval)
		if err != nil {
			return fmt.Errorf("config file %s: heartbeat_interval: %w", path, err)
		}
		c.HeartbeatInterval = d
	}
	if fc.ReplayBufferSize != 0 {
		c.ReplayBufferSize = fc.ReplayBufferSize
	}
	if fc.NATSURL != "" {
		c.NATSURL = fc.NATSURL
	}
	if fc.NATSSubject != "" {
		c.NATSSubject = fc.NATSSubject
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("HIVEWIRE_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("HIVEWIRE_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HIVEWIRE_PORT: %w", err)
		}
		c.Port = n
	}
	if v := os.Getenv("HIVEWIRE_HTTP_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HIVEWIRE_HTTP_PORT: %w", err)
		}
		c.HTTPPort = n
	}
	if v := os.Getenv("HIVEWIRE_MAX_CONNECTIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HIVEWIRE_MAX_CONNECTIONS: %w", err)
		}
		c.MaxConnections = n
	}
	if v := os.Getenv("HIVEWIRE_HEARTBEAT_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("HIVEWIRE_HEARTBEAT_INTERVAL: %w", err)
		}
		c.HeartbeatInterval = d
	}
	if v := os.Getenv("HIVEWIRE_REPLAY_BUFFER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HIVEWIRE_REPLAY_BUFFER: %w", err)
		}
		c.ReplayBufferSize = n
	}
	if v := os.Getenv("HIVEWIRE_NATS_URL"); v != "" {
		c.NATSURL = v
	}
	if v := os.Getenv("HIVEWIRE_NATS_SUBJECT"); v != "" {
		c.NATSSubject = v
	}
	if v := os.Getenv("HIVEWIRE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

// StreamAddr returns the streaming listener address.
func (c *Config) StreamAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// HTTPAddr returns the one-shot ingress and admin listener address.
func (c *Config) HTTPAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.HTTPPort))
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
