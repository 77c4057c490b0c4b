package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Build metadata, overridden via -ldflags "-X".
var (
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)

// DefaultPath is the config file read when -config is not given.
const DefaultPath = "slot-server.yaml"

// PortEnv overrides the TCP port when set.
const PortEnv = "SLOT_SERVER_PORT"

type Config struct {
	ListenAddr     string `yaml:"listen_address"`
	Port           int    `yaml:"port"`
	MaxClients     int    `yaml:"max_clients"`
	ReadBufferSize int    `yaml:"read_buffer_size"`

	AdminAddr string `yaml:"admin_address"` // empty disables the admin API

	RedisAddr       string `yaml:"redis_address"` // empty disables event publishing
	RedisDB         int    `yaml:"redis_db"`
	EventsChannel   string `yaml:"events_channel"`
	EventsQueueSize int    `yaml:"events_queue_size"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		ListenAddr:      "127.0.0.1",
		Port:            3000,
		MaxClients:      100,
		ReadBufferSize:  256,
		AdminAddr:       "127.0.0.1:3080",
		EventsChannel:   "slot-server:events",
		EventsQueueSize: 1024,
	}
}

// Load reads the YAML file at path on top of Default().
// A missing file is not an error; the defaults are returned as-is.
// The PortEnv variable, when set, takes precedence over the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if v := os.Getenv(PortEnv); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", PortEnv, err)
		}
		cfg.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be in 1..65535", c.Port)
	}
	if c.MaxClients <= 0 {
		return fmt.Errorf("invalid max_clients %d: must be positive", c.MaxClients)
	}
	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("invalid read_buffer_size %d: must be positive", c.ReadBufferSize)
	}
	if c.RedisAddr != "" && c.EventsChannel == "" {
		return errors.New("events_channel is required when redis_address is set")
	}
	if c.EventsQueueSize <= 0 {
		return fmt.Errorf("invalid events_queue_size %d: must be positive", c.EventsQueueSize)
	}
	return nil
}

// TCPAddr is the host:port the session server binds.
func (c *Config) TCPAddr() string {
	return net.JoinHostPort(c.ListenAddr, strconv.Itoa(c.Port))
}
