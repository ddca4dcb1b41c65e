// Package config starts from spec.md defaults, loads a YAML file over
// them, then overlays environment variables, following the layering tinyrange-cc's site_config.go uses for its
// YAML settings file (load-if-present, never fail on a missing file) and
// the original_source RudpServerConfig's uppercase-env-var naming
// (MAX_PACKET_SIZE, CONNECTION_TIMEOUT_SECS, SEQUENCE_WINDOW_SIZE,
// GAME_TICK_RATE, ...), which this package's env var names mirror so an
// operator migrating from the reference implementation keeps the same
// deployment knobs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"rudpcore/internal/connstate"
	"rudpcore/internal/wire"
)

// Config is the complete server configuration surface.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	MaxConnections int `yaml:"max_connections"`
	MaxPacketSize  int `yaml:"max_packet_size"`

	SequenceWindowSize int           `yaml:"sequence_window_size"`
	MaxRetries         int           `yaml:"max_retries"`
	KeepAliveInterval  time.Duration `yaml:"keepalive_interval"`
	ConnectionTimeout  time.Duration `yaml:"connection_timeout"`
	EnableCongestionControl bool     `yaml:"enable_congestion_control"`

	GameTickRate int `yaml:"game_tick_rate"`

	ConnectRateLimit int `yaml:"connect_rate_limit"`
	ConnectBurst     int `yaml:"connect_burst"`

	AdminAddr     string `yaml:"admin_addr"`
	EnableMetrics bool   `yaml:"enable_metrics"`

	DatabasePath string `yaml:"database_path"`

	LogLevel string `yaml:"log_level"`
}

// Default returns a Config populated with spec.md's defaults, the same
// values internal/connstate.NewConfig derives its own defaults from.
func Default() Config {
	cc := connstate.NewConfig()
	return Config{
		Host: "0.0.0.0",
		Port: 9420,

		MaxConnections: 2000,
		MaxPacketSize:  1400,

		SequenceWindowSize:      cc.SequenceWindowSize,
		MaxRetries:              cc.MaxRetries,
		KeepAliveInterval:       cc.KeepAliveInterval,
		ConnectionTimeout:       cc.ConnectionTimeout,
		EnableCongestionControl: cc.EnableCongestionCtrl,

		GameTickRate: 60,

		ConnectRateLimit: 500,
		ConnectBurst:     100,

		AdminAddr:     ":9421",
		EnableMetrics: true,

		DatabasePath: "",

		LogLevel: "info",
	}
}

// Load reads path (if present), overlays environment variables (RUDP_HOST
// and RUDP_PORT, unprefixed upper-case names for the rest), and returns
// the resolved Config. A missing file is not an
// error: Default() is the starting point either way.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	overlayEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func overlayEnv(cfg *Config) {
	if v, ok := os.LookupEnv("RUDP_HOST"); ok {
		cfg.Host = v
	}
	if v, ok := envInt("RUDP_PORT"); ok {
		cfg.Port = v
	}
	if v, ok := envInt("MAX_CONNECTIONS"); ok {
		cfg.MaxConnections = v
	}
	if v, ok := envInt("MAX_PACKET_SIZE"); ok {
		cfg.MaxPacketSize = v
	}
	if v, ok := envInt("SEQUENCE_WINDOW_SIZE"); ok {
		cfg.SequenceWindowSize = v
	}
	if v, ok := envInt("MAX_RETRANSMISSIONS"); ok {
		cfg.MaxRetries = v
	}
	if v, ok := envInt("CONNECTION_TIMEOUT_SECS"); ok {
		cfg.ConnectionTimeout = time.Duration(v) * time.Second
	}
	if v, ok := envInt("KEEPALIVE_INTERVAL_SECS"); ok {
		cfg.KeepAliveInterval = time.Duration(v) * time.Second
	}
	if v, ok := envInt("GAME_TICK_RATE"); ok {
		cfg.GameTickRate = v
	}
	if v, ok := envInt("CONNECT_RATE_LIMIT"); ok {
		cfg.ConnectRateLimit = v
	}
	if v, ok := envInt("CONNECT_BURST"); ok {
		cfg.ConnectBurst = v
	}
	if v, ok := os.LookupEnv("DATABASE_PATH"); ok {
		cfg.DatabasePath = v
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
}

func envInt(key string) (int, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate rejects configurations that would make the server unable to
// start or that violate the protocol's own constraints.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("config: max_connections must be positive")
	}
	if c.MaxPacketSize <= 0 {
		return fmt.Errorf("config: max_packet_size must be positive")
	}
	if c.MaxPacketSize > wire.MaxDatagramSize {
		return fmt.Errorf("config: max_packet_size %d exceeds %d", c.MaxPacketSize, wire.MaxDatagramSize)
	}
	if c.SequenceWindowSize <= 0 {
		return fmt.Errorf("config: sequence_window_size must be positive")
	}
	if c.GameTickRate < 1 || c.GameTickRate > 120 {
		return fmt.Errorf("config: game_tick_rate %d outside [1,120]", c.GameTickRate)
	}
	return nil
}

// ConnstateConfig projects the reliability-relevant fields into a
// connstate.Config for constructing new connections.
func (c Config) ConnstateConfig() connstate.Config {
	cc := connstate.NewConfig()
	cc.SequenceWindowSize = c.SequenceWindowSize
	cc.MaxRetries = c.MaxRetries
	cc.KeepAliveInterval = c.KeepAliveInterval
	cc.ConnectionTimeout = c.ConnectionTimeout
	cc.EnableCongestionCtrl = c.EnableCongestionControl
	return cc
}
