// Package config provides YAML-based configuration loading for the dashboard
// client and its command-line tool.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	// Endpoint is the backend WebSocket URL used when discovery is off.
	Endpoint string `mapstructure:"endpoint"`

	// DialTimeout bounds one connection attempt.
	DialTimeout time.Duration `mapstructure:"dial_timeout"`

	// CallTimeout is the window of a single-reply call.
	CallTimeout time.Duration `mapstructure:"call_timeout"`

	Keepalive KeepaliveConfig `mapstructure:"keepalive"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`

	// Server configures the bundled demo backend.
	Server ServerConfig `mapstructure:"server"`
}

type KeepaliveConfig struct {
	// Interval between keepalive probes; 0 disables them.
	Interval time.Duration `mapstructure:"interval"`
	// MaxLifetime closes the connection after this long without any frame.
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// DiscoveryConfig switches endpoint resolution to etcd.
type DiscoveryConfig struct {
	Enable        bool          `mapstructure:"enable"`
	EtcdEndpoints []string      `mapstructure:"etcd_endpoints"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
	ServiceName   string        `mapstructure:"service_name"`
	// Balancer: round_robin, weighted_random or consistent_hash
	Balancer string `mapstructure:"balancer"`
	// ClientID keys the consistent_hash balancer.
	ClientID string `mapstructure:"client_id"`
}

type RateLimitConfig struct {
	Enable bool    `mapstructure:"enable"`
	RPS    float64 `mapstructure:"rps"`
	Burst  int     `mapstructure:"burst"`
}

// RetryConfig retries timed-out and connection-failed single-reply calls.
// MaxRetries 0 disables retries.
type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	Rotation    RotationConfig `mapstructure:"rotation"`
	Development bool           `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Listen string `mapstructure:"listen"` // address of the /metrics endpoint
}

type ServerConfig struct {
	Listen    string `mapstructure:"listen"`
	Advertise string `mapstructure:"advertise"` // URL registered in etcd; defaults to Endpoint
	Path      string `mapstructure:"path"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Endpoint:    "ws://127.0.0.1:7000/rpc",
		DialTimeout: 5 * time.Second,
		CallTimeout: 10 * time.Second,
		Keepalive: KeepaliveConfig{
			Interval:    20 * time.Second,
			MaxLifetime: 90 * time.Second,
		},
		Discovery: DiscoveryConfig{
			EtcdEndpoints: []string{"127.0.0.1:2379"},
			DialTimeout:   5 * time.Second,
			ServiceName:   "dashboard",
			Balancer:      "round_robin",
		},
		RateLimit: RateLimitConfig{RPS: 50, Burst: 20},
		Retry:     RetryConfig{MaxRetries: 0, BaseDelay: 200 * time.Millisecond},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				Filename:   "logs/dashrpc.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Metrics: MetricsConfig{Listen: "127.0.0.1:9464"},
		Server:  ServerConfig{Listen: ":7000", Path: "/rpc"},
	}
}

// Load reads configuration from the provided path (if non-empty), otherwise it
// searches common locations and supports environment overrides.
// Environment variables use the prefix DASHRPC and `.`/`-` are replaced with `_`.
// Example: DASHRPC_CALL_TIMEOUT=30s
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("DASHRPC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("endpoint", cfg.Endpoint)
	v.SetDefault("dial_timeout", cfg.DialTimeout)
	v.SetDefault("call_timeout", cfg.CallTimeout)
	v.SetDefault("keepalive.interval", cfg.Keepalive.Interval)
	v.SetDefault("keepalive.max_lifetime", cfg.Keepalive.MaxLifetime)
	v.SetDefault("discovery.enable", cfg.Discovery.Enable)
	v.SetDefault("discovery.etcd_endpoints", cfg.Discovery.EtcdEndpoints)
	v.SetDefault("discovery.dial_timeout", cfg.Discovery.DialTimeout)
	v.SetDefault("discovery.service_name", cfg.Discovery.ServiceName)
	v.SetDefault("discovery.balancer", cfg.Discovery.Balancer)
	v.SetDefault("discovery.client_id", cfg.Discovery.ClientID)
	v.SetDefault("rate_limit.enable", cfg.RateLimit.Enable)
	v.SetDefault("rate_limit.rps", cfg.RateLimit.RPS)
	v.SetDefault("rate_limit.burst", cfg.RateLimit.Burst)
	v.SetDefault("retry.max_retries", cfg.Retry.MaxRetries)
	v.SetDefault("retry.base_delay", cfg.Retry.BaseDelay)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("metrics.enable", cfg.Metrics.Enable)
	v.SetDefault("metrics.listen", cfg.Metrics.Listen)
	v.SetDefault("server.listen", cfg.Server.Listen)
	v.SetDefault("server.advertise", cfg.Server.Advertise)
	v.SetDefault("server.path", cfg.Server.Path)

	if path == "" {
		if envPath := os.Getenv("DASHRPC_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("dashrpc")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".dashrpc"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unusable values and fills in the ones that may be left empty.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}

	if !c.Discovery.Enable && !strings.HasPrefix(c.Endpoint, "ws://") && !strings.HasPrefix(c.Endpoint, "wss://") {
		return fmt.Errorf("invalid endpoint: %q (want ws:// or wss:// URL)", c.Endpoint)
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("invalid dial_timeout: %s", c.DialTimeout)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("invalid call_timeout: %s", c.CallTimeout)
	}
	if c.Keepalive.Interval < 0 || c.Keepalive.MaxLifetime < 0 {
		return errors.New("keepalive durations must not be negative")
	}
	if c.Keepalive.Interval > 0 && c.Keepalive.MaxLifetime > 0 && c.Keepalive.MaxLifetime <= c.Keepalive.Interval {
		return fmt.Errorf("keepalive.max_lifetime (%s) must exceed keepalive.interval (%s)", c.Keepalive.MaxLifetime, c.Keepalive.Interval)
	}

	if c.Discovery.Enable {
		if len(c.Discovery.EtcdEndpoints) == 0 {
			return errors.New("discovery.etcd_endpoints is empty")
		}
		if strings.TrimSpace(c.Discovery.ServiceName) == "" {
			return errors.New("discovery.service_name is empty")
		}
	}
	c.Discovery.Balancer = strings.ToLower(strings.TrimSpace(c.Discovery.Balancer))
	switch c.Discovery.Balancer {
	case "", "round_robin", "weighted_random", "consistent_hash":
	default:
		return fmt.Errorf("invalid discovery.balancer: %q", c.Discovery.Balancer)
	}

	if c.RateLimit.Enable && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("invalid rate_limit: rps=%v burst=%d", c.RateLimit.RPS, c.RateLimit.Burst)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("invalid retry.max_retries: %d", c.Retry.MaxRetries)
	}
	if c.Retry.MaxRetries > 0 && c.Retry.BaseDelay <= 0 {
		return fmt.Errorf("invalid retry.base_delay: %s", c.Retry.BaseDelay)
	}

	if c.Server.Path == "" {
		c.Server.Path = "/rpc"
	}
	if c.Server.Advertise == "" {
		c.Server.Advertise = c.Endpoint
	}
	return nil
}
