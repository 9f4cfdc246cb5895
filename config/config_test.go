package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dashrpc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "ws://127.0.0.1:7000/rpc", cfg.Endpoint)
	assert.Equal(t, 10*time.Second, cfg.CallTimeout)
	assert.Equal(t, cfg.Endpoint, cfg.Server.Advertise)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
endpoint: ws://backend.internal:7000/rpc
call_timeout: 3s
keepalive:
  interval: 5s
  max_lifetime: 30s
discovery:
  enable: true
  etcd_endpoints: [10.0.0.1:2379, 10.0.0.2:2379]
  balancer: Consistent_Hash
  client_id: desk-7
rate_limit:
  enable: true
  rps: 5
  burst: 2
log:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://backend.internal:7000/rpc", cfg.Endpoint)
	assert.Equal(t, 3*time.Second, cfg.CallTimeout)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout, "unset keys keep defaults")
	assert.Equal(t, 30*time.Second, cfg.Keepalive.MaxLifetime)
	assert.True(t, cfg.Discovery.Enable)
	assert.Equal(t, []string{"10.0.0.1:2379", "10.0.0.2:2379"}, cfg.Discovery.EtcdEndpoints)
	assert.Equal(t, "consistent_hash", cfg.Discovery.Balancer)
	assert.Equal(t, "dashboard", cfg.Discovery.ServiceName)
	assert.Equal(t, 2, cfg.RateLimit.Burst)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DASHRPC_CALL_TIMEOUT", "45s")
	t.Setenv("DASHRPC_LOG_LEVEL", "warn")
	t.Setenv("DASHRPC_ENDPOINT", "wss://dash.example.com/rpc")

	cfg, err := Load(writeConfig(t, "call_timeout: 3s\n"))
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.CallTimeout)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "wss://dash.example.com/rpc", cfg.Endpoint)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "an explicit path must exist")

	_, err = Load(writeConfig(t, "log: [not, a, map"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"log level":       func(c *Config) { c.Log.Level = "loud" },
		"endpoint scheme": func(c *Config) { c.Endpoint = "http://127.0.0.1:7000/rpc" },
		"call timeout":    func(c *Config) { c.CallTimeout = 0 },
		"keepalive":       func(c *Config) { c.Keepalive.MaxLifetime = c.Keepalive.Interval },
		"balancer":        func(c *Config) { c.Discovery.Balancer = "random" },
		"rate limit":      func(c *Config) { c.RateLimit = RateLimitConfig{Enable: true, RPS: 0, Burst: 1} },
		"retry":           func(c *Config) { c.Retry = RetryConfig{MaxRetries: 2} },
		"etcd endpoints": func(c *Config) {
			c.Discovery.Enable = true
			c.Discovery.EtcdEndpoints = nil
		},
	}
	for name, mutate := range cases {
		mutate := mutate
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
