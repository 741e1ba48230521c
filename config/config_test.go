package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewConfig 测试默认配置
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)
	assert.NoError(t, cfg.Validate())

	assert.Equal(t, ProtocolHTTP1, cfg.Client.Protocol)
	assert.Equal(t, 1, cfg.Client.MaxRetries)
	assert.Equal(t, NetworkTCP, cfg.Transport.Network)
	assert.True(t, cfg.Cookie.Enabled)
}

func TestConfig_ValidateNil(t *testing.T) {
	var cfg *Config
	assert.ErrorIs(t, cfg.Validate(), ErrNilConfig)
}

func TestClientConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ClientConfig)
	}{
		{"UnknownProtocol", func(c *ClientConfig) { c.Protocol = "spdy" }},
		{"NegativeIdle", func(c *ClientConfig) { c.IdleTimeout = -1 }},
		{"ZeroPool", func(c *ClientConfig) { c.MaxConnectionsPerDestination = 0 }},
		{"NegativeRetries", func(c *ClientConfig) { c.MaxRetries = -1 }},
		{"ZeroQueue", func(c *ClientConfig) { c.MaxQueuedPerDestination = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultClientConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("ZeroRetriesAllowed", func(t *testing.T) {
		cfg := DefaultClientConfig()
		cfg.MaxRetries = 0
		assert.NoError(t, cfg.Validate())
	})
}

func TestTransportConfig_Validate(t *testing.T) {
	cfg := DefaultTransportConfig()
	assert.NoError(t, cfg.Validate())

	cfg.DialRate = 5
	cfg.DialBurst = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultTransportConfig()
	cfg.Network = "udp"
	assert.Error(t, cfg.Validate())

	cfg = DefaultTransportConfig()
	cfg.ConnectTimeout = 0
	assert.Error(t, cfg.Validate())
}

func TestHTTP2Config_Validate(t *testing.T) {
	cfg := DefaultHTTP2Config()
	assert.NoError(t, cfg.Validate())

	cfg.MaxFrameSize = 1024
	assert.Error(t, cfg.Validate())
}

func TestMetricsConfig_Validate(t *testing.T) {
	cfg := DefaultMetricsConfig()
	cfg.Enabled = true
	assert.NoError(t, cfg.Validate())

	cfg.Namespace = "bad-name"
	assert.Error(t, cfg.Validate())
}

func TestFromJSON(t *testing.T) {
	data := []byte(`{
		"client": {"protocol": "h2c", "idle_timeout": "1s", "max_retries": 2},
		"transport": {"connect_timeout": 2000000000}
	}`)

	cfg, err := FromJSON(data)
	require.NoError(t, err)

	assert.Equal(t, ProtocolH2C, cfg.Client.Protocol)
	assert.Equal(t, time.Second, cfg.Client.IdleTimeout.Duration())
	assert.Equal(t, 2, cfg.Client.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Transport.ConnectTimeout.Duration())
	// 未出现的字段保留默认值
	assert.Equal(t, 64, cfg.Client.MaxConnectionsPerDestination)
}

func TestFromJSON_Invalid(t *testing.T) {
	_, err := FromJSON([]byte(`{"client": {"idle_timeout": "soon"}}`))
	assert.Error(t, err)

	_, err = FromJSON([]byte(`{"client": {"protocol": "gopher"}}`))
	assert.Error(t, err)
}

func TestLoadFileRoundTrip(t *testing.T) {
	cfg := NewConfig()
	cfg.Client.IdleTimeout = Duration(1500 * time.Millisecond)

	data, err := cfg.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"idle_timeout": "1.5s"`)

	path := filepath.Join(t.TempDir(), "httpcore.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
