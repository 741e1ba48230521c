// Package config 提供 httpcore 的统一配置
//
// 主 Config 结构体嵌入所有子配置，每个子配置在独立文件中定义：
//   - Client: 连接池、重试、空闲超时
//   - Transport: 拨号网络（tcp/quic）、连接超时、拨号限速
//   - HTTP2: 帧协议参数
//   - Cookie: Cookie 存储（请求规范化的数据来源）
//   - Metrics: Prometheus 指标
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.Client.Protocol = config.ProtocolH2C
//	cfg.Client.IdleTimeout = config.Duration(30 * time.Second)
//
//	// 从 JSON 加载
//	cfg, err := config.FromJSON(data)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrNilConfig 配置为空
var ErrNilConfig = errors.New("config is nil")

// Config 是 httpcore 的完整配置结构
type Config struct {
	// Client 客户端连接池与重试配置
	Client ClientConfig `json:"client"`

	// Transport 传输层配置
	Transport TransportConfig `json:"transport"`

	// HTTP2 多路复用帧协议配置
	HTTP2 HTTP2Config `json:"http2"`

	// Cookie Cookie 存储配置
	Cookie CookieConfig `json:"cookie"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Client:    DefaultClientConfig(),
		Transport: DefaultTransportConfig(),
		HTTP2:     DefaultHTTP2Config(),
		Cookie:    DefaultCookieConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// Validate 验证所有子配置
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if err := c.Client.Validate(); err != nil {
		return fmt.Errorf("client: %w", err)
	}
	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	if err := c.HTTP2.Validate(); err != nil {
		return fmt.Errorf("http2: %w", err)
	}
	if err := c.Cookie.Validate(); err != nil {
		return fmt.Errorf("cookie: %w", err)
	}
	return c.Metrics.Validate()
}

// FromJSON 从 JSON 解析配置
//
// 未出现的字段保留默认值。
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile 从文件加载 JSON 配置
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return FromJSON(data)
}

// ToJSON 序列化配置
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// ════════════════════════════════════════════════════════════════════════════
// Duration
// ════════════════════════════════════════════════════════════════════════════

// Duration 是支持 JSON 字符串的 time.Duration 包装
//
// 支持 "30s"、"1m30s" 这类字符串，也兼容纳秒整数。
type Duration time.Duration

// UnmarshalJSON 实现 json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration string %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}

	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*d = Duration(n)
		return nil
	}

	return fmt.Errorf("duration must be a string (e.g., \"30s\") or number (nanoseconds)")
}

// MarshalJSON 输出人类可读的字符串
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Duration 返回底层 time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String 返回字符串表示
func (d Duration) String() string {
	return time.Duration(d).String()
}
