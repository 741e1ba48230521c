package config

import (
	"errors"
	"time"
)

// Network 拨号网络
type Network string

const (
	// NetworkTCP 基于 TCP 的端点
	NetworkTCP Network = "tcp"

	// NetworkQUIC 基于 QUIC 的端点（每个连接一条双向流）
	NetworkQUIC Network = "quic"
)

// TransportConfig 传输层配置
type TransportConfig struct {
	// Network 拨号网络
	Network Network `json:"network"`

	// ConnectTimeout 建立连接超时
	ConnectTimeout Duration `json:"connect_timeout"`

	// KeepAlive TCP keep-alive 周期，0 使用系统默认
	KeepAlive Duration `json:"keep_alive,omitempty"`

	// DialRate 每个目标每秒允许的拨号数，0 表示不限制
	DialRate float64 `json:"dial_rate,omitempty"`

	// DialBurst 拨号突发量
	DialBurst int `json:"dial_burst,omitempty"`

	// InsecureSkipVerify QUIC 拨号时跳过证书校验（仅测试环境）
	InsecureSkipVerify bool `json:"insecure_skip_verify,omitempty"`
}

// DefaultTransportConfig 返回默认传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Network:        NetworkTCP,
		ConnectTimeout: Duration(15 * time.Second),
		KeepAlive:      Duration(30 * time.Second),
		DialBurst:      1,
	}
}

// Validate 验证传输配置
func (c TransportConfig) Validate() error {
	switch c.Network {
	case NetworkTCP, NetworkQUIC:
	default:
		return errors.New("unknown network: " + string(c.Network))
	}
	if c.ConnectTimeout <= 0 {
		return errors.New("connect_timeout must be positive")
	}
	if c.DialRate < 0 {
		return errors.New("dial_rate must not be negative")
	}
	if c.DialRate > 0 && c.DialBurst <= 0 {
		return errors.New("dial_burst must be positive when dial_rate is set")
	}
	return nil
}
