package config

import (
	"errors"
	"time"
)

// Protocol 连接使用的线路协议
type Protocol string

const (
	// ProtocolHTTP1 非多路复用，每个连接同一时间只承载一个交换
	ProtocolHTTP1 Protocol = "http/1.1"

	// ProtocolH2C 明文 HTTP/2 风格帧协议，每个连接承载一个多路复用会话
	ProtocolH2C Protocol = "h2c"
)

// ClientConfig 客户端配置
//
// 对应连接池与重试协议的可调参数：
//   - 空闲超时
//   - 每个目标的最大连接数
//   - 每个交换的最大重试次数
type ClientConfig struct {
	// Protocol 线路协议
	Protocol Protocol `json:"protocol"`

	// IdleTimeout 连接空闲超时
	// 0 表示永不因空闲关闭
	IdleTimeout Duration `json:"idle_timeout"`

	// MaxConnectionsPerDestination 每个目标的最大连接数
	MaxConnectionsPerDestination int `json:"max_connections_per_destination"`

	// MaxRetries 可重试失败时的最大重试次数
	// 默认 1，避免对系统性故障的目标无限重试
	MaxRetries int `json:"max_retries"`

	// MaxQueuedPerDestination 每个目标排队等待连接的最大交换数
	MaxQueuedPerDestination int `json:"max_queued_per_destination"`

	// UserAgent 规范化时补充的 User-Agent
	// 为空则不添加
	UserAgent string `json:"user_agent,omitempty"`
}

// DefaultClientConfig 返回默认客户端配置
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Protocol:                     ProtocolHTTP1,
		IdleTimeout:                  Duration(60 * time.Second),
		MaxConnectionsPerDestination: 64,
		MaxRetries:                   1,
		MaxQueuedPerDestination:      1024,
		UserAgent:                    "httpcore/1.0",
	}
}

// Validate 验证客户端配置
func (c ClientConfig) Validate() error {
	switch c.Protocol {
	case ProtocolHTTP1, ProtocolH2C:
	default:
		return errors.New("unknown protocol: " + string(c.Protocol))
	}
	if c.IdleTimeout < 0 {
		return errors.New("idle_timeout must not be negative")
	}
	if c.MaxConnectionsPerDestination <= 0 {
		return errors.New("max_connections_per_destination must be positive")
	}
	if c.MaxRetries < 0 {
		return errors.New("max_retries must not be negative")
	}
	if c.MaxQueuedPerDestination <= 0 {
		return errors.New("max_queued_per_destination must be positive")
	}
	return nil
}
