package session

import (
	"time"

	"github.com/dep2p/go-httpcore/config"
)

// Role 会话角色，决定本端发起的流 ID 奇偶
type Role int

const (
	// RoleClient 客户端，本端流 ID 为从 1 开始的奇数
	RoleClient Role = iota
	// RoleServer 服务端，本端流 ID 为从 2 开始的偶数
	RoleServer
)

// String 返回角色名
func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

const (
	// defaultPeerMaxStreams 对端 SETTINGS 到达前假定的并发上限
	defaultPeerMaxStreams = 100

	// maxStreamID 流 ID 上限 2^31-1
	maxStreamID = 1<<31 - 1

	// goAwayWriteTimeout Close 等待 GOAWAY 写出的上限
	goAwayWriteTimeout = 500 * time.Millisecond
)

// Config 会话配置
type Config struct {
	// MaxConcurrentStreams 本端通告的并发上限，同时限制本端发起的流
	MaxConcurrentStreams uint32

	// MaxHeaderListSize 接收头部列表上限
	MaxHeaderListSize uint32

	// MaxFrameSize 接收帧负载上限
	MaxFrameSize uint32

	// ResetStreamMemory 记住的本端重置流 ID 数量
	ResetStreamMemory int
}

// DefaultConfig 返回默认会话配置
func DefaultConfig() Config {
	return ConfigFrom(config.DefaultHTTP2Config())
}

// ConfigFrom 从统一配置转换
func ConfigFrom(c config.HTTP2Config) Config {
	return Config{
		MaxConcurrentStreams: c.MaxConcurrentStreams,
		MaxHeaderListSize:    c.MaxHeaderListSize,
		MaxFrameSize:         c.MaxFrameSize,
		ResetStreamMemory:    c.ResetStreamMemory,
	}
}
