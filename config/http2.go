package config

import "errors"

// HTTP2Config 多路复用会话配置
type HTTP2Config struct {
	// MaxConcurrentStreams 本端通告的最大并发流数
	MaxConcurrentStreams uint32 `json:"max_concurrent_streams"`

	// MaxHeaderListSize 允许的最大头部列表大小（字节）
	MaxHeaderListSize uint32 `json:"max_header_list_size"`

	// MaxFrameSize 发送 DATA 帧时的最大负载
	MaxFrameSize uint32 `json:"max_frame_size"`

	// ResetStreamMemory 记住多少个本端重置过的流 ID
	// 这些流上迟到的帧会被忽略而不是视为协议错误
	ResetStreamMemory int `json:"reset_stream_memory"`
}

// DefaultHTTP2Config 返回默认配置
func DefaultHTTP2Config() HTTP2Config {
	return HTTP2Config{
		MaxConcurrentStreams: 128,
		MaxHeaderListSize:    16 << 10,
		MaxFrameSize:         16384,
		ResetStreamMemory:    256,
	}
}

// Validate 验证配置
func (c HTTP2Config) Validate() error {
	if c.MaxConcurrentStreams == 0 {
		return errors.New("max_concurrent_streams must be positive")
	}
	// 16384 与 2^24-1 是 RFC 9113 规定的 SETTINGS_MAX_FRAME_SIZE 取值范围
	if c.MaxFrameSize < 16384 || c.MaxFrameSize > 1<<24-1 {
		return errors.New("max_frame_size out of range")
	}
	if c.ResetStreamMemory <= 0 {
		return errors.New("reset_stream_memory must be positive")
	}
	return nil
}
