package config

import "errors"

// CookieConfig Cookie 存储配置
//
// 存储的 Cookie 是请求规范化的输入：每个交换在首次发送前
// 附加一次匹配的 Cookie，重试不会再次附加。
type CookieConfig struct {
	// Enabled 是否启用 Cookie 存储
	Enabled bool `json:"enabled"`

	// MaxHosts 内存存储最多保留多少个主机的 Cookie（LRU 淘汰）
	MaxHosts int `json:"max_hosts"`

	// PersistDir 持久化目录（BadgerDB），为空则仅使用内存存储
	PersistDir string `json:"persist_dir,omitempty"`
}

// DefaultCookieConfig 返回默认 Cookie 配置
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Enabled:  true,
		MaxHosts: 1024,
	}
}

// Validate 验证配置
func (c CookieConfig) Validate() error {
	if c.Enabled && c.PersistDir == "" && c.MaxHosts <= 0 {
		return errors.New("max_hosts must be positive")
	}
	return nil
}
