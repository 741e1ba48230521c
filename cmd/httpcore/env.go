package main

import (
	"os"
	"strconv"
	"time"

	"github.com/dep2p/go-httpcore/config"
)

// ============================================================================
//                              环境变量覆盖
// ============================================================================

// EnvPrefix 环境变量前缀
const EnvPrefix = "HTTPCORE_"

const (
	envProtocol       = "PROTOCOL"
	envNetwork        = "NETWORK"
	envIdleTimeout    = "IDLE_TIMEOUT"
	envMaxConnections = "MAX_CONNECTIONS"
	envMaxRetries     = "MAX_RETRIES"
	envConnectTimeout = "CONNECT_TIMEOUT"
	envCookieDir      = "COOKIE_DIR"
)

func envNames() []string {
	names := []string{envProtocol, envNetwork, envIdleTimeout, envMaxConnections, envMaxRetries, envConnectTimeout, envCookieDir}
	for i, n := range names {
		names[i] = EnvPrefix + n
	}
	return names
}

// applyEnvOverrides 应用环境变量覆盖配置
//
// 无法解析的值被忽略并记录警告。
func applyEnvOverrides(cfg *config.Config, getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	get := func(name string) string { return getenv(EnvPrefix + name) }

	if v := get(envProtocol); v != "" {
		cfg.Client.Protocol = config.Protocol(v)
	}
	if v := get(envNetwork); v != "" {
		cfg.Transport.Network = config.Network(v)
	}
	if v := get(envIdleTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Client.IdleTimeout = config.Duration(d)
		} else {
			log.Warn("忽略无效环境变量", "name", EnvPrefix+envIdleTimeout, "value", v)
		}
	}
	if v := get(envConnectTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Transport.ConnectTimeout = config.Duration(d)
		} else {
			log.Warn("忽略无效环境变量", "name", EnvPrefix+envConnectTimeout, "value", v)
		}
	}
	if v := get(envMaxConnections); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Client.MaxConnectionsPerDestination = n
		} else {
			log.Warn("忽略无效环境变量", "name", EnvPrefix+envMaxConnections, "value", v)
		}
	}
	if v := get(envMaxRetries); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Client.MaxRetries = n
		} else {
			log.Warn("忽略无效环境变量", "name", EnvPrefix+envMaxRetries, "value", v)
		}
	}
	if v := get(envCookieDir); v != "" {
		cfg.Cookie.PersistDir = v
	}
}
