package config

import (
	"errors"
	"regexp"
)

var namespacePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enabled 是否注册 Prometheus 指标
	Enabled bool `json:"enabled"`

	// Namespace 指标名前缀
	Namespace string `json:"namespace"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Namespace: "httpcore",
	}
}

// Validate 验证配置
func (c MetricsConfig) Validate() error {
	if c.Enabled && !namespacePattern.MatchString(c.Namespace) {
		return errors.New("metrics: invalid namespace " + c.Namespace)
	}
	return nil
}
