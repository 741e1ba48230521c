package session

import (
	"io"

	"go.uber.org/fx"

	"github.com/dep2p/go-httpcore/config"
	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
)

// Factory 以统一配置创建会话
type Factory struct {
	cfg     Config
	metrics pkgif.Metrics
}

// NewFactory 创建会话工厂
func NewFactory(cfg Config, m pkgif.Metrics) *Factory {
	return &Factory{cfg: cfg, metrics: m}
}

// Config 工厂使用的会话配置
func (f *Factory) Config() Config {
	return f.cfg
}

// New 在端点上创建会话，附带工厂的指标
func (f *Factory) New(rw io.ReadWriteCloser, role Role, opts ...Option) *Session {
	if f.metrics != nil {
		opts = append([]Option{WithMetrics(f.metrics)}, opts...)
	}
	return New(rw, role, f.cfg, opts...)
}

// Params 依赖参数
type Params struct {
	fx.In

	Config  *config.Config `optional:"true"`
	Metrics pkgif.Metrics  `optional:"true"`
}

// Module 会话 Fx 模块
var Module = fx.Module("session",
	fx.Provide(ProvideFactory),
)

// ProvideFactory 提供会话工厂
func ProvideFactory(p Params) *Factory {
	cfg := DefaultConfig()
	if p.Config != nil {
		cfg = ConfigFrom(p.Config.HTTP2)
	}
	return NewFactory(cfg, p.Metrics)
}
