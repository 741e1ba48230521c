package metrics

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-httpcore/config"
	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
)

// Params Metrics 依赖参数
type Params struct {
	fx.In

	Config *config.Config `optional:"true"`
}

// Result Metrics 输出
type Result struct {
	fx.Out

	Metrics   pkgif.Metrics
	Collector *Collector
}

// Module 是 metrics 的 Fx 模块
var Module = fx.Module("metrics",
	fx.Provide(Provide),
)

// Provide 按配置提供 Metrics
//
// 未启用时提供 Nop，Collector 为 nil。
func Provide(p Params) (Result, error) {
	cfg := config.DefaultMetricsConfig()
	if p.Config != nil {
		cfg = p.Config.Metrics
	}
	if !cfg.Enabled {
		return Result{Metrics: Nop{}}, nil
	}
	c, err := NewCollector(cfg)
	if err != nil {
		return Result{}, err
	}
	return Result{Metrics: c, Collector: c}, nil
}
