package transport

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-httpcore/config"
	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
)

// Params 依赖参数
type Params struct {
	fx.In

	Config *config.Config `optional:"true"`
}

// Result 输出
type Result struct {
	fx.Out

	Transport Transport
	Dialer    pkgif.Dialer
}

// Module 传输层 Fx 模块
var Module = fx.Module("transport",
	fx.Provide(Provide),
)

// Provide 按配置提供传输，停止时关闭
func Provide(lc fx.Lifecycle, p Params) (Result, error) {
	cfg := config.DefaultTransportConfig()
	if p.Config != nil {
		cfg = p.Config.Transport
	}
	t, err := New(cfg)
	if err != nil {
		return Result{}, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return t.Close()
		},
	})
	return Result{Transport: t, Dialer: t}, nil
}
