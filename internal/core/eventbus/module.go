package eventbus

import (
	"context"

	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
	"go.uber.org/fx"
)

// ============================================================================
// Fx 模块
// ============================================================================

// Result Fx 模块输出结果
type Result struct {
	fx.Out

	EventBus pkgif.EventBus
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("eventbus",
		fx.Provide(ProvideEventBus),
	)
}

// ProvideEventBus 提供 EventBus 实例，停止时关闭所有订阅
func ProvideEventBus(lc fx.Lifecycle) Result {
	bus := NewBus()
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return bus.Close()
		},
	})
	return Result{EventBus: bus}
}
