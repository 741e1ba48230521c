package httpcore

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-httpcore/internal/core/cookie"
	"github.com/dep2p/go-httpcore/internal/core/eventbus"
	"github.com/dep2p/go-httpcore/internal/core/metrics"
	"github.com/dep2p/go-httpcore/internal/core/session"
	"github.com/dep2p/go-httpcore/internal/core/transport"
	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
)

// buildFxApp 构建 Fx 应用
//
// 采用条件加载策略：调用方通过选项注入的组件直接提供，
// 其余组件由各自的模块按配置创建。
//
// 加载顺序（按依赖）：
//  1. Config / Clock
//  2. EventBus → Metrics → Cookie
//  3. Session（依赖 Metrics）→ Transport
func buildFxApp(o *options, c *Client) *fx.App {
	modules := []fx.Option{
		fx.Supply(o.config),
		fx.Provide(func() clock.Clock { return o.clock }),
	}

	// ════════════════════════════════════════════════════════════════════════
	// 基础设施
	// ════════════════════════════════════════════════════════════════════════
	if o.eventBus != nil {
		modules = append(modules, fx.Provide(func() pkgif.EventBus { return o.eventBus }))
	} else {
		modules = append(modules, eventbus.Module())
	}

	if o.metrics != nil {
		modules = append(modules,
			fx.Provide(func() pkgif.Metrics { return o.metrics }),
			fx.Provide(func() *metrics.Collector { return nil }),
		)
	} else {
		modules = append(modules, metrics.Module)
	}

	if o.cookieStore != nil {
		modules = append(modules, fx.Provide(func() pkgif.CookieStore { return o.cookieStore }))
	} else {
		modules = append(modules, cookie.Module)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 协议与传输
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, session.Module)

	if o.dialer != nil {
		modules = append(modules, fx.Provide(func() pkgif.Dialer { return o.dialer }))
	} else {
		modules = append(modules, transport.Module)
	}

	// 用户自定义选项
	modules = append(modules, o.fxOptions...)

	modules = append(modules,
		fx.Populate(&c.bus, &c.metrics, &c.collector, &c.cookies, &c.sessions, &c.dialer),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)

	return fx.New(modules...)
}
