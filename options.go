package httpcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-httpcore/config"
	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	config *config.Config

	clock clock.Clock

	// 以下组件为空时由 Fx 模块按配置提供
	dialer      pkgif.Dialer
	eventBus    pkgif.EventBus
	cookieStore pkgif.CookieStore
	metrics     pkgif.Metrics

	connInterceptor ConnectionInterceptor
	destInterceptor DestinationInterceptor

	// 用户自定义 Fx 选项
	fxOptions []fx.Option
}

// newOptions 创建默认选项
func newOptions() *options {
	return &options{
		config: config.NewConfig(),
		clock:  clock.New(),
	}
}

// apply 依次应用选项并验证最终配置
func (o *options) apply(opts ...Option) error {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(o); err != nil {
			return err
		}
	}
	if err := o.config.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// ============================================================================
//                              配置选项
// ============================================================================

// WithConfig 使用完整配置，覆盖之前的配置类选项
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return config.ErrNilConfig
		}
		c := *cfg
		o.config = &c
		return nil
	}
}

// WithConfigFile 从 JSON 文件加载配置
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		o.config = cfg
		return nil
	}
}

// WithProtocol 设置线路协议（http/1.1 或 h2c）
func WithProtocol(p config.Protocol) Option {
	return func(o *options) error {
		o.config.Client.Protocol = p
		return nil
	}
}

// WithNetwork 设置拨号网络（tcp 或 quic）
func WithNetwork(n config.Network) Option {
	return func(o *options) error {
		o.config.Transport.Network = n
		return nil
	}
}

// WithIdleTimeout 设置连接空闲超时，0 表示不因空闲关闭
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return errors.New("idle timeout must not be negative")
		}
		o.config.Client.IdleTimeout = config.Duration(d)
		return nil
	}
}

// WithConnectTimeout 设置建立连接超时
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.New("connect timeout must be positive")
		}
		o.config.Transport.ConnectTimeout = config.Duration(d)
		return nil
	}
}

// WithMaxConnectionsPerDestination 设置每个目标的最大连接数
func WithMaxConnectionsPerDestination(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return errors.New("max connections per destination must be positive")
		}
		o.config.Client.MaxConnectionsPerDestination = n
		return nil
	}
}

// WithMaxRetries 设置可重试失败的最大重试次数
func WithMaxRetries(n int) Option {
	return func(o *options) error {
		if n < 0 {
			return errors.New("max retries must not be negative")
		}
		o.config.Client.MaxRetries = n
		return nil
	}
}

// WithUserAgent 设置规范化时补充的 User-Agent，空串表示不添加
func WithUserAgent(ua string) Option {
	return func(o *options) error {
		o.config.Client.UserAgent = ua
		return nil
	}
}

// ============================================================================
//                              组件选项
// ============================================================================

// WithClock 使用指定时钟（测试中传入 clock.NewMock()）
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		if clk == nil {
			return errors.New("clock cannot be nil")
		}
		o.clock = clk
		return nil
	}
}

// WithDialer 使用自定义拨号器替代配置的传输
func WithDialer(d pkgif.Dialer) Option {
	return func(o *options) error {
		if d == nil {
			return errors.New("dialer cannot be nil")
		}
		o.dialer = d
		return nil
	}
}

// WithEventBus 使用外部事件总线
func WithEventBus(bus pkgif.EventBus) Option {
	return func(o *options) error {
		if bus == nil {
			return errors.New("event bus cannot be nil")
		}
		o.eventBus = bus
		return nil
	}
}

// WithCookieStore 使用外部 Cookie 存储
//
// 外部存储的生命周期由调用方管理，客户端关闭时不会关闭它。
func WithCookieStore(s pkgif.CookieStore) Option {
	return func(o *options) error {
		if s == nil {
			return errors.New("cookie store cannot be nil")
		}
		o.cookieStore = s
		return nil
	}
}

// WithMetrics 使用外部指标记录器
func WithMetrics(m pkgif.Metrics) Option {
	return func(o *options) error {
		if m == nil {
			return errors.New("metrics cannot be nil")
		}
		o.metrics = m
		return nil
	}
}

// ============================================================================
//                              拦截选项
// ============================================================================

// WithConnectionInterceptor 设置连接空闲超时拦截点
func WithConnectionInterceptor(i ConnectionInterceptor) Option {
	return func(o *options) error {
		o.connInterceptor = i
		return nil
	}
}

// WithDestinationInterceptor 设置发送尝试拦截点
func WithDestinationInterceptor(i DestinationInterceptor) Option {
	return func(o *options) error {
		o.destInterceptor = i
		return nil
	}
}

// WithFxOption 追加自定义 Fx 选项
func WithFxOption(opts ...fx.Option) Option {
	return func(o *options) error {
		o.fxOptions = append(o.fxOptions, opts...)
		return nil
	}
}
