package httpcore

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-httpcore/config"
	"github.com/dep2p/go-httpcore/internal/core/destination"
	"github.com/dep2p/go-httpcore/internal/core/exchange"
	"github.com/dep2p/go-httpcore/internal/core/metrics"
	"github.com/dep2p/go-httpcore/internal/core/session"
	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
	"github.com/dep2p/go-httpcore/pkg/types"
)

// 生命周期超时
const (
	startTimeout = 15 * time.Second
	stopTimeout  = 15 * time.Second
)

// Client HTTP 客户端
//
// 每个 Origin 对应一个 Destination（连接池 + 等待队列），首次发送时创建。
// 所有方法并发安全。
type Client struct {
	cfg   *config.Config
	app   *fx.App
	clock clock.Clock

	connInterceptor ConnectionInterceptor
	destInterceptor DestinationInterceptor

	// 由 Fx 填充
	bus       pkgif.EventBus
	metrics   pkgif.Metrics
	collector *metrics.Collector
	cookies   pkgif.CookieStore
	sessions  *session.Factory
	dialer    pkgif.Dialer

	normalizer *exchange.Normalizer

	mu           sync.Mutex
	destinations map[types.Origin]*destination.Destination
	closed       bool
}

// New 创建并启动客户端
//
// 示例：
//
//	c, err := httpcore.New(httpcore.WithProtocol(config.ProtocolH2C))
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	resp, err := c.Get(ctx, "http://127.0.0.1:8080/")
func New(opts ...Option) (*Client, error) {
	o := newOptions()
	if err := o.apply(opts...); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:             o.config,
		clock:           o.clock,
		connInterceptor: o.connInterceptor,
		destInterceptor: o.destInterceptor,
		destinations:    make(map[types.Origin]*destination.Destination),
	}
	c.app = buildFxApp(o, c)
	if err := c.app.Err(); err != nil {
		return nil, fmt.Errorf("build client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	if err := c.app.Start(ctx); err != nil {
		log.Error("客户端启动失败", "error", err)
		return nil, fmt.Errorf("start client: %w", err)
	}
	c.normalizer = exchange.NewNormalizer(c.cookies, c.cfg.Client.UserAgent)

	log.Info("客户端已启动",
		"protocol", c.cfg.Client.Protocol,
		"network", c.cfg.Transport.Network,
		"maxConns", c.cfg.Client.MaxConnectionsPerDestination,
		"maxRetries", c.cfg.Client.MaxRetries)
	return c, nil
}

// Config 返回生效配置的副本
func (c *Client) Config() config.Config {
	return *c.cfg
}

// EventBus 客户端的事件总线，可订阅连接与交换事件
func (c *Client) EventBus() pkgif.EventBus {
	return c.bus
}

// MetricsHandler Prometheus 指标的 HTTP 处理器
//
// 指标未启用或使用外部指标记录器时返回 nil。
func (c *Client) MetricsHandler() http.Handler {
	if c.collector == nil {
		return nil
	}
	return c.collector.Handler()
}

// ════════════════════════════════════════════════════════════════════════════
//                              交换
// ════════════════════════════════════════════════════════════════════════════

// NewExchange 为请求创建交换，尚未发送
func (c *Client) NewExchange(method, uri string, headers Fields, body []byte) (*Exchange, error) {
	req, err := types.NewRequest(method, uri, headers, body)
	if err != nil {
		return nil, err
	}
	return exchange.New(req, nil)
}

// Send 发送交换，立即返回
//
// l 恰好收到一次 OnComplete 或 OnFailure；l 为 nil 时可通过 Exchange.Wait 获取结果。
func (c *Client) Send(ex *Exchange, l Listener) {
	if ex == nil {
		log.Warn("忽略空交换")
		return
	}
	if l != nil {
		ex.SetListener(l)
	}

	d, err := c.destinationFor(ex.Origin())
	if err != nil {
		ex.Fail(err)
		return
	}
	d.Send(ex)
}

// Do 发送请求并等待响应
//
// ctx 结束时交换被取消，返回 ctx 的错误。
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	ex, err := exchange.New(req, nil)
	if err != nil {
		return nil, err
	}
	c.Send(ex, nil)
	return ex.Wait(ctx)
}

// Get 发送 GET 请求
func (c *Client) Get(ctx context.Context, uri string) (*Response, error) {
	req, err := types.NewRequest(http.MethodGet, uri, nil, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

// destinationFor 返回 origin 的目标，不存在时创建
func (c *Client) destinationFor(origin types.Origin) (*destination.Destination, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}
	if d, ok := c.destinations[origin]; ok {
		return d, nil
	}

	d := destination.New(origin, destination.Options{
		Config:          c.cfg.Client,
		Transport:       c.cfg.Transport,
		Dialer:          c.dialer,
		Normalizer:      c.normalizer,
		Clock:           c.clock,
		Metrics:         c.metrics,
		EventBus:        c.bus,
		Interceptor:     c.destInterceptor,
		ConnInterceptor: c.connInterceptor,
		Sessions:        c.sessions,
	})
	c.destinations[origin] = d
	log.Debug("创建目标", "origin", origin)
	return d, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              统计
// ════════════════════════════════════════════════════════════════════════════

// Stats 所有目标的统计，按 Origin 排序
func (c *Client) Stats() []DestinationStats {
	c.mu.Lock()
	dests := make([]*destination.Destination, 0, len(c.destinations))
	for _, d := range c.destinations {
		dests = append(dests, d)
	}
	c.mu.Unlock()

	out := make([]DestinationStats, 0, len(dests))
	for _, d := range dests {
		out = append(out, d.Stats())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Origin.String() < out[j].Origin.String()
	})
	return out
}

// DestinationStats 指定 Origin 的统计，目标不存在时返回 false
func (c *Client) DestinationStats(origin Origin) (DestinationStats, bool) {
	c.mu.Lock()
	d, ok := c.destinations[origin]
	c.mu.Unlock()
	if !ok {
		return DestinationStats{}, false
	}
	return d.Stats(), true
}

// ════════════════════════════════════════════════════════════════════════════
//                              关闭
// ════════════════════════════════════════════════════════════════════════════

// Close 关闭客户端
//
// 并发关闭所有目标（排队的交换失败，连接关闭），然后停止 Fx 应用。
// 重复调用返回 nil。
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	dests := make([]*destination.Destination, 0, len(c.destinations))
	for _, d := range c.destinations {
		dests = append(dests, d)
	}
	c.mu.Unlock()

	var (
		errMu sync.Mutex
		err   error
		g     errgroup.Group
	)
	for _, d := range dests {
		g.Go(func() error {
			if cerr := d.Close(); cerr != nil {
				errMu.Lock()
				err = multierr.Append(err, fmt.Errorf("close %s: %w", d.Origin(), cerr))
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if serr := c.app.Stop(ctx); serr != nil {
		log.Warn("停止 Fx 应用失败", "error", serr)
		err = multierr.Append(err, serr)
	}

	log.Info("客户端已关闭", "destinations", len(dests))
	return err
}
