package destination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-httpcore/config"
	"github.com/dep2p/go-httpcore/internal/core/connection"
	"github.com/dep2p/go-httpcore/internal/core/eventbus"
	"github.com/dep2p/go-httpcore/internal/core/exchange"
	"github.com/dep2p/go-httpcore/internal/core/metrics"
	"github.com/dep2p/go-httpcore/internal/core/session"
	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
	"github.com/dep2p/go-httpcore/pkg/types"
)

// Options 目标选项
type Options struct {
	// Config 客户端配置，零值使用默认配置
	Config config.ClientConfig

	// Transport 传输配置，零值使用默认配置
	Transport config.TransportConfig

	Dialer      pkgif.Dialer
	Normalizer  *exchange.Normalizer
	Clock       clock.Clock
	Metrics     pkgif.Metrics
	EventBus    pkgif.EventBus
	Interceptor Interceptor

	// ConnInterceptor 透传给每个连接的空闲超时拦截点
	ConnInterceptor connection.Interceptor

	// Sessions h2c 连接使用的会话工厂
	Sessions *session.Factory
}

func (o *Options) fill() {
	if o.Config == (config.ClientConfig{}) {
		o.Config = config.DefaultClientConfig()
	}
	if o.Transport == (config.TransportConfig{}) {
		o.Transport = config.DefaultTransportConfig()
	}
	if o.Config.Protocol == "" {
		o.Config.Protocol = config.ProtocolHTTP1
	}
	if o.Config.MaxConnectionsPerDestination <= 0 {
		o.Config.MaxConnectionsPerDestination = 1
	}
	if o.Config.MaxQueuedPerDestination <= 0 {
		o.Config.MaxQueuedPerDestination = config.DefaultClientConfig().MaxQueuedPerDestination
	}
	if o.Normalizer == nil {
		o.Normalizer = exchange.NewNormalizer(nil, o.Config.UserAgent)
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Nop{}
	}
	if o.Interceptor == nil {
		o.Interceptor = nopInterceptor{}
	}
}

// pooled 池中的连接及目标侧分配的交换数
type pooled struct {
	conn  connection.Connection
	inUse int
}

// Destination 到一个 Origin 的连接池与等待队列
//
// 池按创建顺序排列，选择第一个可用且未满的连接。
// 排队的交换先进先出，重试的交换回到队首。
type Destination struct {
	origin   types.Origin
	opts     Options
	connOpts connection.Options

	permits *semaphore.Weighted
	limiter *rate.Limiter

	emitOpened   pkgif.Emitter
	emitRetry    pkgif.Emitter
	emitComplete pkgif.Emitter

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	queue        []*exchange.Exchange
	pool         []*pooled
	pendingDials int
	closed       bool
	succeeded    uint64
	failed       uint64
	retried      uint64
}

// New 创建目标
func New(origin types.Origin, opts Options) *Destination {
	opts.fill()

	limit := rate.Inf
	if opts.Transport.DialRate > 0 {
		limit = rate.Limit(opts.Transport.DialRate)
	}
	burst := opts.Transport.DialBurst
	if burst < 1 {
		burst = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Destination{
		origin:       origin,
		opts:         opts,
		permits:      semaphore.NewWeighted(int64(opts.Config.MaxConnectionsPerDestination)),
		limiter:      rate.NewLimiter(limit, burst),
		emitOpened:   eventbus.MustEmitter(opts.EventBus, new(types.EvtConnectionOpened)),
		emitRetry:    eventbus.MustEmitter(opts.EventBus, new(types.EvtExchangeRetry)),
		emitComplete: eventbus.MustEmitter(opts.EventBus, new(types.EvtExchangeComplete)),
		ctx:          ctx,
		cancel:       cancel,
	}
	d.connOpts = connection.Options{
		Owner:       &poolOwner{d: d},
		Clock:       opts.Clock,
		IdleTimeout: time.Duration(opts.Config.IdleTimeout),
		Interceptor: opts.ConnInterceptor,
		Metrics:     opts.Metrics,
		EventBus:    opts.EventBus,
		Sessions:    opts.Sessions,
	}
	return d
}

// Origin 目标
func (d *Destination) Origin() types.Origin {
	return d.origin
}

// ============================================================================
//                              发送
// ============================================================================

// Send 提交交换，立即返回
//
// 规范化在入队前完成且只执行一次。被拒绝的交换经其监听器收到失败。
func (d *Destination) Send(ex *exchange.Exchange) {
	if err := d.opts.Normalizer.Apply(ex); err != nil {
		d.complete(ex, nil, err)
		return
	}
	if !ex.SetAbort(d.dequeuer(ex)) {
		return
	}

	d.mu.Lock()
	switch {
	case d.closed:
		d.mu.Unlock()
		d.complete(ex, nil, ErrDestinationClosed)
		return
	case len(d.queue) >= d.opts.Config.MaxQueuedPerDestination:
		d.mu.Unlock()
		d.complete(ex, nil, ErrQueueFull)
		return
	}
	d.queue = append(d.queue, ex)
	d.mu.Unlock()

	d.process()
}

// process 把排队的交换分配给可用连接，必要时发起拨号
func (d *Destination) process() {
	for {
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return
		}
		ex, p := d.nextLocked()
		if ex == nil {
			d.maybeDialLocked()
			d.mu.Unlock()
			return
		}
		d.mu.Unlock()

		d.attemptSend(p.conn, ex)
	}
}

// nextLocked 取队首交换并为其选定连接；没有可用连接时交换留在队首
func (d *Destination) nextLocked() (*exchange.Exchange, *pooled) {
	for len(d.queue) > 0 {
		ex := d.queue[0]
		if ex.IsDone() {
			d.popLocked()
			continue
		}
		p := d.selectLocked()
		if p == nil {
			return nil, nil
		}
		d.popLocked()
		p.inUse++
		return ex, p
	}
	return nil, nil
}

func (d *Destination) popLocked() *exchange.Exchange {
	ex := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	return ex
}

// selectLocked 按创建顺序选择第一个可用且未满的连接
func (d *Destination) selectLocked() *pooled {
	for _, p := range d.pool {
		if p.conn.Available() && p.inUse < p.conn.MaxInFlight() {
			return p
		}
	}
	return nil
}

// maybeDialLocked 等待的交换多于拨号中的连接时，在许可范围内拨号
func (d *Destination) maybeDialLocked() {
	want := 0
	for _, ex := range d.queue {
		if !ex.IsDone() {
			want++
		}
	}
	// 一个多路复用连接足以承载整个队列
	if d.opts.Config.Protocol == config.ProtocolH2C && want > 1 {
		want = 1
	}
	for d.pendingDials < want && d.permits.TryAcquire(1) {
		d.pendingDials++
		go d.dial()
	}
}

// attemptSend 在选定连接上发起一次尝试
func (d *Destination) attemptSend(c connection.Connection, ex *exchange.Exchange) {
	d.opts.Interceptor.BeforeSend(c, ex)
	f := c.Send(ex)
	d.opts.Interceptor.OnSend(c, ex, f)
	if f != nil {
		log.Debug("发送尝试失败", "origin", d.origin, "conn", c.ID(), "exchange", ex.ID(),
			"retryable", f.Retryable, "err", f.Cause)
		d.settleFailure(c, ex, f)
	}
}

// settleFailure 同步与异步失败共用的重试判定
//
// 可重试且预算未用尽时交换回到队首，不再重新规范化。
func (d *Destination) settleFailure(c connection.Connection, ex *exchange.Exchange, f *connection.SendFailure) {
	d.mu.Lock()
	d.releaseLocked(c)
	d.mu.Unlock()

	if ex.IsDone() {
		return
	}
	if !f.Retryable || ex.Retries() >= d.opts.Config.MaxRetries {
		var err error = f
		if f.Retryable {
			err = fmt.Errorf("%w: %w", ErrRetriesExhausted, f)
		}
		d.complete(ex, nil, err)
		return
	}

	attempt := ex.RecordRetry()
	log.Debug("重试交换", "origin", d.origin, "exchange", ex.ID(), "attempt", attempt, "cause", f.Cause)
	d.opts.Metrics.ExchangeRetried(d.origin)
	_ = d.emitRetry.Emit(types.EvtExchangeRetry{
		BaseEvent:  types.NewBaseEvent(types.EventExchangeRetry),
		Origin:     d.origin,
		ExchangeID: ex.ID(),
		ConnID:     c.ID(),
		Attempt:    attempt,
		Cause:      f.Cause,
	})

	if !ex.SetAbort(d.dequeuer(ex)) {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.complete(ex, nil, ErrDestinationClosed)
		return
	}
	d.retried++
	d.queue = append([]*exchange.Exchange{ex}, d.queue...)
	d.mu.Unlock()
}

func (d *Destination) releaseLocked(c connection.Connection) {
	for _, p := range d.pool {
		if p.conn == c {
			if p.inUse > 0 {
				p.inUse--
			}
			return
		}
	}
}

// dequeuer 排队期间的取消动作
func (d *Destination) dequeuer(ex *exchange.Exchange) func(error) {
	return func(error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, q := range d.queue {
			if q == ex {
				d.queue = append(d.queue[:i], d.queue[i+1:]...)
				return
			}
		}
	}
}

// complete 终结交换，只有真正终结时才记账
func (d *Destination) complete(ex *exchange.Exchange, resp *types.Response, err error) {
	var ok bool
	if err != nil {
		ok = ex.Fail(err)
	} else {
		ok = ex.Succeed(resp)
	}
	if !ok {
		return
	}

	result := metrics.ResultSuccess
	status := 0
	d.mu.Lock()
	if err != nil {
		d.failed++
		result = metrics.ResultFailure
	} else {
		d.succeeded++
		status = resp.Status
	}
	d.mu.Unlock()

	d.opts.Metrics.ExchangeCompleted(d.origin, result)
	_ = d.emitComplete.Emit(types.EvtExchangeComplete{
		BaseEvent:  types.NewBaseEvent(types.EventExchangeComplete),
		Origin:     d.origin,
		ExchangeID: ex.ID(),
		Status:     status,
		Retries:    ex.Retries(),
		Err:        err,
	})
}

// ============================================================================
//                              拨号
// ============================================================================

func (d *Destination) dial() {
	ctx, cancel := context.WithTimeout(d.ctx, time.Duration(d.opts.Transport.ConnectTimeout))
	defer cancel()

	c, err := d.connect(ctx)

	d.mu.Lock()
	d.pendingDials--
	if err != nil {
		d.permits.Release(1)
		var head *exchange.Exchange
		if !d.closed {
			for len(d.queue) > 0 && head == nil {
				if ex := d.popLocked(); !ex.IsDone() {
					head = ex
				}
			}
		}
		d.mu.Unlock()

		log.Debug("拨号失败", "origin", d.origin, "err", err)
		if head != nil {
			d.complete(head, nil, err)
		}
		d.process()
		return
	}
	if d.closed {
		d.mu.Unlock()
		d.permits.Release(1)
		_ = c.Close()
		return
	}
	d.pool = append(d.pool, &pooled{conn: c})
	d.mu.Unlock()

	// 连接在加入连接池之前可能已经关闭
	if c.State() == connection.StateClosed {
		d.evict(c)
		d.process()
		return
	}

	log.Debug("连接已加入连接池", "origin", d.origin, "conn", c.ID(), "protocol", c.Protocol())
	_ = d.emitOpened.Emit(types.EvtConnectionOpened{
		BaseEvent: types.NewBaseEvent(types.EventConnectionOpened),
		Origin:    d.origin,
		ConnID:    c.ID(),
		Protocol:  string(c.Protocol()),
	})
	d.process()
}

func (d *Destination) connect(ctx context.Context) (connection.Connection, error) {
	if d.opts.Dialer == nil {
		return nil, ErrNoDialer
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	ep, err := d.opts.Dialer.Dial(ctx, d.origin)
	if err != nil {
		return nil, err
	}
	c, err := connection.New(d.opts.Config.Protocol, d.origin, ep, d.connOpts)
	if err != nil {
		_ = ep.Close()
		return nil, err
	}
	return c, nil
}

// evict 从连接池移除连接并归还许可，返回连接是否在池中
func (d *Destination) evict(c connection.Connection) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, p := range d.pool {
		if p.conn == c {
			d.pool = append(d.pool[:i], d.pool[i+1:]...)
			d.permits.Release(1)
			return true
		}
	}
	return false
}

// ============================================================================
//                              查询与关闭
// ============================================================================

// Connections 连接池快照，按创建顺序
func (d *Destination) Connections() []connection.Connection {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]connection.Connection, 0, len(d.pool))
	for _, p := range d.pool {
		out = append(out, p.conn)
	}
	return out
}

// Stats 目标统计
func (d *Destination) Stats() types.DestinationStats {
	d.mu.Lock()
	conns := make([]connection.Connection, 0, len(d.pool))
	for _, p := range d.pool {
		conns = append(conns, p.conn)
	}
	st := types.DestinationStats{
		Origin:       d.origin,
		Queued:       len(d.queue),
		PendingDials: d.pendingDials,
		Succeeded:    d.succeeded,
		Failed:       d.failed,
		Retried:      d.retried,
	}
	d.mu.Unlock()

	for _, c := range conns {
		st.Connections = append(st.Connections, c.Stats())
	}
	return st
}

// Close 关闭目标：排队的交换以 ErrDestinationClosed 失败，关闭所有连接
func (d *Destination) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	queue := d.queue
	d.queue = nil
	conns := make([]connection.Connection, 0, len(d.pool))
	for _, p := range d.pool {
		conns = append(conns, p.conn)
	}
	d.mu.Unlock()

	d.cancel()
	for _, ex := range queue {
		d.complete(ex, nil, ErrDestinationClosed)
	}

	var err error
	for _, c := range conns {
		err = multierr.Append(err, c.Close())
	}
	err = multierr.Append(err, d.emitOpened.Close())
	err = multierr.Append(err, d.emitRetry.Close())
	err = multierr.Append(err, d.emitComplete.Close())
	return err
}

// ============================================================================
//                              连接回调
// ============================================================================

// poolOwner 把连接回调转给目标
type poolOwner struct {
	d *Destination
}

var _ connection.Owner = (*poolOwner)(nil)

func (o *poolOwner) Succeeded(c connection.Connection, ex *exchange.Exchange, resp *types.Response) {
	d := o.d
	d.mu.Lock()
	d.releaseLocked(c)
	d.mu.Unlock()

	d.opts.Normalizer.Capture(d.origin, resp)
	d.complete(ex, resp, nil)
	d.process()
}

func (o *poolOwner) Failed(c connection.Connection, ex *exchange.Exchange, f *connection.SendFailure) {
	o.d.settleFailure(c, ex, f)
	o.d.process()
}

func (o *poolOwner) Closed(c connection.Connection, cause error) {
	d := o.d
	if d.evict(c) {
		log.Debug("连接已从连接池移除", "origin", d.origin, "conn", c.ID(), "cause", cause)
	}
	d.process()
}
