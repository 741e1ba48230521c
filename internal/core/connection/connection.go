package connection

import (
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dep2p/go-httpcore/config"
	"github.com/dep2p/go-httpcore/internal/core/eventbus"
	"github.com/dep2p/go-httpcore/internal/core/exchange"
	"github.com/dep2p/go-httpcore/internal/core/metrics"
	"github.com/dep2p/go-httpcore/internal/core/session"
	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
	"github.com/dep2p/go-httpcore/pkg/types"
)

// State 连接状态
type State int32

const (
	// StateActive 可用
	StateActive State = iota
	// StateIdleTimingOut 空闲定时器已认领关闭，拆除进行中
	StateIdleTimingOut
	// StateClosed 终态
	StateClosed
)

// String 返回状态名
func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateIdleTimingOut:
		return "IDLE_TIMING_OUT"
	case StateClosed:
		return "CLOSED"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// Connection 到一个 Origin 的物理连接
type Connection interface {
	// ID 连接标识
	ID() string

	// Origin 目标
	Origin() types.Origin

	// Protocol 线路协议
	Protocol() config.Protocol

	// State 当前状态
	State() State

	// Available 是否可以接受新交换（ACTIVE 且未收到 GOAWAY）
	Available() bool

	// MaxInFlight 并发交换上限
	MaxInFlight() int

	// InFlight 在途交换数
	InFlight() int

	// Send 在连接上发起交换
	//
	// 返回 nil 表示交换进行中，结果经 Owner 异步回调；
	// 返回的失败表示什么都没有写出。
	Send(ex *exchange.Exchange) *SendFailure

	// Stats 连接统计
	Stats() types.ConnectionStats

	// Close 关闭连接
	Close() error
}

// Owner 连接所属者（目标池）
//
// 回调在连接内部 goroutine 中调用，不持有连接的锁。
type Owner interface {
	// Succeeded 交换收到完整响应
	Succeeded(c Connection, ex *exchange.Exchange, resp *types.Response)

	// Failed 交换在该连接上失败，槽位已释放
	Failed(c Connection, ex *exchange.Exchange, f *SendFailure)

	// Closed 连接已关闭，应从池中移除
	Closed(c Connection, cause error)
}

// Interceptor 空闲超时拦截点
type Interceptor interface {
	// OnIdleTimeout 空闲定时器触发后、拆除开始前调用
	//
	// claimed 为 false 表示有交换在途，定时器已重新设置。
	OnIdleTimeout(c Connection, claimed bool)
}

// InterceptorFunc 函数适配 Interceptor
type InterceptorFunc func(c Connection, claimed bool)

// OnIdleTimeout 实现 Interceptor
func (f InterceptorFunc) OnIdleTimeout(c Connection, claimed bool) {
	f(c, claimed)
}

// Options 连接选项
type Options struct {
	Owner       Owner
	Clock       clock.Clock
	IdleTimeout time.Duration
	Interceptor Interceptor
	Metrics     pkgif.Metrics
	EventBus    pkgif.EventBus

	// Sessions 多路复用连接使用的会话工厂
	Sessions *session.Factory
}

func (o *Options) fill() {
	if o.Owner == nil {
		o.Owner = nopOwner{}
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Nop{}
	}
	if o.Sessions == nil {
		o.Sessions = session.NewFactory(session.DefaultConfig(), o.Metrics)
	}
}

// New 按协议在端点上创建连接
func New(protocol config.Protocol, origin types.Origin, ep pkgif.Endpoint, opts Options) (Connection, error) {
	if protocol == config.ProtocolH2C {
		c, err := NewHTTP2(origin, ep, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return NewHTTP1(origin, ep, opts), nil
}

// ============================================================================
//                              空闲状态机
// ============================================================================

// base 两种连接共享的状态机
//
// mu 同时保护空闲认领与发送认领：二者对 inFlight 与 state 的
// 读改写在同一把锁下完成，因此竞争只有两种结果。
type base struct {
	id       string
	origin   types.Origin
	protocol config.Protocol
	endpoint pkgif.Endpoint
	opts     Options
	openedAt time.Time

	self     Connection
	teardown func()

	emitIdle   pkgif.Emitter
	emitClosed pkgif.Emitter

	mu           sync.Mutex
	state        State
	draining     bool
	inFlight     int
	exchanges    uint64
	lastActivity time.Time
	timer        *clock.Timer
	timerGen     uint64
	closeErr     error
}

func newBase(protocol config.Protocol, origin types.Origin, ep pkgif.Endpoint, opts Options) *base {
	opts.fill()
	now := opts.Clock.Now()
	return &base{
		id:           uuid.NewString(),
		origin:       origin,
		protocol:     protocol,
		endpoint:     ep,
		opts:         opts,
		openedAt:     now,
		lastActivity: now,
		emitIdle:     eventbus.MustEmitter(opts.EventBus, new(types.EvtConnectionIdleTimeout)),
		emitClosed:   eventbus.MustEmitter(opts.EventBus, new(types.EvtConnectionClosed)),
	}
}

// start 绑定外层连接并启动空闲定时器
func (b *base) start(self Connection, teardown func()) {
	b.self = self
	b.teardown = teardown
	b.opts.Metrics.ConnectionOpened(b.origin, string(b.protocol))

	b.mu.Lock()
	b.armLocked(b.opts.IdleTimeout)
	b.mu.Unlock()
}

func (b *base) ID() string                { return b.id }
func (b *base) Origin() types.Origin      { return b.origin }
func (b *base) Protocol() config.Protocol { return b.protocol }

func (b *base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *base) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateActive && !b.draining
}

func (b *base) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight
}

// Err 关闭原因
func (b *base) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeErr
}

func (b *base) stats() types.ConnectionStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return types.ConnectionStats{
		ID:        b.id,
		Protocol:  string(b.protocol),
		State:     b.state.String(),
		OpenedAt:  b.openedAt,
		InFlight:  b.inFlight,
		Exchanges: b.exchanges,
	}
}

// acquire 认领一个发送槽位；失败时什么都没有写出，总是可重试
func (b *base) acquire(limit int) *SendFailure {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.state == StateIdleTimingOut:
		return Retryable(ErrIdleTimeout)
	case b.state == StateClosed:
		return Retryable(ErrConnectionClosed)
	case b.draining:
		return Retryable(ErrGoingAway)
	case b.inFlight >= limit:
		return Retryable(ErrConnectionBusy)
	}
	b.inFlight++
	b.lastActivity = b.opts.Clock.Now()
	return nil
}

// release 归还槽位
func (b *base) release(completed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inFlight > 0 {
		b.inFlight--
	}
	if completed {
		b.exchanges++
	}
	b.lastActivity = b.opts.Clock.Now()
}

// touch 记录 I/O 活动，空闲期限随之后移
func (b *base) touch() {
	b.mu.Lock()
	b.lastActivity = b.opts.Clock.Now()
	b.mu.Unlock()
}

func (b *base) armLocked(d time.Duration) {
	if b.opts.IdleTimeout <= 0 {
		return
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timerGen++
	gen := b.timerGen
	b.timer = b.opts.Clock.AfterFunc(d, func() { b.onIdleTimer(gen) })
}

func (b *base) onIdleTimer(gen uint64) {
	b.mu.Lock()
	if gen != b.timerGen || b.state != StateActive {
		b.mu.Unlock()
		return
	}
	idle := b.opts.IdleTimeout

	if b.inFlight > 0 {
		b.armLocked(idle)
		b.mu.Unlock()
		b.idleTimeoutFired(false)
		return
	}
	if elapsed := b.opts.Clock.Since(b.lastActivity); elapsed < idle {
		// 期间有活动，期限后移
		b.armLocked(idle - elapsed)
		b.mu.Unlock()
		return
	}

	b.state = StateIdleTimingOut
	b.mu.Unlock()

	log.Debug("连接空闲超时", "conn", b.id, "origin", b.origin)
	b.idleTimeoutFired(true)
	b.shutdown(ErrIdleTimeout)
}

func (b *base) idleTimeoutFired(claimed bool) {
	if b.opts.Interceptor != nil {
		b.opts.Interceptor.OnIdleTimeout(b.self, claimed)
	}
	b.opts.Metrics.IdleTimeout(b.origin, claimed)
	_ = b.emitIdle.Emit(types.EvtConnectionIdleTimeout{
		BaseEvent: types.NewBaseEvent(types.EventConnectionIdleTimeout),
		Origin:    b.origin,
		ConnID:    b.id,
		Claimed:   claimed,
	})
}

// drain 停止接受新交换，在途交换继续
func (b *base) drain() {
	b.mu.Lock()
	b.draining = true
	b.mu.Unlock()
}

// shutdown 进入 CLOSED 并通知所属者，只生效一次
func (b *base) shutdown(cause error) bool {
	b.mu.Lock()
	if b.state == StateClosed {
		b.mu.Unlock()
		return false
	}
	b.state = StateClosed
	b.closeErr = cause
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timerGen++
	b.mu.Unlock()

	if b.teardown != nil {
		b.teardown()
	}

	log.Debug("连接已关闭", "conn", b.id, "origin", b.origin, "cause", cause)
	b.opts.Metrics.ConnectionClosed(b.origin, string(b.protocol))
	_ = b.emitClosed.Emit(types.EvtConnectionClosed{
		BaseEvent: types.NewBaseEvent(types.EventConnectionClosed),
		Origin:    b.origin,
		ConnID:    b.id,
		Cause:     cause,
	})
	_ = b.emitIdle.Close()
	_ = b.emitClosed.Close()
	b.opts.Owner.Closed(b.self, cause)
	return true
}

type nopOwner struct{}

func (nopOwner) Succeeded(Connection, *exchange.Exchange, *types.Response) {}
func (nopOwner) Failed(Connection, *exchange.Exchange, *SendFailure)       {}
func (nopOwner) Closed(Connection, error)                                  {}
