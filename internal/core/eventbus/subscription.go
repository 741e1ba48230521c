package eventbus

import (
	"reflect"
	"sync"
	"sync/atomic"

	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
)

// ============================================================================
// Subscription 实现
// ============================================================================

// Subscription 订阅
type Subscription struct {
	bus       *Bus
	typ       reflect.Type
	out       chan interface{}
	closeOnce sync.Once
}

var _ pkgif.Subscription = (*Subscription)(nil)

// Out 返回事件通道
func (s *Subscription) Out() <-chan interface{} {
	return s.out
}

// Close 取消订阅，可重复调用
func (s *Subscription) Close() error {
	s.bus.removeSub(s)
	s.closeChan()
	return nil
}

// closeChan 关闭输出通道
//
// 调用前订阅必须已从节点移除，emit 不会再写入。
func (s *Subscription) closeChan() {
	s.closeOnce.Do(func() {
		close(s.out)
	})
}

// ============================================================================
// Emitter 实现
// ============================================================================

// Emitter 事件发射器
type Emitter struct {
	bus       *Bus
	node      *node
	typ       reflect.Type
	closed    atomic.Bool
	closeOnce sync.Once
}

var _ pkgif.Emitter = (*Emitter)(nil)

// Emit 发射事件
func (e *Emitter) Emit(event interface{}) error {
	if e.closed.Load() {
		return ErrEmitterClosed
	}
	e.node.emit(event)
	return nil
}

// Close 关闭发射器，引用计数归零时尝试删除节点
func (e *Emitter) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		if e.node.nEmitters.Add(-1) == 0 {
			e.bus.tryDropNode(e.typ)
		}
	})
	return nil
}

// ============================================================================
// 便利函数
// ============================================================================

// BufSize 设置订阅缓冲区大小
func BufSize(size int) pkgif.SubscriptionOpt {
	return pkgif.BufSize(size)
}

// Stateful 设置发射器为有状态模式
func Stateful() pkgif.EmitterOpt {
	return pkgif.Stateful()
}

// MustEmitter 获取发射器，失败时返回丢弃一切的发射器
//
// 组件构造时使用：总线已关闭不应阻止组件工作。
func MustEmitter(bus pkgif.EventBus, eventType interface{}) pkgif.Emitter {
	if bus == nil {
		return nopEmitter{}
	}
	em, err := bus.Emitter(eventType)
	if err != nil {
		log.Debug("获取发射器失败，使用空发射器", "type", reflect.TypeOf(eventType), "err", err)
		return nopEmitter{}
	}
	return em
}

type nopEmitter struct{}

func (nopEmitter) Emit(interface{}) error { return nil }
func (nopEmitter) Close() error           { return nil }
