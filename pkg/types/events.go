package types

import (
	"time"
)

// ============================================================================
//                              Event - 事件接口
// ============================================================================

// Event 基础事件接口
type Event interface {
	// Type 返回事件类型
	Type() string

	// Timestamp 返回事件时间戳
	Timestamp() time.Time
}

// BaseEvent 基础事件实现
type BaseEvent struct {
	EventType string
	Time      time.Time
}

// Type 返回事件类型
func (e BaseEvent) Type() string {
	return e.EventType
}

// Timestamp 返回事件时间戳
func (e BaseEvent) Timestamp() time.Time {
	return e.Time
}

// NewBaseEvent 创建基础事件
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventType: eventType,
		Time:      time.Now(),
	}
}

// 事件类型常量
const (
	EventConnectionOpened      = "connection.opened"
	EventConnectionIdleTimeout = "connection.idle_timeout"
	EventConnectionClosed      = "connection.closed"
	EventExchangeRetry         = "exchange.retry"
	EventExchangeComplete      = "exchange.complete"
)

// ============================================================================
//                              连接事件
// ============================================================================

// EvtConnectionOpened 连接已建立并加入连接池
type EvtConnectionOpened struct {
	BaseEvent
	Origin   Origin
	ConnID   string
	Protocol string
}

// EvtConnectionIdleTimeout 连接空闲定时器触发
//
// Claimed 为 true 表示定时器赢得了竞争，连接进入关闭流程；
// false 表示此刻有交换在途，定时器被重新设置。
type EvtConnectionIdleTimeout struct {
	BaseEvent
	Origin  Origin
	ConnID  string
	Claimed bool
}

// EvtConnectionClosed 连接已关闭并从连接池移除
type EvtConnectionClosed struct {
	BaseEvent
	Origin Origin
	ConnID string
	Cause  error
}

// ============================================================================
//                              交换事件
// ============================================================================

// EvtExchangeRetry 交换因可重试失败被重新提交
type EvtExchangeRetry struct {
	BaseEvent
	Origin     Origin
	ExchangeID string
	ConnID     string
	Attempt    int
	Cause      error
}

// EvtExchangeComplete 交换终结（成功或失败）
type EvtExchangeComplete struct {
	BaseEvent
	Origin     Origin
	ExchangeID string
	Status     int
	Retries    int
	Err        error
}
