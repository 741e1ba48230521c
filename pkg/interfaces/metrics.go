package interfaces

import "github.com/dep2p/go-httpcore/pkg/types"

// Metrics 传输核心的指标记录接口
//
// 所有方法必须非阻塞且并发安全。未启用指标时使用空实现。
type Metrics interface {
	// ConnectionOpened 连接建立
	ConnectionOpened(origin types.Origin, protocol string)

	// ConnectionClosed 连接关闭
	ConnectionClosed(origin types.Origin, protocol string)

	// IdleTimeout 空闲定时器触发，claimed 表示是否进入关闭流程
	IdleTimeout(origin types.Origin, claimed bool)

	// ExchangeRetried 交换被重试
	ExchangeRetried(origin types.Origin)

	// ExchangeCompleted 交换终结，result 为 "success" 或 "failure"
	ExchangeCompleted(origin types.Origin, result string)

	// StreamsActive 活跃流数量变化
	StreamsActive(delta int)
}
