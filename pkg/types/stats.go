package types

import "time"

// ============================================================================
//                              ConnectionStats - 连接统计
// ============================================================================

// ConnectionStats 连接统计信息
type ConnectionStats struct {
	// ID 连接标识
	ID string

	// Protocol 应用层协议（http/1.1 或 h2c）
	Protocol string

	// State 连接状态
	State string

	// OpenedAt 连接建立时间
	OpenedAt time.Time

	// InFlight 当前在途交换数
	InFlight int

	// Exchanges 已完成交换总数
	Exchanges uint64
}

// Duration 返回连接持续时间
func (s ConnectionStats) Duration() time.Duration {
	return time.Since(s.OpenedAt)
}

// ============================================================================
//                              DestinationStats - 目的地统计
// ============================================================================

// DestinationStats 单个 Origin 的统计信息
type DestinationStats struct {
	Origin Origin

	// Queued 排队中的交换数
	Queued int

	// Connections 连接池中的连接
	Connections []ConnectionStats

	// PendingDials 正在建立中的连接数
	PendingDials int

	// Succeeded 成功交换总数
	Succeeded uint64

	// Failed 失败交换总数
	Failed uint64

	// Retried 重试次数
	Retried uint64
}

// InUse 所有连接上的在途交换数
func (s DestinationStats) InUse() int {
	n := 0
	for _, c := range s.Connections {
		n += c.InFlight
	}
	return n
}

// Idle 没有在途交换的连接数
func (s DestinationStats) Idle() int {
	n := 0
	for _, c := range s.Connections {
		if c.InFlight == 0 {
			n++
		}
	}
	return n
}
