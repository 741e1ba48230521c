package httpcore

import (
	"errors"

	"github.com/dep2p/go-httpcore/internal/core/connection"
	"github.com/dep2p/go-httpcore/internal/core/destination"
	"github.com/dep2p/go-httpcore/internal/core/exchange"
	"github.com/dep2p/go-httpcore/internal/util/logger"
)

var log = logger.Logger("httpcore")

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 客户端生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrClientClosed 客户端已关闭
	ErrClientClosed = errors.New("client closed")

	// ErrNilExchange 交换为空
	ErrNilExchange = errors.New("nil exchange")

	// ────────────────────────────────────────────────────────────────────────
	// 交换终结错误（内部包错误的导出别名）
	// ────────────────────────────────────────────────────────────────────────

	// ErrCanceled 交换被取消
	ErrCanceled = exchange.ErrCanceled

	// ErrRetriesExhausted 可重试失败超出重试预算
	ErrRetriesExhausted = destination.ErrRetriesExhausted

	// ErrQueueFull 目标等待队列已满
	ErrQueueFull = destination.ErrQueueFull

	// ErrConnectionClosed 连接在交换进行中关闭
	ErrConnectionClosed = connection.ErrConnectionClosed
)
