package destination

import (
	"errors"

	"github.com/dep2p/go-httpcore/internal/util/logger"
)

var log = logger.Logger("core/destination")

var (
	// ErrDestinationClosed 目标已关闭
	ErrDestinationClosed = errors.New("destination closed")

	// ErrQueueFull 排队交换数达到上限
	ErrQueueFull = errors.New("destination queue full")

	// ErrRetriesExhausted 重试预算用尽
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrNoDialer 未配置拨号器
	ErrNoDialer = errors.New("no dialer configured")
)
