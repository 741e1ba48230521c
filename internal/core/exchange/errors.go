package exchange

import (
	"errors"

	"github.com/dep2p/go-httpcore/internal/util/logger"
)

var log = logger.Logger("core/exchange")

var (
	// ErrCanceled 交换被调用方取消
	ErrCanceled = errors.New("exchange canceled")

	// ErrNilRequest 请求为空
	ErrNilRequest = errors.New("nil request")
)
