package server

import (
	"errors"

	"github.com/dep2p/go-httpcore/internal/util/logger"
)

var log = logger.Logger("core/server")

var (
	// ErrServerClosed 服务已关闭
	ErrServerClosed = errors.New("server closed")

	// ErrNilHandler 未提供处理函数
	ErrNilHandler = errors.New("nil handler")
)
