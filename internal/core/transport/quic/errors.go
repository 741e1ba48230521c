package quic

import (
	"errors"

	"github.com/dep2p/go-httpcore/internal/util/logger"
)

var log = logger.Logger("core/transport/quic")

var (
	// ErrTransportClosed 传输已关闭
	ErrTransportClosed = errors.New("quic transport closed")

	// ErrListenerClosed 监听器已关闭
	ErrListenerClosed = errors.New("quic listener closed")
)
