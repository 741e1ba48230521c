package tcp

import (
	"errors"

	"github.com/dep2p/go-httpcore/internal/util/logger"
)

var log = logger.Logger("core/transport/tcp")

var (
	// ErrTransportClosed 传输已关闭
	ErrTransportClosed = errors.New("tcp transport closed")

	// ErrNotTCP 底层连接不是 TCP
	ErrNotTCP = errors.New("not a tcp connection")
)
