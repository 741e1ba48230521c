package transport

import (
	"errors"

	"github.com/dep2p/go-httpcore/internal/util/logger"
)

var log = logger.Logger("core/transport")

// ErrUnknownNetwork 未知的拨号网络
var ErrUnknownNetwork = errors.New("unknown network")
