package cookie

import (
	"errors"

	"github.com/dep2p/go-httpcore/internal/util/logger"
)

var log = logger.Logger("core/cookie")

var (
	// ErrInvalidMaxHosts 内存存储的主机上限必须为正
	ErrInvalidMaxHosts = errors.New("cookie: max hosts must be positive")
)
