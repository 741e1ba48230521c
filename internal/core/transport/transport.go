package transport

import (
	"fmt"
	"io"
	"time"

	"github.com/dep2p/go-httpcore/config"
	"github.com/dep2p/go-httpcore/internal/core/transport/quic"
	"github.com/dep2p/go-httpcore/internal/core/transport/tcp"
	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
)

// Transport 可关闭的拨号器
type Transport interface {
	pkgif.Dialer
	io.Closer
}

var (
	_ Transport = (*tcp.Transport)(nil)
	_ Transport = (*quic.Transport)(nil)
)

// New 按配置创建传输
func New(cfg config.TransportConfig) (Transport, error) {
	switch cfg.Network {
	case config.NetworkTCP, "":
		log.Debug("创建 TCP 传输", "connectTimeout", time.Duration(cfg.ConnectTimeout))
		return tcp.New(time.Duration(cfg.ConnectTimeout), time.Duration(cfg.KeepAlive)), nil
	case config.NetworkQUIC:
		log.Debug("创建 QUIC 传输", "insecure", cfg.InsecureSkipVerify)
		return quic.New(quic.Options{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			HandshakeTimeout:   time.Duration(cfg.ConnectTimeout),
			KeepAlive:          time.Duration(cfg.KeepAlive),
		}), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, cfg.Network)
	}
}
