package tcp

import (
	"net"
	"sync/atomic"

	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
)

// Listener TCP 监听器
type Listener struct {
	listener  *net.TCPListener
	transport *Transport
	closed    atomic.Bool
}

var _ pkgif.EndpointListener = (*Listener)(nil)

// Accept 接受连接
func (l *Listener) Accept() (pkgif.Endpoint, error) {
	conn, err := l.listener.AcceptTCP()
	if err != nil {
		return nil, err
	}
	_ = conn.SetNoDelay(true)
	_ = conn.SetKeepAlive(true)
	return conn, nil
}

// Addr 返回实际监听地址（端口为 0 时是分配后的端口）
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Close 关闭监听器
func (l *Listener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	if l.transport != nil {
		l.transport.removeListener(l)
	}
	return l.listener.Close()
}

// IsClosed 检查监听器是否已关闭
func (l *Listener) IsClosed() bool {
	return l.closed.Load()
}
