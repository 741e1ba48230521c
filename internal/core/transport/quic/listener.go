package quic

import (
	"context"
	"net"
	"sync"

	"github.com/quic-go/quic-go"

	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
)

// Listener QUIC 监听器
//
// 后台循环接受连接，并为每个连接等待第一条双向流。
type Listener struct {
	quicListener *quic.Listener
	transport    *Transport

	ctx    context.Context
	cancel context.CancelFunc
	ready  chan *Endpoint

	closeOnce sync.Once
	closeErr  error
}

var _ pkgif.EndpointListener = (*Listener)(nil)

func newListener(ql *quic.Listener, t *Transport) *Listener {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		quicListener: ql,
		transport:    t,
		ctx:          ctx,
		cancel:       cancel,
		ready:        make(chan *Endpoint),
	}
	go l.acceptLoop()
	return l
}

func (l *Listener) acceptLoop() {
	for {
		conn, err := l.quicListener.Accept(l.ctx)
		if err != nil {
			log.Debug("QUIC 监听器停止接受连接", "addr", l.Addr(), "err", err)
			return
		}
		go l.awaitStream(conn)
	}
}

func (l *Listener) awaitStream(conn quic.Connection) {
	stream, err := conn.AcceptStream(l.ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "")
		return
	}
	ep := newEndpoint(conn, stream)
	select {
	case l.ready <- ep:
	case <-l.ctx.Done():
		_ = ep.Close()
	}
}

// Accept 返回下一个端点
func (l *Listener) Accept() (pkgif.Endpoint, error) {
	select {
	case ep := <-l.ready:
		return ep, nil
	case <-l.ctx.Done():
		return nil, ErrListenerClosed
	}
}

// Addr 返回实际监听地址
func (l *Listener) Addr() net.Addr {
	return l.quicListener.Addr()
}

// Close 关闭监听器，未交付的端点随之关闭
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		l.cancel()
		l.closeErr = l.quicListener.Close()
		if l.transport != nil {
			l.transport.removeListener(l)
		}
	})
	return l.closeErr
}
