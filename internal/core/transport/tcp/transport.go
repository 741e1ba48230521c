package tcp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
	"github.com/dep2p/go-httpcore/pkg/types"
)

// ============================================================================
//                              Transport 实现
// ============================================================================

// Transport TCP 传输
//
// 实现 interfaces.Dialer；Listen 创建的监听器随传输一起关闭。
type Transport struct {
	dialer net.Dialer

	listenersMu sync.Mutex
	listeners   map[*Listener]struct{}

	closed atomic.Bool
}

var _ pkgif.Dialer = (*Transport)(nil)

// New 创建 TCP 传输
//
// keepAlive 为 0 时使用系统默认周期。
func New(connectTimeout, keepAlive time.Duration) *Transport {
	return &Transport{
		dialer: net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: keepAlive,
		},
		listeners: make(map[*Listener]struct{}),
	}
}

// Dial 建立到 origin 的 TCP 连接
func (t *Transport) Dial(ctx context.Context, origin types.Origin) (pkgif.Endpoint, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}

	conn, err := t.dialer.DialContext(ctx, "tcp", origin.Address())
	if err != nil {
		return nil, fmt.Errorf("连接失败: %w", err)
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		_ = conn.Close()
		return nil, ErrNotTCP
	}
	_ = tcpConn.SetNoDelay(true)

	log.Debug("TCP 连接已建立", "origin", origin, "local", tcpConn.LocalAddr())
	return tcpConn, nil
}

// Listen 在 addr 上监听，addr 形如 "127.0.0.1:0"
func (t *Transport) Listen(addr string) (*Listener, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}

	lc := net.ListenConfig{KeepAlive: t.dialer.KeepAlive}
	l, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("监听失败: %w", err)
	}
	tcpListener, ok := l.(*net.TCPListener)
	if !ok {
		_ = l.Close()
		return nil, ErrNotTCP
	}

	ln := &Listener{listener: tcpListener, transport: t}
	t.listenersMu.Lock()
	t.listeners[ln] = struct{}{}
	t.listenersMu.Unlock()
	return ln, nil
}

// Close 关闭传输及其所有监听器，已建立的连接由各自的所有者关闭
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	t.listenersMu.Lock()
	listeners := t.listeners
	t.listeners = make(map[*Listener]struct{})
	t.listenersMu.Unlock()

	var err error
	for l := range listeners {
		err = multierr.Append(err, l.Close())
	}
	return err
}

// IsClosed 检查是否已关闭
func (t *Transport) IsClosed() bool {
	return t.closed.Load()
}

// ListenerCount 返回监听器数量
func (t *Transport) ListenerCount() int {
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()
	return len(t.listeners)
}

func (t *Transport) removeListener(l *Listener) {
	t.listenersMu.Lock()
	delete(t.listeners, l)
	t.listenersMu.Unlock()
}
