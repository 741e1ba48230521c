package quic

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"go.uber.org/multierr"

	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
	"github.com/dep2p/go-httpcore/pkg/types"
)

// Options QUIC 传输选项
type Options struct {
	// TLS 客户端 TLS 配置，nil 时使用 ClientTLS(nil, InsecureSkipVerify)
	TLS *tls.Config

	// InsecureSkipVerify 跳过证书校验（仅测试环境）
	InsecureSkipVerify bool

	// HandshakeTimeout 握手超时
	HandshakeTimeout time.Duration

	// KeepAlive keep-alive 周期，0 表示不发送
	KeepAlive time.Duration

	// MaxIdleTimeout QUIC 连接空闲超时
	MaxIdleTimeout time.Duration
}

// Transport QUIC 传输
//
// 所有拨号共享一个 UDP socket；监听器各自绑定地址。
type Transport struct {
	mu sync.Mutex

	clientTLS *tls.Config
	config    *quic.Config

	udpConn       *net.UDPConn
	quicTransport *quic.Transport

	listeners map[*Listener]struct{}
	closed    bool
}

var _ pkgif.Dialer = (*Transport)(nil)

// New 创建 QUIC 传输
func New(opts Options) *Transport {
	clientTLS := opts.TLS
	if clientTLS == nil {
		clientTLS = ClientTLS(nil, opts.InsecureSkipVerify)
	}
	if opts.MaxIdleTimeout <= 0 {
		opts.MaxIdleTimeout = 30 * time.Second
	}
	return &Transport{
		clientTLS: clientTLS,
		config: &quic.Config{
			HandshakeIdleTimeout: opts.HandshakeTimeout,
			MaxIdleTimeout:       opts.MaxIdleTimeout,
			KeepAlivePeriod:      opts.KeepAlive,
		},
		listeners: make(map[*Listener]struct{}),
	}
}

// Dial 建立 QUIC 连接并打开一条双向流
func (t *Transport) Dial(ctx context.Context, origin types.Origin) (pkgif.Endpoint, error) {
	qt, err := t.shared()
	if err != nil {
		return nil, err
	}

	addr, err := net.ResolveUDPAddr("udp", origin.Address())
	if err != nil {
		return nil, fmt.Errorf("parse address: %w", err)
	}

	tlsConf := t.clientTLS.Clone()
	if tlsConf.ServerName == "" {
		tlsConf.ServerName = origin.Host
	}

	conn, err := qt.Dial(ctx, addr, tlsConf, t.config)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "")
		return nil, fmt.Errorf("open stream: %w", err)
	}

	log.Debug("QUIC 端点已建立", "origin", origin, "local", conn.LocalAddr())
	return newEndpoint(conn, stream), nil
}

// shared 首次拨号时创建共享 UDP socket
func (t *Transport) shared() (*quic.Transport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTransportClosed
	}
	if t.quicTransport == nil {
		conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
		if err != nil {
			return nil, fmt.Errorf("listen udp for dial: %w", err)
		}
		t.udpConn = conn
		t.quicTransport = &quic.Transport{Conn: conn}
	}
	return t.quicTransport, nil
}

// Listen 在 addr 上监听，tlsConf 必须包含证书
func (t *Transport) Listen(addr string, tlsConf *tls.Config) (*Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTransportClosed
	}

	tlsConf = tlsConf.Clone()
	if len(tlsConf.NextProtos) == 0 {
		tlsConf.NextProtos = []string{ALPN}
	}
	ql, err := quic.ListenAddr(addr, tlsConf, t.config)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	l := newListener(ql, t)
	t.listeners[l] = struct{}{}
	return l, nil
}

// Close 关闭传输、监听器和共享 socket
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	listeners := t.listeners
	t.listeners = make(map[*Listener]struct{})
	qt, udp := t.quicTransport, t.udpConn
	t.quicTransport, t.udpConn = nil, nil
	t.mu.Unlock()

	var err error
	for l := range listeners {
		err = multierr.Append(err, l.Close())
	}
	if qt != nil {
		err = multierr.Append(err, qt.Close())
	}
	if udp != nil {
		_ = udp.Close()
	}
	return err
}

func (t *Transport) removeListener(l *Listener) {
	t.mu.Lock()
	delete(t.listeners, l)
	t.mu.Unlock()
}
