package quic

import (
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
)

// closeLinger 关闭流后等待对端关闭连接的最长时间，期间已写出的数据继续重传
const closeLinger = 2 * time.Second

// Endpoint 一条 QUIC 连接上的一条双向流
type Endpoint struct {
	conn   quic.Connection
	stream quic.Stream

	closeOnce sync.Once
	closeErr  error
}

var (
	_ pkgif.Endpoint = (*Endpoint)(nil)
	_ net.Conn       = (*Endpoint)(nil)
)

func newEndpoint(conn quic.Connection, stream quic.Stream) *Endpoint {
	return &Endpoint{conn: conn, stream: stream}
}

// Read 从流中读取数据
func (e *Endpoint) Read(p []byte) (int, error) {
	return e.stream.Read(p)
}

// Write 向流写入数据
func (e *Endpoint) Write(p []byte) (int, error) {
	return e.stream.Write(p)
}

// Close 关闭流与所属 QUIC 连接
//
// 阻塞中的 Read 立即返回；写方向发送 FIN，连接在对端关闭或等待 closeLinger 后关闭。
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		e.stream.CancelRead(0)
		e.closeErr = e.stream.Close()
		go func() {
			t := time.NewTimer(closeLinger)
			defer t.Stop()
			select {
			case <-e.conn.Context().Done():
			case <-t.C:
			}
			_ = e.conn.CloseWithError(0, "")
		}()
	})
	return e.closeErr
}

// LocalAddr 本地 UDP 地址
func (e *Endpoint) LocalAddr() net.Addr {
	return e.conn.LocalAddr()
}

// RemoteAddr 对端 UDP 地址
func (e *Endpoint) RemoteAddr() net.Addr {
	return e.conn.RemoteAddr()
}

// SetDeadline 设置读写超时
func (e *Endpoint) SetDeadline(t time.Time) error {
	return e.stream.SetDeadline(t)
}

// SetReadDeadline 设置读超时
func (e *Endpoint) SetReadDeadline(t time.Time) error {
	return e.stream.SetReadDeadline(t)
}

// SetWriteDeadline 设置写超时
func (e *Endpoint) SetWriteDeadline(t time.Time) error {
	return e.stream.SetWriteDeadline(t)
}

// Connection 底层 QUIC 连接
func (e *Endpoint) Connection() quic.Connection {
	return e.conn
}
