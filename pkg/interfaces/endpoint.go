package interfaces

import (
	"context"
	"io"
	"net"

	"github.com/dep2p/go-httpcore/pkg/types"
)

// Endpoint 已建立的双向字节流
//
// 对 TCP 是 net.Conn，对 QUIC 是一条双向流。
// Close 之后 Read/Write 必须返回错误。
type Endpoint interface {
	io.ReadWriteCloser

	// LocalAddr 返回本地地址
	LocalAddr() net.Addr

	// RemoteAddr 返回远端地址
	RemoteAddr() net.Addr
}

// Dialer 拨号器
//
// Dial 必须响应 ctx 的取消与截止时间。
type Dialer interface {
	// Dial 建立到 origin 的端点
	Dial(ctx context.Context, origin types.Origin) (Endpoint, error)
}

// DialerFunc 函数适配 Dialer
type DialerFunc func(ctx context.Context, origin types.Origin) (Endpoint, error)

// Dial 实现 Dialer
func (f DialerFunc) Dial(ctx context.Context, origin types.Origin) (Endpoint, error) {
	return f(ctx, origin)
}

// EndpointListener 服务端监听器
type EndpointListener interface {
	// Accept 阻塞等待新端点
	Accept() (Endpoint, error)

	// Close 关闭监听器，阻塞中的 Accept 返回错误
	Close() error

	// Addr 返回监听地址
	Addr() net.Addr
}
