package server

import (
	"io"
	"net"
	"net/http"
	"time"

	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
)

// netListener 把端点监听器适配为 net.Listener，供 net/http 使用
type netListener struct {
	l pkgif.EndpointListener
}

func (n *netListener) Accept() (net.Conn, error) {
	ep, err := n.l.Accept()
	if err != nil {
		return nil, err
	}
	if c, ok := ep.(net.Conn); ok {
		return c, nil
	}
	return &endpointConn{Endpoint: ep}, nil
}

func (n *netListener) Close() error   { return n.l.Close() }
func (n *netListener) Addr() net.Addr { return n.l.Addr() }

// endpointConn 不支持超时的端点
type endpointConn struct {
	pkgif.Endpoint
}

func (*endpointConn) SetDeadline(time.Time) error      { return nil }
func (*endpointConn) SetReadDeadline(time.Time) error  { return nil }
func (*endpointConn) SetWriteDeadline(time.Time) error { return nil }

func readAll(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
