package connection

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/dep2p/go-httpcore/config"
	"github.com/dep2p/go-httpcore/internal/core/exchange"
	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
	"github.com/dep2p/go-httpcore/pkg/types"
)

// HTTP1Conn 非多路复用连接，同一时间只承载一个交换
type HTTP1Conn struct {
	*base

	rc *countingReader
	wc *countingWriter
	br *bufio.Reader
	bw *bufio.Writer
}

var _ Connection = (*HTTP1Conn)(nil)

// NewHTTP1 在端点上创建 HTTP/1.1 连接
func NewHTTP1(origin types.Origin, ep pkgif.Endpoint, opts Options) *HTTP1Conn {
	c := &HTTP1Conn{
		base: newBase(config.ProtocolHTTP1, origin, ep, opts),
		rc:   &countingReader{r: ep},
		wc:   &countingWriter{w: ep},
	}
	c.br = bufio.NewReader(c.rc)
	c.bw = bufio.NewWriter(c.wc)
	c.start(c, func() { _ = ep.Close() })
	return c
}

// MaxInFlight 实现 Connection
func (c *HTTP1Conn) MaxInFlight() int {
	return 1
}

// Stats 实现 Connection
func (c *HTTP1Conn) Stats() types.ConnectionStats {
	return c.stats()
}

// Send 实现 Connection
func (c *HTTP1Conn) Send(ex *exchange.Exchange) *SendFailure {
	if f := c.acquire(1); f != nil {
		return f
	}
	go c.roundTrip(ex)
	return nil
}

// Close 实现 Connection
func (c *HTTP1Conn) Close() error {
	c.shutdown(ErrConnectionClosed)
	return nil
}

func (c *HTTP1Conn) roundTrip(ex *exchange.Exchange) {
	// 交换中途的连接状态不可复用，取消只能关闭连接
	if !ex.SetAbort(func(error) { c.shutdown(exchange.ErrCanceled) }) {
		c.release(false)
		c.opts.Owner.Failed(c, ex, Fatal(exchange.ErrCanceled))
		return
	}

	req := ex.Request()
	hreq, err := newHTTPRequest(req)
	if err != nil {
		c.release(false)
		c.opts.Owner.Failed(c, ex, Fatal(err))
		return
	}

	written := c.wc.n.Load()
	err = hreq.Write(c.bw)
	if err == nil {
		err = c.bw.Flush()
	}
	if err != nil {
		// 一个字节都没写出时对端不可能看到请求
		c.fail(ex, &SendFailure{Retryable: c.wc.n.Load() == written, Cause: err})
		return
	}
	c.touch()

	read := c.rc.n.Load()
	resp, err := http.ReadResponse(c.br, hreq)
	if err != nil {
		// 对端在回应任何字节之前关闭：通常是服务端关闭了空闲连接
		nothing := c.rc.n.Load() == read && c.br.Buffered() == 0
		c.fail(ex, &SendFailure{Retryable: nothing && req.Idempotent(), Cause: err})
		return
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		c.fail(ex, Fatal(err))
		return
	}
	c.touch()

	out := &types.Response{
		Status:  resp.StatusCode,
		Headers: types.FieldsFromHeader(resp.Header),
		Body:    body,
	}
	if len(resp.Trailer) > 0 {
		out.Trailers = types.FieldsFromHeader(resp.Trailer)
		out.HasTrailers = true
	}

	c.release(true)
	if resp.Close {
		c.shutdown(ErrPeerClosed)
	}
	c.opts.Owner.Succeeded(c, ex, out)
}

// fail 关闭连接后报告失败
func (c *HTTP1Conn) fail(ex *exchange.Exchange, f *SendFailure) {
	log.Debug("HTTP/1.1 交换失败", "conn", c.id, "exchange", ex.ID(), "retryable", f.Retryable, "err", f.Cause)
	c.release(false)
	c.shutdown(f.Cause)
	c.opts.Owner.Failed(c, ex, f)
}

// newHTTPRequest 转换为 net/http 请求，只用于线路编码
func newHTTPRequest(req *types.Request) (*http.Request, error) {
	var body io.Reader = http.NoBody
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequest(req.Method, req.URL.String(), body)
	if err != nil {
		return nil, err
	}
	for _, f := range req.Headers.Regular() {
		if strings.EqualFold(f.Name, "Host") {
			hreq.Host = f.Value
			continue
		}
		hreq.Header.Add(f.Name, f.Value)
	}
	return hreq, nil
}

type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	r.n.Add(int64(n))
	return n, err
}

type countingWriter struct {
	w io.Writer
	n atomic.Int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.n.Add(int64(n))
	return n, err
}
