package connection

import (
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/dep2p/go-httpcore/config"
	"github.com/dep2p/go-httpcore/internal/core/exchange"
	"github.com/dep2p/go-httpcore/internal/core/frame"
	"github.com/dep2p/go-httpcore/internal/core/session"
	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
	"github.com/dep2p/go-httpcore/pkg/types"
)

// HTTP2Conn 多路复用连接，独占一个会话，每个交换是一个流
type HTTP2Conn struct {
	*base

	session *session.Session
}

var _ Connection = (*HTTP2Conn)(nil)

// NewHTTP2 在端点上创建 h2c 连接并完成前言
func NewHTTP2(origin types.Origin, ep pkgif.Endpoint, opts Options) (*HTTP2Conn, error) {
	c := &HTTP2Conn{base: newBase(config.ProtocolH2C, origin, ep, opts)}

	var (
		readyMu sync.Mutex
		ready   bool
	)
	c.session = c.opts.Sessions.New(ep, session.RoleClient,
		session.WithActivity(c.touch),
		session.WithListener(&session.SessionHandlers{
			GoAway: func(_ *session.Session, lastID uint32, code frame.ErrCode) {
				log.Debug("收到 GOAWAY，连接停止接受新交换", "conn", c.id, "last", lastID, "code", code)
				c.drain()
			},
			Close: func(_ *session.Session, err error) {
				readyMu.Lock()
				started := ready
				readyMu.Unlock()
				if started {
					c.onSessionClose(err)
				}
			},
		}),
	)
	if err := c.session.Start(); err != nil {
		return nil, err
	}

	c.start(c, func() { _ = c.session.Close() })

	readyMu.Lock()
	ready = true
	readyMu.Unlock()

	// Start 与 ready 之间会话可能已经终止
	select {
	case <-c.session.Done():
		c.onSessionClose(c.session.Err())
	default:
	}
	return c, nil
}

func (c *HTTP2Conn) onSessionClose(err error) {
	if err == nil {
		err = ErrConnectionClosed
	}
	c.shutdown(err)
}

// Session 底层会话
func (c *HTTP2Conn) Session() *session.Session {
	return c.session
}

// MaxInFlight 实现 Connection
func (c *HTTP2Conn) MaxInFlight() int {
	return c.session.MaxStreams()
}

// Stats 实现 Connection
func (c *HTTP2Conn) Stats() types.ConnectionStats {
	return c.stats()
}

// Send 实现 Connection
func (c *HTTP2Conn) Send(ex *exchange.Exchange) *SendFailure {
	if f := c.acquire(c.MaxInFlight()); f != nil {
		return f
	}
	go c.openStream(ex)
	return nil
}

// Close 实现 Connection
func (c *HTTP2Conn) Close() error {
	c.shutdown(ErrConnectionClosed)
	return nil
}

func (c *HTTP2Conn) openStream(ex *exchange.Exchange) {
	if ex.IsDone() {
		c.release(false)
		c.opts.Owner.Failed(c, ex, Fatal(exchange.ErrCanceled))
		return
	}

	req := ex.Request()
	rl := &responseListener{conn: c, ex: ex}
	st, err := c.session.NewStream(requestFields(req, c.origin), len(req.Body) == 0, rl)
	if err != nil {
		// 头部写出失败时对端可能已收到部分字节，只有幂等请求可以重发
		retryable := session.IsRetryable(err) ||
			(errors.Is(err, session.ErrHeadersNotWritten) && req.Idempotent())
		log.Debug("打开流失败", "conn", c.id, "exchange", ex.ID(), "retryable", retryable, "err", err)
		c.release(false)
		c.opts.Owner.Failed(c, ex, &SendFailure{Retryable: retryable, Cause: err})
		return
	}

	if !ex.SetAbort(func(error) { _ = st.Reset(frame.CodeCancel) }) {
		if _, err := ex.Result(); errors.Is(err, exchange.ErrCanceled) {
			_ = st.Reset(frame.CodeCancel)
		}
		return
	}

	if len(req.Body) > 0 {
		// 失败经由流监听器报告
		_ = st.SendData(req.Body, true)
	}
}

// responseListener 把流回调组装为响应
//
// 回调都在会话读循环中按序调用，无需加锁。
type responseListener struct {
	conn *HTTP2Conn
	ex   *exchange.Exchange
	resp types.Response
}

func (l *responseListener) OnHeaders(_ *session.Stream, fields types.Fields, _ bool) {
	status, _ := strconv.Atoi(fields.Get(":status"))
	if status >= 100 && status < 200 && status != 101 {
		return
	}
	l.resp.Status = status
	l.resp.Headers = fields.Regular()
}

func (l *responseListener) OnData(_ *session.Stream, data []byte, _ bool) {
	l.resp.Body = append(l.resp.Body, data...)
}

func (l *responseListener) OnTrailers(_ *session.Stream, fields types.Fields) {
	l.resp.Trailers = fields.Regular()
	l.resp.HasTrailers = true
}

func (l *responseListener) OnComplete(*session.Stream) {
	c := l.conn
	c.release(true)
	resp := l.resp
	c.opts.Owner.Succeeded(c, l.ex, &resp)
}

func (l *responseListener) OnFailure(_ *session.Stream, err error) {
	c := l.conn
	c.release(false)
	c.opts.Owner.Failed(c, l.ex, &SendFailure{Retryable: session.IsRetryable(err), Cause: err})
}

// requestFields 生成请求头部块：伪头部在前，去掉连接级头部
func requestFields(req *types.Request, origin types.Origin) types.Fields {
	fields := types.FieldsOf(
		":method", req.Method,
		":scheme", origin.Scheme,
		":authority", origin.Authority(),
		":path", req.Path(),
	)
	for _, f := range req.Headers.Regular() {
		name := strings.ToLower(f.Name)
		switch name {
		case "host", "connection", "keep-alive", "proxy-connection", "transfer-encoding", "upgrade":
			continue
		}
		fields = append(fields, types.Field{Name: name, Value: f.Value})
	}
	if len(req.Body) > 0 && !fields.Has("content-length") {
		fields = append(fields, types.Field{Name: "content-length", Value: strconv.Itoa(len(req.Body))})
	}
	return fields
}
