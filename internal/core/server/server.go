package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/dep2p/go-httpcore/config"
	"github.com/dep2p/go-httpcore/internal/core/session"
	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
	"github.com/dep2p/go-httpcore/pkg/types"
)

// Handler 应用处理函数，返回 nil 时回应 500
type Handler func(ctx context.Context, req *types.Request) *types.Response

// Options 服务选项
type Options struct {
	// Protocol 线路协议，默认 http/1.1
	Protocol config.Protocol

	// Sessions h2c 会话工厂
	Sessions *session.Factory
}

// Server 对端服务
type Server struct {
	handler  Handler
	protocol config.Protocol
	factory  *session.Factory

	ctx    context.Context
	cancel context.CancelFunc

	h1 *http.Server

	mu        sync.Mutex
	listeners map[pkgif.EndpointListener]struct{}
	sessions  map[*session.Session]struct{}
	closed    bool
}

// New 创建服务
func New(h Handler, opts Options) (*Server, error) {
	if h == nil {
		return nil, ErrNilHandler
	}
	if opts.Protocol == "" {
		opts.Protocol = config.ProtocolHTTP1
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewFactory(session.DefaultConfig(), nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		handler:   h,
		protocol:  opts.Protocol,
		factory:   opts.Sessions,
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[pkgif.EndpointListener]struct{}),
		sessions:  make(map[*session.Session]struct{}),
	}
	s.h1 = &http.Server{
		Handler:           http.HandlerFunc(s.serveHTTP),
		ReadHeaderTimeout: 30 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	return s, nil
}

// Protocol 线路协议
func (s *Server) Protocol() config.Protocol {
	return s.protocol
}

// Serve 在监听器上提供服务，阻塞到监听器关闭
//
// 服务关闭后返回 ErrServerClosed。
func (s *Server) Serve(l pkgif.EndpointListener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.listeners[l] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.listeners, l)
		s.mu.Unlock()
	}()

	log.Info("开始提供服务", "addr", l.Addr(), "protocol", s.protocol)
	var err error
	if s.protocol == config.ProtocolH2C {
		err = s.serveSessions(l)
	} else {
		err = s.h1.Serve(&netListener{l: l})
	}
	if s.isClosed() || errors.Is(err, http.ErrServerClosed) {
		return ErrServerClosed
	}
	return err
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close 关闭监听器与所有连接，h2c 会话先发送 GOAWAY
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listeners := make([]pkgif.EndpointListener, 0, len(s.listeners))
	for l := range s.listeners {
		listeners = append(listeners, l)
	}
	sessions := make([]*session.Session, 0, len(s.sessions))
	for ss := range s.sessions {
		sessions = append(sessions, ss)
	}
	s.mu.Unlock()

	s.cancel()
	var err error
	if cerr := s.h1.Close(); cerr != nil && !errors.Is(cerr, http.ErrServerClosed) {
		err = multierr.Append(err, cerr)
	}
	for _, l := range listeners {
		if cerr := l.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}
	for _, ss := range sessions {
		err = multierr.Append(err, ss.Close())
	}
	return err
}

// ============================================================================
//                              http/1.1
// ============================================================================

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := requestFromHTTP(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := s.call(r.Context(), req)

	h := w.Header()
	for _, f := range resp.Headers.Regular() {
		h.Add(f.Name, f.Value)
	}
	for _, f := range resp.Trailers {
		h.Add("Trailer", f.Name)
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
	for _, f := range resp.Trailers {
		h.Add(f.Name, f.Value)
	}
}

func requestFromHTTP(r *http.Request) (*types.Request, error) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	body, err := readAll(r)
	if err != nil {
		return nil, err
	}
	return types.NewRequest(r.Method, scheme+"://"+r.Host+r.URL.RequestURI(), types.FieldsFromHeader(r.Header), body)
}

// call 调用处理函数，nil 响应映射为 500
func (s *Server) call(ctx context.Context, req *types.Request) *types.Response {
	resp := s.handler(ctx, req)
	if resp == nil {
		return &types.Response{Status: http.StatusInternalServerError}
	}
	if resp.Status == 0 {
		resp.Status = http.StatusOK
	}
	return resp
}

// ============================================================================
//                              h2c
// ============================================================================

func (s *Server) serveSessions(l pkgif.EndpointListener) error {
	for {
		ep, err := l.Accept()
		if err != nil {
			return err
		}

		ss := s.factory.New(ep, session.RoleServer, session.WithListener(&session.SessionHandlers{
			Stream: s.onStream,
			Close: func(closed *session.Session, err error) {
				s.mu.Lock()
				delete(s.sessions, closed)
				s.mu.Unlock()
				log.Debug("服务端会话关闭", "session", closed.ID(), "err", err)
			},
		}))

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = ep.Close()
			return ErrServerClosed
		}
		s.sessions[ss] = struct{}{}
		s.mu.Unlock()

		if err := ss.Start(); err != nil {
			log.Debug("服务端会话启动失败", "remote", ep.RemoteAddr(), "err", err)
			_ = ss.Close()
		}
	}
}

// onStream 收集请求，对端结束发送方向后在独立 goroutine 中处理
func (s *Server) onStream(*session.Stream) session.StreamListener {
	var (
		fields types.Fields
		body   []byte
	)
	return &session.StreamHandlers{
		Headers: func(_ *session.Stream, f types.Fields, _ bool) { fields = f },
		Data:    func(_ *session.Stream, d []byte, _ bool) { body = append(body, d...) },
		Complete: func(st *session.Stream) {
			go s.respond(st, fields, body)
		},
	}
}

func (s *Server) respond(st *session.Stream, fields types.Fields, body []byte) {
	req, err := requestFromFields(fields, body)
	if err != nil {
		log.Debug("无效请求头", "stream", st.ID(), "err", err)
		_ = st.SendHeaders(types.FieldsOf(":status", strconv.Itoa(http.StatusBadRequest)), true)
		return
	}

	resp := s.call(s.ctx, req)

	out := types.FieldsOf(":status", strconv.Itoa(resp.Status))
	for _, f := range resp.Headers.Regular() {
		name := strings.ToLower(f.Name)
		switch name {
		case "connection", "keep-alive", "proxy-connection", "transfer-encoding", "upgrade":
			continue
		}
		out = append(out, types.Field{Name: name, Value: f.Value})
	}

	hasBody := len(resp.Body) > 0
	if err := st.SendHeaders(out, !hasBody && !resp.HasTrailers); err != nil {
		return
	}
	if hasBody {
		if err := st.SendData(resp.Body, !resp.HasTrailers); err != nil {
			return
		}
	}
	if resp.HasTrailers {
		_ = st.SendTrailers(resp.Trailers.Regular())
	}
}

func requestFromFields(fields types.Fields, body []byte) (*types.Request, error) {
	scheme := fields.Get(":scheme")
	if scheme == "" {
		scheme = "http"
	}
	authority := fields.Get(":authority")
	path := fields.Get(":path")
	if authority == "" || path == "" {
		return nil, errors.New("missing :authority or :path")
	}
	return types.NewRequest(fields.Get(":method"), scheme+"://"+authority+path, fields.Regular(), body)
}
