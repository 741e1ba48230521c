package httpcore

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-httpcore/config"
	"github.com/dep2p/go-httpcore/internal/core/cookie"
	"github.com/dep2p/go-httpcore/internal/core/eventbus"
	"github.com/dep2p/go-httpcore/internal/core/server"
	"github.com/dep2p/go-httpcore/internal/core/transport/quic"
	"github.com/dep2p/go-httpcore/internal/core/transport/tcp"
	"github.com/dep2p/go-httpcore/pkg/types"
)

const waitTimeout = 5 * time.Second

// ============================================================================
//                              测试辅助
// ============================================================================

// hangupListener 前 hangups 个连接读到请求后直接关闭，之后的连接正常交给服务
type hangupListener struct {
	net.Listener
	hangups  int32
	accepted atomic.Int32
}

func (l *hangupListener) Accept() (net.Conn, error) {
	for {
		c, err := l.Listener.Accept()
		if err != nil {
			return nil, err
		}
		if l.accepted.Add(1) > l.hangups {
			return c, nil
		}
		go func() {
			buf := make([]byte, 4096)
			_, _ = c.Read(buf)
			_ = c.Close()
		}()
	}
}

// cookieRecorder 记录每个请求携带的 Cookie 头
type cookieRecorder struct {
	mu      sync.Mutex
	cookies [][]string
}

func (r *cookieRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	r.cookies = append(r.cookies, req.Header.Values("Cookie"))
	r.mu.Unlock()
	_, _ = io.WriteString(w, "ok")
}

func (r *cookieRecorder) recorded() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.cookies...)
}

// startHangupServer 启动 HTTP/1.1 服务，前 hangups 个连接被对端关闭
func startHangupServer(t *testing.T, hangups int32, h http.Handler) (*httptest.Server, *hangupListener) {
	t.Helper()
	srv := httptest.NewUnstartedServer(h)
	hl := &hangupListener{Listener: srv.Listener, hangups: hangups}
	srv.Listener = hl
	srv.Start()
	t.Cleanup(srv.Close)
	return srv, hl
}

func newClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	c, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func originOf(t *testing.T, scheme string, addr net.Addr) types.Origin {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr.String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return types.NewOrigin(scheme, host, port)
}

func do(t *testing.T, c *Client, method, uri string, body []byte) (*Response, error) {
	t.Helper()
	req, err := NewRequest(method, uri, nil, body)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	return c.Do(ctx, req)
}

// ============================================================================
//                              构造
// ============================================================================

func TestNew_Defaults(t *testing.T) {
	c := newClient(t)

	cfg := c.Config()
	assert.Equal(t, config.ProtocolHTTP1, cfg.Client.Protocol)
	assert.Equal(t, 1, cfg.Client.MaxRetries)
	assert.NotNil(t, c.EventBus())
	assert.Nil(t, c.MetricsHandler())
	assert.Empty(t, c.Stats())
}

func TestNew_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"nil config", WithConfig(nil)},
		{"negative retries", WithMaxRetries(-1)},
		{"zero connections", WithMaxConnectionsPerDestination(0)},
		{"negative idle timeout", WithIdleTimeout(-time.Second)},
		{"nil dialer", WithDialer(nil)},
		{"unknown protocol", WithProtocol("spdy")},
		{"unknown network", WithNetwork("sctp")},
		{"missing config file", WithConfigFile("/nonexistent/httpcore.json")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opt)
			assert.Error(t, err)
		})
	}
}

func TestNew_MetricsEnabled(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Metrics.Enabled = true
	c := newClient(t, WithConfig(cfg))
	assert.NotNil(t, c.MetricsHandler())
}

// ============================================================================
//                              交换
// ============================================================================

func TestClient_DoAndSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-UA", r.UserAgent())
		_, _ = io.WriteString(w, r.Method)
	}))
	defer srv.Close()

	c := newClient(t, WithUserAgent("httpcore-test"))

	resp, err := do(t, c, http.MethodGet, srv.URL+"/", nil)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "GET", string(resp.Body))
	assert.Equal(t, "httpcore-test", resp.Headers.Get("X-UA"))

	// 异步发送：监听器恰好收到一次回调
	ex, err := c.NewExchange(http.MethodPut, srv.URL+"/", nil, []byte("x"))
	require.NoError(t, err)
	var calls atomic.Int32
	done := make(chan *Response, 1)
	c.Send(ex, ListenerFunc(func(_ *Exchange, resp *Response, err error) {
		calls.Add(1)
		assert.NoError(t, err)
		done <- resp
	}))
	select {
	case resp := <-done:
		assert.Equal(t, "PUT", string(resp.Body))
	case <-time.After(waitTimeout):
		t.Fatal("listener not called")
	}
	assert.Equal(t, int32(1), calls.Load())

	// 两个交换复用同一个连接
	stats := c.Stats()
	require.Len(t, stats, 1)
	assert.Len(t, stats[0].Connections, 1)
	assert.Equal(t, uint64(2), stats[0].Succeeded)
}

// 重试的交换不重复规范化：Cookie 只出现一次
func TestClient_RetryNormalizesOnce(t *testing.T) {
	rec := &cookieRecorder{}
	srv, hl := startHangupServer(t, 1, rec)
	u := srv.Listener.Addr()

	store, err := cookie.NewMemoryStore(16, nil)
	require.NoError(t, err)
	store.SetCookies(originOf(t, "http", u), []*http.Cookie{{Name: "session", Value: "abc", Path: "/"}})

	bus := eventbus.NewBus()
	sub, err := bus.Subscribe(new(types.EvtExchangeRetry), eventbus.BufSize(4))
	require.NoError(t, err)
	defer sub.Close()

	c := newClient(t, WithCookieStore(store), WithEventBus(bus), WithMaxRetries(1))

	resp, err := do(t, c, http.MethodGet, srv.URL+"/", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.Body))

	assert.Equal(t, [][]string{{"session=abc"}}, rec.recorded())
	assert.Equal(t, int32(2), hl.accepted.Load())

	select {
	case evt := <-sub.Out():
		retry := evt.(types.EvtExchangeRetry)
		assert.Equal(t, 1, retry.Attempt)
	case <-time.After(waitTimeout):
		t.Fatal("no retry event")
	}

	stats := c.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, uint64(1), stats[0].Retried)
}

func TestClient_BoundedRetries(t *testing.T) {
	tests := []struct {
		retries int
	}{
		{0}, {2},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.retries), func(t *testing.T) {
			srv, hl := startHangupServer(t, 1000, http.NotFoundHandler())
			c := newClient(t, WithMaxRetries(tt.retries))

			_, err := do(t, c, http.MethodGet, srv.URL+"/", nil)
			require.Error(t, err)
			if tt.retries > 0 {
				assert.ErrorIs(t, err, ErrRetriesExhausted)
			}
			assert.Equal(t, int32(tt.retries+1), hl.accepted.Load())
		})
	}
}

func TestClient_NonIdempotentNotRetried(t *testing.T) {
	srv, hl := startHangupServer(t, 1000, http.NotFoundHandler())
	c := newClient(t, WithMaxRetries(3))

	_, err := do(t, c, http.MethodPost, srv.URL+"/", []byte("body"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, int32(1), hl.accepted.Load())
}

// 对端关闭的连接离开连接池
func TestClient_PoolEviction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Connection", "close")
	}))
	defer srv.Close()

	c := newClient(t)
	_, err := do(t, c, http.MethodGet, srv.URL+"/", nil)
	require.NoError(t, err)

	origin := originOf(t, "http", srv.Listener.Addr())
	require.Eventually(t, func() bool {
		st, ok := c.DestinationStats(origin)
		return ok && len(st.Connections) == 0
	}, waitTimeout, 10*time.Millisecond)

	// 新请求在新连接上完成
	_, err = do(t, c, http.MethodGet, srv.URL+"/", nil)
	require.NoError(t, err)
}

// 空闲超时拆除连接不向调用方报告错误
func TestClient_IdleTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	mock := clock.NewMock()
	c := newClient(t, WithClock(mock), WithIdleTimeout(time.Second))
	sub, err := c.EventBus().Subscribe(new(types.EvtConnectionIdleTimeout), eventbus.BufSize(4))
	require.NoError(t, err)
	defer sub.Close()

	_, err = do(t, c, http.MethodGet, srv.URL+"/", nil)
	require.NoError(t, err)

	mock.Add(2 * time.Second)
	select {
	case evt := <-sub.Out():
		assert.True(t, evt.(types.EvtConnectionIdleTimeout).Claimed)
	case <-time.After(waitTimeout):
		t.Fatal("no idle timeout event")
	}

	origin := originOf(t, "http", srv.Listener.Addr())
	require.Eventually(t, func() bool {
		st, _ := c.DestinationStats(origin)
		return len(st.Connections) == 0
	}, waitTimeout, 10*time.Millisecond)

	resp, err := do(t, c, http.MethodGet, srv.URL+"/", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.Body))
	st, _ := c.DestinationStats(origin)
	assert.Equal(t, uint64(0), st.Failed)
}

func TestClient_DoContextCanceled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := newClient(t)
	req, err := NewRequest(http.MethodGet, srv.URL+"/", nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = c.Do(ctx, req)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Close(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c, err := New()
	require.NoError(t, err)
	_, err = do(t, c, http.MethodGet, srv.URL+"/", nil)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = do(t, c, http.MethodGet, srv.URL+"/", nil)
	assert.ErrorIs(t, err, ErrClientClosed)

	c.Send(nil, nil)
}

// ============================================================================
//                              h2c
// ============================================================================

func trailerHandler(_ context.Context, req *types.Request) *types.Response {
	switch req.URL.Path {
	case "/empty-trailers":
		return &types.Response{Status: 200, Body: []byte("body"), HasTrailers: true}
	case "/trailers":
		return &types.Response{Status: 200, Trailers: types.FieldsOf("grpc-status", "0"), HasTrailers: true}
	default:
		return &types.Response{Status: 200, Body: req.Body}
	}
}

func startH2CServer(t *testing.T) types.Origin {
	t.Helper()
	tr := tcp.New(time.Second, 0)
	t.Cleanup(func() { _ = tr.Close() })
	ln, err := tr.Listen("127.0.0.1:0")
	require.NoError(t, err)

	srv, err := server.New(trailerHandler, server.Options{Protocol: config.ProtocolH2C})
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })
	return originOf(t, "http", ln.Addr())
}

func TestClient_H2CMultiplexes(t *testing.T) {
	origin := startH2CServer(t)
	c := newClient(t, WithProtocol(config.ProtocolH2C))

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := []byte("req-" + strconv.Itoa(i))
			req, err := NewRequest(http.MethodPost, origin.String()+"/echo", nil, body)
			if err != nil {
				errs <- err
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
			defer cancel()
			resp, err := c.Do(ctx, req)
			if err != nil {
				errs <- err
				return
			}
			if string(resp.Body) != string(body) {
				errs <- errors.New("body mismatch: " + string(resp.Body))
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	// 所有流共享一个连接
	st, ok := c.DestinationStats(origin)
	require.True(t, ok)
	assert.Len(t, st.Connections, 1)
	assert.Equal(t, uint64(n), st.Succeeded)
}

// 空尾部块仍然完成交换：一次终结回调，零个尾部字段
func TestClient_H2CEmptyTrailers(t *testing.T) {
	origin := startH2CServer(t)
	c := newClient(t, WithProtocol(config.ProtocolH2C))

	ex, err := c.NewExchange(http.MethodGet, origin.String()+"/empty-trailers", nil, nil)
	require.NoError(t, err)

	var calls atomic.Int32
	c.Send(ex, ListenerFunc(func(*Exchange, *Response, error) { calls.Add(1) }))

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	resp, err := ex.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "body", string(resp.Body))
	assert.True(t, resp.HasTrailers)
	assert.Equal(t, 0, resp.Trailers.Len())

	// 监听器在 Wait 返回之后才可能被调用
	require.Eventually(t, func() bool { return calls.Load() == 1 }, waitTimeout, 5*time.Millisecond)
	assert.Never(t, func() bool { return calls.Load() > 1 }, 50*time.Millisecond, 5*time.Millisecond)

	resp, err = do(t, c, http.MethodGet, origin.String()+"/trailers", nil)
	require.NoError(t, err)
	assert.Empty(t, resp.Body)
	assert.Equal(t, "0", resp.Trailers.Get("grpc-status"))
}

// ============================================================================
//                              QUIC
// ============================================================================

func TestClient_H2COverQUIC(t *testing.T) {
	serverTLS, _, err := quic.SelfSigned("127.0.0.1")
	require.NoError(t, err)
	qt := quic.New(quic.Options{})
	t.Cleanup(func() { _ = qt.Close() })
	ln, err := qt.Listen("127.0.0.1:0", serverTLS)
	require.NoError(t, err)

	srv, err := server.New(trailerHandler, server.Options{Protocol: config.ProtocolH2C})
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })
	origin := originOf(t, "https", ln.Addr())

	cfg := config.NewConfig()
	cfg.Client.Protocol = config.ProtocolH2C
	cfg.Transport.Network = config.NetworkQUIC
	cfg.Transport.InsecureSkipVerify = true
	c := newClient(t, WithConfig(cfg))

	resp, err := do(t, c, http.MethodPost, origin.String()+"/echo", []byte("over quic"))
	require.NoError(t, err)
	assert.Equal(t, "over quic", string(resp.Body))
}
