package destination

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
	"github.com/dep2p/go-httpcore/internal/core/connection"
	"github.com/dep2p/go-httpcore/internal/core/cookie"
	"github.com/dep2p/go-httpcore/internal/core/eventbus"
	"github.com/dep2p/go-httpcore/internal/core/exchange"
	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
	"github.com/dep2p/go-httpcore/pkg/types"
)

const waitTimeout = 5 * time.Second

// ============================================================================
//                              测试辅助
// ============================================================================

func testConfig() config.ClientConfig {
	cfg := config.DefaultClientConfig()
	cfg.IdleTimeout = 0
	return cfg
}

func tcpDialer(dials *atomic.Int32) pkgif.Dialer {
	return pkgif.DialerFunc(func(ctx context.Context, origin types.Origin) (pkgif.Endpoint, error) {
		dials.Add(1)
		var nd net.Dialer
		return nd.DialContext(ctx, "tcp", origin.Address())
	})
}

// blockingDialer 阻塞到 ctx 结束
func blockingDialer() pkgif.Dialer {
	return pkgif.DialerFunc(func(ctx context.Context, _ types.Origin) (pkgif.Endpoint, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
}

func originOf(t *testing.T, addr string) types.Origin {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return types.NewOrigin("http", host, port)
}

func newExchange(t *testing.T, method string, origin types.Origin, path string) *exchange.Exchange {
	t.Helper()
	req, err := types.NewRequest(method, origin.String()+path, nil, nil)
	require.NoError(t, err)
	ex, err := exchange.New(req, nil)
	require.NoError(t, err)
	return ex
}

func newDestination(t *testing.T, origin types.Origin, opts Options) *Destination {
	t.Helper()
	d := New(origin, opts)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func wait(t *testing.T, ex *exchange.Exchange) (*types.Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	resp, err := ex.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "exchange did not complete")
	return resp, err
}

// recordingServer 记录每个请求的 Cookie 头
type recordingServer struct {
	addr string

	mu      sync.Mutex
	cookies [][]string

	block   chan struct{}
	entered chan struct{}
}

func newRecordingServer(t *testing.T) *recordingServer {
	t.Helper()
	rs := &recordingServer{
		block:   make(chan struct{}),
		entered: make(chan struct{}, 16),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		rs.mu.Lock()
		rs.cookies = append(rs.cookies, r.Header.Values("Cookie"))
		rs.mu.Unlock()
		io.WriteString(w, "ok")
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
		io.WriteString(w, "welcome")
	})
	mux.HandleFunc("/block", func(w http.ResponseWriter, r *http.Request) {
		rs.entered <- struct{}{}
		<-rs.block
		io.WriteString(w, "late")
	})
	mux.HandleFunc("/close", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Connection", "close")
		io.WriteString(w, "bye")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		select {
		case <-rs.block:
		default:
			close(rs.block)
		}
	})
	rs.addr = srv.Listener.Addr().String()
	return rs
}

func (rs *recordingServer) seenCookies() [][]string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([][]string(nil), rs.cookies...)
}

// hangupServer 读完请求头后直接关闭连接，返回累计接受的连接数
func hangupServer(t *testing.T) (string, *atomic.Int32) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	var accepted atomic.Int32
	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			accepted.Add(1)
			go func() {
				buf := make([]byte, 4096)
				_, _ = nc.Read(buf)
				nc.Close()
			}()
		}
	}()
	return ln.Addr().String(), &accepted
}

// ============================================================================
//                              连接池
// ============================================================================

func TestDestination_ReusesConnection(t *testing.T) {
	rs := newRecordingServer(t)
	origin := originOf(t, rs.addr)
	var dials atomic.Int32
	d := newDestination(t, origin, Options{Config: testConfig(), Dialer: tcpDialer(&dials)})

	for i := 0; i < 3; i++ {
		ex := newExchange(t, http.MethodGet, origin, "/echo")
		d.Send(ex)
		resp, err := wait(t, ex)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.Status)
	}

	assert.Equal(t, int32(1), dials.Load())
	require.Eventually(t, func() bool { return d.Stats().Succeeded == 3 }, waitTimeout, 10*time.Millisecond)
	st := d.Stats()
	assert.Len(t, st.Connections, 1)
	assert.Equal(t, 0, st.Queued)
	assert.Equal(t, 1, st.Idle())
}

func TestDestination_OldestFirstSelection(t *testing.T) {
	rs := newRecordingServer(t)
	origin := originOf(t, rs.addr)
	var dials atomic.Int32

	var mu sync.Mutex
	var used []string
	cfg := testConfig()
	cfg.MaxConnectionsPerDestination = 2
	d := newDestination(t, origin, Options{
		Config: cfg,
		Dialer: tcpDialer(&dials),
		Interceptor: &InterceptorFuncs{After: func(c connection.Connection, _ *exchange.Exchange, f *connection.SendFailure) {
			if f == nil {
				mu.Lock()
				used = append(used, c.ID())
				mu.Unlock()
			}
		}},
	})

	// 第一个连接被阻塞的交换占用，第二个交换只能新建连接
	first := newExchange(t, http.MethodGet, origin, "/block")
	d.Send(first)
	<-rs.entered
	second := newExchange(t, http.MethodGet, origin, "/echo")
	d.Send(second)
	_, err := wait(t, second)
	require.NoError(t, err)

	close(rs.block)
	_, err = wait(t, first)
	require.NoError(t, err)

	third := newExchange(t, http.MethodGet, origin, "/echo")
	d.Send(third)
	_, err = wait(t, third)
	require.NoError(t, err)

	conns := d.Connections()
	require.Len(t, conns, 2)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(used) == 3
	}, waitTimeout, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, conns[0].ID(), used[0])
	assert.Equal(t, conns[1].ID(), used[1])
	assert.Equal(t, conns[0].ID(), used[2], "oldest connection is preferred")
	assert.Equal(t, int32(2), dials.Load())
}

func TestDestination_QueuesAtPoolLimit(t *testing.T) {
	rs := newRecordingServer(t)
	origin := originOf(t, rs.addr)
	var dials atomic.Int32
	cfg := testConfig()
	cfg.MaxConnectionsPerDestination = 1
	d := newDestination(t, origin, Options{Config: cfg, Dialer: tcpDialer(&dials)})

	first := newExchange(t, http.MethodGet, origin, "/block")
	d.Send(first)
	<-rs.entered

	second := newExchange(t, http.MethodGet, origin, "/echo")
	d.Send(second)
	st := d.Stats()
	assert.Equal(t, 1, st.Queued)
	assert.Equal(t, 1, st.InUse())

	close(rs.block)
	_, err := wait(t, first)
	require.NoError(t, err)
	_, err = wait(t, second)
	require.NoError(t, err)
	assert.Equal(t, int32(1), dials.Load())
}

func TestDestination_EvictsClosedConnection(t *testing.T) {
	rs := newRecordingServer(t)
	origin := originOf(t, rs.addr)
	var dials atomic.Int32
	cfg := testConfig()
	cfg.MaxConnectionsPerDestination = 1
	d := newDestination(t, origin, Options{Config: cfg, Dialer: tcpDialer(&dials)})

	ex := newExchange(t, http.MethodGet, origin, "/echo")
	d.Send(ex)
	_, err := wait(t, ex)
	require.NoError(t, err)
	conns := d.Connections()
	require.Len(t, conns, 1)

	require.NoError(t, conns[0].Close())
	assert.Empty(t, d.Connections())
	assert.False(t, conns[0].Available())

	// 许可已归还，池上限为 1 时仍能新建连接
	ex = newExchange(t, http.MethodGet, origin, "/echo")
	d.Send(ex)
	_, err = wait(t, ex)
	require.NoError(t, err)
	assert.Equal(t, int32(2), dials.Load())
	require.Len(t, d.Connections(), 1)
	assert.NotEqual(t, conns[0].ID(), d.Connections()[0].ID())
}

func TestDestination_PeerConnectionCloseEvicts(t *testing.T) {
	rs := newRecordingServer(t)
	origin := originOf(t, rs.addr)
	var dials atomic.Int32
	d := newDestination(t, origin, Options{Config: testConfig(), Dialer: tcpDialer(&dials)})

	ex := newExchange(t, http.MethodGet, origin, "/close")
	d.Send(ex)
	_, err := wait(t, ex)
	require.NoError(t, err)
	assert.Empty(t, d.Connections())
}

// ============================================================================
//                              重试
// ============================================================================

func TestDestination_IdleRaceRetriesOnNewConnection(t *testing.T) {
	rs := newRecordingServer(t)
	origin := originOf(t, rs.addr)
	var dials atomic.Int32

	mock := clock.NewMock()
	store, err := cookie.NewMemoryStore(16, mock)
	require.NoError(t, err)
	store.SetCookies(origin, []*http.Cookie{{Name: "session", Value: "abc", Path: "/"}})

	bus := eventbus.NewBus()
	retries, err := bus.Subscribe(new(types.EvtExchangeRetry), eventbus.BufSize(4))
	require.NoError(t, err)
	defer retries.Close()

	cfg := testConfig()
	cfg.IdleTimeout = config.Duration(10 * time.Second)

	var attempts atomic.Int32
	var failures []*connection.SendFailure
	var fmu sync.Mutex
	d := newDestination(t, origin, Options{
		Config:     cfg,
		Dialer:     tcpDialer(&dials),
		Clock:      mock,
		EventBus:   bus,
		Normalizer: exchange.NewNormalizer(store, cfg.UserAgent),
		Interceptor: &InterceptorFuncs{
			// 第一次尝试：连接已选定，让空闲定时器先认领
			Before: func(c connection.Connection, _ *exchange.Exchange) {
				if attempts.Add(1) != 1 {
					return
				}
				go mock.Add(10 * time.Second)
				assert.Eventually(t, func() bool {
					return c.State() != connection.StateActive
				}, waitTimeout, time.Millisecond)
			},
			After: func(_ connection.Connection, _ *exchange.Exchange, f *connection.SendFailure) {
				fmu.Lock()
				failures = append(failures, f)
				fmu.Unlock()
			},
		},
	})

	ex := newExchange(t, http.MethodGet, origin, "/echo")
	d.Send(ex)
	resp, err := wait(t, ex)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, 1, ex.Retries())
	assert.Equal(t, int32(2), dials.Load())

	// 第二次尝试的 OnSend 可能晚于交换完成
	require.Eventually(t, func() bool {
		fmu.Lock()
		defer fmu.Unlock()
		return len(failures) == 2
	}, waitTimeout, time.Millisecond)
	fmu.Lock()
	require.NotNil(t, failures[0])
	assert.True(t, failures[0].Retryable)
	assert.Nil(t, failures[1])
	fmu.Unlock()

	// 规范化只执行一次，Cookie 没有重复
	assert.Equal(t, [][]string{{"session=abc"}}, rs.seenCookies())

	select {
	case e := <-retries.Out():
		evt := e.(types.EvtExchangeRetry)
		assert.Equal(t, ex.ID(), evt.ExchangeID)
		assert.Equal(t, 1, evt.Attempt)
	case <-time.After(waitTimeout):
		t.Fatal("no retry event")
	}
	require.Eventually(t, func() bool { return d.Stats().Retried == 1 }, waitTimeout, 10*time.Millisecond)
}

func TestDestination_BoundedRetries(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
	}{
		{"no retries", 0},
		{"one retry", 1},
		{"three retries", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, accepted := hangupServer(t)
			origin := originOf(t, addr)
			var dials atomic.Int32
			cfg := testConfig()
			cfg.MaxRetries = tt.maxRetries
			d := newDestination(t, origin, Options{Config: cfg, Dialer: tcpDialer(&dials)})

			ex := newExchange(t, http.MethodGet, origin, "/")
			d.Send(ex)
			_, err := wait(t, ex)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrRetriesExhausted)

			var f *connection.SendFailure
			require.ErrorAs(t, err, &f)
			assert.True(t, f.Retryable)
			assert.Equal(t, tt.maxRetries, ex.Retries())
			assert.Equal(t, int32(tt.maxRetries+1), dials.Load())
			require.Eventually(t, func() bool {
				return accepted.Load() == int32(tt.maxRetries+1)
			}, waitTimeout, 10*time.Millisecond)
		})
	}
}

func TestDestination_NonIdempotentNotRetried(t *testing.T) {
	addr, _ := hangupServer(t)
	origin := originOf(t, addr)
	var dials atomic.Int32
	cfg := testConfig()
	cfg.MaxRetries = 3
	d := newDestination(t, origin, Options{Config: cfg, Dialer: tcpDialer(&dials)})

	ex := newExchange(t, http.MethodPost, origin, "/")
	d.Send(ex)
	_, err := wait(t, ex)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 0, ex.Retries())
	assert.Equal(t, int32(1), dials.Load())
}

func TestDestination_CapturesCookies(t *testing.T) {
	rs := newRecordingServer(t)
	origin := originOf(t, rs.addr)
	var dials atomic.Int32
	store, err := cookie.NewMemoryStore(16, clock.NewMock())
	require.NoError(t, err)
	d := newDestination(t, origin, Options{
		Config:     testConfig(),
		Dialer:     tcpDialer(&dials),
		Normalizer: exchange.NewNormalizer(store, ""),
	})

	login := newExchange(t, http.MethodGet, origin, "/login")
	d.Send(login)
	_, err = wait(t, login)
	require.NoError(t, err)

	ex := newExchange(t, http.MethodGet, origin, "/echo")
	d.Send(ex)
	_, err = wait(t, ex)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"session=abc"}}, rs.seenCookies())
}

// ============================================================================
//                              失败与关闭
// ============================================================================

func TestDestination_DialFailureFailsHead(t *testing.T) {
	dialErr := errors.New("connection refused")
	origin := types.NewOrigin("http", "example.invalid", 80)
	d := newDestination(t, origin, Options{
		Config: testConfig(),
		Dialer: pkgif.DialerFunc(func(context.Context, types.Origin) (pkgif.Endpoint, error) {
			return nil, dialErr
		}),
	})

	ex := newExchange(t, http.MethodGet, origin, "/")
	d.Send(ex)
	_, err := wait(t, ex)
	assert.ErrorIs(t, err, dialErr)
	require.Eventually(t, func() bool { return d.Stats().Failed == 1 }, waitTimeout, 10*time.Millisecond)
	assert.Equal(t, 0, d.Stats().PendingDials)
}

func TestDestination_NoDialer(t *testing.T) {
	origin := types.NewOrigin("http", "example.invalid", 80)
	d := newDestination(t, origin, Options{Config: testConfig()})

	ex := newExchange(t, http.MethodGet, origin, "/")
	d.Send(ex)
	_, err := wait(t, ex)
	assert.ErrorIs(t, err, ErrNoDialer)
}

func TestDestination_CancelQueued(t *testing.T) {
	origin := types.NewOrigin("http", "example.invalid", 80)
	d := newDestination(t, origin, Options{Config: testConfig(), Dialer: blockingDialer()})

	ex := newExchange(t, http.MethodGet, origin, "/")
	d.Send(ex)
	assert.Equal(t, 1, d.Stats().Queued)

	assert.True(t, ex.Cancel())
	_, err := wait(t, ex)
	assert.ErrorIs(t, err, exchange.ErrCanceled)
	assert.Equal(t, 0, d.Stats().Queued)
}

func TestDestination_QueueFull(t *testing.T) {
	origin := types.NewOrigin("http", "example.invalid", 80)
	cfg := testConfig()
	cfg.MaxQueuedPerDestination = 1
	d := newDestination(t, origin, Options{Config: cfg, Dialer: blockingDialer()})

	first := newExchange(t, http.MethodGet, origin, "/")
	d.Send(first)
	second := newExchange(t, http.MethodGet, origin, "/")
	d.Send(second)

	_, err := wait(t, second)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.False(t, first.IsDone())
}

func TestDestination_Close(t *testing.T) {
	origin := types.NewOrigin("http", "example.invalid", 80)
	d := New(origin, Options{Config: testConfig(), Dialer: blockingDialer()})

	queued := newExchange(t, http.MethodGet, origin, "/")
	d.Send(queued)
	require.NoError(t, d.Close())

	_, err := wait(t, queued)
	assert.ErrorIs(t, err, ErrDestinationClosed)

	late := newExchange(t, http.MethodGet, origin, "/")
	d.Send(late)
	_, err = wait(t, late)
	assert.ErrorIs(t, err, ErrDestinationClosed)

	require.NoError(t, d.Close())
	require.Eventually(t, func() bool { return d.Stats().PendingDials == 0 }, waitTimeout, 10*time.Millisecond)
}

func TestDestination_CompleteEvent(t *testing.T) {
	rs := newRecordingServer(t)
	origin := originOf(t, rs.addr)
	var dials atomic.Int32
	bus := eventbus.NewBus()
	sub, err := bus.Subscribe(new(types.EvtExchangeComplete), eventbus.BufSize(4))
	require.NoError(t, err)
	defer sub.Close()
	opened, err := bus.Subscribe(new(types.EvtConnectionOpened), eventbus.BufSize(4))
	require.NoError(t, err)
	defer opened.Close()

	d := newDestination(t, origin, Options{Config: testConfig(), Dialer: tcpDialer(&dials), EventBus: bus})
	ex := newExchange(t, http.MethodGet, origin, "/echo")
	d.Send(ex)
	_, err = wait(t, ex)
	require.NoError(t, err)

	select {
	case e := <-opened.Out():
		assert.Equal(t, string(config.ProtocolHTTP1), e.(types.EvtConnectionOpened).Protocol)
	case <-time.After(waitTimeout):
		t.Fatal("no opened event")
	}
	select {
	case e := <-sub.Out():
		evt := e.(types.EvtExchangeComplete)
		assert.Equal(t, ex.ID(), evt.ExchangeID)
		assert.Equal(t, 200, evt.Status)
		assert.NoError(t, evt.Err)
	case <-time.After(waitTimeout):
		t.Fatal("no complete event")
	}
}
