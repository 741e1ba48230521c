package httpcore

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-httpcore/internal/core/server"
	"github.com/dep2p/go-httpcore/pkg/types"
	"github.com/dep2p/go-httpcore/tests/mocks"
)

// startPipePeer 启动内存中的 HTTP/1.1 对端，返回接到它的拨号器
func startPipePeer(t *testing.T, h server.Handler) *mocks.MockDialer {
	t.Helper()
	ln := mocks.NewMockListener()
	srv, err := server.New(h, server.Options{})
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })
	return mocks.PipeDialer(ln)
}

func loginHandler(_ context.Context, req *types.Request) *types.Response {
	if req.URL.Path == "/login" {
		return &types.Response{
			Status:  http.StatusOK,
			Headers: types.FieldsOf("Set-Cookie", "session=abc; Path=/"),
		}
	}
	return &types.Response{Status: http.StatusOK, Body: []byte(req.Headers.Get("Cookie"))}
}

func TestClient_InMemoryPeer(t *testing.T) {
	dialer := startPipePeer(t, loginHandler)
	store := &mocks.MockCookieStore{}
	mm := mocks.NewMockMetrics()

	c := newClient(t, WithDialer(dialer), WithCookieStore(store), WithMetrics(mm))
	assert.Nil(t, c.MetricsHandler())

	resp, err := do(t, c, http.MethodGet, "http://peer.test/login", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)

	// 响应中的 Set-Cookie 写回存储
	captured := store.Captured()
	require.Len(t, captured, 1)
	assert.Equal(t, types.NewOrigin("http", "peer.test", 80), captured[0].Origin)
	require.Len(t, captured[0].Cookies, 1)
	assert.Equal(t, "session", captured[0].Cookies[0].Name)

	// 存储中的 Cookie 附加到后续请求
	store.CookiesValue = []*http.Cookie{{Name: "session", Value: "abc"}}
	resp, err = do(t, c, http.MethodGet, "http://peer.test/whoami", nil)
	require.NoError(t, err)
	assert.Equal(t, "session=abc", string(resp.Body))

	// 两个交换复用同一条内存连接
	assert.Len(t, dialer.Calls(), 1)
	snap := mm.Snapshot()
	assert.Equal(t, 1, snap.Opened)
	assert.Equal(t, 2, snap.Completed["success"])

	// 外部注入的存储不随客户端关闭
	require.NoError(t, c.Close())
	assert.Equal(t, 0, store.CloseCalls)
}

func TestClient_DialFailureFailsExchange(t *testing.T) {
	dialer := &mocks.MockDialer{}
	c := newClient(t, WithDialer(dialer))

	_, err := do(t, c, http.MethodGet, "http://unreachable.test/", nil)
	assert.ErrorIs(t, err, mocks.ErrMockDial)
	assert.Equal(t, []types.Origin{types.NewOrigin("http", "unreachable.test", 80)}, dialer.Calls())

	st, ok := c.DestinationStats(types.NewOrigin("http", "unreachable.test", 80))
	require.True(t, ok)
	assert.Equal(t, uint64(1), st.Failed)
	assert.Empty(t, st.Connections)
}
