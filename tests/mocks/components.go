package mocks

import (
	"net/http"
	"sync"

	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
	"github.com/dep2p/go-httpcore/pkg/types"
)

// ============================================================================
//                              MockCookieStore
// ============================================================================

// SetCookiesCall SetCookies 调用记录
type SetCookiesCall struct {
	Origin  types.Origin
	Cookies []*http.Cookie
}

// MockCookieStore 模拟 CookieStore 接口实现
//
// 未设置 CookiesFunc 时返回 CookiesValue。
type MockCookieStore struct {
	CookiesValue []*http.Cookie

	// 可覆盖的方法
	CookiesFunc    func(origin types.Origin, path string) []*http.Cookie
	SetCookiesFunc func(origin types.Origin, cookies []*http.Cookie)
	CloseFunc      func() error

	mu sync.Mutex

	// 调用记录
	CookiesCalls    int
	SetCookiesCalls []SetCookiesCall
	CloseCalls      int
}

var _ pkgif.CookieStore = (*MockCookieStore)(nil)

// Cookies 实现 CookieStore
func (m *MockCookieStore) Cookies(origin types.Origin, path string) []*http.Cookie {
	m.mu.Lock()
	m.CookiesCalls++
	m.mu.Unlock()
	if m.CookiesFunc != nil {
		return m.CookiesFunc(origin, path)
	}
	return m.CookiesValue
}

// SetCookies 实现 CookieStore
func (m *MockCookieStore) SetCookies(origin types.Origin, cookies []*http.Cookie) {
	m.mu.Lock()
	m.SetCookiesCalls = append(m.SetCookiesCalls, SetCookiesCall{Origin: origin, Cookies: cookies})
	m.mu.Unlock()
	if m.SetCookiesFunc != nil {
		m.SetCookiesFunc(origin, cookies)
	}
}

// Close 实现 CookieStore
func (m *MockCookieStore) Close() error {
	m.mu.Lock()
	m.CloseCalls++
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Captured 返回 SetCookies 记录的副本
func (m *MockCookieStore) Captured() []SetCookiesCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SetCookiesCall(nil), m.SetCookiesCalls...)
}

// ============================================================================
//                              MockMetrics
// ============================================================================

// MetricsSnapshot MockMetrics 的计数快照
type MetricsSnapshot struct {
	Opened       int
	Closed       int
	IdleTimeouts int
	Retries      int
	Completed    map[string]int
	Streams      int
}

// MockMetrics 模拟 Metrics 接口实现，按类别计数
type MockMetrics struct {
	mu   sync.Mutex
	snap MetricsSnapshot
}

var _ pkgif.Metrics = (*MockMetrics)(nil)

// NewMockMetrics 创建 MockMetrics
func NewMockMetrics() *MockMetrics {
	return &MockMetrics{snap: MetricsSnapshot{Completed: make(map[string]int)}}
}

func (m *MockMetrics) update(fn func(s *MetricsSnapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap.Completed == nil {
		m.snap.Completed = make(map[string]int)
	}
	fn(&m.snap)
}

// ConnectionOpened 实现 Metrics
func (m *MockMetrics) ConnectionOpened(types.Origin, string) {
	m.update(func(s *MetricsSnapshot) { s.Opened++ })
}

// ConnectionClosed 实现 Metrics
func (m *MockMetrics) ConnectionClosed(types.Origin, string) {
	m.update(func(s *MetricsSnapshot) { s.Closed++ })
}

// IdleTimeout 实现 Metrics
func (m *MockMetrics) IdleTimeout(types.Origin, bool) {
	m.update(func(s *MetricsSnapshot) { s.IdleTimeouts++ })
}

// ExchangeRetried 实现 Metrics
func (m *MockMetrics) ExchangeRetried(types.Origin) {
	m.update(func(s *MetricsSnapshot) { s.Retries++ })
}

// ExchangeCompleted 实现 Metrics
func (m *MockMetrics) ExchangeCompleted(_ types.Origin, result string) {
	m.update(func(s *MetricsSnapshot) { s.Completed[result]++ })
}

// StreamsActive 实现 Metrics
func (m *MockMetrics) StreamsActive(delta int) {
	m.update(func(s *MetricsSnapshot) { s.Streams += delta })
}

// Snapshot 返回当前计数的副本
func (m *MockMetrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.snap
	out.Completed = make(map[string]int, len(m.snap.Completed))
	for k, v := range m.snap.Completed {
		out.Completed[k] = v
	}
	return out
}
