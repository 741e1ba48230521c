package mocks

import (
	"context"
	"errors"
	"net"
	"sync"

	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
	"github.com/dep2p/go-httpcore/pkg/types"
)

// ErrMockDial MockDialer 未设置 DialFunc 时返回的错误
var ErrMockDial = errors.New("mock: dial not configured")

// ErrListenerClosed MockListener 关闭后 Accept 返回的错误
var ErrListenerClosed = errors.New("mock: listener closed")

// ============================================================================
//                              MockDialer
// ============================================================================

// MockDialer 模拟 Dialer 接口实现
type MockDialer struct {
	// 可覆盖的方法
	DialFunc func(ctx context.Context, origin types.Origin) (pkgif.Endpoint, error)

	mu sync.Mutex

	// 调用记录
	DialCalls []types.Origin
}

var _ pkgif.Dialer = (*MockDialer)(nil)

// Dial 记录调用并执行 DialFunc
func (m *MockDialer) Dial(ctx context.Context, origin types.Origin) (pkgif.Endpoint, error) {
	m.mu.Lock()
	m.DialCalls = append(m.DialCalls, origin)
	m.mu.Unlock()

	if m.DialFunc != nil {
		return m.DialFunc(ctx, origin)
	}
	return nil, ErrMockDial
}

// Calls 返回拨号记录的副本
func (m *MockDialer) Calls() []types.Origin {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Origin(nil), m.DialCalls...)
}

// ============================================================================
//                              MockListener
// ============================================================================

// MockListener 模拟 EndpointListener，Accept 返回测试推入的端点
type MockListener struct {
	AddrValue net.Addr

	endpoints chan pkgif.Endpoint
	closed    chan struct{}
	closeOnce sync.Once
}

var _ pkgif.EndpointListener = (*MockListener)(nil)

// NewMockListener 创建 MockListener
func NewMockListener() *MockListener {
	return &MockListener{
		AddrValue: pipeAddr("mock-listener"),
		endpoints: make(chan pkgif.Endpoint),
		closed:    make(chan struct{}),
	}
}

// Push 把端点交给下一次 Accept，监听器关闭后返回 false
func (l *MockListener) Push(ep pkgif.Endpoint) bool {
	select {
	case l.endpoints <- ep:
		return true
	case <-l.closed:
		return false
	}
}

// Accept 实现 EndpointListener
func (l *MockListener) Accept() (pkgif.Endpoint, error) {
	select {
	case ep := <-l.endpoints:
		return ep, nil
	case <-l.closed:
		return nil, ErrListenerClosed
	}
}

// Close 实现 EndpointListener
func (l *MockListener) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

// Addr 实现 EndpointListener
func (l *MockListener) Addr() net.Addr {
	return l.AddrValue
}

// ============================================================================
//                              PipeDialer
// ============================================================================

// PipeDialer 返回把每次拨号接到 l 的 MockDialer
//
// 两端是 net.Pipe，读写同步且没有缓冲。
func PipeDialer(l *MockListener) *MockDialer {
	return &MockDialer{
		DialFunc: func(ctx context.Context, _ types.Origin) (pkgif.Endpoint, error) {
			client, server := net.Pipe()
			select {
			case l.endpoints <- server:
				return client, nil
			case <-l.closed:
			case <-ctx.Done():
			}
			_ = client.Close()
			_ = server.Close()
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, ErrListenerClosed
		},
	}
}

type pipeAddr string

func (a pipeAddr) Network() string { return "pipe" }
func (a pipeAddr) String() string  { return string(a) }
