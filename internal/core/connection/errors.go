package connection

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-httpcore/internal/util/logger"
)

var log = logger.Logger("core/connection")

var (
	// ErrIdleTimeout 连接已因空闲超时进入关闭流程
	ErrIdleTimeout = errors.New("connection idle timeout")

	// ErrConnectionClosed 连接已关闭
	ErrConnectionClosed = errors.New("connection closed")

	// ErrConnectionBusy 连接没有空闲槽位
	ErrConnectionBusy = errors.New("connection busy")

	// ErrGoingAway 对端发送了 GOAWAY，连接不再接受新交换
	ErrGoingAway = errors.New("connection going away")

	// ErrPeerClosed 对端通过 Connection: close 要求关闭
	ErrPeerClosed = errors.New("connection closed by peer")
)

// SendFailure 发送尝试失败
//
// Retryable 为 true 表示请求确定没有被对端观察到，可以在另一个连接上重发。
type SendFailure struct {
	Retryable bool
	Cause     error
}

// Error 实现 error
func (f *SendFailure) Error() string {
	if f.Retryable {
		return fmt.Sprintf("retryable send failure: %v", f.Cause)
	}
	return fmt.Sprintf("send failure: %v", f.Cause)
}

// Unwrap 返回原因
func (f *SendFailure) Unwrap() error {
	return f.Cause
}

// Retryable 构造可重试失败
func Retryable(cause error) *SendFailure {
	return &SendFailure{Retryable: true, Cause: cause}
}

// Fatal 构造不可重试失败
func Fatal(cause error) *SendFailure {
	return &SendFailure{Cause: cause}
}
