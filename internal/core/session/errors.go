package session

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-httpcore/internal/core/frame"
)

var (
	// ErrSessionClosed 会话已关闭
	ErrSessionClosed = errors.New("session closed")

	// ErrGoingAway 已收到 GOAWAY，不再接受新流
	ErrGoingAway = errors.New("session going away")

	// ErrRefusedStream 对端拒绝处理该流（REFUSED_STREAM 或 GOAWAY 之后的流）
	// 对端保证未处理过请求，可以安全重试
	ErrRefusedStream = errors.New("stream refused")

	// ErrTooManyStreams 已达到对端允许的并发流上限
	ErrTooManyStreams = errors.New("too many concurrent streams")

	// ErrStreamIDsExhausted 流 ID 用尽
	ErrStreamIDsExhausted = errors.New("stream ids exhausted")

	// ErrStreamClosed 本端已结束该流的发送方向
	ErrStreamClosed = errors.New("stream closed for writing")

	// ErrStreamReset 流被重置
	ErrStreamReset = errors.New("stream reset")

	// ErrHeadersNotWritten 写出请求头时传输失败，对端可能收到了部分字节
	ErrHeadersNotWritten = errors.New("headers write failed")

	// ErrWrongRole 当前角色不允许该操作
	ErrWrongRole = errors.New("operation not allowed for session role")
)

// StreamError 流级失败
type StreamError struct {
	StreamID uint32
	Code     frame.ErrCode

	// Remote 为 true 表示由对端 RST_STREAM/GOAWAY 引起
	Remote bool
}

// Error 实现 error
func (e *StreamError) Error() string {
	side := "local"
	if e.Remote {
		side = "remote"
	}
	return fmt.Sprintf("stream %d reset by %s: %s", e.StreamID, side, e.Code)
}

// Unwrap REFUSED_STREAM 映射为 ErrRefusedStream，其余为 ErrStreamReset
func (e *StreamError) Unwrap() error {
	if e.Code == frame.CodeRefusedStream {
		return ErrRefusedStream
	}
	return ErrStreamReset
}

// TransportError 底层传输失败导致流失败
type TransportError struct {
	Err error
}

// Error 实现 error
func (e *TransportError) Error() string {
	return "session transport failed: " + e.Err.Error()
}

// Unwrap 返回原因
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsRetryable 流失败是否可以在另一个连接上重试
//
// 只有对端明确未处理的流（REFUSED_STREAM、GOAWAY 之后）以及
// 从未写出请求头的情况可以重试。
func IsRetryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		// 流已在途，传输失败时无法判断对端是否处理过
		return false
	}
	return errors.Is(err, ErrRefusedStream) ||
		errors.Is(err, ErrGoingAway) ||
		errors.Is(err, ErrSessionClosed) ||
		errors.Is(err, ErrTooManyStreams) ||
		errors.Is(err, ErrStreamIDsExhausted)
}
