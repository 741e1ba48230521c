package frame

import (
	"errors"
	"fmt"

	"golang.org/x/net/http2"
)

var (
	// ErrProtocol 所有 ProtocolError 都满足 errors.Is(err, ErrProtocol)
	ErrProtocol = errors.New("protocol error")

	// ErrBadPreface 连接前言不匹配
	ErrBadPreface = errors.New("bad connection preface")

	// ErrUnsupportedFrame 无法编码的帧类型
	ErrUnsupportedFrame = errors.New("unsupported frame")
)

// ProtocolError 对端违反帧协议
//
// StreamID 为 0 表示连接级错误，会话必须终止；
// 否则只影响对应的流。
type ProtocolError struct {
	StreamID uint32
	Code     ErrCode
	Reason   string
}

// Error 实现 error
func (e *ProtocolError) Error() string {
	if e.StreamID == 0 {
		return fmt.Sprintf("protocol error: %s: %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("protocol error on stream %d: %s: %s", e.StreamID, e.Code, e.Reason)
}

// Is 使 errors.Is(err, ErrProtocol) 成立
func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

// ConnectionLevel 是否为连接级错误
func (e *ProtocolError) ConnectionLevel() bool {
	return e.StreamID == 0
}

// NewProtocolError 创建连接级协议错误
func NewProtocolError(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Code: CodeProtocol, Reason: fmt.Sprintf(format, args...)}
}

// NewStreamError 创建流级协议错误
func NewStreamError(streamID uint32, code ErrCode, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{StreamID: streamID, Code: code, Reason: fmt.Sprintf(format, args...)}
}

// convertReadError 把 Framer 的错误映射为 ProtocolError
//
// 传输错误（EOF、连接重置）原样返回。
func convertReadError(fr *http2.Framer, err error) error {
	var ce http2.ConnectionError
	if errors.As(err, &ce) {
		reason := "connection error"
		if detail := fr.ErrorDetail(); detail != nil {
			reason = detail.Error()
		}
		return &ProtocolError{Code: http2.ErrCode(ce), Reason: reason}
	}

	var se http2.StreamError
	if errors.As(err, &se) {
		reason := "stream error"
		if se.Cause != nil {
			reason = se.Cause.Error()
		}
		return &ProtocolError{StreamID: se.StreamID, Code: se.Code, Reason: reason}
	}

	if errors.Is(err, http2.ErrFrameTooLarge) {
		return &ProtocolError{Code: CodeFrameSize, Reason: err.Error()}
	}
	return err
}
