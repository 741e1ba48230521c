package session

import (
	"github.com/dep2p/go-httpcore/internal/core/frame"
	"github.com/dep2p/go-httpcore/pkg/types"
)

// StreamListener 流事件回调
//
// 所有回调在会话读循环中按线路顺序调用，不得阻塞。
// OnComplete 与 OnFailure 合计恰好调用一次。
type StreamListener interface {
	// OnHeaders 收到头部块（包括 1xx 信息响应）
	OnHeaders(s *Stream, fields types.Fields, endStream bool)

	// OnData 收到数据
	OnData(s *Stream, data []byte, endStream bool)

	// OnTrailers 收到尾部块，fields 可以为空
	OnTrailers(s *Stream, fields types.Fields)

	// OnComplete 对端结束了该流
	OnComplete(s *Stream)

	// OnFailure 流失败（重置、会话关闭、传输错误）
	OnFailure(s *Stream, err error)
}

// StreamHandlers 以函数字段实现 StreamListener，未设置的回调被忽略
type StreamHandlers struct {
	Headers  func(s *Stream, fields types.Fields, endStream bool)
	Data     func(s *Stream, data []byte, endStream bool)
	Trailers func(s *Stream, fields types.Fields)
	Complete func(s *Stream)
	Failure  func(s *Stream, err error)
}

var _ StreamListener = (*StreamHandlers)(nil)

func (h *StreamHandlers) OnHeaders(s *Stream, fields types.Fields, endStream bool) {
	if h.Headers != nil {
		h.Headers(s, fields, endStream)
	}
}

func (h *StreamHandlers) OnData(s *Stream, data []byte, endStream bool) {
	if h.Data != nil {
		h.Data(s, data, endStream)
	}
}

func (h *StreamHandlers) OnTrailers(s *Stream, fields types.Fields) {
	if h.Trailers != nil {
		h.Trailers(s, fields)
	}
}

func (h *StreamHandlers) OnComplete(s *Stream) {
	if h.Complete != nil {
		h.Complete(s)
	}
}

func (h *StreamHandlers) OnFailure(s *Stream, err error) {
	if h.Failure != nil {
		h.Failure(s, err)
	}
}

// SessionListener 会话事件回调
type SessionListener interface {
	// OnStream 对端发起新流（仅服务端角色），返回 nil 表示拒绝
	OnStream(s *Stream) StreamListener

	// OnSettings 对端 SETTINGS 已生效
	OnSettings(s *Session)

	// OnGoAway 收到 GOAWAY
	OnGoAway(s *Session, lastStreamID uint32, code frame.ErrCode)

	// OnClose 会话终止，err 为 nil 表示正常关闭
	OnClose(s *Session, err error)
}

// SessionHandlers 以函数字段实现 SessionListener
type SessionHandlers struct {
	Stream   func(s *Stream) StreamListener
	Settings func(s *Session)
	GoAway   func(s *Session, lastStreamID uint32, code frame.ErrCode)
	Close    func(s *Session, err error)
}

var _ SessionListener = (*SessionHandlers)(nil)

func (h *SessionHandlers) OnStream(s *Stream) StreamListener {
	if h.Stream != nil {
		return h.Stream(s)
	}
	return nil
}

func (h *SessionHandlers) OnSettings(s *Session) {
	if h.Settings != nil {
		h.Settings(s)
	}
}

func (h *SessionHandlers) OnGoAway(s *Session, lastStreamID uint32, code frame.ErrCode) {
	if h.GoAway != nil {
		h.GoAway(s, lastStreamID, code)
	}
}

func (h *SessionHandlers) OnClose(s *Session, err error) {
	if h.Close != nil {
		h.Close(s, err)
	}
}
