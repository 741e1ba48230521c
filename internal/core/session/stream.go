package session

import (
	"strconv"
	"sync"

	"github.com/dep2p/go-httpcore/internal/core/frame"
	"github.com/dep2p/go-httpcore/pkg/types"
)

// State 流状态
type State int

const (
	StateIdle State = iota
	StateOpen
	StateHalfClosedLocal
	StateHalfClosedRemote
	StateClosed
)

// String 返回状态名
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateOpen:
		return "OPEN"
	case StateHalfClosedLocal:
		return "HALF_CLOSED_LOCAL"
	case StateHalfClosedRemote:
		return "HALF_CLOSED_REMOTE"
	case StateClosed:
		return "CLOSED"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// Stream 会话中的一个逻辑流
type Stream struct {
	id      uint32
	session *Session

	mu                sync.Mutex
	listener          StreamListener
	state             State
	finalHeaders      bool
	endStreamSent     bool
	endStreamReceived bool
	terminated        bool
}

func newStream(s *Session, id uint32, l StreamListener) *Stream {
	return &Stream{id: id, session: s, listener: l, state: StateIdle}
}

// ID 流 ID
func (st *Stream) ID() uint32 {
	return st.id
}

// Session 所属会话
func (st *Stream) Session() *Session {
	return st.session
}

// State 当前状态
func (st *Stream) State() State {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}

// ============================================================================
//                              发送方向
// ============================================================================

// SendHeaders 发送头部块（服务端响应头）
func (st *Stream) SendHeaders(fields types.Fields, endStream bool) error {
	return st.send(&frame.HeadersFrame{StreamID: st.id, Fields: fields, EndStream: endStream}, endStream)
}

// SendData 发送数据
func (st *Stream) SendData(data []byte, endStream bool) error {
	return st.send(&frame.DataFrame{StreamID: st.id, Data: data, EndStream: endStream}, endStream)
}

// SendTrailers 发送尾部块并结束发送方向
func (st *Stream) SendTrailers(fields types.Fields) error {
	return st.send(&frame.TrailersFrame{StreamID: st.id, Fields: fields}, true)
}

func (st *Stream) send(f frame.Frame, endStream bool) error {
	s := st.session

	s.writeMu.Lock()
	st.mu.Lock()
	if st.endStreamSent || st.state == StateClosed {
		st.mu.Unlock()
		s.writeMu.Unlock()
		return ErrStreamClosed
	}
	if endStream {
		st.endStreamSent = true
	}
	st.mu.Unlock()

	err := s.writeLocked(f)
	s.writeMu.Unlock()

	if err != nil {
		s.fail(err)
		return err
	}
	if endStream {
		st.localEnded()
	}
	return nil
}

// Reset 以 code 重置流
//
// RST_STREAM 由控制写循环写出，Reset 不等待写锁。
// 之后对端发来的该流帧会被忽略。监听器收到 OnFailure（若尚未终结）。
func (st *Stream) Reset(code frame.ErrCode) error {
	st.mu.Lock()
	if st.state == StateClosed {
		st.mu.Unlock()
		return nil
	}
	st.state = StateClosed
	st.mu.Unlock()

	st.abort(code)
	st.failWith(&StreamError{StreamID: st.id, Code: code})
	return nil
}

// abort 移除已标记为 CLOSED 的流并排队 RST_STREAM
func (st *Stream) abort(code frame.ErrCode) {
	s := st.session
	s.rememberReset(st.id)
	s.removeStream(st)
	s.enqueueFrame(&frame.ResetFrame{StreamID: st.id, Code: code})
}

// ============================================================================
//                              接收方向（读循环调用）
// ============================================================================

// onHeaders 处理收到的头部块
//
// 已收到最终响应头后，不含伪头部的块是尾部；尾部必须带 END_STREAM。
func (st *Stream) onHeaders(fields types.Fields, endStream bool) error {
	st.mu.Lock()
	if st.endStreamReceived {
		st.mu.Unlock()
		return frame.NewProtocolError("HEADERS on stream %d after END_STREAM", st.id)
	}

	if st.finalHeaders {
		if fields.HasPseudo() {
			st.mu.Unlock()
			return frame.NewProtocolError("pseudo-header fields in trailers on stream %d", st.id)
		}
		if !endStream {
			st.mu.Unlock()
			return frame.NewProtocolError("trailers without END_STREAM on stream %d", st.id)
		}
		l := st.listener
		st.mu.Unlock()

		l.OnTrailers(st, fields)
		st.remoteEnded()
		return nil
	}

	informational := st.session.role == RoleClient && isInformational(fields)
	if informational && endStream {
		st.mu.Unlock()
		return frame.NewProtocolError("informational response ends stream %d", st.id)
	}
	if !informational {
		st.finalHeaders = true
	}
	if st.state == StateIdle {
		st.state = StateOpen
	}
	l := st.listener
	st.mu.Unlock()

	l.OnHeaders(st, fields, endStream)
	if endStream {
		st.remoteEnded()
	}
	return nil
}

// onData 处理收到的数据
func (st *Stream) onData(data []byte, endStream bool) error {
	st.mu.Lock()
	if st.endStreamReceived {
		st.mu.Unlock()
		return frame.NewProtocolError("DATA on stream %d after END_STREAM", st.id)
	}
	if !st.finalHeaders {
		st.mu.Unlock()
		return frame.NewProtocolError("DATA before HEADERS on stream %d", st.id)
	}
	l := st.listener
	st.mu.Unlock()

	l.OnData(st, data, endStream)
	if endStream {
		st.remoteEnded()
	}
	return nil
}

// remoteEnded 对端结束发送方向，触发唯一一次 OnComplete
//
// 客户端在请求体发完之前收到完整响应时，以 CANCEL 重置流，
// 流在 OnComplete 之前就不再占用并发名额。
func (st *Stream) remoteEnded() {
	st.mu.Lock()
	st.endStreamReceived = true
	closed := st.advanceLocked()
	abandon := st.session.role == RoleClient && st.state == StateHalfClosedRemote
	if abandon {
		st.state = StateClosed
	}
	fire := !st.terminated
	st.terminated = true
	l := st.listener
	st.mu.Unlock()

	switch {
	case abandon:
		st.abort(frame.CodeCancel)
	case closed:
		st.session.removeStream(st)
	}
	if fire {
		l.OnComplete(st)
	}
}

// localEnded 本端结束发送方向
func (st *Stream) localEnded() {
	st.mu.Lock()
	closed := st.advanceLocked()
	st.mu.Unlock()

	if closed {
		st.session.removeStream(st)
	}
}

// advanceLocked 按两个方向的结束标记推进状态，返回是否刚进入 CLOSED
func (st *Stream) advanceLocked() bool {
	if st.state == StateClosed {
		return false
	}
	switch {
	case st.endStreamSent && st.endStreamReceived:
		st.state = StateClosed
		return true
	case st.endStreamSent:
		st.state = StateHalfClosedLocal
	case st.endStreamReceived:
		st.state = StateHalfClosedRemote
	default:
		st.state = StateOpen
	}
	return false
}

// failWith 终结流并通知 OnFailure（若尚未终结）
func (st *Stream) failWith(err error) {
	st.mu.Lock()
	st.state = StateClosed
	fire := !st.terminated
	st.terminated = true
	l := st.listener
	st.mu.Unlock()

	if fire {
		l.OnFailure(st, err)
	}
}

// claimTerminal 抢占终结权，成功后不再触发任何终结回调
func (st *Stream) claimTerminal() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.terminated {
		return false
	}
	st.terminated = true
	st.state = StateClosed
	return true
}

// isInformational :status 为 1xx（101 除外）
func isInformational(fields types.Fields) bool {
	status := fields.Get(":status")
	if len(status) != 3 || status[0] != '1' {
		return false
	}
	return status != "101"
}
