package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	arc "github.com/hashicorp/golang-lru/arc/v2"
	"golang.org/x/net/http2"

	"github.com/dep2p/go-httpcore/internal/core/frame"
	"github.com/dep2p/go-httpcore/internal/core/metrics"
	"github.com/dep2p/go-httpcore/internal/util/logger"
	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
	"github.com/dep2p/go-httpcore/pkg/types"
)

var log = logger.Logger("core/session")

// Session 多路复用会话
//
// 一个会话独占一个传输端点，在其上承载多个流。
// 读循环是唯一的读者；所有写操作由 writeMu 串行化，
// 流 ID 分配与 HEADERS 写出在同一把锁下完成以保证 ID 在线路上单调递增。
type Session struct {
	id       string
	role     Role
	cfg      Config
	conn     io.ReadWriteCloser
	codec    frame.Codec
	listener SessionListener
	metrics  pkgif.Metrics
	activity func()

	writeMu sync.Mutex

	mu             sync.Mutex
	streams        map[uint32]*Stream
	nextID         uint32
	lastPeerID     uint32
	localActive    int
	peerActive     int
	peerMaxStreams uint32
	goAway         bool
	goAwayLastID   uint32
	closed         bool
	closeErr       error
	pings          map[[8]byte]chan struct{}

	// reset 本端重置过的流 ID，迟到的帧被忽略
	reset *arc.ARCCache[uint32, struct{}]

	ctrlMu     sync.Mutex
	ctrlQueue  []func() error
	ctrlSignal chan struct{}

	done chan struct{}
}

// Option 会话选项
type Option func(*Session)

// WithListener 设置会话监听器
func WithListener(l SessionListener) Option {
	return func(s *Session) {
		s.listener = l
	}
}

// WithActivity 每次读写帧后回调，用于刷新空闲计时
func WithActivity(fn func()) Option {
	return func(s *Session) {
		s.activity = fn
	}
}

// WithMetrics 设置指标
func WithMetrics(m pkgif.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// New 在端点上创建会话，调用 Start 后开始工作
func New(conn io.ReadWriteCloser, role Role, cfg Config, opts ...Option) *Session {
	if cfg.ResetStreamMemory <= 0 {
		cfg.ResetStreamMemory = DefaultConfig().ResetStreamMemory
	}
	if cfg.MaxConcurrentStreams == 0 {
		cfg.MaxConcurrentStreams = DefaultConfig().MaxConcurrentStreams
	}
	reset, _ := arc.NewARC[uint32, struct{}](cfg.ResetStreamMemory)

	s := &Session{
		id:             uuid.NewString(),
		role:           role,
		cfg:            cfg,
		conn:           conn,
		streams:        make(map[uint32]*Stream),
		peerMaxStreams: defaultPeerMaxStreams,
		pings:          make(map[[8]byte]chan struct{}),
		reset:          reset,
		ctrlSignal:     make(chan struct{}, 1),
		done:           make(chan struct{}),
		listener:       &SessionHandlers{},
		metrics:        metrics.Nop{},
		activity:       func() {},
	}
	if role == RoleClient {
		s.nextID = 1
	} else {
		s.nextID = 2
	}
	for _, opt := range opts {
		opt(s)
	}
	s.codec = frame.NewCodec(conn, frame.Options{
		MaxReadFrameSize:  cfg.MaxFrameSize,
		MaxHeaderListSize: cfg.MaxHeaderListSize,
	})
	return s
}

// ID 会话标识
func (s *Session) ID() string {
	return s.id
}

// Role 会话角色
func (s *Session) Role() Role {
	return s.role
}

// Done 会话终止后关闭
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err 会话终止原因，未终止时为 nil
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}

// Start 交换前言与 SETTINGS 并启动读循环
//
// 客户端在返回前同步写出前言；服务端在读循环中读取前言。
func (s *Session) Start() error {
	if s.role == RoleClient {
		s.writeMu.Lock()
		err := s.codec.WritePreface()
		if err == nil {
			err = s.codec.WriteFrame(s.localSettings())
		}
		s.writeMu.Unlock()
		if err != nil {
			s.fail(err)
			return err
		}
	}

	go s.controlLoop()
	go s.readLoop()
	return nil
}

func (s *Session) localSettings() *frame.SettingsFrame {
	settings := []frame.Setting{
		{ID: http2.SettingMaxConcurrentStreams, Val: s.cfg.MaxConcurrentStreams},
	}
	if s.cfg.MaxFrameSize > 0 {
		settings = append(settings, frame.Setting{ID: http2.SettingMaxFrameSize, Val: s.cfg.MaxFrameSize})
	}
	if s.cfg.MaxHeaderListSize > 0 {
		settings = append(settings, frame.Setting{ID: http2.SettingMaxHeaderListSize, Val: s.cfg.MaxHeaderListSize})
	}
	if s.role == RoleClient {
		settings = append(settings, frame.Setting{ID: http2.SettingEnablePush, Val: 0})
	}
	return &frame.SettingsFrame{Settings: settings}
}

// ============================================================================
//                              流管理
// ============================================================================

// NewStream 发起新流并写出请求头
//
// 返回错误时监听器不会收到任何回调。
func (s *Session) NewStream(headers types.Fields, endStream bool, l StreamListener) (*Stream, error) {
	s.writeMu.Lock()

	s.mu.Lock()
	if err := s.canOpenLocked(); err != nil {
		s.mu.Unlock()
		s.writeMu.Unlock()
		return nil, err
	}
	id := s.nextID
	s.nextID += 2
	st := newStream(s, id, l)
	st.state = StateOpen
	if endStream {
		st.endStreamSent = true
		st.state = StateHalfClosedLocal
	}
	s.streams[id] = st
	s.localActive++
	s.mu.Unlock()
	// 与 localActive 同步计数，removeStream 与 terminate 按 localActive 递减
	s.metrics.StreamsActive(1)

	err := s.codec.WriteFrame(&frame.HeadersFrame{StreamID: id, Fields: headers, EndStream: endStream})
	s.writeMu.Unlock()

	if err != nil {
		if st.claimTerminal() {
			s.removeStream(st)
			s.fail(err)
			return nil, fmt.Errorf("%w: %v", ErrHeadersNotWritten, err)
		}
		// 会话已先行失败并通知了监听器
		return st, nil
	}

	s.activity()
	return st, nil
}

func (s *Session) canOpenLocked() error {
	switch {
	case s.closed:
		return ErrSessionClosed
	case s.goAway:
		return ErrGoingAway
	case s.nextID > maxStreamID:
		return ErrStreamIDsExhausted
	case uint32(s.localActive) >= s.maxLocalStreamsLocked():
		return ErrTooManyStreams
	}
	return nil
}

func (s *Session) maxLocalStreamsLocked() uint32 {
	if s.peerMaxStreams < s.cfg.MaxConcurrentStreams {
		return s.peerMaxStreams
	}
	return s.cfg.MaxConcurrentStreams
}

// MaxStreams 本端当前可以同时发起的流数量
func (s *Session) MaxStreams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.maxLocalStreamsLocked())
}

// ActiveStreams 本端发起且未关闭的流数量
func (s *Session) ActiveStreams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localActive
}

// Stream 按 ID 查找活跃流
func (s *Session) Stream(id uint32) *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streams[id]
}

func (s *Session) isLocal(id uint32) bool {
	return (id%2 == 1) == (s.role == RoleClient)
}

func (s *Session) removeStream(st *Stream) {
	s.mu.Lock()
	if s.streams[st.id] != st {
		s.mu.Unlock()
		return
	}
	delete(s.streams, st.id)
	local := s.isLocal(st.id)
	if local {
		s.localActive--
	} else {
		s.peerActive--
	}
	drained := s.goAway && len(s.streams) == 0 && !s.closed
	s.mu.Unlock()

	if local {
		s.metrics.StreamsActive(-1)
	}
	if drained {
		log.Debug("GOAWAY 后所有流已结束，关闭会话", "session", s.id)
		go s.Close()
	}
}

func (s *Session) rememberReset(id uint32) {
	s.reset.Add(id, struct{}{})
}

// ============================================================================
//                              写路径
// ============================================================================

// writeLocked 写出一帧，调用方持有 writeMu
func (s *Session) writeLocked(f frame.Frame) error {
	s.mu.Lock()
	closed, cerr := s.closed, s.closeErr
	s.mu.Unlock()
	if closed {
		if cerr == nil {
			cerr = ErrSessionClosed
		}
		return cerr
	}
	if err := s.codec.WriteFrame(f); err != nil {
		return err
	}
	s.activity()
	return nil
}

// enqueue 由控制写循环异步写出，读循环从不阻塞在写上
func (s *Session) enqueue(fn func() error) {
	s.ctrlMu.Lock()
	s.ctrlQueue = append(s.ctrlQueue, fn)
	s.ctrlMu.Unlock()

	select {
	case s.ctrlSignal <- struct{}{}:
	default:
	}
}

func (s *Session) enqueueFrame(f frame.Frame) {
	s.enqueue(func() error { return s.writeLocked(f) })
}

func (s *Session) controlLoop() {
	for {
		select {
		case <-s.done:
			return
		case <-s.ctrlSignal:
		}

		s.ctrlMu.Lock()
		queue := s.ctrlQueue
		s.ctrlQueue = nil
		s.ctrlMu.Unlock()

		for _, fn := range queue {
			s.writeMu.Lock()
			err := fn()
			s.writeMu.Unlock()
			if err != nil {
				s.fail(err)
				return
			}
		}
	}
}

// Ping 发送 PING 并等待 ACK
func (s *Session) Ping(ctx context.Context) error {
	var data [8]byte
	if _, err := rand.Read(data[:]); err != nil {
		return err
	}
	ack := make(chan struct{})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.pings[data] = ack
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pings, data)
		s.mu.Unlock()
	}()

	s.enqueueFrame(&frame.PingFrame{Data: data})

	select {
	case <-ack:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ============================================================================
//                              读路径
// ============================================================================

func (s *Session) readLoop() {
	if s.role == RoleServer {
		if err := s.codec.ReadPreface(); err != nil {
			s.fail(err)
			return
		}
		s.enqueueFrame(s.localSettings())
	}

	for {
		f, err := s.codec.ReadFrame()
		if err != nil {
			var pe *frame.ProtocolError
			if errors.As(err, &pe) && !pe.ConnectionLevel() {
				s.resetRemoteStream(pe.StreamID, pe.Code, pe)
				continue
			}
			s.fail(err)
			return
		}
		s.activity()

		if err := s.dispatch(f); err != nil {
			s.fail(err)
			return
		}
	}
}

func (s *Session) dispatch(f frame.Frame) error {
	switch f := f.(type) {
	case *frame.SettingsFrame:
		return s.onSettings(f)
	case *frame.PingFrame:
		s.onPing(f)
		return nil
	case *frame.GoAwayFrame:
		s.onGoAway(f)
		return nil
	case *frame.WindowUpdateFrame:
		// 不做窗口记账，只校验增量
		if f.Increment == 0 && f.StreamID == 0 {
			return frame.NewProtocolError("WINDOW_UPDATE with zero increment")
		}
		return nil
	case *frame.ResetFrame:
		return s.onReset(f)
	case *frame.HeadersFrame:
		return s.onHeaders(f)
	case *frame.DataFrame:
		return s.onData(f)
	default:
		return nil
	}
}

func (s *Session) onSettings(f *frame.SettingsFrame) error {
	if f.Ack {
		return nil
	}
	for _, setting := range f.Settings {
		if err := setting.Valid(); err != nil {
			return frame.NewProtocolError("invalid setting %v: %v", setting, err)
		}
	}

	s.mu.Lock()
	for _, setting := range f.Settings {
		if setting.ID == http2.SettingMaxConcurrentStreams {
			s.peerMaxStreams = setting.Val
		}
	}
	s.mu.Unlock()

	// 编码参数在写锁下调整，随后回 ACK
	s.enqueue(func() error {
		if fc, ok := s.codec.(*frame.FramerCodec); ok {
			for _, setting := range f.Settings {
				switch setting.ID {
				case http2.SettingMaxFrameSize:
					fc.SetMaxFrameSize(setting.Val)
				case http2.SettingHeaderTableSize:
					fc.SetHeaderTableSize(setting.Val)
				}
			}
		}
		return s.writeLocked(&frame.SettingsFrame{Ack: true})
	})

	s.listener.OnSettings(s)
	return nil
}

func (s *Session) onPing(f *frame.PingFrame) {
	if !f.Ack {
		s.enqueueFrame(&frame.PingFrame{Ack: true, Data: f.Data})
		return
	}
	s.mu.Lock()
	ack, ok := s.pings[f.Data]
	if ok {
		delete(s.pings, f.Data)
	}
	s.mu.Unlock()
	if ok {
		close(ack)
	}
}

// onGoAway LastStreamID 之上的本端流被拒绝，可安全重试
func (s *Session) onGoAway(f *frame.GoAwayFrame) {
	s.mu.Lock()
	s.goAway = true
	s.goAwayLastID = f.LastStreamID
	var refused []*Stream
	for id, st := range s.streams {
		if s.isLocal(id) && id > f.LastStreamID {
			refused = append(refused, st)
		}
	}
	empty := len(s.streams) == len(refused)
	s.mu.Unlock()

	log.Debug("收到 GOAWAY", "session", s.id, "last", f.LastStreamID, "code", f.Code, "refused", len(refused))

	for _, st := range refused {
		s.removeStream(st)
		st.failWith(&StreamError{StreamID: st.id, Code: frame.CodeRefusedStream, Remote: true})
	}
	s.listener.OnGoAway(s, f.LastStreamID, f.Code)

	if empty {
		go s.Close()
	}
}

func (s *Session) onReset(f *frame.ResetFrame) error {
	st, err := s.lookup(f.StreamID, false)
	if err != nil && s.wasOpened(f.StreamID) {
		// 本端发出 END_STREAM 后对端仍可能重置该流，忽略
		return nil
	}
	if err != nil || st == nil {
		return err
	}
	s.removeStream(st)
	st.failWith(&StreamError{StreamID: st.id, Code: f.Code, Remote: true})
	return nil
}

func (s *Session) onHeaders(f *frame.HeadersFrame) error {
	st, err := s.lookup(f.StreamID, true)
	if err != nil {
		return err
	}
	if st == nil {
		if !s.isNewPeerStream(f.StreamID) {
			return nil
		}
		if s.role == RoleClient {
			return frame.NewProtocolError("server initiated stream %d", f.StreamID)
		}
		st = s.acceptStream(f.StreamID)
		if st == nil {
			return nil
		}
	}
	return st.onHeaders(f.Fields, f.EndStream)
}

func (s *Session) onData(f *frame.DataFrame) error {
	// 先归还连接窗口，被忽略的帧也计入
	if f.Length > 0 {
		s.enqueueFrame(&frame.WindowUpdateFrame{StreamID: 0, Increment: f.Length})
	}

	st, err := s.lookup(f.StreamID, false)
	if err != nil || st == nil {
		return err
	}
	if f.Length > 0 && !f.EndStream {
		s.enqueueFrame(&frame.WindowUpdateFrame{StreamID: f.StreamID, Increment: f.Length})
	}
	return st.onData(f.Data, f.EndStream)
}

// lookup 查找流帧的目标流
//
// 返回 (nil, nil) 表示帧应被忽略（本端重置过的流），
// 或者 opening 为 true 时对端发起的新流。
// 未知且不合法的流 ID 返回连接级协议错误。
func (s *Session) lookup(id uint32, opening bool) (*Stream, error) {
	s.mu.Lock()
	st := s.streams[id]
	nextID, lastPeer := s.nextID, s.lastPeerID
	s.mu.Unlock()

	if st != nil {
		return st, nil
	}
	if s.reset.Contains(id) {
		return nil, nil
	}
	if s.isLocal(id) {
		if id >= nextID {
			return nil, frame.NewProtocolError("frame on idle stream %d", id)
		}
		return nil, frame.NewProtocolError("frame on closed stream %d", id)
	}
	if id <= lastPeer {
		return nil, frame.NewProtocolError("frame on closed stream %d", id)
	}
	if !opening {
		return nil, frame.NewProtocolError("frame on idle stream %d", id)
	}
	return nil, nil
}

// wasOpened 流 ID 是否已被使用过（非空闲）
func (s *Session) wasOpened(id uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isLocal(id) {
		return id < s.nextID
	}
	return id != 0 && id <= s.lastPeerID
}

// isNewPeerStream 对端发起的新流 ID 是否合法
func (s *Session) isNewPeerStream(id uint32) bool {
	if s.isLocal(id) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return id > s.lastPeerID
}

// acceptStream 登记对端发起的流；超出并发上限或监听器拒绝时以 REFUSED_STREAM 重置
func (s *Session) acceptStream(id uint32) *Stream {
	s.mu.Lock()
	s.lastPeerID = id
	if s.closed || uint32(s.peerActive) >= s.cfg.MaxConcurrentStreams {
		s.mu.Unlock()
		s.refuse(id)
		return nil
	}
	st := newStream(s, id, &StreamHandlers{})
	s.streams[id] = st
	s.peerActive++
	s.mu.Unlock()

	l := s.listener.OnStream(st)
	if l == nil {
		s.removeStream(st)
		s.refuse(id)
		return nil
	}
	st.mu.Lock()
	st.listener = l
	st.mu.Unlock()
	return st
}

func (s *Session) refuse(id uint32) {
	s.rememberReset(id)
	s.enqueueFrame(&frame.ResetFrame{StreamID: id, Code: frame.CodeRefusedStream})
}

// resetRemoteStream 流级协议错误：重置该流，会话继续
func (s *Session) resetRemoteStream(id uint32, code frame.ErrCode, cause error) {
	log.Debug("流级协议错误", "session", s.id, "stream", id, "err", cause)
	s.rememberReset(id)
	s.enqueueFrame(&frame.ResetFrame{StreamID: id, Code: code})

	s.mu.Lock()
	st := s.streams[id]
	if st == nil && !s.isLocal(id) && id > s.lastPeerID {
		s.lastPeerID = id
	}
	s.mu.Unlock()

	if st != nil {
		s.removeStream(st)
		st.failWith(cause)
	}
}

// ============================================================================
//                              关闭
// ============================================================================

// Close 发送 GOAWAY 并关闭会话，在途流以 ErrSessionClosed 失败
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	lastPeer := s.lastPeerID
	s.mu.Unlock()

	// 写锁可能被一个对端不再读取的写操作占住；超时后直接关闭端点，
	// 端点关闭会让阻塞的写返回
	written := make(chan struct{})
	go func() {
		defer close(written)
		s.writeMu.Lock()
		_ = s.writeLocked(&frame.GoAwayFrame{LastStreamID: lastPeer, Code: frame.CodeNo})
		s.writeMu.Unlock()
	}()
	timer := time.NewTimer(goAwayWriteTimeout)
	select {
	case <-written:
	case <-timer.C:
		log.Debug("GOAWAY 写出超时，直接关闭端点", "session", s.id)
	}
	timer.Stop()

	s.terminate(nil)
	return nil
}

// fail 因错误终止会话
func (s *Session) fail(err error) {
	var pe *frame.ProtocolError
	if errors.As(err, &pe) && pe.ConnectionLevel() {
		log.Debug("会话协议错误", "session", s.id, "err", err)
		s.mu.Lock()
		lastPeer, closed := s.lastPeerID, s.closed
		s.mu.Unlock()
		// 尽力告知对端；写锁被占用时放弃
		if !closed && s.writeMu.TryLock() {
			_ = s.codec.WriteFrame(&frame.GoAwayFrame{LastStreamID: lastPeer, Code: pe.Code, Debug: []byte(pe.Reason)})
			s.writeMu.Unlock()
		}
	} else {
		log.Debug("会话传输失败", "session", s.id, "err", err)
	}
	s.terminate(err)
}

// terminate 关闭端点并以传输错误终结所有在途流
func (s *Session) terminate(cause error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.closeErr = cause
	streams := make([]*Stream, 0, len(s.streams))
	localCount := 0
	for id, st := range s.streams {
		streams = append(streams, st)
		if s.isLocal(id) {
			localCount++
		}
	}
	s.streams = make(map[uint32]*Stream)
	s.localActive, s.peerActive = 0, 0
	s.mu.Unlock()

	close(s.done)
	_ = s.conn.Close()

	if localCount > 0 {
		s.metrics.StreamsActive(-localCount)
	}
	streamErr := cause
	if streamErr == nil {
		streamErr = ErrSessionClosed
	}
	for _, st := range streams {
		st.failWith(&TransportError{Err: streamErr})
	}

	s.listener.OnClose(s, cause)
}
