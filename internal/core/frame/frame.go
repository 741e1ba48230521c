package frame

import (
	"fmt"

	"golang.org/x/net/http2"

	"github.com/dep2p/go-httpcore/pkg/types"
)

// ErrCode 流/连接错误码，取值与 RFC 9113 §7 一致
type ErrCode = http2.ErrCode

// 常用错误码
const (
	CodeNo            = http2.ErrCodeNo
	CodeProtocol      = http2.ErrCodeProtocol
	CodeInternal      = http2.ErrCodeInternal
	CodeFlowControl   = http2.ErrCodeFlowControl
	CodeStreamClosed  = http2.ErrCodeStreamClosed
	CodeFrameSize     = http2.ErrCodeFrameSize
	CodeRefusedStream = http2.ErrCodeRefusedStream
	CodeCancel        = http2.ErrCodeCancel
)

// Setting 单个 SETTINGS 参数
type Setting = http2.Setting

// Kind 帧种类
type Kind uint8

const (
	KindHeaders Kind = iota + 1
	KindData
	KindTrailers
	KindReset
	KindSettings
	KindPing
	KindGoAway
	KindWindowUpdate
)

// String 返回种类名
func (k Kind) String() string {
	switch k {
	case KindHeaders:
		return "HEADERS"
	case KindData:
		return "DATA"
	case KindTrailers:
		return "TRAILERS"
	case KindReset:
		return "RST_STREAM"
	case KindSettings:
		return "SETTINGS"
	case KindPing:
		return "PING"
	case KindGoAway:
		return "GOAWAY"
	case KindWindowUpdate:
		return "WINDOW_UPDATE"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Frame 帧
//
// 连接级帧（SETTINGS/PING/GOAWAY、流 0 上的 WINDOW_UPDATE）的 Stream() 为 0。
type Frame interface {
	Kind() Kind
	Stream() uint32
}

// ============================================================================
//                              流帧
// ============================================================================

// HeadersFrame 头部块
//
// 解码时所有 HEADERS 都产出 HeadersFrame，是否为尾部由会话按流状态判定。
type HeadersFrame struct {
	StreamID  uint32
	Fields    types.Fields
	EndStream bool
}

// DataFrame 数据帧
type DataFrame struct {
	StreamID  uint32
	Data      []byte
	EndStream bool

	// Length 流量控制计入的长度（含填充），仅解码时填写
	Length uint32
}

// TrailersFrame 尾部块，编码为带 END_STREAM 的 HEADERS
//
// Fields 可以为空。
type TrailersFrame struct {
	StreamID uint32
	Fields   types.Fields
}

// ResetFrame RST_STREAM
type ResetFrame struct {
	StreamID uint32
	Code     ErrCode
}

// ============================================================================
//                              连接帧
// ============================================================================

// SettingsFrame SETTINGS
type SettingsFrame struct {
	Ack      bool
	Settings []Setting
}

// PingFrame PING
type PingFrame struct {
	Ack  bool
	Data [8]byte
}

// GoAwayFrame GOAWAY
type GoAwayFrame struct {
	LastStreamID uint32
	Code         ErrCode
	Debug        []byte
}

// WindowUpdateFrame WINDOW_UPDATE
type WindowUpdateFrame struct {
	StreamID  uint32
	Increment uint32
}

func (*HeadersFrame) Kind() Kind      { return KindHeaders }
func (*DataFrame) Kind() Kind         { return KindData }
func (*TrailersFrame) Kind() Kind     { return KindTrailers }
func (*ResetFrame) Kind() Kind        { return KindReset }
func (*SettingsFrame) Kind() Kind     { return KindSettings }
func (*PingFrame) Kind() Kind         { return KindPing }
func (*GoAwayFrame) Kind() Kind       { return KindGoAway }
func (*WindowUpdateFrame) Kind() Kind { return KindWindowUpdate }

func (f *HeadersFrame) Stream() uint32      { return f.StreamID }
func (f *DataFrame) Stream() uint32         { return f.StreamID }
func (f *TrailersFrame) Stream() uint32     { return f.StreamID }
func (f *ResetFrame) Stream() uint32        { return f.StreamID }
func (*SettingsFrame) Stream() uint32       { return 0 }
func (*PingFrame) Stream() uint32           { return 0 }
func (*GoAwayFrame) Stream() uint32         { return 0 }
func (f *WindowUpdateFrame) Stream() uint32 { return f.StreamID }
