package frame

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/dep2p/go-httpcore/internal/util/logger"
	"github.com/dep2p/go-httpcore/pkg/types"
)

var log = logger.Logger("core/frame")

const (
	// DefaultMaxFrameSize RFC 9113 规定的初始 SETTINGS_MAX_FRAME_SIZE
	DefaultMaxFrameSize = 16384

	// DefaultHeaderTableSize hpack 动态表初始大小
	DefaultHeaderTableSize = 4096
)

// Codec 帧编解码器
//
// ReadFrame 只能由一个 goroutine 调用；WriteFrame 由调用方串行化。
// 读写两条路径彼此独立，可以并发。
type Codec interface {
	// ReadFrame 阻塞读取下一个完整帧
	//
	// 字节不足时一直阻塞，不会返回半个帧。
	// 协议错误返回 *ProtocolError，传输错误原样返回。
	ReadFrame() (Frame, error)

	// WriteFrame 编码并写出一个帧
	WriteFrame(f Frame) error

	// WritePreface 写出客户端连接前言
	WritePreface() error

	// ReadPreface 读取并校验客户端连接前言
	ReadPreface() error
}

// Options 编解码器选项
type Options struct {
	// MaxFrameSize 发送方向的最大帧负载，超出时拆分为多个帧
	MaxFrameSize uint32

	// MaxReadFrameSize 接收方向允许的最大帧负载
	MaxReadFrameSize uint32

	// MaxHeaderListSize 解码后头部列表的最大字节数，0 表示不限制
	MaxHeaderListSize uint32
}

// FramerCodec 基于 x/net/http2 Framer 与 hpack 的 Codec
type FramerCodec struct {
	r      *bufio.Reader
	w      io.Writer
	framer *http2.Framer

	enc    *hpack.Encoder
	encBuf bytes.Buffer

	maxFrameSize uint32
}

var _ Codec = (*FramerCodec)(nil)

// NewCodec 在 rw 上创建编解码器
func NewCodec(rw io.ReadWriter, opts Options) *FramerCodec {
	if opts.MaxFrameSize == 0 {
		opts.MaxFrameSize = DefaultMaxFrameSize
	}
	if opts.MaxReadFrameSize == 0 {
		opts.MaxReadFrameSize = DefaultMaxFrameSize
	}

	c := &FramerCodec{
		r:            bufio.NewReader(rw),
		w:            rw,
		maxFrameSize: opts.MaxFrameSize,
	}
	c.framer = http2.NewFramer(rw, c.r)
	c.framer.SetMaxReadFrameSize(opts.MaxReadFrameSize)
	c.framer.ReadMetaHeaders = hpack.NewDecoder(DefaultHeaderTableSize, nil)
	c.framer.MaxHeaderListSize = opts.MaxHeaderListSize
	c.enc = hpack.NewEncoder(&c.encBuf)
	return c
}

// SetMaxFrameSize 对端通告 SETTINGS_MAX_FRAME_SIZE 后调整发送帧大小
func (c *FramerCodec) SetMaxFrameSize(n uint32) {
	c.maxFrameSize = n
}

// SetHeaderTableSize 对端通告 SETTINGS_HEADER_TABLE_SIZE 后调整编码动态表
func (c *FramerCodec) SetHeaderTableSize(n uint32) {
	c.enc.SetMaxDynamicTableSizeLimit(n)
}

// ============================================================================
//                              前言
// ============================================================================

// WritePreface 实现 Codec
func (c *FramerCodec) WritePreface() error {
	_, err := io.WriteString(c.w, http2.ClientPreface)
	return err
}

// ReadPreface 实现 Codec
func (c *FramerCodec) ReadPreface() error {
	buf := make([]byte, len(http2.ClientPreface))
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return err
	}
	if string(buf) != http2.ClientPreface {
		return &ProtocolError{Code: CodeProtocol, Reason: ErrBadPreface.Error()}
	}
	return nil
}

// ============================================================================
//                              解码
// ============================================================================

// ReadFrame 实现 Codec
func (c *FramerCodec) ReadFrame() (Frame, error) {
	for {
		f, err := c.framer.ReadFrame()
		if err != nil {
			return nil, convertReadError(c.framer, err)
		}

		out, err := c.convert(f)
		if err != nil {
			return nil, err
		}
		if out != nil {
			return out, nil
		}
		// PRIORITY 与未知扩展帧被丢弃
		log.Debug("忽略帧", "type", f.Header().Type, "stream", f.Header().StreamID)
	}
}

func (c *FramerCodec) convert(f http2.Frame) (Frame, error) {
	switch f := f.(type) {
	case *http2.MetaHeadersFrame:
		if f.Truncated {
			return nil, NewStreamError(f.StreamID, CodeProtocol, "header list too large")
		}
		fields := make(types.Fields, len(f.Fields))
		for i, hf := range f.Fields {
			fields[i] = types.Field{Name: hf.Name, Value: hf.Value}
		}
		return &HeadersFrame{StreamID: f.StreamID, Fields: fields, EndStream: f.StreamEnded()}, nil

	case *http2.DataFrame:
		// Framer 复用读缓冲，必须复制
		data := make([]byte, len(f.Data()))
		copy(data, f.Data())
		return &DataFrame{
			StreamID:  f.StreamID,
			Data:      data,
			EndStream: f.StreamEnded(),
			Length:    f.Length,
		}, nil

	case *http2.RSTStreamFrame:
		return &ResetFrame{StreamID: f.StreamID, Code: f.ErrCode}, nil

	case *http2.SettingsFrame:
		out := &SettingsFrame{Ack: f.IsAck()}
		if err := f.ForeachSetting(func(s http2.Setting) error {
			out.Settings = append(out.Settings, s)
			return nil
		}); err != nil {
			return nil, convertReadError(c.framer, err)
		}
		return out, nil

	case *http2.PingFrame:
		return &PingFrame{Ack: f.IsAck(), Data: f.Data}, nil

	case *http2.GoAwayFrame:
		debug := append([]byte(nil), f.DebugData()...)
		return &GoAwayFrame{LastStreamID: f.LastStreamID, Code: f.ErrCode, Debug: debug}, nil

	case *http2.WindowUpdateFrame:
		return &WindowUpdateFrame{StreamID: f.StreamID, Increment: f.Increment}, nil

	case *http2.PushPromiseFrame:
		// 从不启用服务端推送
		return nil, NewProtocolError("unexpected PUSH_PROMISE")

	default:
		return nil, nil
	}
}

// ============================================================================
//                              编码
// ============================================================================

// WriteFrame 实现 Codec
func (c *FramerCodec) WriteFrame(f Frame) error {
	switch f := f.(type) {
	case *HeadersFrame:
		return c.writeHeaderBlock(f.StreamID, f.Fields, f.EndStream)
	case *TrailersFrame:
		return c.writeHeaderBlock(f.StreamID, f.Fields, true)
	case *DataFrame:
		return c.writeData(f)
	case *ResetFrame:
		return c.framer.WriteRSTStream(f.StreamID, f.Code)
	case *SettingsFrame:
		if f.Ack {
			return c.framer.WriteSettingsAck()
		}
		return c.framer.WriteSettings(f.Settings...)
	case *PingFrame:
		return c.framer.WritePing(f.Ack, f.Data)
	case *GoAwayFrame:
		return c.framer.WriteGoAway(f.LastStreamID, f.Code, f.Debug)
	case *WindowUpdateFrame:
		return c.framer.WriteWindowUpdate(f.StreamID, f.Increment)
	default:
		return ErrUnsupportedFrame
	}
}

// writeHeaderBlock 编码头部块，超过帧大小时用 CONTINUATION 续写
func (c *FramerCodec) writeHeaderBlock(streamID uint32, fields types.Fields, endStream bool) error {
	c.encBuf.Reset()
	for _, f := range fields {
		if err := c.enc.WriteField(hpack.HeaderField{
			Name:  strings.ToLower(f.Name),
			Value: f.Value,
		}); err != nil {
			return err
		}
	}
	block := c.encBuf.Bytes()

	first := block
	if uint32(len(first)) > c.maxFrameSize {
		first = first[:c.maxFrameSize]
	}
	rest := block[len(first):]

	if err := c.framer.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      streamID,
		BlockFragment: first,
		EndStream:     endStream,
		EndHeaders:    len(rest) == 0,
	}); err != nil {
		return err
	}

	for len(rest) > 0 {
		chunk := rest
		if uint32(len(chunk)) > c.maxFrameSize {
			chunk = chunk[:c.maxFrameSize]
		}
		rest = rest[len(chunk):]
		if err := c.framer.WriteContinuation(streamID, len(rest) == 0, chunk); err != nil {
			return err
		}
	}
	return nil
}

// writeData 按最大帧大小拆分 DATA，END_STREAM 只在最后一帧上
func (c *FramerCodec) writeData(f *DataFrame) error {
	data := f.Data
	for {
		chunk := data
		if uint32(len(chunk)) > c.maxFrameSize {
			chunk = chunk[:c.maxFrameSize]
		}
		data = data[len(chunk):]
		last := len(data) == 0
		if err := c.framer.WriteData(f.StreamID, last && f.EndStream, chunk); err != nil {
			return err
		}
		if last {
			return nil
		}
	}
}
