package types

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Request 客户端请求
//
// Headers 只包含普通头部；伪头部由帧编解码层按需生成。
type Request struct {
	Method  string
	URL     *url.URL
	Headers Fields
	Body    []byte
}

// NewRequest 创建请求
func NewRequest(method, rawURL string, headers Fields, body []byte) (*Request, error) {
	if method == "" {
		method = http.MethodGet
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if _, err := OriginOf(u); err != nil {
		return nil, err
	}
	return &Request{
		Method:  strings.ToUpper(method),
		URL:     u,
		Headers: headers.Clone(),
		Body:    body,
	}, nil
}

// Origin 请求的目标 Origin
func (r *Request) Origin() (Origin, error) {
	return OriginOf(r.URL)
}

// Path 返回 :path / 请求行中的目标（含查询串）
func (r *Request) Path() string {
	if r.URL == nil {
		return "/"
	}
	p := r.URL.RequestURI()
	if p == "" {
		return "/"
	}
	return p
}

// Idempotent 请求方法是否幂等（RFC 9110 §9.2.2）
func (r *Request) Idempotent() bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace,
		http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

// Clone 深拷贝，Body 共享底层数组（只读）
func (r *Request) Clone() *Request {
	out := *r
	if r.URL != nil {
		u := *r.URL
		out.URL = &u
	}
	out.Headers = r.Headers.Clone()
	return &out
}

// Response 响应
type Response struct {
	Status  int
	Headers Fields
	Body    []byte

	// Trailers 响应体之后的头部字段
	Trailers Fields

	// HasTrailers 是否收到了尾部块
	// 空的尾部块（0 个字段）与没有尾部块不同
	HasTrailers bool
}

// String 简要描述
func (r *Response) String() string {
	return fmt.Sprintf("%d %s (%d bytes)", r.Status, http.StatusText(r.Status), len(r.Body))
}
