package httpcore

import (
	"github.com/dep2p/go-httpcore/internal/core/connection"
	"github.com/dep2p/go-httpcore/internal/core/destination"
	"github.com/dep2p/go-httpcore/internal/core/exchange"
	"github.com/dep2p/go-httpcore/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              消息类型
// ════════════════════════════════════════════════════════════════════════════

type (
	// Request 客户端请求
	Request = types.Request

	// Response 响应（含尾部块）
	Response = types.Response

	// Fields 有序头部字段
	Fields = types.Fields

	// Origin scheme + host + port
	Origin = types.Origin
)

// NewRequest 创建请求
func NewRequest(method, rawURL string, headers Fields, body []byte) (*Request, error) {
	return types.NewRequest(method, rawURL, headers, body)
}

// FieldsOf 由名称/值对构造字段
func FieldsOf(kv ...string) Fields {
	return types.FieldsOf(kv...)
}

// ════════════════════════════════════════════════════════════════════════════
//                              交换
// ════════════════════════════════════════════════════════════════════════════

type (
	// Exchange 一次请求/响应交互
	Exchange = exchange.Exchange

	// Listener 交换终结回调，每个交换恰好调用一次
	Listener = exchange.Listener

	// ListenerFunc 用单个函数实现 Listener
	ListenerFunc = exchange.ListenerFunc
)

// ════════════════════════════════════════════════════════════════════════════
//                              拦截点
// ════════════════════════════════════════════════════════════════════════════

type (
	// Connection 连接池中的连接
	Connection = connection.Connection

	// SendFailure 发送失败及其可重试性
	SendFailure = connection.SendFailure

	// ConnectionInterceptor 空闲超时拦截点
	ConnectionInterceptor = connection.Interceptor

	// ConnectionInterceptorFunc 函数适配 ConnectionInterceptor
	ConnectionInterceptorFunc = connection.InterceptorFunc

	// DestinationInterceptor 发送前后拦截点
	DestinationInterceptor = destination.Interceptor

	// DestinationInterceptorFuncs 函数适配 DestinationInterceptor
	DestinationInterceptorFuncs = destination.InterceptorFuncs
)

// ════════════════════════════════════════════════════════════════════════════
//                              统计
// ════════════════════════════════════════════════════════════════════════════

type (
	// DestinationStats 单个 Origin 的统计
	DestinationStats = types.DestinationStats

	// ConnectionStats 单个连接的统计
	ConnectionStats = types.ConnectionStats
)
