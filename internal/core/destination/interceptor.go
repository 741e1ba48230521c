package destination

import (
	"github.com/dep2p/go-httpcore/internal/core/connection"
	"github.com/dep2p/go-httpcore/internal/core/exchange"
)

// Interceptor 发送尝试拦截点
//
// 回调在目标的 goroutine 中调用，不持有目标的锁，可以阻塞。
type Interceptor interface {
	// BeforeSend 已为交换选定连接，尚未调用 Connection.Send
	BeforeSend(c connection.Connection, ex *exchange.Exchange)

	// OnSend 每次尝试之后调用，f 为 nil 表示交换已在连接上进行
	OnSend(c connection.Connection, ex *exchange.Exchange, f *connection.SendFailure)
}

// InterceptorFuncs 以函数字段实现 Interceptor，未设置的回调被忽略
type InterceptorFuncs struct {
	Before func(c connection.Connection, ex *exchange.Exchange)
	After  func(c connection.Connection, ex *exchange.Exchange, f *connection.SendFailure)
}

var _ Interceptor = (*InterceptorFuncs)(nil)

// BeforeSend 实现 Interceptor
func (i *InterceptorFuncs) BeforeSend(c connection.Connection, ex *exchange.Exchange) {
	if i.Before != nil {
		i.Before(c, ex)
	}
}

// OnSend 实现 Interceptor
func (i *InterceptorFuncs) OnSend(c connection.Connection, ex *exchange.Exchange, f *connection.SendFailure) {
	if i.After != nil {
		i.After(c, ex, f)
	}
}

type nopInterceptor struct{}

func (nopInterceptor) BeforeSend(connection.Connection, *exchange.Exchange)                           {}
func (nopInterceptor) OnSend(connection.Connection, *exchange.Exchange, *connection.SendFailure) {}
