package exchange

import "github.com/dep2p/go-httpcore/pkg/types"

// Listener 交换终结回调
//
// 每个交换恰好调用一次 OnComplete 或 OnFailure。
type Listener interface {
	OnComplete(ex *Exchange, resp *types.Response)
	OnFailure(ex *Exchange, err error)
}

// ListenerFunc 用单个函数实现 Listener，成功时 err 为 nil
type ListenerFunc func(ex *Exchange, resp *types.Response, err error)

// OnComplete 实现 Listener
func (f ListenerFunc) OnComplete(ex *Exchange, resp *types.Response) {
	f(ex, resp, nil)
}

// OnFailure 实现 Listener
func (f ListenerFunc) OnFailure(ex *Exchange, err error) {
	f(ex, nil, err)
}

type nopListener struct{}

func (nopListener) OnComplete(*Exchange, *types.Response) {}
func (nopListener) OnFailure(*Exchange, error)            {}
