package exchange

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dep2p/go-httpcore/pkg/types"
)

// Exchange 一次客户端可见的请求/响应
//
// 交换是重试的单位：同一个 Exchange 可能在多个连接上尝试发送，
// 但请求规范化只执行一次，终结回调只触发一次。
type Exchange struct {
	id        string
	origin    types.Origin
	createdAt time.Time

	mu         sync.Mutex
	req        *types.Request
	listener   Listener
	normalized bool
	retries    int
	abort      func(error)
	done       chan struct{}
	terminated bool
	resp       *types.Response
	err        error
}

// New 为请求创建交换，请求被复制，调用方之后的修改不影响交换
func New(req *types.Request, l Listener) (*Exchange, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	origin, err := req.Origin()
	if err != nil {
		return nil, err
	}
	if l == nil {
		l = nopListener{}
	}
	return &Exchange{
		id:        uuid.NewString(),
		origin:    origin,
		createdAt: time.Now(),
		req:       req.Clone(),
		listener:  l,
		done:      make(chan struct{}),
	}, nil
}

// ID 交换标识
func (ex *Exchange) ID() string {
	return ex.id
}

// Origin 目标 Origin
func (ex *Exchange) Origin() types.Origin {
	return ex.origin
}

// CreatedAt 创建时间
func (ex *Exchange) CreatedAt() time.Time {
	return ex.createdAt
}

// Request 当前请求（规范化后为规范化结果）
//
// 返回值只读，连接在每次发送尝试中使用同一个请求。
func (ex *Exchange) Request() *types.Request {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.req
}

// SetListener 替换终结回调，交换终结后无效
func (ex *Exchange) SetListener(l Listener) {
	if l == nil {
		l = nopListener{}
	}
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if !ex.terminated {
		ex.listener = l
	}
}

// ============================================================================
//                              规范化
// ============================================================================

// Normalize 对请求执行 fn，每个交换只执行一次
//
// 返回是否本次实际执行。重试路径调用 Normalize 时直接返回 false。
func (ex *Exchange) Normalize(fn func(origin types.Origin, req *types.Request) error) (bool, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.normalized {
		return false, nil
	}
	req := ex.req.Clone()
	if err := fn(ex.origin, req); err != nil {
		return false, err
	}
	ex.req = req
	ex.normalized = true
	return true, nil
}

// Normalized 是否已规范化
func (ex *Exchange) Normalized() bool {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.normalized
}

// ============================================================================
//                              重试记账
// ============================================================================

// Retries 已重试次数
func (ex *Exchange) Retries() int {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.retries
}

// RecordRetry 重试计数加一，返回新的计数
func (ex *Exchange) RecordRetry() int {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.retries++
	return ex.retries
}

// ============================================================================
//                              终结
// ============================================================================

// SetAbort 设置取消时执行的中止动作（出队、重置流、关闭连接）
//
// 交换已终结时返回 false，调用方应自行放弃当前尝试。
func (ex *Exchange) SetAbort(fn func(error)) bool {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.terminated {
		return false
	}
	ex.abort = fn
	return true
}

// Succeed 以响应完成交换，返回是否由本次调用终结
func (ex *Exchange) Succeed(resp *types.Response) bool {
	l, _, ok := ex.terminate(resp, nil)
	if ok {
		l.OnComplete(ex, resp)
	}
	return ok
}

// Fail 以错误终结交换，返回是否由本次调用终结
func (ex *Exchange) Fail(err error) bool {
	l, _, ok := ex.terminate(nil, err)
	if ok {
		l.OnFailure(ex, err)
	}
	return ok
}

// Cancel 取消交换
//
// 幂等：重复取消或在终结后取消都不产生效果。
// 返回是否由本次调用终结。
func (ex *Exchange) Cancel() bool {
	l, abort, ok := ex.terminate(nil, ErrCanceled)
	if !ok {
		return false
	}
	log.Debug("交换已取消", "exchange", ex.id, "origin", ex.origin)
	if abort != nil {
		abort(ErrCanceled)
	}
	l.OnFailure(ex, ErrCanceled)
	return true
}

// terminate 认领终结权，返回监听器与当前中止动作
func (ex *Exchange) terminate(resp *types.Response, err error) (Listener, func(error), bool) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.terminated {
		return nil, nil, false
	}
	ex.terminated = true
	ex.resp, ex.err = resp, err
	abort := ex.abort
	ex.abort = nil
	close(ex.done)
	return ex.listener, abort, true
}

// IsDone 是否已终结
func (ex *Exchange) IsDone() bool {
	select {
	case <-ex.done:
		return true
	default:
		return false
	}
}

// Done 终结后关闭
func (ex *Exchange) Done() <-chan struct{} {
	return ex.done
}

// Result 终结结果，未终结时均为 nil
func (ex *Exchange) Result() (*types.Response, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.resp, ex.err
}

// Wait 等待交换终结
//
// ctx 结束时取消交换并返回 ctx 的错误。
func (ex *Exchange) Wait(ctx context.Context) (*types.Response, error) {
	select {
	case <-ex.done:
		return ex.Result()
	case <-ctx.Done():
		ex.Cancel()
		// 取消可能输给并发的完成
		resp, err := ex.Result()
		if errors.Is(err, ErrCanceled) {
			return nil, ctx.Err()
		}
		return resp, err
	}
}
