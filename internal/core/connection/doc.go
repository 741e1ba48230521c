// Package connection 实现到单个 Origin 的物理连接
//
// 两种连接共享同一个空闲状态机：
//
//	ACTIVE ──(空闲期限到且无在途交换)──► IDLE_TIMING_OUT ──► CLOSED
//
// 空闲定时器与 Send 在同一把锁下认领状态：定时器先认领时，
// 之后到达的 Send 立即得到可重试的 SendFailure（ErrIdleTimeout），不写出任何字节；
// Send 先认领时，定时器发现在途交换并重新设置。
//
//   - HTTP1Conn：同一时间一个交换，请求用 net/http 编码，响应用 http.ReadResponse 解析
//   - HTTP2Conn：独占一个 session.Session，每个交换是一个流
//
// 结果通过 Owner 异步回调；Interceptor 在空闲超时决策之后、拆除之前被调用。
package connection
