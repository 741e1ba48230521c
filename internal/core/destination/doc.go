// Package destination 实现到单个 Origin 的连接池与重试
//
// 一个 Destination 持有按创建顺序排列的连接池和先进先出的等待队列：
//
//	Send ──► 规范化(一次) ──► 队列 ──► 选择连接 ──► Connection.Send
//	                          ▲                          │
//	                          └──── 可重试且预算未用尽 ◄──┘
//
// 选择策略：第一个可用且在途数低于其并发上限的连接（最老优先）。
// 没有可用连接且池未满时拨号新连接；拨号受令牌桶与创建许可限制。
//
// 可重试失败回到队首，不重新规范化；预算用尽时以 ErrRetriesExhausted 包装原因失败。
// 关闭的连接经 Owner 回调立即移出连接池。
package destination
