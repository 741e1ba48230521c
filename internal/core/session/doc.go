// Package session 实现 HTTP/2 风格的多路复用会话
//
// 一个 Session 独占一个传输端点，在其上运行多个并发 Stream：
//
//	┌──────────────────────── Session ────────────────────────┐
//	│ readLoop ──► dispatch ──► Stream(1) ──► StreamListener   │
//	│                       └─► Stream(3) ──► StreamListener   │
//	│ controlLoop (ACK / PING / RST_STREAM / WINDOW_UPDATE)     │
//	│ writeMu：流 ID 分配与 HEADERS 写出顺序一致                 │
//	└──────────────────────────────────────────────────────────┘
//
// # 流状态
//
//	IDLE → OPEN → HALF_CLOSED_LOCAL | HALF_CLOSED_REMOTE → CLOSED
//
// 两个方向都收到/发出 END_STREAM 后流进入 CLOSED 并从流表移除。
// 客户端在请求体发完前收到完整响应时，流以 CANCEL 重置。
//
// # 关闭
//
// Reset 与 Ping 经由 controlLoop 写出，不等待写锁。Close 最多等待
// goAwayWriteTimeout 写出 GOAWAY，随后关闭端点，阻塞中的写随之返回。
//
// # 终结语义
//
// 每个流的 OnComplete 与 OnFailure 合计恰好触发一次。END_STREAM 可以由
// HEADERS、DATA 或尾部块携带；空尾部块同样通过 OnTrailers 交付后完成。
//
// # 错误
//
//   - 未知或非法流 ID、END_STREAM 之后的帧：连接级协议错误，会话终止
//   - 编解码器报告的流级错误：仅重置该流
//   - 传输失败：所有在途流以 *TransportError 失败
//
// IsRetryable 判断流失败能否在另一个连接上重试。
package session
