// Package eventbus 实现进程内事件总线
//
// 提供类型安全的事件发布/订阅机制，用于发布传输核心的状态转换：
// 连接建立、空闲超时、连接关闭、交换重试、交换完成。
//
// # 快速开始
//
//	bus := eventbus.NewBus()
//
//	sub, _ := bus.Subscribe(new(types.EvtConnectionClosed))
//	defer sub.Close()
//
//	em, _ := bus.Emitter(new(types.EvtConnectionClosed))
//	defer em.Close()
//	em.Emit(types.EvtConnectionClosed{...})
//
//	evt := (<-sub.Out()).(types.EvtConnectionClosed)
//
// # 投递语义
//
// 发射不阻塞：订阅者缓冲区满时事件被丢弃并计数。
// 测试中订阅者应在触发事件之前完成订阅。
package eventbus
