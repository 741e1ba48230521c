// Package mocks 提供统一的测试 Mock 实现
//
// # 传输 Mock
//
//   - MockDialer: 模拟 interfaces.Dialer，记录拨号目标
//   - MockListener: 模拟 interfaces.EndpointListener，由测试推入端点
//   - PipeDialer: 用 net.Pipe 把拨号直接接到 MockListener，无需真实网络
//
// # 组件 Mock
//
//   - MockCookieStore: 模拟 interfaces.CookieStore
//   - MockMetrics: 模拟 interfaces.Metrics，按类别计数
//
// # 设计原则
//
// 1. 函数式注入: 每个 Mock 都支持通过 XxxFunc 字段注入自定义行为
// 2. 调用记录: 关键 Mock 记录调用历史，便于验证测试行为
//
// # 使用示例
//
//	ln := mocks.NewMockListener()
//	go srv.Serve(ln)
//
//	c, _ := httpcore.New(httpcore.WithDialer(mocks.PipeDialer(ln)))
//	resp, err := c.Get(ctx, "http://peer.test/")
package mocks
