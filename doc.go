// Package httpcore 提供 HTTP 客户端/服务端的传输核心
//
// 客户端按 Origin 维护连接池，把请求/响应交换分配到连接上：
// HTTP/1.1 连接每次承载一个交换，h2c 连接在一个会话上多路复用多个流。
// 发送失败按可重试性分类，可重试失败在有限预算内透明重试。
//
// # 快速开始
//
//	import "github.com/dep2p/go-httpcore"
//
//	c, err := httpcore.New(
//	    httpcore.WithProtocol(config.ProtocolH2C),
//	    httpcore.WithIdleTimeout(30*time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	// 同步
//	resp, err := c.Get(ctx, "http://127.0.0.1:8080/")
//
//	// 异步：监听器恰好收到一次终结回调
//	ex, _ := c.NewExchange("POST", "http://127.0.0.1:8080/upload", nil, body)
//	c.Send(ex, httpcore.ListenerFunc(func(ex *httpcore.Exchange, resp *httpcore.Response, err error) {
//	    ...
//	}))
//
// # 层次结构
//
//	┌─────────────────────────────────────────────────────────────────┐
//	│  Client          NewExchange / Send / Do                        │
//	├─────────────────────────────────────────────────────────────────┤
//	│  Destination     每个 Origin 的连接池、等待队列、重试            │
//	├─────────────────────────────────────────────────────────────────┤
//	│  Connection      空闲超时状态机（ACTIVE → IDLE_TIMING_OUT → CLOSED）│
//	├───────────────────────────────┬─────────────────────────────────┤
//	│  HTTP/1.1 线路编码            │  Session / Stream（帧多路复用）  │
//	├───────────────────────────────┴─────────────────────────────────┤
//	│  Transport       tcp / quic 端点                                │
//	└─────────────────────────────────────────────────────────────────┘
//
// # 文件组织
//
//   - client.go   - Client 及交换入口
//   - options.go  - 功能选项
//   - fx.go       - Fx 模块装配
//   - types.go    - 内部类型的导出别名
//   - errors.go   - 公共错误
//   - version.go  - 版本信息
//
// # 事件
//
// 状态转换通过 EventBus 发布，可在测试或监控中订阅：
//
//	sub, _ := c.EventBus().Subscribe(new(types.EvtExchangeRetry))
//	for evt := range sub.Out() {
//	    ...
//	}
package httpcore
