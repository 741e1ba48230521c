// Package interfaces 定义 httpcore 的边界接口
//
// 内部实现之间只通过这里的接口协作，便于在测试中替换。
//
// # 文件组织
//
//   - endpoint.go  - 传输端点（Endpoint / Dialer / EndpointListener）
//   - eventbus.go  - 事件总线
//   - cookie.go    - Cookie 存储
//   - metrics.go   - 指标记录
//
// # 依赖方向
//
//	httpcore → destination → connection → session → frame
//	                                 ↘ interfaces ↙
//
// interfaces 只依赖 pkg/types。
package interfaces
