// Package server 实现对端服务：把端点上的请求交给 Handler
//
//   - http/1.1：端点适配为 net.Listener，由 net/http 解析请求
//   - h2c：每个端点一个服务端会话，每个对端流在独立 goroutine 中调用 Handler
//
// 响应的 HasTrailers 为 true 时 h2c 发送尾部块（可以为空）以结束流。
package server
