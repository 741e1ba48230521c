// Package transport 按配置选择端点传输
//
//	config.TransportConfig.Network
//	  ├── "tcp"  → tcp.Transport（net.Dialer，keep-alive）
//	  └── "quic" → quic.Transport（一条 QUIC 连接上的一条双向流）
//
// 两种传输都实现 interfaces.Dialer，连接池通过它建立端点。
// Fx 模块提供 interfaces.Dialer，并在停止时关闭传输。
package transport
