// Package quic 提供基于 QUIC 的端点传输
//
// 每个端点是一条 QUIC 连接上的一条双向流：拨号方 OpenStreamSync，
// 监听方 AcceptStream。端点实现 net.Conn，关闭端点即关闭整条 QUIC 连接。
//
// 拨号共享一个 UDP socket（quic.Transport），服务端使用自签名证书，
// ALPN 为 "httpcore"。
package quic
