// Package tcp 提供基于 TCP 的端点传输
//
// 每个 TCP 连接就是一个端点，HTTP/1.1 与 h2c 连接直接运行在其上。
// 拨号设置 keep-alive 与 TCP_NODELAY，监听器接受的连接同样设置。
package tcp
