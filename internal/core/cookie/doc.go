// Package cookie 实现请求规范化使用的 Cookie 存储
//
// 响应中的 Set-Cookie 按主机保存；交换第一次发送前，
// 匹配的 Cookie 被合并为单个 Cookie 头附加到请求上。
//
// 两种实现：
//   - MemoryStore  主机粒度 LRU（golang-lru），进程内
//   - BadgerStore  BadgerDB 持久化，过期时间映射为条目 TTL
//
// 匹配规则取 RFC 6265 的子集：host-only、路径前缀、Secure。
package cookie
