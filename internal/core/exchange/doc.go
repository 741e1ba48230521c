// Package exchange 定义客户端交换
//
// Exchange 是一次请求/响应，也是重试的单位。它保证：
//   - 请求规范化（附加 Cookie、User-Agent）只执行一次，重试不会重复
//   - Succeed / Fail / Cancel 中恰好一个生效，监听器只收到一次终结回调
//   - Cancel 幂等，并执行当前持有者登记的中止动作以释放连接池槽位
package exchange
