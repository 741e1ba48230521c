// Package metrics 提供传输核心的 Prometheus 指标
//
// 指标：
//   - connection_open / connection_opened_total   按 origin、协议
//   - connection_idle_timeouts_total              按 origin、是否进入关闭
//   - exchange_retries_total                      按 origin
//   - exchange_completed_total                    按 origin、结果
//   - session_streams_active
package metrics
