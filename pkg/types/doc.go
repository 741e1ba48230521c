// Package types 定义 httpcore 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他 httpcore 内部包。
// 所有类型都是值类型或简单容器，用于在各模块间传递数据。
//
// # 文件组织
//
//   - origin.go   - Origin（scheme/host/port 三元组），目标注册表的键
//   - fields.go   - Fields 有序头部字段集合
//   - message.go  - Request / Response
//   - events.go   - 状态转换事件（连接打开、空闲超时、关闭、重试、完成）
package types
