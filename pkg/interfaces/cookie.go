package interfaces

import (
	"net/http"

	"github.com/dep2p/go-httpcore/pkg/types"
)

// CookieStore Cookie 存储
//
// 规范化阶段从这里读取要附加的 Cookie，响应到达后把 Set-Cookie 写回。
// 实现必须并发安全。
type CookieStore interface {
	// Cookies 返回应发往 origin/path 的 Cookie（已过滤过期项）
	Cookies(origin types.Origin, path string) []*http.Cookie

	// SetCookies 保存响应中的 Cookie
	SetCookies(origin types.Origin, cookies []*http.Cookie)

	// Close 释放存储资源
	Close() error
}
