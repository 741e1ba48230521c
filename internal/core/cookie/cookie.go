package cookie

import (
	"net/http"
	"strings"
	"time"

	"github.com/dep2p/go-httpcore/pkg/types"
)

// ParseSetCookie 解析响应头中的 Set-Cookie
//
// 复用 net/http 的解析规则，非法条目被丢弃。
func ParseSetCookie(headers types.Fields) []*http.Cookie {
	values := headers.Values("Set-Cookie")
	if len(values) == 0 {
		return nil
	}
	resp := &http.Response{Header: http.Header{"Set-Cookie": values}}
	return resp.Cookies()
}

// HeaderValue 把 Cookie 合并为单个 Cookie 头的取值
func HeaderValue(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// expiry 计算 Cookie 的过期时间
//
// 返回 zero 表示会话 Cookie；expired 为 true 表示应立即删除。
func expiry(c *http.Cookie, now time.Time) (at time.Time, expired bool) {
	switch {
	case c.MaxAge < 0:
		return time.Time{}, true
	case c.MaxAge > 0:
		return now.Add(time.Duration(c.MaxAge) * time.Second), false
	case !c.Expires.IsZero():
		return c.Expires, !c.Expires.After(now)
	default:
		return time.Time{}, false
	}
}

// pathMatch RFC 6265 §5.1.4 路径匹配
func pathMatch(cookiePath, requestPath string) bool {
	if cookiePath == "" || cookiePath == "/" {
		return true
	}
	if requestPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(requestPath, cookiePath) {
		return false
	}
	return strings.HasSuffix(cookiePath, "/") || requestPath[len(cookiePath)] == '/'
}

// secureMatch Secure Cookie 只发往 https
func secureMatch(c *http.Cookie, origin types.Origin) bool {
	return !c.Secure || origin.Scheme == "https" || origin.Scheme == "wss"
}

// requestPath 去掉查询串
func requestPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	return path
}

// cookieKey 同一主机内的唯一键
func cookieKey(c *http.Cookie) string {
	path := c.Path
	if path == "" {
		path = "/"
	}
	return c.Name + "\x00" + path
}
