package exchange

import (
	"github.com/dep2p/go-httpcore/internal/core/cookie"
	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
	"github.com/dep2p/go-httpcore/pkg/types"
)

// Normalizer 请求规范化
//
// 规范化从之前响应积累的状态派生请求头：
//   - 存储的 Cookie 合并为单个 Cookie 头
//   - 缺省的 User-Agent
type Normalizer struct {
	cookies   pkgif.CookieStore
	userAgent string
}

// NewNormalizer 创建规范化器，store 可以为 nil
func NewNormalizer(store pkgif.CookieStore, userAgent string) *Normalizer {
	return &Normalizer{cookies: store, userAgent: userAgent}
}

// Apply 规范化交换的请求，重复调用无副作用
func (n *Normalizer) Apply(ex *Exchange) error {
	applied, err := ex.Normalize(n.normalize)
	if applied {
		log.Debug("请求已规范化", "exchange", ex.ID(), "origin", ex.Origin())
	}
	return err
}

func (n *Normalizer) normalize(origin types.Origin, req *types.Request) error {
	if n.cookies != nil {
		if cs := n.cookies.Cookies(origin, req.Path()); len(cs) > 0 {
			value := cookie.HeaderValue(cs)
			if existing := req.Headers.Get("Cookie"); existing != "" {
				value = existing + "; " + value
			}
			req.Headers.Set("Cookie", value)
		}
	}
	if n.userAgent != "" && !req.Headers.Has("User-Agent") {
		req.Headers.Set("User-Agent", n.userAgent)
	}
	return nil
}

// Capture 保存响应中的 Set-Cookie
func (n *Normalizer) Capture(origin types.Origin, resp *types.Response) {
	if n.cookies == nil || resp == nil {
		return
	}
	if cs := cookie.ParseSetCookie(resp.Headers); len(cs) > 0 {
		n.cookies.SetCookies(origin, cs)
	}
}
