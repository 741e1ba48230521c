package cookie

import (
	"context"
	"net/http"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-httpcore/config"
	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
	"github.com/dep2p/go-httpcore/pkg/types"
)

// Params 依赖参数
type Params struct {
	fx.In

	Config *config.Config `optional:"true"`
	Clock  clock.Clock    `optional:"true"`
}

// Module Cookie 存储 Fx 模块
var Module = fx.Module("cookie",
	fx.Provide(Provide),
)

// Provide 按配置提供 CookieStore，停止时关闭
func Provide(lc fx.Lifecycle, p Params) (pkgif.CookieStore, error) {
	cfg := config.DefaultCookieConfig()
	if p.Config != nil {
		cfg = p.Config.Cookie
	}
	store, err := New(cfg, p.Clock)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return store.Close()
		},
	})
	return store, nil
}

// New 按配置创建存储
//
//   - 未启用：NopStore
//   - 配置了 PersistDir：BadgerStore
//   - 否则：MemoryStore
func New(cfg config.CookieConfig, clk clock.Clock) (pkgif.CookieStore, error) {
	switch {
	case !cfg.Enabled:
		return NopStore{}, nil
	case cfg.PersistDir != "":
		log.Debug("使用持久 Cookie 存储", "dir", cfg.PersistDir)
		s, err := OpenBadgerStore(cfg.PersistDir, clk)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := NewMemoryStore(cfg.MaxHosts, clk)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// NopStore 不保存任何 Cookie
type NopStore struct{}

var _ pkgif.CookieStore = NopStore{}

func (NopStore) Cookies(types.Origin, string) []*http.Cookie { return nil }
func (NopStore) SetCookies(types.Origin, []*http.Cookie)     {}
func (NopStore) Close() error                                { return nil }
