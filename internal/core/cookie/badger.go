package cookie

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dgraph-io/badger/v4"

	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
	"github.com/dep2p/go-httpcore/pkg/types"
)

// keyPrefix 所有 Cookie 键的前缀，后接 host \x00 name \x00 path
const keyPrefix = "cookie/"

// BadgerStore 基于 BadgerDB 的持久 Cookie 存储
//
// 有过期时间的 Cookie 以 TTL 写入，由 BadgerDB 负责过期；
// 值是 Set-Cookie 的序列化形式，读回时用 net/http 重新解析。
type BadgerStore struct {
	db     *badger.DB
	clock  clock.Clock
	closed atomic.Bool
}

var _ pkgif.CookieStore = (*BadgerStore)(nil)

// OpenBadgerStore 打开持久存储
//
// dir 为空时使用内存模式（测试用）。
func OpenBadgerStore(dir string, clk clock.Clock) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	return &BadgerStore{db: db, clock: clk}, nil
}

// Cookies 实现 CookieStore
func (s *BadgerStore) Cookies(origin types.Origin, path string) []*http.Cookie {
	if s.closed.Load() {
		return nil
	}
	now := s.clock.Now()
	path = requestPath(path)
	prefix := hostPrefix(origin.Host)

	var matched []*entry
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			c := decode(raw)
			if c == nil {
				continue
			}
			// TTL 精度为秒，这里再按时钟过滤一次
			if !c.Expires.IsZero() && !c.Expires.After(now) {
				continue
			}
			if pathMatch(c.Path, path) && secureMatch(c, origin) {
				matched = append(matched, &entry{cookie: c, created: createdAt(item.Version())})
			}
		}
		return nil
	})
	if err != nil {
		log.Warn("读取持久 Cookie 失败", "host", origin.Host, "err", err)
		return nil
	}

	sortEntries(matched)
	out := make([]*http.Cookie, len(matched))
	for i, e := range matched {
		out[i] = e.cookie
	}
	return out
}

// SetCookies 实现 CookieStore
func (s *BadgerStore) SetCookies(origin types.Origin, cookies []*http.Cookie) {
	if len(cookies) == 0 || s.closed.Load() {
		return
	}
	now := s.clock.Now()

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, c := range cookies {
			key := append(hostPrefix(origin.Host), cookieKey(c)...)
			at, expired := expiry(c, now)
			if expired {
				if err := txn.Delete(key); err != nil {
					return err
				}
				continue
			}

			stored := *c
			stored.MaxAge = 0
			stored.Expires = at
			e := badger.NewEntry(key, []byte(stored.String()))
			if !at.IsZero() {
				e = e.WithTTL(at.Sub(now))
			}
			if err := txn.SetEntry(e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Warn("写入持久 Cookie 失败", "host", origin.Host, "err", err)
	}
}

// Close 实现 CookieStore
func (s *BadgerStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

func hostPrefix(host string) []byte {
	return []byte(keyPrefix + host + "\x00")
}

// decode 解析 Set-Cookie 序列化形式
func decode(raw []byte) *http.Cookie {
	resp := &http.Response{Header: http.Header{"Set-Cookie": {string(raw)}}}
	cs := resp.Cookies()
	if len(cs) != 1 {
		return nil
	}
	return cs[0]
}

// createdAt 以写入版本号近似创建顺序
func createdAt(version uint64) time.Time {
	return time.Unix(0, int64(version))
}
