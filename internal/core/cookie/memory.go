package cookie

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"

	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
	"github.com/dep2p/go-httpcore/pkg/types"
)

// MemoryStore 内存 Cookie 存储
//
// 按主机分桶，主机数超过上限时按 LRU 淘汰整个桶。
type MemoryStore struct {
	clock clock.Clock
	hosts *lru.Cache[string, *jar]
}

type jar struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	cookie  *http.Cookie
	expires time.Time
	created time.Time
}

var _ pkgif.CookieStore = (*MemoryStore)(nil)

// NewMemoryStore 创建内存存储
func NewMemoryStore(maxHosts int, clk clock.Clock) (*MemoryStore, error) {
	if maxHosts <= 0 {
		return nil, ErrInvalidMaxHosts
	}
	if clk == nil {
		clk = clock.New()
	}
	hosts, err := lru.New[string, *jar](maxHosts)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{clock: clk, hosts: hosts}, nil
}

// Cookies 实现 CookieStore
func (s *MemoryStore) Cookies(origin types.Origin, path string) []*http.Cookie {
	j, ok := s.hosts.Get(origin.Host)
	if !ok {
		return nil
	}
	now := s.clock.Now()
	path = requestPath(path)

	j.mu.Lock()
	defer j.mu.Unlock()

	matched := make([]*entry, 0, len(j.entries))
	for k, e := range j.entries {
		if !e.expires.IsZero() && !e.expires.After(now) {
			delete(j.entries, k)
			continue
		}
		if pathMatch(e.cookie.Path, path) && secureMatch(e.cookie, origin) {
			matched = append(matched, e)
		}
	}
	sortEntries(matched)

	out := make([]*http.Cookie, len(matched))
	for i, e := range matched {
		c := *e.cookie
		out[i] = &c
	}
	return out
}

// SetCookies 实现 CookieStore
func (s *MemoryStore) SetCookies(origin types.Origin, cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	now := s.clock.Now()

	j, ok := s.hosts.Get(origin.Host)
	if !ok {
		j = &jar{entries: make(map[string]*entry)}
		// 并发首写时保留先到者
		if prev, found, _ := s.hosts.PeekOrAdd(origin.Host, j); found {
			j = prev
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	for _, c := range cookies {
		key := cookieKey(c)
		at, expired := expiry(c, now)
		if expired {
			delete(j.entries, key)
			continue
		}
		created := now
		if old, ok := j.entries[key]; ok {
			created = old.created
		}
		cp := *c
		j.entries[key] = &entry{cookie: &cp, expires: at, created: created}
	}
}

// Len 返回当前保存 Cookie 的主机数
func (s *MemoryStore) Len() int {
	return s.hosts.Len()
}

// Close 实现 CookieStore
func (s *MemoryStore) Close() error {
	s.hosts.Purge()
	return nil
}

// sortEntries RFC 6265 §5.4：路径长的在前，同长时创建早的在前
func sortEntries(es []*entry) {
	sort.SliceStable(es, func(i, k int) bool {
		li, lk := len(es[i].cookie.Path), len(es[k].cookie.Path)
		if li != lk {
			return li > lk
		}
		if !es[i].created.Equal(es[k].created) {
			return es[i].created.Before(es[k].created)
		}
		return es[i].cookie.Name < es[k].cookie.Name
	})
}
