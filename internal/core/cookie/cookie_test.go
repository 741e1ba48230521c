package cookie

import (
	"net/http"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-httpcore/config"
	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
	"github.com/dep2p/go-httpcore/pkg/types"
)

var (
	httpOrigin  = types.NewOrigin("http", "example.com", 80)
	httpsOrigin = types.NewOrigin("https", "example.com", 443)
	otherOrigin = types.NewOrigin("http", "other.com", 80)
)

func names(cs []*http.Cookie) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Name
	}
	return out
}

// storeFactories 两种实现共用同一组行为测试
func storeFactories(t *testing.T) map[string]func(clk clock.Clock) pkgif.CookieStore {
	return map[string]func(clk clock.Clock) pkgif.CookieStore{
		"memory": func(clk clock.Clock) pkgif.CookieStore {
			s, err := NewMemoryStore(16, clk)
			require.NoError(t, err)
			return s
		},
		"badger": func(clk clock.Clock) pkgif.CookieStore {
			s, err := OpenBadgerStore(t.TempDir(), clk)
			require.NoError(t, err)
			return s
		},
	}
}

func TestStore_SetAndGet(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(clock.NewMock())
			defer s.Close()

			s.SetCookies(httpOrigin, []*http.Cookie{
				{Name: "a", Value: "1"},
				{Name: "b", Value: "2", Path: "/api"},
			})

			assert.Equal(t, []string{"a"}, names(s.Cookies(httpOrigin, "/")))
			assert.ElementsMatch(t, []string{"a", "b"}, names(s.Cookies(httpOrigin, "/api/x?y=1")))
			assert.Equal(t, []string{"b", "a"}, names(s.Cookies(httpOrigin, "/api")))
			assert.Empty(t, s.Cookies(otherOrigin, "/"))
		})
	}
}

func TestStore_Replace(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(clock.NewMock())
			defer s.Close()

			s.SetCookies(httpOrigin, []*http.Cookie{{Name: "a", Value: "1"}})
			s.SetCookies(httpOrigin, []*http.Cookie{{Name: "a", Value: "2"}})

			cs := s.Cookies(httpOrigin, "/")
			require.Len(t, cs, 1)
			assert.Equal(t, "2", cs[0].Value)
		})
	}
}

func TestStore_Expiry(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			clk := clock.NewMock()
			clk.Set(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
			s := factory(clk)
			defer s.Close()

			s.SetCookies(httpOrigin, []*http.Cookie{
				{Name: "short", Value: "1", MaxAge: 60},
				{Name: "session", Value: "2"},
			})
			assert.Len(t, s.Cookies(httpOrigin, "/"), 2)

			clk.Add(2 * time.Minute)
			assert.Equal(t, []string{"session"}, names(s.Cookies(httpOrigin, "/")))

			// Max-Age<0 删除
			s.SetCookies(httpOrigin, []*http.Cookie{{Name: "session", Value: "", MaxAge: -1}})
			assert.Empty(t, s.Cookies(httpOrigin, "/"))
		})
	}
}

func TestStore_Secure(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(clock.NewMock())
			defer s.Close()

			s.SetCookies(httpsOrigin, []*http.Cookie{{Name: "sec", Value: "1", Secure: true}})
			assert.Len(t, s.Cookies(httpsOrigin, "/"), 1)
			// 同一主机的 http 请求不携带 Secure Cookie
			assert.Empty(t, s.Cookies(httpOrigin, "/"))
		})
	}
}

func TestMemoryStore_EvictsHosts(t *testing.T) {
	s, err := NewMemoryStore(2, nil)
	require.NoError(t, err)

	for _, host := range []string{"a.com", "b.com", "c.com"} {
		s.SetCookies(types.NewOrigin("http", host, 80), []*http.Cookie{{Name: "x", Value: host}})
	}
	assert.Equal(t, 2, s.Len())
	assert.Empty(t, s.Cookies(types.NewOrigin("http", "a.com", 80), "/"))
	assert.Len(t, s.Cookies(types.NewOrigin("http", "c.com", 80), "/"), 1)

	_, err = NewMemoryStore(0, nil)
	assert.ErrorIs(t, err, ErrInvalidMaxHosts)
}

func TestBadgerStore_Persists(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenBadgerStore(dir, nil)
	require.NoError(t, err)
	s.SetCookies(httpOrigin, []*http.Cookie{{Name: "keep", Value: "v", Path: "/"}})
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	s, err = OpenBadgerStore(dir, nil)
	require.NoError(t, err)
	defer s.Close()

	cs := s.Cookies(httpOrigin, "/")
	require.Len(t, cs, 1)
	assert.Equal(t, "keep", cs[0].Name)
	assert.Equal(t, "v", cs[0].Value)
}

func TestParseSetCookie(t *testing.T) {
	headers := types.FieldsOf(
		"Content-Type", "text/plain",
		"Set-Cookie", "a=1; Path=/",
		"set-cookie", "b=2; Max-Age=10",
	)
	cs := ParseSetCookie(headers)
	require.Len(t, cs, 2)
	assert.Equal(t, "a", cs[0].Name)
	assert.Equal(t, 10, cs[1].MaxAge)
	assert.Equal(t, "a=1; b=2", HeaderValue(cs))

	assert.Nil(t, ParseSetCookie(types.FieldsOf("X", "y")))
}

func TestPathMatch(t *testing.T) {
	tests := []struct {
		cookie, request string
		want            bool
	}{
		{"", "/anything", true},
		{"/", "/", true},
		{"/api", "/api", true},
		{"/api", "/api/v1", true},
		{"/api", "/apix", false},
		{"/api/", "/api/v1", true},
		{"/api", "/", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, pathMatch(tt.cookie, tt.request), "%s vs %s", tt.cookie, tt.request)
	}
}

func TestNew_ByConfig(t *testing.T) {
	cfg := config.DefaultCookieConfig()

	s, err := New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	cfg.Enabled = false
	s, err = New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, NopStore{}, s)

	cfg.Enabled = true
	cfg.PersistDir = t.TempDir()
	s, err = New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &BadgerStore{}, s)
	assert.NoError(t, s.Close())
}
