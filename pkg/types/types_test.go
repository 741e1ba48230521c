package types

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrigin(t *testing.T) {
	tests := []struct {
		url       string
		want      Origin
		authority string
	}{
		{"http://Example.com/a?b=c", Origin{"http", "example.com", 80}, "example.com"},
		{"https://example.com", Origin{"https", "example.com", 443}, "example.com"},
		{"http://127.0.0.1:8080/x", Origin{"http", "127.0.0.1", 8080}, "127.0.0.1:8080"},
		{"http://[::1]:9000/", Origin{"http", "::1", 9000}, "[::1]:9000"},
		{"http://[::1]/", Origin{"http", "::1", 80}, "[::1]"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			o, err := ParseOrigin(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, o)
			assert.Equal(t, tt.authority, o.Authority())
		})
	}
}

func TestParseOrigin_Invalid(t *testing.T) {
	for _, raw := range []string{"", "/relative", "gopher://host", "http://host:99999", "::"} {
		_, err := ParseOrigin(raw)
		assert.ErrorIs(t, err, ErrInvalidOrigin, raw)
	}
}

func TestOrigin_MapKey(t *testing.T) {
	m := map[Origin]int{}
	a, _ := ParseOrigin("http://localhost:80/a")
	b, _ := ParseOrigin("HTTP://LOCALHOST/b")
	m[a]++
	m[b]++
	assert.Len(t, m, 1)
	assert.Equal(t, "http://localhost:80", a.String())
}

func TestFields(t *testing.T) {
	var f Fields
	f.Add("Content-Type", "text/plain")
	f.Add("set-cookie", "a=1")
	f.Add("Set-Cookie", "b=2")

	assert.Equal(t, 3, f.Len())
	assert.Equal(t, "text/plain", f.Get("content-type"))
	assert.Equal(t, []string{"a=1", "b=2"}, f.Values("SET-COOKIE"))

	f.Set("set-cookie", "c=3")
	assert.Equal(t, []string{"c=3"}, f.Values("set-cookie"))

	f.Del("content-type")
	assert.False(t, f.Has("content-type"))
	assert.Equal(t, 1, f.Len())
}

func TestFields_CloneIndependence(t *testing.T) {
	f := FieldsOf("a", "1", "b", "2")
	c := f.Clone()
	c[0].Value = "changed"
	assert.Equal(t, "1", f.Get("a"))

	var empty Fields
	assert.Nil(t, empty.Clone())
}

func TestFields_Pseudo(t *testing.T) {
	f := FieldsOf(":status", "200", "server", "x")
	assert.True(t, f.HasPseudo())
	assert.Equal(t, FieldsOf("server", "x"), f.Regular())
	assert.Equal(t, http.Header{"Server": {"x"}}, f.Header())
}

func TestFieldsFromHeader(t *testing.T) {
	h := http.Header{}
	h.Add("B", "2")
	h.Add("A", "1")
	h.Add("A", "11")
	assert.Equal(t, FieldsOf("A", "1", "A", "11", "B", "2"), FieldsFromHeader(h))
}

func TestNewRequest(t *testing.T) {
	req, err := NewRequest("get", "http://localhost:8080/path?q=1", FieldsOf("X", "y"), nil)
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/path?q=1", req.Path())
	assert.True(t, req.Idempotent())

	o, err := req.Origin()
	require.NoError(t, err)
	assert.Equal(t, 8080, o.Port)

	clone := req.Clone()
	clone.Headers.Add("Cookie", "a=b")
	clone.URL.Path = "/other"
	assert.False(t, req.Headers.Has("Cookie"))
	assert.Equal(t, "/path?q=1", req.Path())

	_, err = NewRequest("GET", "not a url", nil, nil)
	assert.Error(t, err)

	post, err := NewRequest(http.MethodPost, "http://h/", nil, []byte("x"))
	require.NoError(t, err)
	assert.False(t, post.Idempotent())
}
