package types

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// ErrInvalidOrigin 无法从 URL 解析出 Origin
var ErrInvalidOrigin = errors.New("invalid origin")

// Origin 远端端点三元组
//
// 不可变值类型，可直接作为 map 键。
type Origin struct {
	Scheme string
	Host   string
	Port   int
}

// NewOrigin 创建 Origin，scheme 与 host 统一为小写
func NewOrigin(scheme, host string, port int) Origin {
	return Origin{
		Scheme: strings.ToLower(scheme),
		Host:   strings.ToLower(host),
		Port:   port,
	}
}

// ParseOrigin 从 URL 解析 Origin，缺省端口按 scheme 补齐
func ParseOrigin(rawURL string) (Origin, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Origin{}, fmt.Errorf("%w: %v", ErrInvalidOrigin, err)
	}
	return OriginOf(u)
}

// OriginOf 从已解析的 URL 取得 Origin
func OriginOf(u *url.URL) (Origin, error) {
	if u == nil || u.Scheme == "" || u.Hostname() == "" {
		return Origin{}, ErrInvalidOrigin
	}

	port := DefaultPort(u.Scheme)
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 || n > 65535 {
			return Origin{}, fmt.Errorf("%w: bad port %q", ErrInvalidOrigin, p)
		}
		port = n
	}
	if port == 0 {
		return Origin{}, fmt.Errorf("%w: no port for scheme %q", ErrInvalidOrigin, u.Scheme)
	}

	return NewOrigin(u.Scheme, u.Hostname(), port), nil
}

// DefaultPort 返回 scheme 的缺省端口，未知 scheme 返回 0
func DefaultPort(scheme string) int {
	switch strings.ToLower(scheme) {
	case "http", "ws":
		return 80
	case "https", "wss":
		return 443
	default:
		return 0
	}
}

// Address 返回 host:port，用于拨号
func (o Origin) Address() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// Authority 返回 Host 头 / :authority 的取值，缺省端口时省略端口
func (o Origin) Authority() string {
	if o.Port == DefaultPort(o.Scheme) {
		if strings.Contains(o.Host, ":") {
			return "[" + o.Host + "]"
		}
		return o.Host
	}
	return o.Address()
}

// String 返回 scheme://host:port
func (o Origin) String() string {
	return o.Scheme + "://" + o.Address()
}

// IsZero 是否为空值
func (o Origin) IsZero() bool {
	return o == Origin{}
}
