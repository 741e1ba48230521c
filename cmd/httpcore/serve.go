package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dep2p/go-httpcore/config"
	"github.com/dep2p/go-httpcore/internal/core/metrics"
	"github.com/dep2p/go-httpcore/internal/core/server"
	"github.com/dep2p/go-httpcore/internal/core/session"
	"github.com/dep2p/go-httpcore/internal/core/transport/quic"
	"github.com/dep2p/go-httpcore/internal/core/transport/tcp"
	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
	"github.com/dep2p/go-httpcore/pkg/types"
)

func runServe(args []string) error {
	var (
		configFile  string
		listen      string
		protocol    string
		network     string
		metricsAddr string
	)
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.StringVar(&configFile, "config", "", "配置文件路径")
	fs.StringVar(&listen, "listen", "127.0.0.1:8080", "监听地址")
	fs.StringVar(&protocol, "protocol", "", "线路协议 (http/1.1 或 h2c)")
	fs.StringVar(&network, "network", "", "监听网络 (tcp 或 quic)")
	fs.StringVar(&metricsAddr, "metrics-addr", "", "Prometheus 指标监听地址")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return errUsage
	}

	cfg := config.NewConfig()
	if configFile != "" {
		loaded, err := config.LoadFile(configFile)
		if err != nil {
			return fmt.Errorf("加载配置文件失败: %w", err)
		}
		cfg = loaded
	}
	applyEnvOverrides(cfg, nil)
	if protocol != "" {
		cfg.Client.Protocol = config.Protocol(protocol)
	}
	if network != "" {
		cfg.Transport.Network = config.Network(network)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ═══════════════════════════════════════════════════════════════════
	// 指标（仅 h2c 会话的活跃流数）
	// ═══════════════════════════════════════════════════════════════════
	var m pkgif.Metrics
	if metricsAddr != "" {
		mcfg := cfg.Metrics
		mcfg.Enabled = true
		collector, err := metrics.NewCollector(mcfg)
		if err != nil {
			return err
		}
		stop, err := serveMetrics(metricsAddr, collector.Handler())
		if err != nil {
			return err
		}
		defer stop()
		m = collector
	}

	srv, err := server.New(echoHandler, server.Options{
		Protocol: cfg.Client.Protocol,
		Sessions: session.NewFactory(session.ConfigFrom(cfg.HTTP2), m),
	})
	if err != nil {
		return err
	}

	ln, closeTransport, err := listenOn(cfg.Transport, listen)
	if err != nil {
		return err
	}
	defer closeTransport()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	fmt.Printf("正在监听 %s（%s over %s），按 Ctrl+C 退出\n", ln.Addr(), cfg.Client.Protocol, cfg.Transport.Network)
	sigCh := make(chan struct{})
	go func() {
		waitForSignal()
		close(sigCh)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, server.ErrServerClosed) {
			return err
		}
		return nil
	case <-sigCh:
		fmt.Println("\n正在关闭...")
	}
	return srv.Close()
}

// listenOn 按传输配置在 addr 上监听
//
// quic 使用自签名证书，客户端需要 -insecure。
func listenOn(cfg config.TransportConfig, addr string) (pkgif.EndpointListener, func(), error) {
	switch cfg.Network {
	case config.NetworkQUIC:
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, nil, err
		}
		if host == "" {
			host, _ = os.Hostname()
		}
		tlsConf, _, err := quic.SelfSigned(host)
		if err != nil {
			return nil, nil, err
		}
		qt := quic.New(quic.Options{})
		ln, err := qt.Listen(addr, tlsConf)
		if err != nil {
			_ = qt.Close()
			return nil, nil, err
		}
		return ln, func() { _ = qt.Close() }, nil
	default:
		tr := tcp.New(time.Duration(cfg.ConnectTimeout), time.Duration(cfg.KeepAlive))
		ln, err := tr.Listen(addr)
		if err != nil {
			_ = tr.Close()
			return nil, nil, err
		}
		return ln, func() { _ = tr.Close() }, nil
	}
}

// echoHandler 回显请求行、头部与请求体
//
// 查询参数：
//   - status=NNN       响应状态码
//   - trailer=name:val 追加尾部字段，可重复
//   - empty-trailers   发送空尾部块
func echoHandler(_ context.Context, req *types.Request) *types.Response {
	q := req.URL.Query()

	status := http.StatusOK
	if s := q.Get("status"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 200 && n <= 599 {
			status = n
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", req.Method, req.Path())
	for _, h := range req.Headers {
		fmt.Fprintf(&b, "%s: %s\n", h.Name, h.Value)
	}
	if len(req.Body) > 0 {
		b.WriteString("\n")
		b.Write(req.Body)
	}

	resp := &types.Response{
		Status:  status,
		Headers: types.FieldsOf("content-type", "text/plain; charset=utf-8"),
		Body:    []byte(b.String()),
	}
	for _, t := range q["trailer"] {
		name, value, _ := strings.Cut(t, ":")
		resp.Trailers.Add(strings.TrimSpace(name), strings.TrimSpace(value))
		resp.HasTrailers = true
	}
	if q.Has("empty-trailers") {
		resp.HasTrailers = true
	}
	return resp
}
