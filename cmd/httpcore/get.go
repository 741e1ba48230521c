package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-httpcore"
	"github.com/dep2p/go-httpcore/config"
)

// getFlags get 子命令参数
type getFlags struct {
	configFile  string
	protocol    string
	network     string
	method      string
	data        string
	headers     headerFlags
	count       int
	concurrency int
	timeout     time.Duration
	idleTimeout time.Duration
	maxRetries  int
	insecure    bool
	metricsAddr string
}

func runGet(args []string) error {
	return get(args, os.Stdout)
}

func get(args []string, out io.Writer) error {
	var f getFlags
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.StringVar(&f.configFile, "config", "", "配置文件路径")
	fs.StringVar(&f.protocol, "protocol", "", "线路协议 (http/1.1 或 h2c)")
	fs.StringVar(&f.network, "network", "", "拨号网络 (tcp 或 quic)")
	fs.StringVar(&f.method, "X", http.MethodGet, "请求方法")
	fs.StringVar(&f.data, "d", "", "请求体")
	fs.Var(&f.headers, "H", "请求头 \"Name: value\"，可重复")
	fs.IntVar(&f.count, "n", 1, "请求次数")
	fs.IntVar(&f.concurrency, "c", 1, "并发数")
	fs.DurationVar(&f.timeout, "timeout", 30*time.Second, "单个请求超时")
	fs.DurationVar(&f.idleTimeout, "idle-timeout", 0, "连接空闲超时（覆盖配置）")
	fs.IntVar(&f.maxRetries, "max-retries", 0, "最大重试次数（覆盖配置）")
	fs.BoolVar(&f.insecure, "insecure", false, "QUIC 拨号跳过证书校验")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Prometheus 指标监听地址，例如 127.0.0.1:9090")
	fs.SetOutput(out)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return errUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(out, "用法: httpcore get [选项] URL")
		fs.PrintDefaults()
		return errUsage
	}
	if f.count < 1 || f.concurrency < 1 {
		return errors.New("-n and -c must be positive")
	}
	uri := fs.Arg(0)

	// ═══════════════════════════════════════════════════════════════════
	// 配置优先级：命令行参数 > 环境变量 > 配置文件 > 默认值
	// ═══════════════════════════════════════════════════════════════════
	cfg := config.NewConfig()
	if f.configFile != "" {
		loaded, err := config.LoadFile(f.configFile)
		if err != nil {
			return fmt.Errorf("加载配置文件失败: %w", err)
		}
		cfg = loaded
	}
	applyEnvOverrides(cfg, nil)
	if f.protocol != "" {
		cfg.Client.Protocol = config.Protocol(f.protocol)
	}
	if f.network != "" {
		cfg.Transport.Network = config.Network(f.network)
	}
	if isFlagSet(fs, "idle-timeout") {
		cfg.Client.IdleTimeout = config.Duration(f.idleTimeout)
	}
	if isFlagSet(fs, "max-retries") {
		cfg.Client.MaxRetries = f.maxRetries
	}
	if f.insecure {
		cfg.Transport.InsecureSkipVerify = true
	}
	if f.metricsAddr != "" {
		cfg.Metrics.Enabled = true
	}

	c, err := httpcore.New(httpcore.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	if f.metricsAddr != "" {
		stop, err := serveMetrics(f.metricsAddr, c.MetricsHandler())
		if err != nil {
			return err
		}
		defer stop()
	}

	// ═══════════════════════════════════════════════════════════════════
	// 发送请求
	// ═══════════════════════════════════════════════════════════════════
	var (
		succeeded atomic.Int64
		failed    atomic.Int64
		g         errgroup.Group
	)
	g.SetLimit(f.concurrency)
	started := time.Now()
	for i := 0; i < f.count; i++ {
		g.Go(func() error {
			resp, err := doOne(c, f, uri)
			if err != nil {
				failed.Add(1)
				fmt.Fprintf(out, "#%d 失败: %v\n", i+1, err)
				return nil
			}
			succeeded.Add(1)
			if f.count == 1 {
				printResponse(out, resp)
			}
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(started)

	fmt.Fprintf(out, "\n完成 %d 个请求（成功 %d，失败 %d），耗时 %s\n",
		f.count, succeeded.Load(), failed.Load(), elapsed.Round(time.Millisecond))
	printStats(out, c.Stats())

	if failed.Load() > 0 {
		return fmt.Errorf("%d request(s) failed", failed.Load())
	}
	return nil
}

func doOne(c *httpcore.Client, f getFlags, uri string) (*httpcore.Response, error) {
	var body []byte
	if f.data != "" {
		body = []byte(f.data)
	}
	req, err := httpcore.NewRequest(f.method, uri, f.headers.fields(), body)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	return c.Do(ctx, req)
}

func printResponse(out io.Writer, resp *httpcore.Response) {
	fmt.Fprintf(out, "%d %s\n", resp.Status, http.StatusText(resp.Status))
	for _, h := range resp.Headers {
		fmt.Fprintf(out, "%s: %s\n", h.Name, h.Value)
	}
	fmt.Fprintln(out)
	_, _ = out.Write(resp.Body)
	if len(resp.Body) > 0 && resp.Body[len(resp.Body)-1] != '\n' {
		fmt.Fprintln(out)
	}
	if resp.HasTrailers {
		fmt.Fprintf(out, "-- trailers (%d) --\n", resp.Trailers.Len())
		for _, h := range resp.Trailers {
			fmt.Fprintf(out, "%s: %s\n", h.Name, h.Value)
		}
	}
}

func printStats(out io.Writer, stats []httpcore.DestinationStats) {
	for _, st := range stats {
		fmt.Fprintf(out, "%s  连接 %d（空闲 %d）  成功 %d  失败 %d  重试 %d\n",
			st.Origin, len(st.Connections), st.Idle(), st.Succeeded, st.Failed, st.Retried)
		for _, cs := range st.Connections {
			fmt.Fprintf(out, "  %s  %s  %s  交换 %d\n", cs.ID, cs.Protocol, cs.State, cs.Exchanges)
		}
	}
}
