package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// serveMetrics 在 addr 上暴露 /metrics，返回停止函数
func serveMetrics(addr string, h http.Handler) (func(), error) {
	if h == nil {
		return nil, errors.New("metrics not enabled")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("指标服务退出", "error", err)
		}
	}()
	log.Info("指标服务已启动", "addr", ln.Addr().String())
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
