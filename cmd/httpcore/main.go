// Package main 提供 httpcore 命令行入口
//
// 子命令：
//
//	httpcore get   [选项] URL   发送请求并打印响应与连接池统计
//	httpcore serve [选项]       启动回显对端（http/1.1 或 h2c，tcp 或 quic）
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dep2p/go-httpcore"
	"github.com/dep2p/go-httpcore/internal/util/logger"
)

var log = logger.Logger("cmd/httpcore")

// errUsage 参数错误，已打印用法
var errUsage = errors.New("invalid usage")

func main() {
	if err := run(os.Args[1:]); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printHelp()
		return errUsage
	}

	switch args[0] {
	case "get":
		return runGet(args[1:])
	case "serve":
		return runServe(args[1:])
	case "version", "-version", "--version":
		printVersion()
		return nil
	case "help", "-h", "-help", "--help":
		printHelp()
		return nil
	default:
		fmt.Fprintf(os.Stderr, "未知子命令: %s\n\n", args[0])
		printHelp()
		return errUsage
	}
}

// waitForSignal 等待退出信号
func waitForSignal() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("httpcore %s\n", httpcore.Version)
	if httpcore.GitCommit != "" {
		fmt.Printf("  commit: %s\n", httpcore.GitCommit)
	}
	if httpcore.BuildDate != "" {
		fmt.Printf("  built:  %s\n", httpcore.BuildDate)
	}
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("httpcore - HTTP 传输核心")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  httpcore get   [选项] URL")
	fmt.Println("  httpcore serve [选项]")
	fmt.Println("  httpcore version")
	fmt.Println()
	fmt.Println("使用 httpcore <子命令> -h 查看子命令选项")
	fmt.Println()
	fmt.Println("环境变量（低于命令行参数，高于配置文件）：")
	fmt.Println("  " + strings.Join(envNames(), "\n  "))
	fmt.Println("  HTTPCORE_LOG_LEVEL / HTTPCORE_LOG_FORMAT   # 日志级别与格式")
}

// headerFlags 可重复的 -H 参数
type headerFlags []string

func (h *headerFlags) String() string {
	return strings.Join(*h, ", ")
}

func (h *headerFlags) Set(v string) error {
	name, value, ok := strings.Cut(v, ":")
	if !ok || strings.TrimSpace(name) == "" {
		return fmt.Errorf("header must be \"Name: value\", got %q", v)
	}
	*h = append(*h, strings.TrimSpace(name), strings.TrimSpace(value))
	return nil
}

// fields 转换为有序头部字段
func (h headerFlags) fields() httpcore.Fields {
	return httpcore.FieldsOf(h...)
}

// isFlagSet 检查参数是否显式设置
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
