package metrics

import (
	"net/http"

	"github.com/dep2p/go-httpcore/config"
	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
	"github.com/dep2p/go-httpcore/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector 基于 Prometheus 的指标实现
//
// 每个 Collector 持有自己的 Registry，同一进程内可创建多个实例。
type Collector struct {
	registry *prometheus.Registry

	connectionsOpen  *prometheus.GaugeVec
	connectionsTotal *prometheus.CounterVec
	idleTimeouts     *prometheus.CounterVec
	exchangeRetries  *prometheus.CounterVec
	exchangesTotal   *prometheus.CounterVec
	streamsActive    prometheus.Gauge
}

var _ pkgif.Metrics = (*Collector)(nil)

// NewCollector 创建并注册所有指标
func NewCollector(cfg config.MetricsConfig) (*Collector, error) {
	ns := cfg.Namespace
	c := &Collector{
		registry: prometheus.NewRegistry(),
		connectionsOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "connection",
			Name:      "open",
			Help:      "Number of open connections per origin.",
		}, []string{"origin", "protocol"}),
		connectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "connection",
			Name:      "opened_total",
			Help:      "Total number of connections opened per origin.",
		}, []string{"origin", "protocol"}),
		idleTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "connection",
			Name:      "idle_timeouts_total",
			Help:      "Idle timer expirations; claimed=false means the timer was re-armed.",
		}, []string{"origin", "claimed"}),
		exchangeRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "exchange",
			Name:      "retries_total",
			Help:      "Exchanges resubmitted after a retryable send failure.",
		}, []string{"origin"}),
		exchangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "exchange",
			Name:      "completed_total",
			Help:      "Terminated exchanges by result.",
		}, []string{"origin", "result"}),
		streamsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "session",
			Name:      "streams_active",
			Help:      "Streams currently open across all sessions.",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.connectionsOpen,
		c.connectionsTotal,
		c.idleTimeouts,
		c.exchangeRetries,
		c.exchangesTotal,
		c.streamsActive,
	} {
		if err := c.registry.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Registry 返回底层 Registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler 返回 /metrics 的 HTTP 处理器
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ConnectionOpened 实现 Metrics
func (c *Collector) ConnectionOpened(origin types.Origin, protocol string) {
	c.connectionsOpen.WithLabelValues(origin.String(), protocol).Inc()
	c.connectionsTotal.WithLabelValues(origin.String(), protocol).Inc()
}

// ConnectionClosed 实现 Metrics
func (c *Collector) ConnectionClosed(origin types.Origin, protocol string) {
	c.connectionsOpen.WithLabelValues(origin.String(), protocol).Dec()
}

// IdleTimeout 实现 Metrics
func (c *Collector) IdleTimeout(origin types.Origin, claimed bool) {
	label := "false"
	if claimed {
		label = "true"
	}
	c.idleTimeouts.WithLabelValues(origin.String(), label).Inc()
}

// ExchangeRetried 实现 Metrics
func (c *Collector) ExchangeRetried(origin types.Origin) {
	c.exchangeRetries.WithLabelValues(origin.String()).Inc()
}

// ExchangeCompleted 实现 Metrics
func (c *Collector) ExchangeCompleted(origin types.Origin, result string) {
	c.exchangesTotal.WithLabelValues(origin.String(), result).Inc()
}

// StreamsActive 实现 Metrics
func (c *Collector) StreamsActive(delta int) {
	c.streamsActive.Add(float64(delta))
}

// ============================================================================
//                              Nop
// ============================================================================

// Nop 空实现，指标未启用时使用
type Nop struct{}

var _ pkgif.Metrics = Nop{}

func (Nop) ConnectionOpened(types.Origin, string)  {}
func (Nop) ConnectionClosed(types.Origin, string)  {}
func (Nop) IdleTimeout(types.Origin, bool)         {}
func (Nop) ExchangeRetried(types.Origin)           {}
func (Nop) ExchangeCompleted(types.Origin, string) {}
func (Nop) StreamsActive(int)                      {}

// 交换结果标签
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)
