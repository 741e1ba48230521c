package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dep2p/go-httpcore/config"
	"github.com/dep2p/go-httpcore/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	pkgif "github.com/dep2p/go-httpcore/pkg/interfaces"
)

var testOrigin = types.NewOrigin("http", "localhost", 8080)

func TestCollector_Counters(t *testing.T) {
	c, err := NewCollector(config.DefaultMetricsConfig())
	require.NoError(t, err)

	c.ConnectionOpened(testOrigin, "http/1.1")
	c.ConnectionOpened(testOrigin, "http/1.1")
	c.ConnectionClosed(testOrigin, "http/1.1")
	c.IdleTimeout(testOrigin, true)
	c.IdleTimeout(testOrigin, false)
	c.IdleTimeout(testOrigin, false)
	c.ExchangeRetried(testOrigin)
	c.ExchangeCompleted(testOrigin, ResultSuccess)
	c.StreamsActive(3)
	c.StreamsActive(-1)

	o := testOrigin.String()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.connectionsOpen.WithLabelValues(o, "http/1.1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.connectionsTotal.WithLabelValues(o, "http/1.1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.idleTimeouts.WithLabelValues(o, "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.idleTimeouts.WithLabelValues(o, "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.exchangeRetries.WithLabelValues(o)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.exchangesTotal.WithLabelValues(o, ResultSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.streamsActive))
}

func TestCollector_IndependentRegistries(t *testing.T) {
	_, err := NewCollector(config.DefaultMetricsConfig())
	require.NoError(t, err)
	_, err = NewCollector(config.DefaultMetricsConfig())
	require.NoError(t, err)
}

func TestCollector_Handler(t *testing.T) {
	c, err := NewCollector(config.MetricsConfig{Enabled: true, Namespace: "test"})
	require.NoError(t, err)
	c.ExchangeRetried(testOrigin)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "test_exchange_retries_total"))
}

func TestModule_Disabled(t *testing.T) {
	var m pkgif.Metrics
	app := fxtest.New(t, Module, fx.Populate(&m))
	app.RequireStart()
	defer app.RequireStop()

	assert.IsType(t, Nop{}, m)
}

func TestModule_Enabled(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Metrics.Enabled = true

	var m pkgif.Metrics
	app := fxtest.New(t,
		fx.Supply(cfg),
		Module,
		fx.Populate(&m),
	)
	app.RequireStart()
	defer app.RequireStop()

	_, ok := m.(*Collector)
	assert.True(t, ok)
}
