package metric

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/cqstream/errors"
	"github.com/c360/cqstream/health"
)

func gatheredNames(t *testing.T, registry *MetricsRegistry) map[string]bool {
	t.Helper()

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
	assert.True(t, gatheredNames(t, registry)["go_goroutines"])
}

func TestMetricsRegistry_RegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})

	require.NoError(t, registry.RegisterCounter("listener", "test_counter", counter))
	counter.Inc()

	assert.True(t, gatheredNames(t, registry)["test_counter"])
}

func TestMetricsRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "dup_gauge", Help: "dup"})
	require.NoError(t, registry.RegisterGauge("listener", "dup_gauge", gauge))

	err := registry.RegisterGauge("listener", "dup_gauge", gauge)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	// Same collector under a different key conflicts inside prometheus
	err = registry.RegisterGauge("other", "dup_gauge", gauge)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMetricsRegistry_VecsAndUnregister(t *testing.T) {
	registry := NewMetricsRegistry()

	cv := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_cv_total", Help: "cv"}, []string{"kind"})
	hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "test_hv_seconds", Help: "hv"}, []string{"kind"})

	require.NoError(t, registry.RegisterCounterVec("listener", "cv", cv))
	require.NoError(t, registry.RegisterHistogramVec("listener", "hv", hv))
	cv.WithLabelValues("a").Inc()
	hv.WithLabelValues("a").Observe(0.1)

	names := gatheredNames(t, registry)
	assert.True(t, names["test_cv_total"])
	assert.True(t, names["test_hv_seconds"])

	assert.True(t, registry.Unregister("listener", "cv"))
	assert.False(t, registry.Unregister("listener", "cv"))
	assert.False(t, gatheredNames(t, registry)["test_cv_total"])

	assert.Equal(t, 1, registry.UnregisterService("listener"))
	assert.False(t, gatheredNames(t, registry)["test_hv_seconds"])
}

func TestServer_Handler(t *testing.T) {
	registry := NewMetricsRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "served_total", Help: "x"})
	require.NoError(t, registry.RegisterCounter("listener", "served", counter))
	counter.Add(3)

	var status health.Status
	srv := NewServer(":0", "", registry, func() health.Status { return status })
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "served_total 3")

	status = health.NewHealthy("listener", "ok")
	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	status = health.NewUnhealthy("listener", "down")
	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_StartStop(t *testing.T) {
	srv := NewServer("127.0.0.1:0", "/metrics", NewMetricsRegistry(), nil)
	require.NoError(t, srv.Start())
	assert.Error(t, srv.Start())

	resp, err := http.Get("http://" + srv.Address() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Stop(context.Background()))
	require.NoError(t, srv.Stop(context.Background()))
}

func TestMetricsRegistry_RegisterAllRollsBack(t *testing.T) {
	registry := NewMetricsRegistry()

	taken := prometheus.NewGauge(prometheus.GaugeOpts{Name: "taken_gauge", Help: "taken"})
	require.NoError(t, registry.Register("listener", "b_taken", taken))

	err := registry.RegisterAll("listener", map[string]prometheus.Collector{
		"a_first":  prometheus.NewCounter(prometheus.CounterOpts{Name: "first_total", Help: "first"}),
		"b_taken":  prometheus.NewGauge(prometheus.GaugeOpts{Name: "other_gauge", Help: "other"}),
		"c_unseen": prometheus.NewCounter(prometheus.CounterOpts{Name: "unseen_total", Help: "unseen"}),
	})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	taken.Set(1)
	names := gatheredNames(t, registry)
	assert.False(t, names["first_total"], "collectors registered before the failure are rolled back")
	assert.False(t, names["unseen_total"])
	assert.True(t, names["taken_gauge"], "pre-existing registrations are untouched")
}
