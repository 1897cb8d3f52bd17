package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameMetricsRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newFrameMetrics(reg)
	m.observeTick(3 * time.Millisecond)
	m.observeTick(5 * time.Millisecond)
	m.quads.Set(42)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ticks))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.quads))
	assert.Equal(t, 1, testutil.CollectAndCount(m.tickDuration))

	n, err := testutil.GatherAndCount(reg, "shipwake_ticks_total", "shipwake_grid_quads")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFrameMetricsUnregistered(t *testing.T) {
	m := newFrameMetrics(nil)
	m.dispatchFailures.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatchFailures))
}

func TestMetricsServerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newFrameMetrics(reg)
	m.tableBuilds.Inc()

	srv := newMetricsServer(":0", reg)
	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "shipwake_phase_table_builds_total 1")
}
