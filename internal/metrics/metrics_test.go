package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"wellnest/internal/metrics"
)

func TestCollectorsRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.Retried()
	m.Retried()
	m.SetListeners(3)
	m.HealthChecked(false)

	require.Equal(t, 2.0, testutil.ToFloat64(m.Retries))
	require.Equal(t, 3.0, testutil.ToFloat64(m.ActiveListeners))
	require.Equal(t, 1.0, testutil.ToFloat64(m.HealthChecks.WithLabelValues("fail")))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *metrics.Metrics
	require.NotPanics(t, func() {
		m.Delivered()
		m.Retried()
		m.Failed()
		m.Reconnected()
		m.SetListeners(1)
		m.HealthChecked(true)
		m.Sent()
		m.DecryptFailed()
	})
}
