package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestObserveHTTPIncrementsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.ObserveHTTP("POST", "/rides", "201", 120*time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	var found bool
	for _, f := range families {
		if f.GetName() == "ridecore_http_requests_total" {
			found = true
			require.Len(t, f.GetMetric(), 1)
			require.Equal(t, float64(1), f.GetMetric()[0].GetCounter().GetValue())
		}
	}
	require.True(t, found, "expected ridecore_http_requests_total to be registered")
}

func TestLocationAdapterDelegates(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)
	a := NewLocationAdapter(r)

	a.IncDropped(3)
	a.IncFlushed(10)
	a.IncFlushFailure()

	require.Equal(t, float64(3), counterValue(t, r.LocationPingsDropped))
	require.Equal(t, float64(1), counterValue(t, r.LocationFlushTotal))
	require.Equal(t, float64(1), counterValue(t, r.LocationFlushFailure))
}
