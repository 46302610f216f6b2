package prometrics

import (
	"testing"

	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CounterIsRegisteredOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg, "", "")

	first := r.Counter("cart_notices_total", "notices", "level")
	second := r.Counter("cart_notices_total", "notices", "level")

	first.Add(1, observability.L("level", "error"))
	second.Add(2, observability.L("level", "error"))

	count, err := testutil.GatherAndCount(reg, "cart_notices_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	cv := first.(*counter).v
	require.InDelta(t, 3, testutil.ToFloat64(cv.WithLabelValues("error")), 0.001)
}

func TestInstruments_RegistersAllMetricKeys(t *testing.T) {
	reg := prometheus.NewRegistry()
	counters, histograms := Instruments(New(reg, "", ""))

	require.Contains(t, counters, observability.MUsecaseRequests)
	require.Contains(t, counters, observability.MCartNotices)
	require.Contains(t, histograms, observability.MExternalRequestDuration)

	histograms[observability.MHTTPRequestDuration].Observe(0.2,
		observability.L("method", "GET"),
		observability.L("route", "GET /cart"),
		observability.L("status", "200"),
	)
	count, err := testutil.GatherAndCount(reg, "http_request_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
