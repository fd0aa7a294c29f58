package observe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

func TestInitProvider_ExportsToPrometheus(t *testing.T) {
	// The exporter registers with the default registry; isolate this test from it.
	reg := prometheus.NewRegistry()
	prevReg, prevGatherer := prometheus.DefaultRegisterer, prometheus.DefaultGatherer
	prometheus.DefaultRegisterer, prometheus.DefaultGatherer = reg, reg
	t.Cleanup(func() {
		prometheus.DefaultRegisterer, prometheus.DefaultGatherer = prevReg, prevGatherer
	})

	ctx := context.Background()
	shutdown, err := InitProvider(ctx, ProviderConfig{ServiceName: "stylematch-test", ServiceVersion: "test"})
	require.NoError(t, err)
	defer shutdown(ctx)

	counter, err := otel.Meter("observe-test").Int64Counter("stylematch.test.events_total", metric.WithUnit("{event}"))
	require.NoError(t, err)
	counter.Add(ctx, 3)

	server := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "stylematch_test_events")
}
