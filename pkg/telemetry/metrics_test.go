package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/astralux/licensing/pkg/license"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsObserve(t *testing.T) {
	m := NewMetrics()
	m.Observe(license.OpValidate, "", 3*time.Millisecond)
	m.Observe(license.OpValidate, "", time.Millisecond)
	m.Observe(license.OpValidate, license.KindHwidMismatch, time.Millisecond)
	m.Observe(license.OpClaim, license.KindAlreadyClaimed, time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues(license.OpValidate, "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues(license.OpValidate, "HWID_MISMATCH")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues(license.OpClaim, "ALREADY_CLAIMED")))
	require.Equal(t, 2, testutil.CollectAndCount(m.latency))
}

func TestMetricsHandlerServesRegistry(t *testing.T) {
	m := NewMetrics()
	m.ObserveHTTP("/api/validate", http.StatusOK)
	m.ObserveHTTP("", http.StatusNotFound)

	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("unmatched", "404")))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `license_http_requests_total{code="200",route="/api/validate"} 1`)
	require.Contains(t, string(body), "go_goroutines")
}
