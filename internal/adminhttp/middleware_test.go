package adminhttp

import (
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	dto "github.com/prometheus/client_model/go"
)

func TestRequestMetrics_NilRegisterer_NoOp(t *testing.T) {
	engine := New(Config{})
	rec := doRequest(t, engine, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestMetrics_CountsRequestsByStatusClass(t *testing.T) {
	reg := prometheus.NewRegistry()
	engine := New(Config{Registerer: reg})

	doRequest(t, engine, http.MethodGet, "/health", nil, nil)
	doRequest(t, engine, http.MethodGet, "/api/workers", nil, nil)

	families, err := reg.Gather()
	require.NoError(t, err)

	var found *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "dispatchbox_admin_http_requests_total" {
			found = f
		}
	}
	require.NotNil(t, found, "expected dispatchbox_admin_http_requests_total to be registered")
	require.Len(t, found.Metric, 2)
}
