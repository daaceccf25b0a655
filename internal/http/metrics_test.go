package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/fyrsmithlabs/ragd/internal/logging"
)

func TestHTTPMetricsMiddleware(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))

	m := &HTTPMetrics{
		meter:  mp.Meter(instrumentationName),
		logger: logging.NewNop(),
	}
	m.init()

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.DELETE("/documents/:id", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]bool{"success": true})
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	req = httptest.NewRequest(http.MethodDelete, "/documents/chunk-42", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	foundRequests := false
	foundDuration := false
	foundResponseSize := false

	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			switch md.Name {
			case "ragd.http.requests_total":
				foundRequests = true
				sum, ok := md.Data.(metricdata.Sum[int64])
				require.True(t, ok)

				total := int64(0)
				endpoints := make(map[string]bool)
				for _, dp := range sum.DataPoints {
					total += dp.Value
					if v, ok := dp.Attributes.Value(attribute.Key("endpoint")); ok {
						endpoints[v.AsString()] = true
					}
				}
				assert.Equal(t, int64(2), total)
				// The endpoint label carries the route template, not the
				// concrete path with its parameter values.
				assert.True(t, endpoints["/documents/:id"])
				assert.False(t, endpoints["/documents/chunk-42"])
			case "ragd.http.request_duration_seconds":
				foundDuration = true
				hist, ok := md.Data.(metricdata.Histogram[float64])
				require.True(t, ok)

				count := uint64(0)
				for _, dp := range hist.DataPoints {
					count += dp.Count
				}
				assert.Equal(t, uint64(2), count)
			case "ragd.http.response_size_bytes":
				foundResponseSize = true
			}
		}
	}

	assert.True(t, foundRequests, "requests counter not found")
	assert.True(t, foundDuration, "duration histogram not found")
	assert.True(t, foundResponseSize, "response size histogram not found")
}

func TestNewHTTPMetricsNilLogger(t *testing.T) {
	m := NewHTTPMetrics(nil)
	require.NotNil(t, m)
	assert.NotNil(t, m.logger)
}
