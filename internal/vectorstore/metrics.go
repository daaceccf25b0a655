package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Backend label values.
const (
	backendQdrant  = "qdrant"
	backendChromem = "chromem"
)

// Prometheus metrics for vector store operations.
var (
	// OperationsTotal counts store operations by backend, operation, and outcome.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vector store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	// OperationDuration tracks operation latency by backend and operation.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	// DocumentsUpserted counts documents written to the store.
	DocumentsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "documents_upserted_total",
			Help:      "Total number of documents written to the vector store",
		},
		[]string{"backend"},
	)

	// HealthStatus reports the last observed health state (1 healthy, 0 not).
	HealthStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "health_status",
			Help:      "Vector store health status (1 = healthy, 0 = unhealthy)",
		},
		[]string{"backend"},
	)

	// HealthChecksTotal counts health check probes by outcome.
	HealthChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "health_checks_total",
			Help:      "Total number of vector store health checks",
		},
		[]string{"backend", "result"},
	)
)

// RecordOperation records the outcome and duration of a store operation.
func RecordOperation(backend, operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	OperationsTotal.WithLabelValues(backend, operation, status).Inc()
	OperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordHealthCheck records a health check outcome and updates the gauge.
func RecordHealthCheck(backend string, duration time.Duration, healthy bool) {
	result := "success"
	value := 1.0
	if !healthy {
		result = "error"
		value = 0
	}
	HealthChecksTotal.WithLabelValues(backend, result).Inc()
	HealthStatus.WithLabelValues(backend).Set(value)
	OperationDuration.WithLabelValues(backend, "health_check").Observe(duration.Seconds())
}
