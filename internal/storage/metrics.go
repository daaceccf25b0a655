package storage

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/ragd/internal/storage"

// Outcome label values for pipeline metrics.
const (
	statusSuccess          = "success"
	statusValidationFailed = "validation_failed"
	statusUpstreamFailed   = "upstream_failed"
)

// Metrics holds pipeline-level metrics. Per-dependency latency lives with
// the embeddings and vectorstore packages; these cover whole operations.
type Metrics struct {
	meter            metric.Meter
	logger           *logging.Logger
	uploads          metric.Int64Counter
	uploadDuration   metric.Float64Histogram
	chunksPerUpload  metric.Int64Histogram
	retrievals       metric.Int64Counter
	retrieveDuration metric.Float64Histogram
	retrieveResults  metric.Int64Histogram
}

// NewMetrics creates a new Metrics instance for the storage manager.
func NewMetrics(logger *logging.Logger) *Metrics {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.uploads, err = m.meter.Int64Counter(
		"ragd.storage.uploads_total",
		metric.WithDescription("Total upload operations by outcome (success, validation_failed, upstream_failed)"),
		metric.WithUnit("{upload}"),
	)
	if err != nil {
		m.logger.Warn(context.Background(), "failed to create uploads counter", zap.Error(err))
	}

	m.uploadDuration, err = m.meter.Float64Histogram(
		"ragd.storage.upload_duration_seconds",
		metric.WithDescription("End-to-end upload duration including chunking, embedding, and upsert"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		m.logger.Warn(context.Background(), "failed to create upload duration histogram", zap.Error(err))
	}

	m.chunksPerUpload, err = m.meter.Int64Histogram(
		"ragd.storage.chunks_per_upload",
		metric.WithDescription("Chunks produced per successful upload"),
		metric.WithUnit("{chunk}"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 25, 50, 100, 250, 500),
	)
	if err != nil {
		m.logger.Warn(context.Background(), "failed to create chunks histogram", zap.Error(err))
	}

	m.retrievals, err = m.meter.Int64Counter(
		"ragd.storage.retrievals_total",
		metric.WithDescription("Total retrieve operations by outcome"),
		metric.WithUnit("{retrieval}"),
	)
	if err != nil {
		m.logger.Warn(context.Background(), "failed to create retrievals counter", zap.Error(err))
	}

	m.retrieveDuration, err = m.meter.Float64Histogram(
		"ragd.storage.retrieve_duration_seconds",
		metric.WithDescription("End-to-end retrieve duration including query embedding and vector search"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	if err != nil {
		m.logger.Warn(context.Background(), "failed to create retrieve duration histogram", zap.Error(err))
	}

	m.retrieveResults, err = m.meter.Int64Histogram(
		"ragd.storage.retrieve_results",
		metric.WithDescription("Results returned per successful retrieve"),
		metric.WithUnit("{result}"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 25, 50, 100),
	)
	if err != nil {
		m.logger.Warn(context.Background(), "failed to create retrieve results histogram", zap.Error(err))
	}
}

// RecordUpload records one upload operation.
func (m *Metrics) RecordUpload(ctx context.Context, status string, duration time.Duration, chunks int) {
	attrs := metric.WithAttributes(attribute.String("status", status))

	if m.uploads != nil {
		m.uploads.Add(ctx, 1, attrs)
	}
	if m.uploadDuration != nil {
		m.uploadDuration.Record(ctx, duration.Seconds(), attrs)
	}
	if chunks > 0 && m.chunksPerUpload != nil {
		m.chunksPerUpload.Record(ctx, int64(chunks))
	}
}

// RecordRetrieval records one retrieve operation.
func (m *Metrics) RecordRetrieval(ctx context.Context, status string, duration time.Duration, results int) {
	attrs := metric.WithAttributes(attribute.String("status", status))

	if m.retrievals != nil {
		m.retrievals.Add(ctx, 1, attrs)
	}
	if m.retrieveDuration != nil {
		m.retrieveDuration.Record(ctx, duration.Seconds(), attrs)
	}
	if status == statusSuccess && m.retrieveResults != nil {
		m.retrieveResults.Record(ctx, int64(results))
	}
}
