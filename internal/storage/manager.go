// Package storage orchestrates the ingestion and retrieval pipeline. A
// Manager sequences uploads through chunking, embedding, and upsert, and
// answers similarity queries by embedding the query text and searching
// the vector store. It holds no state of its own: every call is one
// sequential pass over its collaborators, and concurrent calls are
// independent.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/document"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/processor"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

var tracer = otel.Tracer("ragd.storage")

// DefaultTopK is the result count used when a retrieve request leaves
// topK unset.
const DefaultTopK = 5

// DocumentProcessor validates and chunks uploaded files.
type DocumentProcessor interface {
	Process(ctx context.Context, fileBytes []byte, filename string) ([]document.Document, error)
}

// Manager is the orchestration boundary the API layer calls into.
//
// Store and Delete return errors for the caller to classify (validation
// versus upstream). Retrieve never returns an error: failures come back
// as an envelope with Success=false and the detail logged, so the
// transport layer only decides the status code.
type Manager interface {
	// Store validates, chunks, embeds, and upserts one uploaded file.
	// The whole upload fails if any step fails; nothing is retried and
	// nothing is rolled back (re-uploading overwrites by chunk ID).
	Store(ctx context.Context, fileBytes []byte, filename string) (*document.UploadResponse, error)

	// Retrieve embeds the query text and returns the topK most similar
	// chunks, most similar first. A topK of zero or less returns an
	// empty successful response without touching the providers.
	Retrieve(ctx context.Context, query string, topK int, filter map[string]any) *document.RetrieveResponse

	// Delete removes one stored chunk by ID. Deleting an absent ID is
	// not an error.
	Delete(ctx context.Context, id string) error

	// Stats reports collection name, document count, and dimension.
	Stats(ctx context.Context) (*document.StatsResponse, error)

	// HealthCheck reports daemon health; degraded when the vector store
	// is unreachable. It never fails.
	HealthCheck(ctx context.Context) *document.HealthResponse
}

type manager struct {
	processor DocumentProcessor
	provider  embeddings.Provider
	store     vectorstore.Store
	logger    *logging.Logger
	metrics   *Metrics
}

var _ Manager = (*manager)(nil)

// New creates a Manager wired to the given collaborators.
func New(proc DocumentProcessor, provider embeddings.Provider, store vectorstore.Store, logger *logging.Logger) (Manager, error) {
	if proc == nil {
		return nil, errors.New("document processor required")
	}
	if provider == nil {
		return nil, errors.New("embedding provider required")
	}
	if store == nil {
		return nil, errors.New("vector store required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &manager{
		processor: proc,
		provider:  provider,
		store:     store,
		logger:    logger,
		metrics:   NewMetrics(logger),
	}, nil
}

func (m *manager) Store(ctx context.Context, fileBytes []byte, filename string) (*document.UploadResponse, error) {
	ctx, span := tracer.Start(ctx, "Manager.Store")
	defer span.End()

	span.SetAttributes(
		attribute.String("filename", filename),
		attribute.Int("file_size_bytes", len(fileBytes)),
	)

	start := time.Now()

	docs, err := m.processor.Process(ctx, fileBytes, filename)
	if err != nil {
		status := statusUpstreamFailed
		if errors.Is(err, processor.ErrValidation) {
			status = statusValidationFailed
		}
		m.metrics.RecordUpload(ctx, status, time.Since(start), 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("processing %s: %w", filename, err)
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}

	vectors, err := m.provider.EmbedDocuments(ctx, texts)
	if err != nil {
		m.metrics.RecordUpload(ctx, statusUpstreamFailed, time.Since(start), 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("embedding %d chunks from %s: %w", len(texts), filename, err)
	}
	// Order correspondence is the contract that makes attachment by index
	// valid; a count mismatch means it is already broken.
	if len(vectors) != len(docs) {
		err := fmt.Errorf("embedding provider returned %d vectors for %d chunks from %s", len(vectors), len(docs), filename)
		m.metrics.RecordUpload(ctx, statusUpstreamFailed, time.Since(start), 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	for i := range docs {
		docs[i].Embedding = vectors[i]
	}

	count, err := m.store.Upsert(ctx, docs)
	if err != nil {
		m.metrics.RecordUpload(ctx, statusUpstreamFailed, time.Since(start), 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("storing %s: %w", filename, err)
	}

	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}

	m.metrics.RecordUpload(ctx, statusSuccess, time.Since(start), count)
	m.logger.Info(ctx, "document stored",
		zap.String("filename", filename),
		zap.Int("chunks", count),
	)
	span.SetAttributes(attribute.Int("chunks_stored", count))
	span.SetStatus(codes.Ok, "success")

	return &document.UploadResponse{
		Success:      true,
		ChunksStored: count,
		DocumentIDs:  ids,
	}, nil
}

func (m *manager) Retrieve(ctx context.Context, query string, topK int, filter map[string]any) *document.RetrieveResponse {
	ctx, span := tracer.Start(ctx, "Manager.Retrieve")
	defer span.End()

	span.SetAttributes(
		attribute.Int("top_k", topK),
		attribute.Int("query_length", len(query)),
	)

	if topK <= 0 {
		span.SetStatus(codes.Ok, "zero results requested")
		return &document.RetrieveResponse{
			Success: true,
			Query:   query,
			Results: []document.QueryResult{},
		}
	}

	start := time.Now()

	vector, err := m.provider.EmbedQuery(ctx, query)
	if err != nil {
		return m.retrieveFailed(ctx, span, query, start, fmt.Errorf("embedding query: %w", err))
	}

	scored, err := m.store.Query(ctx, vector, topK, filter)
	if err != nil {
		return m.retrieveFailed(ctx, span, query, start, fmt.Errorf("querying vector store: %w", err))
	}

	results := make([]document.QueryResult, len(scored))
	for i, hit := range scored {
		results[i] = document.QueryResult{
			Document: hit.Document,
			Score:    hit.Score,
			Rank:     i + 1,
		}
	}

	m.metrics.RecordRetrieval(ctx, statusSuccess, time.Since(start), len(results))
	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")

	return &document.RetrieveResponse{
		Success: true,
		Query:   query,
		Results: results,
	}
}

// retrieveFailed logs the failure detail and builds the generic envelope.
// Clients get nothing about which dependency failed.
func (m *manager) retrieveFailed(ctx context.Context, span trace.Span, query string, start time.Time, err error) *document.RetrieveResponse {
	m.metrics.RecordRetrieval(ctx, statusUpstreamFailed, time.Since(start), 0)
	m.logger.Error(ctx, "retrieval failed",
		zap.String("query", query),
		zap.Error(err),
	)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return &document.RetrieveResponse{
		Success: false,
		Query:   query,
		Results: []document.QueryResult{},
		Error:   "retrieval failed",
	}
}

func (m *manager) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Manager.Delete")
	defer span.End()

	span.SetAttributes(attribute.String("document_id", id))

	if err := m.store.Delete(ctx, []string{id}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting document %s: %w", id, err)
	}

	m.logger.Info(ctx, "document deleted", zap.String("document_id", id))
	span.SetStatus(codes.Ok, "success")
	return nil
}

func (m *manager) Stats(ctx context.Context) (*document.StatsResponse, error) {
	ctx, span := tracer.Start(ctx, "Manager.Stats")
	defer span.End()

	info, err := m.store.CollectionInfo(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("reading collection info: %w", err)
	}

	span.SetStatus(codes.Ok, "success")
	return &document.StatsResponse{
		Success:       true,
		Collection:    info.Name,
		DocumentCount: info.DocumentCount,
		Dimension:     info.Dimension,
	}, nil
}

func (m *manager) HealthCheck(ctx context.Context) *document.HealthResponse {
	ctx, span := tracer.Start(ctx, "Manager.HealthCheck")
	defer span.End()

	reachable := m.store.HealthCheck(ctx)
	status := document.StatusOK
	if !reachable {
		status = document.StatusDegraded
	}

	span.SetAttributes(attribute.Bool("vector_store_reachable", reachable))
	span.SetStatus(codes.Ok, status)
	return &document.HealthResponse{
		Status:               status,
		VectorStoreReachable: reachable,
	}
}
