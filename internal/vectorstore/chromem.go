package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fyrsmithlabs/ragd/internal/document"
)

var chromemTracer = otel.Tracer("ragd.vectorstore.chromem")

// ChromemConfig holds configuration for the embedded chromem-go store.
type ChromemConfig struct {
	// Path is the persistence directory. Empty means in-memory only.
	Path string

	// Compress gzips persisted documents.
	Compress bool

	// Collection is the collection this store reads and writes.
	Collection string

	// Dimension is the embedding dimensionality. Must match the embedding
	// model's output.
	Dimension int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "documents"
	}
}

// Validate validates the configuration.
func (c ChromemConfig) Validate() error {
	if err := ValidateCollectionName(c.Collection); err != nil {
		return err
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, c.Dimension)
	}
	return nil
}

// ChromemStore is a Store implementation backed by embedded chromem-go.
// It needs no external server, which makes it the zero-setup choice for
// local development and tests. With a path configured it persists to disk;
// otherwise everything lives in memory.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig

	mu  sync.Mutex
	col *chromem.Collection
}

var _ Store = (*ChromemStore)(nil)

// rejectEmbedding stands in for chromem's default embedding func, which
// would otherwise read OpenAI credentials from the environment. Documents
// always arrive here with embeddings attached, so a call means an upstream
// bug.
func rejectEmbedding(_ context.Context, _ string) ([]float32, error) {
	return nil, fmt.Errorf("document reached the store without an embedding")
}

// NewChromemStore creates a ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig) (*ChromemStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	var db *chromem.DB
	var err error
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(config.Path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening chromem database at %s: %w", config.Path, err)
		}
	}

	return &ChromemStore{
		db:     db,
		config: config,
	}, nil
}

// Close releases the store. chromem persists on every write, so there is
// nothing to flush.
func (s *ChromemStore) Close() error {
	return nil
}

// collection returns the configured collection, opening it on first use.
func (s *ChromemStore) collection() (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.col != nil {
		return s.col, nil
	}
	col, err := s.db.GetOrCreateCollection(s.config.Collection, nil, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("opening collection %s: %w", s.config.Collection, err)
	}
	s.col = col
	return col, nil
}

// Upsert writes documents to the collection. chromem overwrites documents
// that share an ID, so retried batches do not duplicate.
func (s *ChromemStore) Upsert(ctx context.Context, docs []document.Document) (int, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()

	span.SetAttributes(
		attribute.Int("document_count", len(docs)),
		attribute.String("collection", s.config.Collection),
	)

	start := time.Now()
	var opErr error
	defer func() {
		RecordOperation(backendChromem, "upsert", time.Since(start), opErr)
	}()

	if opErr = validateDocuments(docs, s.config.Dimension); opErr != nil {
		span.RecordError(opErr)
		span.SetStatus(codes.Error, opErr.Error())
		return 0, opErr
	}

	col, err := s.collection()
	if err != nil {
		opErr = err
		span.RecordError(opErr)
		span.SetStatus(codes.Error, opErr.Error())
		return 0, opErr
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		chromemDocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  stringifyMetadata(doc),
			Embedding: doc.Embedding,
		}
	}

	if err := col.AddDocuments(ctx, chromemDocs, 1); err != nil {
		opErr = fmt.Errorf("adding %d documents to collection %s: %w", len(docs), s.config.Collection, err)
		span.RecordError(opErr)
		span.SetStatus(codes.Error, opErr.Error())
		return 0, opErr
	}

	DocumentsUpserted.WithLabelValues(backendChromem).Add(float64(len(docs)))
	span.SetStatus(codes.Ok, "success")
	return len(docs), nil
}

// Query returns up to topK documents most similar to the vector, ordered
// by descending score. chromem rejects result counts above the collection
// size, so topK is clamped before the call.
func (s *ChromemStore) Query(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]ScoredDocument, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Query")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("top_k", topK),
	)

	if topK <= 0 {
		return []ScoredDocument{}, nil
	}

	start := time.Now()
	var opErr error
	defer func() {
		RecordOperation(backendChromem, "query", time.Since(start), opErr)
	}()

	if len(vector) != s.config.Dimension {
		opErr = fmt.Errorf("query vector has dimension %d, collection expects %d", len(vector), s.config.Dimension)
		span.RecordError(opErr)
		span.SetStatus(codes.Error, opErr.Error())
		return nil, opErr
	}

	where, err := chromemFilter(filter)
	if err != nil {
		opErr = err
		span.RecordError(opErr)
		span.SetStatus(codes.Error, opErr.Error())
		return nil, opErr
	}

	col, err := s.collection()
	if err != nil {
		opErr = err
		span.RecordError(opErr)
		span.SetStatus(codes.Error, opErr.Error())
		return nil, opErr
	}

	k := topK
	if count := col.Count(); count < k {
		k = count
	}
	if k == 0 {
		span.SetStatus(codes.Ok, "empty collection")
		return []ScoredDocument{}, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, k, where, nil)
	if err != nil {
		opErr = fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
		span.RecordError(opErr)
		span.SetStatus(codes.Error, opErr.Error())
		return nil, opErr
	}

	scored := make([]ScoredDocument, len(results))
	for i, res := range results {
		filename, metadata := parseChromemMetadata(res.Metadata)
		scored[i] = ScoredDocument{
			Document: document.Document{
				ID:       res.ID,
				Filename: filename,
				Content:  res.Content,
				Metadata: metadata,
			},
			Score: res.Similarity,
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(scored)))
	span.SetStatus(codes.Ok, "success")
	return scored, nil
}

// Delete removes documents by ID. chromem ignores IDs that are not
// present.
func (s *ChromemStore) Delete(ctx context.Context, ids []string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Delete")
	defer span.End()

	span.SetAttributes(
		attribute.Int("id_count", len(ids)),
		attribute.String("collection", s.config.Collection),
	)

	if len(ids) == 0 {
		return nil
	}

	start := time.Now()
	var opErr error
	defer func() {
		RecordOperation(backendChromem, "delete", time.Since(start), opErr)
	}()

	col, err := s.collection()
	if err != nil {
		opErr = err
		span.RecordError(opErr)
		span.SetStatus(codes.Error, opErr.Error())
		return opErr
	}

	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		opErr = fmt.Errorf("deleting from collection %s: %w", s.config.Collection, err)
		span.RecordError(opErr)
		span.SetStatus(codes.Error, opErr.Error())
		return opErr
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// EnsureCollection opens or creates the named collection and verifies that
// existing documents match the expected dimension. chromem does not record
// a collection dimension, so a populated collection is probed with a unit
// vector; a rejected probe means the stored vectors were produced by a
// different model.
func (s *ChromemStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.EnsureCollection")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int("dimension", dimension),
	)

	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, dimension)
	}

	col, err := s.db.GetOrCreateCollection(name, nil, rejectEmbedding)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("ensuring collection %s: %w", name, err)
	}

	if col.Count() > 0 {
		probe := make([]float32, dimension)
		probe[0] = 1
		if _, err := col.QueryEmbedding(ctx, probe, 1, nil, nil); err != nil {
			mismatch := fmt.Errorf("%w: collection %q rejects %d-dimensional vectors: %v",
				ErrCollectionMismatch, name, dimension, err)
			span.RecordError(mismatch)
			span.SetStatus(codes.Error, mismatch.Error())
			return mismatch
		}
	}

	if name == s.config.Collection {
		s.mu.Lock()
		s.col = col
		s.mu.Unlock()
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// CollectionInfo returns metadata about the store's collection.
func (s *ChromemStore) CollectionInfo(ctx context.Context) (*CollectionInfo, error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.CollectionInfo")
	defer span.End()

	span.SetAttributes(attribute.String("collection", s.config.Collection))

	col, err := s.collection()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	count := col.Count()
	span.SetAttributes(attribute.Int("document_count", count))
	span.SetStatus(codes.Ok, "success")
	return &CollectionInfo{
		Name:          s.config.Collection,
		DocumentCount: uint64(count),
		Dimension:     s.config.Dimension,
	}, nil
}

// HealthCheck reports whether the store is usable. The database is
// embedded, so this only fails on a zero-value store.
func (s *ChromemStore) HealthCheck(ctx context.Context) bool {
	_, span := chromemTracer.Start(ctx, "ChromemStore.HealthCheck")
	defer span.End()

	start := time.Now()
	healthy := s.db != nil
	RecordHealthCheck(backendChromem, time.Since(start), healthy)

	if !healthy {
		span.SetStatus(codes.Error, "database not initialized")
		return false
	}
	span.SetStatus(codes.Ok, "healthy")
	return true
}

// stringifyMetadata converts document metadata into chromem's string-only
// metadata. Unsupported value types are dropped. The filename travels as
// ordinary metadata so filters can match on it.
func stringifyMetadata(doc document.Document) map[string]string {
	metadata := make(map[string]string, len(doc.Metadata)+1)
	for k, v := range doc.Metadata {
		switch val := v.(type) {
		case string:
			metadata[k] = val
		case int:
			metadata[k] = strconv.Itoa(val)
		case int64:
			metadata[k] = strconv.FormatInt(val, 10)
		case float64:
			metadata[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			metadata[k] = strconv.FormatBool(val)
		}
	}
	if doc.Filename != "" {
		metadata[document.MetaFilename] = doc.Filename
	}
	return metadata
}

// integerMetaKeys are metadata keys written as integers and parsed back to
// int64 on reads, matching what Qdrant returns for the same documents.
var integerMetaKeys = map[string]struct{}{
	document.MetaChunkIndex: {},
	document.MetaPage:       {},
	document.MetaTotalPages: {},
}

// parseChromemMetadata rebuilds document metadata from chromem's
// string-only storage.
func parseChromemMetadata(md map[string]string) (string, map[string]any) {
	if len(md) == 0 {
		return "", nil
	}
	var filename string
	metadata := make(map[string]any, len(md))
	for k, v := range md {
		if k == document.MetaFilename {
			filename = v
		}
		if _, ok := integerMetaKeys[k]; ok {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				metadata[k] = n
				continue
			}
		}
		metadata[k] = v
	}
	return filename, metadata
}

// chromemFilter converts an exact-match filter into chromem's string-only
// where clause. Values are stringified exactly the way stringifyMetadata
// writes them so matches line up.
func chromemFilter(filter map[string]any) (map[string]string, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	where := make(map[string]string, len(filter))
	for key, value := range filter {
		switch v := value.(type) {
		case string:
			where[key] = v
		case int:
			where[key] = strconv.Itoa(v)
		case int64:
			where[key] = strconv.FormatInt(v, 10)
		case float64:
			if v != float64(int64(v)) {
				return nil, fmt.Errorf("filter key %q: fractional numbers cannot be matched exactly", key)
			}
			where[key] = strconv.FormatInt(int64(v), 10)
		case bool:
			where[key] = strconv.FormatBool(v)
		default:
			return nil, fmt.Errorf("filter key %q: unsupported value type %T", key, value)
		}
	}
	return where, nil
}
