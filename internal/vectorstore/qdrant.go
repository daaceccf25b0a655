package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/ragd/internal/document"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("ragd.vectorstore.qdrant")

// Payload keys reserved for document fields. Everything else in the
// payload is document metadata.
const (
	payloadKeyID      = "id"
	payloadKeyContent = "content"
)

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (6334 by default, not the 6333 REST port).
	Port int

	// APIKey authenticates against Qdrant Cloud; empty for local servers.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// Collection is the collection this store reads and writes.
	Collection string

	// Dimension is the embedding dimensionality. Must match the embedding
	// model's output.
	Dimension int

	// Distance is the similarity metric for vector search.
	Distance qdrant.Distance

	// RequestTimeout bounds each operation when the caller's context
	// carries no deadline.
	RequestTimeout time.Duration

	// DialTimeout bounds a single connection attempt.
	DialTimeout time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes. Large
	// uploads produce batches well past the 4MB gRPC default.
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Distance == 0 {
		c.Distance = qdrant.Distance_Cosine
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if err := ValidateCollectionName(c.Collection); err != nil {
		return err
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, c.Dimension)
	}
	return nil
}

// QdrantStore is a Store implementation using Qdrant's native gRPC client.
//
// gRPC avoids the REST gateway's payload ceiling, which matters for upload
// batches carrying many embedded chunks. The connection dials lazily, so
// construction succeeds even while the server is down; operations fail and
// HealthCheck reports unreachable until it comes back.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
}

var _ Store = (*QdrantStore)(nil)

// NewQdrantStore creates a QdrantStore with the given configuration.
func NewQdrantStore(config QdrantConfig) (*QdrantStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
			grpc.WithConnectParams(grpc.ConnectParams{
				Backoff:           backoff.DefaultConfig,
				MinConnectTimeout: config.DialTimeout,
			}),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return &QdrantStore{
		client: client,
		config: config,
	}, nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// opContext applies the configured request timeout when the caller's
// context has no deadline of its own.
func (s *QdrantStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.RequestTimeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.config.RequestTimeout)
}

// Upsert writes documents to the collection. The batch is validated up
// front and written in a single request, so either all documents land or
// none do. Point IDs derive deterministically from document IDs, making
// repeated upserts overwrite instead of duplicate.
func (s *QdrantStore) Upsert(ctx context.Context, docs []document.Document) (int, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Upsert")
	defer span.End()

	span.SetAttributes(
		attribute.Int("document_count", len(docs)),
		attribute.String("collection", s.config.Collection),
	)

	start := time.Now()
	var opErr error
	defer func() {
		RecordOperation(backendQdrant, "upsert", time.Since(start), opErr)
	}()

	if opErr = validateDocuments(docs, s.config.Dimension); opErr != nil {
		span.RecordError(opErr)
		span.SetStatus(codes.Error, opErr.Error())
		return 0, opErr
	}

	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		points[i] = &qdrant.PointStruct{
			Id:      pointID(doc.ID),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: buildPayload(doc),
		}
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	// Wait for the write to apply so a success response means the
	// documents are actually retrievable.
	_, err := s.client.Upsert(opCtx, &qdrant.UpsertPoints{
		CollectionName: s.config.Collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		opErr = fmt.Errorf("upserting %d points to collection %s: %w", len(points), s.config.Collection, err)
		span.RecordError(opErr)
		span.SetStatus(codes.Error, opErr.Error())
		return 0, opErr
	}

	DocumentsUpserted.WithLabelValues(backendQdrant).Add(float64(len(docs)))
	span.SetAttributes(attribute.Int("points_written", len(points)))
	span.SetStatus(codes.Ok, "success")
	return len(docs), nil
}

// Query returns up to topK documents most similar to the vector, ordered
// by descending score.
func (s *QdrantStore) Query(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]ScoredDocument, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Query")
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
		RecordOperation(backendQdrant, "query", time.Since(start), opErr)
	}()

	if len(vector) != s.config.Dimension {
		opErr = fmt.Errorf("query vector has dimension %d, collection expects %d", len(vector), s.config.Dimension)
		span.RecordError(opErr)
		span.SetStatus(codes.Error, opErr.Error())
		return nil, opErr
	}

	qdrantFilter, err := buildFilter(filter)
	if err != nil {
		opErr = err
		span.RecordError(opErr)
		span.SetStatus(codes.Error, opErr.Error())
		return nil, opErr
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	points, err := s.client.Query(opCtx, &qdrant.QueryPoints{
		CollectionName: s.config.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         qdrantFilter,
	})
	if err != nil {
		opErr = fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
		span.RecordError(opErr)
		span.SetStatus(codes.Error, opErr.Error())
		return nil, opErr
	}

	results := make([]ScoredDocument, len(points))
	for i, point := range points {
		results[i] = ScoredDocument{
			Document: documentFromPayload(point.Payload),
			Score:    point.Score,
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// Delete removes documents by ID. Missing IDs are ignored by Qdrant.
func (s *QdrantStore) Delete(ctx context.Context, ids []string) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.Delete")
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
		RecordOperation(backendQdrant, "delete", time.Since(start), opErr)
	}()

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	// Match on the payload id rather than the point id so callers never
	// need to know how point IDs are derived.
	_, err := s.client.Delete(opCtx, &qdrant.DeletePoints{
		CollectionName: s.config.Collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{
						{
							ConditionOneOf: &qdrant.Condition_Field{
								Field: &qdrant.FieldCondition{
									Key: payloadKeyID,
									Match: &qdrant.Match{
										MatchValue: &qdrant.Match_Keywords{
											Keywords: &qdrant.RepeatedStrings{Strings: ids},
										},
									},
								},
							},
						},
					},
				},
			},
		},
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		opErr = fmt.Errorf("deleting from collection %s: %w", s.config.Collection, err)
		span.RecordError(opErr)
		span.SetStatus(codes.Error, opErr.Error())
		return opErr
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// EnsureCollection creates the collection if missing and verifies the
// dimension when it already exists.
func (s *QdrantStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.EnsureCollection")
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

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	info, err := s.client.GetCollectionInfo(opCtx, name)
	switch {
	case err == nil:
		existing := int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
		if existing != dimension {
			mismatch := fmt.Errorf("%w: collection %q stores %d-dimensional vectors, embedding model produces %d",
				ErrCollectionMismatch, name, existing, dimension)
			span.RecordError(mismatch)
			span.SetStatus(codes.Error, mismatch.Error())
			return mismatch
		}
		span.SetStatus(codes.Ok, "exists")
		return nil
	case isGRPCCode(err, grpccodes.NotFound):
		// create below
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("checking collection %s: %w", name, err)
	}

	err = s.client.CreateCollection(opCtx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: s.config.Distance,
		}),
	})
	// A concurrent instance with the same model may win the race.
	if err != nil && !isGRPCCode(err, grpccodes.AlreadyExists) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", name, err)
	}

	span.SetStatus(codes.Ok, "created")
	return nil
}

// CollectionInfo returns metadata about the store's collection.
func (s *QdrantStore) CollectionInfo(ctx context.Context) (*CollectionInfo, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.CollectionInfo")
	defer span.End()

	span.SetAttributes(attribute.String("collection", s.config.Collection))

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	info, err := s.client.GetCollectionInfo(opCtx, s.config.Collection)
	if err != nil {
		if isGRPCCode(err, grpccodes.NotFound) {
			span.SetStatus(codes.Error, "collection not found")
			return nil, ErrCollectionNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("getting collection info for %s: %w", s.config.Collection, err)
	}

	var count uint64
	if info.PointsCount != nil {
		count = *info.PointsCount
	}
	dimension := int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
	if dimension == 0 {
		dimension = s.config.Dimension
	}

	span.SetAttributes(attribute.Int64("document_count", int64(count)))
	span.SetStatus(codes.Ok, "success")
	return &CollectionInfo{
		Name:          s.config.Collection,
		DocumentCount: count,
		Dimension:     dimension,
	}, nil
}

// HealthCheck reports whether the Qdrant server is reachable.
func (s *QdrantStore) HealthCheck(ctx context.Context) bool {
	ctx, span := tracer.Start(ctx, "QdrantStore.HealthCheck")
	defer span.End()

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	start := time.Now()
	_, err := s.client.HealthCheck(opCtx)
	RecordHealthCheck(backendQdrant, time.Since(start), err == nil)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false
	}
	span.SetStatus(codes.Ok, "healthy")
	return true
}

// isGRPCCode reports whether err carries the given gRPC status code.
func isGRPCCode(err error, code grpccodes.Code) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == code
}

// pointID converts a document ID into a Qdrant point ID. Valid UUIDs pass
// through; anything else maps to a name-based UUID so the same document ID
// always lands on the same point.
func pointID(id string) *qdrant.PointId {
	if _, err := uuid.Parse(id); err == nil {
		return qdrant.NewIDUUID(id)
	}
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

// buildPayload flattens a document into a Qdrant payload. Metadata keys
// sit alongside the reserved id and content keys; unsupported metadata
// value types are dropped.
func buildPayload(doc document.Document) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(doc.Metadata)+3)

	for k, v := range doc.Metadata {
		switch val := v.(type) {
		case string:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
		case int:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
		case int64:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
		case float64:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
		case bool:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
		}
	}

	payload[payloadKeyID] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: doc.ID}}
	payload[payloadKeyContent] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: doc.Content}}
	if doc.Filename != "" {
		payload[document.MetaFilename] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: doc.Filename}}
	}
	return payload
}

// documentFromPayload rebuilds a document from a Qdrant payload. The
// reserved id and content keys become document fields instead of metadata.
func documentFromPayload(payload map[string]*qdrant.Value) document.Document {
	var doc document.Document
	if payload == nil {
		return doc
	}

	metadata := make(map[string]any, len(payload))
	for key, value := range payload {
		var v any
		switch kind := value.Kind.(type) {
		case *qdrant.Value_StringValue:
			v = kind.StringValue
		case *qdrant.Value_IntegerValue:
			v = kind.IntegerValue
		case *qdrant.Value_DoubleValue:
			v = kind.DoubleValue
		case *qdrant.Value_BoolValue:
			v = kind.BoolValue
		default:
			continue
		}

		switch key {
		case payloadKeyID:
			if s, ok := v.(string); ok {
				doc.ID = s
			}
		case payloadKeyContent:
			if s, ok := v.(string); ok {
				doc.Content = s
			}
		default:
			if key == document.MetaFilename {
				if s, ok := v.(string); ok {
					doc.Filename = s
				}
			}
			metadata[key] = v
		}
	}

	if len(metadata) > 0 {
		doc.Metadata = metadata
	}
	return doc
}

// buildFilter converts an exact-match filter into a Qdrant filter. Values
// must be strings, integers, or booleans; whole-number floats are accepted
// because JSON decoding produces them for integer literals.
func buildFilter(filter map[string]any) (*qdrant.Filter, error) {
	if len(filter) == 0 {
		return nil, nil
	}

	conditions := make([]*qdrant.Condition, 0, len(filter))
	for key, value := range filter {
		var match *qdrant.Match
		switch v := value.(type) {
		case string:
			match = &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}}
		case int:
			match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: int64(v)}}
		case int64:
			match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: v}}
		case float64:
			if v != float64(int64(v)) {
				return nil, fmt.Errorf("filter key %q: fractional numbers cannot be matched exactly", key)
			}
			match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: int64(v)}}
		case bool:
			match = &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: v}}
		default:
			return nil, fmt.Errorf("filter key %q: unsupported value type %T", key, value)
		}

		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   key,
					Match: match,
				},
			},
		})
	}

	return &qdrant.Filter{Must: conditions}, nil
}
