// Package vectorstore provides vector storage backends for document
// retrieval.
//
// A Store wraps a single collection. Embeddings are computed upstream and
// arrive attached to documents; stores never call an embedding service.
// Two backends are available: Qdrant over gRPC for production deployments
// and chromem-go for embedded or single-node use.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/fyrsmithlabs/ragd/internal/document"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrCollectionMismatch is returned when an existing collection's
	// dimension does not match the embedding model. Recoverable only by
	// reindexing or switching models, so startup treats it as fatal.
	ErrCollectionMismatch = errors.New("collection dimension mismatch")

	// ErrConnectionFailed indicates the backend could not be reached.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrInvalidDocument indicates a document that violates the upsert
	// contract: empty ID, missing embedding, or wrong dimension.
	ErrInvalidDocument = errors.New("invalid document")
)

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName validates a collection name against naming rules.
// Rejects uppercase, special characters, path separators, and spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// ScoredDocument is a document returned from similarity search.
type ScoredDocument struct {
	Document document.Document `json:"document"`

	// Score is the similarity score (higher = more similar).
	Score float32 `json:"score"`
}

// CollectionInfo contains metadata about the collection behind a store.
type CollectionInfo struct {
	// Name is the collection name.
	Name string `json:"name"`

	// DocumentCount is the number of vectors in the collection.
	DocumentCount uint64 `json:"document_count"`

	// Dimension is the dimensionality of vectors in this collection.
	Dimension int `json:"dimension"`
}

// Store is the interface for vector storage backends.
//
// Each Store instance is bound to one collection. All methods are safe for
// concurrent use.
type Store interface {
	// Upsert writes documents to the collection. Every document must carry
	// a non-empty ID and an embedding matching the collection dimension,
	// or the whole batch is rejected before anything is written. Writing
	// an existing ID overwrites it, so retrying a batch is safe.
	//
	// Returns the number of documents written.
	Upsert(ctx context.Context, docs []document.Document) (int, error)

	// Query returns up to topK documents most similar to the vector,
	// ordered by descending score. A topK of zero or less returns an
	// empty result without touching the backend. The optional filter
	// restricts results to documents whose metadata matches every entry
	// exactly; values must be strings, integers, or booleans.
	Query(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]ScoredDocument, error)

	// Delete removes documents by ID. Missing IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// EnsureCollection creates the collection with the given dimension if
	// it does not exist. If it exists with a different dimension,
	// ErrCollectionMismatch is returned. Calling it repeatedly is safe.
	EnsureCollection(ctx context.Context, name string, dimension int) error

	// CollectionInfo returns metadata about the store's collection.
	CollectionInfo(ctx context.Context) (*CollectionInfo, error)

	// HealthCheck reports whether the backend is reachable. It never
	// returns an error; failures mean "unreachable".
	HealthCheck(ctx context.Context) bool

	// Close releases the backend connection and resources.
	Close() error
}

// validateDocuments checks the upsert contract for a whole batch. Nothing
// is written when any document fails, keeping failed uploads atomic.
func validateDocuments(docs []document.Document, dimension int) error {
	if len(docs) == 0 {
		return ErrEmptyDocuments
	}
	for i, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("%w: document at index %d has an empty ID", ErrInvalidDocument, i)
		}
		if len(doc.Embedding) == 0 {
			return fmt.Errorf("%w: document %q has no embedding", ErrInvalidDocument, doc.ID)
		}
		if len(doc.Embedding) != dimension {
			return fmt.Errorf("%w: document %q has embedding dimension %d, collection expects %d",
				ErrInvalidDocument, doc.ID, len(doc.Embedding), dimension)
		}
	}
	return nil
}
