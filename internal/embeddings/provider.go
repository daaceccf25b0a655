package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/logging"
)

var (
	// ErrEmptyInput indicates empty or nil input texts
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid provider configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider is the interface for embedding providers.
type Provider interface {
	// EmbedDocuments generates embeddings for multiple texts, one vector
	// per input in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is the provider type: "tei" or "openai"
	Provider string
	// Model is the embedding model name
	Model string
	// BaseURL is the API endpoint. Required for TEI. For OpenAI it
	// overrides the public endpoint, for OpenAI-compatible servers.
	BaseURL string
	// APIKey authenticates requests (required for OpenAI, optional for TEI)
	APIKey string
	// RequestTimeout bounds a single embedding request
	RequestTimeout time.Duration
	// RateLimit caps outbound requests per second; zero disables limiting
	RateLimit float64
	// RateBurst is the limiter burst size
	RateBurst int
	// Dimension overrides model dimension detection when non-zero
	Dimension int
}

// modelDimensions maps well-known embedding models to their vector size.
var modelDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-large-en-v1.5":                 1024,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"text-embedding-3-small":                 1536,
	"text-embedding-3-large":                 3072,
	"text-embedding-ada-002":                 1536,
}

// DetectDimension returns the embedding dimension for a model name.
// Unknown models fall back to name heuristics, then to 384.
func DetectDimension(model string) int {
	if dim, ok := modelDimensions[model]; ok {
		return dim
	}
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "large"):
		return 1024
	case strings.Contains(lower, "base"):
		return 768
	case strings.Contains(lower, "small"), strings.Contains(lower, "mini"):
		return 384
	default:
		return 384
	}
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig, logger *logging.Logger) (Provider, error) {
	dimension := cfg.Dimension
	if dimension == 0 {
		dimension = DetectDimension(cfg.Model)
	}
	metrics := NewMetrics(logger)

	switch cfg.Provider {
	case "tei", "":
		return NewTEI(TEIConfig{
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			APIKey:         cfg.APIKey,
			RequestTimeout: cfg.RequestTimeout,
			RateLimit:      cfg.RateLimit,
			RateBurst:      cfg.RateBurst,
			Dimension:      dimension,
		}, metrics)
	case "openai":
		return NewOpenAI(OpenAIConfig{
			Model:          cfg.Model,
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			RequestTimeout: cfg.RequestTimeout,
			Dimension:      dimension,
		}, metrics)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
