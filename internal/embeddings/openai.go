package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig holds configuration for the OpenAI provider.
type OpenAIConfig struct {
	// Model is the embedding model name
	Model string

	// APIKey authenticates against the API
	APIKey string

	// BaseURL overrides the API endpoint, for OpenAI-compatible servers.
	// Empty uses the public API.
	BaseURL string

	// RequestTimeout bounds a single request; zero means no timeout
	RequestTimeout time.Duration

	// Dimension is the vector size the model produces
	Dimension int
}

// Validate validates the configuration.
func (c OpenAIConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: API key required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, c.Dimension)
	}
	return nil
}

// OpenAI generates embeddings via the OpenAI embeddings API.
type OpenAI struct {
	config  OpenAIConfig
	client  *openai.Client
	metrics *Metrics
}

var _ Provider = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI provider with the given configuration.
func NewOpenAI(config OpenAIConfig, metrics *Metrics) (*OpenAI, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: config.RequestTimeout}

	return &OpenAI{
		config:  config,
		client:  openai.NewClientWithConfig(clientConfig),
		metrics: metrics,
	}, nil
}

// EmbedDocuments generates embeddings for multiple texts. The API may
// return items out of order, so results are placed by response index.
func (o *OpenAI) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		o.metrics.RecordGeneration(ctx, o.config.Model, "embed_documents", time.Since(start), len(texts), genErr)
	}()

	if len(texts) == 0 {
		genErr = fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(o.config.Model),
	})
	if err != nil {
		genErr = fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		return nil, genErr
	}

	if len(resp.Data) != len(texts) {
		genErr = fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmbeddingFailed, len(resp.Data), len(texts))
		return nil, genErr
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			genErr = fmt.Errorf("%w: response index %d out of range", ErrEmbeddingFailed, item.Index)
			return nil, genErr
		}
		vectors[item.Index] = item.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			genErr = fmt.Errorf("%w: missing vector for input %d", ErrEmbeddingFailed, i)
			return nil, genErr
		}
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (o *OpenAI) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		o.metrics.RecordGeneration(ctx, o.config.Model, "embed_query", time.Since(start), 1, genErr)
	}()

	if text == "" {
		genErr = fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(o.config.Model),
	})
	if err != nil {
		genErr = fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		return nil, genErr
	}

	if len(resp.Data) == 0 {
		genErr = fmt.Errorf("%w: empty response", ErrEmbeddingFailed)
		return nil, genErr
	}
	return resp.Data[0].Embedding, nil
}

// Dimension returns the embedding dimension for the configured model.
func (o *OpenAI) Dimension() int {
	return o.config.Dimension
}

// Close is a no-op since the client is stateless HTTP.
func (o *OpenAI) Close() error {
	return nil
}
