package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// TEIConfig holds configuration for the TEI provider.
type TEIConfig struct {
	// BaseURL is the base URL of the text-embeddings-inference server
	BaseURL string

	// Model is the embedding model the server runs, used in metric labels
	Model string

	// APIKey is sent as a bearer token when set
	APIKey string

	// RequestTimeout bounds a single request; zero means no timeout
	RequestTimeout time.Duration

	// RateLimit caps outbound requests per second; zero disables limiting
	RateLimit float64

	// RateBurst is the limiter burst size
	RateBurst int

	// Dimension is the vector size the model produces
	Dimension int
}

// Validate validates the configuration.
func (c TEIConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, c.Dimension)
	}
	return nil
}

// TEI generates embeddings against a text-embeddings-inference server.
type TEI struct {
	config  TEIConfig
	client  *http.Client
	limiter *rate.Limiter
	metrics *Metrics
}

var _ Provider = (*TEI)(nil)

// NewTEI creates a TEI provider with the given configuration.
func NewTEI(config TEIConfig, metrics *Metrics) (*TEI, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	return &TEI{
		config:  config,
		client:  &http.Client{Timeout: config.RequestTimeout},
		limiter: limiter,
		metrics: metrics,
	}, nil
}

// EmbedDocuments generates embeddings for multiple texts, one vector per
// input in input order.
func (t *TEI) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		t.metrics.RecordGeneration(ctx, t.config.Model, "embed_documents", time.Since(start), len(texts), genErr)
	}()

	if len(texts) == 0 {
		genErr = fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	vectors, err := t.embed(ctx, texts)
	if err != nil {
		genErr = err
		return nil, genErr
	}

	if len(vectors) != len(texts) {
		genErr = fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmbeddingFailed, len(vectors), len(texts))
		return nil, genErr
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (t *TEI) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		t.metrics.RecordGeneration(ctx, t.config.Model, "embed_query", time.Since(start), 1, genErr)
	}()

	if text == "" {
		genErr = fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	vectors, err := t.embed(ctx, text)
	if err != nil {
		genErr = err
		return nil, genErr
	}

	if len(vectors) == 0 {
		genErr = fmt.Errorf("%w: empty response", ErrEmbeddingFailed)
		return nil, genErr
	}
	return vectors[0], nil
}

// Dimension returns the embedding dimension for the configured model.
func (t *TEI) Dimension() int {
	return t.config.Dimension
}

// Close is a no-op for TEI since it uses HTTP.
func (t *TEI) Close() error {
	return nil
}

// teiRequest is the request body for the TEI embed endpoint.
type teiRequest struct {
	Inputs   any  `json:"inputs"`
	Truncate bool `json:"truncate"`
}

// embed posts inputs to the /embed endpoint. TEI accepts a single string
// or a list of strings; the response is always a list of vectors.
func (t *TEI) embed(ctx context.Context, inputs any) ([][]float32, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %v", ErrEmbeddingFailed, err)
		}
	}

	body, err := json.Marshal(teiRequest{Inputs: inputs, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if t.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.config.APIKey)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, string(respBody))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return vectors, nil
}
