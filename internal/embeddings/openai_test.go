package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type openAIEmbeddingItem struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type openAIEmbeddingResponse struct {
	Object string                `json:"object"`
	Data   []openAIEmbeddingItem `json:"data"`
	Model  string                `json:"model"`
}

// newOpenAIServer fakes the embeddings endpoint, calling build to produce
// the response items for the decoded inputs.
func newOpenAIServer(t *testing.T, build func(inputs []string) []openAIEmbeddingItem) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := openAIEmbeddingResponse{
			Object: "list",
			Data:   build(req.Input),
			Model:  req.Model,
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestNewOpenAI(t *testing.T) {
	tests := []struct {
		name    string
		config  OpenAIConfig
		wantErr string
	}{
		{
			name:   "valid",
			config: OpenAIConfig{Model: "text-embedding-3-small", APIKey: "sk-test", Dimension: 1536},
		},
		{
			name:    "missing API key",
			config:  OpenAIConfig{Model: "text-embedding-3-small", Dimension: 1536},
			wantErr: "API key required",
		},
		{
			name:    "missing model",
			config:  OpenAIConfig{APIKey: "sk-test", Dimension: 1536},
			wantErr: "model required",
		},
		{
			name:    "zero dimension",
			config:  OpenAIConfig{Model: "text-embedding-3-small", APIKey: "sk-test"},
			wantErr: "dimension must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewOpenAI(tt.config, nil)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, provider)
			assert.Equal(t, 1536, provider.Dimension())
		})
	}
}

func TestOpenAIEmbedDocumentsReordersByIndex(t *testing.T) {
	srv := newOpenAIServer(t, func(inputs []string) []openAIEmbeddingItem {
		require.Len(t, inputs, 2)
		// Items arrive out of order; the provider must place them by index.
		return []openAIEmbeddingItem{
			{Object: "embedding", Embedding: []float32{1, 1}, Index: 1},
			{Object: "embedding", Embedding: []float32{0, 0}, Index: 0},
		}
	})
	defer srv.Close()

	provider, err := NewOpenAI(OpenAIConfig{
		Model:     "text-embedding-3-small",
		APIKey:    "test-key",
		BaseURL:   srv.URL + "/v1",
		Dimension: 2,
	}, nil)
	require.NoError(t, err)

	vectors, err := provider.EmbedDocuments(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0, 0}, vectors[0])
	assert.Equal(t, []float32{1, 1}, vectors[1])
}

func TestOpenAIEmbedQuery(t *testing.T) {
	srv := newOpenAIServer(t, func(inputs []string) []openAIEmbeddingItem {
		require.Equal(t, []string{"what is ragd"}, inputs)
		return []openAIEmbeddingItem{
			{Object: "embedding", Embedding: []float32{0.5, 0.6}, Index: 0},
		}
	})
	defer srv.Close()

	provider, err := NewOpenAI(OpenAIConfig{
		Model:     "text-embedding-3-small",
		APIKey:    "test-key",
		BaseURL:   srv.URL + "/v1",
		Dimension: 2,
	}, nil)
	require.NoError(t, err)

	vector, err := provider.EmbedQuery(context.Background(), "what is ragd")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.6}, vector)
}

func TestOpenAIEmptyInput(t *testing.T) {
	provider, err := NewOpenAI(OpenAIConfig{
		Model:     "text-embedding-3-small",
		APIKey:    "test-key",
		Dimension: 2,
	}, nil)
	require.NoError(t, err)

	_, err = provider.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = provider.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestOpenAIVectorCountMismatch(t *testing.T) {
	srv := newOpenAIServer(t, func(inputs []string) []openAIEmbeddingItem {
		return []openAIEmbeddingItem{
			{Object: "embedding", Embedding: []float32{0.1}, Index: 0},
		}
	})
	defer srv.Close()

	provider, err := NewOpenAI(OpenAIConfig{
		Model:     "text-embedding-3-small",
		APIKey:    "test-key",
		BaseURL:   srv.URL + "/v1",
		Dimension: 1,
	}, nil)
	require.NoError(t, err)

	_, err = provider.EmbedDocuments(context.Background(), []string{"first", "second"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestOpenAIAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit exceeded","type":"requests"}}`))
	}))
	defer srv.Close()

	provider, err := NewOpenAI(OpenAIConfig{
		Model:     "text-embedding-3-small",
		APIKey:    "test-key",
		BaseURL:   srv.URL + "/v1",
		Dimension: 2,
	}, nil)
	require.NoError(t, err)

	_, err = provider.EmbedDocuments(context.Background(), []string{"text"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}
