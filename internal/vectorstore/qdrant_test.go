package vectorstore

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/document"
)

func TestQdrantConfigApplyDefaults(t *testing.T) {
	config := QdrantConfig{Collection: "docs", Dimension: 384}
	config.ApplyDefaults()

	assert.Equal(t, "localhost", config.Host)
	assert.Equal(t, 6334, config.Port)
	assert.Equal(t, qdrant.Distance_Cosine, config.Distance)
	assert.Equal(t, 30*time.Second, config.RequestTimeout)
	assert.Equal(t, 5*time.Second, config.DialTimeout)
	assert.Equal(t, 50*1024*1024, config.MaxMessageSize)
}

func TestQdrantConfigValidate(t *testing.T) {
	valid := QdrantConfig{
		Host:       "localhost",
		Port:       6334,
		Collection: "docs",
		Dimension:  384,
	}

	tests := []struct {
		name    string
		mutate  func(*QdrantConfig)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*QdrantConfig) {},
		},
		{
			name:    "missing host",
			mutate:  func(c *QdrantConfig) { c.Host = "" },
			wantErr: "host required",
		},
		{
			name:    "port too large",
			mutate:  func(c *QdrantConfig) { c.Port = 70000 },
			wantErr: "invalid port",
		},
		{
			name:    "bad collection name",
			mutate:  func(c *QdrantConfig) { c.Collection = "Bad Name" },
			wantErr: "collection name",
		},
		{
			name:    "zero dimension",
			mutate:  func(c *QdrantConfig) { c.Dimension = 0 },
			wantErr: "dimension must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid
			tt.mutate(&config)
			err := config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewQdrantStoreLazyConnection(t *testing.T) {
	// gRPC dials lazily, so construction succeeds without a server.
	store, err := NewQdrantStore(QdrantConfig{
		Host:       "localhost",
		Port:       6334,
		Collection: "docs",
		Dimension:  384,
	})
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.NoError(t, store.Close())
}

func TestPointIDDeterministic(t *testing.T) {
	t.Run("valid uuid passes through", func(t *testing.T) {
		id := uuid.New().String()
		assert.Equal(t, id, pointID(id).GetUuid())
	})

	t.Run("non-uuid maps to stable uuid", func(t *testing.T) {
		first := pointID("chunk-42").GetUuid()
		second := pointID("chunk-42").GetUuid()
		other := pointID("chunk-43").GetUuid()

		_, err := uuid.Parse(first)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.NotEqual(t, first, other)
	})
}

func TestBuildPayloadRoundTrip(t *testing.T) {
	doc := document.Document{
		ID:       "doc-1",
		Filename: "report.pdf",
		Content:  "quarterly numbers",
		Metadata: map[string]any{
			document.MetaFilename:   "report.pdf",
			document.MetaChunkIndex: 3,
			document.MetaPage:       int64(2),
			"score_threshold":       0.5,
			"reviewed":              true,
			"ignored":               []string{"unsupported"},
		},
		Embedding: vecA,
	}

	payload := buildPayload(doc)
	assert.NotContains(t, payload, "ignored")

	got := documentFromPayload(payload)
	assert.Equal(t, "doc-1", got.ID)
	assert.Equal(t, "report.pdf", got.Filename)
	assert.Equal(t, "quarterly numbers", got.Content)

	// Reserved keys become document fields, not metadata.
	assert.NotContains(t, got.Metadata, payloadKeyID)
	assert.NotContains(t, got.Metadata, payloadKeyContent)

	assert.Equal(t, "report.pdf", got.Metadata[document.MetaFilename])
	assert.Equal(t, int64(3), got.Metadata[document.MetaChunkIndex])
	assert.Equal(t, int64(2), got.Metadata[document.MetaPage])
	assert.Equal(t, 0.5, got.Metadata["score_threshold"])
	assert.Equal(t, true, got.Metadata["reviewed"])
}

func TestDocumentFromPayloadNil(t *testing.T) {
	got := documentFromPayload(nil)
	assert.Empty(t, got.ID)
	assert.Nil(t, got.Metadata)
}

func TestBuildFilter(t *testing.T) {
	t.Run("nil filter", func(t *testing.T) {
		filter, err := buildFilter(nil)
		require.NoError(t, err)
		assert.Nil(t, filter)
	})

	t.Run("supported value types", func(t *testing.T) {
		filter, err := buildFilter(map[string]any{
			"filename":    "a.txt",
			"chunk_index": 3,
			"page":        int64(2),
			"total_pages": float64(10),
			"reviewed":    true,
		})
		require.NoError(t, err)
		require.NotNil(t, filter)
		require.Len(t, filter.Must, 5)

		matches := map[string]*qdrant.Match{}
		for _, cond := range filter.Must {
			field := cond.GetField()
			require.NotNil(t, field)
			matches[field.Key] = field.Match
		}

		assert.Equal(t, "a.txt", matches["filename"].GetKeyword())
		assert.Equal(t, int64(3), matches["chunk_index"].GetInteger())
		assert.Equal(t, int64(2), matches["page"].GetInteger())
		assert.Equal(t, int64(10), matches["total_pages"].GetInteger())
		assert.Equal(t, true, matches["reviewed"].GetBoolean())
	})

	t.Run("fractional number rejected", func(t *testing.T) {
		_, err := buildFilter(map[string]any{"threshold": 0.75})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fractional")
	})

	t.Run("unsupported type rejected", func(t *testing.T) {
		_, err := buildFilter(map[string]any{"tags": []string{"a", "b"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported value type")
	})
}
