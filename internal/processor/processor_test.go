package processor

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/document"
)

func newTestProcessor(t *testing.T, cfg Config) *Processor {
	t.Helper()
	p, err := New(cfg)
	require.NoError(t, err)
	return p
}

// alphabetText returns n characters cycling a-z with no whitespace, so
// the splitter has to cut at the size limit.
func alphabetText(n int) string {
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		sb.WriteByte(byte('a' + i%26))
	}
	return sb.String()
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p, err := New(Config{})
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, defaultMaxFileSizeMB*1024*1024, p.MaxFileSizeBytes())
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := New(Config{ChunkSize: 100, ChunkOverlap: 100})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		c := Config{}
		c.ApplyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "negative max file size",
			mutate:  func(c *Config) { c.MaxFileSizeMB = -1 },
			wantErr: "max file size",
		},
		{
			name:    "extension without dot",
			mutate:  func(c *Config) { c.AllowedExtensions = []string{"txt"} },
			wantErr: "must start with a dot",
		},
		{
			name:    "negative chunk size",
			mutate:  func(c *Config) { c.ChunkSize = -5 },
			wantErr: "chunk size",
		},
		{
			name:    "negative overlap",
			mutate:  func(c *Config) { c.ChunkOverlap = -1 },
			wantErr: "chunk overlap",
		},
		{
			name:    "overlap equals chunk size",
			mutate:  func(c *Config) { c.ChunkSize = 200; c.ChunkOverlap = 200 },
			wantErr: "smaller than chunk size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseExtensions(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "plain list",
			input: ".txt,.md,.pdf",
			want:  []string{".txt", ".md", ".pdf"},
		},
		{
			name:  "missing dots and mixed case",
			input: "TXT, Md,pdf",
			want:  []string{".txt", ".md", ".pdf"},
		},
		{
			name:  "empty entries dropped",
			input: ".txt,, ,.md",
			want:  []string{".txt", ".md"},
		},
		{
			name:  "empty string",
			input: "",
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseExtensions(tt.input))
		})
	}
}

func TestProcessChunking(t *testing.T) {
	p := newTestProcessor(t, Config{ChunkSize: 200, ChunkOverlap: 50})

	text := alphabetText(500)
	docs, err := p.Process(context.Background(), []byte(text), "notes.txt")
	require.NoError(t, err)
	require.Len(t, docs, 3)

	for _, doc := range docs {
		assert.LessOrEqual(t, len(doc.Content), 200)
	}

	// Adjacent chunks share the configured overlap.
	assert.Equal(t, text[:200], docs[0].Content)
	assert.Equal(t, docs[0].Content[150:], docs[1].Content[:50])
	assert.Equal(t, docs[1].Content[150:], docs[2].Content[:50])
	assert.True(t, strings.HasSuffix(text, docs[2].Content))
}

func TestProcessSplitsOnSeparator(t *testing.T) {
	p := newTestProcessor(t, Config{ChunkSize: 40, ChunkOverlap: 0, Separator: "\n"})

	text := "first line of the file\nsecond line here\nthird line closes it"
	docs, err := p.Process(context.Background(), []byte(text), "notes.txt")
	require.NoError(t, err)
	require.NotEmpty(t, docs)

	for _, doc := range docs {
		assert.LessOrEqual(t, len(doc.Content), 40)
	}
	assert.Equal(t, "first line of the file", docs[0].Content)
}

func TestProcessMetadata(t *testing.T) {
	p := newTestProcessor(t, Config{ChunkSize: 50, ChunkOverlap: 10})

	before := time.Now().UTC().Add(-time.Second)
	docs, err := p.Process(context.Background(), []byte(alphabetText(300)), "report.md")
	require.NoError(t, err)
	require.Greater(t, len(docs), 1)

	seen := make(map[string]bool, len(docs))
	for i, doc := range docs {
		assert.Equal(t, "report.md", doc.Filename)
		assert.Equal(t, "report.md", doc.Metadata[document.MetaFilename])
		assert.Equal(t, i, doc.Metadata[document.MetaChunkIndex])
		assert.Nil(t, doc.Embedding)

		require.NotEmpty(t, doc.ID)
		_, err := uuid.Parse(doc.ID)
		assert.NoError(t, err, "document ID should be a UUID")
		assert.False(t, seen[doc.ID], "document IDs should be unique")
		seen[doc.ID] = true

		raw, ok := doc.Metadata[document.MetaUploadedAt].(string)
		require.True(t, ok)
		ts, err := time.Parse(time.RFC3339, raw)
		require.NoError(t, err)
		assert.False(t, ts.Before(before))
	}
}

func TestProcessIDsAreStableAcrossUploads(t *testing.T) {
	p := newTestProcessor(t, Config{ChunkSize: 50, ChunkOverlap: 10})
	content := []byte(alphabetText(300))

	first, err := p.Process(context.Background(), content, "report.md")
	require.NoError(t, err)
	second, err := p.Process(context.Background(), content, "report.md")
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID,
			"re-uploading a file must reuse chunk IDs so the upsert overwrites")
	}

	// A different filename maps to different IDs even for identical content.
	other, err := p.Process(context.Background(), content, "other.md")
	require.NoError(t, err)
	assert.NotEqual(t, first[0].ID, other[0].ID)
}

func TestProcessRejectsUnsupportedFormat(t *testing.T) {
	p := newTestProcessor(t, Config{})

	tests := []struct {
		name     string
		filename string
	}{
		{name: "executable", filename: "malware.exe"},
		{name: "archive", filename: "backup.tar.gz"},
		{name: "no extension", filename: "README"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Process(context.Background(), []byte("content"), tt.filename)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnsupportedFormat)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestProcessSizeLimit(t *testing.T) {
	p := newTestProcessor(t, Config{MaxFileSizeMB: 1})
	max := p.MaxFileSizeBytes()

	// Newlines every 100 bytes keep the splitter off the hard-cut path.
	content := bytes.Repeat([]byte{'a'}, max)
	for i := 99; i < max; i += 100 {
		content[i] = '\n'
	}

	t.Run("exactly at limit", func(t *testing.T) {
		docs, err := p.Process(context.Background(), content, "big.txt")
		require.NoError(t, err)
		assert.NotEmpty(t, docs)
	})

	t.Run("one byte over", func(t *testing.T) {
		over := append(append([]byte(nil), content...), 'a')
		_, err := p.Process(context.Background(), over, "big.txt")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrFileTooLarge)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestProcessRejectsEmptyFile(t *testing.T) {
	p := newTestProcessor(t, Config{})

	_, err := p.Process(context.Background(), nil, "empty.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyFile)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestProcessRejectsWhitespaceOnlyFile(t *testing.T) {
	p := newTestProcessor(t, Config{})

	_, err := p.Process(context.Background(), []byte("   \n\t\n   \n"), "blank.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoContent)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestProcessCSV(t *testing.T) {
	p := newTestProcessor(t, Config{ChunkSize: 200, ChunkOverlap: 0})

	csv := "name,role\nada,engineer\ngrace,admiral\n"
	docs, err := p.Process(context.Background(), []byte(csv), "crew.csv")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Contains(t, docs[0].Content, "name: ada")
	assert.Contains(t, docs[1].Content, "name: grace")

	// Indices stay contiguous across per-row source documents.
	assert.Equal(t, 0, docs[0].Metadata[document.MetaChunkIndex])
	assert.Equal(t, 1, docs[1].Metadata[document.MetaChunkIndex])
}

func TestProcessHTMLStripsMarkup(t *testing.T) {
	p := newTestProcessor(t, Config{})

	html := "<html><body><h1>Release Notes</h1><p>Retrieval latency improved.</p></body></html>"
	docs, err := p.Process(context.Background(), []byte(html), "notes.html")
	require.NoError(t, err)
	require.NotEmpty(t, docs)

	var all strings.Builder
	for _, doc := range docs {
		all.WriteString(doc.Content)
		all.WriteString("\n")
	}
	text := all.String()
	assert.Contains(t, text, "Release Notes")
	assert.Contains(t, text, "Retrieval latency improved.")
	assert.NotContains(t, text, "<h1>")
}

func TestProcessTreatsJSONAsPlainText(t *testing.T) {
	p := newTestProcessor(t, Config{})

	payload := `{"service": "ragd", "healthy": true}`
	docs, err := p.Process(context.Background(), []byte(payload), "status.json")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, payload, docs[0].Content)
}

func TestProcessExtensionCaseInsensitive(t *testing.T) {
	p := newTestProcessor(t, Config{})

	docs, err := p.Process(context.Background(), []byte("shouting content"), "LOUD.TXT")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestProcessErrorMessagesNameTheFile(t *testing.T) {
	p := newTestProcessor(t, Config{})

	_, err := p.Process(context.Background(), []byte("x"), "script.sh")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
	assert.Contains(t, err.Error(), "script.sh")
}
