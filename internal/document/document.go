// Package document defines the entities shared across the ingestion and
// retrieval pipeline.
package document

// Metadata keys attached to every stored chunk. Format-specific loaders
// may add more (e.g. page numbers for PDFs).
const (
	MetaFilename   = "filename"
	MetaChunkIndex = "chunk_index"
	MetaUploadedAt = "uploaded_at"
	MetaPage       = "page"
	MetaTotalPages = "total_pages"
)

// Document is one stored chunk of an uploaded file.
//
// The processor creates documents unembedded; the storage manager
// attaches the embedding before upsert. Documents are immutable once
// persisted. The embedding never serializes to JSON: API responses
// carry text and metadata only.
type Document struct {
	ID        string         `json:"id"`
	Filename  string         `json:"filename"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"-"`
}

// QueryResult is a ranked similarity hit. Created per query, never
// persisted.
type QueryResult struct {
	Document Document `json:"document"`
	Score    float32  `json:"score"`
	Rank     int      `json:"rank"`
}

// UploadResponse reports the outcome of a document upload.
type UploadResponse struct {
	Success      bool     `json:"success"`
	ChunksStored int      `json:"chunks_stored"`
	DocumentIDs  []string `json:"document_ids,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// RetrieveResponse reports the outcome of a similarity query. Results
// are ordered most similar first.
type RetrieveResponse struct {
	Success bool          `json:"success"`
	Query   string        `json:"query"`
	Results []QueryResult `json:"results"`
	Error   string        `json:"error,omitempty"`
}

// DeleteResponse reports the outcome of a document deletion.
type DeleteResponse struct {
	Success    bool   `json:"success"`
	DocumentID string `json:"document_id"`
	Error      string `json:"error,omitempty"`
}

// StatsResponse reports collection statistics.
type StatsResponse struct {
	Success       bool   `json:"success"`
	Collection    string `json:"collection"`
	DocumentCount uint64 `json:"document_count"`
	Dimension     int    `json:"dimension"`
	Error         string `json:"error,omitempty"`
}

// Health status values.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// HealthResponse reports daemon and vector store health. The key names
// are fixed; monitoring integrations depend on them.
type HealthResponse struct {
	Status               string `json:"status"`
	VectorStoreReachable bool   `json:"vectorStoreReachable"`
}
