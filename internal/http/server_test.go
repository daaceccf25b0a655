package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/document"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/processor"
	"github.com/fyrsmithlabs/ragd/internal/storage"
)

type stubManager struct {
	storeResp    *document.UploadResponse
	storeErr     error
	storeCalls   int
	lastFilename string
	lastBytes    []byte

	retrieveResp  *document.RetrieveResponse
	retrieveCalls int
	lastQuery     string
	lastTopK      int
	lastFilter    map[string]any

	deleteErr error
	deletedID string

	statsResp *document.StatsResponse
	statsErr  error

	health *document.HealthResponse
}

var _ storage.Manager = (*stubManager)(nil)

func (m *stubManager) Store(_ context.Context, fileBytes []byte, filename string) (*document.UploadResponse, error) {
	m.storeCalls++
	m.lastBytes = fileBytes
	m.lastFilename = filename
	if m.storeErr != nil {
		return nil, m.storeErr
	}
	return m.storeResp, nil
}

func (m *stubManager) Retrieve(_ context.Context, query string, topK int, filter map[string]any) *document.RetrieveResponse {
	m.retrieveCalls++
	m.lastQuery = query
	m.lastTopK = topK
	m.lastFilter = filter
	if m.retrieveResp != nil {
		return m.retrieveResp
	}
	return &document.RetrieveResponse{Success: true, Query: query, Results: []document.QueryResult{}}
}

func (m *stubManager) Delete(_ context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deletedID = id
	return nil
}

func (m *stubManager) Stats(_ context.Context) (*document.StatsResponse, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return m.statsResp, nil
}

func (m *stubManager) HealthCheck(_ context.Context) *document.HealthResponse {
	if m.health != nil {
		return m.health
	}
	return &document.HealthResponse{Status: document.StatusOK, VectorStoreReachable: true}
}

func newTestServer(t *testing.T, mgr storage.Manager, maxUploadBytes int64) *Server {
	t.Helper()
	srv, err := NewServer(mgr, config.ServerConfig{}, maxUploadBytes, logging.NewNop())
	require.NoError(t, err)
	return srv
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestNewServer(t *testing.T) {
	t.Run("requires manager", func(t *testing.T) {
		_, err := NewServer(nil, config.ServerConfig{}, 0, logging.NewNop())
		assert.ErrorContains(t, err, "manager")
	})

	t.Run("requires logger", func(t *testing.T) {
		_, err := NewServer(&stubManager{}, config.ServerConfig{}, 0, nil)
		assert.ErrorContains(t, err, "logger")
	})
}

func TestHandleUploadSuccess(t *testing.T) {
	mgr := &stubManager{storeResp: &document.UploadResponse{
		Success:      true,
		ChunksStored: 3,
		DocumentIDs:  []string{"a", "b", "c"},
	}}
	srv := newTestServer(t, mgr, 0)

	body, contentType := multipartBody(t, "file", "notes.txt", []byte("hello world"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp document.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.ChunksStored)
	assert.Equal(t, []string{"a", "b", "c"}, resp.DocumentIDs)

	assert.Equal(t, "notes.txt", mgr.lastFilename)
	assert.Equal(t, []byte("hello world"), mgr.lastBytes)
}

func TestHandleUploadMissingFileField(t *testing.T) {
	mgr := &stubManager{}
	srv := newTestServer(t, mgr, 0)

	body, contentType := multipartBody(t, "document", "notes.txt", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp document.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, `"file"`)
	assert.Zero(t, mgr.storeCalls)
}

func TestHandleUploadValidationError(t *testing.T) {
	mgr := &stubManager{storeErr: fmt.Errorf("processing notes.exe: %w", processor.ErrUnsupportedFormat)}
	srv := newTestServer(t, mgr, 0)

	body, contentType := multipartBody(t, "file", "notes.exe", []byte("MZ"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp document.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "notes.exe")
}

func TestHandleUploadUpstreamErrorIsGeneric(t *testing.T) {
	mgr := &stubManager{storeErr: errors.New("qdrant at 10.0.0.5 refused connection")}
	srv := newTestServer(t, mgr, 0)

	body, contentType := multipartBody(t, "file", "notes.txt", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp document.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, genericError, resp.Error)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
}

func TestHandleUploadFileTooLarge(t *testing.T) {
	mgr := &stubManager{}
	srv := newTestServer(t, mgr, 16)

	body, contentType := multipartBody(t, "file", "notes.txt", bytes.Repeat([]byte("x"), 17))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "exceeds the maximum size")
	assert.Zero(t, mgr.storeCalls)
}

func TestHandleUploadExactLimitPasses(t *testing.T) {
	mgr := &stubManager{storeResp: &document.UploadResponse{Success: true, ChunksStored: 1}}
	srv := newTestServer(t, mgr, 16)

	body, contentType := multipartBody(t, "file", "notes.txt", bytes.Repeat([]byte("x"), 16))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, mgr.storeCalls)
	assert.Len(t, mgr.lastBytes, 16)
}

func TestHandleUploadStripsPathFromFilename(t *testing.T) {
	mgr := &stubManager{storeResp: &document.UploadResponse{Success: true}}
	srv := newTestServer(t, mgr, 0)

	body, contentType := multipartBody(t, "file", "../../etc/passwd.txt", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "passwd.txt", mgr.lastFilename)
}

func postJSON(t *testing.T, srv *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestHandleRetrieveSuccess(t *testing.T) {
	mgr := &stubManager{retrieveResp: &document.RetrieveResponse{
		Success: true,
		Query:   "find me",
		Results: []document.QueryResult{
			{Document: document.Document{ID: "chunk-0", Content: "found"}, Score: 0.9, Rank: 1},
		},
	}}
	srv := newTestServer(t, mgr, 0)

	rec := postJSON(t, srv, "/retrieve", `{"query": "find me", "topK": 3}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "find me", mgr.lastQuery)
	assert.Equal(t, 3, mgr.lastTopK)

	var resp document.RetrieveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "chunk-0", resp.Results[0].Document.ID)
}

func TestHandleRetrieveDefaultTopK(t *testing.T) {
	mgr := &stubManager{}
	srv := newTestServer(t, mgr, 0)

	rec := postJSON(t, srv, "/retrieve", `{"query": "anything"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, storage.DefaultTopK, mgr.lastTopK)
}

func TestHandleRetrieveExplicitZeroTopK(t *testing.T) {
	mgr := &stubManager{}
	srv := newTestServer(t, mgr, 0)

	rec := postJSON(t, srv, "/retrieve", `{"query": "anything", "topK": 0}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, mgr.retrieveCalls)
	assert.Equal(t, 0, mgr.lastTopK)
}

func TestHandleRetrieveMissingQuery(t *testing.T) {
	mgr := &stubManager{}
	srv := newTestServer(t, mgr, 0)

	for _, body := range []string{`{"topK": 2}`, `{"query": "   "}`} {
		rec := postJSON(t, srv, "/retrieve", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "query field is required")
	}
	assert.Zero(t, mgr.retrieveCalls)
}

func TestHandleRetrieveMalformedBody(t *testing.T) {
	mgr := &stubManager{}
	srv := newTestServer(t, mgr, 0)

	rec := postJSON(t, srv, "/retrieve", `{not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid request body")
	assert.Zero(t, mgr.retrieveCalls)
}

func TestHandleRetrieveRejectsBadFilters(t *testing.T) {
	mgr := &stubManager{}
	srv := newTestServer(t, mgr, 0)

	t.Run("fractional number", func(t *testing.T) {
		rec := postJSON(t, srv, "/retrieve", `{"query": "x", "filter": {"score": 1.5}}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "fractional")
	})

	t.Run("nested object", func(t *testing.T) {
		rec := postJSON(t, srv, "/retrieve", `{"query": "x", "filter": {"meta": {"a": 1}}}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "unsupported value type")
	})

	assert.Zero(t, mgr.retrieveCalls)
}

func TestHandleRetrievePassesFilter(t *testing.T) {
	mgr := &stubManager{}
	srv := newTestServer(t, mgr, 0)

	rec := postJSON(t, srv, "/retrieve", `{"query": "x", "filter": {"filename": "a.txt", "chunk_index": 2}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a.txt", mgr.lastFilter["filename"])
	assert.Equal(t, float64(2), mgr.lastFilter["chunk_index"])
}

func TestHandleRetrieveDownstreamFailure(t *testing.T) {
	mgr := &stubManager{retrieveResp: &document.RetrieveResponse{
		Success: false,
		Query:   "x",
		Results: []document.QueryResult{},
		Error:   "retrieval failed",
	}}
	srv := newTestServer(t, mgr, 0)

	rec := postJSON(t, srv, "/retrieve", `{"query": "x"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp document.RetrieveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Empty(t, resp.Results)
	assert.Equal(t, "retrieval failed", resp.Error)
}

func TestHandleDelete(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		mgr := &stubManager{}
		srv := newTestServer(t, mgr, 0)

		req := httptest.NewRequest(http.MethodDelete, "/documents/chunk-42", nil)
		rec := httptest.NewRecorder()
		srv.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "chunk-42", mgr.deletedID)

		var resp document.DeleteResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "chunk-42", resp.DocumentID)
	})

	t.Run("store failure is generic", func(t *testing.T) {
		mgr := &stubManager{deleteErr: errors.New("grpc: connection refused")}
		srv := newTestServer(t, mgr, 0)

		req := httptest.NewRequest(http.MethodDelete, "/documents/chunk-42", nil)
		rec := httptest.NewRecorder()
		srv.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "grpc")
	})
}

func TestHandleStats(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		mgr := &stubManager{statsResp: &document.StatsResponse{
			Success:       true,
			Collection:    "documents",
			DocumentCount: 7,
			Dimension:     384,
		}}
		srv := newTestServer(t, mgr, 0)

		req := httptest.NewRequest(http.MethodGet, "/stats", nil)
		rec := httptest.NewRecorder()
		srv.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp document.StatsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, uint64(7), resp.DocumentCount)
		assert.Equal(t, 384, resp.Dimension)
	})

	t.Run("failure", func(t *testing.T) {
		mgr := &stubManager{statsErr: errors.New("collection gone")}
		srv := newTestServer(t, mgr, 0)

		req := httptest.NewRequest(http.MethodGet, "/stats", nil)
		rec := httptest.NewRecorder()
		srv.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHandleHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		srv := newTestServer(t, &stubManager{}, 0)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		srv.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var raw map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
		assert.Equal(t, "ok", raw["status"])
		assert.Equal(t, true, raw["vectorStoreReachable"])
	})

	t.Run("degraded still returns 200", func(t *testing.T) {
		mgr := &stubManager{health: &document.HealthResponse{
			Status:               document.StatusDegraded,
			VectorStoreReachable: false,
		}}
		srv := newTestServer(t, mgr, 0)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		srv.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var raw map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
		assert.Equal(t, "degraded", raw["status"])
		assert.Equal(t, false, raw["vectorStoreReachable"])
	})
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubManager{}, 0)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
