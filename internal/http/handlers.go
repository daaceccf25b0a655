package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/document"
	"github.com/fyrsmithlabs/ragd/internal/processor"
	"github.com/fyrsmithlabs/ragd/internal/storage"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// RetrieveRequest is the body for POST /retrieve. TopK is a pointer so
// an omitted value takes the default while an explicit zero asks for no
// results.
type RetrieveRequest struct {
	Query  string         `json:"query"`
	TopK   *int           `json:"topK"`
	Filter map[string]any `json:"filter,omitempty"`
}

// genericError is what clients see for downstream failures. The detail
// goes to the logs only.
const genericError = "internal server error"

func (s *Server) handleUpload(c echo.Context) error {
	ctx := c.Request().Context()

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, document.UploadResponse{
			Success: false,
			Error:   `multipart field "file" is required`,
		})
	}

	filename := filepath.Base(fileHeader.Filename)
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return c.JSON(http.StatusBadRequest, document.UploadResponse{
			Success: false,
			Error:   "uploaded file needs a filename",
		})
	}

	src, err := fileHeader.Open()
	if err != nil {
		s.logger.Error(ctx, "opening multipart file failed",
			zap.String("filename", filename),
			zap.Error(err),
		)
		return c.JSON(http.StatusInternalServerError, document.UploadResponse{
			Success: false,
			Error:   genericError,
		})
	}
	defer src.Close()

	// Read one byte past the limit at most: enough to distinguish "too
	// large" without buffering an arbitrarily big upload.
	data, err := io.ReadAll(io.LimitReader(src, s.maxUploadBytes+1))
	if err != nil {
		s.logger.Error(ctx, "reading upload failed",
			zap.String("filename", filename),
			zap.Error(err),
		)
		return c.JSON(http.StatusInternalServerError, document.UploadResponse{
			Success: false,
			Error:   genericError,
		})
	}
	if int64(len(data)) > s.maxUploadBytes {
		return c.JSON(http.StatusBadRequest, document.UploadResponse{
			Success: false,
			Error:   fmt.Sprintf("file %s exceeds the maximum size of %d bytes", filename, s.maxUploadBytes),
		})
	}

	resp, err := s.manager.Store(ctx, data, filename)
	if err != nil {
		if errors.Is(err, processor.ErrValidation) {
			return c.JSON(http.StatusBadRequest, document.UploadResponse{
				Success: false,
				Error:   err.Error(),
			})
		}
		s.logger.Error(ctx, "upload failed",
			zap.String("filename", filename),
			zap.Error(err),
		)
		return c.JSON(http.StatusInternalServerError, document.UploadResponse{
			Success: false,
			Error:   genericError,
		})
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRetrieve(c echo.Context) error {
	ctx := c.Request().Context()

	var req RetrieveRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, document.RetrieveResponse{
			Success: false,
			Results: []document.QueryResult{},
			Error:   "invalid request body",
		})
	}
	if strings.TrimSpace(req.Query) == "" {
		return c.JSON(http.StatusBadRequest, document.RetrieveResponse{
			Success: false,
			Results: []document.QueryResult{},
			Error:   "query field is required",
		})
	}
	if err := vectorstore.ValidateFilter(req.Filter); err != nil {
		return c.JSON(http.StatusBadRequest, document.RetrieveResponse{
			Success: false,
			Query:   req.Query,
			Results: []document.QueryResult{},
			Error:   err.Error(),
		})
	}

	topK := storage.DefaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}

	resp := s.manager.Retrieve(ctx, req.Query, topK, req.Filter)
	status := http.StatusOK
	if !resp.Success {
		status = http.StatusInternalServerError
	}
	return c.JSON(status, resp)
}

func (s *Server) handleDelete(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, document.DeleteResponse{
			Success: false,
			Error:   "document id required",
		})
	}

	if err := s.manager.Delete(ctx, id); err != nil {
		s.logger.Error(ctx, "delete failed",
			zap.String("document_id", id),
			zap.Error(err),
		)
		return c.JSON(http.StatusInternalServerError, document.DeleteResponse{
			Success:    false,
			DocumentID: id,
			Error:      genericError,
		})
	}

	return c.JSON(http.StatusOK, document.DeleteResponse{
		Success:    true,
		DocumentID: id,
	})
}

func (s *Server) handleStats(c echo.Context) error {
	ctx := c.Request().Context()

	resp, err := s.manager.Stats(ctx)
	if err != nil {
		s.logger.Error(ctx, "stats failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, document.StatsResponse{
			Success: false,
			Error:   genericError,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, s.manager.HealthCheck(c.Request().Context()))
}
