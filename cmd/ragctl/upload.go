package main

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// UploadResponse matches internal/document UploadResponse
type UploadResponse struct {
	Success      bool     `json:"success"`
	ChunksStored int      `json:"chunks_stored"`
	DocumentIDs  []string `json:"document_ids"`
	Error        string   `json:"error,omitempty"`
}

// uploadCmd sends a file to the server for chunking and storage
var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload files for chunking and storage",
	Long: `Upload one or more files to the ragd server. Each file is split
into chunks, embedded, and stored in the vector store.

Examples:
  # Upload a single file
  ragctl upload notes.txt

  # Upload several files
  ragctl upload docs/*.md

  # Use a different server
  ragctl upload --server http://localhost:8080 notes.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

func runUpload(cmd *cobra.Command, args []string) error {
	client := newHTTPClient()

	var failed int
	for _, path := range args {
		resp, err := uploadFile(client, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", path, err)
			failed++
			continue
		}
		fmt.Printf("Stored %s: %d chunk(s)\n", filepath.Base(path), resp.ChunksStored)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d upload(s) failed", failed, len(args))
	}
	return nil
}

func uploadFile(client *http.Client, path string) (*UploadResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing form: %w", err)
	}

	url := fmt.Sprintf("%s/upload", serverURL)
	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request to %s: %w", url, err)
	}

	var uploadResp UploadResponse
	if err := decodeResponse(resp, &uploadResp); err != nil {
		return nil, err
	}

	return &uploadResp, nil
}
