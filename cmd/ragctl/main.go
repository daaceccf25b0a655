// Package main implements the ragctl CLI for manual operations against a
// ragd server.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the ragd HTTP server
	serverURL string
	// version information (set via ldflags during build)
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "CLI for ragd document storage and retrieval",
	Long: `ragctl is a command-line interface for a running ragd server.
It uploads documents, searches stored chunks, and inspects server state.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8000", "ragd server URL")
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(retrieveCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(healthCmd)
}

// DeleteResponse matches internal/document DeleteResponse
type DeleteResponse struct {
	Success    bool   `json:"success"`
	DocumentID string `json:"document_id"`
	Error      string `json:"error,omitempty"`
}

// StatsResponse matches internal/document StatsResponse
type StatsResponse struct {
	Success       bool   `json:"success"`
	Collection    string `json:"collection"`
	DocumentCount uint64 `json:"document_count"`
	Dimension     int    `json:"dimension"`
	Error         string `json:"error,omitempty"`
}

// HealthResponse matches internal/document HealthResponse
type HealthResponse struct {
	Status               string `json:"status"`
	VectorStoreReachable bool   `json:"vectorStoreReachable"`
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// decodeResponse reads a JSON body into out, turning non-2xx statuses
// into errors that carry the body for context.
func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

// deleteCmd removes a stored chunk by ID
var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Delete a stored chunk by ID",
	Long: `Delete a single stored chunk from the vector store.

Examples:
  # Delete one chunk
  ragctl delete report.txt-3

  # Use a different server
  ragctl delete --server http://localhost:8080 report.txt-3`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

// statsCmd shows collection statistics
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show collection statistics",
	RunE:  runStats,
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check ragd server health",
	Long: `Check the health status of the ragd HTTP server and its vector store.

Examples:
  # Check health
  ragctl health

  # Check health on a different server
  ragctl health --server http://localhost:8080`,
	RunE: runHealth,
}

func runDelete(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/documents/%s", serverURL, args[0])

	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := newHTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("sending request to %s: %w", url, err)
	}

	var deleteResp DeleteResponse
	if err := decodeResponse(resp, &deleteResp); err != nil {
		return err
	}

	fmt.Printf("Deleted: %s\n", deleteResp.DocumentID)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/stats", serverURL)

	resp, err := newHTTPClient().Get(url)
	if err != nil {
		return fmt.Errorf("sending request to %s: %w", url, err)
	}

	var statsResp StatsResponse
	if err := decodeResponse(resp, &statsResp); err != nil {
		return err
	}

	fmt.Printf("Collection: %s\n", statsResp.Collection)
	fmt.Printf("Documents:  %d\n", statsResp.DocumentCount)
	fmt.Printf("Dimension:  %d\n", statsResp.Dimension)
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/health", serverURL)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to connect to %s: %v\n", url, err)
		return err
	}

	var healthResp HealthResponse
	if err := decodeResponse(resp, &healthResp); err != nil {
		return err
	}

	fmt.Printf("Server Status:      %s\n", healthResp.Status)
	fmt.Printf("Vector Store:       %v\n", healthResp.VectorStoreReachable)
	fmt.Printf("Server URL:         %s\n", serverURL)
	return nil
}
