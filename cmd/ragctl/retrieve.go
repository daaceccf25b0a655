package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var (
	retrieveTopK    int
	retrieveFilters []string
	retrieveRaw     bool
)

// RetrieveRequest matches internal/http RetrieveRequest
type RetrieveRequest struct {
	Query  string         `json:"query"`
	TopK   *int           `json:"topK,omitempty"`
	Filter map[string]any `json:"filter,omitempty"`
}

// RetrieveResponse matches internal/document RetrieveResponse
type RetrieveResponse struct {
	Success bool          `json:"success"`
	Query   string        `json:"query"`
	Results []QueryResult `json:"results"`
	Error   string        `json:"error,omitempty"`
}

// QueryResult matches internal/document QueryResult
type QueryResult struct {
	Document struct {
		ID       string         `json:"id"`
		Filename string         `json:"filename"`
		Content  string         `json:"content"`
		Metadata map[string]any `json:"metadata,omitempty"`
	} `json:"document"`
	Score float32 `json:"score"`
	Rank  int     `json:"rank"`
}

// retrieveCmd searches stored chunks by similarity
var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "Search stored chunks by similarity",
	Long: `Search the vector store for chunks similar to the query text.

Filters restrict results to chunks whose metadata matches exactly.
Values are matched as integers when they parse as integers, as booleans
for true/false, and as strings otherwise.

Examples:
  # Basic search
  ragctl retrieve "error handling in uploads"

  # More results
  ragctl retrieve --top-k 10 "chunking strategy"

  # Only chunks from one file
  ragctl retrieve --filter filename=notes.txt "meeting summary"

  # Raw JSON output
  ragctl retrieve --json "error handling"`,
	Args: cobra.ExactArgs(1),
	RunE: runRetrieve,
}

func init() {
	retrieveCmd.Flags().IntVar(&retrieveTopK, "top-k", 0, "number of results to return (server default when omitted)")
	retrieveCmd.Flags().StringArrayVar(&retrieveFilters, "filter", nil, "metadata filter as key=value (repeatable)")
	retrieveCmd.Flags().BoolVar(&retrieveRaw, "json", false, "print the raw JSON response")
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	reqBody := RetrieveRequest{Query: args[0]}

	if cmd.Flags().Changed("top-k") {
		reqBody.TopK = &retrieveTopK
	}

	filter, err := parseFilters(retrieveFilters)
	if err != nil {
		return err
	}
	reqBody.Filter = filter

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/retrieve", serverURL)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := newHTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("sending request to %s: %w", url, err)
	}

	var retrieveResp RetrieveResponse
	if err := decodeResponse(resp, &retrieveResp); err != nil {
		return err
	}

	if retrieveRaw {
		out, err := json.MarshalIndent(retrieveResp, "", "  ")
		if err != nil {
			return fmt.Errorf("formatting response: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	if len(retrieveResp.Results) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for _, r := range retrieveResp.Results {
		fmt.Printf("%d. [%.4f] %s (%s)\n", r.Rank, r.Score, r.Document.ID, r.Document.Filename)
		fmt.Printf("   %s\n", truncate(strings.ReplaceAll(r.Document.Content, "\n", " "), 120))
	}
	return nil
}

// parseFilters converts key=value pairs into the filter map sent to the
// server. Integer and boolean values are coerced so they match the
// typed metadata stored with each chunk.
func parseFilters(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	filter := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid filter %q: expected key=value", pair)
		}

		switch {
		case value == "true":
			filter[key] = true
		case value == "false":
			filter[key] = false
		default:
			if n, err := strconv.Atoi(value); err == nil {
				filter[key] = n
			} else {
				filter[key] = value
			}
		}
	}
	return filter, nil
}

// truncate shortens s to maxLen runes, ending with "..." when cut.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(runes[:maxLen-3]) + "..."
}
