// Package processor turns uploaded files into embedding-ready document
// chunks. It validates the raw upload (extension allow-list, size cap,
// non-empty content), extracts text with a format-specific loader, and
// splits the text into overlapping chunks sized for the embedding model.
//
// Processing is a pure transformation: the processor never talks to the
// network and never mutates its inputs, so a single instance is safe for
// concurrent use.
package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/fyrsmithlabs/ragd/internal/document"
)

// Validation errors. ErrValidation is the umbrella sentinel: every
// rejection of caller input wraps it, so transport layers can map the
// whole family to a 400 with a single errors.Is check.
var (
	ErrValidation        = errors.New("validation failed")
	ErrUnsupportedFormat = fmt.Errorf("%w: unsupported file format", ErrValidation)
	ErrFileTooLarge      = fmt.Errorf("%w: file too large", ErrValidation)
	ErrEmptyFile         = fmt.Errorf("%w: empty file", ErrValidation)
	ErrNoContent         = fmt.Errorf("%w: no extractable content", ErrValidation)

	ErrInvalidConfig = errors.New("invalid processor config")
)

// defaultExtensions matches the server's default allow-list.
var defaultExtensions = []string{".txt", ".md", ".pdf", ".csv", ".html", ".htm", ".json", ".xml"}

const (
	defaultMaxFileSizeMB = 10
	defaultChunkSize     = 1000
	defaultChunkOverlap  = 200
	defaultSeparator     = "\n"
)

// Config holds processing limits and chunking parameters.
type Config struct {
	// MaxFileSizeMB caps the uploaded file size. Files at exactly the
	// cap are accepted; one byte over is rejected.
	MaxFileSizeMB int

	// AllowedExtensions is the lower-case extension allow-list,
	// including the leading dot.
	AllowedExtensions []string

	// ChunkSize is the target chunk length in characters.
	ChunkSize int

	// ChunkOverlap is the number of characters shared between adjacent
	// chunks. Must be smaller than ChunkSize.
	ChunkOverlap int

	// Separator is the preferred split boundary. When no separator
	// falls inside the window the splitter cuts at the size limit.
	Separator string
}

// ApplyDefaults fills unset fields with production defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxFileSizeMB == 0 {
		c.MaxFileSizeMB = defaultMaxFileSizeMB
	}
	if len(c.AllowedExtensions) == 0 {
		c.AllowedExtensions = append([]string(nil), defaultExtensions...)
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = defaultChunkOverlap
	}
	if c.Separator == "" {
		c.Separator = defaultSeparator
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MaxFileSizeMB <= 0 {
		return fmt.Errorf("%w: max file size must be positive, got %d", ErrInvalidConfig, c.MaxFileSizeMB)
	}
	if len(c.AllowedExtensions) == 0 {
		return fmt.Errorf("%w: allowed extensions list is empty", ErrInvalidConfig)
	}
	for _, ext := range c.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("%w: extension %q must start with a dot", ErrInvalidConfig, ext)
		}
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("%w: chunk overlap must be non-negative, got %d", ErrInvalidConfig, c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d", ErrInvalidConfig, c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// ParseExtensions normalizes a comma-separated extension list into the
// form Config.AllowedExtensions expects: lower-case, leading dot, no
// surrounding whitespace. Empty entries are dropped.
func ParseExtensions(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, ".") {
			p = "." + p
		}
		out = append(out, p)
	}
	return out
}

// Processor validates, extracts, and chunks uploaded files.
type Processor struct {
	config   Config
	allowed  map[string]struct{}
	splitter textsplitter.RecursiveCharacter
}

// New creates a Processor. Defaults are applied to unset config fields
// before validation.
func New(config Config) (*Processor, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	allowed := make(map[string]struct{}, len(config.AllowedExtensions))
	for _, ext := range config.AllowedExtensions {
		allowed[strings.ToLower(ext)] = struct{}{}
	}

	// The empty-string fallback forces a hard cut at the size limit
	// when the configured separator never appears in the window.
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(config.ChunkSize),
		textsplitter.WithChunkOverlap(config.ChunkOverlap),
		textsplitter.WithSeparators([]string{config.Separator, ""}),
	)

	return &Processor{
		config:   config,
		allowed:  allowed,
		splitter: splitter,
	}, nil
}

// MaxFileSizeBytes reports the configured size cap in bytes.
func (p *Processor) MaxFileSizeBytes() int {
	return p.config.MaxFileSizeMB * 1024 * 1024
}

// Process validates fileBytes against the configured limits, extracts
// its text, and returns the resulting chunks as documents ready for
// embedding. Chunk indices in the returned metadata are contiguous and
// zero-based across the whole file, including multi-page formats.
//
// All rejections of caller input wrap ErrValidation. Documents are
// returned without embeddings; the caller attaches them after the
// embedding step.
func (p *Processor) Process(ctx context.Context, fileBytes []byte, filename string) ([]document.Document, error) {
	if err := p.validateFile(fileBytes, filename); err != nil {
		return nil, err
	}

	sources, err := p.extract(ctx, fileBytes, filename)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrValidation, filename, err)
	}

	uploadedAt := time.Now().UTC().Format(time.RFC3339)

	var docs []document.Document
	chunkIndex := 0
	for _, src := range sources {
		chunks, err := p.splitter.SplitText(src.PageContent)
		if err != nil {
			return nil, fmt.Errorf("splitting %s: %w", filename, err)
		}
		for _, chunk := range chunks {
			if strings.TrimSpace(chunk) == "" {
				continue
			}
			meta := map[string]any{
				document.MetaFilename:   filename,
				document.MetaChunkIndex: chunkIndex,
				document.MetaUploadedAt: uploadedAt,
			}
			if page, ok := src.Metadata[document.MetaPage]; ok {
				meta[document.MetaPage] = page
			}
			if total, ok := src.Metadata[document.MetaTotalPages]; ok {
				meta[document.MetaTotalPages] = total
			}
			docs = append(docs, document.Document{
				ID:       chunkID(filename, chunkIndex),
				Filename: filename,
				Content:  chunk,
				Metadata: meta,
			})
			chunkIndex++
		}
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoContent, filename)
	}
	return docs, nil
}

// chunkID derives a stable UUID from the source filename and chunk
// position. Re-uploading a file therefore yields the same IDs and the
// upsert replaces the previous version instead of accumulating
// duplicates. When a new version has fewer chunks than the old one the
// surplus tail chunks remain until deleted explicitly.
func chunkID(filename string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s#%d", filename, index))).String()
}

func (p *Processor) validateFile(fileBytes []byte, filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := p.allowed[ext]; !ok {
		return fmt.Errorf("%w: %q (%s)", ErrUnsupportedFormat, ext, filename)
	}
	if len(fileBytes) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyFile, filename)
	}
	if max := p.MaxFileSizeBytes(); len(fileBytes) > max {
		return fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrFileTooLarge, filename, len(fileBytes), max)
	}
	return nil
}

// extract picks a loader by extension and pulls the text out of the
// file. PDF pages arrive as separate source documents with page
// metadata; everything else is a single document.
func (p *Processor) extract(ctx context.Context, fileBytes []byte, filename string) ([]schema.Document, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	var loader documentloaders.Loader
	switch ext {
	case ".pdf":
		loader = documentloaders.NewPDF(bytes.NewReader(fileBytes), int64(len(fileBytes)))
	case ".csv":
		loader = documentloaders.NewCSV(bytes.NewReader(fileBytes))
	case ".html", ".htm":
		loader = documentloaders.NewHTML(bytes.NewReader(fileBytes))
	default:
		loader = documentloaders.NewText(bytes.NewReader(fileBytes))
	}

	return loader.Load(ctx)
}
