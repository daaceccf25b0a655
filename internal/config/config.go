// Package config provides configuration loading and validation for ragd.
//
// Configuration is loaded from YAML files with environment variable
// overrides (RAGD_ prefix). All sections carry defaults suitable for
// local development; Validate rejects configurations that cannot
// produce a working daemon.
package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// Config is the root configuration for the ragd daemon.
type Config struct {
	Server      ServerConfig      `koanf:"server" json:"server"`
	VectorStore VectorStoreConfig `koanf:"vectorstore" json:"vectorstore"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings" json:"embeddings"`
	Processor   ProcessorConfig   `koanf:"processor" json:"processor"`
	Logging     LoggingConfig     `koanf:"logging" json:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry" json:"telemetry"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string   `koanf:"host" json:"host"`
	Port            int      `koanf:"port" json:"port"`
	Reload          bool     `koanf:"reload" json:"reload"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout" json:"shutdown_timeout"`
}

// Address returns the host:port listen address.
func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	Backend        string   `koanf:"backend" json:"backend"`
	Host           string   `koanf:"host" json:"host"`
	Port           int      `koanf:"port" json:"port"`
	APIKey         Secret   `koanf:"api_key" json:"api_key"`
	UseTLS         bool     `koanf:"use_tls" json:"use_tls"`
	Collection     string   `koanf:"collection" json:"collection"`
	Path           string   `koanf:"path" json:"path"`
	Compress       bool     `koanf:"compress" json:"compress"`
	RequestTimeout Duration `koanf:"request_timeout" json:"request_timeout"`
	DialTimeout    Duration `koanf:"dial_timeout" json:"dial_timeout"`
	MaxMessageSize int      `koanf:"max_message_size" json:"max_message_size"`
}

// EmbeddingsConfig selects and configures the embedding provider.
// Dimension overrides the width inferred from the model name; leave it
// zero unless the model is unknown to the provider.
type EmbeddingsConfig struct {
	Provider       string   `koanf:"provider" json:"provider"`
	BaseURL        string   `koanf:"base_url" json:"base_url"`
	Model          string   `koanf:"model" json:"model"`
	APIKey         Secret   `koanf:"api_key" json:"api_key"`
	RequestTimeout Duration `koanf:"request_timeout" json:"request_timeout"`
	RateLimit      float64  `koanf:"rate_limit" json:"rate_limit"`
	RateBurst      int      `koanf:"rate_burst" json:"rate_burst"`
	Dimension      int      `koanf:"dimension" json:"dimension"`
}

// ProcessorConfig controls document validation and chunking.
type ProcessorConfig struct {
	MaxFileSizeMB     int    `koanf:"max_file_size_mb" json:"max_file_size_mb"`
	AllowedExtensions string `koanf:"allowed_extensions" json:"allowed_extensions"`
	ChunkSize         int    `koanf:"chunk_size" json:"chunk_size"`
	ChunkOverlap      int    `koanf:"chunk_overlap" json:"chunk_overlap"`
	Separator         string `koanf:"separator" json:"separator"`
}

// LoggingConfig controls structured logging output.
type LoggingConfig struct {
	Level      zapcore.Level     `koanf:"level" json:"level"`
	Format     string            `koanf:"format" json:"format"`
	Output     OutputConfig      `koanf:"output" json:"output"`
	Caller     CallerConfig      `koanf:"caller" json:"caller"`
	Stacktrace StacktraceConfig  `koanf:"stacktrace" json:"stacktrace"`
	Fields     map[string]string `koanf:"fields" json:"fields"`
}

// OutputConfig selects log sinks.
type OutputConfig struct {
	Stdout bool `koanf:"stdout" json:"stdout"`
	OTEL   bool `koanf:"otel" json:"otel"`
}

// CallerConfig controls caller annotation on log entries.
type CallerConfig struct {
	Enabled bool `koanf:"enabled" json:"enabled"`
	Skip    int  `koanf:"skip" json:"skip"`
}

// StacktraceConfig controls automatic stacktrace capture.
type StacktraceConfig struct {
	Level zapcore.Level `koanf:"level" json:"level"`
}

// TelemetryConfig controls OpenTelemetry trace and metric export.
type TelemetryConfig struct {
	Enabled        bool           `koanf:"enabled" json:"enabled"`
	Endpoint       string         `koanf:"endpoint" json:"endpoint"`
	Protocol       string         `koanf:"protocol" json:"protocol"`
	ServiceName    string         `koanf:"service_name" json:"service_name"`
	ServiceVersion string         `koanf:"service_version" json:"service_version"`
	Insecure       bool           `koanf:"insecure" json:"insecure"`
	TLSSkipVerify  bool           `koanf:"tls_skip_verify" json:"tls_skip_verify"`
	Sampling       SamplingConfig `koanf:"sampling" json:"sampling"`
	Metrics        MetricsConfig  `koanf:"metrics" json:"metrics"`
	Shutdown       ShutdownConfig `koanf:"shutdown" json:"shutdown"`
}

// SamplingConfig controls trace sampling.
type SamplingConfig struct {
	Rate float64 `koanf:"rate" json:"rate"`
}

// MetricsConfig controls metric export.
type MetricsConfig struct {
	Enabled        bool     `koanf:"enabled" json:"enabled"`
	ExportInterval Duration `koanf:"export_interval" json:"export_interval"`
}

// ShutdownConfig controls telemetry provider shutdown.
type ShutdownConfig struct {
	Timeout Duration `koanf:"timeout" json:"timeout"`
}

const (
	// BackendQdrant selects the Qdrant gRPC vector store.
	BackendQdrant = "qdrant"
	// BackendChromem selects the embedded chromem-go vector store.
	BackendChromem = "chromem"

	// ProviderTEI selects a text-embeddings-inference HTTP server.
	ProviderTEI = "tei"
	// ProviderOpenAI selects the OpenAI embeddings API.
	ProviderOpenAI = "openai"
)

// DefaultAllowedExtensions lists document formats accepted for upload.
const DefaultAllowedExtensions = ".txt,.md,.pdf,.csv,.html,.htm,.json,.xml"

// NewDefaultConfig returns a config with production-ready defaults.
// Load merges file and environment values over these.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		VectorStore: VectorStoreConfig{
			Backend:        BackendQdrant,
			Host:           "localhost",
			Port:           6334,
			Collection:     "documents",
			RequestTimeout: Duration(30 * time.Second),
			DialTimeout:    Duration(5 * time.Second),
			MaxMessageSize: 50 * 1024 * 1024,
		},
		Embeddings: EmbeddingsConfig{
			Provider:       ProviderTEI,
			BaseURL:        "http://localhost:8080",
			Model:          "BAAI/bge-small-en-v1.5",
			RequestTimeout: Duration(30 * time.Second),
			RateLimit:      10,
			RateBurst:      20,
		},
		Processor: ProcessorConfig{
			MaxFileSizeMB:     10,
			AllowedExtensions: DefaultAllowedExtensions,
			ChunkSize:         1000,
			ChunkOverlap:      200,
			Separator:         "\n",
		},
		Logging: LoggingConfig{
			Level:  zapcore.InfoLevel,
			Format: "json",
			Output: OutputConfig{
				Stdout: true,
				OTEL:   false,
			},
			Caller: CallerConfig{
				Enabled: true,
				Skip:    1,
			},
			Stacktrace: StacktraceConfig{
				Level: zapcore.ErrorLevel,
			},
			Fields: map[string]string{
				"service": "ragd",
			},
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			Endpoint:       "localhost:4317",
			Protocol:       "grpc",
			ServiceName:    "ragd",
			ServiceVersion: "0.1.0",
			Insecure:       true,
			Sampling:       SamplingConfig{Rate: 1.0},
			Metrics: MetricsConfig{
				Enabled:        true,
				ExportInterval: Duration(15 * time.Second),
			},
			Shutdown: ShutdownConfig{
				Timeout: Duration(5 * time.Second),
			},
		},
	}
}

// Validate checks the configuration for errors that would prevent the
// daemon from starting. It returns the first problem found.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive, got %s", c.Server.ShutdownTimeout.Duration())
	}

	switch c.VectorStore.Backend {
	case BackendQdrant:
		if c.VectorStore.Host == "" {
			return fmt.Errorf("vectorstore.host is required for backend %q", BackendQdrant)
		}
		if c.VectorStore.Port < 1 || c.VectorStore.Port > 65535 {
			return fmt.Errorf("vectorstore.port must be between 1 and 65535, got %d", c.VectorStore.Port)
		}
	case BackendChromem:
		// Path is optional: empty path selects the in-memory store.
	default:
		return fmt.Errorf("vectorstore.backend must be %q or %q, got %q", BackendQdrant, BackendChromem, c.VectorStore.Backend)
	}
	if err := validateCollectionName(c.VectorStore.Collection); err != nil {
		return fmt.Errorf("vectorstore.collection: %w", err)
	}
	if c.VectorStore.RequestTimeout.Duration() <= 0 {
		return fmt.Errorf("vectorstore.request_timeout must be positive, got %s", c.VectorStore.RequestTimeout.Duration())
	}
	if c.VectorStore.MaxMessageSize <= 0 {
		return fmt.Errorf("vectorstore.max_message_size must be positive, got %d", c.VectorStore.MaxMessageSize)
	}

	switch c.Embeddings.Provider {
	case ProviderTEI:
		if c.Embeddings.BaseURL == "" {
			return fmt.Errorf("embeddings.base_url is required for provider %q", ProviderTEI)
		}
	case ProviderOpenAI:
		if !c.Embeddings.APIKey.IsSet() {
			return fmt.Errorf("embeddings.api_key is required for provider %q", ProviderOpenAI)
		}
	default:
		return fmt.Errorf("embeddings.provider must be %q or %q, got %q", ProviderTEI, ProviderOpenAI, c.Embeddings.Provider)
	}
	if c.Embeddings.Model == "" {
		return fmt.Errorf("embeddings.model is required")
	}
	if c.Embeddings.RequestTimeout.Duration() <= 0 {
		return fmt.Errorf("embeddings.request_timeout must be positive, got %s", c.Embeddings.RequestTimeout.Duration())
	}
	if c.Embeddings.RateLimit < 0 {
		return fmt.Errorf("embeddings.rate_limit cannot be negative, got %f", c.Embeddings.RateLimit)
	}
	if c.Embeddings.Dimension < 0 {
		return fmt.Errorf("embeddings.dimension cannot be negative, got %d", c.Embeddings.Dimension)
	}

	if c.Processor.MaxFileSizeMB <= 0 {
		return fmt.Errorf("processor.max_file_size_mb must be positive, got %d", c.Processor.MaxFileSizeMB)
	}
	if c.Processor.ChunkSize <= 0 {
		return fmt.Errorf("processor.chunk_size must be positive, got %d", c.Processor.ChunkSize)
	}
	if c.Processor.ChunkOverlap < 0 {
		return fmt.Errorf("processor.chunk_overlap cannot be negative, got %d", c.Processor.ChunkOverlap)
	}
	if c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		return fmt.Errorf("processor.chunk_overlap (%d) must be less than chunk_size (%d)", c.Processor.ChunkOverlap, c.Processor.ChunkSize)
	}
	if c.Processor.AllowedExtensions == "" {
		return fmt.Errorf("processor.allowed_extensions cannot be empty")
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be \"json\" or \"console\", got %q", c.Logging.Format)
	}
	if !c.Logging.Output.Stdout && !c.Logging.Output.OTEL {
		return fmt.Errorf("logging requires at least one output (stdout or otel)")
	}
	if c.Logging.Caller.Skip < 0 {
		return fmt.Errorf("logging.caller.skip cannot be negative, got %d", c.Logging.Caller.Skip)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
		}
		if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http" {
			return fmt.Errorf("telemetry.protocol must be \"grpc\" or \"http\", got %q", c.Telemetry.Protocol)
		}
		if c.Telemetry.Sampling.Rate < 0 || c.Telemetry.Sampling.Rate > 1 {
			return fmt.Errorf("telemetry.sampling.rate must be between 0.0 and 1.0, got %f", c.Telemetry.Sampling.Rate)
		}
		if c.Telemetry.Insecure && !isLocalEndpoint(c.Telemetry.Endpoint) {
			return fmt.Errorf("telemetry.insecure is only allowed for local endpoints, got %q", c.Telemetry.Endpoint)
		}
	}

	return nil
}

// validateCollectionName enforces the naming rules shared by both
// vector store backends: lowercase alphanumerics and underscores,
// at most 64 characters.
func validateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("collection name cannot be empty")
	}
	if len(name) > 64 {
		return fmt.Errorf("collection name exceeds 64 characters: %d", len(name))
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return fmt.Errorf("collection name may only contain lowercase letters, digits, and underscores: %q", name)
		}
	}
	return nil
}

// isLocalEndpoint reports whether the endpoint points at localhost.
// Insecure (plaintext) export is only permitted for local collectors.
func isLocalEndpoint(endpoint string) bool {
	host := endpoint
	if i := strings.Index(endpoint, "://"); i >= 0 {
		host = endpoint[i+3:]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	switch host {
	case "localhost", "127.0.0.1", "::1", "0.0.0.0":
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
