// Ragd is a document ingestion and retrieval daemon.
//
// It accepts file uploads over HTTP, splits them into overlapping chunks,
// embeds the chunks, and stores the vectors in Qdrant or a local chromem
// database. Stored chunks are searched by similarity with POST /retrieve.
//
// Usage:
//
//	# Start with defaults (qdrant at localhost:6334, TEI at localhost:8080)
//	ragd
//
//	# Point at a config file
//	ragd -config ./config.yaml
//
// Configuration also comes from RAGD_* environment variables and, for
// local development, a .env file in the working directory. See
// internal/config for the full reference.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	httpserver "github.com/fyrsmithlabs/ragd/internal/http"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/processor"
	"github.com/fyrsmithlabs/ragd/internal/storage"
	"github.com/fyrsmithlabs/ragd/internal/telemetry"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/ragd/config.yaml)")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ragd %s (commit %s, built %s)\n", version, gitCommit, buildDate)
		return
	}

	// Load .env if present, for local development credentials.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the daemon together and blocks until the context is
// cancelled or the server fails.
//
// Startup order:
//  1. Load and validate configuration
//  2. Initialize telemetry and the structured logger
//  3. Build the processing pipeline (processor, embeddings, vector store)
//  4. Verify the collection matches the embedding model
//  5. Start the HTTP server
//
// An unreachable vector store does not block startup; the daemon serves
// in a degraded state and reports it on /health. A collection whose
// stored vector width disagrees with the embedding model is fatal.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tel, err := telemetry.New(ctx, &cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	logger, err := logging.NewLogger(&cfg.Logging, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info(ctx, "ragd starting",
		zap.String("version", version),
		zap.String("address", cfg.Server.Address()),
		zap.String("vectorstore", cfg.VectorStore.Backend),
		zap.String("embeddings_provider", cfg.Embeddings.Provider),
		zap.String("embeddings_model", cfg.Embeddings.Model),
	)

	proc, err := processor.New(processor.Config{
		MaxFileSizeMB:     cfg.Processor.MaxFileSizeMB,
		AllowedExtensions: processor.ParseExtensions(cfg.Processor.AllowedExtensions),
		ChunkSize:         cfg.Processor.ChunkSize,
		ChunkOverlap:      cfg.Processor.ChunkOverlap,
		Separator:         cfg.Processor.Separator,
	})
	if err != nil {
		return fmt.Errorf("initializing processor: %w", err)
	}

	provider, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider:       cfg.Embeddings.Provider,
		Model:          cfg.Embeddings.Model,
		BaseURL:        cfg.Embeddings.BaseURL,
		APIKey:         cfg.Embeddings.APIKey.Value(),
		RequestTimeout: cfg.Embeddings.RequestTimeout.Duration(),
		RateLimit:      cfg.Embeddings.RateLimit,
		RateBurst:      cfg.Embeddings.RateBurst,
		Dimension:      cfg.Embeddings.Dimension,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing embedding provider: %w", err)
	}
	defer func() { _ = provider.Close() }()

	store, err := vectorstore.NewStore(&cfg.VectorStore, provider.Dimension(), logger)
	if err != nil {
		return fmt.Errorf("initializing vector store: %w", err)
	}
	defer func() { _ = store.Close() }()

	// A collection holding vectors of a different width than the model
	// produces cannot be recovered at runtime, so refuse to start. Any
	// other failure here leaves the daemon serving degraded until the
	// store comes back.
	if err := store.EnsureCollection(ctx, cfg.VectorStore.Collection, provider.Dimension()); err != nil {
		if errors.Is(err, vectorstore.ErrCollectionMismatch) {
			return fmt.Errorf("verifying collection: %w", err)
		}
		logger.Warn(ctx, "collection not verified, continuing degraded",
			zap.String("collection", cfg.VectorStore.Collection),
			zap.Error(err))
	} else {
		logger.Info(ctx, "collection ready",
			zap.String("collection", cfg.VectorStore.Collection),
			zap.Int("dimension", provider.Dimension()))
	}

	manager, err := storage.New(proc, provider, store, logger)
	if err != nil {
		return fmt.Errorf("initializing storage manager: %w", err)
	}

	srv, err := httpserver.NewServer(manager, cfg.Server, int64(proc.MaxFileSizeBytes()), logger)
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	if cfg.Server.Reload {
		stopWatcher, err := watchConfig(ctx, configPath, logger)
		if err != nil {
			logger.Warn(ctx, "config reload disabled", zap.Error(err))
		} else {
			defer stopWatcher()
		}
	}

	if err := srv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info(ctx, "ragd stopped")
	return nil
}

// watchConfig re-reads the config file when it changes on disk and
// hot-applies the log level. Other settings need a restart.
func watchConfig(ctx context.Context, configPath string, logger *logging.Logger) (func(), error) {
	path, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}

	watcher, err := config.NewWatcher(path)
	if err != nil {
		return nil, err
	}
	if err := watcher.Start(ctx); err != nil {
		watcher.Stop()
		return nil, err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events():
				if !ok {
					return
				}
				cfg, err := config.LoadWithFile(event.Path)
				if err != nil {
					logger.Warn(ctx, "config reload failed", zap.Error(err))
					continue
				}
				logger.SetLevel(cfg.Logging.Level)
				logger.Info(ctx, "config reloaded",
					zap.String("log_level", cfg.Logging.Level.String()))
			}
		}
	}()

	logger.Info(ctx, "watching config file", zap.String("path", path))
	return watcher.Stop, nil
}

// resolveConfigPath mirrors the default used by config.LoadWithFile so
// the watcher observes the same file the loader read.
func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "ragd", "config.yaml"), nil
}
