package vectorstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/logging"
)

// NewStore creates a Store from configuration. The dimension comes from
// the embedding provider rather than the config so the store and the model
// cannot drift apart.
func NewStore(cfg *config.VectorStoreConfig, dimension int, logger *logging.Logger) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	switch cfg.Backend {
	case config.BackendQdrant:
		if cfg.APIKey.Value() != "" && !cfg.UseTLS {
			logger.Warn(context.Background(), "qdrant api key sent over plaintext connection, enable tls for production",
				zap.String("host", cfg.Host))
		}
		return NewQdrantStore(QdrantConfig{
			Host:           cfg.Host,
			Port:           cfg.Port,
			APIKey:         cfg.APIKey.Value(),
			UseTLS:         cfg.UseTLS,
			Collection:     cfg.Collection,
			Dimension:      dimension,
			RequestTimeout: cfg.RequestTimeout.Duration(),
			DialTimeout:    cfg.DialTimeout.Duration(),
			MaxMessageSize: cfg.MaxMessageSize,
		})
	case config.BackendChromem:
		return NewChromemStore(ChromemConfig{
			Path:       cfg.Path,
			Compress:   cfg.Compress,
			Collection: cfg.Collection,
			Dimension:  dimension,
		})
	default:
		return nil, fmt.Errorf("%w: unknown backend %q (supported: %s, %s)",
			ErrInvalidConfig, cfg.Backend, config.BackendQdrant, config.BackendChromem)
	}
}
