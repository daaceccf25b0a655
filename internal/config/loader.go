package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix namespaces all ragd environment variables.
	EnvPrefix = "RAGD_"
)

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (RAGD_SERVER_PORT, RAGD_VECTORSTORE_HOST, etc.)
//  2. YAML config file (~/.config/ragd/config.yaml)
//  3. Built-in defaults
//
// The configPath parameter specifies the YAML file to load. If empty, the
// default path ~/.config/ragd/config.yaml is used.
//
// # Security Considerations
//
// File Permissions: the config file must have 0600 or 0400 permissions.
// World- or group-readable files are rejected because the file may carry
// API keys.
//
// Path Validation: only configuration files in allowed directories load:
//   - ~/.config/ragd/ (user config directory)
//   - /etc/ragd/ (system-wide config directory)
//   - the current working directory (local development)
//
// Symlinks are resolved before validation to prevent path traversal.
//
// File Size Limit: files larger than 1MB are rejected.
//
// # Environment Variable Mapping
//
// Variables are uppercased with an RAGD_ prefix. The first underscore
// after the prefix separates section from field:
//
//	RAGD_SERVER_PORT            -> server.port
//	RAGD_VECTORSTORE_COLLECTION -> vectorstore.collection
//	RAGD_EMBEDDINGS_API_KEY     -> embeddings.api_key
//	RAGD_PROCESSOR_CHUNK_SIZE   -> processor.chunk_size
//
// Nested subsections (logging.output, telemetry.sampling) are only
// reachable through the config file.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "ragd", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	// Load from YAML file if it exists.
	if _, err := os.Stat(configPath); err == nil {
		// Open once and validate through the file descriptor to avoid a
		// TOCTOU race between stat and read.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}

		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Override with environment variables. The first underscore after the
	// prefix splits section from field; field names keep their underscores.
	//
	//	RAGD_SERVER_SHUTDOWN_TIMEOUT -> server.shutdown_timeout
	//	RAGD_EMBEDDINGS_BASE_URL     -> embeddings.base_url
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Unmarshal over defaults so absent keys keep their default values.
	cfg := NewDefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// EnsureConfigDir creates the ragd config directory if it doesn't exist.
// The directory is created with 0700 permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "ragd")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	return nil
}

// validateConfigPath checks that the path is in an allowed directory.
// Validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Resolve symlinks so a link inside an allowed directory cannot point
	// outside it. If resolution fails the path may not exist yet; validate
	// the absolute path instead.
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "ragd"),
		"/etc/ragd",
	}
	if cwd, err := os.Getwd(); err == nil {
		allowedDirs = append(allowedDirs, cwd)
	}

	allowed := false
	for _, dir := range allowedDirs {
		if strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) || resolvedPath == dir {
			allowed = true
			break
		}
	}

	if !allowed {
		return fmt.Errorf("config file must be in ~/.config/ragd/, /etc/ragd/, or the working directory")
	}

	return nil
}

// validateConfigFileProperties checks file permissions and size.
// Takes FileInfo from an already-opened descriptor to avoid a TOCTOU race.
func validateConfigFileProperties(info os.FileInfo) error {
	// Windows has a different permission model; skip the check there.
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}
