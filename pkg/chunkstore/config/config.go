package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duracloud/duracloud-sub013/pkg/chunkstore"
	memorycatalog "github.com/duracloud/duracloud-sub013/pkg/chunkstore/catalog/memory"
	pgcatalog "github.com/duracloud/duracloud-sub013/pkg/chunkstore/catalog/postgres"
	fsstorage "github.com/duracloud/duracloud-sub013/pkg/chunkstore/storage/fs"
	memorystorage "github.com/duracloud/duracloud-sub013/pkg/chunkstore/storage/memory"
	s3storage "github.com/duracloud/duracloud-sub013/pkg/chunkstore/storage/s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:                  "8080",
		Environment:           "development",
		MaxChunkSize:          chunkstore.DefaultMaxChunkSize,
		DatabaseType:          "memory",
		DBSchema:              "chunkstore",
		DefaultStorageBackend: "memory",
		StorageBackends: []StorageBackendConfig{
			{
				Name:   "memory",
				Type:   "memory",
				Config: map[string]interface{}{},
			},
		},
	}
}

// ServerConfig represents the configuration of a chunkstore service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// MaxChunkSize is the default chunk size in bytes
	MaxChunkSize int64

	// Catalog database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string // Postgres schema to use (default: chunkstore)

	// Storage configuration
	DefaultStorageBackend string
	StorageBackends       []StorageBackendConfig

	Logger *slog.Logger
}

// StorageBackendConfig represents configuration for a storage backend
type StorageBackendConfig struct {
	Name   string
	Type   string // "memory", "fs", "s3"
	Config map[string]interface{}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.MaxChunkSize <= 0 {
		return fmt.Errorf("max_chunk_size must be positive, got %d", c.MaxChunkSize)
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}

	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	if _, err := c.defaultBackend(); err != nil {
		return err
	}
	return nil
}

func (c *ServerConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *ServerConfig) defaultBackend() (StorageBackendConfig, error) {
	for _, backend := range c.StorageBackends {
		if backend.Name == c.DefaultStorageBackend {
			return backend, nil
		}
	}
	return StorageBackendConfig{}, fmt.Errorf("default storage backend '%s' not found in configured backends", c.DefaultStorageBackend)
}

// BuildService creates a Service over the default storage backend, recording
// chunked items in the configured catalog.
func (c *ServerConfig) BuildService(ctx context.Context) (chunkstore.Service, error) {
	store, err := c.BuildStore()
	if err != nil {
		return nil, err
	}

	catalog, err := c.BuildCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog: %w", err)
	}

	return chunkstore.New(
		chunkstore.WithStore(store),
		chunkstore.WithCatalog(catalog),
		chunkstore.WithMaxChunkSize(c.MaxChunkSize),
		chunkstore.WithLogger(c.logger()),
	)
}

// BuildStore creates the default storage backend
func (c *ServerConfig) BuildStore() (chunkstore.Store, error) {
	backend, err := c.defaultBackend()
	if err != nil {
		return nil, err
	}
	store, err := c.buildStorageBackend(backend)
	if err != nil {
		return nil, fmt.Errorf("failed to build storage backend %s: %w", backend.Name, err)
	}
	return store, nil
}

// BuildCatalog creates the catalog and, for Postgres, makes sure its table exists
func (c *ServerConfig) BuildCatalog(ctx context.Context) (chunkstore.Catalog, error) {
	switch c.DatabaseType {
	case "memory":
		return memorycatalog.New(), nil
	case "postgres":
		pool, err := newPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, err
		}
		catalog := pgcatalog.NewWithPool(pool)
		if err := catalog.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return catalog, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

func newPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("database_url is required for postgres")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", pgx.Identifier{schema}.Sanitize()))
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return pool, nil
}

// PingPostgres verifies connectivity to Postgres with the schema on the search path.
func PingPostgres(databaseURL, schema string) error {
	pool, err := newPool(context.Background(), databaseURL, schema)
	if err != nil {
		return err
	}
	defer pool.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// buildStorageBackend creates a Store based on the backend configuration
func (c *ServerConfig) buildStorageBackend(config StorageBackendConfig) (chunkstore.Store, error) {
	switch config.Type {
	case "memory":
		return memorystorage.New(), nil

	case "fs":
		return fsstorage.New(fsstorage.Config{
			BaseDir: getString(config.Config, "base_dir", "./data/chunks"),
		})

	case "s3":
		return s3storage.New(s3storage.Config{
			Region:                 getString(config.Config, "region", "us-east-1"),
			Bucket:                 getString(config.Config, "bucket", ""),
			AccessKeyID:            getString(config.Config, "access_key_id", ""),
			SecretAccessKey:        getString(config.Config, "secret_access_key", ""),
			Endpoint:               getString(config.Config, "endpoint", ""),
			UseSSL:                 getBool(config.Config, "use_ssl", true),
			UsePathStyle:           getBool(config.Config, "use_path_style", false),
			PartSize:               getInt64(config.Config, "part_size", 0),
			EnableSSE:              getBool(config.Config, "enable_sse", false),
			SSEAlgorithm:           getString(config.Config, "sse_algorithm", "AES256"),
			SSEKMSKeyID:            getString(config.Config, "sse_kms_key_id", ""),
			CreateBucketIfNotExist: getBool(config.Config, "create_bucket_if_not_exist", false),
			Logger:                 c.logger(),
		})

	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", config.Type)
	}
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
		if str, ok := value.(string); ok {
			if b, err := strconv.ParseBool(str); err == nil {
				return b
			}
		}
	}
	return defaultValue
}

func getInt64(config map[string]interface{}, key string, defaultValue int64) int64 {
	if value, exists := config[key]; exists {
		switch v := value.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		case string:
			if i, err := strconv.ParseInt(v, 10, 64); err == nil {
				return i
			}
		}
	}
	return defaultValue
}
