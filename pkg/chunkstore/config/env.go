package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// WithEnv applies environment variable overrides using the provided prefix.
//
// Environment variable mapping:
//
//	PORT           - Server port (default: "8080")
//	ENVIRONMENT    - Runtime environment (default: "development")
//	MAX_CHUNK_SIZE - Default chunk size in bytes (default: 1 GiB)
//	DATABASE_URL   - Catalog database, "memory" (default) or "postgres://..."
//	DB_SCHEMA      - Postgres schema of the catalog table
//	STORAGE_URL    - Storage connection string, one of:
//	                 "memory://" (default)
//	                 "file:///path/to/data"
//	                 "s3://bucket?region=us-east-1&endpoint=http://localhost:9000&path_style=true"
//
// S3 credentials are read from AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY
// when set, otherwise the default AWS credential chain applies.
func WithEnv(prefix string) Option {
	return func(c *ServerConfig) error {
		if v, ok := lookupEnv(prefix, "PORT"); ok && v != "" {
			c.Port = v
		}
		if v, ok := lookupEnv(prefix, "ENVIRONMENT"); ok && v != "" {
			c.Environment = v
		}
		if v, ok, err := parseInt64Env(prefix, "MAX_CHUNK_SIZE"); err != nil {
			return err
		} else if ok {
			c.MaxChunkSize = v
		}
		if v, ok := lookupEnv(prefix, "DB_SCHEMA"); ok {
			c.DBSchema = v
		}

		if err := applyDatabaseEnv(prefix, c); err != nil {
			return err
		}
		return applyStorageEnv(prefix, c)
	}
}

// applyDatabaseEnv applies database configuration from environment
func applyDatabaseEnv(prefix string, c *ServerConfig) error {
	dbURL, hasURL := lookupEnv(prefix, "DATABASE_URL")

	if !hasURL || dbURL == "" || dbURL == "memory" {
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
		return nil
	}

	if strings.HasPrefix(dbURL, "postgresql://") || strings.HasPrefix(dbURL, "postgres://") {
		c.DatabaseType = "postgres"
		c.DatabaseURL = dbURL
		return nil
	}
	return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgresql://...')", dbURL)
}

// applyStorageEnv applies storage configuration from environment
func applyStorageEnv(prefix string, c *ServerConfig) error {
	storageURL, hasURL := lookupEnv(prefix, "STORAGE_URL")

	if !hasURL || storageURL == "" || storageURL == "memory" || storageURL == "memory://" {
		c.DefaultStorageBackend = "memory"
		c.StorageBackends = upsertStorageBackend(c.StorageBackends, StorageBackendConfig{Name: "memory", Type: "memory"})
		return nil
	}

	switch {
	case strings.HasPrefix(storageURL, "file://"):
		return applyFilesystemStorage(storageURL, c)
	case strings.HasPrefix(storageURL, "s3://"):
		return applyS3Storage(storageURL, c)
	}
	return fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', or 's3://...')", storageURL)
}

// applyFilesystemStorage configures filesystem storage from URL
// Format: file:///path/to/data
func applyFilesystemStorage(storageURL string, c *ServerConfig) error {
	path := strings.TrimPrefix(storageURL, "file://")
	if path == "" {
		return fmt.Errorf("filesystem path cannot be empty in STORAGE_URL")
	}

	c.DefaultStorageBackend = "fs"
	c.StorageBackends = upsertStorageBackend(c.StorageBackends, StorageBackendConfig{
		Name: "fs",
		Type: "fs",
		Config: map[string]interface{}{
			"base_dir": path,
		},
	})
	return nil
}

// applyS3Storage configures S3 storage from URL
// Format: s3://bucket?region=us-east-1&endpoint=http://localhost:9000
func applyS3Storage(storageURL string, c *ServerConfig) error {
	u, err := url.Parse(storageURL)
	if err != nil {
		return fmt.Errorf("invalid STORAGE_URL: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("S3 bucket name cannot be empty in STORAGE_URL")
	}

	backend := StorageBackendConfig{
		Name: "s3",
		Type: "s3",
		Config: map[string]interface{}{
			"bucket": u.Host,
			"region": "us-east-1",
		},
	}

	query := u.Query()
	if v := query.Get("region"); v != "" {
		backend.Config["region"] = v
	}
	if v := query.Get("endpoint"); v != "" {
		backend.Config["endpoint"] = v
	}
	if v := query.Get("path_style"); v != "" {
		backend.Config["use_path_style"] = v
	}
	if v := query.Get("part_size"); v != "" {
		backend.Config["part_size"] = v
	}
	if v := query.Get("create_bucket"); v != "" {
		backend.Config["create_bucket_if_not_exist"] = v
	}

	if accessKey, ok := os.LookupEnv("AWS_ACCESS_KEY_ID"); ok && accessKey != "" {
		backend.Config["access_key_id"] = accessKey
	}
	if secretKey, ok := os.LookupEnv("AWS_SECRET_ACCESS_KEY"); ok && secretKey != "" {
		backend.Config["secret_access_key"] = secretKey
	}
	if region, ok := os.LookupEnv("AWS_REGION"); ok && region != "" && query.Get("region") == "" {
		backend.Config["region"] = region
	}

	c.DefaultStorageBackend = "s3"
	c.StorageBackends = upsertStorageBackend(c.StorageBackends, backend)
	return nil
}

func lookupEnv(prefix, key string) (string, bool) {
	return os.LookupEnv(prefix + key)
}

func parseInt64Env(prefix, key string) (int64, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return 0, false, nil
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid integer for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}
