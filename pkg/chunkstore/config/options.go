package config

import (
	"fmt"
	"log/slog"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithMaxChunkSize sets the default chunk size in bytes
func WithMaxChunkSize(size int64) Option {
	return func(c *ServerConfig) error {
		if size <= 0 {
			return fmt.Errorf("max chunk size must be positive, got: %d", size)
		}
		c.MaxChunkSize = size
		return nil
	}
}

// WithLogger sets the logger handed to the service
func WithLogger(logger *slog.Logger) Option {
	return func(c *ServerConfig) error {
		c.Logger = logger
		return nil
	}
}

// WithDatabase configures the catalog database
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if dbType != "memory" && dbType != "postgres" {
			return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithDefaultStorage sets the default storage backend name
func WithDefaultStorage(name string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			return fmt.Errorf("default storage backend name cannot be empty")
		}
		c.DefaultStorageBackend = name
		return nil
	}
}

// WithMemoryStorage adds a memory storage backend (for testing)
// If name is empty, defaults to "memory"
func WithMemoryStorage(name string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			name = "memory"
		}
		c.StorageBackends = upsertStorageBackend(c.StorageBackends, StorageBackendConfig{
			Name: name,
			Type: "memory",
		})
		return nil
	}
}

// WithFilesystemStorage adds a filesystem storage backend
// If name is empty, defaults to "fs"
func WithFilesystemStorage(name, baseDir string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			name = "fs"
		}
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.StorageBackends = upsertStorageBackend(c.StorageBackends, StorageBackendConfig{
			Name: name,
			Type: "fs",
			Config: map[string]interface{}{
				"base_dir": baseDir,
			},
		})
		return nil
	}
}

// WithS3Storage adds an S3 storage backend
// If name is empty, defaults to "s3"
func WithS3Storage(name, bucket, region string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			name = "s3"
		}
		if bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
		if region == "" {
			region = "us-east-1"
		}
		c.StorageBackends = upsertStorageBackend(c.StorageBackends, StorageBackendConfig{
			Name: name,
			Type: "s3",
			Config: map[string]interface{}{
				"bucket": bucket,
				"region": region,
			},
		})
		return nil
	}
}

// WithS3Credentials sets static credentials on an S3 backend added earlier
func WithS3Credentials(name, accessKeyID, secretAccessKey string) Option {
	return withS3Settings(name, map[string]interface{}{
		"access_key_id":     accessKeyID,
		"secret_access_key": secretAccessKey,
	})
}

// WithS3Endpoint points an S3 backend added earlier at an S3-compatible service
func WithS3Endpoint(name, endpoint string, usePathStyle bool) Option {
	return withS3Settings(name, map[string]interface{}{
		"endpoint":       endpoint,
		"use_path_style": usePathStyle,
	})
}

// WithS3PartSize sets the multipart upload part size of an S3 backend added earlier
func WithS3PartSize(name string, partSize int64) Option {
	return withS3Settings(name, map[string]interface{}{
		"part_size": partSize,
	})
}

func withS3Settings(name string, settings map[string]interface{}) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			name = "s3"
		}
		for i := range c.StorageBackends {
			if c.StorageBackends[i].Name == name && c.StorageBackends[i].Type == "s3" {
				for k, v := range settings {
					c.StorageBackends[i].Config[k] = v
				}
				return nil
			}
		}
		return fmt.Errorf("S3 storage backend '%s' not configured", name)
	}
}

func upsertStorageBackend(backends []StorageBackendConfig, backend StorageBackendConfig) []StorageBackendConfig {
	if backend.Config == nil {
		backend.Config = map[string]interface{}{}
	}
	for i := range backends {
		if backends[i].Name == backend.Name {
			backends[i] = backend
			return backends
		}
	}
	return append(backends, backend)
}
