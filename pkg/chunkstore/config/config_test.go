package config

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duracloud/duracloud-sub013/pkg/chunkstore"
	fsstorage "github.com/duracloud/duracloud-sub013/pkg/chunkstore/storage/fs"
	memorystorage "github.com/duracloud/duracloud-sub013/pkg/chunkstore/storage/memory"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, chunkstore.DefaultMaxChunkSize, cfg.MaxChunkSize)
	assert.Equal(t, "memory", cfg.DatabaseType)
	assert.Equal(t, "memory", cfg.DefaultStorageBackend)
}

func TestLoad_OptionErrors(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"empty port", WithPort("")},
		{"empty environment", WithEnvironment("")},
		{"zero chunk size", WithMaxChunkSize(0)},
		{"unknown database", WithDatabase("mysql", "")},
		{"postgres without url", WithDatabase("postgres", "")},
		{"empty default storage", WithDefaultStorage("")},
		{"fs without dir", WithFilesystemStorage("fs", "")},
		{"s3 without bucket", WithS3Storage("s3", "", "")},
		{"credentials for missing s3", WithS3Credentials("s3", "a", "b")},
		{"unknown default storage", WithDefaultStorage("nowhere")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.opt)
			assert.Error(t, err)
		})
	}
}

func TestLoad_S3Options(t *testing.T) {
	cfg, err := Load(
		WithS3Storage("archive", "bucket", ""),
		WithS3Credentials("archive", "key", "secret"),
		WithS3Endpoint("archive", "http://localhost:9000", true),
		WithS3PartSize("archive", 16<<20),
		WithDefaultStorage("archive"),
	)
	require.NoError(t, err)

	backend, err := cfg.defaultBackend()
	require.NoError(t, err)
	assert.Equal(t, "s3", backend.Type)
	assert.Equal(t, "us-east-1", backend.Config["region"])
	assert.Equal(t, "key", backend.Config["access_key_id"])
	assert.Equal(t, true, backend.Config["use_path_style"])
	assert.Equal(t, int64(16<<20), getInt64(backend.Config, "part_size", 0))
}

func TestBuildStore(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)
		store, err := cfg.BuildStore()
		require.NoError(t, err)
		assert.IsType(t, &memorystorage.Backend{}, store)
	})

	t.Run("filesystem", func(t *testing.T) {
		cfg, err := Load(WithFilesystemStorage("", t.TempDir()), WithDefaultStorage("fs"))
		require.NoError(t, err)
		store, err := cfg.BuildStore()
		require.NoError(t, err)
		assert.IsType(t, &fsstorage.Backend{}, store)
	})
}

func TestBuildService(t *testing.T) {
	ctx := context.Background()
	cfg, err := Load(
		WithMaxChunkSize(3),
		WithFilesystemStorage("local", t.TempDir()),
		WithDefaultStorage("local"),
	)
	require.NoError(t, err)

	svc, err := cfg.BuildService(ctx)
	require.NoError(t, err)

	data := []byte("configured service")
	m, err := svc.Chunk(ctx, chunkstore.ChunkRequest{
		Container:       "space",
		SourceContentID: "item",
		Size:            int64(len(data)),
		Body:            bytes.NewReader(data),
	})
	require.NoError(t, err)
	assert.Len(t, m.Entries, 6)

	content, err := svc.Stitch(ctx, "space", m.ManifestID())
	require.NoError(t, err)
	defer content.Body.Close()
	got, err := io.ReadAll(content.Body)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
