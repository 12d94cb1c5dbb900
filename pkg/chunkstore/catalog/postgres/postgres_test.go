package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duracloud/duracloud-sub013/pkg/chunkstore"
	"github.com/duracloud/duracloud-sub013/pkg/chunkstore/catalog/postgres"
)

// runTest connects to TEST_DATABASE_URL and hands each test an empty table
func runTest(t *testing.T, testFunc func(t *testing.T, catalog *postgres.Catalog)) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}
	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err, "Failed to connect to test database")
	defer pool.Close()
	require.NoError(t, pool.Ping(ctx), "Failed to ping test database")

	catalog := postgres.NewWithPool(pool)
	require.NoError(t, catalog.Migrate(ctx))
	_, err = pool.Exec(ctx, "TRUNCATE chunk_manifest")
	require.NoError(t, err)

	testFunc(t, catalog)
}

func newRecord(container, sourceID string) *chunkstore.ManifestRecord {
	return &chunkstore.ManifestRecord{
		ID:              uuid.New(),
		Container:       container,
		SourceContentID: sourceID,
		ManifestID:      chunkstore.ManifestID(sourceID),
		Mimetype:        "application/pdf",
		ByteSize:        2048,
		MD5:             "0123456789abcdef0123456789abcdef",
		ChunkCount:      2,
		CreatedAt:       time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestCatalog_RecordGetDelete(t *testing.T) {
	runTest(t, func(t *testing.T, catalog *postgres.Catalog) {
		ctx := context.Background()
		record := newRecord("space", "report.pdf")
		require.NoError(t, catalog.Record(ctx, record))

		got, err := catalog.Get(ctx, "space", "report.pdf")
		require.NoError(t, err)
		assert.Equal(t, record.ID, got.ID)
		assert.Equal(t, record.ManifestID, got.ManifestID)
		assert.Equal(t, record.ByteSize, got.ByteSize)
		assert.Equal(t, record.ChunkCount, got.ChunkCount)
		assert.True(t, record.CreatedAt.Equal(got.CreatedAt))

		require.NoError(t, catalog.Delete(ctx, "space", "report.pdf"))
		_, err = catalog.Get(ctx, "space", "report.pdf")
		assert.ErrorIs(t, err, chunkstore.ErrRecordNotFound)
		assert.ErrorIs(t, catalog.Delete(ctx, "space", "report.pdf"), chunkstore.ErrRecordNotFound)
	})
}

func TestCatalog_RecordUpserts(t *testing.T) {
	runTest(t, func(t *testing.T, catalog *postgres.Catalog) {
		ctx := context.Background()
		require.NoError(t, catalog.Record(ctx, newRecord("space", "a")))
		updated := newRecord("space", "a")
		updated.ChunkCount = 7
		require.NoError(t, catalog.Record(ctx, updated))

		records, err := catalog.List(ctx, "space")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, 7, records[0].ChunkCount)
	})
}

func TestCatalog_ListIsScopedAndOrdered(t *testing.T) {
	runTest(t, func(t *testing.T, catalog *postgres.Catalog) {
		ctx := context.Background()
		for _, id := range []string{"b", "a", "c"} {
			require.NoError(t, catalog.Record(ctx, newRecord("space", id)))
		}
		require.NoError(t, catalog.Record(ctx, newRecord("other", "a")))

		records, err := catalog.List(ctx, "space")
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "a", records[0].SourceContentID)
		assert.Equal(t, "b", records[1].SourceContentID)
		assert.Equal(t, "c", records[2].SourceContentID)
	})
}
