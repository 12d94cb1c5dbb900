package chunkstore_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duracloud/duracloud-sub013/pkg/chunkstore"
	memorystorage "github.com/duracloud/duracloud-sub013/pkg/chunkstore/storage/memory"
)

func chunkInto(t *testing.T, store chunkstore.Store, container, sourceID string, chunkSize int64, data []byte) *chunkstore.Manifest {
	t.Helper()
	writer, err := chunkstore.NewWriter(store, chunkSize)
	require.NoError(t, err)
	m, err := writer.ChunkAndStore(context.Background(), container, sourceID, "application/octet-stream", int64(len(data)), bytes.NewReader(data))
	require.NoError(t, err)
	return m
}

func TestVerifier_FreshlyChunkedContentPasses(t *testing.T) {
	store := memorystorage.New()
	m := chunkInto(t, store, "space", "v.bin", 8, randomBytes(t, 30))

	results, err := chunkstore.NewVerifier(store, nil).VerifyAllChunks(context.Background(), "space", m)
	require.NoError(t, err)
	assert.True(t, results.IsSuccess())
	assert.Len(t, results.Results, 4)
	assert.Empty(t, results.Failures())
}

func TestVerifier_CorruptedChunkIsReported(t *testing.T) {
	ctx := context.Background()
	store := memorystorage.New()
	m := chunkInto(t, store, "space", "v.bin", 4, []byte("aaaabbbbcccc"))

	// same length, different bytes
	_, err := store.Put(ctx, "space", "v.bin.dura-chunk-0001", chunkstore.PutParams{Size: 4}, bytes.NewReader([]byte("BBBB")))
	require.NoError(t, err)

	results, err := chunkstore.NewVerifier(store, nil).VerifyAllChunks(ctx, "space", m)
	require.NoError(t, err)
	assert.False(t, results.IsSuccess())

	failures := results.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "v.bin.dura-chunk-0001", failures[0].ChunkID)
	assert.Contains(t, failures[0].Error, "checksum mismatch")
	assert.NotContains(t, failures[0].Error, "size mismatch")
}

func TestVerifier_SizeMismatchIsReported(t *testing.T) {
	ctx := context.Background()
	store := memorystorage.New()
	m := chunkInto(t, store, "space", "s.bin", 4, []byte("aaaabbbb"))

	_, err := store.Put(ctx, "space", "s.bin.dura-chunk-0000", chunkstore.PutParams{Size: -1}, bytes.NewReader([]byte("aaa")))
	require.NoError(t, err)

	results, err := chunkstore.NewVerifier(store, nil).VerifyAllChunks(ctx, "space", m)
	require.NoError(t, err)

	failures := results.Failures()
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Error, "size mismatch: manifest 4, stored 3")
}

func TestVerifier_UncheckableProperties(t *testing.T) {
	ctx := context.Background()
	store := memorystorage.New()
	m := chunkInto(t, store, "space", "p.bin", 4, []byte("aaaabbbb"))

	props, err := store.GetProperties(ctx, "space", "p.bin.dura-chunk-0000")
	require.NoError(t, err)
	props[chunkstore.PropertySize] = "four"
	require.NoError(t, store.SetProperties("space", "p.bin.dura-chunk-0000", props))

	props, err = store.GetProperties(ctx, "space", "p.bin.dura-chunk-0001")
	require.NoError(t, err)
	delete(props, chunkstore.PropertyChecksum)
	require.NoError(t, store.SetProperties("space", "p.bin.dura-chunk-0001", props))

	results, err := chunkstore.NewVerifier(store, nil).VerifyAllChunks(ctx, "space", m)
	require.NoError(t, err)

	failures := results.Failures()
	require.Len(t, failures, 2)
	assert.Contains(t, failures[0].Error, "could not be checked")
	assert.Contains(t, failures[1].Error, "could not be checked")
}

func TestVerifier_PartiallyMissingChunks(t *testing.T) {
	ctx := context.Background()
	store := memorystorage.New()
	m := chunkInto(t, store, "space", "m.bin", 4, []byte("aaaabbbbcccc"))
	require.NoError(t, store.Delete(ctx, "space", "m.bin.dura-chunk-0002"))

	results, err := chunkstore.NewVerifier(store, nil).VerifyAllChunks(ctx, "space", m)
	require.NoError(t, err)

	failures := results.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "m.bin.dura-chunk-0002", failures[0].ChunkID)
	assert.Contains(t, failures[0].Error, "could not retrieve properties")
}

func TestVerifier_NoChunksRetrievable(t *testing.T) {
	ctx := context.Background()
	store := memorystorage.New()
	m := chunkInto(t, store, "space", "gone.bin", 4, []byte("aaaabbbb"))
	for _, e := range m.Entries {
		require.NoError(t, store.Delete(ctx, "space", e.ChunkID))
	}

	results, err := chunkstore.NewVerifier(store, nil).VerifyAllChunks(ctx, "space", m)
	require.Error(t, err)
	assert.Nil(t, results)
	assert.True(t, errors.Is(err, chunkstore.ErrNoChunksRetrievable))

	var manifestErr *chunkstore.ManifestError
	require.True(t, errors.As(err, &manifestErr))
	assert.Equal(t, "gone.bin.dura-manifest", manifestErr.ManifestID)
}

func TestVerifier_EmptyManifest(t *testing.T) {
	m := chunkstore.NewManifest("none", "text/plain", 0)

	results, err := chunkstore.NewVerifier(memorystorage.New(), nil).VerifyAllChunks(context.Background(), "space", m)
	require.NoError(t, err)
	assert.Empty(t, results.Results)
	assert.False(t, results.IsSuccess())
}

func TestVerifier_VerifyManifest(t *testing.T) {
	ctx := context.Background()
	store := memorystorage.New()
	m := chunkInto(t, store, "space", "m.bin", 4, []byte("aaaabbbbcc"))

	results, err := chunkstore.NewVerifier(store, nil).VerifyManifest(ctx, "space", m.ManifestID())
	require.NoError(t, err)
	assert.True(t, results.IsSuccess())
	assert.Len(t, results.Results, 3)

	_, err = chunkstore.NewVerifier(store, nil).VerifyManifest(ctx, "space", "absent.bin.dura-manifest")
	assert.ErrorIs(t, err, chunkstore.ErrInvalidManifest)
	assert.ErrorIs(t, err, chunkstore.ErrObjectNotFound)
}
