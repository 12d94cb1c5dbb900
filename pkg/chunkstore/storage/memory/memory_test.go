package memory_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duracloud/duracloud-sub013/pkg/chunkstore"
	"github.com/duracloud/duracloud-sub013/pkg/chunkstore/storage/memory"
)

func TestMemoryBackend_PutGet(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	data := []byte("hello memory")

	checksum, err := backend.Put(ctx, "space", "a/b.txt", chunkstore.PutParams{
		Mimetype:   "text/plain",
		Size:       int64(len(data)),
		Properties: map[string]string{"owner": "me"},
	}, bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, chunkstore.ChecksumBytes(data), checksum)

	obj, err := backend.Get(ctx, "space", "a/b.txt")
	require.NoError(t, err)
	got, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, "text/plain", obj.Properties.Mimetype())
	assert.Equal(t, checksum, obj.Properties.Checksum())
	assert.Equal(t, "me", obj.Properties["owner"])

	size, err := obj.Properties.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)
}

func TestMemoryBackend_PutHints(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()

	_, err := backend.Put(ctx, "space", "short", chunkstore.PutParams{Size: 10}, bytes.NewReader([]byte("abc")))
	assert.Error(t, err)

	_, err = backend.Put(ctx, "space", "wrong", chunkstore.PutParams{Size: -1, Checksum: "00000000000000000000000000000000"}, bytes.NewReader([]byte("abc")))
	assert.True(t, errors.Is(err, chunkstore.ErrChecksumMismatch))

	ids, err := backend.List(ctx, "space", "")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMemoryBackend_NotFound(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()

	_, err := backend.Get(ctx, "space", "missing")
	assert.True(t, errors.Is(err, chunkstore.ErrObjectNotFound))

	_, err = backend.GetProperties(ctx, "space", "missing")
	assert.True(t, errors.Is(err, chunkstore.ErrObjectNotFound))

	err = backend.Delete(ctx, "space", "missing")
	var storageErr *chunkstore.StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, "memory", storageErr.Backend)

	err = backend.Copy(ctx, "space", "missing", "other", "missing")
	assert.True(t, errors.Is(err, chunkstore.ErrObjectNotFound))
}

func TestMemoryBackend_ListDeleteCopy(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	for _, id := range []string{"b", "a", "a.dura-chunk-0000", "c"} {
		_, err := backend.Put(ctx, "space", id, chunkstore.PutParams{Size: -1}, bytes.NewReader([]byte(id)))
		require.NoError(t, err)
	}

	ids, err := backend.List(ctx, "space", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a.dura-chunk-0000", "b", "c"}, ids)

	ids, err = backend.List(ctx, "space", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a.dura-chunk-0000"}, ids)

	require.NoError(t, backend.Copy(ctx, "space", "b", "other", "b2"))
	props, err := backend.GetProperties(ctx, "other", "b2")
	require.NoError(t, err)
	assert.Equal(t, chunkstore.ChecksumBytes([]byte("b")), props.Checksum())

	require.NoError(t, backend.Delete(ctx, "space", "b"))
	_, err = backend.Get(ctx, "space", "b")
	assert.Error(t, err)

	// the copy is independent of the source
	_, err = backend.Get(ctx, "other", "b2")
	assert.NoError(t, err)
}
