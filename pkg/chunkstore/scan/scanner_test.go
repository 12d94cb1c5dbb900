package scan_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duracloud/duracloud-sub013/pkg/chunkstore"
	"github.com/duracloud/duracloud-sub013/pkg/chunkstore/scan"
	memorystorage "github.com/duracloud/duracloud-sub013/pkg/chunkstore/storage/memory"
)

func setup(t *testing.T, ids ...string) (chunkstore.Service, *memorystorage.Backend) {
	t.Helper()
	store := memorystorage.New()
	svc, err := chunkstore.New(chunkstore.WithStore(store), chunkstore.WithMaxChunkSize(4))
	require.NoError(t, err)

	for _, id := range ids {
		data := []byte("content of " + id)
		_, err := svc.Chunk(context.Background(), chunkstore.ChunkRequest{
			Container:       "space",
			SourceContentID: id,
			Size:            int64(len(data)),
			Body:            bytes.NewReader(data),
		})
		require.NoError(t, err)
	}
	return svc, store
}

func TestScanner_ProcessesEveryManifest(t *testing.T) {
	svc, _ := setup(t, "a", "b", "c", "d", "e")

	var seen []string
	var progress [][2]int64
	result, err := scan.New(svc, nil).Scan(context.Background(), scan.ScanOptions{
		Container: "space",
		BatchSize: 2,
		Processor: scan.ManifestProcessor(processorFunc(func(ctx context.Context, container, manifestID string) error {
			seen = append(seen, manifestID)
			return nil
		})),
		OnProgress: func(processed, total int64) {
			progress = append(progress, [2]int64{processed, total})
		},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(5), result.TotalFound)
	assert.Equal(t, int64(5), result.TotalProcessed)
	assert.Len(t, seen, 5)
	assert.Equal(t, [][2]int64{{2, 5}, {4, 5}, {5, 5}}, progress)
}

func TestScanner_FailuresDoNotStopScan(t *testing.T) {
	svc, _ := setup(t, "a", "b", "c")

	result, err := scan.New(svc, nil).ForEach(context.Background(), "space", func(ctx context.Context, container, manifestID string) error {
		if manifestID == "b.dura-manifest" {
			return errors.New("boom")
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2), result.TotalProcessed)
	assert.Equal(t, int64(1), result.TotalFailed)
	assert.Equal(t, []string{"b.dura-manifest"}, result.FailedIDs)
}

func TestScanner_PrefixAndDryRun(t *testing.T) {
	svc, _ := setup(t, "photos/1.jpg", "photos/2.jpg", "docs/a.pdf")

	result, err := scan.New(svc, nil).Scan(context.Background(), scan.ScanOptions{
		Container: "space",
		Prefix:    "photos/",
		DryRun:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.TotalFound)
	assert.Equal(t, int64(2), result.TotalProcessed)

	_, err = scan.New(svc, nil).Scan(context.Background(), scan.ScanOptions{Container: "space"})
	assert.Error(t, err)
}

func TestVerifyProcessor(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t, "good", "bad")

	_, err := store.Put(ctx, "space", "bad.dura-chunk-0000", chunkstore.PutParams{Size: -1}, bytes.NewReader([]byte("XXXX")))
	require.NoError(t, err)

	result, err := scan.New(svc, nil).Scan(ctx, scan.ScanOptions{
		Container: "space",
		Processor: scan.NewVerifyProcessor(svc, nil),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.TotalProcessed)
	assert.Equal(t, []string{"bad.dura-manifest"}, result.FailedIDs)
}

type processorFunc func(ctx context.Context, container, manifestID string) error

func (f processorFunc) Process(ctx context.Context, container, manifestID string) error {
	return f(ctx, container, manifestID)
}
