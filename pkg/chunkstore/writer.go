package chunkstore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// DefaultMaxChunkSize is the chunk size used when none is configured (1 GiB)
const DefaultMaxChunkSize int64 = 1 << 30

// Writer splits a stream into bounded-size chunks and stores them together
// with their manifest.
type Writer struct {
	store        Store
	maxChunkSize int64
	logger       *slog.Logger
	listener     ChunkListener
}

// WriterOption configures a Writer
type WriterOption func(*Writer)

// WithWriterLogger sets the logger used by the writer
func WithWriterLogger(logger *slog.Logger) WriterOption {
	return func(w *Writer) {
		w.logger = logger
	}
}

// WithWriterListener registers a listener notified after each stored chunk
func WithWriterListener(listener ChunkListener) WriterOption {
	return func(w *Writer) {
		w.listener = listener
	}
}

// NewWriter creates a chunking writer
func NewWriter(store Store, maxChunkSize int64, opts ...WriterOption) (*Writer, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if maxChunkSize <= 0 {
		return nil, fmt.Errorf("max chunk size must be positive, got %d", maxChunkSize)
	}
	w := &Writer{
		store:        store,
		maxChunkSize: maxChunkSize,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// MaxChunkSize returns the configured chunk size
func (w *Writer) MaxChunkSize() int64 {
	return w.maxChunkSize
}

// ChunkAndStore reads r to the end, storing every maxChunkSize bytes as a
// chunk of sourceID in container, then stores the manifest describing them.
// totalSize is the exact size of r, or -1 if unknown. A source that ends
// before or runs past a known totalSize fails with ErrSizeMismatch.
//
// The whole-item checksum is computed in the same pass that uploads the
// chunks. On failure chunks already written are left in place and no
// manifest is stored.
func (w *Writer) ChunkAndStore(ctx context.Context, container, sourceID, mimetype string, totalSize int64, r io.Reader) (*Manifest, error) {
	if sourceID == "" {
		return nil, fmt.Errorf("%w: source content id is required", ErrInvalidContentID)
	}
	if IsChunkID(sourceID) || IsManifestID(sourceID) {
		return nil, fmt.Errorf("%w: %s uses a reserved suffix", ErrInvalidContentID, sourceID)
	}

	manifest := NewManifest(sourceID, mimetype, totalSize)
	whole := NewDigestReader(r)
	src := bufio.NewReader(whole)

	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// An empty source still produces one zero-byte chunk.
		if len(manifest.Entries) > 0 {
			if _, err := src.Peek(1); err == io.EOF {
				if totalSize >= 0 && written != totalSize {
					return nil, w.sizeMismatch(sourceID, totalSize, written)
				}
				break
			} else if err != nil {
				return nil, fmt.Errorf("failed to read source %s: %w", sourceID, err)
			}
		}

		chunkID, err := manifest.NextChunkID()
		if err != nil {
			w.logger.Error("Chunk limit reached", "source_id", sourceID, "max_chunk_size", w.maxChunkSize, "error", err)
			return nil, err
		}

		sizeHint := int64(-1)
		var body io.Reader = io.LimitReader(src, w.maxChunkSize)
		var exact *exactReader
		if totalSize >= 0 {
			sizeHint = min(w.maxChunkSize, totalSize-written)
			exact = &exactReader{r: io.LimitReader(src, sizeHint), remaining: sizeHint}
			body = exact
		}

		chunk := NewDigestReader(body)
		stored, err := w.store.Put(ctx, container, chunkID, PutParams{
			Mimetype: mimetype,
			Size:     sizeHint,
		}, chunk)
		if exact != nil && exact.short {
			return nil, w.sizeMismatch(sourceID, totalSize, written+chunk.BytesRead())
		}
		if err != nil {
			return nil, &ChunkError{ChunkID: chunkID, Op: "put", Err: err}
		}

		observed := chunk.Sum()
		if stored != "" && stored != observed {
			return nil, &ChunkError{
				ChunkID: chunkID,
				Op:      "put",
				Err:     fmt.Errorf("%w: store reported %s, computed %s", ErrChecksumMismatch, stored, observed),
			}
		}
		if err := manifest.AddEntry(chunkID, observed, chunk.BytesRead()); err != nil {
			return nil, err
		}
		written += chunk.BytesRead()

		w.logger.Debug("Chunk stored", "container", container, "chunk_id", chunkID, "size", chunk.BytesRead())
		if w.listener != nil {
			w.listener(chunkID)
		}

		if totalSize >= 0 {
			if written < totalSize {
				continue
			}
			if _, err := src.Peek(1); err == nil {
				return nil, w.sizeMismatch(sourceID, totalSize, -1)
			} else if err != io.EOF {
				return nil, fmt.Errorf("failed to read source %s: %w", sourceID, err)
			}
			break
		}
		if chunk.BytesRead() < w.maxChunkSize {
			break
		}
	}

	manifest.Header.SourceByteSize = written
	manifest.SetSourceMD5(whole.Sum())

	body, length, err := manifest.Body()
	if err != nil {
		return nil, &ManifestError{Container: container, ManifestID: manifest.ManifestID(), Op: "encode", Err: err}
	}
	if _, err := w.store.Put(ctx, container, manifest.ManifestID(), PutParams{
		Mimetype: ManifestMimetype,
		Size:     length,
	}, body); err != nil {
		return nil, &ManifestError{Container: container, ManifestID: manifest.ManifestID(), Op: "put", Err: err}
	}

	w.logger.Info("Chunked content stored",
		"container", container,
		"source_id", sourceID,
		"chunks", len(manifest.Entries),
		"size", written,
		"md5", manifest.Header.SourceMD5)
	return manifest, nil
}

// sizeMismatch reports a source whose length disagrees with its declared
// size. actual is -1 when the source is longer than declared.
func (w *Writer) sizeMismatch(sourceID string, declared, actual int64) error {
	w.logger.Error("Source size differs from declared size", "source_id", sourceID, "declared", declared, "actual", actual)
	if actual < 0 {
		return fmt.Errorf("%w: %s declared %d bytes, source is longer", ErrSizeMismatch, sourceID, declared)
	}
	return fmt.Errorf("%w: %s declared %d bytes, source ended after %d", ErrSizeMismatch, sourceID, declared, actual)
}

// exactReader fails a read that hits EOF before remaining bytes were seen
type exactReader struct {
	r         io.Reader
	remaining int64
	short     bool
}

func (e *exactReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	e.remaining -= int64(n)
	if err == io.EOF && e.remaining > 0 {
		e.short = true
		return n, fmt.Errorf("%w: source ended %d bytes early", ErrSizeMismatch, e.remaining)
	}
	return n, err
}
