package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
)

// Content is a reconstituted logical item
type Content struct {
	ID         string
	Body       io.ReadCloser
	Properties Properties
}

// Stitcher reassembles chunked content from its manifest.
type Stitcher struct {
	store    Store
	codec    Codec
	logger   *slog.Logger
	listener ChunkListener
}

// StitcherOption configures a Stitcher
type StitcherOption func(*Stitcher)

// WithStitcherLogger sets the logger used by the stitcher
func WithStitcherLogger(logger *slog.Logger) StitcherOption {
	return func(s *Stitcher) {
		s.logger = logger
	}
}

// WithStitcherListener registers a listener notified as each chunk is read to the end
func WithStitcherListener(listener ChunkListener) StitcherOption {
	return func(s *Stitcher) {
		s.listener = listener
	}
}

// WithStitcherCodec overrides the manifest codec
func WithStitcherCodec(codec Codec) StitcherOption {
	return func(s *Stitcher) {
		s.codec = codec
	}
}

// NewStitcher creates a stitcher reading from store
func NewStitcher(store Store, opts ...StitcherOption) *Stitcher {
	s := &Stitcher{
		store:  store,
		codec:  DefaultCodec,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadManifest fetches and decodes a stored manifest along with the
// properties of the manifest object.
func (s *Stitcher) LoadManifest(ctx context.Context, container, manifestID string) (*Manifest, Properties, error) {
	if !IsManifestID(manifestID) {
		return nil, nil, &ManifestError{
			Container:  container,
			ManifestID: manifestID,
			Op:         "load",
			Err:        fmt.Errorf("%w: id does not end with %s", ErrInvalidManifest, ManifestSuffix),
		}
	}

	obj, err := s.store.Get(ctx, container, manifestID)
	if err != nil {
		return nil, nil, &ManifestError{
			Container:  container,
			ManifestID: manifestID,
			Op:         "load",
			Err:        fmt.Errorf("%w: %w", ErrInvalidManifest, err),
		}
	}
	defer obj.Body.Close()

	manifest, err := s.codec.Decode(obj.Body)
	if err != nil {
		return nil, nil, &ManifestError{Container: container, ManifestID: manifestID, Op: "decode", Err: err}
	}
	return manifest, obj.Properties, nil
}

// GetContentFromManifest opens the logical item described by the manifest
// stored under manifestID. Chunks are fetched lazily in index order while the
// returned body is read. Size, mimetype and checksum of the result come from
// the manifest header; any other manifest object property is carried over.
func (s *Stitcher) GetContentFromManifest(ctx context.Context, container, manifestID string) (*Content, error) {
	manifest, manifestProps, err := s.LoadManifest(ctx, container, manifestID)
	if err != nil {
		return nil, err
	}

	chunkIDs, err := s.orderedChunkIDs(manifest)
	if err != nil {
		return nil, &ManifestError{Container: container, ManifestID: manifestID, Op: "stitch", Err: err}
	}
	if len(chunkIDs) == 0 {
		return nil, &ManifestError{
			Container:  container,
			ManifestID: manifestID,
			Op:         "stitch",
			Err:        fmt.Errorf("%w: no chunks found", ErrInvalidManifest),
		}
	}

	props := manifestProps.Clone()
	props[PropertySize] = strconv.FormatInt(manifest.Header.SourceByteSize, 10)
	props[PropertyMimetype] = manifest.Header.SourceMimetype
	props[PropertyChecksum] = manifest.Header.SourceMD5

	s.logger.Info("Stitching content",
		"container", container,
		"manifest_id", manifestID,
		"chunks", len(chunkIDs),
		"size", manifest.Header.SourceByteSize)

	return &Content{
		ID:         manifest.Header.SourceContentID,
		Body:       newSequentialReader(ctx, s.store, container, chunkIDs, s.listener),
		Properties: props,
	}, nil
}

// orderedChunkIDs sorts manifest entries by the index encoded in their chunk
// id. When that index disagrees with the stored index field the chunk id wins,
// since some writers recorded a wrong index field.
func (s *Stitcher) orderedChunkIDs(manifest *Manifest) ([]string, error) {
	byIndex := make(map[int]string, len(manifest.Entries))
	for _, entry := range manifest.Entries {
		index, err := ParseChunkIndex(entry.ChunkID)
		if err != nil {
			return nil, err
		}
		if index != entry.Index {
			s.logger.Warn("Chunk index differs from manifest entry, using index from chunk id",
				"chunk_id", entry.ChunkID,
				"parsed_index", index,
				"entry_index", entry.Index)
		}
		if prev, dup := byIndex[index]; dup {
			s.logger.Warn("Duplicate chunk index in manifest", "index", index, "chunk_id", entry.ChunkID, "replaces", prev)
		}
		byIndex[index] = entry.ChunkID
	}

	indexes := make([]int, 0, len(byIndex))
	for index := range byIndex {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)

	ids := make([]string, 0, len(indexes))
	for _, index := range indexes {
		ids = append(ids, byIndex[index])
	}
	return ids, nil
}

// sequentialReader concatenates chunk bodies, opening each chunk only once
// the previous one has been read to the end.
type sequentialReader struct {
	ctx       context.Context
	store     Store
	container string
	chunkIDs  []string
	listener  ChunkListener

	next    int
	current io.ReadCloser
	err     error
}

func newSequentialReader(ctx context.Context, store Store, container string, chunkIDs []string, listener ChunkListener) *sequentialReader {
	return &sequentialReader{
		ctx:       ctx,
		store:     store,
		container: container,
		chunkIDs:  chunkIDs,
		listener:  listener,
	}
}

func (r *sequentialReader) Read(p []byte) (int, error) {
	for r.err == nil {
		if r.current == nil {
			if r.next >= len(r.chunkIDs) {
				r.err = io.EOF
				break
			}
			if err := r.open(); err != nil {
				r.err = err
				break
			}
		}

		n, err := r.current.Read(p)
		if err == io.EOF {
			r.finishCurrent()
			if n > 0 {
				return n, nil
			}
			continue
		}
		if err != nil {
			r.err = &ChunkError{ChunkID: r.chunkIDs[r.next-1], Op: "read", Err: err}
			return n, r.err
		}
		if n > 0 || len(p) == 0 {
			return n, nil
		}
	}
	return 0, r.err
}

func (r *sequentialReader) open() error {
	chunkID := r.chunkIDs[r.next]
	obj, err := r.store.Get(r.ctx, r.container, chunkID)
	if err != nil {
		return &ChunkError{ChunkID: chunkID, Op: "get", Err: err}
	}
	r.current = obj.Body
	r.next++
	return nil
}

func (r *sequentialReader) finishCurrent() {
	_ = r.current.Close()
	r.current = nil
	if r.listener != nil {
		r.listener(r.chunkIDs[r.next-1])
	}
}

// Close releases the open chunk without reading it to the end
func (r *sequentialReader) Close() error {
	var err error
	if r.current != nil {
		err = r.current.Close()
		r.current = nil
	}
	if r.err == nil || errors.Is(r.err, io.EOF) {
		r.err = errors.New("chunkstore: read from closed stream")
	}
	return err
}
