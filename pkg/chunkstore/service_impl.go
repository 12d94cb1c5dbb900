package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// service implements the Service interface
type service struct {
	store        Store
	catalog      Catalog
	logger       *slog.Logger
	maxChunkSize int64
	listener     ChunkListener
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithStore sets the object store
func WithStore(store Store) Option {
	return func(s *service) {
		s.store = store
	}
}

// WithCatalog sets the catalog recording chunked items
func WithCatalog(catalog Catalog) Option {
	return func(s *service) {
		s.catalog = catalog
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithMaxChunkSize sets the default chunk size
func WithMaxChunkSize(size int64) Option {
	return func(s *service) {
		s.maxChunkSize = size
	}
}

// WithChunkListener registers a listener for chunk progress on both writes and reads
func WithChunkListener(listener ChunkListener) Option {
	return func(s *service) {
		s.listener = listener
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		logger:       slog.Default(),
		maxChunkSize: DefaultMaxChunkSize,
	}

	for _, option := range options {
		option(s)
	}

	if s.store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if s.maxChunkSize <= 0 {
		return nil, fmt.Errorf("max chunk size must be positive, got %d", s.maxChunkSize)
	}
	if s.catalog == nil {
		s.catalog = NewNoopCatalog()
	}

	return s, nil
}

func (s *service) Store() Store {
	return s.store
}

func (s *service) Chunk(ctx context.Context, req ChunkRequest) (*Manifest, error) {
	if req.Body == nil {
		return nil, errors.New("body is required")
	}
	chunkSize := s.maxChunkSize
	if req.MaxChunkSize > 0 {
		chunkSize = req.MaxChunkSize
	}

	writer, err := NewWriter(s.store, chunkSize,
		WithWriterLogger(s.logger),
		WithWriterListener(s.listener))
	if err != nil {
		return nil, err
	}

	manifest, err := writer.ChunkAndStore(ctx, req.Container, req.SourceContentID, req.Mimetype, req.Size, req.Body)
	if err != nil {
		return nil, err
	}

	if err := s.catalog.Record(ctx, newRecord(req.Container, manifest)); err != nil {
		// The chunked item is complete once its manifest is stored
		s.logger.Error("Failed to record manifest", "container", req.Container, "manifest_id", manifest.ManifestID(), "error", err)
	}
	return manifest, nil
}

func (s *service) Stitch(ctx context.Context, container, manifestID string) (*Content, error) {
	return s.stitcher().GetContentFromManifest(ctx, container, manifestID)
}

func (s *service) Verify(ctx context.Context, container, manifestID string) (*Results, error) {
	return NewVerifier(s.store, s.logger).VerifyManifest(ctx, container, manifestID)
}

func (s *service) LoadManifest(ctx context.Context, container, manifestID string) (*Manifest, error) {
	manifest, _, err := s.stitcher().LoadManifest(ctx, container, manifestID)
	return manifest, err
}

func (s *service) Delete(ctx context.Context, container, manifestID string) error {
	manifest, err := s.LoadManifest(ctx, container, manifestID)
	if err != nil {
		return err
	}

	for _, entry := range manifest.Entries {
		if err := s.store.Delete(ctx, container, entry.ChunkID); err != nil {
			if !errors.Is(err, ErrObjectNotFound) {
				return &ChunkError{ChunkID: entry.ChunkID, Op: "delete", Err: err}
			}
			s.logger.Warn("Chunk already absent", "container", container, "chunk_id", entry.ChunkID)
		}
	}

	if err := s.store.Delete(ctx, container, manifestID); err != nil {
		return &ManifestError{Container: container, ManifestID: manifestID, Op: "delete", Err: err}
	}

	if err := s.catalog.Delete(ctx, container, manifest.Header.SourceContentID); err != nil && !errors.Is(err, ErrRecordNotFound) {
		s.logger.Error("Failed to remove manifest record", "container", container, "manifest_id", manifestID, "error", err)
	}

	s.logger.Info("Chunked content deleted", "container", container, "manifest_id", manifestID, "chunks", len(manifest.Entries))
	return nil
}

func (s *service) Copy(ctx context.Context, srcContainer, manifestID, dstContainer string) error {
	manifest, err := s.LoadManifest(ctx, srcContainer, manifestID)
	if err != nil {
		return err
	}

	for _, entry := range manifest.Entries {
		if err := s.store.Copy(ctx, srcContainer, entry.ChunkID, dstContainer, entry.ChunkID); err != nil {
			return &ChunkError{ChunkID: entry.ChunkID, Op: "copy", Err: err}
		}
	}
	// The manifest goes last so the copy is never observable without all its chunks
	if err := s.store.Copy(ctx, srcContainer, manifestID, dstContainer, manifestID); err != nil {
		return &ManifestError{Container: dstContainer, ManifestID: manifestID, Op: "copy", Err: err}
	}

	if err := s.catalog.Record(ctx, newRecord(dstContainer, manifest)); err != nil {
		s.logger.Error("Failed to record copied manifest", "container", dstContainer, "manifest_id", manifestID, "error", err)
	}
	return nil
}

func (s *service) ListManifests(ctx context.Context, container string) ([]string, error) {
	ids, err := s.store.List(ctx, container, "")
	if err != nil {
		return nil, err
	}
	manifests := make([]string, 0)
	for _, id := range ids {
		if IsManifestID(id) {
			manifests = append(manifests, id)
		}
	}
	return manifests, nil
}

func (s *service) stitcher() *Stitcher {
	return NewStitcher(s.store,
		WithStitcherLogger(s.logger),
		WithStitcherListener(s.listener))
}

func newRecord(container string, manifest *Manifest) *ManifestRecord {
	return &ManifestRecord{
		ID:              uuid.New(),
		Container:       container,
		SourceContentID: manifest.Header.SourceContentID,
		ManifestID:      manifest.ManifestID(),
		Mimetype:        manifest.Header.SourceMimetype,
		ByteSize:        manifest.Header.SourceByteSize,
		MD5:             manifest.Header.SourceMD5,
		ChunkCount:      len(manifest.Entries),
		CreatedAt:       time.Now().UTC(),
	}
}
