package chunkstore

import (
	"context"
	"io"
)

// Service defines the main interface for chunked content
type Service interface {
	// Chunk splits the request body into chunks and stores them with a manifest
	Chunk(ctx context.Context, req ChunkRequest) (*Manifest, error)

	// Stitch opens the logical item described by a stored manifest
	Stitch(ctx context.Context, container, manifestID string) (*Content, error)

	// Verify checks every stored chunk against a stored manifest
	Verify(ctx context.Context, container, manifestID string) (*Results, error)

	// Delete removes every chunk of a manifest, then the manifest itself
	Delete(ctx context.Context, container, manifestID string) error

	// Copy duplicates a chunked item, chunks and manifest, into another container
	Copy(ctx context.Context, srcContainer, manifestID, dstContainer string) error

	// ListManifests returns the manifest ids stored in a container
	ListManifests(ctx context.Context, container string) ([]string, error)

	// LoadManifest fetches and decodes a stored manifest
	LoadManifest(ctx context.Context, container, manifestID string) (*Manifest, error)

	// Store returns the underlying object store
	Store() Store
}

// ChunkRequest contains parameters for chunking a stream
type ChunkRequest struct {
	Container       string
	SourceContentID string
	Mimetype        string
	// Size is the expected length of Body, or -1 if unknown
	Size int64
	Body io.Reader
	// MaxChunkSize overrides the service default when positive
	MaxChunkSize int64
}
