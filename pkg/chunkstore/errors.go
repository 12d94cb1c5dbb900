package chunkstore

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrObjectNotFound indicates an object is absent from the store
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidManifest indicates a manifest is malformed, misnamed or references no chunks
	ErrInvalidManifest = errors.New("invalid manifest")

	// ErrMaxChunksExceeded indicates the content needs more chunks than a manifest can hold
	ErrMaxChunksExceeded = errors.New("maximum chunk count exceeded")

	// ErrNoChunksRetrievable indicates no chunk of a non-empty manifest could be checked
	ErrNoChunksRetrievable = errors.New("no chunks retrievable")

	// ErrChecksumMismatch indicates stored and observed checksums differ
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrSizeMismatch indicates a source whose length differs from its declared size
	ErrSizeMismatch = errors.New("size mismatch")

	// ErrInvalidProperty indicates a stored property is missing or malformed
	ErrInvalidProperty = errors.New("invalid property")

	// ErrInvalidContentID indicates a source content id that is empty or uses a reserved suffix
	ErrInvalidContentID = errors.New("invalid content id")

	// ErrRecordNotFound indicates a catalog record does not exist
	ErrRecordNotFound = errors.New("manifest record not found")
)

// StorageError represents an error related to storage operations
type StorageError struct {
	Backend   string
	Container string
	Key       string
	Op        string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for %s/%s on backend %s: %v", e.Op, e.Container, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ManifestError represents an error related to a stored manifest
type ManifestError struct {
	Container  string
	ManifestID string
	Op         string
	Err        error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("manifest operation %s failed for %s/%s: %v", e.Op, e.Container, e.ManifestID, e.Err)
}

func (e *ManifestError) Unwrap() error {
	return e.Err
}

// ChunkError represents an error related to a single chunk
type ChunkError struct {
	ChunkID string
	Op      string
	Err     error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk operation %s failed for chunk %s: %v", e.Op, e.ChunkID, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}
