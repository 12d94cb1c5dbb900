package chunkstore

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Store defines the object store capabilities consumed by the chunking core.
// Object ids are opaque strings scoped to a container.
type Store interface {
	// Put stores the content of r and returns the checksum recorded by the store
	Put(ctx context.Context, container, objectID string, params PutParams, r io.Reader) (string, error)

	// Get opens an object for reading along with its properties
	Get(ctx context.Context, container, objectID string) (*Object, error)

	// GetProperties returns the properties of an object without fetching its body
	GetProperties(ctx context.Context, container, objectID string) (Properties, error)

	// List returns the sorted ids of the objects in container starting with prefix
	List(ctx context.Context, container, prefix string) ([]string, error)

	// Delete removes an object
	Delete(ctx context.Context, container, objectID string) error

	// Copy duplicates an object, properties included
	Copy(ctx context.Context, srcContainer, srcID, dstContainer, dstID string) error
}

// Catalog records chunked items once their manifest has been persisted.
type Catalog interface {
	Record(ctx context.Context, record *ManifestRecord) error
	Get(ctx context.Context, container, sourceContentID string) (*ManifestRecord, error)
	List(ctx context.Context, container string) ([]*ManifestRecord, error)
	Delete(ctx context.Context, container, sourceContentID string) error
}

// ChunkListener is notified with the id of each chunk once it has been fully
// written or fully read.
type ChunkListener func(chunkID string)

// PutParams carries the hints passed to Store.Put
type PutParams struct {
	Mimetype string
	// Size is the number of bytes that will be read, or -1 if unknown
	Size int64
	// Checksum is the expected MD5 of the content, if known in advance
	Checksum string
	// Properties are stored alongside the object
	Properties map[string]string
}

// Object is an open stored object
type Object struct {
	ID         string
	Body       io.ReadCloser
	Properties Properties
}

// Well-known property names
const (
	PropertyChecksum = "content-checksum"
	PropertySize     = "content-size"
	PropertyMimetype = "content-mimetype"
	PropertyModified = "content-modified"
)

// Properties is the property map attached to a stored object
type Properties map[string]string

// Checksum returns the stored checksum
func (p Properties) Checksum() string {
	return p[PropertyChecksum]
}

// Mimetype returns the stored mimetype
func (p Properties) Mimetype() string {
	return p[PropertyMimetype]
}

// Size parses the stored size. A missing value and an unparseable value are
// reported differently so callers can tell an absent property from a corrupt one.
func (p Properties) Size() (int64, error) {
	v, ok := p[PropertySize]
	if !ok || v == "" {
		return 0, fmt.Errorf("%w: %s is missing", ErrInvalidProperty, PropertySize)
	}
	size, err := strconv.ParseInt(v, 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("%w: %s value %q is inconsistent", ErrInvalidProperty, PropertySize, v)
	}
	return size, nil
}

// Clone returns a shallow copy
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// NewProperties builds the standard property set for a stored object
func NewProperties(mimetype string, size int64, checksum string, modified time.Time, extra map[string]string) Properties {
	p := make(Properties, len(extra)+4)
	for k, v := range extra {
		p[k] = v
	}
	if mimetype == "" {
		mimetype = "application/octet-stream"
	}
	p[PropertyMimetype] = mimetype
	p[PropertySize] = strconv.FormatInt(size, 10)
	p[PropertyChecksum] = checksum
	p[PropertyModified] = modified.UTC().Format(time.RFC3339)
	return p
}

// ManifestRecord is the catalog entry of a chunked item
type ManifestRecord struct {
	ID              uuid.UUID
	Container       string
	SourceContentID string
	ManifestID      string
	Mimetype        string
	ByteSize        int64
	MD5             string
	ChunkCount      int
	CreatedAt       time.Time
}
