package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/duracloud/duracloud-sub013/pkg/chunkstore"
)

type object struct {
	data  []byte
	props chunkstore.Properties
}

// Backend is an in-memory implementation of the chunkstore.Store interface
type Backend struct {
	mu         sync.RWMutex
	containers map[string]map[string]*object
}

var _ chunkstore.Store = (*Backend)(nil)

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		containers: make(map[string]map[string]*object),
	}
}

// Put stores the content in memory
func (b *Backend) Put(ctx context.Context, container, objectID string, params chunkstore.PutParams, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if params.Size >= 0 && int64(len(data)) != params.Size {
		return "", fmt.Errorf("expected %d bytes for %s, read %d", params.Size, objectID, len(data))
	}

	checksum := chunkstore.ChecksumBytes(data)
	if params.Checksum != "" && params.Checksum != checksum {
		return "", fmt.Errorf("%w: expected %s, computed %s", chunkstore.ErrChecksumMismatch, params.Checksum, checksum)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	objects, exists := b.containers[container]
	if !exists {
		objects = make(map[string]*object)
		b.containers[container] = objects
	}
	objects[objectID] = &object{
		data:  data,
		props: chunkstore.NewProperties(params.Mimetype, int64(len(data)), checksum, time.Now(), params.Properties),
	}
	return checksum, nil
}

// Get returns a reader over the stored bytes
func (b *Backend) Get(ctx context.Context, container, objectID string) (*chunkstore.Object, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, err := b.lookup(container, objectID)
	if err != nil {
		return nil, err
	}
	return &chunkstore.Object{
		ID:         objectID,
		Body:       io.NopCloser(bytes.NewReader(obj.data)),
		Properties: obj.props.Clone(),
	}, nil
}

// GetProperties returns the stored properties
func (b *Backend) GetProperties(ctx context.Context, container, objectID string) (chunkstore.Properties, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, err := b.lookup(container, objectID)
	if err != nil {
		return nil, err
	}
	return obj.props.Clone(), nil
}

// SetProperties replaces the caller-visible properties of an object, keeping
// size and checksum authoritative. Tests use it to simulate metadata drift.
func (b *Backend) SetProperties(container, objectID string, props chunkstore.Properties) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	obj, err := b.lookup(container, objectID)
	if err != nil {
		return err
	}
	obj.props = props.Clone()
	return nil
}

// List returns the sorted ids in container starting with prefix
func (b *Backend) List(ctx context.Context, container, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0)
	for id := range b.containers[container] {
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete deletes content
func (b *Backend) Delete(ctx context.Context, container, objectID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.lookup(container, objectID); err != nil {
		return err
	}
	delete(b.containers[container], objectID)
	return nil
}

// Copy duplicates an object
func (b *Backend) Copy(ctx context.Context, srcContainer, srcID, dstContainer, dstID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	src, err := b.lookup(srcContainer, srcID)
	if err != nil {
		return err
	}
	objects, exists := b.containers[dstContainer]
	if !exists {
		objects = make(map[string]*object)
		b.containers[dstContainer] = objects
	}
	objects[dstID] = &object{
		data:  append([]byte(nil), src.data...),
		props: src.props.Clone(),
	}
	return nil
}

func (b *Backend) lookup(container, objectID string) (*object, error) {
	obj, exists := b.containers[container][objectID]
	if !exists {
		return nil, &chunkstore.StorageError{
			Backend:   "memory",
			Container: container,
			Key:       objectID,
			Op:        "lookup",
			Err:       chunkstore.ErrObjectNotFound,
		}
	}
	return obj, nil
}
