package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/duracloud/duracloud-sub013/pkg/chunkstore"
)

// propertiesDir holds one JSON sidecar per object, mirroring the data tree
const propertiesDir = ".properties"

// Backend is a filesystem implementation of the chunkstore.Store interface.
// Objects live at <BaseDir>/<container>/<objectID>.
type Backend struct {
	mu      sync.RWMutex
	baseDir string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for storing files
}

var _ chunkstore.Store = (*Backend)(nil)

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{baseDir: config.BaseDir}, nil
}

// Put writes the content to a temporary file and renames it into place
func (b *Backend) Put(ctx context.Context, container, objectID string, params chunkstore.PutParams, r io.Reader) (string, error) {
	dataPath, propsPath, err := b.paths(container, objectID)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(dataPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	digest := chunkstore.NewDigestReader(r)
	if _, err := io.Copy(tmp, digest); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	size := digest.BytesRead()
	if params.Size >= 0 && size != params.Size {
		return "", fmt.Errorf("expected %d bytes for %s, read %d", params.Size, objectID, size)
	}
	checksum := digest.Sum()
	if params.Checksum != "" && params.Checksum != checksum {
		return "", fmt.Errorf("%w: expected %s, computed %s", chunkstore.ErrChecksumMismatch, params.Checksum, checksum)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	props := chunkstore.NewProperties(params.Mimetype, size, checksum, time.Now(), params.Properties)
	if err := writeProperties(propsPath, props); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		return "", fmt.Errorf("failed to move file into place: %w", err)
	}
	return checksum, nil
}

// Get opens the object file
func (b *Backend) Get(ctx context.Context, container, objectID string) (*chunkstore.Object, error) {
	props, err := b.GetProperties(ctx, container, objectID)
	if err != nil {
		return nil, err
	}
	dataPath, _, err := b.paths(container, objectID)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(dataPath)
	if os.IsNotExist(err) {
		return nil, b.notFound(container, objectID)
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return &chunkstore.Object{ID: objectID, Body: file, Properties: props}, nil
}

// GetProperties reads the sidecar properties of an object
func (b *Backend) GetProperties(ctx context.Context, container, objectID string) (chunkstore.Properties, error) {
	dataPath, propsPath, err := b.paths(container, objectID)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, err := os.Stat(dataPath); os.IsNotExist(err) {
		return nil, b.notFound(container, objectID)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	data, err := os.ReadFile(propsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read properties of %s: %w", objectID, err)
	}
	var props chunkstore.Properties
	if err := json.Unmarshal(data, &props); err != nil {
		return nil, fmt.Errorf("%w: properties of %s: %v", chunkstore.ErrInvalidProperty, objectID, err)
	}
	return props, nil
}

// List walks the container directory
func (b *Backend) List(ctx context.Context, container, prefix string) ([]string, error) {
	root, err := b.containerDir(container)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		id := filepath.ToSlash(rel)
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", container, err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete deletes content from the filesystem
func (b *Backend) Delete(ctx context.Context, container, objectID string) error {
	dataPath, propsPath, err := b.paths(container, objectID)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := os.Stat(dataPath); os.IsNotExist(err) {
		return b.notFound(container, objectID)
	}
	if err := os.Remove(dataPath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if err := os.Remove(propsPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete properties: %w", err)
	}

	root, _ := b.containerDir(container)
	b.cleanupEmptyDirectories(filepath.Dir(dataPath), root)
	return nil
}

// Copy duplicates an object and its properties
func (b *Backend) Copy(ctx context.Context, srcContainer, srcID, dstContainer, dstID string) error {
	obj, err := b.Get(ctx, srcContainer, srcID)
	if err != nil {
		return err
	}
	defer obj.Body.Close()

	size, err := obj.Properties.Size()
	if err != nil {
		size = -1
	}
	extra := obj.Properties.Clone()
	delete(extra, chunkstore.PropertyModified)
	_, err = b.Put(ctx, dstContainer, dstID, chunkstore.PutParams{
		Mimetype:   obj.Properties.Mimetype(),
		Size:       size,
		Checksum:   obj.Properties.Checksum(),
		Properties: extra,
	}, obj.Body)
	return err
}

func (b *Backend) containerDir(container string) (string, error) {
	if !validName(container) || strings.Contains(container, "/") {
		return "", fmt.Errorf("invalid container name %q", container)
	}
	return filepath.Join(b.baseDir, container), nil
}

func (b *Backend) paths(container, objectID string) (string, string, error) {
	if !validName(container) || strings.Contains(container, "/") {
		return "", "", fmt.Errorf("invalid container name %q", container)
	}
	if !validName(objectID) {
		return "", "", fmt.Errorf("invalid object id %q", objectID)
	}
	rel := filepath.FromSlash(objectID)
	data := filepath.Join(b.baseDir, container, rel)
	props := filepath.Join(b.baseDir, propertiesDir, container, rel+".json")
	return data, props, nil
}

func validName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.HasPrefix(name, ".") {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." || part == "." || part == "" {
			return false
		}
	}
	return true
}

func (b *Backend) notFound(container, objectID string) error {
	return &chunkstore.StorageError{
		Backend:   "fs",
		Container: container,
		Key:       objectID,
		Op:        "stat",
		Err:       chunkstore.ErrObjectNotFound,
	}
}

func writeProperties(path string, props chunkstore.Properties) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create properties directory: %w", err)
	}
	data, err := json.Marshal(props)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write properties: %w", err)
	}
	return nil
}

// cleanupEmptyDirectories recursively removes empty directories up to root
func (b *Backend) cleanupEmptyDirectories(dir, root string) {
	if dir == root || !strings.HasPrefix(dir, root) {
		return
	}

	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			b.cleanupEmptyDirectories(filepath.Dir(dir), root)
		}
	}
}
