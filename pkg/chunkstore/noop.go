package chunkstore

import "context"

// NoopCatalog is a no-operation implementation of Catalog
// Useful when chunked items do not need to be recorded or for testing
type NoopCatalog struct{}

// NewNoopCatalog creates a new no-operation catalog
func NewNoopCatalog() Catalog {
	return &NoopCatalog{}
}

// Record does nothing and returns nil
func (n *NoopCatalog) Record(ctx context.Context, record *ManifestRecord) error {
	return nil
}

// Get always reports the record as missing
func (n *NoopCatalog) Get(ctx context.Context, container, sourceContentID string) (*ManifestRecord, error) {
	return nil, ErrRecordNotFound
}

// List returns no records
func (n *NoopCatalog) List(ctx context.Context, container string) ([]*ManifestRecord, error) {
	return nil, nil
}

// Delete does nothing and returns nil
func (n *NoopCatalog) Delete(ctx context.Context, container, sourceContentID string) error {
	return nil
}
