package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/duracloud/duracloud-sub013/pkg/chunkstore"
)

type key struct {
	container       string
	sourceContentID string
}

// Catalog implements chunkstore.Catalog using in-memory storage
type Catalog struct {
	mu      sync.RWMutex
	records map[key]*chunkstore.ManifestRecord
}

var _ chunkstore.Catalog = (*Catalog)(nil)

// New creates a new in-memory catalog
func New() *Catalog {
	return &Catalog{
		records: make(map[key]*chunkstore.ManifestRecord),
	}
}

// Record stores a copy of record, replacing any earlier record of the same item
func (c *Catalog) Record(ctx context.Context, record *chunkstore.ManifestRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	recordCopy := *record
	c.records[key{record.Container, record.SourceContentID}] = &recordCopy
	return nil
}

func (c *Catalog) Get(ctx context.Context, container, sourceContentID string) (*chunkstore.ManifestRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	record, exists := c.records[key{container, sourceContentID}]
	if !exists {
		return nil, chunkstore.ErrRecordNotFound
	}
	recordCopy := *record
	return &recordCopy, nil
}

// List returns the records of a container ordered by source content id
func (c *Catalog) List(ctx context.Context, container string) ([]*chunkstore.ManifestRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var records []*chunkstore.ManifestRecord
	for k, record := range c.records {
		if k.container == container {
			recordCopy := *record
			records = append(records, &recordCopy)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].SourceContentID < records[j].SourceContentID
	})
	return records, nil
}

func (c *Catalog) Delete(ctx context.Context, container, sourceContentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key{container, sourceContentID}
	if _, exists := c.records[k]; !exists {
		return chunkstore.ErrRecordNotFound
	}
	delete(c.records, k)
	return nil
}
