package listing

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/duracloud/duracloud-sub013/pkg/chunkstore"
)

// Source supplies the full content listing of a space
type Source interface {
	Open(ctx context.Context, spaceID string, format Format) (io.ReadCloser, error)
}

// StoreSource builds listings from the objects of a store. Every stored
// object is listed as is, chunks and manifests included.
type StoreSource struct {
	store      chunkstore.Store
	formatters Formatters
}

var _ Source = (*StoreSource)(nil)

// NewStoreSource creates a listing source backed by store
func NewStoreSource(store chunkstore.Store, formatters Formatters) *StoreSource {
	return &StoreSource{store: store, formatters: formatters}
}

// Open lists spaceID in the background and streams the formatted lines
func (s *StoreSource) Open(ctx context.Context, spaceID string, format Format) (io.ReadCloser, error) {
	formatter, err := s.formatters.Get(format)
	if err != nil {
		return nil, err
	}
	ids, err := s.store.List(ctx, spaceID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list space %s: %w", spaceID, err)
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(s.write(ctx, pw, spaceID, ids, formatter))
	}()
	return pr, nil
}

func (s *StoreSource) write(ctx context.Context, w io.Writer, spaceID string, ids []string, formatter Formatter) error {
	bw := bufio.NewWriter(w)
	if header := formatter.Header(); header != "" {
		if _, err := fmt.Fprintln(bw, header); err != nil {
			return err
		}
	}
	for _, id := range ids {
		props, err := s.store.GetProperties(ctx, spaceID, id)
		if err != nil {
			return fmt.Errorf("failed to read properties of %s: %w", id, err)
		}
		line := formatter.Format(Item{SpaceID: spaceID, ContentID: id, Checksum: props.Checksum()})
		if _, err := fmt.Fprintln(bw, line); err != nil {
			return err
		}
	}
	return bw.Flush()
}
