package listing

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/duracloud/duracloud-sub013/pkg/chunkstore"
)

const maxLineSize = 1 << 20

// Stitcher rewrites a space listing so every chunked item appears once under
// its source content id, with the checksum recorded in its manifest.
type Stitcher struct {
	source     Source
	manifests  *chunkstore.Stitcher
	formatters Formatters
	logger     *slog.Logger
	tempDir    string
}

// Option configures a Stitcher
type Option func(*Stitcher)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stitcher) {
		s.logger = logger
	}
}

// WithTempDir sets the directory the output is spooled to
func WithTempDir(dir string) Option {
	return func(s *Stitcher) {
		s.tempDir = dir
	}
}

// NewStitcher creates a listing stitcher reading listings from source and
// chunk manifests through manifests.
func NewStitcher(source Source, manifests *chunkstore.Stitcher, formatters Formatters, opts ...Option) *Stitcher {
	s := &Stitcher{
		source:     source,
		manifests:  manifests,
		formatters: formatters,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate returns the listing of spaceID with chunk lines dropped and each
// manifest line replaced by a line describing the stitched item. Other lines
// pass through unchanged. The result is spooled to a temporary file that is
// removed when the returned stream is closed.
func (s *Stitcher) Generate(ctx context.Context, spaceID string, format Format) (io.ReadCloser, error) {
	formatter, err := s.formatters.Get(format)
	if err != nil {
		return nil, err
	}

	in, err := s.source.Open(ctx, spaceID, format)
	if err != nil {
		return nil, fmt.Errorf("failed to open listing of %s: %w", spaceID, err)
	}
	defer in.Close()

	out, err := os.CreateTemp(s.tempDir, "stitched-listing-*")
	if err != nil {
		return nil, err
	}
	spool := &tempFile{File: out}

	stats, err := s.rewrite(ctx, spaceID, formatter, in, out)
	if err == nil {
		_, err = out.Seek(0, io.SeekStart)
	}
	if err != nil {
		_ = spool.Close()
		return nil, err
	}

	s.logger.Info("Listing stitched",
		"space_id", spaceID,
		"format", format,
		"passed", stats.passed,
		"stitched", stats.stitched,
		"chunks_dropped", stats.dropped)
	return spool, nil
}

type rewriteStats struct {
	passed   int
	stitched int
	dropped  int
}

func (s *Stitcher) rewrite(ctx context.Context, spaceID string, formatter Formatter, in io.Reader, out io.Writer) (rewriteStats, error) {
	var stats rewriteStats
	header := formatter.Header()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	w := bufio.NewWriter(out)

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if header != "" && line == header {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return stats, err
			}
			continue
		}

		item, err := formatter.Parse(line)
		if err != nil {
			return stats, fmt.Errorf("failed to parse listing line: %w", err)
		}
		if item.SpaceID == "" {
			item.SpaceID = spaceID
		}

		switch {
		case chunkstore.IsManifestID(item.ContentID):
			manifest, _, err := s.manifests.LoadManifest(ctx, item.SpaceID, item.ContentID)
			if err != nil {
				return stats, err
			}
			line = formatter.Format(Item{
				SpaceID:   item.SpaceID,
				ContentID: manifest.Header.SourceContentID,
				Checksum:  manifest.Header.SourceMD5,
			})
			stats.stitched++
		case chunkstore.IsChunkID(item.ContentID):
			stats.dropped++
			continue
		default:
			stats.passed++
		}

		if _, err := fmt.Fprintln(w, line); err != nil {
			return stats, err
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read listing: %w", err)
	}
	return stats, w.Flush()
}

// tempFile removes itself once closed
type tempFile struct {
	*os.File
}

func (f *tempFile) Close() error {
	closeErr := f.File.Close()
	if err := os.Remove(f.Name()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return closeErr
}
