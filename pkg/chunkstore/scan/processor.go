package scan

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/duracloud/duracloud-sub013/pkg/chunkstore"
)

// ManifestProcessor processes one chunked item, identified by its manifest.
//
// Example implementations:
//   - Verifier (checks stored chunks against the manifest)
//   - Reporter (exports manifest headers)
//   - Cleaner (removes chunked items in bulk)
type ManifestProcessor interface {
	// Process is called for each manifest found during a scan.
	// Return error to mark this manifest as failed (scan continues with the next one).
	Process(ctx context.Context, container, manifestID string) error
}

// VerifyProcessor verifies every chunk of each scanned manifest
type VerifyProcessor struct {
	svc    chunkstore.Service
	logger *slog.Logger
}

// NewVerifyProcessor creates a processor failing every manifest whose chunks
// do not match it.
func NewVerifyProcessor(svc chunkstore.Service, logger *slog.Logger) *VerifyProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &VerifyProcessor{svc: svc, logger: logger}
}

func (p *VerifyProcessor) Process(ctx context.Context, container, manifestID string) error {
	results, err := p.svc.Verify(ctx, container, manifestID)
	if err != nil {
		return err
	}
	if !results.IsSuccess() {
		for _, failure := range results.Failures() {
			p.logger.Warn("Chunk failed verification", "container", container, "manifest_id", manifestID, "chunk_id", failure.ChunkID, "error", failure.Error)
		}
		return fmt.Errorf("%d of %d chunks failed verification", len(results.Failures()), len(results.Results))
	}
	return nil
}

// funcProcessor adapts a function to the ManifestProcessor interface.
type funcProcessor struct {
	fn func(ctx context.Context, container, manifestID string) error
}

func (p *funcProcessor) Process(ctx context.Context, container, manifestID string) error {
	return p.fn(ctx, container, manifestID)
}
