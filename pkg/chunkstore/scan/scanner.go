package scan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/duracloud/duracloud-sub013/pkg/chunkstore"
)

// Scanner walks the manifests of a container and processes them with the provided processor.
type Scanner struct {
	svc    chunkstore.Service
	logger *slog.Logger
}

// New creates a new Scanner instance.
func New(svc chunkstore.Service, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{svc: svc, logger: logger}
}

// ScanOptions configures the scan operation.
type ScanOptions struct {
	// Container to scan
	Container string

	// Prefix restricts the scan to source content ids starting with it
	Prefix string

	// Processor defines the processing logic (required unless DryRun is true)
	Processor ManifestProcessor

	// BatchSize controls how many manifests are processed between progress reports (default: 100)
	BatchSize int

	// DryRun if true, doesn't process manifests, just reports what would be processed
	DryRun bool

	// OnProgress is called after each batch is processed (optional)
	OnProgress func(processed, total int64)
}

// ScanResult contains statistics about the scan operation.
type ScanResult struct {
	// TotalFound is the number of manifests matching the options
	TotalFound int64

	// TotalProcessed is the number of manifests successfully processed
	TotalProcessed int64

	// TotalFailed is the number of manifests that failed processing
	TotalFailed int64

	// FailedIDs contains the ids of manifests that failed processing
	FailedIDs []string
}

// Scan lists the manifests of a container and processes each one in order.
// If a manifest fails processing, the error is recorded but scanning continues
// with the next one.
func (s *Scanner) Scan(ctx context.Context, opts ScanOptions) (*ScanResult, error) {
	result := &ScanResult{}

	if !opts.DryRun && opts.Processor == nil {
		return result, fmt.Errorf("processor is required when DryRun is false")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}

	all, err := s.svc.ListManifests(ctx, opts.Container)
	if err != nil {
		return result, fmt.Errorf("failed to list manifests: %w", err)
	}
	manifests := make([]string, 0, len(all))
	for _, id := range all {
		if strings.HasPrefix(id, opts.Prefix) {
			manifests = append(manifests, id)
		}
	}
	result.TotalFound = int64(len(manifests))

	for start := 0; start < len(manifests); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(manifests))

		for _, manifestID := range manifests[start:end] {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			if opts.DryRun {
				s.logger.Info("[DRY-RUN] Would process manifest", "container", opts.Container, "manifest_id", manifestID)
				result.TotalProcessed++
				continue
			}

			if err := opts.Processor.Process(ctx, opts.Container, manifestID); err != nil {
				result.TotalFailed++
				result.FailedIDs = append(result.FailedIDs, manifestID)
				s.logger.Error("Failed to process manifest", "container", opts.Container, "manifest_id", manifestID, "error", err)
				continue
			}
			result.TotalProcessed++
		}

		if opts.OnProgress != nil {
			opts.OnProgress(result.TotalProcessed+result.TotalFailed, result.TotalFound)
		}
	}

	return result, nil
}

// ForEach is a convenience method that processes each manifest of a container
// with a callback function.
//
// Example:
//
//	scanner.ForEach(ctx, "space", func(ctx context.Context, container, manifestID string) error {
//	    fmt.Printf("Processing %s\n", manifestID)
//	    return nil
//	})
func (s *Scanner) ForEach(ctx context.Context, container string, fn func(ctx context.Context, container, manifestID string) error) (*ScanResult, error) {
	return s.Scan(ctx, ScanOptions{
		Container: container,
		Processor: &funcProcessor{fn: fn},
	})
}
