package chunkstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Result is the verification outcome of one chunk
type Result struct {
	ChunkID string `json:"chunk_id"`
	Error   string `json:"error,omitempty"`
	Success bool   `json:"success"`
}

// Results collects the per-chunk outcomes of a verification run
type Results struct {
	Results []Result `json:"results"`
}

// IsSuccess is true when at least one chunk was checked and every check passed
func (r *Results) IsSuccess() bool {
	if r == nil || len(r.Results) == 0 {
		return false
	}
	for _, res := range r.Results {
		if !res.Success {
			return false
		}
	}
	return true
}

// Failures returns the failed results
func (r *Results) Failures() []Result {
	var failed []Result
	for _, res := range r.Results {
		if !res.Success {
			failed = append(failed, res)
		}
	}
	return failed
}

// Verifier compares stored chunk properties with a manifest.
type Verifier struct {
	store  Store
	logger *slog.Logger
}

// NewVerifier creates a new chunk verifier
func NewVerifier(store Store, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{store: store, logger: logger}
}

// VerifyAllChunks checks the stored checksum and size of every manifest entry.
// Mismatches are reported as failed results. If the manifest lists chunks but
// none of them could be fetched, an error wrapping ErrNoChunksRetrievable is
// returned instead of a report.
func (v *Verifier) VerifyAllChunks(ctx context.Context, container string, manifest *Manifest) (*Results, error) {
	results := &Results{Results: make([]Result, 0, len(manifest.Entries))}
	unreachable := 0

	for _, entry := range manifest.Entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		props, err := v.store.GetProperties(ctx, container, entry.ChunkID)
		if err != nil {
			unreachable++
			results.Results = append(results.Results, Result{
				ChunkID: entry.ChunkID,
				Error:   fmt.Sprintf("could not retrieve properties of %s: %v", entry.ChunkID, err),
			})
			continue
		}
		results.Results = append(results.Results, v.compare(entry, props))
	}

	if len(manifest.Entries) > 0 && unreachable == len(manifest.Entries) {
		v.logger.Error("No chunk of manifest could be retrieved",
			"container", container,
			"manifest_id", manifest.ManifestID(),
			"chunks", len(manifest.Entries))
		return nil, &ManifestError{
			Container:  container,
			ManifestID: manifest.ManifestID(),
			Op:         "verify",
			Err:        fmt.Errorf("%w: none of %d chunks could be fetched", ErrNoChunksRetrievable, len(manifest.Entries)),
		}
	}

	if !results.IsSuccess() {
		v.logger.Warn("Chunk verification failed",
			"container", container,
			"manifest_id", manifest.ManifestID(),
			"failed", len(results.Failures()),
			"checked", len(results.Results))
	}
	return results, nil
}

// VerifyManifest loads the manifest stored under manifestID and verifies it
func (v *Verifier) VerifyManifest(ctx context.Context, container, manifestID string) (*Results, error) {
	manifest, _, err := NewStitcher(v.store, WithStitcherLogger(v.logger)).LoadManifest(ctx, container, manifestID)
	if err != nil {
		return nil, err
	}
	return v.VerifyAllChunks(ctx, container, manifest)
}

func (v *Verifier) compare(entry ManifestEntry, props Properties) Result {
	res := Result{ChunkID: entry.ChunkID}

	size, err := props.Size()
	if err != nil {
		res.Error = fmt.Sprintf("size of %s could not be checked: %v", entry.ChunkID, err)
		return res
	}
	checksum := props.Checksum()
	if checksum == "" {
		res.Error = fmt.Sprintf("checksum of %s could not be checked: %v", entry.ChunkID,
			fmt.Errorf("%w: %s is missing", ErrInvalidProperty, PropertyChecksum))
		return res
	}

	var problems []string
	if checksum != entry.ChunkMD5 {
		problems = append(problems, fmt.Sprintf("%v: manifest %s, stored %s", ErrChecksumMismatch, entry.ChunkMD5, checksum))
	}
	if size != entry.ByteSize {
		problems = append(problems, fmt.Sprintf("size mismatch: manifest %d, stored %d", entry.ByteSize, size))
	}
	if len(problems) > 0 {
		res.Error = fmt.Sprintf("chunk %s does not match manifest: %s", entry.ChunkID, strings.Join(problems, "; "))
		return res
	}

	res.Success = true
	return res
}
