package chunkstore

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Naming constants shared with data already stored by earlier releases.
// Changing any of them orphans existing chunked content.
const (
	ChunkSuffix      = ".dura-chunk-"
	ManifestSuffix   = ".dura-manifest"
	ManifestMimetype = "application/xml"
	SchemaVersion    = "0.2"

	// MaxChunks is the largest chunk index a manifest may hold
	MaxChunks = 9999

	chunkIndexDigits = 4
)

// ManifestHeader describes the logical item a manifest reassembles
type ManifestHeader struct {
	SourceContentID string
	SourceMimetype  string
	SourceByteSize  int64
	SourceMD5       string
}

// ManifestEntry describes one chunk
type ManifestEntry struct {
	ChunkID  string
	ChunkMD5 string
	Index    int
	ByteSize int64
}

// Manifest is the ordered record of every chunk belonging to one source item.
// It is only mutated by the Writer while chunks are being appended.
type Manifest struct {
	Header  ManifestHeader
	Entries []ManifestEntry

	nextIndex int
}

// NewManifest creates an empty manifest for the given source item
func NewManifest(sourceContentID, sourceMimetype string, sourceByteSize int64) *Manifest {
	return &Manifest{
		Header: ManifestHeader{
			SourceContentID: sourceContentID,
			SourceMimetype:  sourceMimetype,
			SourceByteSize:  sourceByteSize,
		},
		Entries: []ManifestEntry{},
	}
}

// ManifestID returns the id under which this manifest is stored
func (m *Manifest) ManifestID() string {
	return ManifestID(m.Header.SourceContentID)
}

// NextChunkID returns the id of the next chunk and advances the index counter
func (m *Manifest) NextChunkID() (string, error) {
	id, err := ChunkID(m.Header.SourceContentID, m.nextIndex)
	if err != nil {
		return "", err
	}
	m.nextIndex++
	return id, nil
}

// AddEntry appends a chunk entry, taking its index from the chunk id
func (m *Manifest) AddEntry(chunkID, chunkMD5 string, byteSize int64) error {
	if byteSize < 0 {
		return fmt.Errorf("%w: negative size %d for chunk %s", ErrInvalidManifest, byteSize, chunkID)
	}
	index, err := m.parseIndex(chunkID)
	if err != nil {
		return err
	}
	m.Entries = append(m.Entries, ManifestEntry{
		ChunkID:  chunkID,
		ChunkMD5: chunkMD5,
		Index:    index,
		ByteSize: byteSize,
	})
	if index >= m.nextIndex {
		m.nextIndex = index + 1
	}
	return nil
}

// SetSourceMD5 records the checksum of the whole logical stream
func (m *Manifest) SetSourceMD5(md5 string) {
	m.Header.SourceMD5 = md5
}

// TotalChunkSize sums the size of every entry
func (m *Manifest) TotalChunkSize() int64 {
	var total int64
	for _, e := range m.Entries {
		total += e.ByteSize
	}
	return total
}

// Body serializes the manifest with the default codec and returns it along
// with its length so it can be stored like any other object.
func (m *Manifest) Body() (io.Reader, int64, error) {
	var buf bytes.Buffer
	if err := DefaultCodec.Encode(&buf, m); err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(buf.Bytes()), int64(buf.Len()), nil
}

func (m *Manifest) parseIndex(chunkID string) (int, error) {
	prefix := m.Header.SourceContentID + ChunkSuffix
	if !strings.HasPrefix(chunkID, prefix) {
		return 0, fmt.Errorf("%w: chunk id %s does not belong to %s", ErrInvalidManifest, chunkID, m.Header.SourceContentID)
	}
	return parseIndexDigits(chunkID, strings.TrimPrefix(chunkID, prefix))
}

// ChunkID returns the id of the chunk at index for the given source item
func ChunkID(sourceContentID string, index int) (string, error) {
	if index < 0 || index > MaxChunks {
		return "", fmt.Errorf("%w: index %d for %s (max %d)", ErrMaxChunksExceeded, index, sourceContentID, MaxChunks)
	}
	return fmt.Sprintf("%s%s%0*d", sourceContentID, ChunkSuffix, chunkIndexDigits, index), nil
}

// ManifestID returns the manifest id of the given source item
func ManifestID(sourceContentID string) string {
	return sourceContentID + ManifestSuffix
}

// ParseChunkIndex extracts the index from a chunk id. The suffix marker is
// located from the right so source ids containing it still parse.
func ParseChunkIndex(chunkID string) (int, error) {
	pos := strings.LastIndex(chunkID, ChunkSuffix)
	if pos < 0 {
		return 0, fmt.Errorf("%w: %s is not a chunk id", ErrInvalidManifest, chunkID)
	}
	return parseIndexDigits(chunkID, chunkID[pos+len(ChunkSuffix):])
}

func parseIndexDigits(chunkID, digits string) (int, error) {
	if digits == "" {
		return 0, fmt.Errorf("%w: chunk id %s has no index", ErrInvalidManifest, chunkID)
	}
	index, err := strconv.Atoi(digits)
	if err != nil || index < 0 {
		return 0, fmt.Errorf("%w: chunk id %s has unparseable index %q", ErrInvalidManifest, chunkID, digits)
	}
	return index, nil
}

// SourceIDFromChunkID strips the chunk suffix and index
func SourceIDFromChunkID(chunkID string) string {
	if pos := strings.LastIndex(chunkID, ChunkSuffix); pos >= 0 {
		return chunkID[:pos]
	}
	return chunkID
}

// SourceIDFromManifestID strips the manifest suffix
func SourceIDFromManifestID(manifestID string) string {
	return strings.TrimSuffix(manifestID, ManifestSuffix)
}

// IsManifestID reports whether id names a chunk manifest
func IsManifestID(id string) bool {
	return strings.HasSuffix(id, ManifestSuffix)
}

// IsChunkID reports whether id names a chunk
func IsChunkID(id string) bool {
	return strings.Contains(id, ChunkSuffix)
}
