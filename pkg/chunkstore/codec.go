package chunkstore

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Codec serializes and deserializes manifests.
type Codec interface {
	Encode(w io.Writer, m *Manifest) error
	Decode(r io.Reader) (*Manifest, error)
}

// DefaultCodec is the codec used for stored manifests
var DefaultCodec Codec = &XMLCodec{}

// XMLCodec implements the versioned XML manifest document.
type XMLCodec struct{}

type xmlManifest struct {
	XMLName       xml.Name   `xml:"chunksManifest"`
	SchemaVersion string     `xml:"schemaVersion,attr"`
	Header        xmlHeader  `xml:"header"`
	Chunks        []xmlChunk `xml:"chunks>chunk"`
}

type xmlHeader struct {
	SchemaVersion string            `xml:"schemaVersion,attr,omitempty"`
	SourceContent *xmlSourceContent `xml:"sourceContent"`
}

type xmlSourceContent struct {
	ContentID string `xml:"contentId,attr"`
	Mimetype  string `xml:"mimetype"`
	ByteSize  string `xml:"byteSize"`
	MD5       string `xml:"md5"`
}

type xmlChunk struct {
	ChunkID  string `xml:"chunkId,attr"`
	Index    string `xml:"index,attr"`
	ByteSize string `xml:"byteSize"`
	MD5      string `xml:"md5"`
}

// Encode writes m as an indented XML document
func (c *XMLCodec) Encode(w io.Writer, m *Manifest) error {
	if m == nil {
		return errors.New("manifest: nil manifest")
	}
	doc := xmlManifest{
		SchemaVersion: SchemaVersion,
		Header: xmlHeader{
			SchemaVersion: SchemaVersion,
			SourceContent: &xmlSourceContent{
				ContentID: m.Header.SourceContentID,
				Mimetype:  m.Header.SourceMimetype,
				ByteSize:  strconv.FormatInt(m.Header.SourceByteSize, 10),
				MD5:       m.Header.SourceMD5,
			},
		},
		Chunks: make([]xmlChunk, 0, len(m.Entries)),
	}
	for _, e := range m.Entries {
		doc.Chunks = append(doc.Chunks, xmlChunk{
			ChunkID:  e.ChunkID,
			Index:    strconv.Itoa(e.Index),
			ByteSize: strconv.FormatInt(e.ByteSize, 10),
			MD5:      e.ChunkMD5,
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("manifest: encode: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// Decode parses a manifest document. The stored index of every entry is kept
// as written; readers decide how to treat a disagreement with the chunk id.
func (c *XMLCodec) Decode(r io.Reader) (*Manifest, error) {
	var doc xmlManifest
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: malformed document: %v", ErrInvalidManifest, err)
	}
	if doc.SchemaVersion != "" && doc.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: unsupported schema version %q", ErrInvalidManifest, doc.SchemaVersion)
	}
	src := doc.Header.SourceContent
	if src == nil {
		return nil, fmt.Errorf("%w: missing sourceContent header", ErrInvalidManifest)
	}
	if strings.TrimSpace(src.ContentID) == "" {
		return nil, fmt.Errorf("%w: missing source contentId", ErrInvalidManifest)
	}
	size, err := parseSize("source byteSize", src.ByteSize)
	if err != nil {
		return nil, err
	}

	m := NewManifest(src.ContentID, src.Mimetype, size)
	m.Header.SourceMD5 = src.MD5
	for _, ch := range doc.Chunks {
		if ch.ChunkID == "" {
			return nil, fmt.Errorf("%w: chunk without chunkId", ErrInvalidManifest)
		}
		chunkSize, err := parseSize("byteSize of "+ch.ChunkID, ch.ByteSize)
		if err != nil {
			return nil, err
		}
		index, err := strconv.Atoi(strings.TrimSpace(ch.Index))
		if err != nil || index < 0 {
			return nil, fmt.Errorf("%w: index %q of %s is not a number", ErrInvalidManifest, ch.Index, ch.ChunkID)
		}
		m.Entries = append(m.Entries, ManifestEntry{
			ChunkID:  ch.ChunkID,
			ChunkMD5: ch.MD5,
			Index:    index,
			ByteSize: chunkSize,
		})
		if index >= m.nextIndex {
			m.nextIndex = index + 1
		}
	}
	return m, nil
}

func parseSize(field, value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("%w: missing %s", ErrInvalidManifest, field)
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s %q is not a valid size", ErrInvalidManifest, field, value)
	}
	return n, nil
}
