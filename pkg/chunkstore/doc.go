// Package chunkstore splits large content items into bounded-size chunks on an
// object store and stitches them back together on demand.
//
// A chunked item is stored as a family of objects sharing the source content
// id: one object per chunk (`<id>.dura-chunk-NNNN`) plus a manifest
// (`<id>.dura-manifest`) recording every chunk's checksum, index and size.
// The Writer produces that family, the Verifier checks stored chunks against
// the manifest, and the Stitcher reads the chunks back as one logical stream.
//
// Store implementations (memory, filesystem, S3) live under storage/, catalog
// implementations (memory, Postgres) under catalog/.
package chunkstore
