package chunkstore

import (
	"crypto/md5"
	"encoding/hex"
	"hash"
	"io"
)

// Checksum returns the lowercase hex MD5 of everything readable from r.
func Checksum(r io.Reader) (string, error) {
	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ChecksumBytes returns the lowercase hex MD5 of data
func ChecksumBytes(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// DigestReader passes bytes through unmodified while accumulating their MD5.
type DigestReader struct {
	r    io.Reader
	hash hash.Hash
	n    int64
}

// NewDigestReader wraps r
func NewDigestReader(r io.Reader) *DigestReader {
	return &DigestReader{r: r, hash: md5.New()}
}

func (d *DigestReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if n > 0 {
		d.hash.Write(p[:n])
		d.n += int64(n)
	}
	return n, err
}

// Sum returns the hex digest of the bytes read so far
func (d *DigestReader) Sum() string {
	return hex.EncodeToString(d.hash.Sum(nil))
}

// BytesRead returns the number of bytes read so far
func (d *DigestReader) BytesRead() int64 {
	return d.n
}
