package chunkstore_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duracloud/duracloud-sub013/pkg/chunkstore"
)

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("disk on fire")
}

func TestChecksum(t *testing.T) {
	t.Run("KnownDigest", func(t *testing.T) {
		sum, err := chunkstore.Checksum(strings.NewReader("hello world"))
		require.NoError(t, err)
		assert.Equal(t, "5eb63bbbe01eeed093cb22bb8f5acdc3", sum)
	})

	t.Run("EmptyStream", func(t *testing.T) {
		sum, err := chunkstore.Checksum(strings.NewReader(""))
		require.NoError(t, err)
		assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", sum)
	})

	t.Run("ReadError", func(t *testing.T) {
		_, err := chunkstore.Checksum(failingReader{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk on fire")
	})
}

func TestDigestReader_PassesBytesThrough(t *testing.T) {
	data := bytes.Repeat([]byte("abcdefgh"), 1000)
	dr := chunkstore.NewDigestReader(bytes.NewReader(data))

	var out bytes.Buffer
	n, err := io.Copy(&out, dr)
	require.NoError(t, err)

	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, data, out.Bytes())
	assert.Equal(t, int64(len(data)), dr.BytesRead())
	assert.Equal(t, chunkstore.ChecksumBytes(data), dr.Sum())
}
