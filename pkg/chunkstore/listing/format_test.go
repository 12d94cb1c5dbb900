package listing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duracloud/duracloud-sub013/pkg/chunkstore/listing"
)

func TestFormatters_ParseFormat(t *testing.T) {
	formatters := listing.NewFormatters()
	item := listing.Item{SpaceID: "space", ContentID: "dir/a b.txt", Checksum: "0cc175b9c0f1b6a831c399e269772661"}

	tests := []struct {
		format    listing.Format
		wantLine  string
		wantSpace string
	}{
		{listing.FormatTSV, "space\tdir/a b.txt\t0cc175b9c0f1b6a831c399e269772661", "space"},
		{listing.FormatBagIt, "0cc175b9c0f1b6a831c399e269772661  data/dir/a b.txt", ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			formatter, err := formatters.Get(tt.format)
			require.NoError(t, err)

			line := formatter.Format(item)
			assert.Equal(t, tt.wantLine, line)

			parsed, err := formatter.Parse(line)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSpace, parsed.SpaceID)
			assert.Equal(t, item.ContentID, parsed.ContentID)
			assert.Equal(t, item.Checksum, parsed.Checksum)
		})
	}
}

func TestFormatters_Headers(t *testing.T) {
	formatters := listing.NewFormatters()

	tsv, err := formatters.Get(listing.FormatTSV)
	require.NoError(t, err)
	assert.Equal(t, "space-id\tcontent-id\tMD5", tsv.Header())

	bagit, err := formatters.Get(listing.FormatBagIt)
	require.NoError(t, err)
	assert.Empty(t, bagit.Header())
}

func TestFormatters_ParseErrors(t *testing.T) {
	formatters := listing.NewFormatters()
	tsv, _ := formatters.Get(listing.FormatTSV)
	bagit, _ := formatters.Get(listing.FormatBagIt)

	_, err := tsv.Parse("only\ttwo")
	assert.Error(t, err)

	_, err = bagit.Parse("no-separator")
	assert.Error(t, err)

	_, err = bagit.Parse("abc  outside/file")
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := listing.ParseFormat("TSV")
	require.NoError(t, err)
	assert.Equal(t, listing.FormatTSV, f)

	f, err = listing.ParseFormat("bagit")
	require.NoError(t, err)
	assert.Equal(t, listing.FormatBagIt, f)

	_, err = listing.ParseFormat("csv")
	assert.Error(t, err)

	_, err = listing.NewFormatters().Get("csv")
	assert.Error(t, err)
}
