package listing

import (
	"fmt"
	"strings"
)

// Format identifies a content listing layout
type Format string

const (
	// FormatTSV is a tab separated listing with a header line
	FormatTSV Format = "tsv"
	// FormatBagIt is a BagIt md5 manifest, one "<md5>  data/<id>" line per item
	FormatBagIt Format = "bagit"
)

// Item is one entry of a content listing
type Item struct {
	SpaceID   string
	ContentID string
	Checksum  string
}

// Formatter reads and writes the lines of one listing format
type Formatter interface {
	// Header returns the first line of a listing, or "" if the format has none
	Header() string
	Parse(line string) (Item, error)
	Format(item Item) string
}

// Formatters maps every supported format to its formatter
type Formatters map[Format]Formatter

// NewFormatters returns the formatters of all supported formats
func NewFormatters() Formatters {
	return Formatters{
		FormatTSV:   tsvFormatter{},
		FormatBagIt: bagitFormatter{},
	}
}

// Get returns the formatter for format
func (f Formatters) Get(format Format) (Formatter, error) {
	formatter, ok := f[format]
	if !ok {
		return nil, fmt.Errorf("unsupported listing format %q", format)
	}
	return formatter, nil
}

// ParseFormat converts a user supplied name into a Format
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(name)) {
	case FormatTSV:
		return FormatTSV, nil
	case FormatBagIt:
		return FormatBagIt, nil
	}
	return "", fmt.Errorf("unsupported listing format %q", name)
}

type tsvFormatter struct{}

func (tsvFormatter) Header() string {
	return "space-id\tcontent-id\tMD5"
}

func (tsvFormatter) Parse(line string) (Item, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 3 {
		return Item{}, fmt.Errorf("expected 3 tab separated fields, got %d: %q", len(fields), line)
	}
	return Item{SpaceID: fields[0], ContentID: fields[1], Checksum: fields[2]}, nil
}

func (tsvFormatter) Format(item Item) string {
	return item.SpaceID + "\t" + item.ContentID + "\t" + item.Checksum
}

const bagitDataDir = "data/"

type bagitFormatter struct{}

func (bagitFormatter) Header() string {
	return ""
}

func (bagitFormatter) Parse(line string) (Item, error) {
	checksum, path, ok := strings.Cut(line, "  ")
	if !ok || checksum == "" {
		return Item{}, fmt.Errorf("expected \"<md5>  <path>\": %q", line)
	}
	if !strings.HasPrefix(path, bagitDataDir) {
		return Item{}, fmt.Errorf("path outside %s: %q", bagitDataDir, line)
	}
	return Item{ContentID: strings.TrimPrefix(path, bagitDataDir), Checksum: checksum}, nil
}

func (bagitFormatter) Format(item Item) string {
	return item.Checksum + "  " + bagitDataDir + item.ContentID
}
