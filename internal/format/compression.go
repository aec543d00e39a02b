package format

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Compression identifies the byte-stream encoding of a file.
type Compression uint8

// Supported stream encodings.
const (
	None Compression = iota
	Gzip
	Zstd
	Bzip2
)

// Magic bytes identifying compressed streams.
var (
	GzipMagic  = []byte{0x1f, 0x8b}
	ZstdMagic  = []byte{0x28, 0xb5, 0x2f, 0xfd}
	Bzip2Magic = []byte{'B', 'Z', 'h'}
)

// MagicSize is the longest magic prefix.
const MagicSize = 4

func (c Compression) String() string {
	switch c {
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	case Bzip2:
		return "bzip2"
	default:
		return "none"
	}
}

// CompressionFromPath maps a file extension to its compression.
func CompressionFromPath(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip", ".bgz":
		return Gzip
	case ".zst", ".zstd":
		return Zstd
	case ".bz2", ".bzip2":
		return Bzip2
	default:
		return None
	}
}

// DetectCompression identifies compression from the leading bytes of a
// stream, falling back to the path extension when no magic matches.
func DetectCompression(header []byte, path string) Compression {
	switch {
	case bytes.HasPrefix(header, GzipMagic):
		return Gzip
	case bytes.HasPrefix(header, ZstdMagic):
		return Zstd
	case bytes.HasPrefix(header, Bzip2Magic) && len(header) >= 4 && header[3] >= '1' && header[3] <= '9':
		return Bzip2
	}
	if len(header) == 0 {
		return CompressionFromPath(path)
	}
	return None
}
