// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package unpack

import (
	"fmt"
	"strings"
)

// Compression identifies how a landed file is packed.
type Compression uint8

const (
	// CompressionNone passes the landed file through unchanged.
	CompressionNone Compression = iota

	// CompressionBzip2 is a bzip2 stream with a ".bz2" extension.
	CompressionBzip2

	// CompressionXrit is the proprietary wavelet compression used by
	// HRIT/LRIT segments. Decoding is delegated to an external tool.
	CompressionXrit

	// CompressionGzip is a gzip stream with a ".gz" extension.
	CompressionGzip

	// CompressionZstd is a zstd frame with a ".zst" extension.
	CompressionZstd

	// CompressionLZ4 is an LZ4 frame with a ".lz4" extension.
	CompressionLZ4
)

// String returns the configuration name of the compression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionBzip2:
		return "bzip2"
	case CompressionXrit:
		return "xrit"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression resolves a configuration name. The empty string
// means none. "bzip" is accepted as an alias for bzip2 because older
// feed configurations use it.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return CompressionNone, nil
	case "bzip2", "bzip":
		return CompressionBzip2, nil
	case "xrit":
		return CompressionXrit, nil
	case "gzip":
		return CompressionGzip, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return CompressionNone, fmt.Errorf("%w: %q", ErrUnknownCompression, name)
	}
}

// Extension returns the file extension a compressed file of this kind
// carries, or "" for none and xrit.
func (c Compression) Extension() string {
	switch c {
	case CompressionBzip2:
		return ".bz2"
	case CompressionGzip:
		return ".gz"
	case CompressionZstd:
		return ".zst"
	case CompressionLZ4:
		return ".lz4"
	default:
		return ""
	}
}

// UnmarshalText lets Compression be decoded directly from YAML and
// JSON configuration.
func (c *Compression) UnmarshalText(text []byte) error {
	parsed, err := ParseCompression(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// MarshalText encodes the configuration name.
func (c Compression) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

var compressedExtensions = []string{".bz2", ".gz", ".zst", ".lz4"}

// TrimCompressedExtension removes a compressed-file extension from a
// file name. The extension is cut wherever it first appears, so
// "IMG-EPI.bz2.part" becomes "IMG-EPI". Names without a known
// extension are returned unchanged.
func TrimCompressedExtension(name string) string {
	cut := -1
	for _, extension := range compressedExtensions {
		index := strings.Index(name, extension)
		if index < 0 {
			continue
		}
		end := index + len(extension)
		// ".gz" inside ".gzip" or a longer word is not an extension.
		if end < len(name) && name[end] != '.' {
			continue
		}
		if cut < 0 || index < cut {
			cut = index
		}
	}
	if cut < 0 {
		return name
	}
	return name[:cut]
}

// Truthy is a configuration flag spelled as text. "1", "yes", "true"
// and "on" (any case) enable it; everything else, including the empty
// string, disables it.
type Truthy string

// Enabled reports whether the flag is set.
func (t Truthy) Enabled() bool {
	switch strings.ToLower(strings.TrimSpace(string(t))) {
	case "1", "yes", "true", "on":
		return true
	default:
		return false
	}
}
