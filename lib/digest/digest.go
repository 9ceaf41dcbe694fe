// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package digest fingerprints landed segment files. The landing ledger
// keys duplicate detection on these digests, so a segment delivered
// twice under different transfer names is recognized.
package digest

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 keyed digest of file content.
type Hash [32]byte

// segmentKey separates segment digests from any other BLAKE3 use of
// the same bytes. Changing it invalidates every digest in existing
// ledgers.
var segmentKey = [32]byte{
	'd', 'o', 'w', 'n', 'l', 'i', 'n', 'k', '.', 's', 'e', 'g', 'm', 'e', 'n', 't',
}

func newHasher() *blake3.Hasher {
	hasher, err := blake3.NewKeyed(segmentKey[:])
	if err != nil {
		panic("digest: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return hasher
}

// File streams the file at path through the hash.
func File(path string) (Hash, error) {
	file, err := os.Open(path)
	if err != nil {
		return Hash{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()
	return Reader(file)
}

// Reader hashes everything read from reader.
func Reader(reader io.Reader) (Hash, error) {
	hasher := newHasher()
	if _, err := io.Copy(hasher, reader); err != nil {
		return Hash{}, fmt.Errorf("hashing: %w", err)
	}
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash, nil
}

// Bytes hashes data.
func Bytes(data []byte) Hash {
	hasher := newHasher()
	hasher.Write(data)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// String returns the lowercase hex encoding.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether h is the zero value.
func (h Hash) IsZero() bool { return h == Hash{} }

// Parse decodes a 64-character hex digest.
func Parse(text string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(text)
	if err != nil {
		return hash, fmt.Errorf("parsing digest: %w", err)
	}
	if len(decoded) != len(hash) {
		return hash, fmt.Errorf("digest is %d bytes, want %d", len(decoded), len(hash))
	}
	copy(hash[:], decoded)
	return hash, nil
}
