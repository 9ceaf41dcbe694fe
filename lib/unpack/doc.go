// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package unpack turns a landed downlink segment into its working
// (decompressed) file.
//
// The strategy is selected from a closed set of [Compression] values.
// Names are resolved by [ParseCompression]; an unknown name is a
// configuration error ([ErrUnknownCompression]), never a fallback to
// a pass-through.
//
//   - none: the landed path is returned unchanged. Nothing is written.
//   - bzip2, gzip, zstd, lz4: the file is streamed through the decoder
//     in [BlockSize] blocks into the working directory. The output
//     name is the input name with the compressed extension stripped.
//     If that output already exists the source is not opened again,
//     which makes repeated landings of the same segment idempotent.
//     Output is written to a temporary sibling and renamed into place.
//   - xrit: the external decompression tool (default
//     [DefaultXritProgram]) is run as "<program> <path>" with the
//     working directory as its cwd. The expected output replaces the
//     last two characters of the input name with "__". The tool only
//     writes to local storage, so a working directory with a non-file
//     URL scheme fails with [ErrNonLocalDestination] before anything
//     is started.
//
// Failures are reported as [*DecompressError] carrying the path, the
// attempted command, and (for xrit) the tool's stdout. The original
// file is removed only after a successful decompression and only when
// [Request.Delete] is truthy.
//
// The dispatcher applies no timeout of its own. The context passed to
// [Unpacker.Unpack] is handed to the external process, so callers
// bound tool runtime by cancelling it.
package unpack
