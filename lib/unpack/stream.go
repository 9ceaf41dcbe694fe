// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package unpack

import (
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// BlockSize is the read size used when streaming a decoder into the
// output file.
const BlockSize = 1024

// openDecoder wraps source in the decoder for compression. The
// returned closer releases decoder state; it never closes source.
func openDecoder(compression Compression, source io.Reader) (io.Reader, func(), error) {
	switch compression {
	case CompressionBzip2:
		return bzip2.NewReader(source), func() {}, nil
	case CompressionGzip:
		reader, err := gzip.NewReader(source)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip header: %w", err)
		}
		return reader, func() { reader.Close() }, nil
	case CompressionZstd:
		decoder, err := zstd.NewReader(source, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, nil, fmt.Errorf("zstd decoder: %w", err)
		}
		return decoder, decoder.Close, nil
	case CompressionLZ4:
		return lz4.NewReader(source), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s is not a stream compression", ErrUnknownCompression, compression)
	}
}

func (u *Unpacker) unpackStream(request Request, destination string) (string, error) {
	fail := func(err error) (string, error) {
		return "", &DecompressError{
			Compression: request.Compression,
			Path:        request.Path,
			Destination: destination,
			Err:         err,
		}
	}

	output := filepath.Join(destination, outputName(filepath.Base(request.Path), request.Compression))
	if filepath.Clean(output) == filepath.Clean(request.Path) {
		return fail(ErrOutputCollision)
	}

	// An existing output means this segment was already unpacked.
	// The source is not opened again.
	if _, err := os.Stat(output); err == nil {
		u.logger.Debug("unpacked file already present", "path", request.Path, "output", output)
		return output, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fail(fmt.Errorf("checking existing output: %w", err))
	}

	written, err := decompressFile(request.Compression, request.Path, output)
	if err != nil {
		return fail(err)
	}

	u.logger.Debug("unpacked segment",
		"path", request.Path,
		"output", output,
		"compression", request.Compression.String(),
		"size", humanize.IBytes(uint64(written)),
	)
	return output, nil
}

// decompressFile streams source through the decoder into a temporary
// file next to output and renames it into place. The source handle is
// closed on every return path and the temporary file is removed on
// failure.
func decompressFile(compression Compression, source, output string) (written int64, err error) {
	sourceFile, err := os.Open(source)
	if err != nil {
		return 0, fmt.Errorf("opening source: %w", err)
	}
	defer sourceFile.Close()

	decoder, release, err := openDecoder(compression, sourceFile)
	if err != nil {
		return 0, err
	}
	defer release()

	temporary, err := os.CreateTemp(filepath.Dir(output), "."+filepath.Base(output)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("creating temporary output: %w", err)
	}
	temporaryPath := temporary.Name()
	defer func() {
		if err != nil {
			temporary.Close()
			os.Remove(temporaryPath)
		}
	}()

	block := make([]byte, BlockSize)
	for {
		count, readErr := decoder.Read(block)
		if count > 0 {
			if _, err := temporary.Write(block[:count]); err != nil {
				return written, fmt.Errorf("writing %s: %w", temporaryPath, err)
			}
			written += int64(count)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return written, fmt.Errorf("decoding %s: %w", source, readErr)
		}
	}

	if err := temporary.Chmod(0o644); err != nil {
		return written, fmt.Errorf("setting output mode: %w", err)
	}
	if err := temporary.Sync(); err != nil {
		return written, fmt.Errorf("syncing output: %w", err)
	}
	if err := temporary.Close(); err != nil {
		return written, fmt.Errorf("closing output: %w", err)
	}
	if err := os.Rename(temporaryPath, output); err != nil {
		return written, fmt.Errorf("renaming output into place: %w", err)
	}
	return written, nil
}
