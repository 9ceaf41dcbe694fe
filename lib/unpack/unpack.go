// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package unpack

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Request describes one landed file to unpack.
type Request struct {
	// Path is the landed file. It must exist on local storage.
	Path string

	Compression Compression

	// WorkingDirectory receives the decompressed file. A plain path or
	// a file:// URL; empty means os.TempDir().
	WorkingDirectory string

	// Program overrides the external tool for xrit. Ignored by other
	// strategies.
	Program string

	// Delete removes Path after a successful decompression when
	// truthy.
	Delete Truthy
}

// Unpacker dispatches landed files to their decompression strategy.
// An Unpacker is stateless apart from its collaborators and is safe
// for concurrent use.
type Unpacker struct {
	logger *slog.Logger
	runner Runner
}

// New returns an Unpacker. A nil logger discards output; a nil runner
// runs external tools with os/exec.
func New(logger *slog.Logger, runner Runner) *Unpacker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Unpacker{logger: logger, runner: runner}
}

// Unpack produces the working file for request and returns its path.
// For CompressionNone that is request.Path itself.
func (u *Unpacker) Unpack(ctx context.Context, request Request) (string, error) {
	if request.Compression == CompressionNone {
		return request.Path, nil
	}

	destination, err := ResolveDestination(request.WorkingDirectory)
	if err != nil {
		u.logger.Error("cannot unpack to non-local destination",
			"path", request.Path,
			"compression", request.Compression.String(),
			"destination", request.WorkingDirectory,
		)
		return "", &DecompressError{
			Compression: request.Compression,
			Path:        request.Path,
			Destination: request.WorkingDirectory,
			Err:         err,
		}
	}

	var output string
	switch request.Compression {
	case CompressionXrit:
		output, err = u.unpackXrit(ctx, request, destination)
	case CompressionBzip2, CompressionGzip, CompressionZstd, CompressionLZ4:
		output, err = u.unpackStream(request, destination)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownCompression, request.Compression)
	}
	if err != nil {
		return "", err
	}

	if request.Delete.Enabled() && output != request.Path {
		if err := os.Remove(request.Path); err != nil {
			return "", fmt.Errorf("removing unpacked original %s: %w", request.Path, err)
		}
		u.logger.Debug("removed unpacked original", "path", request.Path)
	}
	return output, nil
}

// ResolveDestination maps a working directory setting to a local
// path. An empty setting is os.TempDir() and a scheme other than file
// is ErrNonLocalDestination. Scheme-less values are taken as paths verbatim so that names
// containing '%' or spaces are not mangled by URL parsing.
func ResolveDestination(workingDirectory string) (string, error) {
	if workingDirectory == "" {
		return os.TempDir(), nil
	}
	if !strings.Contains(workingDirectory, "://") {
		return workingDirectory, nil
	}
	parsed, err := url.Parse(workingDirectory)
	if err != nil {
		return "", fmt.Errorf("parsing working directory %q: %w", workingDirectory, err)
	}
	switch parsed.Scheme {
	case "", "file":
		if parsed.Path == "" {
			return "", fmt.Errorf("working directory %q has no path", workingDirectory)
		}
		return parsed.Path, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrNonLocalDestination, workingDirectory)
	}
}

// outputName derives the decompressed name for a stream strategy. The
// compression's own extension is stripped; a file landed without it
// falls back to dropping whatever extension it has.
func outputName(base string, compression Compression) string {
	if trimmed, found := strings.CutSuffix(base, compression.Extension()); found && trimmed != "" {
		return trimmed
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
