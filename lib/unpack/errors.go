// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package unpack

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownCompression is returned for a compression name outside
	// the supported set.
	ErrUnknownCompression = errors.New("unknown compression")

	// ErrNonLocalDestination is returned when a strategy that writes
	// to the local filesystem is given a remote working directory.
	ErrNonLocalDestination = errors.New("destination has to be local")

	// ErrOutputCollision is returned when the derived output path
	// would overwrite the landed file itself.
	ErrOutputCollision = errors.New("output path equals input path")
)

// DecompressError describes a failed decompression. The original file
// is left in place whenever this error is returned.
type DecompressError struct {
	Compression Compression
	// Path is the landed file.
	Path string
	// Destination is the resolved working directory.
	Destination string
	// Command is the external tool invocation, empty for in-process
	// strategies.
	Command []string
	// Output is the tool's captured stdout.
	Output []byte
	Err    error
}

func (e *DecompressError) Error() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "unpack %s %s", e.Compression, e.Path)
	if e.Destination != "" {
		fmt.Fprintf(&builder, " into %s", e.Destination)
	}
	if len(e.Command) > 0 {
		fmt.Fprintf(&builder, " (command %q)", strings.Join(e.Command, " "))
	}
	fmt.Fprintf(&builder, ": %v", e.Err)
	if output := strings.TrimSpace(string(e.Output)); output != "" {
		fmt.Fprintf(&builder, ": %s", output)
	}
	return builder.String()
}

func (e *DecompressError) Unwrap() error { return e.Err }
