// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package unpack

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
)

// DefaultXritProgram is the decompression tool used when a request
// does not name one. It is resolved relative to the working directory.
const DefaultXritProgram = "./xRITDecompress"

// Runner runs an external program with dir as its working directory
// and returns its stdout. A non-zero exit is reported as an error
// alongside whatever stdout was captured.
type Runner interface {
	Run(ctx context.Context, dir string, argv []string) ([]byte, error)
}

// ExecRunner runs programs with os/exec. Stderr is inherited from the
// current process so tool diagnostics reach the service log.
type ExecRunner struct{}

// Run starts argv[0] with the remaining arguments in dir and waits for
// it. Cancelling ctx kills the process.
func (ExecRunner) Run(ctx context.Context, dir string, argv []string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}
	command := exec.CommandContext(ctx, argv[0], argv[1:]...)
	command.Dir = dir
	var stdout bytes.Buffer
	command.Stdout = &stdout
	err := command.Run()
	return stdout.Bytes(), err
}

// xritOutputName replaces the last two characters of a segment name
// with "__", which is how the decompression tool names its output
// (e.g. "...-000001___-202301011000-C_" for input "...-CE").
func xritOutputName(base string) (string, error) {
	if len(base) < 2 {
		return "", fmt.Errorf("segment name %q is too short", base)
	}
	return base[:len(base)-2] + "__", nil
}

func (u *Unpacker) unpackXrit(ctx context.Context, request Request, destination string) (string, error) {
	base := filepath.Base(request.Path)
	name, err := xritOutputName(base)
	if err != nil {
		return "", &DecompressError{
			Compression: CompressionXrit,
			Path:        request.Path,
			Destination: destination,
			Err:         err,
		}
	}
	expected := filepath.Join(destination, name)

	// A segment already carrying the decompressed name was shipped
	// uncompressed; the tool would reject it.
	if base == name {
		u.logger.Debug("segment already decompressed", "path", request.Path)
		return request.Path, nil
	}

	program := request.Program
	if program == "" {
		program = DefaultXritProgram
	}
	argv := []string{program, request.Path}

	output, err := u.runner.Run(ctx, destination, argv)
	if err != nil {
		u.logger.Error("xrit decompression failed",
			"path", request.Path,
			"destination", destination,
			"command", argv,
			"error", err,
		)
		return "", &DecompressError{
			Compression: CompressionXrit,
			Path:        request.Path,
			Destination: destination,
			Command:     argv,
			Output:      output,
			Err:         err,
		}
	}

	u.logger.Info("extracted segment", "path", request.Path, "destination", destination)
	return expected, nil
}
