// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package landing

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// relocate places a file that needs no decompression into
// destination and returns its new path. With remove set the file is
// renamed, falling back to copy and remove across filesystems.
// Otherwise it is copied and the original stays where it landed. An
// existing file of the same name is an earlier landing of the segment
// and is returned as is.
func relocate(path, destination string, remove bool) (string, error) {
	output := filepath.Join(destination, filepath.Base(path))

	if _, err := os.Stat(output); err == nil {
		if remove {
			if err := os.Remove(path); err != nil {
				return "", fmt.Errorf("removing relanded %s: %w", path, err)
			}
		}
		return output, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("checking existing output: %w", err)
	}

	if remove {
		err := os.Rename(path, output)
		if err == nil {
			return output, nil
		}
		if !errors.Is(err, unix.EXDEV) {
			return "", fmt.Errorf("moving %s: %w", path, err)
		}
	}

	if err := copyFile(path, output); err != nil {
		return "", fmt.Errorf("copying %s: %w", path, err)
	}
	if remove {
		if err := os.Remove(path); err != nil {
			return "", fmt.Errorf("removing %s after copy: %w", path, err)
		}
	}
	return output, nil
}

// copyFile copies source to a temporary sibling of output and renames
// it into place.
func copyFile(source, output string) (err error) {
	sourceFile, err := os.Open(source)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	temporary, err := os.CreateTemp(filepath.Dir(output), "."+filepath.Base(output)+".*.tmp")
	if err != nil {
		return err
	}
	temporaryPath := temporary.Name()
	defer func() {
		if err != nil {
			temporary.Close()
			os.Remove(temporaryPath)
		}
	}()

	if _, err := io.Copy(temporary, sourceFile); err != nil {
		return err
	}
	if err := temporary.Chmod(0o644); err != nil {
		return err
	}
	if err := temporary.Sync(); err != nil {
		return err
	}
	if err := temporary.Close(); err != nil {
		return err
	}
	return os.Rename(temporaryPath, output)
}
