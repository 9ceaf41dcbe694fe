// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reffile

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/bureau-foundation/downlink/lib/dirlock"
)

// ErrDestinationMissing is returned by Generate and Touch when the
// destination directory no longer exists, typically because retention
// removed it. No reference is written for a directory that is gone.
var ErrDestinationMissing = errors.New("destination directory does not exist")

// State is the lifecycle state of a reference file.
type State uint8

const (
	Absent State = iota
	Present
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Present:
		return "present"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Manager performs reference file transitions. It is safe for
// concurrent use; callers sharing a destination tree with a retention
// purger should hand both the same dirlock.Tree.
type Manager struct {
	locks  *dirlock.Tree
	logger *slog.Logger
}

// NewManager returns a Manager. A nil locks gets a private tree; a nil
// logger discards output.
func NewManager(locks *dirlock.Tree, logger *slog.Logger) *Manager {
	if locks == nil {
		locks = &dirlock.Tree{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{locks: locks, logger: logger}
}

// State reports whether the reference file at refPath exists. Errors
// other than non-existence are returned.
func (m *Manager) State(refPath string) (State, error) {
	info, err := os.Stat(refPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Absent, nil
	}
	if err != nil {
		return Absent, fmt.Errorf("checking reference file %s: %w", refPath, err)
	}
	if info.IsDir() {
		return Absent, fmt.Errorf("reference path %s is a directory", refPath)
	}
	return Present, nil
}

// Generate writes a fresh reference for filename in destDir to
// refPath, creating the reference file's directory when needed. It
// returns refPath.
func (m *Manager) Generate(destDir, filename, refPath, filter string) (string, error) {
	unlock := m.locks.Lock(destDir, filepath.Dir(refPath))
	defer unlock()
	return refPath, m.generateLocked(destDir, filename, refPath, filter)
}

func (m *Manager) generateLocked(destDir, filename, refPath, filter string) error {
	if err := requireDirectory(destDir); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(refPath), 0o755); err != nil {
		return fmt.Errorf("creating reference directory: %w", err)
	}
	reference := NewReference(destDir, filename, filter)
	if err := writeAtomic(refPath, reference.Bytes()); err != nil {
		return fmt.Errorf("writing reference file %s: %w", refPath, err)
	}
	m.logger.Info("generated reference file",
		"reference", refPath,
		"source_path", reference.SourcePath,
		"file_name", reference.FileName,
	)
	return nil
}

// Touch re-emits the reference file at refPath with identical
// content. It reports whether a file was touched; an absent reference
// is left absent and is not an error.
func (m *Manager) Touch(destDir, refPath string) (bool, error) {
	unlock := m.locks.Lock(destDir, filepath.Dir(refPath))
	defer unlock()
	return m.touchLocked(destDir, refPath)
}

func (m *Manager) touchLocked(destDir, refPath string) (bool, error) {
	if err := requireDirectory(destDir); err != nil {
		return false, err
	}
	content, err := os.ReadFile(refPath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading reference file %s: %w", refPath, err)
	}
	if err := os.Remove(refPath); err != nil {
		return false, fmt.Errorf("removing reference file %s: %w", refPath, err)
	}
	if err := writeAtomic(refPath, content); err != nil {
		return false, fmt.Errorf("rewriting reference file %s: %w", refPath, err)
	}
	m.logger.Debug("retriggered reference file", "reference", refPath)
	return true, nil
}

// Reconcile brings the reference for destDir up to date after files
// were placed there outside the landing pipeline. A present reference
// is touched. An absent one is generated from the first completion
// marker file in destDir, by name order. Without a marker file nothing
// happens. The resulting state is returned.
func (m *Manager) Reconcile(destDir, refPath, marker, filter string) (State, error) {
	unlock := m.locks.Lock(destDir, filepath.Dir(refPath))
	defer unlock()

	touched, err := m.touchLocked(destDir, refPath)
	if err != nil {
		return Absent, err
	}
	if touched {
		return Present, nil
	}

	entries, err := os.ReadDir(destDir)
	if err != nil {
		return Absent, fmt.Errorf("listing %s: %w", destDir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	slices.Sort(names)
	for _, name := range names {
		if !IsCompletionMarker(name, marker) {
			continue
		}
		if err := m.generateLocked(destDir, name, refPath, filter); err != nil {
			return Absent, err
		}
		return Present, nil
	}
	m.logger.Debug("no completion marker, reference left absent", "destination", destDir)
	return Absent, nil
}

// requireDirectory checks that destDir exists and is a directory. It
// must be called with destDir locked.
func requireDirectory(destDir string) error {
	info, err := os.Stat(destDir)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrDestinationMissing, destDir)
	}
	if err != nil {
		return fmt.Errorf("checking destination %s: %w", destDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("destination %s is not a directory", destDir)
	}
	return nil
}

// writeAtomic writes data to a temporary sibling of path, syncs it, and
// renames it into place. The parent directory is synced after the
// rename so the new entry survives a crash.
func writeAtomic(path string, data []byte) error {
	file, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	temporaryPath := file.Name()

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return err
	}
	if err := file.Chmod(0o644); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return err
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return err
	}

	parentDirectory, err := os.Open(filepath.Dir(path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}
	return nil
}
