// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package retention

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

// Purger removes the oldest subdirectories of a base directory. Safe
// for concurrent use.
type Purger struct {
	locks     *dirlock.Tree
	logger    *slog.Logger
	removeAll func(path string) error
}

// NewPurger returns a Purger. A nil locks gets a private tree; a nil
// logger discards output.
func NewPurger(locks *dirlock.Tree, logger *slog.Logger) *Purger {
	if locks == nil {
		locks = &dirlock.Tree{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Purger{locks: locks, logger: logger, removeAll: os.RemoveAll}
}

// Purge keeps at most limit immediate subdirectories of base and
// returns how many it removed. A symbolic link to a directory counts
// as a subdirectory; removing it removes the link, not its target.
// Removals are attempted independently;
// when some fail, the count of those that succeeded is returned with
// the joined errors.
func (p *Purger) Purge(base string, limit int) (int, error) {
	if limit < 0 {
		return 0, fmt.Errorf("retention limit must not be negative, got %d", limit)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		return 0, fmt.Errorf("listing retention base: %w", err)
	}

	var subdirectories []string
	for _, entry := range entries {
		if isDirectory(base, entry) {
			subdirectories = append(subdirectories, entry.Name())
		}
	}
	if len(subdirectories) <= limit {
		p.logger.Debug("nothing to purge",
			"base", base,
			"subdirectories", len(subdirectories),
			"limit", limit,
		)
		return 0, nil
	}

	slices.Sort(subdirectories)
	excess := subdirectories[:len(subdirectories)-limit]

	removed := 0
	var errs []error
	for _, name := range excess {
		path := filepath.Join(base, name)
		if err := p.remove(path); err != nil {
			p.logger.Error("purging subdirectory failed", "path", path, "error", err)
			errs = append(errs, fmt.Errorf("removing %s: %w", path, err))
			continue
		}
		p.logger.Info("purged subdirectory", "path", path)
		removed++
	}
	return removed, errors.Join(errs...)
}

// isDirectory reports whether entry is a directory, following a
// symbolic link. Dangling links are not directories.
func isDirectory(base string, entry fs.DirEntry) bool {
	if entry.Type()&fs.ModeSymlink == 0 {
		return entry.IsDir()
	}
	info, err := os.Stat(filepath.Join(base, entry.Name()))
	return err == nil && info.IsDir()
}

func (p *Purger) remove(path string) error {
	unlock := p.locks.Lock(path)
	defer unlock()
	return p.removeAll(path)
}
