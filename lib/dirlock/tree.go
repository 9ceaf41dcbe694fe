// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dirlock

import (
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// Tree is a set of held directory locks. The zero value is ready to
// use. A Tree must not be copied after first use.
type Tree struct {
	mu       sync.Mutex
	released *sync.Cond
	held     map[string]int
}

// Lock blocks until none of paths overlaps a held lock, then holds all
// of them and returns the function that releases them. The set is
// acquired all at once, so two callers locking {a, b} and {b, a}
// cannot deadlock. Paths within one call may overlap each other.
//
// Relative paths are resolved against the working directory.
func (t *Tree) Lock(paths ...string) (unlock func()) {
	normalized := normalize(paths)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.initLocked()
	for t.conflictsLocked(normalized) {
		t.released.Wait()
	}
	return t.holdLocked(normalized)
}

// TryLock is Lock without waiting. It reports false, and holds
// nothing, when any of paths overlaps a held lock.
func (t *Tree) TryLock(paths ...string) (unlock func(), ok bool) {
	normalized := normalize(paths)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.initLocked()
	if t.conflictsLocked(normalized) {
		return nil, false
	}
	return t.holdLocked(normalized), true
}

// Held reports the number of distinct paths currently locked.
func (t *Tree) Held() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.held)
}

func (t *Tree) initLocked() {
	if t.released == nil {
		t.released = sync.NewCond(&t.mu)
		t.held = make(map[string]int)
	}
}

func (t *Tree) holdLocked(paths []string) func() {
	for _, path := range paths {
		t.held[path]++
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			for _, path := range paths {
				t.held[path]--
				if t.held[path] == 0 {
					delete(t.held, path)
				}
			}
			t.released.Broadcast()
		})
	}
}

func (t *Tree) conflictsLocked(paths []string) bool {
	for held := range t.held {
		for _, path := range paths {
			if overlaps(held, path) {
				return true
			}
		}
	}
	return false
}

// overlaps reports whether a and b are equal or one contains the
// other.
func overlaps(a, b string) bool {
	return within(a, b) || within(b, a)
}

// within reports whether path is root or lies beneath it.
func within(path, root string) bool {
	if path == root {
		return true
	}
	if root == string(filepath.Separator) {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

func normalize(paths []string) []string {
	normalized := make([]string, 0, len(paths))
	for _, path := range paths {
		if absolute, err := filepath.Abs(path); err == nil {
			path = absolute
		} else {
			path = filepath.Clean(path)
		}
		normalized = append(normalized, path)
	}
	slices.Sort(normalized)
	return slices.Compact(normalized)
}
