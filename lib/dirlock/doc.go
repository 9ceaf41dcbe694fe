// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dirlock serializes in-process operations on overlapping
// directory trees.
//
// A [Tree] hands out locks on cleaned absolute paths. A lock on
// /data/20230101 conflicts with any other lock on the same path, on
// an ancestor such as /data, or on a descendant such as
// /data/20230101/ref. Locks on disjoint subtrees are held
// concurrently. This is what keeps a retention purge from removing a
// dated directory while a reference file is being rewritten inside
// it.
//
// The lock is advisory and process-local. Separate pipeline processes
// sharing a filesystem are not coordinated.
package dirlock
