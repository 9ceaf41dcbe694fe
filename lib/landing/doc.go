// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package landing runs the downlink pipeline over files arriving in
// the configured watch directories.
//
// [Pipeline.Land] handles one file: it extracts metadata from the
// name with the target's origin pattern, aligns the timestamp to its
// time slot, composes the destination directory, skips content the
// ledger has already recorded, unpacks, and then generates or
// retriggers the slot's reference file. Every landing is recorded in
// the ledger when one is configured.
//
// [Service] owns the long-running side. Each target gets a watcher,
// a bounded queue with a single worker (so one destination tree has
// one writer), and a retention loop. The reference manager and the
// purger share one [dirlock.Tree], so a purge never removes a
// directory while a reference inside it is being written.
package landing
