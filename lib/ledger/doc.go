// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger records every landed segment in a SQLite database.
//
// The ledger answers three questions the landing pipeline cannot
// answer from the filesystem alone: whether identical content was
// already landed for a target (duplicate deliveries are common when a
// ground station retransmits), how many segments of each time slot
// have arrived and whether the slot's completion marker was among
// them, and what metadata was extracted from each name.
//
// Connections come from a zombiezen sqlitex pool with WAL journaling.
// Metadata maps are stored as deterministic CBOR so identical maps
// produce identical blobs. Timestamps are stored as Unix nanoseconds.
package ledger
