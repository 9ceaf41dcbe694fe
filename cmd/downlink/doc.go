// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Downlink lands satellite data segments.
//
// "downlink run" watches the configured landing directories. Each
// arriving segment is matched against its target's filename pattern,
// assigned to a time slot, decompressed into the slot's directory, and
// recorded in the ledger. When a slot's completion marker arrives, a
// reference file pointing at the directory is generated; later
// segments of the slot retrigger it. Retention keeps each archive to a
// fixed number of dated directories.
//
// The remaining subcommands (unpack, align, ref, purge, slots) run a
// single step by hand. Configuration is read from --config or
// DOWNLINK_CONFIG; see package config for the file format.
package main
