// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package retention bounds the number of dated subdirectories under a
// landing base directory.
//
// Destination layouts name one subdirectory per period
// (/data/hrit/20230101, /data/hrit/20230102, ...), so lexicographic
// order is age order. [Purger.Purge] keeps the newest limit
// subdirectories and removes the rest, oldest first. Regular files in
// the base are never counted or touched.
//
// [Purger.Run] repeats the purge on a [Schedule]: either a fixed
// interval or a five-field cron expression evaluated in the clock's
// location.
package retention
