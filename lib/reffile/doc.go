// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package reffile maintains the sidecar reference file that tells
// downstream consumers a destination directory holds a complete data
// set.
//
// A reference file is a small INI-style document with CRLF line
// endings:
//
//	[REF]
//	SourcePath = /data/hrit/20230101
//	FileName = H-000-MSG4__-MSG4________-_________-EPI______-202301011000-__
//	filter = .*
//
// For one destination directory the file is either [Absent] or
// [Present]. [Manager.Generate] writes fresh content and moves the
// file to Present whatever its previous state. [Manager.Touch]
// re-emits an existing file byte for byte (remove, then write the
// same bytes) so consumers that react to file creation run again; on
// an Absent file it does nothing. Generation is triggered by the
// completion marker segment (the epilogue, "-EPI" in its name);
// later segments of the same slot only touch.
//
// Writes go through a temporary sibling and a rename, and hold a
// [dirlock.Tree] lock on both the destination directory and the
// reference file's directory.
package reffile
