// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fnpattern extracts metadata from segment file names and
// composes paths back from metadata.
//
// A pattern is literal text with fields in braces:
//
//	H-000-{platform:4s}__-{channel}-{segment}-{time:%Y%m%d%H%M}-{flags:2s}
//
// Field formats:
//
//	{key}         any text, shortest match
//	{key:Ns}      exactly N characters
//	{key:d}       integer
//	{key:Nd}      integer of exactly N digits (0Nd pads with zeros on compose)
//	{key:%...}    timestamp in strftime notation, parsed as UTC
//
// A field may also carry a conversion after '!' and a transform after
// '|', as in {time:%Y%m%d%H%M|align(15)}. Both are accepted and
// ignored here; the timeslot package interprets transforms.
package fnpattern
