// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package timeslot normalizes timestamps extracted from segment names
// onto fixed slot boundaries, so segments of one repeat cycle are
// grouped together even when their nominal times jitter by a minute
// or two.
//
// Alignment is requested by a template in the filename pattern
// grammar:
//
//	{<key>[!<conversion>][:<format>][|<transform>]}
//
// The only transform is align(steps[,offset[,add]]), all in minutes.
// [ComputeAlignedTime] looks up metadata[key], and when it is a
// time.Time applies:
//
//	v := t - offset
//	v -= (seconds since midnight of v) mod (steps * 60)
//	v += add * steps
//
// Rounding is always down (floor). A template that does not follow
// the grammar, or a key that is absent or not a timestamp, is not an
// error: the caller gets ok == false and treats it as "no alignment
// requested". Malformed transform arguments are configuration errors
// ([ErrInvalidTransform]).
package timeslot
