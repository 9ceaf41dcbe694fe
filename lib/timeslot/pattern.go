// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package timeslot

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTransform is returned for a transform that is not a
// well-formed align(...) call.
var ErrInvalidTransform = errors.New("invalid alignment transform")

// templatePattern matches a field at the start of a template. Every
// group is lazy, so "{time:%Y%m%d%H%M|align(15)}" splits into key
// "time", format "%Y%m%d%H%M" and transform "align(15)".
var templatePattern = regexp.MustCompile(`^\{(.*?)(!(.*?))?(:(.*?))?(\|(.*?))?\}`)

var alignCall = regexp.MustCompile(`^\s*align\((.*)\)\s*$`)

// Pattern is one parsed template field.
type Pattern struct {
	Key        string
	Conversion string
	Format     string
	Transform  string
}

// ParsePattern parses the first field of template. It reports false
// when the template does not start with a field.
func ParsePattern(template string) (Pattern, bool) {
	match := templatePattern.FindStringSubmatch(template)
	if match == nil {
		return Pattern{}, false
	}
	return Pattern{
		Key:        match[1],
		Conversion: match[3],
		Format:     match[5],
		Transform:  match[7],
	}, true
}

// Align is a parsed align(steps, offset, add) transform. Steps and
// Offset are minutes; Add counts whole steps.
type Align struct {
	Steps  int
	Offset int
	Add    int
}

// ParseAlign parses "align(steps[,offset[,add]])".
func ParseAlign(transform string) (Align, error) {
	match := alignCall.FindStringSubmatch(transform)
	if match == nil {
		return Align{}, fmt.Errorf("%w: %q is not align(steps[,offset[,add]])", ErrInvalidTransform, transform)
	}

	arguments := strings.Split(match[1], ",")
	if len(arguments) > 3 {
		return Align{}, fmt.Errorf("%w: %q takes at most 3 arguments", ErrInvalidTransform, transform)
	}
	values := make([]int, 3)
	for index, argument := range arguments {
		value, err := strconv.Atoi(strings.TrimSpace(argument))
		if err != nil {
			return Align{}, fmt.Errorf("%w: argument %d of %q: %v", ErrInvalidTransform, index+1, transform, err)
		}
		values[index] = value
	}

	align := Align{Steps: values[0], Offset: values[1], Add: values[2]}
	if align.Steps <= 0 {
		return Align{}, fmt.Errorf("%w: steps must be positive, got %d", ErrInvalidTransform, align.Steps)
	}
	return align, nil
}

// Apply moves t down to the start of its slot and then forward by Add
// slots. Only the whole seconds since midnight take part in the
// rounding; the sub-second part of t is carried through unchanged.
// An Align without positive Steps returns t as is.
func (a Align) Apply(t time.Time) time.Time {
	if a.Steps <= 0 {
		return t
	}
	step := time.Duration(a.Steps) * time.Minute
	shifted := t.Add(-time.Duration(a.Offset) * time.Minute)

	hour, minute, second := shifted.Clock()
	sinceMidnight := hour*3600 + minute*60 + second
	remainder := sinceMidnight % int(step/time.Second)

	aligned := shifted.Add(-time.Duration(remainder) * time.Second)
	return aligned.Add(time.Duration(a.Add) * step)
}

// ComputeAlignedTime evaluates template against metadata and returns
// a single-entry map from the template key to the aligned time.
//
// ok is false, with a nil error, when the template has no field or
// metadata[key] is not a time.Time. A field without a transform
// returns the timestamp unchanged.
func ComputeAlignedTime(template string, metadata map[string]any) (result map[string]time.Time, ok bool, err error) {
	pattern, matched := ParsePattern(template)
	if !matched {
		return nil, false, nil
	}

	timestamp, isTime := metadata[pattern.Key].(time.Time)
	if !isTime {
		return nil, false, nil
	}

	if pattern.Transform == "" {
		return map[string]time.Time{pattern.Key: timestamp}, true, nil
	}

	align, err := ParseAlign(pattern.Transform)
	if err != nil {
		return nil, false, err
	}
	return map[string]time.Time{pattern.Key: align.Apply(timestamp)}, true, nil
}
