// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reffile

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/bureau-foundation/downlink/lib/unpack"
)

// DefaultMarker is the token that identifies the completion segment
// of a repeat cycle.
const DefaultMarker = "-EPI"

// MatchAll is the filter written when none is configured.
const MatchAll = ".*"

// ErrMalformedReference is returned by ParseReference for content
// that is not a reference file.
var ErrMalformedReference = errors.New("malformed reference file")

// IsCompletionMarker reports whether filename carries marker after its
// first character. An empty marker means DefaultMarker.
func IsCompletionMarker(filename, marker string) bool {
	if marker == "" {
		marker = DefaultMarker
	}
	return strings.Index(filename, marker) > 0
}

// ShouldGenerate reports whether filename is allowed to trigger
// generation under rule. "*" allows every name; anything else is a
// plain substring test.
func ShouldGenerate(filename, rule string) bool {
	if rule == "*" {
		return true
	}
	return strings.Contains(filename, rule)
}

// Reference is the content of a reference file.
type Reference struct {
	SourcePath string
	FileName   string
	Filter     string
}

// NewReference builds the reference for filename landed in sourcePath.
// The compressed extension is dropped from filename, and an empty or
// "*" filter becomes MatchAll.
func NewReference(sourcePath, filename, filter string) Reference {
	if filter == "" || filter == "*" {
		filter = MatchAll
	}
	return Reference{
		SourcePath: sourcePath,
		FileName:   unpack.TrimCompressedExtension(filename),
		Filter:     filter,
	}
}

// Bytes renders the reference with CRLF line endings.
func (r Reference) Bytes() []byte {
	var buffer bytes.Buffer
	buffer.WriteString("[REF]\r\n")
	buffer.WriteString("SourcePath = " + r.SourcePath + "\r\n")
	buffer.WriteString("FileName = " + r.FileName + "\r\n")
	buffer.WriteString("filter = " + r.Filter + "\r\n")
	return buffer.Bytes()
}

// ParseReference reads reference content. Lines may end in CRLF or LF;
// unknown keys are ignored.
func ParseReference(data []byte) (Reference, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	sawHeader := false
	var reference Reference
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !sawHeader {
			if line != "[REF]" {
				return Reference{}, fmt.Errorf("%w: first line is %q, want [REF]", ErrMalformedReference, line)
			}
			sawHeader = true
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			return Reference{}, fmt.Errorf("%w: line %q has no '='", ErrMalformedReference, line)
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "SourcePath":
			reference.SourcePath = value
		case "FileName":
			reference.FileName = value
		case "filter":
			reference.Filter = value
		}
	}
	if err := scanner.Err(); err != nil {
		return Reference{}, err
	}
	if !sawHeader {
		return Reference{}, fmt.Errorf("%w: empty", ErrMalformedReference)
	}
	return reference, nil
}
