// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fnpattern

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
)

var (
	// ErrInvalidPattern is returned by Compile for malformed patterns.
	ErrInvalidPattern = errors.New("invalid filename pattern")

	// ErrNoMatch is returned by Parse when a name does not fit the
	// pattern.
	ErrNoMatch = errors.New("name does not match pattern")
)

var fieldSyntax = regexp.MustCompile(`^([^!:|]+)(?:!([^:|]*))?(?::([^|]*))?(?:\|(.*))?$`)

var widthSpec = regexp.MustCompile(`^(0?)(\d*)([sd])$`)

type kind uint8

const (
	kindString kind = iota
	kindInteger
	kindTime
)

type field struct {
	key       string
	spec      string
	kind      kind
	width     int
	zeroPad   bool
	timeShape string
}

type segment struct {
	literal string
	field   *field
}

// Pattern is a compiled filename pattern. Safe for concurrent use.
type Pattern struct {
	text     string
	segments []segment
	fields   []*field
	matcher  *regexp.Regexp
}

// Compile parses pattern.
func Compile(pattern string) (*Pattern, error) {
	compiled := &Pattern{text: pattern}
	var expression strings.Builder
	expression.WriteString("^")

	rest := pattern
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			if strings.Contains(rest, "}") {
				return nil, fmt.Errorf("%w: unbalanced '}' in %q", ErrInvalidPattern, pattern)
			}
			compiled.addLiteral(rest, &expression)
			break
		}
		if strings.Contains(rest[:open], "}") {
			return nil, fmt.Errorf("%w: unbalanced '}' in %q", ErrInvalidPattern, pattern)
		}
		if open > 0 {
			compiled.addLiteral(rest[:open], &expression)
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			return nil, fmt.Errorf("%w: unterminated field in %q", ErrInvalidPattern, pattern)
		}
		parsed, err := parseField(rest[open+1 : open+closing])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
		compiled.segments = append(compiled.segments, segment{field: parsed})
		compiled.fields = append(compiled.fields, parsed)
		expression.WriteString("(" + parsed.expression() + ")")
		rest = rest[open+closing+1:]
	}

	expression.WriteString("$")
	matcher, err := regexp.Compile(expression.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	compiled.matcher = matcher
	return compiled, nil
}

// MustCompile is Compile for patterns known to be valid. It panics on
// error.
func MustCompile(pattern string) *Pattern {
	compiled, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return compiled
}

func (p *Pattern) addLiteral(text string, expression *strings.Builder) {
	p.segments = append(p.segments, segment{literal: text})
	expression.WriteString(regexp.QuoteMeta(text))
}

func parseField(body string) (*field, error) {
	match := fieldSyntax.FindStringSubmatch(body)
	if match == nil {
		return nil, fmt.Errorf("field {%s} has no key", body)
	}
	parsed := &field{key: match[1], spec: match[3]}

	switch {
	case parsed.spec == "":
		parsed.kind = kindString
	case strings.HasPrefix(parsed.spec, "%"):
		shape, err := strftime.Layout(parsed.spec)
		if err != nil {
			return nil, fmt.Errorf("field {%s}: %v", body, err)
		}
		parsed.kind = kindTime
		parsed.timeShape = shape
	default:
		width := widthSpec.FindStringSubmatch(parsed.spec)
		if width == nil {
			return nil, fmt.Errorf("field {%s}: unsupported format %q", body, parsed.spec)
		}
		parsed.zeroPad = width[1] == "0"
		if width[2] != "" {
			parsed.width, _ = strconv.Atoi(width[2])
		}
		if parsed.zeroPad && parsed.width == 0 {
			return nil, fmt.Errorf("field {%s}: zero padding without a width", body)
		}
		if width[3] == "d" {
			parsed.kind = kindInteger
		} else {
			parsed.kind = kindString
		}
	}
	return parsed, nil
}

// expression returns the regular expression matching one value of f.
func (f *field) expression() string {
	switch f.kind {
	case kindInteger:
		if f.width > 0 {
			return fmt.Sprintf(`[-+ ]?\d{%d}`, f.width)
		}
		return `[-+]?\d+`
	case kindTime:
		return timeExpression(f.spec)
	default:
		if f.width > 0 {
			return fmt.Sprintf(`.{%d}`, f.width)
		}
		return `.*?`
	}
}

// timeExpression translates a strftime format into a regular
// expression of the same shape. Directives without a fixed shape match
// lazily and are left to the time parser to validate.
func timeExpression(format string) string {
	var expression strings.Builder
	for index := 0; index < len(format); index++ {
		if format[index] != '%' || index+1 == len(format) {
			expression.WriteString(regexp.QuoteMeta(format[index : index+1]))
			continue
		}
		index++
		switch format[index] {
		case 'Y':
			expression.WriteString(`\d{4}`)
		case 'm', 'd', 'H', 'I', 'M', 'S', 'y':
			expression.WriteString(`\d{2}`)
		case 'j':
			expression.WriteString(`\d{3}`)
		case 'f':
			expression.WriteString(`\d{6}`)
		case 'b':
			expression.WriteString(`[A-Za-z]{3}`)
		case 'p':
			expression.WriteString(`[AaPp][Mm]`)
		case '%':
			expression.WriteString(`%`)
		default:
			expression.WriteString(`.+?`)
		}
	}
	return expression.String()
}

// Parse extracts field values from name. Values are string, int or
// time.Time according to the field format. A key used more than once
// takes its first value.
func (p *Pattern) Parse(name string) (map[string]any, error) {
	match := p.matcher.FindStringSubmatch(name)
	if match == nil {
		return nil, fmt.Errorf("%w: %q against %q", ErrNoMatch, name, p.text)
	}

	metadata := make(map[string]any, len(p.fields))
	for index, f := range p.fields {
		if _, seen := metadata[f.key]; seen {
			continue
		}
		raw := match[index+1]
		switch f.kind {
		case kindInteger:
			value, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				return nil, fmt.Errorf("%w: field %s: %v", ErrNoMatch, f.key, err)
			}
			metadata[f.key] = value
		case kindTime:
			value, err := time.Parse(f.timeShape, raw)
			if err != nil {
				return nil, fmt.Errorf("%w: field %s: %v", ErrNoMatch, f.key, err)
			}
			metadata[f.key] = value
		default:
			metadata[f.key] = raw
		}
	}
	return metadata, nil
}

// Compose renders the pattern with values from metadata. Every key the
// pattern names must be present.
func (p *Pattern) Compose(metadata map[string]any) (string, error) {
	var builder strings.Builder
	for _, s := range p.segments {
		if s.field == nil {
			builder.WriteString(s.literal)
			continue
		}
		value, found := metadata[s.field.key]
		if !found {
			return "", fmt.Errorf("composing %q: no value for %s", p.text, s.field.key)
		}
		rendered, err := s.field.render(value)
		if err != nil {
			return "", fmt.Errorf("composing %q: %w", p.text, err)
		}
		builder.WriteString(rendered)
	}
	return builder.String(), nil
}

func (f *field) render(value any) (string, error) {
	switch f.kind {
	case kindTime:
		timestamp, ok := value.(time.Time)
		if !ok {
			return "", fmt.Errorf("field %s wants a time, got %T", f.key, value)
		}
		return strftime.Format(f.spec, timestamp), nil
	case kindInteger:
		var number int64
		switch typed := value.(type) {
		case int:
			number = int64(typed)
		case int64:
			number = typed
		case uint64:
			number = int64(typed)
		default:
			return "", fmt.Errorf("field %s wants an integer, got %T", f.key, value)
		}
		if f.zeroPad {
			return fmt.Sprintf("%0*d", f.width, number), nil
		}
		return fmt.Sprintf("%*d", f.width, number), nil
	default:
		text := fmt.Sprint(value)
		if f.width > 0 {
			return fmt.Sprintf("%-*s", f.width, text), nil
		}
		return text, nil
	}
}

// Keys returns the distinct field keys in order of first appearance.
func (p *Pattern) Keys() []string {
	var keys []string
	seen := make(map[string]bool)
	for _, f := range p.fields {
		if !seen[f.key] {
			seen[f.key] = true
			keys = append(keys, f.key)
		}
	}
	return keys
}

// String returns the pattern text.
func (p *Pattern) String() string { return p.text }
