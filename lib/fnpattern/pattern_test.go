// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fnpattern

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const hritPattern = "H-000-{platform:4s}__-{sensor:12s}-{channel:9s}-{segment:9s}-{time:%Y%m%d%H%M|align(15)}-{flags:2s}"

func TestParseHRIT(t *testing.T) {
	pattern, err := Compile(hritPattern)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	got, err := pattern.Parse("H-000-MSG4__-MSG4________-_________-EPI______-202301011007-__")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := map[string]any{
		"platform": "MSG4",
		"sensor":   "MSG4________",
		"channel":  "_________",
		"segment":  "EPI______",
		"time":     time.Date(2023, 1, 1, 10, 7, 0, 0, time.UTC),
		"flags":    "__",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFieldKinds(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    map[string]any
	}{
		{
			pattern: "{platform}_{orbit:05d}_{start:%Y%m%dT%H%M%S}.hdf",
			name:    "noaa19_01234_20230101T100700.hdf",
			want: map[string]any{
				"platform": "noaa19",
				"orbit":    1234,
				"start":    time.Date(2023, 1, 1, 10, 7, 0, 0, time.UTC),
			},
		},
		{
			pattern: "{prefix}-{count:d}.dat",
			name:    "a-b-42.dat",
			want:    map[string]any{"prefix": "a-b", "count": 42},
		},
		{
			pattern: "{date:%Y-%m-%d}/{name}",
			name:    "2023-02-01/segment",
			want: map[string]any{
				"date": time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC),
				"name": "segment",
			},
		},
	}
	for _, test := range tests {
		pattern, err := Compile(test.pattern)
		if err != nil {
			t.Errorf("Compile(%q): %v", test.pattern, err)
			continue
		}
		got, err := pattern.Parse(test.name)
		if err != nil {
			t.Errorf("Parse(%q) against %q: %v", test.name, test.pattern, err)
			continue
		}
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("Parse(%q) mismatch (-want +got):\n%s", test.name, diff)
		}
	}
}

func TestParseNoMatch(t *testing.T) {
	pattern := MustCompile(hritPattern)
	for _, name := range []string{
		"",
		"L-000-MSG4__-MSG4________-_________-EPI______-202301011007-__",
		"H-000-MSG4__-MSG4________-_________-EPI______-2023010110-__",
		"H-000-MSG4__-MSG4________-_________-EPI______-202313011007-__",
		"H-000-MSG4__-MSG4________-_________-EPI______-202301011007-__.bz2",
	} {
		if _, err := pattern.Parse(name); !errors.Is(err, ErrNoMatch) {
			t.Errorf("Parse(%q) error = %v, want ErrNoMatch", name, err)
		}
	}
}

func TestCompileRejectsMalformed(t *testing.T) {
	for _, pattern := range []string{
		"{time",
		"time}",
		"{}",
		"{:4s}",
		"{orbit:x}",
		"{orbit:0d}",
		"a}{b}",
	} {
		if _, err := Compile(pattern); !errors.Is(err, ErrInvalidPattern) {
			t.Errorf("Compile(%q) error = %v, want ErrInvalidPattern", pattern, err)
		}
	}
}

func TestCompose(t *testing.T) {
	metadata := map[string]any{
		"platform": "MSG4",
		"orbit":    7,
		"time":     time.Date(2023, 1, 1, 10, 0, 0, 0, time.UTC),
		"channel":  "IR",
	}
	tests := []struct {
		pattern string
		want    string
	}{
		{"/data/hrit/{time:%Y%m%d}", "/data/hrit/20230101"},
		{"/data/{platform}/{time:%Y%m%d}/ref/{time:%Y%m%d%H%M|align(15)}.ref", "/data/MSG4/20230101/ref/202301011000.ref"},
		{"{orbit:05d}-{orbit:3d}-{orbit}", "00007-  7-7"},
		{"{channel:4s}|", "IR  |"},
		{"plain", "plain"},
	}
	for _, test := range tests {
		got, err := MustCompile(test.pattern).Compose(metadata)
		if err != nil {
			t.Errorf("Compose(%q): %v", test.pattern, err)
			continue
		}
		if got != test.want {
			t.Errorf("Compose(%q) = %q, want %q", test.pattern, got, test.want)
		}
	}
}

func TestComposeErrors(t *testing.T) {
	metadata := map[string]any{"time": "not a time", "orbit": "seven"}
	for _, pattern := range []string{"{missing}", "{time:%Y}", "{orbit:d}"} {
		if _, err := MustCompile(pattern).Compose(metadata); err == nil {
			t.Errorf("Compose(%q) succeeded", pattern)
		}
	}
}

func TestParseComposeAgree(t *testing.T) {
	pattern := MustCompile(hritPattern)
	name := "H-000-MSG4__-MSG4________-IR_108___-000001___-202301011000-C_"
	metadata, err := pattern.Parse(name)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	composed, err := pattern.Compose(metadata)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if composed != name {
		t.Errorf("Compose(Parse(name)) = %q, want %q", composed, name)
	}
}

func TestKeys(t *testing.T) {
	got := MustCompile("/data/{time:%Y}/{platform}/{time:%H%M}").Keys()
	if diff := cmp.Diff([]string{"time", "platform"}, got); diff != "" {
		t.Errorf("Keys mismatch (-want +got):\n%s", diff)
	}
}
