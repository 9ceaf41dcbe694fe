// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package landing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zstd"

	"github.com/bureau-foundation/downlink/lib/config"
	"github.com/bureau-foundation/downlink/lib/dirlock"
	"github.com/bureau-foundation/downlink/lib/ledger"
	"github.com/bureau-foundation/downlink/lib/reffile"
	"github.com/bureau-foundation/downlink/lib/unpack"
)

// writeZstd writes data to path as a zstd frame.
func writeZstd(t *testing.T, path string, data []byte) {
	t.Helper()
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer encoder.Close()
	if err := os.WriteFile(path, encoder.EncodeAll(data, nil), 0o644); err != nil {
		t.Fatal(err)
	}
}

// segmentTarget is a zstd target aligned to 15 minute slots with
// reference files.
func segmentTarget(root string) config.Target {
	return config.Target{
		Name:        "segments",
		Watch:       filepath.Join(root, "incoming"),
		Origin:      "seg-{time:%Y%m%d%H%M}-{segment:3s}.zst",
		Compression: "zstd",
		Destination: filepath.Join(root, "out", "{time:%Y%m%d%H%M}"),
		Align:       "{time:%Y%m%d%H%M|align(15)}",
		Reference: &config.ReferenceConfig{
			Path:   filepath.Join(root, "ref", "{time:%Y%m%d%H%M}.ref"),
			Rule:   "*",
			Marker: reffile.DefaultMarker,
		},
	}
}

func newTestPipeline(t *testing.T, landingLedger *ledger.Ledger, targets ...config.Target) *Pipeline {
	t.Helper()
	pipeline, err := NewPipeline(PipelineConfig{
		Targets:    targets,
		Unpacker:   unpack.New(nil, nil),
		References: reffile.NewManager(&dirlock.Tree{}, nil),
		Ledger:     landingLedger,
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return pipeline
}

func landSegment(t *testing.T, pipeline *Pipeline, incoming, name string, data []byte) Result {
	t.Helper()
	path := filepath.Join(incoming, name)
	writeZstd(t, path, data)
	result, err := pipeline.Land(context.Background(), "segments", path)
	if err != nil {
		t.Fatalf("Land(%s): %v", name, err)
	}
	return result
}

func TestLandFollowsSlotLifecycle(t *testing.T) {
	root := t.TempDir()
	target := segmentTarget(root)
	if err := os.MkdirAll(target.Watch, 0o755); err != nil {
		t.Fatal(err)
	}
	pipeline := newTestPipeline(t, nil, target)

	slot := time.Date(2023, 1, 1, 10, 0, 0, 0, time.UTC)
	destination := filepath.Join(root, "out", "202301011000")
	refPath := filepath.Join(root, "ref", "202301011000.ref")

	first := landSegment(t, pipeline, target.Watch, "seg-202301011007-001.zst", []byte("first"))
	if first.Destination != destination {
		t.Errorf("Destination = %q, want %q", first.Destination, destination)
	}
	if !first.Slot.Equal(slot) {
		t.Errorf("Slot = %v, want %v", first.Slot, slot)
	}
	if first.Reference != reffile.Absent {
		t.Errorf("Reference after a plain segment = %v, want absent", first.Reference)
	}
	if got, want := first.Output, filepath.Join(destination, "seg-202301011007-001"); got != want {
		t.Errorf("Output = %q, want %q", got, want)
	}
	content, err := os.ReadFile(first.Output)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "first" {
		t.Errorf("unpacked content = %q, want first", content)
	}
	if _, err := os.Stat(refPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("reference exists before the marker landed: %v", err)
	}

	marker := landSegment(t, pipeline, target.Watch, "seg-202301011009-EPI.zst", []byte("epilogue"))
	if marker.Reference != reffile.Present {
		t.Errorf("Reference after the marker = %v, want present", marker.Reference)
	}
	generated, err := os.ReadFile(refPath)
	if err != nil {
		t.Fatalf("reading reference: %v", err)
	}
	want := reffile.NewReference(destination, "seg-202301011009-EPI.zst", "").Bytes()
	if diff := cmp.Diff(string(want), string(generated)); diff != "" {
		t.Errorf("reference content mismatch (-want +got):\n%s", diff)
	}

	late := landSegment(t, pipeline, target.Watch, "seg-202301011012-002.zst", []byte("late"))
	if late.Reference != reffile.Present {
		t.Errorf("Reference after a late segment = %v, want present", late.Reference)
	}
	touched, err := os.ReadFile(refPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(touched) != string(generated) {
		t.Error("touch changed the reference content")
	}
}

func TestLandMetadataCarriesAlignedTime(t *testing.T) {
	root := t.TempDir()
	target := segmentTarget(root)
	target.Reference = nil
	if err := os.MkdirAll(target.Watch, 0o755); err != nil {
		t.Fatal(err)
	}
	pipeline := newTestPipeline(t, nil, target)

	result := landSegment(t, pipeline, target.Watch, "seg-202301012359-001.zst", []byte("x"))
	want := map[string]any{
		"time":    time.Date(2023, 1, 1, 23, 45, 0, 0, time.UTC),
		"segment": "001",
	}
	if diff := cmp.Diff(want, result.Metadata); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
	if result.Reference != reffile.Absent {
		t.Errorf("Reference = %v, want absent without reference config", result.Reference)
	}
}

func TestLandRuleRestrictsGeneration(t *testing.T) {
	root := t.TempDir()
	target := segmentTarget(root)
	target.Reference.Rule = "MSG4"
	if err := os.MkdirAll(target.Watch, 0o755); err != nil {
		t.Fatal(err)
	}
	pipeline := newTestPipeline(t, nil, target)

	result := landSegment(t, pipeline, target.Watch, "seg-202301011009-EPI.zst", []byte("epilogue"))
	if result.Reference != reffile.Absent {
		t.Errorf("Reference = %v, want absent when the rule does not match", result.Reference)
	}
}

func TestLandIgnoresUnmatchedNames(t *testing.T) {
	root := t.TempDir()
	target := segmentTarget(root)
	if err := os.MkdirAll(target.Watch, 0o755); err != nil {
		t.Fatal(err)
	}
	pipeline := newTestPipeline(t, nil, target)

	path := filepath.Join(target.Watch, "README")
	if err := os.WriteFile(path, []byte("notes"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := pipeline.Land(context.Background(), "segments", path)
	if !errors.Is(err, ErrNotMatched) {
		t.Fatalf("Land error = %v, want ErrNotMatched", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("unmatched file was touched: %v", err)
	}
}

func TestLandUnknownTarget(t *testing.T) {
	pipeline := newTestPipeline(t, nil)
	_, err := pipeline.Land(context.Background(), "missing", "/tmp/x")
	if !errors.Is(err, ErrUnknownTarget) {
		t.Errorf("Land error = %v, want ErrUnknownTarget", err)
	}
}

func TestLandWithoutPatterns(t *testing.T) {
	incoming := t.TempDir()
	pipeline := newTestPipeline(t, nil, config.Target{Name: "segments", Watch: incoming, Compression: "none"})

	path := filepath.Join(incoming, "anything.dat")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result, err := pipeline.Land(context.Background(), "segments", path)
	if err != nil {
		t.Fatalf("Land: %v", err)
	}
	if result.Output != path || result.Destination != incoming {
		t.Errorf("result = %+v, want output %s in %s", result, path, incoming)
	}
	if !result.Slot.IsZero() {
		t.Errorf("Slot = %v, want zero", result.Slot)
	}
}

func TestLandPlacesUncompressedSegments(t *testing.T) {
	for _, test := range []struct {
		name         string
		delete       string
		keepOriginal bool
	}{
		{name: "copy", delete: "", keepOriginal: true},
		{name: "move", delete: "yes", keepOriginal: false},
	} {
		t.Run(test.name, func(t *testing.T) {
			root := t.TempDir()
			target := segmentTarget(root)
			target.Origin = "seg-{time:%Y%m%d%H%M}-{segment:3s}"
			target.Compression = "none"
			target.Delete = test.delete
			if err := os.MkdirAll(target.Watch, 0o755); err != nil {
				t.Fatal(err)
			}
			pipeline := newTestPipeline(t, nil, target)

			path := filepath.Join(target.Watch, "seg-202301011007-EPI")
			if err := os.WriteFile(path, []byte("epilogue"), 0o644); err != nil {
				t.Fatal(err)
			}
			result, err := pipeline.Land(context.Background(), "segments", path)
			if err != nil {
				t.Fatalf("Land: %v", err)
			}

			destination := filepath.Join(root, "out", "202301011000")
			if got, want := result.Output, filepath.Join(destination, "seg-202301011007-EPI"); got != want {
				t.Errorf("Output = %q, want %q", got, want)
			}
			content, err := os.ReadFile(result.Output)
			if err != nil {
				t.Fatalf("reading placed segment: %v", err)
			}
			if string(content) != "epilogue" {
				t.Errorf("placed content = %q, want epilogue", content)
			}
			_, err = os.Stat(path)
			if test.keepOriginal && err != nil {
				t.Errorf("original removed without delete: %v", err)
			}
			if !test.keepOriginal && !errors.Is(err, os.ErrNotExist) {
				t.Errorf("original still present with delete: %v", err)
			}

			generated, err := os.ReadFile(filepath.Join(root, "ref", "202301011000.ref"))
			if err != nil {
				t.Fatalf("reading reference: %v", err)
			}
			want := reffile.NewReference(destination, "seg-202301011007-EPI", "").Bytes()
			if diff := cmp.Diff(string(want), string(generated)); diff != "" {
				t.Errorf("reference content mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// runnerFunc adapts a function to unpack.Runner.
type runnerFunc func(ctx context.Context, dir string, argv []string) ([]byte, error)

func (f runnerFunc) Run(ctx context.Context, dir string, argv []string) ([]byte, error) {
	return f(ctx, dir, argv)
}

// xritTarget lands tool-decompressed segments into one fixed
// directory with a reference file.
func xritTarget(root string) config.Target {
	return config.Target{
		Name:        "segments",
		Watch:       filepath.Join(root, "incoming"),
		Compression: "xrit",
		Program:     "xRITDecompress",
		Destination: filepath.Join(root, "out", "20230101"),
		Reference: &config.ReferenceConfig{
			Path:   filepath.Join(root, "ref", "20230101.ref"),
			Rule:   "*",
			Marker: reffile.DefaultMarker,
		},
	}
}

func landWithRunner(t *testing.T, root string, locks *dirlock.Tree, runner unpack.Runner) (Result, error) {
	t.Helper()
	target := xritTarget(root)
	if err := os.MkdirAll(target.Watch, 0o755); err != nil {
		t.Fatal(err)
	}
	pipeline, err := NewPipeline(PipelineConfig{
		Targets:    []config.Target{target},
		Unpacker:   unpack.New(nil, runner),
		References: reffile.NewManager(locks, nil),
		Locks:      locks,
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	path := filepath.Join(target.Watch, "seg-EPI-CE")
	if err := os.WriteFile(path, []byte("compressed"), 0o644); err != nil {
		t.Fatal(err)
	}
	return pipeline.Land(context.Background(), "segments", path)
}

func TestLandHoldsDestinationLockWhileUnpacking(t *testing.T) {
	root := t.TempDir()
	locks := &dirlock.Tree{}
	var ran bool
	runner := runnerFunc(func(_ context.Context, dir string, _ []string) ([]byte, error) {
		ran = true
		if unlock, ok := locks.TryLock(dir); ok {
			unlock()
			t.Errorf("destination %s was unlocked during unpack", dir)
		}
		return nil, os.WriteFile(filepath.Join(dir, "seg-EPI-__"), []byte("data"), 0o644)
	})

	result, err := landWithRunner(t, root, locks, runner)
	if err != nil {
		t.Fatalf("Land: %v", err)
	}
	if !ran {
		t.Fatal("decompression tool never ran")
	}
	if result.Reference != reffile.Present {
		t.Errorf("Reference = %v, want present", result.Reference)
	}
	if held := locks.Held(); held != 0 {
		t.Errorf("%d paths still locked after Land", held)
	}
}

func TestLandDoesNotReferencePurgedDestination(t *testing.T) {
	root := t.TempDir()
	locks := &dirlock.Tree{}
	// Retention removes the slot between the unpack and the reference
	// write.
	runner := runnerFunc(func(_ context.Context, dir string, _ []string) ([]byte, error) {
		return nil, os.RemoveAll(dir)
	})

	_, err := landWithRunner(t, root, locks, runner)
	if !errors.Is(err, reffile.ErrDestinationMissing) {
		t.Fatalf("Land error = %v, want ErrDestinationMissing", err)
	}
	if _, err := os.Stat(filepath.Join(root, "ref", "20230101.ref")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("reference written for a purged destination: %v", err)
	}
}

func TestLandDecompressionFailureKeepsOriginal(t *testing.T) {
	root := t.TempDir()
	target := segmentTarget(root)
	target.Delete = "yes"
	if err := os.MkdirAll(target.Watch, 0o755); err != nil {
		t.Fatal(err)
	}
	pipeline := newTestPipeline(t, nil, target)

	path := filepath.Join(target.Watch, "seg-202301011007-001.zst")
	if err := os.WriteFile(path, []byte("not zstd"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := pipeline.Land(context.Background(), "segments", path)
	var decompressError *unpack.DecompressError
	if !errors.As(err, &decompressError) {
		t.Fatalf("Land error = %v, want *unpack.DecompressError", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("original removed after a failed unpack: %v", err)
	}
}

func TestLandRecordsAndDeduplicates(t *testing.T) {
	root := t.TempDir()
	target := segmentTarget(root)
	if err := os.MkdirAll(target.Watch, 0o755); err != nil {
		t.Fatal(err)
	}
	landingLedger, err := ledger.Open(ledger.Config{Path: filepath.Join(root, "ledger.db")})
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { landingLedger.Close() })
	pipeline := newTestPipeline(t, landingLedger, target)

	landSegment(t, pipeline, target.Watch, "seg-202301011009-EPI.zst", []byte("epilogue"))

	// The same content delivered again under another name.
	again := landSegment(t, pipeline, target.Watch, "seg-202301011010-EPI.zst", []byte("epilogue"))
	if !again.Duplicate {
		t.Error("second delivery of identical content not reported as duplicate")
	}
	if again.Output != "" {
		t.Errorf("duplicate produced output %q", again.Output)
	}

	entries, err := landingLedger.Recent(context.Background(), "segments", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("ledger holds %d entries, want 1", len(entries))
	}
	entry := entries[0]
	if !entry.Marker || entry.Reference != "generated" || entry.Compression != "zstd" {
		t.Errorf("entry = %+v, want a generated zstd marker", entry)
	}
	if !entry.Slot.Equal(time.Date(2023, 1, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("entry slot = %v", entry.Slot)
	}

	slots, err := landingLedger.Slots(context.Background(), "segments", 0)
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	if len(slots) != 1 || !slots[0].Complete || slots[0].Segments != 1 {
		t.Errorf("slots = %+v, want one complete slot with one segment", slots)
	}
}

func TestNewPipelineRejectsBadTargets(t *testing.T) {
	_, err := NewPipeline(PipelineConfig{
		Targets:    []config.Target{{Name: "bad", Compression: "rar"}},
		Unpacker:   unpack.New(nil, nil),
		References: reffile.NewManager(&dirlock.Tree{}, nil),
	})
	if !errors.Is(err, unpack.ErrUnknownCompression) {
		t.Errorf("NewPipeline error = %v, want ErrUnknownCompression", err)
	}

	if _, err := NewPipeline(PipelineConfig{}); err == nil {
		t.Error("NewPipeline without collaborators succeeded")
	}
}
