// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bureau-foundation/downlink/lib/digest"
)

func openLedger(t *testing.T) *Ledger {
	t.Helper()
	ledger, err := Open(Config{Path: filepath.Join(t.TempDir(), "ledger.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := ledger.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return ledger
}

func slotAt(hour, minute int) time.Time {
	return time.Date(2023, 1, 1, hour, minute, 0, 0, time.UTC)
}

func TestRecordAndRecent(t *testing.T) {
	ledger := openLedger(t)
	ctx := context.Background()

	recorded, err := ledger.Record(ctx, Entry{
		Target:      "hrit",
		Source:      "/incoming/segment-EPI.bz2",
		Output:      "/data/20230101/segment-EPI",
		Digest:      digest.Bytes([]byte("segment")),
		Compression: "bzip2",
		Slot:        slotAt(10, 0),
		Marker:      true,
		Reference:   "generated",
		Metadata: map[string]any{
			"platform": "MSG4",
			"orbit":    12345,
			"time":     time.Date(2023, 1, 1, 10, 7, 0, 0, time.UTC),
		},
		LandedAt: slotAt(10, 8),
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if recorded.ID == "" {
		t.Fatal("Record did not assign an ID")
	}

	entries, err := ledger.Recent(ctx, "hrit", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	want := []Entry{{
		ID:          recorded.ID,
		Target:      "hrit",
		Source:      "/incoming/segment-EPI.bz2",
		Output:      "/data/20230101/segment-EPI",
		Digest:      digest.Bytes([]byte("segment")),
		Compression: "bzip2",
		Slot:        slotAt(10, 0),
		Marker:      true,
		Reference:   "generated",
		Metadata: map[string]any{
			"platform": "MSG4",
			"orbit":    int64(12345),
			"time":     time.Date(2023, 1, 1, 10, 7, 0, 0, time.UTC),
		},
		LandedAt: slotAt(10, 8),
	}}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Errorf("Recent mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordWithoutSlotOrMetadata(t *testing.T) {
	ledger := openLedger(t)
	ctx := context.Background()

	if _, err := ledger.Record(ctx, Entry{Target: "plain", Source: "a", Output: "a"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	entries, err := ledger.Recent(ctx, "plain", 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if !entries[0].Slot.IsZero() {
		t.Errorf("Slot = %v, want zero", entries[0].Slot)
	}
	if entries[0].Metadata != nil {
		t.Errorf("Metadata = %v, want nil", entries[0].Metadata)
	}
	if entries[0].LandedAt.IsZero() {
		t.Error("LandedAt was not filled in")
	}

	slots, err := ledger.Slots(ctx, "plain", 0)
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("Slots = %v, want none for unaligned entries", slots)
	}
}

func TestRecordRequiresTarget(t *testing.T) {
	if _, err := openLedger(t).Record(context.Background(), Entry{Source: "a"}); err == nil {
		t.Fatal("Record without a target succeeded")
	}
}

func TestSeen(t *testing.T) {
	ledger := openLedger(t)
	ctx := context.Background()
	hash := digest.Bytes([]byte("payload"))

	seen, err := ledger.Seen(ctx, "hrit", hash)
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if seen {
		t.Error("Seen before Record = true")
	}

	if _, err := ledger.Record(ctx, Entry{Target: "hrit", Source: "a", Output: "a", Digest: hash}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	seen, err = ledger.Seen(ctx, "hrit", hash)
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if !seen {
		t.Error("Seen after Record = false")
	}

	seen, err = ledger.Seen(ctx, "lrit", hash)
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if seen {
		t.Error("Seen leaked across targets")
	}
}

func TestSlots(t *testing.T) {
	ledger := openLedger(t)
	ctx := context.Background()

	record := func(slot time.Time, landed time.Time, marker bool) {
		t.Helper()
		if _, err := ledger.Record(ctx, Entry{
			Target:   "hrit",
			Source:   landed.String(),
			Output:   landed.String(),
			Slot:     slot,
			Marker:   marker,
			LandedAt: landed,
		}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	record(slotAt(10, 0), slotAt(10, 1), false)
	record(slotAt(10, 0), slotAt(10, 3), false)
	record(slotAt(10, 0), slotAt(10, 9), true)
	record(slotAt(10, 15), slotAt(10, 16), false)
	record(slotAt(9, 45), slotAt(9, 50), true)

	slots, err := ledger.Slots(ctx, "hrit", 2)
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	want := []SlotSummary{
		{Slot: slotAt(10, 15), Segments: 1, Complete: false, First: slotAt(10, 16), Last: slotAt(10, 16)},
		{Slot: slotAt(10, 0), Segments: 3, Complete: true, First: slotAt(10, 1), Last: slotAt(10, 9)},
	}
	if diff := cmp.Diff(want, slots); diff != "" {
		t.Errorf("Slots mismatch (-want +got):\n%s", diff)
	}

	all, err := ledger.Slots(ctx, "hrit", 0)
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("len(Slots(0)) = %d, want 3", len(all))
	}
}

func TestPrune(t *testing.T) {
	ledger := openLedger(t)
	ctx := context.Background()
	for _, landed := range []time.Time{slotAt(8, 0), slotAt(9, 0), slotAt(10, 0)} {
		if _, err := ledger.Record(ctx, Entry{Target: "hrit", Source: "s", Output: "o", LandedAt: landed}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	removed, err := ledger.Prune(ctx, slotAt(9, 30))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	entries, err := ledger.Recent(ctx, "hrit", 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 || !entries[0].LandedAt.Equal(slotAt(10, 0)) {
		t.Errorf("remaining entries = %+v", entries)
	}
}

func TestMetadataEncodingIsDeterministic(t *testing.T) {
	first := map[string]any{"b": 1, "a": "x", "c": time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)}
	second := map[string]any{"c": time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), "a": "x", "b": 1}
	encodedFirst, err := encodeMetadata(first)
	if err != nil {
		t.Fatal(err)
	}
	encodedSecond, err := encodeMetadata(second)
	if err != nil {
		t.Fatal(err)
	}
	if string(encodedFirst) != string(encodedSecond) {
		t.Error("equal maps encoded differently")
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Fatal("Open without a path succeeded")
	}
}
