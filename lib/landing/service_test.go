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

	"github.com/bureau-foundation/downlink/lib/clock"
	"github.com/bureau-foundation/downlink/lib/config"
)

type landing struct {
	landed Landed
	result Result
	err    error
}

func startService(t *testing.T, cfg *config.Config, options Options) (cancel func()) {
	t.Helper()
	service, err := NewService(cfg, options)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()

	return func() {
		stop()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run did not return after cancel")
		}
		service.Close()
	}
}

func receiveLanding(t *testing.T, landings <-chan landing) landing {
	t.Helper()
	select {
	case got := <-landings:
		return got
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a landing")
	}
	return landing{}
}

func TestServiceLandsExistingAndArrivingFiles(t *testing.T) {
	incoming := t.TempDir()
	existing := filepath.Join(incoming, "before-start")
	if err := os.WriteFile(existing, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	landings := make(chan landing, 8)
	cfg := &config.Config{
		QueueDepth: config.DefaultQueueDepth,
		Targets:    []config.Target{{Name: "plain", Watch: incoming, Compression: "none"}},
	}
	stop := startService(t, cfg, Options{
		OnLanded: func(landed Landed, result Result, err error) {
			landings <- landing{landed, result, err}
		},
	})
	defer stop()

	first := receiveLanding(t, landings)
	if first.err != nil || first.landed.Path != existing {
		t.Fatalf("first landing = %+v, want %s", first, existing)
	}

	arriving := filepath.Join(incoming, "after-start")
	if err := os.WriteFile(arriving, []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}
	for {
		got := receiveLanding(t, landings)
		if got.err != nil {
			t.Fatalf("landing %s failed: %v", got.landed.Path, got.err)
		}
		// The existing file may be reported again by the watcher.
		if got.landed.Path == arriving {
			if got.result.Output != arriving {
				t.Errorf("Output = %q, want %q", got.result.Output, arriving)
			}
			break
		}
	}
}

func TestServiceReportsUnmatchedFiles(t *testing.T) {
	root := t.TempDir()
	target := segmentTarget(root)
	if err := os.MkdirAll(target.Watch, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(target.Watch, "notes.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	landings := make(chan landing, 8)
	stop := startService(t, &config.Config{QueueDepth: 1, Targets: []config.Target{target}}, Options{
		OnLanded: func(landed Landed, result Result, err error) {
			landings <- landing{landed, result, err}
		},
	})
	defer stop()

	if got := receiveLanding(t, landings); !errors.Is(got.err, ErrNotMatched) {
		t.Errorf("landing error = %v, want ErrNotMatched", got.err)
	}
}

func TestServicePurgesOnSchedule(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "archive")
	for _, name := range []string{"20230101", "20230102", "20230103", "20230104"} {
		if err := os.MkdirAll(filepath.Join(base, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	watchDirectory := filepath.Join(root, "incoming")
	if err := os.MkdirAll(watchDirectory, 0o755); err != nil {
		t.Fatal(err)
	}

	type purge struct {
		target  string
		removed int
		err     error
	}
	purges := make(chan purge, 4)
	fake := clock.Fake(time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC))
	cfg := &config.Config{
		QueueDepth: 4,
		Targets: []config.Target{{
			Name:        "archive",
			Watch:       watchDirectory,
			Compression: "none",
			Retention:   &config.RetentionConfig{Base: base, Limit: 2, Interval: "10m"},
		}},
	}
	stop := startService(t, cfg, Options{
		Clock: fake,
		OnPurge: func(target string, removed int, err error) {
			purges <- purge{target, removed, err}
		},
	})
	defer stop()

	fake.WaitForTimers(1)
	fake.Advance(10 * time.Minute)

	select {
	case got := <-purges:
		if got.target != "archive" || got.removed != 2 || got.err != nil {
			t.Errorf("purge = %+v, want 2 removed from archive", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("purge did not run")
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		t.Fatal(err)
	}
	var remaining []string
	for _, entry := range entries {
		remaining = append(remaining, entry.Name())
	}
	if len(remaining) != 2 || remaining[0] != "20230103" || remaining[1] != "20230104" {
		t.Errorf("remaining = %v, want [20230103 20230104]", remaining)
	}
}

func TestServiceRunFailsOnMissingWatchDirectory(t *testing.T) {
	cfg := &config.Config{
		QueueDepth: 1,
		Targets: []config.Target{{
			Name:  "missing",
			Watch: filepath.Join(t.TempDir(), "missing"),
		}},
	}
	service, err := NewService(cfg, Options{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	defer service.Close()
	if err := service.Run(context.Background()); err == nil {
		t.Fatal("Run succeeded without a watch directory")
	}
}

func TestServiceOpensLedger(t *testing.T) {
	cfg := &config.Config{
		Ledger:     filepath.Join(t.TempDir(), "ledger.db"),
		QueueDepth: 1,
		Targets:    []config.Target{{Name: "plain", Watch: t.TempDir()}},
	}
	service, err := NewService(cfg, Options{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if service.Ledger() == nil {
		t.Error("Ledger() = nil with a ledger path configured")
	}
	if err := service.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
