// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package landing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/downlink/lib/clock"
	"github.com/bureau-foundation/downlink/lib/config"
	"github.com/bureau-foundation/downlink/lib/dirlock"
	"github.com/bureau-foundation/downlink/lib/ledger"
	"github.com/bureau-foundation/downlink/lib/reffile"
	"github.com/bureau-foundation/downlink/lib/retention"
	"github.com/bureau-foundation/downlink/lib/unpack"
	"github.com/bureau-foundation/downlink/lib/watch"
)

// ledgerPruneInterval is how often entries older than the configured
// ledger retention are removed.
const ledgerPruneInterval = time.Hour

// Options configures a Service beyond the configuration file.
type Options struct {
	Clock  clock.Clock
	Logger *slog.Logger

	// Runner executes external decompression tools. Nil uses os/exec.
	Runner unpack.Runner

	// OnLanded is called by the worker after every Land, with the
	// error it returned. Optional.
	OnLanded func(Landed, Result, error)

	// OnPurge is called after every scheduled purge. Optional.
	OnPurge func(target string, removed int, err error)
}

// Service watches every configured target and lands what arrives.
type Service struct {
	config   *config.Config
	pipeline *Pipeline
	purger   *retention.Purger
	ledger   *ledger.Ledger
	clock    clock.Clock
	logger   *slog.Logger
	onLanded func(Landed, Result, error)
	onPurge  func(string, int, error)
}

// NewService builds the pipeline for cfg and opens the ledger when
// cfg.Ledger is set. cfg should already be validated. Close releases
// the ledger.
func NewService(cfg *config.Config, options Options) (*Service, error) {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}

	var landingLedger *ledger.Ledger
	if cfg.Ledger != "" {
		var err error
		landingLedger, err = ledger.Open(ledger.Config{Path: cfg.Ledger, Logger: options.Logger})
		if err != nil {
			return nil, err
		}
	}

	locks := &dirlock.Tree{}
	pipeline, err := NewPipeline(PipelineConfig{
		Targets:    cfg.Targets,
		Unpacker:   unpack.New(options.Logger, options.Runner),
		References: reffile.NewManager(locks, options.Logger),
		Locks:      locks,
		Ledger:     landingLedger,
		Clock:      options.Clock,
		Logger:     options.Logger,
	})
	if err != nil {
		if landingLedger != nil {
			landingLedger.Close()
		}
		return nil, err
	}

	return &Service{
		config:   cfg,
		pipeline: pipeline,
		purger:   retention.NewPurger(locks, options.Logger),
		ledger:   landingLedger,
		clock:    options.Clock,
		logger:   options.Logger,
		onLanded: options.OnLanded,
		onPurge:  options.OnPurge,
	}, nil
}

// Pipeline returns the pipeline the service lands files with.
func (s *Service) Pipeline() *Pipeline { return s.pipeline }

// Ledger returns the service's ledger, nil when disabled.
func (s *Service) Ledger() *ledger.Ledger { return s.ledger }

// Close closes the ledger.
func (s *Service) Close() error {
	if s.ledger == nil {
		return nil
	}
	return s.ledger.Close()
}

// Run watches every target until ctx is done. Watches are all set up
// before any file is processed; a failure there stops the others and
// is returned.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	streams := make([]<-chan watch.Event, len(s.config.Targets))
	for index, target := range s.config.Targets {
		events, err := watch.Watch(ctx, target.Watch, s.logger.With("target", target.Name))
		if err != nil {
			return fmt.Errorf("target %q: %w", target.Name, err)
		}
		streams[index] = events
	}

	var group sync.WaitGroup
	for index, target := range s.config.Targets {
		queue := make(chan Landed, s.config.QueueDepth)
		group.Go(func() { s.feed(ctx, target, streams[index], queue) })
		group.Go(func() { s.work(ctx, queue) })

		if target.Retention != nil {
			schedule, err := target.Retention.PurgeSchedule()
			if err != nil {
				s.logger.Error("retention disabled", "target", target.Name, "error", err)
			} else {
				job := retention.Job{
					Base:     target.Retention.Base,
					Limit:    target.Retention.Limit,
					Schedule: schedule,
					Report:   s.purgeReporter(target.Name),
				}
				group.Go(func() { s.purger.Run(ctx, s.clock, job) })
			}
		}
	}

	if s.ledger != nil && s.config.LedgerMaxAge() > 0 {
		group.Go(func() { s.pruneLedger(ctx, s.config.LedgerMaxAge()) })
	}

	s.logger.Info("landing service running", "targets", len(s.config.Targets))
	<-ctx.Done()
	group.Wait()
	return nil
}

// feed enqueues the files already in the watch directory and then
// every arrival. It closes queue when the watcher ends.
func (s *Service) feed(ctx context.Context, target config.Target, events <-chan watch.Event, queue chan<- Landed) {
	defer close(queue)

	rescan := func() bool {
		paths, err := watch.Existing(target.Watch)
		if err != nil {
			s.logger.Error("listing landed files", "target", target.Name, "error", err)
			return true
		}
		for _, path := range paths {
			if !s.enqueue(ctx, queue, Landed{Path: path, Target: target.Name}) {
				return false
			}
		}
		return true
	}

	if !rescan() {
		return
	}
	for event := range events {
		if event.Overflow {
			if !rescan() {
				return
			}
			continue
		}
		if !s.enqueue(ctx, queue, Landed{Path: event.Path, Target: target.Name}) {
			return
		}
	}
	if ctx.Err() == nil {
		s.logger.Error("watcher stopped", "target", target.Name, "directory", target.Watch)
	}
}

func (s *Service) enqueue(ctx context.Context, queue chan<- Landed, landed Landed) bool {
	select {
	case queue <- landed:
		return true
	case <-ctx.Done():
		return false
	}
}

// work lands queued files one at a time until the queue closes or ctx
// is done.
func (s *Service) work(ctx context.Context, queue <-chan Landed) {
	for {
		select {
		case <-ctx.Done():
			return
		case landed, ok := <-queue:
			if !ok {
				return
			}
			result, err := s.pipeline.Land(ctx, landed.Target, landed.Path)
			switch {
			case errors.Is(err, ErrNotMatched):
				s.logger.Debug("ignoring file", "target", landed.Target, "path", landed.Path)
			case err != nil:
				s.logger.Error("landing failed", "target", landed.Target, "path", landed.Path, "error", err)
			}
			if s.onLanded != nil {
				s.onLanded(landed, result, err)
			}
		}
	}
}

func (s *Service) purgeReporter(target string) func(int, error) {
	return func(removed int, err error) {
		if s.onPurge != nil {
			s.onPurge(target, removed, err)
		}
	}
}

func (s *Service) pruneLedger(ctx context.Context, maxAge time.Duration) {
	ticker := s.clock.NewTicker(ledgerPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := s.ledger.Prune(ctx, now.Add(-maxAge))
			if err != nil {
				s.logger.Error("pruning ledger", "error", err)
				continue
			}
			if removed > 0 {
				s.logger.Info("pruned ledger", "entries", removed)
			}
		}
	}
}
