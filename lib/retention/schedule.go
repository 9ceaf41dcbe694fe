// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/bureau-foundation/downlink/lib/clock"
)

// Schedule says when a periodic purge runs: every fixed interval, or
// at the instants named by a cron expression.
type Schedule struct {
	text     string
	interval time.Duration
	cron     *cronexpr.Expression
}

// Every returns an interval schedule. d must be positive.
func Every(d time.Duration) (Schedule, error) {
	if d <= 0 {
		return Schedule{}, fmt.Errorf("purge interval must be positive, got %s", d)
	}
	return Schedule{text: "every " + d.String(), interval: d}, nil
}

// Cron returns a schedule for a standard cron expression such as
// "0 * * * *".
func Cron(expression string) (Schedule, error) {
	parsed, err := cronexpr.Parse(expression)
	if err != nil {
		return Schedule{}, fmt.Errorf("parsing purge schedule %q: %w", expression, err)
	}
	return Schedule{text: expression, cron: parsed}, nil
}

// Next returns the first run time strictly after now. The zero Time
// means the schedule never fires again.
func (s Schedule) Next(now time.Time) time.Time {
	if s.cron != nil {
		return s.cron.Next(now)
	}
	return now.Add(s.interval)
}

func (s Schedule) String() string { return s.text }

// IsZero reports whether s was never set.
func (s Schedule) IsZero() bool { return s.cron == nil && s.interval == 0 }

// Job is one periodic purge.
type Job struct {
	Base     string
	Limit    int
	Schedule Schedule

	// Report, when set, receives the outcome of every run.
	Report func(removed int, err error)
}

// Run purges job.Base on job.Schedule until ctx is done. Failures are
// logged and retried at the next scheduled time.
func (p *Purger) Run(ctx context.Context, source clock.Clock, job Job) {
	if job.Schedule.IsZero() {
		p.logger.Warn("retention job has no schedule", "base", job.Base)
		return
	}
	p.logger.Info("retention job started",
		"base", job.Base,
		"limit", job.Limit,
		"schedule", job.Schedule.String(),
	)

	if job.Schedule.cron == nil {
		ticker := source.NewTicker(job.Schedule.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.runOnce(job)
			}
		}
	}

	for {
		now := source.Now()
		next := job.Schedule.Next(now)
		if next.IsZero() {
			p.logger.Info("retention schedule exhausted", "base", job.Base)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-source.After(next.Sub(now)):
			p.runOnce(job)
		}
	}
}

func (p *Purger) runOnce(job Job) {
	removed, err := p.Purge(job.Base, job.Limit)
	if err != nil {
		p.logger.Error("scheduled purge failed",
			"base", job.Base,
			"removed", removed,
			"error", err,
		)
	}
	if job.Report != nil {
		job.Report(removed, err)
	}
}
