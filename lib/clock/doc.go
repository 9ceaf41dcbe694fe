// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time source used by the
// landing service.
//
// The landing service stamps ledger entries with Now, drives interval
// purges with NewTicker, and waits for the next cron occurrence with
// After. Production code passes Real(); tests pass Fake() and move
// time with Advance so purge cycles fire deterministically:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	service, _ := landing.NewService(cfg, landing.Options{Clock: fake})
//	go service.Run(ctx)
//	fake.WaitForTimers(1) // purge loop registered its ticker
//	fake.Advance(10 * time.Minute)
package clock
