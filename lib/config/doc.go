// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the landing pipeline configuration.
//
// Configuration is loaded from a single file specified by either the
// DOWNLINK_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks and no automatic file
// search. Files ending in .json or .jsonc are read as JSON with
// comments and trailing commas allowed; anything else is YAML. Unknown
// keys are rejected in both formats.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${VAR} and ${VAR:-default} patterns are expanded from the
// environment. Filename pattern fields such as {time:%Y%m%d} are left
// for the landing pipeline.
//
// Key exports:
//
//   - [Config] -- ledger location, queue depth, and the [Target] list
//   - [Default] -- returns a Config with defaults applied
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- reports every problem at once
package config
