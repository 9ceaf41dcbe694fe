// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides the binary entrypoint helper for downlink.
// It centralizes the one legitimate raw write to stderr: reporting an
// error from run() when the structured logger may not be initialized,
// then exiting with the right code.
package process
