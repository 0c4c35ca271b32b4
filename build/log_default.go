// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build !nolog
// +build !nolog

package build

// LoggingType logs to stdout and the optional log file.
const LoggingType = LogTypeDefault
