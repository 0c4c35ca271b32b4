// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build nolog
// +build nolog

package build

// LogLevel specifies no logging.
var LogLevel = "none"

// LoggingType is a log type that disables all logging.
const LoggingType = LogTypeNone
