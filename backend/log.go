// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package backend

import (
	"github.com/btcsuite/btclog"
	"github.com/shieldwallet/walletbackend/blockcache"
	"github.com/shieldwallet/walletbackend/boundary"
	"github.com/shieldwallet/walletbackend/walletstore"
)

// log is a logger that is initialized with no output filters.  This
// means the package will not perform any logging by default until the caller
// requests it.
var log btclog.Logger

// The default amount of logging is none.
func init() {
	DisableLog()
}

// DisableLog disables all library log output.  Logging output is disabled
// by default until UseLogger is called.
func DisableLog() {
	UseLogger(btclog.Disabled)
}

// UseLogger uses a specified Logger to output package logging info.
// The logger is passed on to the stores and the call harness.
func UseLogger(logger btclog.Logger) {
	log = logger

	boundary.UseLogger(logger)
	walletstore.UseLogger(logger)
	blockcache.UseLogger(logger)
}
