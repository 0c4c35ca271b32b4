// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"github.com/btcsuite/btclog"
	"github.com/shieldwallet/walletbackend/backend"
	"github.com/shieldwallet/walletbackend/blockcache"
	"github.com/shieldwallet/walletbackend/boundary"
	"github.com/shieldwallet/walletbackend/build"
	"github.com/shieldwallet/walletbackend/walletstore"
)

// Loggers per subsystem.  When adding new subsystems, add a reference here,
// to the subsystemLoggers map, and the useLogger function.
var (
	log      = btclog.Disabled
	gwLog    = btclog.Disabled
	callLog  = btclog.Disabled
	storeLog = btclog.Disabled
	cacheLog = btclog.Disabled
)

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]btclog.Logger{
	"WCTL": log,
	"GWAY": gwLog,
	"CALL": callLog,
	"WSTR": storeLog,
	"BCCH": cacheLog,
}

// useLogger updates the logger references for subsystemID to logger.  Invalid
// subsystems are ignored.
func useLogger(subsystemID string, logger btclog.Logger) {
	if _, ok := subsystemLoggers[subsystemID]; !ok {
		return
	}
	subsystemLoggers[subsystemID] = logger

	switch subsystemID {
	case "WCTL":
		log = logger
	case "GWAY":
		gwLog = logger
		backend.UseLogger(logger)
	case "CALL":
		callLog = logger
		boundary.UseLogger(logger)
	case "WSTR":
		storeLog = logger
		walletstore.UseLogger(logger)
	case "BCCH":
		cacheLog = logger
		blockcache.UseLogger(logger)
	}
}

// setLogLevels creates every subsystem logger from l at l's level.  The
// gateway logger is installed first because backend.UseLogger also hands it
// to the packages below it.
func setLogLevels(l *build.Logging) {
	useLogger("GWAY", l.Logger("GWAY"))
	for subsystemID := range subsystemLoggers {
		if subsystemID == "GWAY" {
			continue
		}
		useLogger(subsystemID, l.Logger(subsystemID))
	}
}
