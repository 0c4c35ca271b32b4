// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/jessevdk/go-flags"
	"github.com/shieldwallet/walletbackend/netparams"
)

const (
	dataDBName            = "data.db"
	cacheDir              = "cache"
	defaultConfigFilename = "walletctl.conf"
)

var (
	defaultDataDir    = btcutil.AppDataDir("walletctl", false)
	defaultConfigFile = filepath.Join(defaultDataDir, defaultConfigFilename)
)

// config holds the options shared by every command.
type config struct {
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir    string `short:"b" long:"datadir" description:"Directory holding the wallet database and block cache"`
	TestNet    bool   `long:"testnet" description:"Use the test network"`
	LogFile    string `long:"logfile" description:"Write logs to this rotating file as well as stdout"`
	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical, off}"`
}

var opts = config{
	ConfigFile: defaultConfigFile,
	DataDir:    defaultDataDir,
	DebugLevel: "info",
}

func (c *config) network() netparams.Network {
	if c.TestNet {
		return netparams.TestNet
	}
	return netparams.MainNet
}

// networkCode is the host encoding of the selected network.
func (c *config) networkCode() int32 {
	return int32(c.network().Code())
}

func (c *config) netDir() string {
	name := "mainnet"
	if c.TestNet {
		name = "testnet"
	}
	return filepath.Join(c.DataDir, name)
}

func (c *config) dataDB() string {
	return filepath.Join(c.netDir(), dataDBName)
}

func (c *config) cacheRoot() string {
	return filepath.Join(c.netDir(), cacheDir)
}

// loadConfig returns a parser whose defaults have been overridden by the
// config file, if one exists.  Command line options are applied when the
// parser runs, so they take precedence.
func loadConfig(args []string) (*flags.Parser, error) {
	// Pre-parse for the config file location only.
	preCfg := struct {
		ConfigFile string `short:"C" long:"configfile"`
	}{ConfigFile: defaultConfigFile}
	preParser := flags.NewParser(&preCfg, flags.IgnoreUnknown)
	if _, err := preParser.ParseArgs(args); err != nil {
		return nil, err
	}

	parser := newParser()
	err := flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return parser, nil
}
