// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// walletctl runs the maintenance operations of the wallet backend against a
// data directory: creating stores, running pending migrations and rewinding
// to a height.  None of its commands reach the wallet engine.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/shieldwallet/walletbackend/backend"
	"github.com/shieldwallet/walletbackend/build"
)

var (
	out        io.Writer = os.Stdout
	newBackend           = setup
)

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	fmt.Fprintln(os.Stderr)
	os.Exit(1)
}

// setup installs logging and returns a backend without an engine.
func setup() *backend.Backend {
	l := build.InitOnLoad(build.Config{
		LogFile: opts.LogFile,
		Level:   opts.DebugLevel,
	})
	setLogLevels(l)
	if err := l.Degraded(); err != nil {
		log.Warnf("File logging disabled: %v", err)
	}
	log.Debugf("Using data directory %s", opts.netDir())
	return backend.New(nil)
}

func newParser() *flags.Parser {
	parser := flags.NewParser(&opts, flags.Default)
	for _, c := range commands {
		_, err := parser.AddCommand(c.name, c.short, c.long, c.cmd)
		if err != nil {
			fatalf("%v", err)
		}
	}
	return parser
}

func main() {
	parser, err := loadConfig(os.Args[1:])
	if err != nil {
		fatalf("%v", err)
	}
	if _, err := parser.ParseArgs(os.Args[1:]); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
