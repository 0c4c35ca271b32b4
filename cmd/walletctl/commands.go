// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/shieldwallet/walletbackend/backend"
	"github.com/shieldwallet/walletbackend/boundary"
	"github.com/shieldwallet/walletbackend/secret"
)

var commands = []struct {
	name, short, long string
	cmd               interface{}
}{
	{"initcache", "Create the block metadata cache", "", &initCacheCmd{}},
	{"initdata", "Create or migrate the wallet database",
		"Pending migrations that need the seed report 'seed required'; " +
			"rerun with --seed to supply it.", &initDataCmd{}},
	{"latest", "Print the highest cached block height", "", &latestCmd{}},
	{"rewind", "Rewind the wallet database and block cache", "",
		&rewindCmd{}},
	{"nearestrewind", "Print the safe rewind height for a target", "",
		&nearestRewindCmd{}},
	{"branchid", "Print the consensus branch id at a height", "",
		&branchIDCmd{}},
	{"validate", "Classify an address", "", &validateCmd{}},
}

type heightArg struct {
	Height int64 `positional-arg-name:"height"`
}

type initCacheCmd struct{}

func (c *initCacheCmd) Execute(args []string) error {
	b, env := newBackend(), boundary.NewEnv()
	b.InitBlockMetaDb(env, opts.cacheRoot())
	if err := env.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(out, "Block cache ready at", opts.cacheRoot())
	return nil
}

type initDataCmd struct {
	Seed bool `long:"seed" description:"Read the wallet seed from stdin"`
}

func (c *initDataCmd) Execute(args []string) error {
	var seed []byte
	if c.Seed {
		var err error
		if seed, err = readSeed(); err != nil {
			return err
		}
	}

	b, env := newBackend(), boundary.NewEnv()
	var res int32
	err := secret.With(seed, func(m *secret.Material) error {
		res = b.InitDataDb(env, opts.dataDB(), m.Expose(),
			opts.networkCode())
		return env.Clear()
	})
	if err != nil {
		return err
	}

	switch res {
	case backend.InitReady:
		fmt.Fprintln(out, "Wallet database ready at", opts.dataDB())
	case backend.InitSeedRequired:
		fmt.Fprintln(out, "Seed required: rerun with --seed")
	}
	return nil
}

type latestCmd struct{}

func (c *latestCmd) Execute(args []string) error {
	b, env := newBackend(), boundary.NewEnv()
	h := b.GetLatestCacheHeight(env, opts.cacheRoot())
	if err := env.Clear(); err != nil {
		return err
	}
	if h < 0 {
		fmt.Fprintln(out, "Block cache is empty")
		return nil
	}
	fmt.Fprintln(out, h)
	return nil
}

type rewindCmd struct {
	Args heightArg `positional-args:"yes" required:"yes"`
}

func (c *rewindCmd) Execute(args []string) error {
	b, env := newBackend(), boundary.NewEnv()
	b.RewindToHeight(env, opts.cacheRoot(), opts.dataDB(), c.Args.Height,
		opts.networkCode())
	if err := env.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(out, "Rewound to height", c.Args.Height)
	return nil
}

type nearestRewindCmd struct {
	Args heightArg `positional-args:"yes" required:"yes"`
}

func (c *nearestRewindCmd) Execute(args []string) error {
	b, env := newBackend(), boundary.NewEnv()
	h := b.GetNearestRewindHeight(env, opts.dataDB(), c.Args.Height,
		opts.networkCode())
	if err := env.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(out, h)
	return nil
}

type branchIDCmd struct {
	Args heightArg `positional-args:"yes" required:"yes"`
}

func (c *branchIDCmd) Execute(args []string) error {
	b, env := newBackend(), boundary.NewEnv()
	id := b.BranchIDForHeight(env, c.Args.Height, opts.networkCode())
	if err := env.Clear(); err != nil {
		return err
	}
	fmt.Fprintf(out, "0x%08x\n", id)
	return nil
}

type validateCmd struct {
	Args struct {
		Address string `positional-arg-name:"address"`
	} `positional-args:"yes" required:"yes"`
}

func (c *validateCmd) Execute(args []string) error {
	b, env := newBackend(), boundary.NewEnv()
	addr, net := c.Args.Address, opts.networkCode()

	kinds := []struct {
		name  string
		check func(*boundary.Env, string, int32) bool
	}{
		{"shielded", b.IsValidShieldedAddress},
		{"transparent", b.IsValidTransparentAddress},
		{"unified", b.IsValidUnifiedAddress},
	}
	for _, k := range kinds {
		ok := k.check(env, addr, net)
		if err := env.Clear(); err != nil {
			return err
		}
		if ok {
			fmt.Fprintln(out, k.name)
			return nil
		}
	}
	return fmt.Errorf("unrecognized address kind")
}
