// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package backend is the host-facing surface of the wallet.  Every exported
// method validates its primitive arguments, opens the stores it needs for the
// duration of the call, delegates to the wallet engine and translates the
// result into host objects.  Failures are reported on the boundary.Env and
// the method returns its documented sentinel.
package backend

import (
	"context"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shieldwallet/walletbackend/blockcache"
	"github.com/shieldwallet/walletbackend/boundary"
	"github.com/shieldwallet/walletbackend/engine"
	"github.com/shieldwallet/walletbackend/netparams"
	"github.com/shieldwallet/walletbackend/walletstore"
)

const (
	// AnchorOffset is the number of confirmations a note or output needs
	// before it counts as verified.
	AnchorOffset = 10

	// RewindFastPathHeight is the height below which a rewind target is
	// accepted without consulting the store.
	RewindFastPathHeight = 100

	// ShieldingThreshold is the smallest transparent balance, in
	// zatoshi, worth shielding.
	ShieldingThreshold = 100000
)

// InitDataDb results.
const (
	InitReady        int32 = 0
	InitSeedRequired int32 = 1
	InitFailed       int32 = -1
)

type fnHeight = fn.Option[engine.Height]

// Backend sequences host calls into the wallet engine and the stores.
type Backend struct {
	engine engine.Engine
}

// New returns a backend that delegates to e.
func New(e engine.Engine) *Backend {
	return &Backend{engine: e}
}

// withData opens the wallet database at path for the duration of f.
func withData[T any](path string, net netparams.Network,
	f func(*walletstore.Store) (T, error)) (T, error) {

	var zero T
	s, err := walletstore.Open(path, net)
	if err != nil {
		return zero, boundary.Store(
			"Error opening wallet database connection", err,
		)
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Errorf("Unable to close wallet database %s: %v",
				path, err)
		}
	}()

	return f(s)
}

// withCache opens the block metadata cache at root for the duration of f.
func withCache[T any](root string,
	f func(*blockcache.Cache) (T, error)) (T, error) {

	var zero T
	c, err := blockcache.Open(root)
	if err != nil {
		return zero, boundary.Store(
			"Error opening block metadata cache", err,
		)
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Errorf("Unable to close block cache %s: %v", root,
				err)
		}
	}()

	return f(c)
}

// storeErr classifies err as a store failure unless it already carries a
// code.
func storeErr(desc string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := boundary.CodeOf(err); ok {
		return err
	}
	return boundary.Store(desc, err)
}

// callContext is the context for store and engine calls.  Host calls are
// synchronous and cannot be cancelled.
func callContext() context.Context {
	return context.Background()
}
