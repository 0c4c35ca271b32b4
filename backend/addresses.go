// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package backend

import (
	"github.com/shieldwallet/walletbackend/address"
	"github.com/shieldwallet/walletbackend/boundary"
	"github.com/shieldwallet/walletbackend/netparams"
	"github.com/shieldwallet/walletbackend/param"
)

// GetTransparentReceiverForUnifiedAddress returns the transparent receiver
// of ua as a standalone address.
func (b *Backend) GetTransparentReceiverForUnifiedAddress(env *boundary.Env,
	ua string, network int32) string {

	return receiver(env, "getTransparentReceiverForUnifiedAddress", ua,
		network, address.TransparentReceiver)
}

// GetSaplingReceiverForUnifiedAddress returns the Sapling receiver of ua as a
// standalone address.
func (b *Backend) GetSaplingReceiverForUnifiedAddress(env *boundary.Env,
	ua string, network int32) string {

	return receiver(env, "getSaplingReceiverForUnifiedAddress", ua,
		network, address.SaplingReceiver)
}

func receiver(env *boundary.Env, op, ua string, network int32,
	extract func(*netparams.Params, string) (string, error)) string {

	return boundary.Call(env, op, "", func() (string, error) {
		params, err := param.NetworkParams(network)
		if err != nil {
			return "", boundary.Validation("", err)
		}
		r, err := extract(params, ua)
		if err != nil {
			return "", boundary.Validation("", err)
		}
		return r, nil
	})
}

// IsValidShieldedAddress reports whether addr is a Sapling address for the
// network.  Unparseable and wrong-network input also report an error naming
// which of the two it was.
func (b *Backend) IsValidShieldedAddress(env *boundary.Env, addr string,
	network int32) bool {

	return isValid(env, "isValidShieldedAddress", addr, network,
		address.IsValidShielded)
}

// IsValidTransparentAddress reports whether addr is a P2PKH or P2SH address
// for the network.
func (b *Backend) IsValidTransparentAddress(env *boundary.Env, addr string,
	network int32) bool {

	return isValid(env, "isValidTransparentAddress", addr, network,
		address.IsValidTransparent)
}

// IsValidUnifiedAddress reports whether addr is a unified address for the
// network.
func (b *Backend) IsValidUnifiedAddress(env *boundary.Env, addr string,
	network int32) bool {

	return isValid(env, "isValidUnifiedAddress", addr, network,
		address.IsValidUnified)
}

func isValid(env *boundary.Env, op, addr string, network int32,
	check func(*netparams.Params, string) (bool, error)) bool {

	return boundary.Call(env, op, false, func() (bool, error) {
		params, err := param.NetworkParams(network)
		if err != nil {
			return false, boundary.Validation("", err)
		}
		ok, err := check(params, addr)
		if err != nil {
			return false, boundary.Validation("", err)
		}
		return ok, nil
	})
}

// BranchIDForHeight returns the consensus branch id in effect at height.
func (b *Backend) BranchIDForHeight(env *boundary.Env, height int64,
	network int32) int64 {

	return boundary.Call(env, "branchIdForHeight", int64(-1),
		func() (int64, error) {
			params, err := param.NetworkParams(network)
			if err != nil {
				return -1, boundary.Validation("", err)
			}
			h, err := param.Height(height)
			if err != nil {
				return -1, boundary.Validation("", err)
			}
			return int64(params.BranchIDForHeight(uint32(h))), nil
		},
	)
}
