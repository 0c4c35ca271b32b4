// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keys

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/shieldwallet/walletbackend/netparams"
	"github.com/shieldwallet/walletbackend/secret"
)

// bip44Purpose is the BIP0044 purpose field.
const bip44Purpose = 44

// DeriveTransparentAccountKey derives the account-level transparent key
// m/44'/coin_type'/account' from seed and returns its serialized body without
// the version prefix, in the form carried by a unified spending key.
func DeriveTransparentAccountKey(params *netparams.Params, seed []byte,
	account uint32) (*secret.Material, error) {

	if account >= hdkeychain.HardenedKeyStart {
		return nil, fmt.Errorf("account %d out of range", account)
	}

	master, err := hdkeychain.NewMaster(seed, params.Params)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	defer master.Zero()

	purpose, err := master.Derive(hdkeychain.HardenedKeyStart + bip44Purpose)
	if err != nil {
		return nil, fmt.Errorf("purpose key: %w", err)
	}
	defer purpose.Zero()

	coin, err := purpose.Derive(hdkeychain.HardenedKeyStart + params.CoinType)
	if err != nil {
		return nil, fmt.Errorf("coin type key: %w", err)
	}
	defer coin.Zero()

	acct, err := coin.Derive(hdkeychain.HardenedKeyStart + account)
	if err != nil {
		return nil, fmt.Errorf("account key: %w", err)
	}
	defer acct.Zero()

	// The base58 form is version(4) || body(74) || checksum(4).
	raw := base58.Decode(acct.String())
	defer secret.Zero(raw)
	if len(raw) != 4+TransparentKeyLen+4 {
		return nil, fmt.Errorf("unexpected extended key length %d",
			len(raw))
	}
	return secret.Copy(raw[4 : 4+TransparentKeyLen]), nil
}
