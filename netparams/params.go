// Copyright (c) 2013-2015 The btcsuite developers
// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

// Network identifies the chain a call operates against.  The zero value is
// the test network so that the host encoding (0 = testnet, 1 = mainnet) maps
// directly onto the enum.
type Network uint32

const (
	// TestNet is the public test network.
	TestNet Network = 0

	// MainNet is the production network.
	MainNet Network = 1
)

// String returns a human readable network name.
func (n Network) String() string {
	switch n {
	case TestNet:
		return "testnet"
	case MainNet:
		return "mainnet"
	default:
		return fmt.Sprintf("unknown network (%d)", uint32(n))
	}
}

// Code returns the host encoding of the network.
func (n Network) Code() uint32 {
	return uint32(n)
}

// Params returns the parameters for the network.  It panics when called on a
// value that did not come from ParseNetwork, which the boundary harness turns
// into a reported fault.
func (n Network) Params() *Params {
	switch n {
	case TestNet:
		return &TestNetParams
	case MainNet:
		return &MainNetParams
	default:
		panic(fmt.Sprintf("no parameters for %v", n))
	}
}

// ParseNetwork converts the host network code into a Network.  Only 0 and 1
// are accepted.
func ParseNetwork(code uint32) (Network, error) {
	switch code {
	case 0:
		return TestNet, nil
	case 1:
		return MainNet, nil
	default:
		return 0, fmt.Errorf("Invalid network type: %d. Expected either 0 "+
			"or 1 for Testnet or Mainnet, respectively.", code)
	}
}

// Params is used to group the encoding and consensus parameters of a network.
// The embedded chaincfg parameters only supply the BIP32 extended key version
// bytes.
type Params struct {
	*chaincfg.Params

	Network Network

	// CoinType is the SLIP-44 coin type used in account key paths.
	CoinType uint32

	// SaplingHRP and UnifiedHRP are the human readable parts of Sapling
	// and unified address encodings.
	SaplingHRP string
	UnifiedHRP string

	// P2PKHPrefix and P2SHPrefix are the two byte base58check prefixes of
	// transparent addresses.
	P2PKHPrefix [2]byte
	P2SHPrefix  [2]byte

	// SaplingActivationHeight is the lowest height a wallet birthday may
	// refer to.
	SaplingActivationHeight uint32

	// Upgrades lists network upgrade activations in ascending height
	// order.
	Upgrades []Upgrade
}

// MainNetParams contains parameters specific to the main network.
var MainNetParams = Params{
	Params:                  &chaincfg.MainNetParams,
	Network:                 MainNet,
	CoinType:                133,
	SaplingHRP:              "zs",
	UnifiedHRP:              "u",
	P2PKHPrefix:             [2]byte{0x1c, 0xb8},
	P2SHPrefix:              [2]byte{0x1c, 0xbd},
	SaplingActivationHeight: 419200,
	Upgrades: []Upgrade{
		{Overwinter, 347500},
		{Sapling, 419200},
		{Blossom, 653600},
		{Heartwood, 903000},
		{Canopy, 1046400},
		{NU5, 1687104},
		{NU6, 2726400},
	},
}

// TestNetParams contains parameters specific to the public test network.
var TestNetParams = Params{
	Params:                  &chaincfg.TestNet3Params,
	Network:                 TestNet,
	CoinType:                1,
	SaplingHRP:              "ztestsapling",
	UnifiedHRP:              "utest",
	P2PKHPrefix:             [2]byte{0x1d, 0x25},
	P2SHPrefix:              [2]byte{0x1c, 0xba},
	SaplingActivationHeight: 280000,
	Upgrades: []Upgrade{
		{Overwinter, 207500},
		{Sapling, 280000},
		{Blossom, 584000},
		{Heartwood, 903800},
		{Canopy, 1028500},
		{NU5, 1842420},
		{NU6, 2976000},
	},
}
