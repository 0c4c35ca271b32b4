// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package backend

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/shieldwallet/walletbackend/engine"
	"github.com/shieldwallet/walletbackend/netparams"
	"github.com/shieldwallet/walletbackend/walletstore"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the light wallet server's TreeState message.
const (
	treeStateNetwork     protowire.Number = 1
	treeStateHeight      protowire.Number = 2
	treeStateHash        protowire.Number = 3
	treeStateTime        protowire.Number = 4
	treeStateSaplingTree protowire.Number = 5
	treeStateOrchardTree protowire.Number = 6
)

// errTreeState is returned for a tree state that cannot be parsed.
var errTreeState = errors.New("Invalid TreeState")

// TreeState is the note commitment tree state at a block, as served by a
// light wallet server.
type TreeState struct {
	Network     string
	Height      uint64
	Hash        string
	Time        uint32
	SaplingTree string
	OrchardTree string
}

// ParseTreeState decodes a protobuf-encoded TreeState.  Unknown fields are
// skipped.
func ParseTreeState(b []byte) (*TreeState, error) {
	ts := &TreeState{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", errTreeState,
				protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.VarintType &&
			(num == treeStateHeight || num == treeStateTime):

			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", errTreeState,
					protowire.ParseError(n))
			}
			b = b[n:]
			if num == treeStateHeight {
				ts.Height = v
				continue
			}
			if v > math.MaxUint32 {
				return nil, fmt.Errorf("%w: time %d out of range",
					errTreeState, v)
			}
			ts.Time = uint32(v)

		case typ == protowire.BytesType && isStringField(num):

			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", errTreeState,
					protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case treeStateNetwork:
				ts.Network = string(v)
			case treeStateHash:
				ts.Hash = string(v)
			case treeStateSaplingTree:
				ts.SaplingTree = string(v)
			case treeStateOrchardTree:
				ts.OrchardTree = string(v)
			}

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", errTreeState,
					protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return ts, nil
}

func isStringField(num protowire.Number) bool {
	switch num {
	case treeStateNetwork, treeStateHash, treeStateSaplingTree,
		treeStateOrchardTree:

		return true
	}
	return false
}

// Marshal encodes the tree state in protobuf wire format.
func (ts *TreeState) Marshal() []byte {
	var b []byte
	appendString := func(num protowire.Number, s string) {
		if s == "" {
			return
		}
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	appendVarint := func(num protowire.Number, v uint64) {
		if v == 0 {
			return
		}
		b = protowire.AppendTag(b, num, protowire.VarintType)
		b = protowire.AppendVarint(b, v)
	}

	appendString(treeStateNetwork, ts.Network)
	appendVarint(treeStateHeight, ts.Height)
	appendString(treeStateHash, ts.Hash)
	appendVarint(treeStateTime, uint64(ts.Time))
	appendString(treeStateSaplingTree, ts.SaplingTree)
	appendString(treeStateOrchardTree, ts.OrchardTree)
	return b
}

// networkName is the name a light wallet server uses for net.
func networkName(net netparams.Network) string {
	if net == netparams.MainNet {
		return "main"
	}
	return "test"
}

// birthday derives an account birthday from the tree state at the block
// before the account's first possible transaction.
func (ts *TreeState) birthday(params *netparams.Params,
	recoverUntil fnHeight) (*walletstore.Birthday, error) {

	if ts.Network != "" && ts.Network != networkName(params.Network) {
		return nil, fmt.Errorf("%w: tree state is for network %q",
			errTreeState, ts.Network)
	}
	if ts.Height >= math.MaxUint32 {
		return nil, fmt.Errorf("%w: height %d out of range",
			errTreeState, ts.Height)
	}

	sapling, err := hex.DecodeString(ts.SaplingTree)
	if err != nil {
		return nil, fmt.Errorf("%w: sapling tree: %v", errTreeState, err)
	}
	orchard, err := hex.DecodeString(ts.OrchardTree)
	if err != nil {
		return nil, fmt.Errorf("%w: orchard tree: %v", errTreeState, err)
	}

	return &walletstore.Birthday{
		Height:       engine.Height(ts.Height + 1),
		SaplingTree:  sapling,
		OrchardTree:  orchard,
		RecoverUntil: recoverUntil,
	}, nil
}
