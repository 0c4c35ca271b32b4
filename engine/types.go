// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package engine

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/shieldwallet/walletbackend/proposal"
)

// AccountID identifies an account within a wallet store.
type AccountID uint32

// Height is a block height.
type Height uint32

// NoteID and Outpoint are shared with the proposal encoding.
type (
	NoteID   = proposal.NoteID
	Outpoint = proposal.Outpoint
)

// BlockMeta is the cached metadata of one compact block.
type BlockMeta struct {
	Height              Height
	BlockHash           chainhash.Hash
	BlockTime           uint32
	SaplingOutputsCount uint32
	OrchardActionsCount uint32
}

// ScanPriority orders the urgency of scan ranges.
type ScanPriority uint8

const (
	PriorityIgnored ScanPriority = iota
	PriorityScanned
	PriorityHistoric
	PriorityOpenAdjacent
	PriorityFoundNote
	PriorityChainTip
	PriorityVerify
)

var priorityStrings = map[ScanPriority]string{
	PriorityIgnored:      "Ignored",
	PriorityScanned:      "Scanned",
	PriorityHistoric:     "Historic",
	PriorityOpenAdjacent: "OpenAdjacent",
	PriorityFoundNote:    "FoundNote",
	PriorityChainTip:     "ChainTip",
	PriorityVerify:       "Verify",
}

// String returns the priority name.
func (p ScanPriority) String() string {
	if s, ok := priorityStrings[p]; ok {
		return s
	}
	return fmt.Sprintf("ScanPriority(%d)", uint8(p))
}

// ScanRange is a half-open range of heights recommended for scanning.
type ScanRange struct {
	Start    Height
	End      Height
	Priority ScanPriority
}

// Len returns the number of blocks in the range.
func (r ScanRange) Len() uint32 {
	if r.End <= r.Start {
		return 0
	}
	return uint32(r.End - r.Start)
}

// ScanSummary reports the outcome of a scan.
type ScanSummary struct {
	// ScannedStart and ScannedEnd bound the scanned range, end exclusive.
	ScannedStart Height
	ScannedEnd   Height

	SpentNoteCount    uint64
	ReceivedNoteCount uint64
}

// Balance is the value held in one pool.
type Balance struct {
	SpendableValue            btcutil.Amount
	ChangePendingConfirmation btcutil.Amount
	ValuePendingSpendability  btcutil.Amount
}

// Total returns the sum of all components.
func (b Balance) Total() btcutil.Amount {
	return b.SpendableValue + b.ChangePendingConfirmation +
		b.ValuePendingSpendability
}

// AccountBalance is the balance of one account across pools.
type AccountBalance struct {
	Sapling    Balance
	Orchard    Balance
	Unshielded btcutil.Amount
}

// Total returns the account's total value.
func (b AccountBalance) Total() btcutil.Amount {
	return b.Sapling.Total() + b.Orchard.Total() + b.Unshielded
}

// WalletSummary is the wallet-wide balance and scan progress.
type WalletSummary struct {
	ChainTipHeight     Height
	FullyScannedHeight Height
	Accounts           map[AccountID]AccountBalance

	ProgressNumerator   uint64
	ProgressDenominator uint64
}

// TransparentOutput is an unspent transparent output owned by the wallet.
type TransparentOutput struct {
	Outpoint Outpoint
	Address  string
	Script   []byte
	Value    btcutil.Amount
	Height   Height
}

// SubtreeRoot is the root of a completed note commitment subtree.
type SubtreeRoot struct {
	CompletingBlockHeight Height
	RootHash              [32]byte
}
