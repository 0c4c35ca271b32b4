// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package model defines the objects exchanged with the host and their
// translation to and from the engine's native records.  Host objects use
// signed 64-bit integers and byte slices throughout; conversions check every
// range instead of truncating.
package model

import (
	"fmt"
	"math"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/shieldwallet/walletbackend/engine"
	"github.com/shieldwallet/walletbackend/keys"
	"github.com/shieldwallet/walletbackend/param"
)

func toU32(field string, v int64) (uint32, error) {
	if v < 0 || v > math.MaxUint32 {
		return 0, fmt.Errorf("%s %d out of range", field, v)
	}
	return uint32(v), nil
}

// BlockMeta is the host form of engine.BlockMeta.
type BlockMeta struct {
	Height              int64
	BlockHash           []byte
	BlockTime           int64
	SaplingOutputsCount int64
	OrchardActionsCount int64
}

// DecodeBlockMeta converts a host record.  The hash must be exactly 32 bytes.
func DecodeBlockMeta(m *BlockMeta) (engine.BlockMeta, error) {
	var out engine.BlockMeta
	if m == nil {
		return out, fmt.Errorf("nil block metadata")
	}

	height, err := param.Height(m.Height)
	if err != nil {
		return out, err
	}
	if len(m.BlockHash) != chainhash.HashSize {
		return out, fmt.Errorf("block hash must be %d bytes, got %d",
			chainhash.HashSize, len(m.BlockHash))
	}
	blockTime, err := toU32("block time", m.BlockTime)
	if err != nil {
		return out, err
	}
	sapling, err := toU32("Sapling output count", m.SaplingOutputsCount)
	if err != nil {
		return out, err
	}
	orchard, err := toU32("Orchard action count", m.OrchardActionsCount)
	if err != nil {
		return out, err
	}

	out.Height = height
	copy(out.BlockHash[:], m.BlockHash)
	out.BlockTime = blockTime
	out.SaplingOutputsCount = sapling
	out.OrchardActionsCount = orchard
	return out, nil
}

// EncodeBlockMeta converts a native record.
func EncodeBlockMeta(m engine.BlockMeta) *BlockMeta {
	hash := make([]byte, chainhash.HashSize)
	copy(hash, m.BlockHash[:])
	return &BlockMeta{
		Height:              int64(m.Height),
		BlockHash:           hash,
		BlockTime:           int64(m.BlockTime),
		SaplingOutputsCount: int64(m.SaplingOutputsCount),
		OrchardActionsCount: int64(m.OrchardActionsCount),
	}
}

// DecodeBlockMetas converts a batch of host records.
func DecodeBlockMetas(ms []BlockMeta) ([]engine.BlockMeta, error) {
	out := make([]engine.BlockMeta, 0, len(ms))
	for i := range ms {
		m, err := DecodeBlockMeta(&ms[i])
		if err != nil {
			return nil, fmt.Errorf("block metadata %d: %w", i, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// priorityCodes maps scan priorities to their host codes.  The gaps leave
// room for future levels.
var priorityCodes = map[engine.ScanPriority]int32{
	engine.PriorityIgnored:      0,
	engine.PriorityScanned:      10,
	engine.PriorityHistoric:     20,
	engine.PriorityOpenAdjacent: 30,
	engine.PriorityFoundNote:    40,
	engine.PriorityChainTip:     50,
	engine.PriorityVerify:       60,
}

var codePriorities = func() map[int32]engine.ScanPriority {
	m := make(map[int32]engine.ScanPriority, len(priorityCodes))
	for p, c := range priorityCodes {
		m[c] = p
	}
	return m
}()

// EncodeScanPriority returns the host code of p.
func EncodeScanPriority(p engine.ScanPriority) (int32, error) {
	c, ok := priorityCodes[p]
	if !ok {
		return 0, fmt.Errorf("unknown scan priority %v", p)
	}
	return c, nil
}

// DecodeScanPriority parses a host priority code.
func DecodeScanPriority(code int32) (engine.ScanPriority, error) {
	p, ok := codePriorities[code]
	if !ok {
		return 0, fmt.Errorf("unknown scan priority code %d", code)
	}
	return p, nil
}

// ScanRange is the host form of engine.ScanRange.  EndHeight is exclusive.
type ScanRange struct {
	StartHeight int64
	EndHeight   int64
	Priority    int32
}

// EncodeScanRange converts a native range.
func EncodeScanRange(r engine.ScanRange) (*ScanRange, error) {
	code, err := EncodeScanPriority(r.Priority)
	if err != nil {
		return nil, err
	}
	return &ScanRange{
		StartHeight: int64(r.Start),
		EndHeight:   int64(r.End),
		Priority:    code,
	}, nil
}

// EncodeScanRanges converts ranges into a host array.
func EncodeScanRanges(rs []engine.ScanRange) ([]*ScanRange, error) {
	return EncodeSlice(rs, func() *ScanRange {
		return &ScanRange{}
	}, EncodeScanRange)
}

// ScanSummary is the host form of engine.ScanSummary.
type ScanSummary struct {
	ScannedStartHeight int64
	ScannedEndHeight   int64
	SpentNoteCount     int64
	ReceivedNoteCount  int64
}

// EncodeScanSummary converts a native summary.
func EncodeScanSummary(s *engine.ScanSummary) (*ScanSummary, error) {
	if s.SpentNoteCount > math.MaxInt64 ||
		s.ReceivedNoteCount > math.MaxInt64 {

		return nil, fmt.Errorf("note count out of range")
	}
	return &ScanSummary{
		ScannedStartHeight: int64(s.ScannedStart),
		ScannedEndHeight:   int64(s.ScannedEnd),
		SpentNoteCount:     int64(s.SpentNoteCount),
		ReceivedNoteCount:  int64(s.ReceivedNoteCount),
	}, nil
}

// Balance is the host form of engine.Balance.
type Balance struct {
	SpendableValue            int64
	ChangePendingConfirmation int64
	ValuePendingSpendability  int64
}

func encodeBalance(b engine.Balance) (Balance, error) {
	// Every component must be a valid amount, and so must their sum.
	_, err := param.SumAmounts([]btcutil.Amount{
		b.SpendableValue, b.ChangePendingConfirmation,
		b.ValuePendingSpendability,
	})
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		SpendableValue:            int64(b.SpendableValue),
		ChangePendingConfirmation: int64(b.ChangePendingConfirmation),
		ValuePendingSpendability:  int64(b.ValuePendingSpendability),
	}, nil
}

// AccountBalance is the host form of engine.AccountBalance.
type AccountBalance struct {
	Account    int32
	Sapling    Balance
	Orchard    Balance
	Unshielded int64
}

// EncodeAccountBalance converts the balance of one account.
func EncodeAccountBalance(id engine.AccountID,
	b engine.AccountBalance) (*AccountBalance, error) {

	account, err := param.SignedAccountID(id)
	if err != nil {
		return nil, err
	}
	sapling, err := encodeBalance(b.Sapling)
	if err != nil {
		return nil, fmt.Errorf("Sapling balance: %w", err)
	}
	orchard, err := encodeBalance(b.Orchard)
	if err != nil {
		return nil, fmt.Errorf("Orchard balance: %w", err)
	}
	_, err = param.SumAmounts([]btcutil.Amount{
		b.Sapling.Total(), b.Orchard.Total(), b.Unshielded,
	})
	if err != nil {
		return nil, err
	}
	return &AccountBalance{
		Account:    account,
		Sapling:    sapling,
		Orchard:    orchard,
		Unshielded: int64(b.Unshielded),
	}, nil
}

// WalletSummary is the host form of engine.WalletSummary.  Balances are
// ordered by account id.
type WalletSummary struct {
	AccountBalances     []*AccountBalance
	ChainTipHeight      int64
	FullyScannedHeight  int64
	ProgressNumerator   int64
	ProgressDenominator int64
}

// EncodeWalletSummary converts a native summary.  A zero progress
// denominator means no progress data is available; the result is then nil
// rather than a degenerate ratio.
func EncodeWalletSummary(s *engine.WalletSummary) (*WalletSummary, error) {
	if s == nil || s.ProgressDenominator == 0 {
		return nil, nil
	}
	if s.ProgressNumerator > math.MaxInt64 ||
		s.ProgressDenominator > math.MaxInt64 {

		return nil, fmt.Errorf("scan progress out of range")
	}

	ids := make([]engine.AccountID, 0, len(s.Accounts))
	for id := range s.Accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	balances, err := EncodeSlice(ids, func() *AccountBalance {
		return &AccountBalance{}
	}, func(id engine.AccountID) (*AccountBalance, error) {
		return EncodeAccountBalance(id, s.Accounts[id])
	})
	if err != nil {
		return nil, err
	}

	return &WalletSummary{
		AccountBalances:     balances,
		ChainTipHeight:      int64(s.ChainTipHeight),
		FullyScannedHeight:  int64(s.FullyScannedHeight),
		ProgressNumerator:   int64(s.ProgressNumerator),
		ProgressDenominator: int64(s.ProgressDenominator),
	}, nil
}

// SubtreeRoot is the host form of engine.SubtreeRoot.
type SubtreeRoot struct {
	RootHash              []byte
	CompletingBlockHeight int64
}

// DecodeSubtreeRoots converts host subtree roots.
func DecodeSubtreeRoots(rs []SubtreeRoot) ([]engine.SubtreeRoot, error) {
	out := make([]engine.SubtreeRoot, 0, len(rs))
	for i, r := range rs {
		hash, err := param.Hash32(r.RootHash)
		if err != nil {
			return nil, fmt.Errorf("subtree root %d hash: %w", i, err)
		}
		height, err := param.Height(r.CompletingBlockHeight)
		if err != nil {
			return nil, fmt.Errorf("subtree root %d: %w", i, err)
		}
		out = append(out, engine.SubtreeRoot{
			CompletingBlockHeight: height,
			RootHash:              hash,
		})
	}
	return out, nil
}

// UnifiedSpendingKey pairs an encoded spending key with the account it was
// derived for.
type UnifiedSpendingKey struct {
	Account int32
	Bytes   []byte
}

// String implements fmt.Stringer without revealing the key.
func (k *UnifiedSpendingKey) String() string {
	return fmt.Sprintf("UnifiedSpendingKey(account=%d)", k.Account)
}

// EncodeSpendingKey serializes key for the host.  This is the only place key
// bytes leave a secret container.
func EncodeSpendingKey(account engine.AccountID,
	key *keys.SpendingKey) (*UnifiedSpendingKey, error) {

	id, err := param.SignedAccountID(account)
	if err != nil {
		return nil, err
	}

	enc := key.Encode()
	defer enc.Destroy()

	out := make([]byte, enc.Len())
	copy(out, enc.Expose())
	return &UnifiedSpendingKey{Account: id, Bytes: out}, nil
}

// DecodeSpendingKey parses a host spending key for the expected era.  The
// host's buffer is left untouched.
func DecodeSpendingKey(usk *UnifiedSpendingKey) (engine.AccountID,
	*keys.SpendingKey, error) {

	if usk == nil {
		return 0, nil, fmt.Errorf("nil spending key")
	}
	account, err := param.AccountID(usk.Account)
	if err != nil {
		return 0, nil, err
	}
	key, err := keys.Decode(usk.Bytes, keys.EraOrchard)
	if err != nil {
		return 0, nil, err
	}
	return account, key, nil
}
