// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// This file contains a mock implementation of the engine.Engine interface.
// It is used in the gateway tests to isolate the boundary from the native
// wallet engine.

package backend

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shieldwallet/walletbackend/engine"
	"github.com/shieldwallet/walletbackend/keys"
	"github.com/shieldwallet/walletbackend/memo"
	"github.com/shieldwallet/walletbackend/netparams"
	"github.com/shieldwallet/walletbackend/proposal"
	"github.com/shieldwallet/walletbackend/secret"
	"github.com/stretchr/testify/mock"
)

// mockEngine is a mock implementation of the engine.Engine interface.
// Methods whose results must be fresh on every call accept a function as
// their first return value.
type mockEngine struct {
	mock.Mock
}

// A compile-time assertion to ensure that mockEngine implements the Engine
// interface.
var _ engine.Engine = (*mockEngine)(nil)

// DeriveSpendingKey implements the engine.Engine interface.
func (m *mockEngine) DeriveSpendingKey(params *netparams.Params,
	seed *secret.Material, account engine.AccountID) (*keys.SpendingKey,
	error) {

	args := m.Called(params, seed, account)
	switch v := args.Get(0).(type) {
	case func(*netparams.Params, *secret.Material,
		engine.AccountID) *keys.SpendingKey:

		return v(params, seed, account), args.Error(1)

	case *keys.SpendingKey:
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

// ViewingKey implements the engine.Engine interface.
func (m *mockEngine) ViewingKey(params *netparams.Params,
	usk *keys.SpendingKey) (string, error) {

	args := m.Called(params, usk)
	if f, ok := args.Get(0).(func(*keys.SpendingKey) string); ok {
		return f(usk), args.Error(1)
	}
	return args.String(0), args.Error(1)
}

// DefaultAddress implements the engine.Engine interface.
func (m *mockEngine) DefaultAddress(params *netparams.Params,
	ufvk string) (string, error) {

	args := m.Called(params, ufvk)
	if f, ok := args.Get(0).(func(string) string); ok {
		return f(ufvk), args.Error(1)
	}
	return args.String(0), args.Error(1)
}

// ScanCachedBlocks implements the engine.Engine interface.
func (m *mockEngine) ScanCachedBlocks(ctx context.Context,
	params *netparams.Params, cache engine.BlockSource,
	data engine.WalletData, from engine.Height,
	limit uint32) (*engine.ScanSummary, error) {

	args := m.Called(ctx, params, cache, data, from, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*engine.ScanSummary), args.Error(1)
}

// DecryptAndStoreTransaction implements the engine.Engine interface.
func (m *mockEngine) DecryptAndStoreTransaction(ctx context.Context,
	params *netparams.Params, data engine.WalletData, tx []byte) error {

	args := m.Called(ctx, params, data, tx)
	return args.Error(0)
}

// SuggestScanRanges implements the engine.Engine interface.
func (m *mockEngine) SuggestScanRanges(ctx context.Context,
	data engine.WalletData) ([]engine.ScanRange, error) {

	args := m.Called(ctx, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]engine.ScanRange), args.Error(1)
}

// WalletSummary implements the engine.Engine interface.
func (m *mockEngine) WalletSummary(ctx context.Context,
	params *netparams.Params, data engine.WalletData,
	minConfirmations uint32) (fn.Option[engine.WalletSummary], error) {

	args := m.Called(ctx, params, data, minConfirmations)
	if args.Get(0) == nil {
		return fn.None[engine.WalletSummary](), args.Error(1)
	}
	return args.Get(0).(fn.Option[engine.WalletSummary]), args.Error(1)
}

// ProposeTransfer implements the engine.Engine interface.
func (m *mockEngine) ProposeTransfer(ctx context.Context,
	params *netparams.Params, data engine.WalletData,
	account engine.AccountID, req engine.TransferRequest,
	rule proposal.FeeRule, minConfirmations uint32) (*proposal.Proposal,
	error) {

	args := m.Called(ctx, params, data, account, req, rule,
		minConfirmations)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*proposal.Proposal), args.Error(1)
}

// ProposeShielding implements the engine.Engine interface.
func (m *mockEngine) ProposeShielding(ctx context.Context,
	params *netparams.Params, data engine.WalletData,
	account engine.AccountID, threshold btcutil.Amount,
	shieldingMemo fn.Option[*memo.Memo], rule proposal.FeeRule,
	minConfirmations uint32) (*proposal.Proposal, error) {

	args := m.Called(ctx, params, data, account, threshold,
		shieldingMemo, rule, minConfirmations)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*proposal.Proposal), args.Error(1)
}

// CreateProposedTransactions implements the engine.Engine interface.
func (m *mockEngine) CreateProposedTransactions(ctx context.Context,
	params *netparams.Params, data engine.WalletData, p *proposal.Proposal,
	usk *keys.SpendingKey, prover engine.Prover) ([]chainhash.Hash, error) {

	args := m.Called(ctx, params, data, p, usk, prover)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]chainhash.Hash), args.Error(1)
}
