// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package engine defines the contract of the native wallet engine.  The
// engine performs scanning, trial decryption, note selection, fee
// computation and proving; this module only sequences calls into it.
package engine

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shieldwallet/walletbackend/keys"
	"github.com/shieldwallet/walletbackend/memo"
	"github.com/shieldwallet/walletbackend/netparams"
	"github.com/shieldwallet/walletbackend/proposal"
	"github.com/shieldwallet/walletbackend/secret"
)

// WalletData is the view of an open wallet store handed to the engine for
// the duration of one call.
type WalletData interface {
	// Network is the network the store was opened for.
	Network() netparams.Network

	// ChainTip returns the latest known chain tip, if any.
	ChainTip(ctx context.Context) (fn.Option[Height], error)

	// UnspentTransparentOutputs lists the outputs received at addr that
	// are confirmed at or below anchor and not yet spent.
	UnspentTransparentOutputs(ctx context.Context, addr string,
		anchor Height) ([]TransparentOutput, error)
}

// BlockSource is the view of an open block metadata cache.
type BlockSource interface {
	// Root is the directory holding the cached blocks.
	Root() string

	// MaxCachedHeight returns the highest cached height, if any.
	MaxCachedHeight() (fn.Option[Height], error)

	// FindBlock returns the metadata for height, if cached.
	FindBlock(height Height) (fn.Option[BlockMeta], error)
}

// Prover locates the proving parameters used when building transactions.
type Prover struct {
	SpendParamsPath  string
	OutputParamsPath string
}

// TransferRequest is a request to pay one or more recipients.  Memos are only
// set for shielded recipients.
type TransferRequest struct {
	Payments []proposal.Payment
}

// Engine is the native wallet engine.
type Engine interface {
	// DeriveSpendingKey derives the unified spending key for account.
	DeriveSpendingKey(params *netparams.Params, seed *secret.Material,
		account AccountID) (*keys.SpendingKey, error)

	// ViewingKey returns the encoded unified full viewing key of usk.
	ViewingKey(params *netparams.Params,
		usk *keys.SpendingKey) (string, error)

	// DefaultAddress returns the default unified address of a viewing
	// key.
	DefaultAddress(params *netparams.Params, ufvk string) (string, error)

	// ScanCachedBlocks scans up to limit cached blocks starting at from.
	ScanCachedBlocks(ctx context.Context, params *netparams.Params,
		cache BlockSource, data WalletData, from Height,
		limit uint32) (*ScanSummary, error)

	// DecryptAndStoreTransaction trial-decrypts a raw transaction and
	// records anything relevant to the wallet.
	DecryptAndStoreTransaction(ctx context.Context,
		params *netparams.Params, data WalletData, tx []byte) error

	// SuggestScanRanges returns the prioritized ranges to scan next.
	SuggestScanRanges(ctx context.Context,
		data WalletData) ([]ScanRange, error)

	// WalletSummary computes balances and scan progress.  None means the
	// wallet has not synced far enough to report one.
	WalletSummary(ctx context.Context, params *netparams.Params,
		data WalletData,
		minConfirmations uint32) (fn.Option[WalletSummary], error)

	// ProposeTransfer plans a payment from account.
	ProposeTransfer(ctx context.Context, params *netparams.Params,
		data WalletData, account AccountID, req TransferRequest,
		rule proposal.FeeRule,
		minConfirmations uint32) (*proposal.Proposal, error)

	// ProposeShielding plans moving transparent funds above threshold
	// into the shielded pool.
	ProposeShielding(ctx context.Context, params *netparams.Params,
		data WalletData, account AccountID, threshold btcutil.Amount,
		shieldingMemo fn.Option[*memo.Memo], rule proposal.FeeRule,
		minConfirmations uint32) (*proposal.Proposal, error)

	// CreateProposedTransactions builds, proves and stores the
	// transactions of a proposal, returning their ids in step order.
	CreateProposedTransactions(ctx context.Context,
		params *netparams.Params, data WalletData, p *proposal.Proposal,
		usk *keys.SpendingKey, prover Prover) ([]chainhash.Hash, error)
}
