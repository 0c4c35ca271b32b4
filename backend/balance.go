// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package backend

import (
	"errors"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/shieldwallet/walletbackend/address"
	"github.com/shieldwallet/walletbackend/boundary"
	"github.com/shieldwallet/walletbackend/engine"
	"github.com/shieldwallet/walletbackend/memo"
	"github.com/shieldwallet/walletbackend/model"
	"github.com/shieldwallet/walletbackend/netparams"
	"github.com/shieldwallet/walletbackend/param"
	"github.com/shieldwallet/walletbackend/proposal"
	"github.com/shieldwallet/walletbackend/walletstore"
)

var (
	errAnchorUnavailable = errors.New("Anchor height not available; " +
		"scan required.")

	errTipUnavailable = errors.New("Chain height not available; scan " +
		"required.")

	errMemoNotAvailable = errors.New("Memo not available")
)

// GetVerifiedTransparentBalance returns the value of the unspent outputs at
// addr with at least AnchorOffset confirmations, or -1 on failure.
func (b *Backend) GetVerifiedTransparentBalance(env *boundary.Env, dbData,
	addr string, network int32) int64 {

	return transparentBalance(env, "getVerifiedTransparentBalance", dbData,
		addr, network, func(s *walletstore.Store) (engine.Height, error) {
			heights, err := s.TargetAndAnchorHeights(
				callContext(), AnchorOffset,
			)
			if err != nil {
				return 0, err
			}
			if heights.IsNone() {
				return 0, errAnchorUnavailable
			}
			return heights.UnwrapOr(walletstore.AnchorHeights{}).Anchor,
				nil
		},
	)
}

// GetTotalTransparentBalance returns the value of every unspent output at
// addr mined up to the chain tip, or -1 on failure.
func (b *Backend) GetTotalTransparentBalance(env *boundary.Env, dbData,
	addr string, network int32) int64 {

	return transparentBalance(env, "getTotalTransparentBalance", dbData,
		addr, network, func(s *walletstore.Store) (engine.Height, error) {
			tip, err := s.ChainTip(callContext())
			if err != nil {
				return 0, err
			}
			if tip.IsNone() {
				return 0, errTipUnavailable
			}
			return tip.UnwrapOr(0), nil
		},
	)
}

func transparentBalance(env *boundary.Env, op, dbData, addr string,
	network int32,
	anchor func(*walletstore.Store) (engine.Height, error)) int64 {

	return boundary.Call(env, op, int64(-1), func() (int64, error) {
		params, err := param.NetworkParams(network)
		if err != nil {
			return -1, boundary.Validation("", err)
		}
		if err := requireTransparent(params, addr); err != nil {
			return -1, err
		}

		return withData(dbData, params.Network,
			func(s *walletstore.Store) (int64, error) {
				h, err := anchor(s)
				if err != nil {
					return -1, storeErr("Error while fetching "+
						"transparent balance", err)
				}

				outs, err := s.UnspentTransparentOutputs(
					callContext(), addr, h,
				)
				if err != nil {
					return -1, storeErr("Error while fetching "+
						"transparent balance", err)
				}

				values := make([]btcutil.Amount, len(outs))
				for i := range outs {
					values[i] = outs[i].Value
				}
				total, err := param.SumAmounts(values)
				if err != nil {
					return -1, boundary.Store("Error while "+
						"summing transparent outputs", err)
				}
				return int64(total), nil
			},
		)
	})
}

func requireTransparent(params *netparams.Params, addr string) error {
	a, err := address.Decode(params, addr)
	if err != nil {
		return boundary.Validation("", err)
	}
	if !a.Kind.IsTransparent() {
		return boundary.Validation("", errNotTransparent)
	}
	return nil
}

// GetWalletSummary returns balances and scan progress, or nil when the
// wallet has not synced far enough to report them.
func (b *Backend) GetWalletSummary(env *boundary.Env, dbData string,
	network int32) *model.WalletSummary {

	return boundary.Call(env, "getWalletSummary", nil,
		func() (*model.WalletSummary, error) {
			params, err := param.NetworkParams(network)
			if err != nil {
				return nil, boundary.Validation("", err)
			}

			return withData(dbData, params.Network,
				func(s *walletstore.Store) (*model.WalletSummary,
					error) {

					sum, err := b.engine.WalletSummary(
						callContext(), params, s,
						AnchorOffset,
					)
					if err != nil {
						return nil, boundary.Engine("Error "+
							"while fetching wallet "+
							"summary", err)
					}

					var out *model.WalletSummary
					sum.WhenSome(func(ws engine.WalletSummary) {
						out, err = model.EncodeWalletSummary(&ws)
					})
					return out, err
				},
			)
		},
	)
}

// GetMemoAsUtf8 returns the text memo of a received note.  An empty memo is
// the empty string.  A note with no recovered memo, or whose memo is not
// text, fails with ErrStore.
func (b *Backend) GetMemoAsUtf8(env *boundary.Env, dbData string, txid []byte,
	protocol, outputIndex int32, network int32) string {

	return boundary.Call(env, "getMemoAsUtf8", "", func() (string, error) {
		net, err := param.Network(network)
		if err != nil {
			return "", boundary.Validation("", err)
		}
		hash, err := param.TxID(txid)
		if err != nil {
			return "", boundary.Validation("", err)
		}
		pool, err := proposal.ParseShieldedProtocol(protocol)
		if err != nil {
			return "", boundary.Validation("", err)
		}
		idx, err := param.OutputIndex(outputIndex)
		if err != nil {
			return "", boundary.Validation("", err)
		}
		id := engine.NoteID{TxID: hash, Protocol: pool, OutputIndex: idx}

		raw, err := withData(dbData, net,
			func(s *walletstore.Store) ([]byte, error) {
				m, err := s.Memo(callContext(), id)
				if err != nil {
					return nil, storeErr("Error while "+
						"fetching memo", err)
				}
				return m.UnwrapOr(nil), nil
			},
		)
		if err != nil {
			return "", err
		}
		if raw == nil {
			return "", boundary.Store("", errMemoNotAvailable)
		}

		m, err := memo.FromBytes(raw)
		if err != nil {
			return "", boundary.Store("Stored memo is invalid", err)
		}
		switch m.Kind() {
		case memo.Empty:
			return "", nil
		case memo.Text:
			return m.Text()
		default:
			return "", boundary.Store("", memo.ErrNotText)
		}
	})
}
