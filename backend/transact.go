// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package backend

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shieldwallet/walletbackend/address"
	"github.com/shieldwallet/walletbackend/boundary"
	"github.com/shieldwallet/walletbackend/engine"
	"github.com/shieldwallet/walletbackend/keys"
	"github.com/shieldwallet/walletbackend/memo"
	"github.com/shieldwallet/walletbackend/netparams"
	"github.com/shieldwallet/walletbackend/param"
	"github.com/shieldwallet/walletbackend/proposal"
	"github.com/shieldwallet/walletbackend/walletstore"
)

var (
	// ErrUnknownSpendingKey is reported when a spending key belongs to no
	// account in the wallet database.
	ErrUnknownSpendingKey = errors.New("Spending key not recognized.")

	errInvalidMemo = errors.New("Invalid memo")
)

// paymentMemo parses the memo for a payment to recipient.  Transparent
// recipients cannot receive memos, so theirs is dropped.
func paymentMemo(recipient *address.Address, raw []byte) ([]byte, error) {
	if recipient.Kind.IsTransparent() || len(raw) == 0 {
		if len(raw) != 0 {
			log.Debugf("Dropping memo for transparent recipient")
		}
		return nil, nil
	}

	m, err := memo.FromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidMemo, err)
	}
	return m.Encode(), nil
}

// ProposeTransfer asks the engine to plan a payment of value to recipient
// from account.  It returns the encoded proposal.
func (b *Backend) ProposeTransfer(env *boundary.Env, dbData string,
	account int32, to string, value int64, memoBytes []byte,
	network int32, useZIP317Fees bool) []byte {

	return boundary.Call(env, "proposeTransfer", nil, func() ([]byte, error) {
		params, err := param.NetworkParams(network)
		if err != nil {
			return nil, boundary.Validation("", err)
		}
		id, err := param.AccountID(account)
		if err != nil {
			return nil, boundary.Validation("", err)
		}
		amt, err := param.Amount(value)
		if err != nil {
			return nil, boundary.Validation("", err)
		}
		recipient, err := address.Decode(params, to)
		if err != nil {
			return nil, boundary.Validation("", err)
		}
		m, err := paymentMemo(recipient, memoBytes)
		if err != nil {
			return nil, boundary.Validation("", err)
		}

		req := engine.TransferRequest{
			Payments: []proposal.Payment{{
				Recipient: to,
				Amount:    amt,
				Memo:      m,
			}},
		}
		rule := proposal.FeeRuleFor(useZIP317Fees)

		return withData(dbData, params.Network,
			func(s *walletstore.Store) ([]byte, error) {
				p, err := b.engine.ProposeTransfer(
					callContext(), params, s, id, req, rule,
					AnchorOffset,
				)
				if err != nil {
					return nil, boundary.Engine("Error while "+
						"creating transfer proposal", err)
				}
				return encodeProposal(p)
			},
		)
	})
}

// ProposeShielding asks the engine to plan moving account's transparent
// funds into the shielded pool.  It returns nil without an error when there
// is nothing to shield.
func (b *Backend) ProposeShielding(env *boundary.Env, dbData string,
	account int32, memoBytes []byte, network int32,
	useZIP317Fees bool) []byte {

	return boundary.Call(env, "proposeShielding", nil, func() ([]byte, error) {
		params, err := param.NetworkParams(network)
		if err != nil {
			return nil, boundary.Validation("", err)
		}
		id, err := param.AccountID(account)
		if err != nil {
			return nil, boundary.Validation("", err)
		}

		shieldingMemo := fn.None[*memo.Memo]()
		if len(memoBytes) != 0 {
			m, err := memo.FromBytes(memoBytes)
			if err != nil {
				return nil, boundary.Validation("", fmt.Errorf(
					"%w: %v", errInvalidMemo, err))
			}
			shieldingMemo = fn.Some(m)
		}
		rule := proposal.FeeRuleFor(useZIP317Fees)

		return withData(dbData, params.Network,
			func(s *walletstore.Store) ([]byte, error) {
				p, err := b.engine.ProposeShielding(
					callContext(), params, s, id,
					btcutil.Amount(ShieldingThreshold),
					shieldingMemo, rule, AnchorOffset,
				)
				if err != nil {
					return nil, boundary.Engine("Error while "+
						"shielding transaction", err)
				}
				if p == nil {
					log.Infof("Account %d has no funds to "+
						"shield", id)
					return nil, nil
				}
				return encodeProposal(p)
			},
		)
	})
}

func encodeProposal(p *proposal.Proposal) ([]byte, error) {
	if p == nil {
		return nil, boundary.Engine("", errors.New("engine returned "+
			"no proposal"))
	}
	enc, err := p.Encode()
	if err != nil {
		return nil, boundary.Engine("Engine returned an invalid "+
			"proposal", err)
	}
	return enc, nil
}

// CreateProposedTransaction builds, proves and stores the transactions of an
// encoded proposal and returns the id of the first one.
func (b *Backend) CreateProposedTransaction(env *boundary.Env, dbData string,
	proposalBytes, usk []byte, spendParams, outputParams string,
	network int32) []byte {

	return boundary.Call(env, "createProposedTransaction", nil,
		func() ([]byte, error) {
			params, err := param.NetworkParams(network)
			if err != nil {
				return nil, boundary.Validation("", err)
			}
			p, err := proposal.Decode(proposalBytes)
			if err != nil {
				return nil, boundary.Validation(
					"Could not decode proposal", err)
			}
			key, err := keys.Decode(usk, keys.EraOrchard)
			if err != nil {
				return nil, boundary.Validation("", err)
			}
			defer key.Destroy()

			prover := engine.Prover{
				SpendParamsPath:  spendParams,
				OutputParamsPath: outputParams,
			}

			return withData(dbData, params.Network,
				func(s *walletstore.Store) ([]byte, error) {
					return b.createProposed(
						s, params, p, key, prover,
					)
				},
			)
		},
	)
}

func (b *Backend) createProposed(s *walletstore.Store,
	params *netparams.Params, p *proposal.Proposal, key *keys.SpendingKey,
	prover engine.Prover) ([]byte, error) {

	ctx := callContext()

	ufvk, err := b.engine.ViewingKey(params, key)
	if err != nil {
		return nil, boundary.Engine("Error deriving viewing key", err)
	}
	account, err := s.AccountForViewingKey(ctx, ufvk)
	if err != nil {
		return nil, storeErr("Error while looking up account", err)
	}
	if account.IsNone() {
		return nil, boundary.Validation("", ErrUnknownSpendingKey)
	}

	if err := checkProposal(s, params, p); err != nil {
		return nil, err
	}

	txids, err := b.engine.CreateProposedTransactions(
		ctx, params, s, p, key, prover,
	)
	if err != nil {
		return nil, boundary.Engine("Error while creating transaction",
			err)
	}
	if len(txids) == 0 {
		return nil, boundary.Engine("", errors.New("engine created "+
			"no transactions"))
	}
	if len(txids) > 1 {
		log.Infof("Proposal created %d transactions; returning %v",
			len(txids), txids[0])
	}

	out := make([]byte, len(txids[0]))
	copy(out, txids[0][:])
	return out, nil
}

// checkProposal re-validates a decoded proposal against the wallet: its
// anchor must not be above the chain tip and every recipient must be an
// address for this network.
func checkProposal(s *walletstore.Store, params *netparams.Params,
	p *proposal.Proposal) error {

	tip, err := s.ChainTip(callContext())
	if err != nil {
		return storeErr("Error while reading chain tip", err)
	}
	if tip.IsNone() {
		return boundary.Store("", errTipUnavailable)
	}
	if t := tip.UnwrapOr(0); engine.Height(p.AnchorHeight) > t {
		return boundary.Validation("", fmt.Errorf("Proposal anchor "+
			"height %d is above the chain tip %d", p.AnchorHeight,
			t))
	}

	for _, r := range p.Recipients() {
		if _, err := address.Decode(params, r); err != nil {
			return boundary.Validation(fmt.Sprintf("Proposal "+
				"recipient %s", r), err)
		}
	}
	return nil
}
