// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package proposal defines transaction proposals and their wire encoding.
//
// A proposal is produced by the wallet engine, handed to the host as opaque
// bytes, and later returned unmodified to be built into transactions.  The
// encoding is a TLV stream whose first record carries the format version.
package proposal

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/shieldwallet/walletbackend/memo"
)

// FeeRule selects how the engine computes fees.
type FeeRule uint8

const (
	// FeeRuleFixed charges FixedFee per transaction.
	FeeRuleFixed FeeRule = 0

	// FeeRuleZIP317 charges the ZIP 317 conventional fee.
	FeeRuleZIP317 FeeRule = 1
)

// FixedFee is the fee charged under FeeRuleFixed.
const FixedFee btcutil.Amount = 1000

// FeeRuleFor maps the host's fee rule flag onto a FeeRule.
func FeeRuleFor(useZIP317 bool) FeeRule {
	if useZIP317 {
		return FeeRuleZIP317
	}
	return FeeRuleFixed
}

// String returns a human readable fee rule name.
func (r FeeRule) String() string {
	switch r {
	case FeeRuleFixed:
		return "fixed"
	case FeeRuleZIP317:
		return "zip317"
	default:
		return fmt.Sprintf("FeeRule(%d)", uint8(r))
	}
}

// ShieldedProtocol identifies a shielded pool.  The values match the unified
// address receiver typecodes.
type ShieldedProtocol uint8

const (
	Sapling ShieldedProtocol = 2
	Orchard ShieldedProtocol = 3
)

// ParseShieldedProtocol validates a host protocol code.
func ParseShieldedProtocol(code int32) (ShieldedProtocol, error) {
	switch ShieldedProtocol(code) {
	case Sapling, Orchard:
		return ShieldedProtocol(code), nil
	default:
		return 0, fmt.Errorf("Shielded protocol not recognized: %d", code)
	}
}

// String returns the pool name.
func (p ShieldedProtocol) String() string {
	switch p {
	case Sapling:
		return "sapling"
	case Orchard:
		return "orchard"
	default:
		return fmt.Sprintf("ShieldedProtocol(%d)", uint8(p))
	}
}

// Outpoint references a transparent output.
type Outpoint struct {
	TxID  chainhash.Hash
	Index uint32
}

// String returns the outpoint as txid:index.
func (o Outpoint) String() string {
	return fmt.Sprintf("%v:%d", o.TxID, o.Index)
}

// NoteID references a shielded output.
type NoteID struct {
	TxID        chainhash.Hash
	Protocol    ShieldedProtocol
	OutputIndex uint16
}

// Payment is one requested output.  A nil Memo means no memo.
type Payment struct {
	Recipient string
	Amount    btcutil.Amount
	Memo      []byte
}

// ChangeValue is a change output the step will create.
type ChangeValue struct {
	Value    btcutil.Amount
	Protocol ShieldedProtocol
}

// Step is a single transaction within a proposal.
type Step struct {
	Payments          []Payment
	TransparentInputs []Outpoint
	ShieldedInputs    []NoteID
	Fee               btcutil.Amount
	Change            []ChangeValue
	IsShielding       bool
}

// Proposal is a plan for one or more transactions.
type Proposal struct {
	FeeRule         FeeRule
	MinTargetHeight uint32
	AnchorHeight    uint32
	Steps           []Step
}

var (
	// ErrNoSteps is returned for a proposal without any step.
	ErrNoSteps = errors.New("proposal has no steps")

	// ErrAmountRange is returned for amounts outside [0, MaxSatoshi].
	ErrAmountRange = errors.New("Invalid amount, out of range")
)

func checkAmount(a btcutil.Amount) error {
	if a < 0 || a > btcutil.MaxSatoshi {
		return ErrAmountRange
	}
	return nil
}

// Validate checks the structural rules every proposal must satisfy.
func (p *Proposal) Validate() error {
	if p.FeeRule != FeeRuleFixed && p.FeeRule != FeeRuleZIP317 {
		return fmt.Errorf("unknown fee rule %d", p.FeeRule)
	}
	if len(p.Steps) == 0 {
		return ErrNoSteps
	}
	if p.AnchorHeight > p.MinTargetHeight {
		return fmt.Errorf("anchor height %d is above target height %d",
			p.AnchorHeight, p.MinTargetHeight)
	}

	for i, s := range p.Steps {
		if len(s.Payments) == 0 && !s.IsShielding {
			return fmt.Errorf("step %d has no payments", i)
		}
		if err := checkAmount(s.Fee); err != nil {
			return fmt.Errorf("step %d fee: %w", i, err)
		}
		var total btcutil.Amount
		for _, pay := range s.Payments {
			if pay.Recipient == "" {
				return fmt.Errorf("step %d has an empty recipient", i)
			}
			if err := checkAmount(pay.Amount); err != nil {
				return fmt.Errorf("step %d payment: %w", i, err)
			}
			if pay.Memo != nil {
				if _, err := memo.FromBytes(pay.Memo); err != nil {
					return fmt.Errorf("step %d memo: %w", i, err)
				}
			}
			total += pay.Amount
			if total > btcutil.MaxSatoshi {
				return fmt.Errorf("step %d payments: %w", i,
					ErrAmountRange)
			}
		}
		for _, c := range s.Change {
			if err := checkAmount(c.Value); err != nil {
				return fmt.Errorf("step %d change: %w", i, err)
			}
		}
	}
	return nil
}

// TotalFee sums the fees of all steps.
func (p *Proposal) TotalFee() (btcutil.Amount, error) {
	var total btcutil.Amount
	for _, s := range p.Steps {
		total += s.Fee
		if total > btcutil.MaxSatoshi {
			return 0, ErrAmountRange
		}
	}
	return total, nil
}

// Recipients returns every payment recipient in step order.
func (p *Proposal) Recipients() []string {
	var rs []string
	for _, s := range p.Steps {
		for _, pay := range s.Payments {
			rs = append(rs, pay.Recipient)
		}
	}
	return rs
}
