// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package param converts host-supplied primitives into validated wallet
// parameters.  Every constructor rejects out-of-range input instead of
// clamping or wrapping it.
package param

import (
	"errors"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/shieldwallet/walletbackend/engine"
	"github.com/shieldwallet/walletbackend/netparams"
)

var (
	// ErrInvalidAccount is returned for account ids outside [0, 2^31).
	// The message deliberately does not say which bound was violated.
	ErrInvalidAccount = errors.New("Invalid account ID")

	// ErrNegativeAmount is returned for amounts below zero.
	ErrNegativeAmount = errors.New("Amount is negative")

	// ErrAmountRange is returned for amounts above the maximum supply.
	ErrAmountRange = errors.New("Invalid amount, out of range")

	// ErrBalanceOverflow is returned when a sum exceeds the maximum
	// supply.
	ErrBalanceOverflow = errors.New("Balance overflowed MAX_MONEY")
)

// Network converts a host network code.
func Network(code int32) (netparams.Network, error) {
	if code < 0 {
		return 0, fmt.Errorf("Invalid network type: %d. Expected either "+
			"0 or 1 for Testnet or Mainnet, respectively.", code)
	}
	return netparams.ParseNetwork(uint32(code))
}

// NetworkParams converts a host network code and returns its parameters.
func NetworkParams(code int32) (*netparams.Params, error) {
	net, err := Network(code)
	if err != nil {
		return nil, err
	}
	return net.Params(), nil
}

// AccountID converts a host account index.
func AccountID(v int32) (engine.AccountID, error) {
	if v < 0 {
		return 0, ErrInvalidAccount
	}
	return engine.AccountID(v), nil
}

// SignedAccountID converts an account id back to the host representation.
func SignedAccountID(id engine.AccountID) (int32, error) {
	if id > math.MaxInt32 {
		return 0, ErrInvalidAccount
	}
	return int32(id), nil
}

// Height converts a host block height.
func Height(v int64) (engine.Height, error) {
	if v < 0 || v > math.MaxUint32 {
		return 0, fmt.Errorf("Invalid height %d: must be between 0 "+
			"and %d", v, uint32(math.MaxUint32))
	}
	return engine.Height(v), nil
}

// Limit converts a host block count.
func Limit(v int64) (uint32, error) {
	if v < 0 || v > math.MaxUint32 {
		return 0, fmt.Errorf("Invalid limit %d", v)
	}
	return uint32(v), nil
}

// Amount converts a host zatoshi value.
func Amount(v int64) (btcutil.Amount, error) {
	if v < 0 {
		return 0, ErrNegativeAmount
	}
	if v > int64(btcutil.MaxSatoshi) {
		return 0, ErrAmountRange
	}
	return btcutil.Amount(v), nil
}

// SumAmounts adds amounts, failing with ErrBalanceOverflow when the total
// exceeds the maximum supply.
func SumAmounts(amounts []btcutil.Amount) (btcutil.Amount, error) {
	var total btcutil.Amount
	for _, a := range amounts {
		if a < 0 || a > btcutil.MaxSatoshi {
			return 0, ErrAmountRange
		}

		// Both operands are at most MaxSatoshi, so the addition
		// itself cannot wrap an int64.
		total += a
		if total > btcutil.MaxSatoshi {
			return 0, ErrBalanceOverflow
		}
	}
	return total, nil
}

// OutputIndex converts a host output index.
func OutputIndex(v int32) (uint16, error) {
	if v < 0 || v > math.MaxUint16 {
		return 0, fmt.Errorf("Invalid output index %d", v)
	}
	return uint16(v), nil
}

// TransparentIndex converts a host transparent output index.
func TransparentIndex(v int32) (uint32, error) {
	if v < 0 {
		return 0, fmt.Errorf("Invalid output index %d", v)
	}
	return uint32(v), nil
}

// Hash32 copies a 32-byte value.  Any other length is an error rather than
// being truncated or padded.
func Hash32(b []byte) ([32]byte, error) {
	var h [32]byte
	if len(b) != len(h) {
		return h, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// TxID converts a host transaction id.
func TxID(b []byte) (chainhash.Hash, error) {
	h, err := Hash32(b)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("Invalid txid: %w", err)
	}
	return chainhash.Hash(h), nil
}
