// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package address

import (
	"errors"

	"github.com/shieldwallet/walletbackend/netparams"
)

// isKind decodes s and reports whether it is one of kinds.  A well-formed
// address of another kind yields false with a nil error.  Malformed and
// wrong-network input yields false together with ErrInvalidAddress or
// ErrWrongNetwork.
func isKind(params *netparams.Params, s string, kinds ...Kind) (bool, error) {
	a, err := Decode(params, s)
	if err != nil {
		return false, err
	}
	for _, k := range kinds {
		if a.Kind == k {
			return true, nil
		}
	}
	return false, nil
}

// IsValidShielded reports whether s is a Sapling address for params.
func IsValidShielded(params *netparams.Params, s string) (bool, error) {
	return isKind(params, s, Sapling)
}

// IsValidTransparent reports whether s is a P2PKH or P2SH address for params.
func IsValidTransparent(params *netparams.Params, s string) (bool, error) {
	return isKind(params, s, P2PKH, P2SH)
}

// IsValidUnified reports whether s is a unified address for params.
func IsValidUnified(params *netparams.Params, s string) (bool, error) {
	return isKind(params, s, Unified)
}

var (
	// ErrNotUnified is returned when a receiver is requested from an
	// address that is not unified.
	ErrNotUnified = errors.New("Address is not a unified address")

	// ErrNoTransparentReceiver is returned for a unified address without
	// a P2PKH or P2SH receiver.
	ErrNoTransparentReceiver = errors.New("Unified address contains no " +
		"transparent receiver")

	// ErrNoSaplingReceiver is returned for a unified address without a
	// Sapling receiver.
	ErrNoSaplingReceiver = errors.New("Unified address contains no " +
		"Sapling receiver")
)

func decodeUnifiedFor(params *netparams.Params, ua string) (*Address, error) {
	a, err := Decode(params, ua)
	if err != nil {
		return nil, err
	}
	if a.Kind != Unified {
		return nil, ErrNotUnified
	}
	return a, nil
}

// TransparentReceiver extracts the transparent receiver of a unified address
// and encodes it as a standalone transparent address.
func TransparentReceiver(params *netparams.Params, ua string) (string, error) {
	a, err := decodeUnifiedFor(params, ua)
	if err != nil {
		return "", err
	}
	if r, ok := a.Receiver(TypeP2PKH); ok {
		return encodeTransparent(params.P2PKHPrefix, r.Data)
	}
	if r, ok := a.Receiver(TypeP2SH); ok {
		return encodeTransparent(params.P2SHPrefix, r.Data)
	}
	return "", ErrNoTransparentReceiver
}

// SaplingReceiver extracts the Sapling receiver of a unified address and
// encodes it as a standalone Sapling address.
func SaplingReceiver(params *netparams.Params, ua string) (string, error) {
	a, err := decodeUnifiedFor(params, ua)
	if err != nil {
		return "", err
	}
	r, ok := a.Receiver(TypeSapling)
	if !ok {
		return "", ErrNoSaplingReceiver
	}
	return encodeSapling(params.SaplingHRP, r.Data)
}
