// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package keys implements the binary encoding of unified spending keys.
//
// An encoded key is a little-endian 32-bit era identifier followed by a
// sequence of items, each written as a CompactSize typecode, a CompactSize
// length and the key bytes.  Items appear in ascending typecode order.  The
// decoded key components live in secret containers and are zeroed by
// Destroy.
package keys

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/shieldwallet/walletbackend/secret"
)

// Era tags the generation of key formats an encoding belongs to.
type Era uint32

// EraOrchard is the era of keys that carry an Orchard component.  Its value is
// the NU5 consensus branch id.
const EraOrchard Era = 0xc2d6d0b4

// String returns a human readable era name.
func (e Era) String() string {
	if e == EraOrchard {
		return "Orchard"
	}
	return fmt.Sprintf("Era(%#08x)", uint32(e))
}

// Typecode identifies a key component.
type Typecode uint64

// Key component typecodes.
const (
	TypeTransparent Typecode = 0
	TypeSapling     Typecode = 2
	TypeOrchard     Typecode = 3
)

// Component lengths, in bytes.
const (
	// TransparentKeyLen is a BIP32 extended private key without its
	// version prefix: depth, parent fingerprint, child number, chain code
	// and a zero-prefixed private key.
	TransparentKeyLen = 74

	// SaplingKeyLen is the length of a Sapling extended spending key.
	SaplingKeyLen = 169

	// OrchardKeyLen is the length of an Orchard spending key.
	OrchardKeyLen = 32
)

// maxItemLen bounds the length field of an unknown or malformed item.
const maxItemLen = 1 << 16

// DecodingErrorKind distinguishes the ways decoding can fail.
type DecodingErrorKind uint8

const (
	// Malformed means the input is not a structurally valid encoding.
	Malformed DecodingErrorKind = iota

	// EraMismatch means the encoding is for a different era than the
	// caller expected.  Callers can usually recover by re-deriving the
	// key from the seed.
	EraMismatch
)

// DecodingError is returned by Decode.
type DecodingError struct {
	Kind DecodingErrorKind

	// Found and Expected are set for EraMismatch.
	Found    Era
	Expected Era

	// Reason describes a Malformed input.
	Reason string
}

// Error implements the error interface.
func (e *DecodingError) Error() string {
	if e.Kind == EraMismatch {
		return fmt.Sprintf("Spending key was from era %v, but %v was "+
			"expected.", e.Found, e.Expected)
	}
	return fmt.Sprintf("An error occurred decoding the provided unified "+
		"spending key: %s", e.Reason)
}

// IsEraMismatch reports whether err is a DecodingError of kind EraMismatch.
func IsEraMismatch(err error) bool {
	var de *DecodingError
	return errors.As(err, &de) && de.Kind == EraMismatch
}

// IsMalformed reports whether err is a DecodingError of kind Malformed.
func IsMalformed(err error) bool {
	var de *DecodingError
	return errors.As(err, &de) && de.Kind == Malformed
}

func malformed(format string, args ...interface{}) *DecodingError {
	return &DecodingError{Kind: Malformed, Reason: fmt.Sprintf(format, args...)}
}

// SpendingKey is a decoded unified spending key.  The transparent component is
// optional; Sapling and Orchard components are required.
type SpendingKey struct {
	era         Era
	transparent *secret.Material
	sapling     *secret.Material
	orchard     *secret.Material
}

// NewSpendingKey assembles a key from its components, taking ownership of
// them.  A nil transparent component is allowed.
func NewSpendingKey(era Era, transparent, sapling,
	orchard *secret.Material) (*SpendingKey, error) {

	k := &SpendingKey{
		era:         era,
		transparent: transparent,
		sapling:     sapling,
		orchard:     orchard,
	}
	if err := k.validate(); err != nil {
		k.Destroy()
		return nil, err
	}
	return k, nil
}

// Era returns the era the key was encoded for.
func (k *SpendingKey) Era() Era {
	return k.era
}

// HasTransparent reports whether the key carries a transparent component.
func (k *SpendingKey) HasTransparent() bool {
	return k.transparent != nil
}

// Transparent returns a borrowed view of the transparent component, or nil.
func (k *SpendingKey) Transparent() []byte {
	if k.transparent == nil {
		return nil
	}
	return k.transparent.Expose()
}

// Sapling returns a borrowed view of the Sapling component.
func (k *SpendingKey) Sapling() []byte {
	return k.sapling.Expose()
}

// Orchard returns a borrowed view of the Orchard component.
func (k *SpendingKey) Orchard() []byte {
	return k.orchard.Expose()
}

// Destroy zeroes every component.
func (k *SpendingKey) Destroy() {
	if k == nil {
		return
	}
	k.transparent.Destroy()
	k.sapling.Destroy()
	k.orchard.Destroy()
}

// String implements fmt.Stringer without revealing key material.
func (k *SpendingKey) String() string {
	return fmt.Sprintf("SpendingKey(era=%v)", k.era)
}

func (k *SpendingKey) validate() error {
	if k.sapling == nil {
		return malformed("missing Sapling key")
	}
	if k.orchard == nil {
		return malformed("missing Orchard key")
	}
	if k.transparent != nil {
		if err := checkTransparent(k.transparent.Expose()); err != nil {
			return err
		}
	}
	if n := k.sapling.Len(); n != SaplingKeyLen {
		return malformed("Sapling key length %d, expected %d", n,
			SaplingKeyLen)
	}
	if n := k.orchard.Len(); n != OrchardKeyLen {
		return malformed("Orchard key length %d, expected %d", n,
			OrchardKeyLen)
	}
	return nil
}

// checkTransparent verifies the shape of a BIP32 key body and that its
// private key is a valid secp256k1 scalar.
func checkTransparent(b []byte) error {
	if len(b) != TransparentKeyLen {
		return malformed("transparent key length %d, expected %d",
			len(b), TransparentKeyLen)
	}
	if b[41] != 0x00 {
		return malformed("transparent key is not a private key")
	}

	var s secp256k1.ModNScalar
	overflow := s.SetByteSlice(b[42:])
	defer s.Zero()
	if overflow || s.IsZero() {
		return malformed("transparent private key out of range")
	}
	return nil
}

// encodedLen returns the exact size of the encoding.
func (k *SpendingKey) encodedLen() int {
	n := 4
	item := func(t Typecode, m *secret.Material) {
		if m == nil {
			return
		}
		n += wire.VarIntSerializeSize(uint64(t))
		n += wire.VarIntSerializeSize(uint64(m.Len()))
		n += m.Len()
	}
	item(TypeTransparent, k.transparent)
	item(TypeSapling, k.sapling)
	item(TypeOrchard, k.orchard)
	return n
}

// Encode serializes the key.  The buffer is sized up front so no partial
// copies of key material are left behind by reallocation.
func (k *SpendingKey) Encode() *secret.Material {
	buf := bytes.NewBuffer(make([]byte, 0, k.encodedLen()))

	var era [4]byte
	binary.LittleEndian.PutUint32(era[:], uint32(k.era))
	buf.Write(era[:])

	item := func(t Typecode, m *secret.Material) {
		if m == nil {
			return
		}
		// Writes to a bytes.Buffer cannot fail.
		_ = wire.WriteVarInt(buf, 0, uint64(t))
		_ = wire.WriteVarInt(buf, 0, uint64(m.Len()))
		buf.Write(m.Expose())
	}
	item(TypeTransparent, k.transparent)
	item(TypeSapling, k.sapling)
	item(TypeOrchard, k.orchard)

	return secret.Wrap(buf.Bytes())
}

// Decode parses an encoded spending key.  The input is copied into fresh
// containers; the caller remains responsible for zeroing b.
func Decode(b []byte, expected Era) (*SpendingKey, error) {
	if len(b) < 4 {
		return nil, malformed("encoding too short")
	}

	era := Era(binary.LittleEndian.Uint32(b[:4]))
	if era != expected {
		return nil, &DecodingError{
			Kind:     EraMismatch,
			Found:    era,
			Expected: expected,
		}
	}

	k := &SpendingKey{era: era}
	r := bytes.NewReader(b[4:])
	var (
		prev  Typecode
		first = true
	)
	for r.Len() > 0 {
		typ, err := wire.ReadVarInt(r, 0)
		if err != nil {
			k.Destroy()
			return nil, malformed("typecode: %v", err)
		}
		tc := Typecode(typ)
		if !first && tc <= prev {
			k.Destroy()
			return nil, malformed("typecode %d out of order", tc)
		}
		first, prev = false, tc

		l, err := wire.ReadVarInt(r, 0)
		if err != nil {
			k.Destroy()
			return nil, malformed("item length: %v", err)
		}
		if l > maxItemLen || l > uint64(r.Len()) {
			k.Destroy()
			return nil, malformed("item length %d exceeds input", l)
		}

		data := make([]byte, l)
		if _, err := io.ReadFull(r, data); err != nil {
			k.Destroy()
			return nil, malformed("item data: %v", err)
		}

		switch tc {
		case TypeTransparent:
			k.transparent = secret.Wrap(data)
		case TypeSapling:
			k.sapling = secret.Wrap(data)
		case TypeOrchard:
			k.orchard = secret.Wrap(data)
		default:
			secret.Zero(data)
			k.Destroy()
			return nil, malformed("unknown typecode %d", tc)
		}
	}

	if err := k.validate(); err != nil {
		k.Destroy()
		return nil, err
	}
	return k, nil
}
