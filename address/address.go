// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package address encodes and decodes the three address kinds accepted by the
// wallet: transparent (base58check with a two-byte prefix), Sapling (bech32)
// and unified (bech32m over an F4Jumble-permuted typecode/length/value
// receiver list followed by the padded human-readable part).
package address

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/btcsuite/btcd/wire"
	"github.com/shieldwallet/walletbackend/netparams"
)

var (
	// ErrInvalidAddress is returned for input that is not an address on
	// any supported network.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrWrongNetwork is returned for a well-formed address of the other
	// network.
	ErrWrongNetwork = errors.New("Address is for the wrong network")
)

// Kind is the kind of a decoded address.
type Kind uint8

const (
	P2PKH Kind = iota
	P2SH
	Sapling
	Unified
)

var kindStrings = map[Kind]string{
	P2PKH:   "p2pkh",
	P2SH:    "p2sh",
	Sapling: "sapling",
	Unified: "unified",
}

// String returns the kind as a human readable name.
func (k Kind) String() string {
	if s, ok := kindStrings[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// IsTransparent reports whether the kind is P2PKH or P2SH.
func (k Kind) IsTransparent() bool {
	return k == P2PKH || k == P2SH
}

// Typecode identifies a receiver inside a unified address.
type Typecode uint64

const (
	TypeP2PKH   Typecode = 0
	TypeP2SH    Typecode = 1
	TypeSapling Typecode = 2
	TypeOrchard Typecode = 3
)

const (
	// HashLen is the length of a transparent address payload.
	HashLen = 20

	// SaplingLen is the length of a raw Sapling payment address.
	SaplingLen = 43

	// OrchardLen is the length of a raw Orchard payment address.
	OrchardLen = 43

	// uaPadding is the number of trailing bytes of a unified address
	// reserved for the zero-padded human-readable part.
	uaPadding = 16
)

// receiverLen maps known typecodes to their required lengths.
var receiverLen = map[Typecode]int{
	TypeP2PKH:   HashLen,
	TypeP2SH:    HashLen,
	TypeSapling: SaplingLen,
	TypeOrchard: OrchardLen,
}

// Receiver is one item of a unified address.
type Receiver struct {
	Typecode Typecode
	Data     []byte
}

// Address is a decoded address.
type Address struct {
	Kind    Kind
	Network netparams.Network

	// Payload is the script hash for transparent kinds and the raw
	// payment address for Sapling.  It is nil for unified addresses.
	Payload []byte

	// Receivers lists the receivers of a unified address in ascending
	// typecode order.
	Receivers []Receiver
}

// String encodes the address for its network.
func (a *Address) String() string {
	s, err := a.Encode()
	if err != nil {
		return fmt.Sprintf("<invalid %v address>", a.Kind)
	}
	return s
}

// Encode renders the address in its textual form.
func (a *Address) Encode() (string, error) {
	params := a.Network.Params()
	switch a.Kind {
	case P2PKH:
		return encodeTransparent(params.P2PKHPrefix, a.Payload)
	case P2SH:
		return encodeTransparent(params.P2SHPrefix, a.Payload)
	case Sapling:
		return encodeSapling(params.SaplingHRP, a.Payload)
	case Unified:
		return encodeUnified(params.UnifiedHRP, a.Receivers)
	default:
		return "", fmt.Errorf("unknown address kind %v", a.Kind)
	}
}

// Receiver returns the receiver with the given typecode, if present.
func (a *Address) Receiver(tc Typecode) (Receiver, bool) {
	for _, r := range a.Receivers {
		if r.Typecode == tc {
			return r, true
		}
	}
	return Receiver{}, false
}

// NewTransparent builds a transparent address of the given kind.
func NewTransparent(net netparams.Network, kind Kind,
	hash []byte) (*Address, error) {

	if !kind.IsTransparent() {
		return nil, fmt.Errorf("%v is not a transparent kind", kind)
	}
	if len(hash) != HashLen {
		return nil, fmt.Errorf("transparent payload must be %d bytes, "+
			"got %d", HashLen, len(hash))
	}
	return &Address{Kind: kind, Network: net, Payload: hash}, nil
}

// NewSapling builds a Sapling address from a raw payment address.
func NewSapling(net netparams.Network, raw []byte) (*Address, error) {
	if len(raw) != SaplingLen {
		return nil, fmt.Errorf("Sapling payload must be %d bytes, got %d",
			SaplingLen, len(raw))
	}
	return &Address{Kind: Sapling, Network: net, Payload: raw}, nil
}

// NewUnified builds a unified address.  Receivers are sorted by typecode.
func NewUnified(net netparams.Network, receivers []Receiver) (*Address, error) {
	rs := make([]Receiver, len(receivers))
	copy(rs, receivers)
	sort.Slice(rs, func(i, j int) bool {
		return rs[i].Typecode < rs[j].Typecode
	})
	if err := checkReceivers(rs); err != nil {
		return nil, err
	}
	return &Address{Kind: Unified, Network: net, Receivers: rs}, nil
}

// Decode parses s as an address for params' network.  A well-formed address
// for the other network fails with ErrWrongNetwork; anything else that does
// not parse fails with ErrInvalidAddress.
func Decode(params *netparams.Params, s string) (*Address, error) {
	a, err := decodeAny(s)
	if err != nil {
		return nil, err
	}
	if a.Network != params.Network {
		return nil, ErrWrongNetwork
	}
	return a, nil
}

var allParams = []*netparams.Params{
	&netparams.MainNetParams,
	&netparams.TestNetParams,
}

// decodeAny parses s against every supported network.
func decodeAny(s string) (*Address, error) {
	if s == "" {
		return nil, ErrInvalidAddress
	}

	if payload, version, err := base58.CheckDecode(s); err == nil {
		return decodeTransparent(payload, version)
	}

	hrp, data, err := bech32.DecodeNoLimit(s)
	if err != nil {
		return nil, ErrInvalidAddress
	}
	for _, p := range allParams {
		switch hrp {
		case p.SaplingHRP:
			if !checksumIs(bech32.Encode, hrp, data, s) {
				return nil, ErrInvalidAddress
			}
			return decodeSapling(p.Network, data)

		case p.UnifiedHRP:
			if !checksumIs(bech32.EncodeM, hrp, data, s) {
				return nil, ErrInvalidAddress
			}
			return decodeUnified(p.Network, hrp, data)
		}
	}
	return nil, ErrInvalidAddress
}

// checksumIs reports whether s carries the checksum variant produced by enc.
// DecodeNoLimit accepts either variant without saying which it found.
func checksumIs(enc func(string, []byte) (string, error), hrp string,
	data []byte, s string) bool {

	want, err := enc(hrp, data)
	return err == nil && want == strings.ToLower(s)
}

func decodeTransparent(payload []byte, version byte) (*Address, error) {
	if len(payload) != 1+HashLen {
		return nil, ErrInvalidAddress
	}
	prefix := [2]byte{version, payload[0]}
	hash := append([]byte(nil), payload[1:]...)
	for _, p := range allParams {
		switch prefix {
		case p.P2PKHPrefix:
			return &Address{Kind: P2PKH, Network: p.Network,
				Payload: hash}, nil
		case p.P2SHPrefix:
			return &Address{Kind: P2SH, Network: p.Network,
				Payload: hash}, nil
		}
	}
	return nil, ErrInvalidAddress
}

func encodeTransparent(prefix [2]byte, hash []byte) (string, error) {
	if len(hash) != HashLen {
		return "", fmt.Errorf("transparent payload must be %d bytes",
			HashLen)
	}
	input := make([]byte, 0, 1+HashLen)
	input = append(input, prefix[1])
	input = append(input, hash...)
	return base58.CheckEncode(input, prefix[0]), nil
}

func decodeSapling(net netparams.Network, data []byte) (*Address, error) {
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil || len(raw) != SaplingLen {
		return nil, ErrInvalidAddress
	}
	return &Address{Kind: Sapling, Network: net, Payload: raw}, nil
}

func encodeSapling(hrp string, raw []byte) (string, error) {
	if len(raw) != SaplingLen {
		return "", fmt.Errorf("Sapling payload must be %d bytes",
			SaplingLen)
	}
	data, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(hrp, data)
}

// hrpPadding returns the 16-byte trailer of an unjumbled unified address.
func hrpPadding(hrp string) []byte {
	pad := make([]byte, uaPadding)
	copy(pad, hrp)
	return pad
}

func decodeUnified(net netparams.Network, hrp string,
	data []byte) (*Address, error) {

	jumbled, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, ErrInvalidAddress
	}
	raw, err := f4Unjumble(jumbled)
	if err != nil {
		return nil, ErrInvalidAddress
	}
	body, trailer := raw[:len(raw)-uaPadding], raw[len(raw)-uaPadding:]
	if !bytes.Equal(trailer, hrpPadding(hrp)) {
		return nil, ErrInvalidAddress
	}

	var receivers []Receiver
	r := bytes.NewReader(body)
	for r.Len() > 0 {
		tc, err := wire.ReadVarInt(r, 0)
		if err != nil {
			return nil, ErrInvalidAddress
		}
		l, err := wire.ReadVarInt(r, 0)
		if err != nil || l > uint64(r.Len()) {
			return nil, ErrInvalidAddress
		}
		item := make([]byte, l)
		if _, err := io.ReadFull(r, item); err != nil {
			return nil, ErrInvalidAddress
		}
		receivers = append(receivers, Receiver{
			Typecode: Typecode(tc),
			Data:     item,
		})
	}

	for i := 1; i < len(receivers); i++ {
		if receivers[i].Typecode <= receivers[i-1].Typecode {
			return nil, ErrInvalidAddress
		}
	}
	if err := checkReceivers(receivers); err != nil {
		return nil, ErrInvalidAddress
	}
	return &Address{Kind: Unified, Network: net, Receivers: receivers}, nil
}

// checkReceivers validates a typecode-sorted receiver list.
func checkReceivers(rs []Receiver) error {
	var shielded, transparent int
	for i, r := range rs {
		if i > 0 && r.Typecode == rs[i-1].Typecode {
			return fmt.Errorf("duplicate receiver typecode %d",
				r.Typecode)
		}
		if want, ok := receiverLen[r.Typecode]; ok && len(r.Data) != want {
			return fmt.Errorf("receiver typecode %d must be %d "+
				"bytes, got %d", r.Typecode, want, len(r.Data))
		}
		switch r.Typecode {
		case TypeP2PKH, TypeP2SH:
			transparent++
		case TypeSapling, TypeOrchard:
			shielded++
		}
	}
	if transparent > 1 {
		return errors.New("unified address has both P2PKH and P2SH " +
			"receivers")
	}
	if shielded == 0 {
		return errors.New("unified address has no shielded receiver")
	}
	return nil
}

func encodeUnified(hrp string, receivers []Receiver) (string, error) {
	if err := checkReceivers(receivers); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	for _, r := range receivers {
		if err := wire.WriteVarInt(&buf, 0, uint64(r.Typecode)); err != nil {
			return "", err
		}
		err := wire.WriteVarInt(&buf, 0, uint64(len(r.Data)))
		if err != nil {
			return "", err
		}
		buf.Write(r.Data)
	}
	buf.Write(hrpPadding(hrp))

	jumbled, err := f4Jumble(buf.Bytes())
	if err != nil {
		return "", err
	}
	data, err := bech32.ConvertBits(jumbled, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.EncodeM(hrp, data)
}
