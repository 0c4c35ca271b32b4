// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package proposal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/tlv"
)

// Version is the encoding version written by Encode.
const Version uint32 = 1

// ErrUnknownVersion is returned when decoding a proposal written with an
// unsupported encoding version.
var ErrUnknownVersion = errors.New("unknown proposal encoding version")

const (
	typeVersion         tlv.Type = 0
	typeFeeRule         tlv.Type = 2
	typeMinTargetHeight tlv.Type = 4
	typeAnchorHeight    tlv.Type = 6
	typeSteps           tlv.Type = 8

	typeStepPayments          tlv.Type = 0
	typeStepTransparentInputs tlv.Type = 2
	typeStepShieldedInputs    tlv.Type = 4
	typeStepFee               tlv.Type = 6
	typeStepChange            tlv.Type = 8
	typeStepIsShielding       tlv.Type = 10

	typePaymentRecipient tlv.Type = 0
	typePaymentAmount    tlv.Type = 2
	typePaymentMemo      tlv.Type = 4

	typeChangeValue    tlv.Type = 0
	typeChangeProtocol tlv.Type = 2
)

const (
	outpointLen = chainhash.HashSize + 4
	noteIDLen   = chainhash.HashSize + 1 + 2
)

// Encode serializes the proposal as a TLV stream.
func (p *Proposal) Encode() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var (
		version   = Version
		feeRule   = uint8(p.FeeRule)
		minTarget = p.MinTargetHeight
		anchor    = p.AnchorHeight
		steps     = p.Steps
	)
	tlvStream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeVersion, &version),
		tlv.MakePrimitiveRecord(typeFeeRule, &feeRule),
		tlv.MakePrimitiveRecord(typeMinTargetHeight, &minTarget),
		tlv.MakePrimitiveRecord(typeAnchorHeight, &anchor),
		tlv.MakeDynamicRecord(
			typeSteps, &steps, sizeOf(stepsEncoder, &steps),
			stepsEncoder, stepsDecoder,
		),
	)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := tlvStream.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses and validates an encoded proposal.
func Decode(b []byte) (*Proposal, error) {
	var (
		version uint32
		feeRule uint8
		p       = &Proposal{}
	)
	tlvStream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeVersion, &version),
		tlv.MakePrimitiveRecord(typeFeeRule, &feeRule),
		tlv.MakePrimitiveRecord(typeMinTargetHeight, &p.MinTargetHeight),
		tlv.MakePrimitiveRecord(typeAnchorHeight, &p.AnchorHeight),
		tlv.MakeDynamicRecord(
			typeSteps, &p.Steps, sizeOf(stepsEncoder, &p.Steps),
			stepsEncoder, stepsDecoder,
		),
	)
	if err != nil {
		return nil, err
	}

	parsedTypes, err := tlvStream.DecodeWithParsedTypes(
		bytes.NewReader(b),
	)
	if err != nil {
		return nil, fmt.Errorf("malformed proposal: %w", err)
	}
	if _, ok := parsedTypes[typeVersion]; !ok {
		return nil, fmt.Errorf("malformed proposal: missing version")
	}
	if version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, version)
	}

	p.FeeRule = FeeRule(feeRule)
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid proposal: %w", err)
	}
	return p, nil
}

// sizeOf returns a size function reporting the number of bytes encoder
// writes for v.
func sizeOf(encoder tlv.Encoder, v interface{}) tlv.SizeFunc {
	return func() uint64 {
		var (
			b   bytes.Buffer
			buf [8]byte
		)

		// A failing encoder fails the stream encode as well, so the
		// size reported here is never used in that case.
		_ = encoder(&b, v, &buf)
		return uint64(b.Len())
	}
}

// writeItems writes each item prefixed by its varint length.
func writeItems(w io.Writer, items [][]byte, buf *[8]byte) error {
	for _, item := range items {
		err := tlv.WriteVarInt(w, uint64(len(item)), buf)
		if err != nil {
			return err
		}
		if _, err := w.Write(item); err != nil {
			return err
		}
	}
	return nil
}

// readItems reads length-prefixed items until l bytes are consumed.
func readItems(r io.Reader, l uint64, buf *[8]byte) ([][]byte, error) {
	// Using the length information given, we'll create a new limited
	// reader that'll return an EOF once the end has been reached.
	lr := &io.LimitedReader{R: r, N: int64(l)}

	var items [][]byte
	for {
		size, err := tlv.ReadVarInt(lr, buf)
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		if size > uint64(lr.N) {
			return nil, fmt.Errorf("item length %d exceeds record",
				size)
		}

		item := make([]byte, size)
		if _, err := io.ReadFull(lr, item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func encodeStream(records ...tlv.Record) ([]byte, error) {
	tlvStream, err := tlv.NewStream(records...)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	if err := tlvStream.Encode(&b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func decodeStream(b []byte, records ...tlv.Record) (tlv.TypeMap, error) {
	tlvStream, err := tlv.NewStream(records...)
	if err != nil {
		return nil, err
	}
	return tlvStream.DecodeWithParsedTypes(bytes.NewReader(b))
}

// parsed reports whether typ was present and fully consumed.
func parsed(m tlv.TypeMap, typ tlv.Type) bool {
	t, ok := m[typ]
	return ok && t == nil
}

func encodeStep(s *Step) ([]byte, error) {
	var (
		fee         = uint64(s.Fee)
		isShielding uint8
	)
	if s.IsShielding {
		isShielding = 1
	}

	var records []tlv.Record
	if len(s.Payments) > 0 {
		records = append(records, tlv.MakeDynamicRecord(
			typeStepPayments, &s.Payments,
			sizeOf(paymentsEncoder, &s.Payments),
			paymentsEncoder, paymentsDecoder,
		))
	}
	if len(s.TransparentInputs) > 0 {
		records = append(records, tlv.MakeDynamicRecord(
			typeStepTransparentInputs, &s.TransparentInputs,
			func() uint64 {
				return uint64(len(s.TransparentInputs) *
					outpointLen)
			}, outpointsEncoder, outpointsDecoder,
		))
	}
	if len(s.ShieldedInputs) > 0 {
		records = append(records, tlv.MakeDynamicRecord(
			typeStepShieldedInputs, &s.ShieldedInputs,
			func() uint64 {
				return uint64(len(s.ShieldedInputs) * noteIDLen)
			}, noteIDsEncoder, noteIDsDecoder,
		))
	}
	records = append(records, tlv.MakePrimitiveRecord(typeStepFee, &fee))
	if len(s.Change) > 0 {
		records = append(records, tlv.MakeDynamicRecord(
			typeStepChange, &s.Change,
			sizeOf(changeEncoder, &s.Change),
			changeEncoder, changeDecoder,
		))
	}
	records = append(records, tlv.MakePrimitiveRecord(
		typeStepIsShielding, &isShielding,
	))

	return encodeStream(records...)
}

func decodeStep(b []byte) (Step, error) {
	var (
		s           Step
		fee         uint64
		isShielding uint8
	)
	parsedTypes, err := decodeStream(b,
		tlv.MakeDynamicRecord(
			typeStepPayments, &s.Payments,
			sizeOf(paymentsEncoder, &s.Payments),
			paymentsEncoder, paymentsDecoder,
		),
		tlv.MakeDynamicRecord(
			typeStepTransparentInputs, &s.TransparentInputs,
			sizeOf(outpointsEncoder, &s.TransparentInputs),
			outpointsEncoder, outpointsDecoder,
		),
		tlv.MakeDynamicRecord(
			typeStepShieldedInputs, &s.ShieldedInputs,
			sizeOf(noteIDsEncoder, &s.ShieldedInputs),
			noteIDsEncoder, noteIDsDecoder,
		),
		tlv.MakePrimitiveRecord(typeStepFee, &fee),
		tlv.MakeDynamicRecord(
			typeStepChange, &s.Change,
			sizeOf(changeEncoder, &s.Change),
			changeEncoder, changeDecoder,
		),
		tlv.MakePrimitiveRecord(typeStepIsShielding, &isShielding),
	)
	if err != nil {
		return Step{}, err
	}
	if !parsed(parsedTypes, typeStepFee) {
		return Step{}, errors.New("step is missing its fee")
	}
	if fee > uint64(btcutil.MaxSatoshi) {
		return Step{}, ErrAmountRange
	}
	if isShielding > 1 {
		return Step{}, fmt.Errorf("invalid shielding flag %d",
			isShielding)
	}

	s.Fee = btcutil.Amount(fee)
	s.IsShielding = isShielding == 1
	return s, nil
}

// stepsEncoder is a custom TLV encoder for a slice of steps.
func stepsEncoder(w io.Writer, val interface{}, buf *[8]byte) error {
	if v, ok := val.(*[]Step); ok {
		items := make([][]byte, 0, len(*v))
		for i := range *v {
			item, err := encodeStep(&(*v)[i])
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		return writeItems(w, items, buf)
	}

	return tlv.NewTypeForEncodingErr(val, "[]proposal.Step")
}

// stepsDecoder is a custom TLV decoder for a slice of steps.
func stepsDecoder(r io.Reader, val interface{}, buf *[8]byte, l uint64) error {
	if v, ok := val.(*[]Step); ok {
		items, err := readItems(r, l, buf)
		if err != nil {
			return err
		}
		steps := make([]Step, 0, len(items))
		for _, item := range items {
			s, err := decodeStep(item)
			if err != nil {
				return err
			}
			steps = append(steps, s)
		}
		*v = steps
		return nil
	}

	return tlv.NewTypeForDecodingErr(val, "[]proposal.Step", l, l)
}

func encodePayment(p *Payment) ([]byte, error) {
	var (
		recipient = []byte(p.Recipient)
		amount    = uint64(p.Amount)
	)
	records := []tlv.Record{
		tlv.MakePrimitiveRecord(typePaymentRecipient, &recipient),
		tlv.MakePrimitiveRecord(typePaymentAmount, &amount),
	}
	if p.Memo != nil {
		records = append(records, tlv.MakePrimitiveRecord(
			typePaymentMemo, &p.Memo,
		))
	}
	return encodeStream(records...)
}

func decodePayment(b []byte) (Payment, error) {
	var (
		recipient []byte
		amount    uint64
		memo      []byte
	)
	parsedTypes, err := decodeStream(b,
		tlv.MakePrimitiveRecord(typePaymentRecipient, &recipient),
		tlv.MakePrimitiveRecord(typePaymentAmount, &amount),
		tlv.MakePrimitiveRecord(typePaymentMemo, &memo),
	)
	if err != nil {
		return Payment{}, err
	}
	if !parsed(parsedTypes, typePaymentRecipient) ||
		!parsed(parsedTypes, typePaymentAmount) {

		return Payment{}, errors.New("payment is missing a field")
	}
	if amount > uint64(btcutil.MaxSatoshi) {
		return Payment{}, ErrAmountRange
	}

	p := Payment{
		Recipient: string(recipient),
		Amount:    btcutil.Amount(amount),
	}

	// Only set the memo when it was actually present so that an absent
	// memo stays distinguishable from an empty one.
	if parsed(parsedTypes, typePaymentMemo) {
		if memo == nil {
			memo = []byte{}
		}
		p.Memo = memo
	}
	return p, nil
}

// paymentsEncoder is a custom TLV encoder for a slice of payments.
func paymentsEncoder(w io.Writer, val interface{}, buf *[8]byte) error {
	if v, ok := val.(*[]Payment); ok {
		items := make([][]byte, 0, len(*v))
		for i := range *v {
			item, err := encodePayment(&(*v)[i])
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		return writeItems(w, items, buf)
	}

	return tlv.NewTypeForEncodingErr(val, "[]proposal.Payment")
}

// paymentsDecoder is a custom TLV decoder for a slice of payments.
func paymentsDecoder(r io.Reader, val interface{}, buf *[8]byte,
	l uint64) error {

	if v, ok := val.(*[]Payment); ok {
		items, err := readItems(r, l, buf)
		if err != nil {
			return err
		}
		payments := make([]Payment, 0, len(items))
		for _, item := range items {
			p, err := decodePayment(item)
			if err != nil {
				return err
			}
			payments = append(payments, p)
		}
		*v = payments
		return nil
	}

	return tlv.NewTypeForDecodingErr(val, "[]proposal.Payment", l, l)
}

// changeEncoder is a custom TLV encoder for a slice of change values.
func changeEncoder(w io.Writer, val interface{}, buf *[8]byte) error {
	if v, ok := val.(*[]ChangeValue); ok {
		items := make([][]byte, 0, len(*v))
		for _, c := range *v {
			value := uint64(c.Value)
			protocol := uint8(c.Protocol)
			item, err := encodeStream(
				tlv.MakePrimitiveRecord(typeChangeValue, &value),
				tlv.MakePrimitiveRecord(
					typeChangeProtocol, &protocol,
				),
			)
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		return writeItems(w, items, buf)
	}

	return tlv.NewTypeForEncodingErr(val, "[]proposal.ChangeValue")
}

// changeDecoder is a custom TLV decoder for a slice of change values.
func changeDecoder(r io.Reader, val interface{}, buf *[8]byte, l uint64) error {
	if v, ok := val.(*[]ChangeValue); ok {
		items, err := readItems(r, l, buf)
		if err != nil {
			return err
		}
		change := make([]ChangeValue, 0, len(items))
		for _, item := range items {
			var (
				value    uint64
				protocol uint8
			)
			parsedTypes, err := decodeStream(item,
				tlv.MakePrimitiveRecord(typeChangeValue, &value),
				tlv.MakePrimitiveRecord(
					typeChangeProtocol, &protocol,
				),
			)
			if err != nil {
				return err
			}
			if !parsed(parsedTypes, typeChangeValue) {
				return errors.New("change is missing its value")
			}
			if value > uint64(btcutil.MaxSatoshi) {
				return ErrAmountRange
			}
			change = append(change, ChangeValue{
				Value:    btcutil.Amount(value),
				Protocol: ShieldedProtocol(protocol),
			})
		}
		*v = change
		return nil
	}

	return tlv.NewTypeForDecodingErr(val, "[]proposal.ChangeValue", l, l)
}

// outpointsEncoder writes fixed-size txid || index entries.
func outpointsEncoder(w io.Writer, val interface{}, _ *[8]byte) error {
	if v, ok := val.(*[]Outpoint); ok {
		var entry [outpointLen]byte
		for _, o := range *v {
			copy(entry[:], o.TxID[:])
			binary.BigEndian.PutUint32(
				entry[chainhash.HashSize:], o.Index,
			)
			if _, err := w.Write(entry[:]); err != nil {
				return err
			}
		}
		return nil
	}

	return tlv.NewTypeForEncodingErr(val, "[]proposal.Outpoint")
}

// outpointsDecoder reads fixed-size txid || index entries.
func outpointsDecoder(r io.Reader, val interface{}, _ *[8]byte,
	l uint64) error {

	if v, ok := val.(*[]Outpoint); ok && l%outpointLen == 0 {
		outpoints := make([]Outpoint, 0, l/outpointLen)
		var entry [outpointLen]byte
		for i := uint64(0); i < l/outpointLen; i++ {
			if _, err := io.ReadFull(r, entry[:]); err != nil {
				return err
			}
			var o Outpoint
			copy(o.TxID[:], entry[:chainhash.HashSize])
			o.Index = binary.BigEndian.Uint32(
				entry[chainhash.HashSize:],
			)
			outpoints = append(outpoints, o)
		}
		*v = outpoints
		return nil
	}

	return tlv.NewTypeForDecodingErr(
		val, "[]proposal.Outpoint", l, l-l%outpointLen,
	)
}

// noteIDsEncoder writes fixed-size txid || protocol || index entries.
func noteIDsEncoder(w io.Writer, val interface{}, _ *[8]byte) error {
	if v, ok := val.(*[]NoteID); ok {
		var entry [noteIDLen]byte
		for _, n := range *v {
			copy(entry[:], n.TxID[:])
			entry[chainhash.HashSize] = uint8(n.Protocol)
			binary.BigEndian.PutUint16(
				entry[chainhash.HashSize+1:], n.OutputIndex,
			)
			if _, err := w.Write(entry[:]); err != nil {
				return err
			}
		}
		return nil
	}

	return tlv.NewTypeForEncodingErr(val, "[]proposal.NoteID")
}

// noteIDsDecoder reads fixed-size txid || protocol || index entries.
func noteIDsDecoder(r io.Reader, val interface{}, _ *[8]byte,
	l uint64) error {

	if v, ok := val.(*[]NoteID); ok && l%noteIDLen == 0 {
		notes := make([]NoteID, 0, l/noteIDLen)
		var entry [noteIDLen]byte
		for i := uint64(0); i < l/noteIDLen; i++ {
			if _, err := io.ReadFull(r, entry[:]); err != nil {
				return err
			}
			var n NoteID
			copy(n.TxID[:], entry[:chainhash.HashSize])
			n.Protocol = ShieldedProtocol(entry[chainhash.HashSize])
			n.OutputIndex = binary.BigEndian.Uint16(
				entry[chainhash.HashSize+1:],
			)
			if n.Protocol != Sapling && n.Protocol != Orchard {
				return fmt.Errorf("unknown note protocol %d",
					n.Protocol)
			}
			notes = append(notes, n)
		}
		*v = notes
		return nil
	}

	return tlv.NewTypeForDecodingErr(
		val, "[]proposal.NoteID", l, l-l%noteIDLen,
	)
}
