// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package memo implements the fixed-size memo field attached to shielded
// outputs.
package memo

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Size is the length of an encoded memo.
const Size = 512

const (
	emptyTag     = 0xf6
	arbitraryTag = 0xff
	maxTextTag   = 0xf4
)

var (
	// ErrTooLong is returned for input longer than Size bytes.
	ErrTooLong = errors.New("Invalid memo")

	// ErrInvalidUTF8 is returned for a text memo that is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("Memo text is not valid UTF-8")

	// ErrNotText is returned by Text for memos that carry no text.
	ErrNotText = errors.New("This memo does not contain UTF-8 text")
)

// Kind classifies a memo by its leading byte.
type Kind uint8

const (
	// Empty is 0xF6 followed by zeros, or no input at all.
	Empty Kind = iota

	// Text is UTF-8 text padded with zeros.  Its first byte is at most
	// 0xF4.
	Text

	// Future covers leading bytes reserved for future use.
	Future

	// Arbitrary is 0xFF followed by application-defined bytes.
	Arbitrary
)

var kindStrings = map[Kind]string{
	Empty:     "empty",
	Text:      "text",
	Future:    "future",
	Arbitrary: "arbitrary",
}

// String returns the kind as a human readable name.
func (k Kind) String() string {
	if s, ok := kindStrings[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Memo is a parsed memo field.
type Memo struct {
	kind Kind
	raw  [Size]byte
}

// FromBytes parses b, which may be shorter than Size and is then padded with
// zeros.  Zero-length input is the empty memo.
func FromBytes(b []byte) (*Memo, error) {
	if len(b) > Size {
		return nil, ErrTooLong
	}

	m := &Memo{}
	if len(b) == 0 {
		m.raw[0] = emptyTag
		return m, nil
	}
	copy(m.raw[:], b)

	switch lead := m.raw[0]; {
	case lead <= maxTextTag:
		if !utf8.Valid(m.trimmed()) {
			return nil, ErrInvalidUTF8
		}
		m.kind = Text

	case lead == emptyTag && allZero(m.raw[1:]):
		m.kind = Empty

	case lead == arbitraryTag:
		m.kind = Arbitrary

	default:
		m.kind = Future
	}
	return m, nil
}

// FromText builds a text memo.
func FromText(s string) (*Memo, error) {
	if s == "" {
		return FromBytes(nil)
	}
	return FromBytes([]byte(s))
}

// Kind returns the memo's classification.
func (m *Memo) Kind() Kind {
	return m.kind
}

// Text returns the memo text.  The empty memo yields an empty string.
func (m *Memo) Text() (string, error) {
	switch m.kind {
	case Empty:
		return "", nil
	case Text:
		return string(m.trimmed()), nil
	default:
		return "", ErrNotText
	}
}

// Encode returns the Size-byte padded form.
func (m *Memo) Encode() []byte {
	out := make([]byte, Size)
	copy(out, m.raw[:])
	return out
}

// Equal reports whether two memos encode identically.
func (m *Memo) Equal(o *Memo) bool {
	return m.raw == o.raw
}

func (m *Memo) trimmed() []byte {
	return bytes.TrimRight(m.raw[:], "\x00")
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
