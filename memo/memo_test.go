// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package memo

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestClassification checks the leading-byte rules.
func TestClassification(t *testing.T) {
	t.Parallel()

	emptyWithData := make([]byte, Size)
	emptyWithData[0] = 0xf6
	emptyWithData[7] = 1

	tests := []struct {
		name string
		in   []byte
		kind Kind
		text string
		err  error
	}{
		{name: "nil", in: nil, kind: Empty},
		{name: "explicit empty", in: []byte{0xf6}, kind: Empty},
		{name: "text", in: []byte("hello"), kind: Text, text: "hello"},
		{name: "multibyte text", in: []byte("héllo ✓"), kind: Text,
			text: "héllo ✓"},
		{name: "zero first byte", in: []byte{0, 'a'}, kind: Text,
			text: "\x00a"},
		{name: "reserved f5", in: []byte{0xf5, 1}, kind: Future,
			err: ErrNotText},
		{name: "f6 with data", in: emptyWithData, kind: Future,
			err: ErrNotText},
		{name: "reserved fe", in: []byte{0xfe}, kind: Future,
			err: ErrNotText},
		{name: "arbitrary", in: []byte{0xff, 1, 2, 3}, kind: Arbitrary,
			err: ErrNotText},
	}

	for _, test := range tests {
		m, err := FromBytes(test.in)
		require.NoError(t, err, test.name)
		require.Equal(t, test.kind, m.Kind(), test.name)

		text, err := m.Text()
		if test.err != nil {
			require.ErrorIs(t, err, test.err, test.name)
			continue
		}
		require.NoError(t, err, test.name)
		require.Equal(t, test.text, text, test.name)
	}
}

// TestInvalidInput covers oversize input and bad UTF-8 text.
func TestInvalidInput(t *testing.T) {
	t.Parallel()

	_, err := FromBytes(make([]byte, Size+1))
	require.ErrorIs(t, err, ErrTooLong)
	require.EqualError(t, err, "Invalid memo")

	_, err = FromBytes([]byte{'a', 0xc3})
	require.ErrorIs(t, err, ErrInvalidUTF8)

	m, err := FromBytes(bytes.Repeat([]byte{'x'}, Size))
	require.NoError(t, err)
	require.Equal(t, Text, m.Kind())
}

// TestEncodePadding checks that encoding pads to Size and that parsing the
// padded form yields an equal memo.
func TestEncodePadding(t *testing.T) {
	t.Parallel()

	m, err := FromText("memo")
	require.NoError(t, err)

	enc := m.Encode()
	require.Len(t, enc, Size)
	require.Equal(t, []byte("memo"), enc[:4])
	require.Equal(t, make([]byte, Size-4), enc[4:])

	again, err := FromBytes(enc)
	require.NoError(t, err)
	require.True(t, m.Equal(again))

	empty, err := FromText("")
	require.NoError(t, err)
	require.Equal(t, byte(0xf6), empty.Encode()[0])

	// Mutating the encoding does not affect the memo.
	enc[0] = 'M'
	text, err := m.Text()
	require.NoError(t, err)
	require.Equal(t, "memo", text)
}
