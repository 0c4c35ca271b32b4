// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keys

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/shieldwallet/walletbackend/netparams"
	"github.com/shieldwallet/walletbackend/secret"
	"github.com/stretchr/testify/require"
)

var testSeed = bytes.Repeat([]byte{0x5a}, 32)

func filled(n int, b byte) []byte {
	return bytes.Repeat([]byte{b}, n)
}

// encodeRaw builds an encoding from explicit parts so tests can produce
// inputs that NewSpendingKey would refuse.
func encodeRaw(era Era, items ...rawItem) []byte {
	var buf bytes.Buffer
	var e [4]byte
	binary.LittleEndian.PutUint32(e[:], uint32(era))
	buf.Write(e[:])
	for _, it := range items {
		_ = wire.WriteVarInt(&buf, 0, uint64(it.tc))
		_ = wire.WriteVarInt(&buf, 0, uint64(len(it.data)))
		buf.Write(it.data)
	}
	return buf.Bytes()
}

type rawItem struct {
	tc   Typecode
	data []byte
}

func testTransparent(t *testing.T) []byte {
	t.Helper()

	m, err := DeriveTransparentAccountKey(
		&netparams.TestNetParams, testSeed, 0,
	)
	require.NoError(t, err)
	defer m.Destroy()

	return append([]byte(nil), m.Expose()...)
}

// TestRoundTrip checks that decoding an encoding for the expected era and
// encoding again yields identical bytes, with and without a transparent
// component.
func TestRoundTrip(t *testing.T) {
	t.Parallel()

	withTransparent := encodeRaw(EraOrchard,
		rawItem{TypeTransparent, testTransparent(t)},
		rawItem{TypeSapling, filled(SaplingKeyLen, 2)},
		rawItem{TypeOrchard, filled(OrchardKeyLen, 3)},
	)
	shieldedOnly := encodeRaw(EraOrchard,
		rawItem{TypeSapling, filled(SaplingKeyLen, 4)},
		rawItem{TypeOrchard, filled(OrchardKeyLen, 5)},
	)

	for _, enc := range [][]byte{withTransparent, shieldedOnly} {
		k, err := Decode(enc, EraOrchard)
		require.NoError(t, err)
		require.Equal(t, EraOrchard, k.Era())

		out := k.Encode()
		require.Equal(t, enc, out.Expose())
		require.Equal(t, len(enc), cap(out.Expose()))
		out.Destroy()
		k.Destroy()
	}
}

// TestNewSpendingKeyEncode checks that a key assembled from components
// decodes back to the same components.
func TestNewSpendingKeyEncode(t *testing.T) {
	t.Parallel()

	k, err := NewSpendingKey(
		EraOrchard, secret.Wrap(testTransparent(t)),
		secret.Wrap(filled(SaplingKeyLen, 7)),
		secret.Wrap(filled(OrchardKeyLen, 8)),
	)
	require.NoError(t, err)
	defer k.Destroy()

	enc := k.Encode()
	defer enc.Destroy()

	got, err := Decode(enc.Expose(), EraOrchard)
	require.NoError(t, err)
	defer got.Destroy()

	require.True(t, got.HasTransparent())
	require.Equal(t, k.Transparent(), got.Transparent())
	require.Equal(t, k.Sapling(), got.Sapling())
	require.Equal(t, k.Orchard(), got.Orchard())
	require.NotContains(t, k.String(), "07")
}

// TestEraMismatch checks that a well-formed key for another era is reported
// as a mismatch rather than as malformed input.
func TestEraMismatch(t *testing.T) {
	t.Parallel()

	other := Era(0x12345678)
	enc := encodeRaw(other,
		rawItem{TypeSapling, filled(SaplingKeyLen, 1)},
		rawItem{TypeOrchard, filled(OrchardKeyLen, 1)},
	)

	_, err := Decode(enc, EraOrchard)
	require.Error(t, err)
	require.True(t, IsEraMismatch(err))
	require.False(t, IsMalformed(err))

	var de *DecodingError
	require.ErrorAs(t, err, &de)
	require.Equal(t, other, de.Found)
	require.Equal(t, EraOrchard, de.Expected)
	require.Contains(t, err.Error(), "Orchard was expected")

	// The same bytes decode under their own era.
	k, err := Decode(enc, other)
	require.NoError(t, err)
	k.Destroy()
}

// TestMalformed covers structural decode failures.
func TestMalformed(t *testing.T) {
	t.Parallel()

	sapling := rawItem{TypeSapling, filled(SaplingKeyLen, 1)}
	orchard := rawItem{TypeOrchard, filled(OrchardKeyLen, 1)}
	valid := encodeRaw(EraOrchard, sapling, orchard)

	zeroScalar := testTransparent(t)
	copy(zeroScalar[42:], make([]byte, 32))
	bigScalar := testTransparent(t)
	copy(bigScalar[42:], filled(32, 0xff))
	publicKey := testTransparent(t)
	publicKey[41] = 0x02

	tests := []struct {
		name string
		enc  []byte
	}{
		{"empty", nil},
		{"era only partial", []byte{0xb4, 0xd6}},
		{"no items", encodeRaw(EraOrchard)},
		{"truncated", valid[:len(valid)-1]},
		{"trailing byte", append(append([]byte(nil), valid...), 0x05)},
		{"out of order", encodeRaw(EraOrchard, orchard, sapling)},
		{"duplicate", encodeRaw(EraOrchard, sapling, sapling, orchard)},
		{"unknown typecode", encodeRaw(EraOrchard, sapling, orchard,
			rawItem{Typecode(9), []byte{1}})},
		{"missing orchard", encodeRaw(EraOrchard, sapling)},
		{"missing sapling", encodeRaw(EraOrchard, orchard)},
		{"short sapling", encodeRaw(EraOrchard,
			rawItem{TypeSapling, filled(SaplingKeyLen-1, 1)}, orchard)},
		{"long orchard", encodeRaw(EraOrchard, sapling,
			rawItem{TypeOrchard, filled(OrchardKeyLen+1, 1)})},
		{"zero transparent scalar", encodeRaw(EraOrchard,
			rawItem{TypeTransparent, zeroScalar}, sapling, orchard)},
		{"overflowing transparent scalar", encodeRaw(EraOrchard,
			rawItem{TypeTransparent, bigScalar}, sapling, orchard)},
		{"transparent public key", encodeRaw(EraOrchard,
			rawItem{TypeTransparent, publicKey}, sapling, orchard)},
		{"non-canonical length", append(
			append([]byte(nil), valid[:4]...),
			0x02, 0xfd, byte(SaplingKeyLen), 0x00,
		)},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			_, err := Decode(test.enc, EraOrchard)
			require.Error(t, err)
			require.True(t, IsMalformed(err), "got %v", err)
			require.False(t, IsEraMismatch(err))
		})
	}
}

// TestDestroyZeroesComponents checks that Destroy clears decoded components.
func TestDestroyZeroesComponents(t *testing.T) {
	t.Parallel()

	orchard := filled(OrchardKeyLen, 9)
	k, err := NewSpendingKey(
		EraOrchard, nil, secret.Wrap(filled(SaplingKeyLen, 9)),
		secret.Wrap(orchard),
	)
	require.NoError(t, err)
	require.False(t, k.HasTransparent())
	require.Nil(t, k.Transparent())

	k.Destroy()
	require.Equal(t, make([]byte, OrchardKeyLen), orchard)
	require.Panics(t, func() { k.Orchard() })
}

// TestDeriveTransparentAccountKey checks the shape and determinism of the
// derived account key body.
func TestDeriveTransparentAccountKey(t *testing.T) {
	t.Parallel()

	derive := func(params *netparams.Params, account uint32) []byte {
		m, err := DeriveTransparentAccountKey(params, testSeed, account)
		require.NoError(t, err)
		defer m.Destroy()
		return append([]byte(nil), m.Expose()...)
	}

	a0 := derive(&netparams.MainNetParams, 0)
	require.Len(t, a0, TransparentKeyLen)

	// Depth 3, hardened child number, private key marker.
	require.Equal(t, byte(3), a0[0])
	require.Equal(t, uint32(0x80000000), binary.BigEndian.Uint32(a0[5:9]))
	require.Equal(t, byte(0), a0[41])
	require.NoError(t, checkTransparent(a0))

	require.Equal(t, a0, derive(&netparams.MainNetParams, 0))
	require.NotEqual(t, a0, derive(&netparams.MainNetParams, 1))
	require.NotEqual(t, a0, derive(&netparams.TestNetParams, 0))

	_, err := DeriveTransparentAccountKey(
		&netparams.MainNetParams, testSeed, 1<<31,
	)
	require.Error(t, err)

	_, err = DeriveTransparentAccountKey(
		&netparams.MainNetParams, []byte{1, 2, 3}, 0,
	)
	require.Error(t, err)
}
