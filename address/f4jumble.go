// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package address

import (
	"encoding/binary"
	"errors"

	blake2b "github.com/minio/blake2b-simd"
)

const (
	// minJumbleLen and maxJumbleLen bound the message length accepted by
	// the F4Jumble permutation.
	minJumbleLen = 48
	maxJumbleLen = 4194368

	// jumbleHashLen is the output length of a single BLAKE2b-512 block.
	jumbleHashLen = 64
)

var errJumbleLen = errors.New("f4jumble: message length out of range")

var (
	personH = []byte("UA_F4Jumble_H")
	personG = []byte("UA_F4Jumble_G")
)

func personalized(size int, person []byte, msg []byte) []byte {
	h, err := blake2b.New(&blake2b.Config{
		Size:   uint8(size),
		Person: person,
	})
	if err != nil {
		// New only fails for an out of range size or person.
		panic(err)
	}
	h.Write(msg)
	return h.Sum(nil)
}

// jumbleH is the H_i round function, a BLAKE2b hash of u truncated to
// outLen bytes.
func jumbleH(i byte, u []byte, outLen int) []byte {
	person := make([]byte, 0, 16)
	person = append(person, personH...)
	person = append(person, i, 0, 0)
	return personalized(outLen, person, u)
}

// jumbleG is the G_i round function, a BLAKE2b-512 stream keyed by a block
// counter and truncated to outLen bytes.
func jumbleG(i byte, u []byte, outLen int) []byte {
	out := make([]byte, 0, outLen+jumbleHashLen)
	var counter [2]byte
	for j := 0; len(out) < outLen; j++ {
		binary.LittleEndian.PutUint16(counter[:], uint16(j))

		person := make([]byte, 0, 16)
		person = append(person, personG...)
		person = append(person, i)
		person = append(person, counter[:]...)
		out = append(out, personalized(jumbleHashLen, person, u)...)
	}
	return out[:outLen]
}

func xorInto(dst, src []byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}

func jumbleSplit(n int) int {
	if n/2 < jumbleHashLen {
		return n / 2
	}
	return jumbleHashLen
}

// f4Jumble applies the four-round Feistel permutation used to encode
// unified addresses.  The input is not modified.
func f4Jumble(msg []byte) ([]byte, error) {
	if len(msg) < minJumbleLen || len(msg) > maxJumbleLen {
		return nil, errJumbleLen
	}
	out := append([]byte(nil), msg...)
	left := jumbleSplit(len(out))
	a, b := out[:left], out[left:]

	xorInto(b, jumbleG(0, a, len(b)))
	xorInto(a, jumbleH(0, b, len(a)))
	xorInto(b, jumbleG(1, a, len(b)))
	xorInto(a, jumbleH(1, b, len(a)))
	return out, nil
}

// f4Unjumble inverts f4Jumble.
func f4Unjumble(msg []byte) ([]byte, error) {
	if len(msg) < minJumbleLen || len(msg) > maxJumbleLen {
		return nil, errJumbleLen
	}
	out := append([]byte(nil), msg...)
	left := jumbleSplit(len(out))
	c, d := out[:left], out[left:]

	xorInto(c, jumbleH(1, d, len(c)))
	xorInto(d, jumbleG(1, c, len(d)))
	xorInto(c, jumbleH(0, d, len(c)))
	xorInto(d, jumbleG(0, c, len(d)))
	return out, nil
}
