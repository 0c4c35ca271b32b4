// Copyright (c) 2015 The btcsuite developers
// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package secret holds seed and spending key bytes for the duration of a
// single backend call.
//
// A Material owns its backing buffer.  Callers borrow the bytes through
// Expose and must not retain the returned slice past the call that created
// the container.  Destroy overwrites the buffer with zeros; once destroyed a
// container can no longer be exposed.  Material never formats its contents,
// so passing one to a logger or fmt verb prints a redacted placeholder.
package secret

import (
	"fmt"
)

// redacted is printed in place of secret bytes.
const redacted = "[redacted]"

// Material is a call-scoped container for secret bytes.
type Material struct {
	b         []byte
	destroyed bool
}

// Wrap takes ownership of b.  The caller must not use b afterwards.
func Wrap(b []byte) *Material {
	return &Material{b: b}
}

// Copy wraps a private copy of b.  It is used when b belongs to someone else,
// such as a host buffer, and the original should be left untouched.
func Copy(b []byte) *Material {
	c := make([]byte, len(b))
	copy(c, b)
	return &Material{b: c}
}

// With wraps b, runs fn and destroys the container when fn returns or panics.
func With(b []byte, fn func(*Material) error) error {
	m := Wrap(b)
	defer m.Destroy()

	return fn(m)
}

// Expose returns a read-only view of the secret bytes.  The view aliases the
// container's buffer and is zeroed by Destroy.
func (m *Material) Expose() []byte {
	if m.destroyed {
		panic("secret: expose after destroy")
	}
	return m.b
}

// Len returns the number of secret bytes.
func (m *Material) Len() int {
	return len(m.b)
}

// Destroyed reports whether Destroy has been called.
func (m *Material) Destroyed() bool {
	return m.destroyed
}

// Destroy zeroes the backing buffer.  It is safe to call more than once and
// on a nil container.
func (m *Material) Destroy() {
	if m == nil || m.destroyed {
		return
	}
	Zero(m.b)
	m.b = nil
	m.destroyed = true
}

// String implements fmt.Stringer without revealing the contents.
func (m *Material) String() string {
	return redacted
}

// GoString implements fmt.GoStringer without revealing the contents.
func (m *Material) GoString() string {
	return "secret.Material" + redacted
}

// Format implements fmt.Formatter so every verb, including %x and %v with the
// + flag, prints the placeholder.
func (m *Material) Format(f fmt.State, verb rune) {
	if verb == 'v' && f.Flag('#') {
		_, _ = fmt.Fprint(f, m.GoString())
		return
	}
	_, _ = fmt.Fprint(f, redacted)
}

// Zero sets all bytes in the passed slice to zero.  This is used to
// explicitly clear key material from memory.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Zero32 clears a 32-byte array.
func Zero32(b *[32]byte) {
	*b = [32]byte{}
}
