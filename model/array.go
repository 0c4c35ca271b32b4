// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package model

import "fmt"

// ArrayBuilder builds a fixed-length host array.  Slots start out holding a
// placeholder value, which is only an allocation artifact: Finish refuses to
// return the array until every slot has been set.
type ArrayBuilder[T any] struct {
	items []T
	set   []bool
	unset int
}

// NewArrayBuilder allocates n slots filled by placeholder.
func NewArrayBuilder[T any](n int, placeholder func() T) *ArrayBuilder[T] {
	b := &ArrayBuilder[T]{
		items: make([]T, n),
		set:   make([]bool, n),
		unset: n,
	}
	for i := range b.items {
		b.items[i] = placeholder()
	}
	return b
}

// Len returns the number of slots.
func (b *ArrayBuilder[T]) Len() int {
	return len(b.items)
}

// Set stores v in slot i.
func (b *ArrayBuilder[T]) Set(i int, v T) error {
	if i < 0 || i >= len(b.items) {
		return fmt.Errorf("index %d out of range for array of length %d",
			i, len(b.items))
	}
	if !b.set[i] {
		b.set[i] = true
		b.unset--
	}
	b.items[i] = v
	return nil
}

// Finish returns the populated array.  It fails if any slot still holds its
// placeholder.
func (b *ArrayBuilder[T]) Finish() ([]T, error) {
	if b.unset != 0 {
		for i, ok := range b.set {
			if !ok {
				return nil, fmt.Errorf("array slot %d of %d "+
					"was never populated", i, len(b.items))
			}
		}
	}
	items := b.items
	b.items, b.set = nil, nil
	return items, nil
}

// EncodeSlice encodes every element of items into a host array.
func EncodeSlice[N, H any](items []N, placeholder func() H,
	encode func(N) (H, error)) ([]H, error) {

	b := NewArrayBuilder(len(items), placeholder)
	for i, item := range items {
		h, err := encode(item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		if err := b.Set(i, h); err != nil {
			return nil, err
		}
	}
	return b.Finish()
}
