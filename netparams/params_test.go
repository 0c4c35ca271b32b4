// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestParseNetwork checks that only the two known codes parse and that the
// parsed value encodes back to the same code.
func TestParseNetwork(t *testing.T) {
	t.Parallel()

	for _, code := range []uint32{0, 1} {
		net, err := ParseNetwork(code)
		require.NoError(t, err)
		require.Equal(t, code, net.Code())
	}

	net, err := ParseNetwork(0)
	require.NoError(t, err)
	require.Equal(t, TestNet, net)

	net, err = ParseNetwork(1)
	require.NoError(t, err)
	require.Equal(t, MainNet, net)

	for _, code := range []uint32{2, 7, 100, 1<<31 + 1, ^uint32(0)} {
		_, err := ParseNetwork(code)
		require.Error(t, err)
		require.Contains(t, err.Error(), "Invalid network type")
		require.Contains(t, err.Error(), strconv.FormatUint(
			uint64(code), 10,
		))
	}
}

// TestBranchIDForHeight checks the upgrade table lookups on both networks.
func TestBranchIDForHeight(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		params *Params
		height uint32
		want   BranchID
	}{
		{"main genesis", &MainNetParams, 0, Sprout},
		{"main before overwinter", &MainNetParams, 347499, Sprout},
		{"main overwinter", &MainNetParams, 347500, Overwinter},
		{"main sapling", &MainNetParams, 419200, Sapling},
		{"main canopy", &MainNetParams, 1046400, Canopy},
		{"main nu5", &MainNetParams, 1687104, NU5},
		{"main nu6", &MainNetParams, 3000000, NU6},
		{"test sapling", &TestNetParams, 280000, Sapling},
		{"test heartwood", &TestNetParams, 903800, Heartwood},
		{"test nu5", &TestNetParams, 1842420, NU5},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := test.params.BranchIDForHeight(test.height)
			require.Equal(t, test.want, got, "got %v", got)
		})
	}
}

// TestParamsPanicsOnUnknown ensures an unparsed network value cannot silently
// select parameters.
func TestParamsPanicsOnUnknown(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() { Network(5).Params() })
	require.Equal(t, &MainNetParams, MainNet.Params())
	require.Equal(t, &TestNetParams, TestNet.Params())
}
