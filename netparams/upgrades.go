// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

// BranchID is a consensus branch identifier.
type BranchID uint32

// Consensus branch identifiers of each network upgrade.
const (
	Sprout     BranchID = 0
	Overwinter BranchID = 0x5ba81b19
	Sapling    BranchID = 0x76b809bb
	Blossom    BranchID = 0x2bb40e60
	Heartwood  BranchID = 0xf5b9230b
	Canopy     BranchID = 0xe9ff75a6
	NU5        BranchID = 0xc2d6d0b4
	NU6        BranchID = 0xc8e71055
)

var branchNames = map[BranchID]string{
	Sprout:     "Sprout",
	Overwinter: "Overwinter",
	Sapling:    "Sapling",
	Blossom:    "Blossom",
	Heartwood:  "Heartwood",
	Canopy:     "Canopy",
	NU5:        "NU5",
	NU6:        "NU6",
}

// String returns the upgrade name of the branch.
func (b BranchID) String() string {
	if s, ok := branchNames[b]; ok {
		return s
	}
	return "Unknown"
}

// Upgrade is a network upgrade activation.
type Upgrade struct {
	Branch BranchID
	Height uint32
}

// BranchIDForHeight returns the consensus branch in effect at height.  Heights
// before the first upgrade are Sprout.
func (p *Params) BranchIDForHeight(height uint32) BranchID {
	branch := Sprout
	for _, u := range p.Upgrades {
		if height < u.Height {
			break
		}
		branch = u.Branch
	}
	return branch
}
