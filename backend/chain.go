// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package backend

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/shieldwallet/walletbackend/address"
	"github.com/shieldwallet/walletbackend/blockcache"
	"github.com/shieldwallet/walletbackend/boundary"
	"github.com/shieldwallet/walletbackend/engine"
	"github.com/shieldwallet/walletbackend/model"
	"github.com/shieldwallet/walletbackend/param"
	"github.com/shieldwallet/walletbackend/walletstore"
)

var (
	errNotTransparent = errors.New("Address is not a transparent address")

	errScriptMismatch = errors.New("Script does not pay to the address")
)

// heightOrNone maps a missing height to -1.
func heightOrNone(h fnHeight) int64 {
	if h.IsNone() {
		return -1
	}
	return int64(h.UnwrapOr(0))
}

// InitBlockMetaDb creates the block metadata cache under root.  It returns 0
// on success and -1 on failure.
func (b *Backend) InitBlockMetaDb(env *boundary.Env, root string) int32 {
	return boundary.Call(env, "initBlockMetaDb", int32(-1),
		func() (int32, error) {
			return withCache(root, func(c *blockcache.Cache) (int32,
				error) {

				if err := c.Init(); err != nil {
					return -1, boundary.Store("Error while "+
						"initializing block metadata DB", err)
				}
				return 0, nil
			})
		},
	)
}

// WriteBlockMetadata records the metadata of downloaded blocks.
func (b *Backend) WriteBlockMetadata(env *boundary.Env, root string,
	blocks []model.BlockMeta) bool {

	return boundary.Call(env, "writeBlockMetadata", false,
		func() (bool, error) {
			metas, err := model.DecodeBlockMetas(blocks)
			if err != nil {
				return false, boundary.Validation("", err)
			}
			return withCache(root, func(c *blockcache.Cache) (bool,
				error) {

				err := c.Write(metas)
				return err == nil, storeErr("Failed to write "+
					"block metadata", err)
			})
		},
	)
}

// GetLatestCacheHeight returns the highest cached height, or -1 when the
// cache is empty.
func (b *Backend) GetLatestCacheHeight(env *boundary.Env, root string) int64 {
	return boundary.Call(env, "getLatestCacheHeight", int64(-1),
		func() (int64, error) {
			return withCache(root, func(c *blockcache.Cache) (int64,
				error) {

				h, err := c.MaxCachedHeight()
				if err != nil {
					return -1, boundary.Store("Failed to "+
						"read block metadata", err)
				}
				return heightOrNone(h), nil
			})
		},
	)
}

// FindBlockMetadata returns the cached metadata at height, or nil when the
// block is not cached.
func (b *Backend) FindBlockMetadata(env *boundary.Env, root string,
	height int64) *model.BlockMeta {

	return boundary.Call(env, "findBlockMetadata", nil,
		func() (*model.BlockMeta, error) {
			h, err := param.Height(height)
			if err != nil {
				return nil, boundary.Validation("", err)
			}
			return withCache(root, func(c *blockcache.Cache) (
				*model.BlockMeta, error) {

				meta, err := c.FindBlock(h)
				if err != nil {
					return nil, boundary.Store("Failed to "+
						"read block metadata", err)
				}

				var out *model.BlockMeta
				meta.WhenSome(func(m engine.BlockMeta) {
					out = model.EncodeBlockMeta(m)
				})
				return out, nil
			})
		},
	)
}

// RewindBlockMetadataToHeight drops cached metadata above height.
func (b *Backend) RewindBlockMetadataToHeight(env *boundary.Env, root string,
	height int64) {

	boundary.CallVoid(env, "rewindBlockMetadataToHeight", func() error {
		h, err := param.Height(height)
		if err != nil {
			return boundary.Validation("", err)
		}
		_, err = withCache(root, func(c *blockcache.Cache) (struct{},
			error) {

			return struct{}{}, storeErr("Failed to rewind block "+
				"metadata", c.TruncateToHeight(h))
		})
		return err
	})
}

// GetNearestRewindHeight clamps height to the lowest height at which the
// wallet still holds an unspent note.  Heights below RewindFastPathHeight
// are returned as is without opening the store.
func (b *Backend) GetNearestRewindHeight(env *boundary.Env, dbData string,
	height int64, network int32) int64 {

	return boundary.Call(env, "getNearestRewindHeight", int64(-1),
		func() (int64, error) {
			net, err := param.Network(network)
			if err != nil {
				return -1, boundary.Validation("", err)
			}
			h, err := param.Height(height)
			if err != nil {
				return -1, boundary.Validation("", err)
			}
			if h < RewindFastPathHeight {
				return int64(h), nil
			}

			return withData(dbData, net,
				func(s *walletstore.Store) (int64, error) {
					lowest, err := s.MinUnspentHeight(
						callContext(),
					)
					if err != nil {
						return -1, boundary.Store("Error "+
							"while getting nearest "+
							"rewind height", err)
					}
					best := h
					lowest.WhenSome(func(m engine.Height) {
						if m < best {
							best = m
						}
					})
					return int64(best), nil
				},
			)
		},
	)
}

// RewindToHeight truncates the wallet database and then the block cache to
// height.
func (b *Backend) RewindToHeight(env *boundary.Env, root, dbData string,
	height int64, network int32) bool {

	return boundary.Call(env, "rewindToHeight", false, func() (bool, error) {
		net, err := param.Network(network)
		if err != nil {
			return false, boundary.Validation("", err)
		}
		h, err := param.Height(height)
		if err != nil {
			return false, boundary.Validation("", err)
		}

		_, err = withData(dbData, net,
			func(s *walletstore.Store) (struct{}, error) {
				err := s.TruncateToHeight(callContext(), h)
				return struct{}{}, storeErr(fmt.Sprintf(
					"Error while rewinding data DB to "+
						"height %d", h), err)
			},
		)
		if err != nil {
			return false, err
		}

		return withCache(root, func(c *blockcache.Cache) (bool, error) {
			err := c.TruncateToHeight(h)
			return err == nil, storeErr(fmt.Sprintf("Error while "+
				"rewinding block metadata to height %d", h), err)
		})
	})
}

// PutSaplingSubtreeRoots stores note commitment subtree roots starting at
// shard startIndex.
func (b *Backend) PutSaplingSubtreeRoots(env *boundary.Env, dbData string,
	startIndex int64, roots []model.SubtreeRoot, network int32) bool {

	return boundary.Call(env, "putSaplingSubtreeRoots", false,
		func() (bool, error) {
			net, err := param.Network(network)
			if err != nil {
				return false, boundary.Validation("", err)
			}
			if startIndex < 0 {
				return false, boundary.Validation("", fmt.Errorf(
					"Invalid start index %d", startIndex))
			}
			decoded, err := model.DecodeSubtreeRoots(roots)
			if err != nil {
				return false, boundary.Validation("", err)
			}

			return withData(dbData, net,
				func(s *walletstore.Store) (bool, error) {
					err := s.PutSaplingSubtreeRoots(
						callContext(), uint64(startIndex),
						decoded,
					)
					return err == nil, storeErr("Error while "+
						"storing Sapling subtree roots", err)
				},
			)
		},
	)
}

// UpdateChainTip records the network's chain tip.
func (b *Backend) UpdateChainTip(env *boundary.Env, dbData string,
	height int64, network int32) bool {

	return boundary.Call(env, "updateChainTip", false, func() (bool, error) {
		net, err := param.Network(network)
		if err != nil {
			return false, boundary.Validation("", err)
		}
		h, err := param.Height(height)
		if err != nil {
			return false, boundary.Validation("", err)
		}

		return withData(dbData, net,
			func(s *walletstore.Store) (bool, error) {
				err := s.UpdateChainTip(callContext(), h)
				if errors.Is(err, walletstore.ErrInvalidTip) {
					return false, boundary.Validation("", err)
				}
				return err == nil, storeErr("Error while "+
					"updating chain tip", err)
			},
		)
	})
}

// SuggestScanRanges asks the engine which ranges to scan next, records them
// as the scan queue and returns them most urgent first.
func (b *Backend) SuggestScanRanges(env *boundary.Env, dbData string,
	network int32) []*model.ScanRange {

	return boundary.Call(env, "suggestScanRanges", nil,
		func() ([]*model.ScanRange, error) {
			net, err := param.Network(network)
			if err != nil {
				return nil, boundary.Validation("", err)
			}

			return withData(dbData, net,
				func(s *walletstore.Store) ([]*model.ScanRange,
					error) {

					ctx := callContext()
					ranges, err := b.engine.SuggestScanRanges(ctx, s)
					if err != nil {
						return nil, boundary.Engine("Error "+
							"while suggesting scan ranges",
							err)
					}
					err = s.ReplaceScanQueue(ctx, ranges)
					if err != nil {
						return nil, storeErr("Error while "+
							"storing scan queue", err)
					}
					return model.EncodeScanRanges(ranges)
				},
			)
		},
	)
}

// ScanBlocks scans up to limit cached blocks starting at from and records
// the scanned blocks in the wallet database.
func (b *Backend) ScanBlocks(env *boundary.Env, root, dbData string,
	from, limit int64, network int32) *model.ScanSummary {

	return boundary.Call(env, "scanBlocks", nil,
		func() (*model.ScanSummary, error) {
			params, err := param.NetworkParams(network)
			if err != nil {
				return nil, boundary.Validation("", err)
			}
			start, err := param.Height(from)
			if err != nil {
				return nil, boundary.Validation("", err)
			}
			n, err := param.Limit(limit)
			if err != nil {
				return nil, boundary.Validation("", err)
			}

			return withCache(root, func(c *blockcache.Cache) (
				*model.ScanSummary, error) {

				return withData(dbData, params.Network,
					func(s *walletstore.Store) (
						*model.ScanSummary, error) {

						ctx := callContext()
						sum, err := b.engine.ScanCachedBlocks(
							ctx, params, c, s, start, n,
						)
						if err != nil {
							return nil, boundary.Engine(
								"Error while scanning "+
									"blocks", err)
						}
						if err := recordScanned(c, s, sum); err != nil {
							return nil, err
						}
						return model.EncodeScanSummary(sum)
					},
				)
			})
		},
	)
}

// recordScanned copies the cached metadata of the scanned range into the
// wallet database.
func recordScanned(c *blockcache.Cache, s *walletstore.Store,
	sum *engine.ScanSummary) error {

	if sum == nil {
		return fmt.Errorf("engine returned no scan summary")
	}
	for h := sum.ScannedStart; h < sum.ScannedEnd; h++ {
		meta, err := c.FindBlock(h)
		if err != nil {
			return boundary.Store("Failed to read block metadata",
				err)
		}
		if meta.IsNone() {
			continue
		}
		err = s.InsertBlock(callContext(), meta.UnwrapOr(engine.BlockMeta{}))
		if err != nil {
			return storeErr("Error while recording scanned blocks",
				err)
		}
	}
	return nil
}

// PutUtxo records a transparent output received at addr.  script must pay
// to addr.
func (b *Backend) PutUtxo(env *boundary.Env, dbData, addr string, txid []byte,
	index int32, script []byte, value, height int64, network int32) bool {

	return boundary.Call(env, "putUtxo", false, func() (bool, error) {
		params, err := param.NetworkParams(network)
		if err != nil {
			return false, boundary.Validation("", err)
		}
		hash, err := param.TxID(txid)
		if err != nil {
			return false, boundary.Validation("", err)
		}
		idx, err := param.TransparentIndex(index)
		if err != nil {
			return false, boundary.Validation("", err)
		}
		amt, err := param.Amount(value)
		if err != nil {
			return false, boundary.Validation("", err)
		}
		h, err := param.Height(height)
		if err != nil {
			return false, boundary.Validation("", err)
		}

		a, err := address.Decode(params, addr)
		if err != nil {
			return false, boundary.Validation("", err)
		}
		if err := checkScript(a, script, params.Params); err != nil {
			return false, boundary.Validation("", err)
		}

		out := &engine.TransparentOutput{
			Outpoint: engine.Outpoint{TxID: hash, Index: idx},
			Address:  addr,
			Script:   script,
			Value:    amt,
			Height:   h,
		}
		return withData(dbData, params.Network,
			func(s *walletstore.Store) (bool, error) {
				err := s.PutTransparentOutput(callContext(), out)
				return err == nil, storeErr("Error while "+
					"inserting UTXO", err)
			},
		)
	})
}

// checkScript verifies that script is a standard P2PKH or P2SH script paying
// to the hash in a.
func checkScript(a *address.Address, script []byte,
	chainParams *chaincfg.Params) error {

	var want txscript.ScriptClass
	switch a.Kind {
	case address.P2PKH:
		want = txscript.PubKeyHashTy
	case address.P2SH:
		want = txscript.ScriptHashTy
	default:
		return errNotTransparent
	}

	class, addrs, _, err := txscript.ExtractPkScriptAddrs(
		script, chainParams,
	)
	if err != nil {
		return err
	}
	if class != want || len(addrs) != 1 ||
		!bytes.Equal(addrs[0].ScriptAddress(), a.Payload) {

		return errScriptMismatch
	}
	return nil
}

// DecryptAndStoreTransaction trial-decrypts tx with the wallet's viewing
// keys and records anything it finds.
func (b *Backend) DecryptAndStoreTransaction(env *boundary.Env, dbData string,
	tx []byte, network int32) bool {

	return boundary.Call(env, "decryptAndStoreTransaction", false,
		func() (bool, error) {
			params, err := param.NetworkParams(network)
			if err != nil {
				return false, boundary.Validation("", err)
			}

			return withData(dbData, params.Network,
				func(s *walletstore.Store) (bool, error) {
					err := b.engine.DecryptAndStoreTransaction(
						callContext(), params, s, tx,
					)
					if err != nil {
						return false, boundary.Engine(
							"Error while decrypting "+
								"transaction", err)
					}
					return true, nil
				},
			)
		},
	)
}
