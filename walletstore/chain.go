// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shieldwallet/walletbackend/engine"
)

// AnchorHeights are the height the next transaction targets and the height
// whose note commitment tree it anchors to.
type AnchorHeights struct {
	Target engine.Height
	Anchor engine.Height
}

// ErrInvalidTip is returned for a chain tip with no successor height.
var ErrInvalidTip = errors.New("chain tip must be below the maximum " +
	"block height")

// nextHeight returns h+1, failing instead of wrapping.
func nextHeight(h engine.Height) (engine.Height, error) {
	if h >= math.MaxUint32 {
		return 0, ErrInvalidTip
	}
	return h + 1, nil
}

// ChainTip returns the last chain tip reported by UpdateChainTip, falling
// back to the highest scanned block.
func (s *Store) ChainTip(ctx context.Context) (fn.Option[engine.Height],
	error) {

	none := fn.None[engine.Height]()
	if err := s.ready(ctx); err != nil {
		return none, err
	}

	var tip sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(
			chain_tip_height, (SELECT MAX(height) FROM blocks))
		FROM wallet_meta WHERE id = 0`,
	).Scan(&tip)
	if err != nil {
		return none, err
	}
	if !tip.Valid {
		return none, nil
	}
	return fn.Some(engine.Height(tip.Int64)), nil
}

// UpdateChainTip records the network's current tip.  The maximum height is
// rejected with ErrInvalidTip since no transaction could target past it.
func (s *Store) UpdateChainTip(ctx context.Context, tip engine.Height) error {
	if _, err := nextHeight(tip); err != nil {
		return err
	}
	return s.update(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"UPDATE wallet_meta SET chain_tip_height = ? WHERE id = 0",
			int64(tip),
		)
		return err
	})
}

// MaxScannedHeight returns the highest block recorded by a scan.
func (s *Store) MaxScannedHeight(ctx context.Context) (fn.Option[engine.Height],
	error) {

	none := fn.None[engine.Height]()
	if err := s.ready(ctx); err != nil {
		return none, err
	}

	var h sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MAX(height) FROM blocks").
		Scan(&h)
	if err != nil || !h.Valid {
		return none, err
	}
	return fn.Some(engine.Height(h.Int64)), nil
}

// TargetAndAnchorHeights derives the target height one past the chain tip
// and the anchor minConfirmations below it, never earlier than Sapling
// activation.  None is returned while no chain tip is known.
func (s *Store) TargetAndAnchorHeights(ctx context.Context,
	minConfirmations uint32) (fn.Option[AnchorHeights], error) {

	none := fn.None[AnchorHeights]()
	tipOpt, err := s.ChainTip(ctx)
	if err != nil || tipOpt.IsNone() {
		return none, err
	}

	target, err := nextHeight(tipOpt.UnwrapOr(0))
	if err != nil {
		return none, err
	}
	activation := engine.Height(s.net.Params().SaplingActivationHeight)

	anchor := activation
	if uint32(target) > minConfirmations &&
		target-engine.Height(minConfirmations) > activation {

		anchor = target - engine.Height(minConfirmations)
	}
	return fn.Some(AnchorHeights{Target: target, Anchor: anchor}), nil
}

// InsertBlock records a scanned block.
func (s *Store) InsertBlock(ctx context.Context, m engine.BlockMeta) error {
	return s.update(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO blocks (height, hash, time,
				sapling_output_count, orchard_action_count)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (height) DO UPDATE SET
				hash = excluded.hash,
				time = excluded.time,
				sapling_output_count = excluded.sapling_output_count,
				orchard_action_count = excluded.orchard_action_count`,
			int64(m.Height), m.BlockHash[:], int64(m.BlockTime),
			int64(m.SaplingOutputsCount),
			int64(m.OrchardActionsCount),
		)
		return err
	})
}

// Block returns the scanned block at height, if any.
func (s *Store) Block(ctx context.Context,
	height engine.Height) (fn.Option[engine.BlockMeta], error) {

	none := fn.None[engine.BlockMeta]()
	if err := s.ready(ctx); err != nil {
		return none, err
	}

	var (
		hash                 []byte
		blockTime, sapC, orC int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT hash, time, sapling_output_count, orchard_action_count
		FROM blocks WHERE height = ?`, int64(height),
	).Scan(&hash, &blockTime, &sapC, &orC)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return none, nil
	case err != nil:
		return none, err
	}

	meta := engine.BlockMeta{
		Height:              height,
		BlockTime:           uint32(blockTime),
		SaplingOutputsCount: uint32(sapC),
		OrchardActionsCount: uint32(orC),
	}
	if len(hash) != chainhash.HashSize {
		return none, fmt.Errorf("block %d has a %d byte hash", height,
			len(hash))
	}
	copy(meta.BlockHash[:], hash)
	return fn.Some(meta), nil
}

// PutSaplingSubtreeRoots stores roots as consecutive shards beginning at
// startIndex, replacing any already present.
func (s *Store) PutSaplingSubtreeRoots(ctx context.Context, startIndex uint64,
	roots []engine.SubtreeRoot) error {

	return s.update(ctx, func(tx *sql.Tx) error {
		for i, r := range roots {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO sapling_subtree_roots (shard_index,
					root_hash, completing_height)
				VALUES (?, ?, ?)
				ON CONFLICT (shard_index) DO UPDATE SET
					root_hash = excluded.root_hash,
					completing_height = excluded.completing_height`,
				int64(startIndex)+int64(i), r.RootHash[:],
				int64(r.CompletingBlockHeight),
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// SaplingSubtreeRoots lists the stored roots in shard order.
func (s *Store) SaplingSubtreeRoots(ctx context.Context) ([]engine.SubtreeRoot,
	error) {

	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT root_hash, completing_height FROM sapling_subtree_roots
		ORDER BY shard_index`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roots []engine.SubtreeRoot
	for rows.Next() {
		var (
			hash   []byte
			height int64
			root   engine.SubtreeRoot
		)
		if err := rows.Scan(&hash, &height); err != nil {
			return nil, err
		}
		copy(root.RootHash[:], hash)
		root.CompletingBlockHeight = engine.Height(height)
		roots = append(roots, root)
	}
	return roots, rows.Err()
}

// ReplaceScanQueue swaps the whole scan queue for ranges.
func (s *Store) ReplaceScanQueue(ctx context.Context,
	ranges []engine.ScanRange) error {

	return s.update(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM scan_queue"); err != nil {
			return err
		}
		return insertRanges(ctx, tx, ranges)
	})
}

func insertRanges(ctx context.Context, tx *sql.Tx,
	ranges []engine.ScanRange) error {

	for _, r := range ranges {
		if r.Len() == 0 {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO scan_queue (start_height, end_height, priority)
			VALUES (?, ?, ?)`,
			int64(r.Start), int64(r.End), int64(r.Priority),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// ScanQueue returns the queued ranges, most urgent first.
func (s *Store) ScanQueue(ctx context.Context) ([]engine.ScanRange, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT start_height, end_height, priority FROM scan_queue
		ORDER BY priority DESC, start_height ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ranges []engine.ScanRange
	for rows.Next() {
		var start, end, prio int64
		if err := rows.Scan(&start, &end, &prio); err != nil {
			return nil, err
		}
		ranges = append(ranges, engine.ScanRange{
			Start:    engine.Height(start),
			End:      engine.Height(end),
			Priority: engine.ScanPriority(prio),
		})
	}
	return ranges, rows.Err()
}

// TruncateToHeight discards everything learned from blocks above height.
// Outputs mined above height are removed, spends mined above height are
// undone, and the range up to the chain tip is queued for rescanning.
func (s *Store) TruncateToHeight(ctx context.Context,
	height engine.Height) error {

	tipOpt, err := s.ChainTip(ctx)
	if err != nil {
		return err
	}

	return s.update(ctx, func(tx *sql.Tx) error {
		h := int64(height)
		stmts := []string{
			"DELETE FROM blocks WHERE height > ?",
			"DELETE FROM received_notes WHERE height > ?",
			`UPDATE received_notes SET spent_txid = NULL,
				spent_height = NULL WHERE spent_height > ?`,
			"DELETE FROM transparent_outputs WHERE height > ?",
			`UPDATE transparent_outputs SET spent_txid = NULL,
				spent_height = NULL WHERE spent_height > ?`,
			"DELETE FROM sapling_subtree_roots WHERE completing_height > ?",
			"DELETE FROM scan_queue WHERE start_height > ?",
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt, h); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx,
			"UPDATE scan_queue SET end_height = ? WHERE end_height > ?",
			h+1, h+1,
		)
		if err != nil {
			return err
		}

		tip := tipOpt.UnwrapOr(0)
		if tipOpt.IsNone() || tip <= height {
			return nil
		}
		end, err := nextHeight(tip)
		if err != nil {
			return err
		}

		log.Debugf("Queueing blocks %d through %d for rescan",
			height+1, tip)
		return insertRanges(ctx, tx, []engine.ScanRange{{
			Start:    height + 1,
			End:      end,
			Priority: engine.PriorityVerify,
		}})
	})
}
