// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shieldwallet/walletbackend/engine"
)

// ErrOutputNotFound is returned when marking an unknown output or note spent.
var ErrOutputNotFound = errors.New("output not found")

// ReceivedNote is a shielded note received by one of the wallet's accounts.
type ReceivedNote struct {
	ID      engine.NoteID
	Account engine.AccountID
	Value   btcutil.Amount
	Height  engine.Height

	// Memo is the raw 512-byte memo field, or nil if it was not
	// recovered.
	Memo []byte
}

// PutTransparentOutput records an output received at a wallet address.
// Storing the same outpoint again replaces it.
func (s *Store) PutTransparentOutput(ctx context.Context,
	out *engine.TransparentOutput) error {

	return s.update(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO transparent_outputs (txid, output_index,
				address, script, value, height)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (txid, output_index) DO UPDATE SET
				address = excluded.address,
				script = excluded.script,
				value = excluded.value,
				height = excluded.height`,
			out.Outpoint.TxID[:], int64(out.Outpoint.Index),
			out.Address, out.Script, int64(out.Value),
			int64(out.Height),
		)
		return err
	})
}

// UnspentTransparentOutputs lists the outputs received at addr that were
// mined at or below anchor and are not spent, in outpoint order.
func (s *Store) UnspentTransparentOutputs(ctx context.Context, addr string,
	anchor engine.Height) ([]engine.TransparentOutput, error) {

	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT txid, output_index, script, value, height
		FROM transparent_outputs
		WHERE address = ? AND height <= ? AND spent_txid IS NULL
		ORDER BY txid, output_index`, addr, int64(anchor),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outs []engine.TransparentOutput
	for rows.Next() {
		var (
			txid                 []byte
			index, value, height int64
			out                  = engine.TransparentOutput{
				Address: addr,
			}
		)
		err := rows.Scan(&txid, &index, &out.Script, &value, &height)
		if err != nil {
			return nil, err
		}
		if len(txid) != chainhash.HashSize {
			return nil, fmt.Errorf("stored txid has %d bytes",
				len(txid))
		}
		copy(out.Outpoint.TxID[:], txid)
		out.Outpoint.Index = uint32(index)
		out.Value = btcutil.Amount(value)
		out.Height = engine.Height(height)
		outs = append(outs, out)
	}
	return outs, rows.Err()
}

// MarkTransparentSpent records that op was spent by spendingTx mined at
// height.
func (s *Store) MarkTransparentSpent(ctx context.Context,
	op engine.Outpoint, spendingTx chainhash.Hash,
	height engine.Height) error {

	return s.update(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE transparent_outputs
			SET spent_txid = ?, spent_height = ?
			WHERE txid = ? AND output_index = ?`,
			spendingTx[:], int64(height), op.TxID[:],
			int64(op.Index),
		)
		return checkAffected(res, err)
	})
}

// PutReceivedNote records a received shielded note.
func (s *Store) PutReceivedNote(ctx context.Context, note *ReceivedNote) error {
	return s.update(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO received_notes (txid, protocol,
				output_index, account_id, value, memo, height)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (txid, protocol, output_index) DO UPDATE SET
				account_id = excluded.account_id,
				value = excluded.value,
				memo = COALESCE(excluded.memo, memo),
				height = excluded.height`,
			note.ID.TxID[:], int64(note.ID.Protocol),
			int64(note.ID.OutputIndex), int64(note.Account),
			int64(note.Value), note.Memo, int64(note.Height),
		)
		return err
	})
}

// MarkNoteSpent records that the note was spent by spendingTx mined at
// height.
func (s *Store) MarkNoteSpent(ctx context.Context, id engine.NoteID,
	spendingTx chainhash.Hash, height engine.Height) error {

	return s.update(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE received_notes
			SET spent_txid = ?, spent_height = ?
			WHERE txid = ? AND protocol = ? AND output_index = ?`,
			spendingTx[:], int64(height), id.TxID[:],
			int64(id.Protocol), int64(id.OutputIndex),
		)
		return checkAffected(res, err)
	})
}

// Memo returns the raw memo of a received note.  None is returned when the
// note is unknown or its memo was not recovered.
func (s *Store) Memo(ctx context.Context, id engine.NoteID) (fn.Option[[]byte],
	error) {

	none := fn.None[[]byte]()
	if err := s.ready(ctx); err != nil {
		return none, err
	}

	var m []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT memo FROM received_notes
		WHERE txid = ? AND protocol = ? AND output_index = ?`,
		id.TxID[:], int64(id.Protocol), int64(id.OutputIndex),
	).Scan(&m)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return none, nil
	case err != nil:
		return none, err
	case m == nil:
		return none, nil
	}
	return fn.Some(m), nil
}

// MinUnspentHeight returns the lowest height at which an unspent note was
// received.
func (s *Store) MinUnspentHeight(ctx context.Context) (fn.Option[engine.Height],
	error) {

	none := fn.None[engine.Height]()
	if err := s.ready(ctx); err != nil {
		return none, err
	}

	var h sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MIN(height) FROM received_notes
		WHERE spent_txid IS NULL`,
	).Scan(&h)
	if err != nil || !h.Valid {
		return none, err
	}
	return fn.Some(engine.Height(h.Int64)), nil
}

func checkAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrOutputNotFound
	}
	return nil
}

// A Store is handed to the engine as its wallet data view.
var _ engine.WalletData = (*Store)(nil)
