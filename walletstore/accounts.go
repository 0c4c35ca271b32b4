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

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shieldwallet/walletbackend/engine"
)

var (
	// ErrAccountNotFound is returned for an account id the store does
	// not hold.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists is returned when a viewing key is already
	// registered.
	ErrAccountExists = errors.New("an account with this viewing key " +
		"already exists")

	// ErrAccountIDsExhausted is returned once the account sequence
	// reaches the largest id a host can represent.
	ErrAccountIDsExhausted = errors.New("no account ids left")
)

// Birthday is the height and note commitment tree state an account starts
// scanning from.
type Birthday struct {
	Height       engine.Height
	SaplingTree  []byte
	OrchardTree  []byte
	RecoverUntil fn.Option[engine.Height]
}

// Account is everything recorded when an account is created.
type Account struct {
	ID              engine.AccountID
	ViewingKey      string
	Birthday        Birthday
	Address         string
	SeedFingerprint [32]byte

	// TransparentReceivers are the transparent addresses derived for the
	// account, if any.
	TransparentReceivers []string
}

// NextAccountID returns the id the next created account will get.  Ids are
// handed out in order and never reused.
func (s *Store) NextAccountID(ctx context.Context) (engine.AccountID, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}

	var next int64
	err := s.db.QueryRowContext(
		ctx, "SELECT next_account_id FROM wallet_meta WHERE id = 0",
	).Scan(&next)
	if err != nil {
		return 0, err
	}
	if next > math.MaxInt32 {
		return 0, ErrAccountIDsExhausted
	}
	return engine.AccountID(next), nil
}

// InsertAccount records a new account.  acct.ID must be the value returned
// by NextAccountID; the sequence is advanced in the same transaction.
func (s *Store) InsertAccount(ctx context.Context, acct *Account) error {
	return s.update(ctx, func(tx *sql.Tx) error {
		var next int64
		err := tx.QueryRowContext(ctx,
			"SELECT next_account_id FROM wallet_meta WHERE id = 0",
		).Scan(&next)
		if err != nil {
			return err
		}
		if next > math.MaxInt32 {
			return ErrAccountIDsExhausted
		}
		if int64(acct.ID) != next {
			return fmt.Errorf("account id %d is not the next id %d",
				acct.ID, next)
		}

		var exists int
		err = tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM accounts WHERE ufvk = ?",
			acct.ViewingKey,
		).Scan(&exists)
		if err != nil {
			return err
		}
		if exists != 0 {
			return ErrAccountExists
		}

		var recoverUntil sql.NullInt64
		acct.Birthday.RecoverUntil.WhenSome(func(h engine.Height) {
			recoverUntil = sql.NullInt64{Int64: int64(h), Valid: true}
		})

		_, err = tx.ExecContext(ctx, `
			INSERT INTO accounts (id, ufvk, birthday_height,
				recover_until_height, birthday_sapling_tree,
				birthday_orchard_tree, seed_fingerprint)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			int64(acct.ID), acct.ViewingKey,
			int64(acct.Birthday.Height), recoverUntil,
			acct.Birthday.SaplingTree, acct.Birthday.OrchardTree,
			acct.SeedFingerprint[:],
		)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO addresses (account_id, address,
				is_transparent, is_current)
			VALUES (?, ?, 0, 1)`, int64(acct.ID), acct.Address,
		)
		if err != nil {
			return err
		}
		for _, taddr := range acct.TransparentReceivers {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO addresses (account_id, address,
					is_transparent, is_current)
				VALUES (?, ?, 1, 0)`, int64(acct.ID), taddr,
			)
			if err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE wallet_meta SET next_account_id = ? WHERE id = 0",
			next+1,
		)
		return err
	})
}

// AccountForViewingKey finds the account registered with ufvk.
func (s *Store) AccountForViewingKey(ctx context.Context,
	ufvk string) (fn.Option[engine.AccountID], error) {

	none := fn.None[engine.AccountID]()
	if err := s.ready(ctx); err != nil {
		return none, err
	}

	var id int64
	err := s.db.QueryRowContext(
		ctx, "SELECT id FROM accounts WHERE ufvk = ?", ufvk,
	).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return none, nil
	case err != nil:
		return none, err
	}
	return fn.Some(engine.AccountID(id)), nil
}

// Accounts lists every account id in ascending order.
func (s *Store) Accounts(ctx context.Context) ([]engine.AccountID, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id FROM accounts ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []engine.AccountID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, engine.AccountID(id))
	}
	return ids, rows.Err()
}

// AccountBirthday returns the birthday recorded for id.
func (s *Store) AccountBirthday(ctx context.Context,
	id engine.AccountID) (*Birthday, error) {

	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	var (
		height       int64
		recoverUntil sql.NullInt64
		b            Birthday
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT birthday_height, recover_until_height,
			birthday_sapling_tree, birthday_orchard_tree
		FROM accounts WHERE id = ?`, int64(id),
	).Scan(&height, &recoverUntil, &b.SaplingTree, &b.OrchardTree)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrAccountNotFound
	case err != nil:
		return nil, err
	}

	b.Height = engine.Height(height)
	b.RecoverUntil = fn.None[engine.Height]()
	if recoverUntil.Valid {
		b.RecoverUntil = fn.Some(engine.Height(recoverUntil.Int64))
	}
	return &b, nil
}

// CurrentAddress returns the account's current unified address.
func (s *Store) CurrentAddress(ctx context.Context,
	id engine.AccountID) (string, error) {

	if err := s.ready(ctx); err != nil {
		return "", err
	}

	var addr string
	err := s.db.QueryRowContext(ctx, `
		SELECT address FROM addresses
		WHERE account_id = ? AND is_current = 1`, int64(id),
	).Scan(&addr)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrAccountNotFound
	}
	return addr, err
}

// TransparentReceivers lists the transparent addresses of an account.
func (s *Store) TransparentReceivers(ctx context.Context,
	id engine.AccountID) ([]string, error) {

	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT address FROM addresses
		WHERE account_id = ? AND is_transparent = 1
		ORDER BY rowid`, int64(id),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addrs []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		addrs = append(addrs, a)
	}
	return addrs, rows.Err()
}
