// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletstore

import (
	"context"
	"database/sql"
	"encoding/binary"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shieldwallet/walletbackend/secret"
	"golang.org/x/crypto/blake2b"
)

// versions lists every schema version in the order it was introduced.
// Append new migrations; never edit a released one.
var versions = []Version{
	{Number: 1, Migration: createBaseSchema},
	{Number: 2, Migration: addSeedFingerprints, SeedGated: true},
}

const baseSchema = `
CREATE TABLE wallet_meta (
	id INTEGER PRIMARY KEY CHECK (id = 0),
	network INTEGER NOT NULL,
	next_account_id INTEGER NOT NULL,
	chain_tip_height INTEGER
);

CREATE TABLE accounts (
	id INTEGER PRIMARY KEY,
	ufvk TEXT NOT NULL UNIQUE,
	birthday_height INTEGER NOT NULL,
	recover_until_height INTEGER,
	birthday_sapling_tree BLOB,
	birthday_orchard_tree BLOB
);

CREATE TABLE addresses (
	account_id INTEGER NOT NULL REFERENCES accounts(id),
	address TEXT NOT NULL UNIQUE,
	is_transparent INTEGER NOT NULL,
	is_current INTEGER NOT NULL
);

CREATE TABLE blocks (
	height INTEGER PRIMARY KEY,
	hash BLOB NOT NULL,
	time INTEGER NOT NULL,
	sapling_output_count INTEGER NOT NULL,
	orchard_action_count INTEGER NOT NULL
);

CREATE TABLE transparent_outputs (
	txid BLOB NOT NULL,
	output_index INTEGER NOT NULL,
	address TEXT NOT NULL,
	script BLOB NOT NULL,
	value INTEGER NOT NULL,
	height INTEGER NOT NULL,
	spent_txid BLOB,
	spent_height INTEGER,
	PRIMARY KEY (txid, output_index)
);

CREATE TABLE received_notes (
	txid BLOB NOT NULL,
	protocol INTEGER NOT NULL,
	output_index INTEGER NOT NULL,
	account_id INTEGER NOT NULL REFERENCES accounts(id),
	value INTEGER NOT NULL,
	memo BLOB,
	height INTEGER NOT NULL,
	spent_txid BLOB,
	spent_height INTEGER,
	PRIMARY KEY (txid, protocol, output_index)
);

CREATE TABLE sapling_subtree_roots (
	shard_index INTEGER PRIMARY KEY,
	root_hash BLOB NOT NULL,
	completing_height INTEGER NOT NULL
);

CREATE TABLE scan_queue (
	start_height INTEGER NOT NULL,
	end_height INTEGER NOT NULL,
	priority INTEGER NOT NULL,
	CHECK (start_height < end_height)
);
`

// createBaseSchema creates every table of the first release.  The network
// is filled in by Init right after the migration runs.
func createBaseSchema(ctx context.Context, tx *sql.Tx,
	_ fn.Option[*secret.Material]) error {

	_, err := tx.ExecContext(ctx, baseSchema)
	return err
}

// addSeedFingerprints tags every account with the fingerprint of the seed it
// was derived from.  Wallets that already hold accounts can only be migrated
// with the seed at hand.
func addSeedFingerprints(ctx context.Context, tx *sql.Tx,
	seed fn.Option[*secret.Material]) error {

	_, err := tx.ExecContext(
		ctx, "ALTER TABLE accounts ADD COLUMN seed_fingerprint BLOB",
	)
	if err != nil {
		return err
	}

	var count int
	err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts").
		Scan(&count)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	if seed.IsNone() {
		return ErrSeedRequired
	}

	fp := SeedFingerprint(seed.UnwrapOr(nil))
	_, err = tx.ExecContext(
		ctx, "UPDATE accounts SET seed_fingerprint = ?", fp[:],
	)
	return err
}

// SeedFingerprint returns the BLAKE2b-256 digest of the length-prefixed
// seed.  It identifies a seed without revealing it.
func SeedFingerprint(seed *secret.Material) [32]byte {
	var fp [32]byte
	if seed == nil {
		return fp
	}

	h, _ := blake2b.New256(nil)
	seedBytes := seed.Expose()
	var lenPrefix [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenPrefix[:], uint64(len(seedBytes)))
	h.Write(lenPrefix[:n])
	h.Write(seedBytes)
	copy(fp[:], h.Sum(nil))
	return fp
}
