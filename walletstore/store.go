// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package walletstore is the persistent wallet database: accounts, addresses,
// chain state, received outputs and the scan queue.  It is a single SQLite
// file whose schema is versioned with PRAGMA user_version and upgraded by
// Init.
package walletstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shieldwallet/walletbackend/engine"
	"github.com/shieldwallet/walletbackend/netparams"
	"github.com/shieldwallet/walletbackend/secret"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

var (
	// ErrNotInitialized is returned by operations on a store whose schema
	// is older than the latest version.
	ErrNotInitialized = errors.New("wallet database is not initialized")

	// ErrNetworkMismatch is returned when a store created for one network
	// is opened for another.
	ErrNetworkMismatch = errors.New("wallet database belongs to a " +
		"different network")
)

// Store is an open wallet database.  A Store is safe for concurrent use but
// the backend opens one per call and closes it before returning.
type Store struct {
	db   *sql.DB
	path string
	net  netparams.Network
}

// Open opens the database at path for net, creating the file if needed.  The
// schema is not touched until Init.
func Open(path string, net netparams.Network) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, err
		}
	}

	dsn := "file:" + path +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open wallet database: %w", err)
	}

	// SQLite serializes writers anyway and a single connection keeps
	// transactions from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to open wallet database: %w", err)
	}

	return &Store{db: db, path: path, net: net}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path is the file the store was opened from.
func (s *Store) Path() string {
	return s.path
}

// Network is the network the store was opened for.
func (s *Store) Network() netparams.Network {
	return s.net
}

// Version reports the schema version currently on disk.
func (s *Store) Version(ctx context.Context) (uint32, error) {
	return userVersion(ctx, s.db)
}

// LatestVersion is the schema version Init upgrades to.
func LatestVersion() uint32 {
	return GetLatestVersion(versions)
}

// SeedVerifier reports whether seed derived account, whose stored viewing key
// is ufvk.
type SeedVerifier func(seed *secret.Material, account engine.AccountID,
	ufvk string) (bool, error)

type initConfig struct {
	verify SeedVerifier
}

// InitOption configures Init.
type InitOption func(*initConfig)

// WithSeedVerifier makes Init check a supplied seed against every existing
// account before a seed-gated migration runs.  A seed that fails the check
// is rejected with ErrSeedMismatch and no migration is applied.
func WithSeedVerifier(v SeedVerifier) InitOption {
	return func(cfg *initConfig) {
		cfg.verify = v
	}
}

// seedGated reports whether a migration above version current needs the
// seed.  Version 0 has no accounts to check.
func seedGated(current uint32) bool {
	if current == 0 {
		return false
	}
	for _, v := range VersionsToApply(current, versions) {
		if v.SeedGated {
			return true
		}
	}
	return false
}

// checkSeed runs verify over every account.
func (s *Store) checkSeed(ctx context.Context, seed *secret.Material,
	verify SeedVerifier) error {

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, ufvk FROM accounts ORDER BY id",
	)
	if err != nil {
		return err
	}
	type account struct {
		id   engine.AccountID
		ufvk string
	}
	var accounts []account
	for rows.Next() {
		var (
			id   int64
			ufvk string
		)
		if err := rows.Scan(&id, &ufvk); err != nil {
			rows.Close()
			return err
		}
		accounts = append(accounts, account{engine.AccountID(id), ufvk})
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, a := range accounts {
		ok, err := verify(seed, a.id, a.ufvk)
		if err != nil {
			return fmt.Errorf("unable to verify seed for account "+
				"%d: %w", a.id, err)
		}
		if !ok {
			log.Warnf("Supplied seed does not derive account %d",
				a.id)
			return ErrSeedMismatch
		}
	}
	return nil
}

// Init creates or upgrades the schema.  seed is only consulted by migrations
// that need it; if one does and seed is None, ErrSeedRequired is returned and
// every earlier migration stays applied.
func (s *Store) Init(ctx context.Context, seed fn.Option[*secret.Material],
	opts ...InitOption) error {

	var cfg initConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	before, err := userVersion(ctx, s.db)
	if err != nil {
		return err
	}
	if before > 0 {
		if err := s.checkNetwork(ctx); err != nil {
			return err
		}
	}

	if seed.IsSome() && cfg.verify != nil && seedGated(before) {
		err := s.checkSeed(ctx, seed.UnwrapOr(nil), cfg.verify)
		if err != nil {
			return err
		}
	}

	if err := upgrade(ctx, s.db, versions, seed); err != nil {
		// A seed-gated migration may leave the base schema in place.
		if before == 0 {
			if metaErr := s.ensureMeta(ctx); metaErr != nil {
				log.Errorf("Unable to record wallet network: %v",
					metaErr)
			}
		}
		return err
	}
	return s.ensureMeta(ctx)
}

// ensureMeta writes the singleton metadata row if the base schema exists and
// the row is missing.
func (s *Store) ensureMeta(ctx context.Context) error {
	v, err := userVersion(ctx, s.db)
	if err != nil || v == 0 {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO wallet_meta (id, network, next_account_id)
		VALUES (0, ?, 0)
		ON CONFLICT (id) DO NOTHING`, s.net.Code(),
	)
	if err != nil {
		return err
	}
	return s.checkNetwork(ctx)
}

func (s *Store) checkNetwork(ctx context.Context) error {
	var code uint32
	err := s.db.QueryRowContext(
		ctx, "SELECT network FROM wallet_meta WHERE id = 0",
	).Scan(&code)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return err
	case code != s.net.Code():
		return fmt.Errorf("%w: stored %d, requested %v",
			ErrNetworkMismatch, code, s.net)
	}
	return nil
}

// ready fails unless the schema is at the latest version and belongs to the
// store's network.
func (s *Store) ready(ctx context.Context) error {
	v, err := userVersion(ctx, s.db)
	if err != nil {
		return err
	}
	if v != LatestVersion() {
		return ErrNotInitialized
	}
	return s.checkNetwork(ctx)
}

// update runs f in a write transaction.
func (s *Store) update(ctx context.Context, f func(*sql.Tx) error) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := f(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Errorf("Rollback failed: %v", rbErr)
		}
		return err
	}
	return tx.Commit()
}
