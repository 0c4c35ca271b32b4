// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shieldwallet/walletbackend/secret"
)

var (
	// ErrReversion is returned when the store's version is newer than
	// the latest version this package knows.
	ErrReversion = errors.New("reverting to a previous version is not " +
		"supported")

	// ErrSeedRequired is returned by Init when a pending migration needs
	// the wallet seed and none was supplied.  The store is left at the
	// version it had before the failing migration.
	ErrSeedRequired = errors.New("the wallet seed is required to " +
		"complete a pending migration")

	// ErrSeedMismatch is returned by Init when the supplied seed did not
	// derive one of the wallet's accounts.
	ErrSeedMismatch = errors.New("the supplied seed does not belong to " +
		"this wallet")
)

// MigrationFunc applies one schema version inside tx.
type MigrationFunc func(ctx context.Context, tx *sql.Tx,
	seed fn.Option[*secret.Material]) error

// Version pairs a schema version number with the migration that produces it
// from the previous version.
type Version struct {
	Number    uint32
	Migration MigrationFunc

	// SeedGated marks a migration that records facts derived from the
	// seed, so the seed must be checked against existing accounts first.
	SeedGated bool
}

// GetLatestVersion returns the highest version number in versions.
func GetLatestVersion(versions []Version) uint32 {
	var latest uint32
	for _, v := range versions {
		if v.Number > latest {
			latest = v.Number
		}
	}
	return latest
}

// VersionsToApply returns the versions above current in ascending order.
func VersionsToApply(current uint32, versions []Version) []Version {
	var toApply []Version
	for _, v := range versions {
		if v.Number > current {
			toApply = append(toApply, v)
		}
	}
	sort.Slice(toApply, func(i, j int) bool {
		return toApply[i].Number < toApply[j].Number
	})
	return toApply
}

// upgrade brings the database to the latest of versions, applying each
// migration in its own transaction together with the version bump.
func upgrade(ctx context.Context, db *sql.DB, versions []Version,
	seed fn.Option[*secret.Material]) error {

	current, err := userVersion(ctx, db)
	if err != nil {
		return err
	}

	latest := GetLatestVersion(versions)
	switch {
	case current > latest:
		return ErrReversion
	case current == latest:
		return nil
	}

	for _, v := range VersionsToApply(current, versions) {
		log.Infof("Applying wallet store migration #%d", v.Number)

		if err := applyVersion(ctx, db, v, seed); err != nil {
			if errors.Is(err, ErrSeedRequired) {
				return err
			}
			return fmt.Errorf("migration %d: %w", v.Number, err)
		}
	}
	return nil
}

func applyVersion(ctx context.Context, db *sql.DB, v Version,
	seed fn.Option[*secret.Material]) (err error) {

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Errorf("Rollback of migration %d failed: %v",
					v.Number, rbErr)
			}
		}
	}()

	if v.Migration != nil {
		if err = v.Migration(ctx, tx, seed); err != nil {
			return err
		}
	}

	// The pragma takes no bind parameters.  Number is a uint32 so the
	// formatted statement is always a plain integer.
	_, err = tx.ExecContext(
		ctx, fmt.Sprintf("PRAGMA user_version = %d", v.Number),
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func userVersion(ctx context.Context, db *sql.DB) (uint32, error) {
	var v uint32
	err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("unable to read schema version: %w", err)
	}
	return v, nil
}
