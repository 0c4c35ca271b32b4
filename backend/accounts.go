// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package backend

import (
	"crypto/subtle"
	"errors"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shieldwallet/walletbackend/address"
	"github.com/shieldwallet/walletbackend/boundary"
	"github.com/shieldwallet/walletbackend/engine"
	"github.com/shieldwallet/walletbackend/keys"
	"github.com/shieldwallet/walletbackend/model"
	"github.com/shieldwallet/walletbackend/netparams"
	"github.com/shieldwallet/walletbackend/param"
	"github.com/shieldwallet/walletbackend/secret"
	"github.com/shieldwallet/walletbackend/walletstore"
)

// errKeyMismatch is returned when the engine derives a transparent key that
// differs from the BIP 44 account key for the same seed and account.
var errKeyMismatch = errors.New("derived transparent key does not match " +
	"the account")

// InitDataDb creates or migrates the wallet database.  It returns InitReady,
// InitSeedRequired when a pending migration needs the seed and none was
// given, or InitFailed.
func (b *Backend) InitDataDb(env *boundary.Env, dbData string, seed []byte,
	network int32) int32 {

	return boundary.Call(env, "initDataDb", InitFailed, func() (int32, error) {
		params, err := param.NetworkParams(network)
		if err != nil {
			return InitFailed, boundary.Validation("", err)
		}

		seedOpt := fn.None[*secret.Material]()
		if seed != nil {
			m := secret.Copy(seed)
			defer m.Destroy()
			seedOpt = fn.Some(m)
		}

		return withData(dbData, params.Network,
			func(s *walletstore.Store) (int32, error) {
				err := s.Init(
					callContext(), seedOpt,
					walletstore.WithSeedVerifier(
						b.seedVerifier(params),
					),
				)
				switch {
				case errors.Is(err, walletstore.ErrSeedRequired):
					log.Infof("Wallet database %s needs the "+
						"seed to migrate", dbData)
					return InitSeedRequired, nil
				case err != nil:
					return InitFailed, boundary.Store(
						"Error while initializing data DB",
						err,
					)
				}
				return InitReady, nil
			},
		)
	})
}

// seedVerifier checks a seed by re-deriving an account's viewing key.
func (b *Backend) seedVerifier(
	params *netparams.Params) walletstore.SeedVerifier {

	return func(seed *secret.Material, account engine.AccountID,
		ufvk string) (bool, error) {

		got, err := b.viewingKey(params, seed, account)
		if err != nil {
			return false, err
		}
		return subtle.ConstantTimeCompare([]byte(got), []byte(ufvk)) == 1,
			nil
	}
}

// CreateAccount derives the next account from seed, records it with the
// birthday taken from treeState and returns its spending key.  recoverUntil
// is ignored when negative.
func (b *Backend) CreateAccount(env *boundary.Env, dbData string, seed []byte,
	treeState []byte, recoverUntil int64,
	network int32) *model.UnifiedSpendingKey {

	return boundary.Call(env, "createAccount", nil,
		func() (*model.UnifiedSpendingKey, error) {
			params, err := param.NetworkParams(network)
			if err != nil {
				return nil, boundary.Validation("", err)
			}

			until := fn.None[engine.Height]()
			if recoverUntil >= 0 {
				h, err := param.Height(recoverUntil)
				if err != nil {
					return nil, boundary.Validation("", err)
				}
				until = fn.Some(h)
			}

			ts, err := ParseTreeState(treeState)
			if err != nil {
				return nil, boundary.Validation("", err)
			}
			birthday, err := ts.birthday(params, until)
			if err != nil {
				return nil, boundary.Validation("", err)
			}

			seedMat := secret.Copy(seed)
			defer seedMat.Destroy()

			return withData(dbData, params.Network,
				func(s *walletstore.Store) (*model.UnifiedSpendingKey,
					error) {

					return b.createAccount(
						s, params, seedMat, birthday,
					)
				},
			)
		},
	)
}

func (b *Backend) createAccount(s *walletstore.Store, params *netparams.Params,
	seed *secret.Material, birthday *walletstore.Birthday) (
	*model.UnifiedSpendingKey, error) {

	ctx := callContext()
	id, err := s.NextAccountID(ctx)
	if err != nil {
		return nil, storeErr("Error while creating account", err)
	}

	usk, err := b.deriveKey(params, seed, id)
	if err != nil {
		return nil, err
	}
	defer usk.Destroy()

	ufvk, err := b.engine.ViewingKey(params, usk)
	if err != nil {
		return nil, boundary.Engine("Error deriving viewing key", err)
	}
	ua, err := b.defaultAddress(params, ufvk)
	if err != nil {
		return nil, err
	}

	acct := &walletstore.Account{
		ID:              id,
		ViewingKey:      ufvk,
		Birthday:        *birthday,
		Address:         ua,
		SeedFingerprint: walletstore.SeedFingerprint(seed),
	}
	taddr, err := address.TransparentReceiver(params, ua)
	switch {
	case err == nil:
		acct.TransparentReceivers = []string{taddr}
	case !errors.Is(err, address.ErrNoTransparentReceiver):
		return nil, boundary.Engine("Engine returned an invalid "+
			"address", err)
	}

	if err := s.InsertAccount(ctx, acct); err != nil {
		return nil, storeErr("Error while creating account", err)
	}
	log.Infof("Created account %d with birthday %d", id,
		birthday.Height)

	return model.EncodeSpendingKey(id, usk)
}

// deriveKey asks the engine for the spending key of account and checks its
// transparent component against the BIP 44 account key.
func (b *Backend) deriveKey(params *netparams.Params, seed *secret.Material,
	account engine.AccountID) (*keys.SpendingKey, error) {

	usk, err := b.engine.DeriveSpendingKey(params, seed, account)
	if err != nil {
		return nil, boundary.Engine("Error deriving spending key", err)
	}
	if !usk.HasTransparent() {
		return usk, nil
	}

	want, err := keys.DeriveTransparentAccountKey(
		params, seed.Expose(), uint32(account),
	)
	if err != nil {
		usk.Destroy()
		return nil, boundary.Engine("Error deriving spending key", err)
	}
	defer want.Destroy()

	if subtle.ConstantTimeCompare(want.Expose(), usk.Transparent()) != 1 {
		usk.Destroy()
		return nil, boundary.Engine("Error deriving spending key",
			errKeyMismatch)
	}
	return usk, nil
}

// DeriveSpendingKey derives the spending key of account without touching any
// store.
func (b *Backend) DeriveSpendingKey(env *boundary.Env, seed []byte,
	account int32, network int32) *model.UnifiedSpendingKey {

	return boundary.Call(env, "deriveSpendingKey", nil,
		func() (*model.UnifiedSpendingKey, error) {
			params, err := param.NetworkParams(network)
			if err != nil {
				return nil, boundary.Validation("", err)
			}
			id, err := param.AccountID(account)
			if err != nil {
				return nil, boundary.Validation("", err)
			}

			m := secret.Copy(seed)
			defer m.Destroy()

			usk, err := b.deriveKey(params, m, id)
			if err != nil {
				return nil, err
			}
			defer usk.Destroy()

			return model.EncodeSpendingKey(id, usk)
		},
	)
}

var (
	errAccountCount = errors.New("accounts argument must be greater " +
		"than zero")

	errEmptyViewingKey = errors.New("Viewing key is empty")
)

// viewingKey derives the unified full viewing key of account from seed.
func (b *Backend) viewingKey(params *netparams.Params, seed *secret.Material,
	account engine.AccountID) (string, error) {

	usk, err := b.deriveKey(params, seed, account)
	if err != nil {
		return "", err
	}
	defer usk.Destroy()

	ufvk, err := b.engine.ViewingKey(params, usk)
	if err != nil {
		return "", boundary.Engine("Error deriving viewing key", err)
	}
	return ufvk, nil
}

// defaultAddress asks the engine for the default unified address of ufvk and
// checks that it is a unified address for params.
func (b *Backend) defaultAddress(params *netparams.Params,
	ufvk string) (string, error) {

	ua, err := b.engine.DefaultAddress(params, ufvk)
	if err != nil {
		return "", boundary.Engine("Error deriving address", err)
	}
	ok, err := address.IsValidUnified(params, ua)
	if err == nil && !ok {
		err = address.ErrNotUnified
	}
	if err != nil {
		return "", boundary.Engine("Engine returned an invalid "+
			"address", err)
	}
	return ua, nil
}

// DeriveUnifiedFullViewingKey returns the encoded viewing key of a host
// spending key.
func (b *Backend) DeriveUnifiedFullViewingKey(env *boundary.Env, usk []byte,
	network int32) string {

	return boundary.Call(env, "deriveUnifiedFullViewingKey", "",
		func() (string, error) {
			params, err := param.NetworkParams(network)
			if err != nil {
				return "", boundary.Validation("", err)
			}
			key, err := keys.Decode(usk, keys.EraOrchard)
			if err != nil {
				return "", boundary.Validation("", err)
			}
			defer key.Destroy()

			ufvk, err := b.engine.ViewingKey(params, key)
			if err != nil {
				return "", boundary.Engine("Error deriving "+
					"viewing key", err)
			}
			return ufvk, nil
		},
	)
}

// DeriveUnifiedFullViewingKeysFromSeed returns the viewing keys of accounts
// 0 through numberOfAccounts-1.
func (b *Backend) DeriveUnifiedFullViewingKeysFromSeed(env *boundary.Env,
	seed []byte, numberOfAccounts int32, network int32) []string {

	return boundary.Call(env, "deriveUnifiedFullViewingKeysFromSeed", nil,
		func() ([]string, error) {
			params, err := param.NetworkParams(network)
			if err != nil {
				return nil, boundary.Validation("", err)
			}
			if numberOfAccounts <= 0 {
				return nil, boundary.Validation("",
					errAccountCount)
			}

			m := secret.Copy(seed)
			defer m.Destroy()

			n := int(numberOfAccounts)
			arr := model.NewArrayBuilder(n, func() string {
				return ""
			})
			for i := 0; i < n; i++ {
				ufvk, err := b.viewingKey(
					params, m, engine.AccountID(i),
				)
				if err != nil {
					return nil, err
				}
				if err := arr.Set(i, ufvk); err != nil {
					return nil, err
				}
			}
			return arr.Finish()
		},
	)
}

// DeriveUnifiedAddressFromSeed returns the default unified address of
// account without touching any store.
func (b *Backend) DeriveUnifiedAddressFromSeed(env *boundary.Env, seed []byte,
	accountIndex int32, network int32) string {

	return boundary.Call(env, "deriveUnifiedAddressFromSeed", "",
		func() (string, error) {
			params, err := param.NetworkParams(network)
			if err != nil {
				return "", boundary.Validation("", err)
			}
			id, err := param.AccountID(accountIndex)
			if err != nil {
				return "", boundary.Validation("", err)
			}

			m := secret.Copy(seed)
			defer m.Destroy()

			ufvk, err := b.viewingKey(params, m, id)
			if err != nil {
				return "", err
			}
			return b.defaultAddress(params, ufvk)
		},
	)
}

// DeriveUnifiedAddressFromViewingKey returns the default unified address of
// an encoded viewing key.
func (b *Backend) DeriveUnifiedAddressFromViewingKey(env *boundary.Env,
	ufvk string, network int32) string {

	return boundary.Call(env, "deriveUnifiedAddressFromViewingKey", "",
		func() (string, error) {
			params, err := param.NetworkParams(network)
			if err != nil {
				return "", boundary.Validation("", err)
			}
			if ufvk == "" {
				return "", boundary.Validation("",
					errEmptyViewingKey)
			}
			return b.defaultAddress(params, ufvk)
		},
	)
}

// IsValidSpendingKey reports whether usk decodes as a spending key of the
// current era.  Invalid input is not an error.
func (b *Backend) IsValidSpendingKey(env *boundary.Env, usk []byte) bool {
	return boundary.Call(env, "isValidSpendingKey", false,
		func() (bool, error) {
			key, err := keys.Decode(usk, keys.EraOrchard)
			if err != nil {
				log.Debugf("Spending key rejected: %v", err)
				return false, nil
			}
			key.Destroy()
			return true, nil
		},
	)
}

// GetCurrentAddress returns the current unified address of account.
func (b *Backend) GetCurrentAddress(env *boundary.Env, dbData string,
	account int32, network int32) string {

	return boundary.Call(env, "getCurrentAddress", "", func() (string, error) {
		net, err := param.Network(network)
		if err != nil {
			return "", boundary.Validation("", err)
		}
		id, err := param.AccountID(account)
		if err != nil {
			return "", boundary.Validation("", err)
		}

		return withData(dbData, net,
			func(s *walletstore.Store) (string, error) {
				addr, err := s.CurrentAddress(callContext(), id)
				return addr, storeErr(
					"Error while fetching address", err,
				)
			},
		)
	})
}

// ListTransparentReceivers returns the transparent addresses of account.
func (b *Backend) ListTransparentReceivers(env *boundary.Env, dbData string,
	account int32, network int32) []string {

	return boundary.Call(env, "listTransparentReceivers", nil,
		func() ([]string, error) {
			net, err := param.Network(network)
			if err != nil {
				return nil, boundary.Validation("", err)
			}
			id, err := param.AccountID(account)
			if err != nil {
				return nil, boundary.Validation("", err)
			}

			addrs, err := withData(dbData, net,
				func(s *walletstore.Store) ([]string, error) {
					a, err := s.TransparentReceivers(
						callContext(), id,
					)
					return a, storeErr("Error while "+
						"listing transparent receivers",
						err)
				},
			)
			if err != nil {
				return nil, err
			}

			arr := model.NewArrayBuilder(len(addrs), func() string {
				return ""
			})
			for i, a := range addrs {
				if err := arr.Set(i, a); err != nil {
					return nil, err
				}
			}
			return arr.Finish()
		},
	)
}
