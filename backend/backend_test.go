// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package backend

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/shieldwallet/walletbackend/address"
	"github.com/shieldwallet/walletbackend/boundary"
	"github.com/shieldwallet/walletbackend/engine"
	"github.com/shieldwallet/walletbackend/keys"
	"github.com/shieldwallet/walletbackend/memo"
	"github.com/shieldwallet/walletbackend/model"
	"github.com/shieldwallet/walletbackend/netparams"
	"github.com/shieldwallet/walletbackend/proposal"
	"github.com/shieldwallet/walletbackend/secret"
	"github.com/shieldwallet/walletbackend/walletstore"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testNet = int32(0)

var testSeed = bytes.Repeat([]byte{0x5e}, 32)

// fakeKey stands in for the engine's key derivation.  The transparent part
// is the real BIP 44 account key so the gateway's cross-check passes.
func fakeKey(params *netparams.Params, seed *secret.Material,
	account engine.AccountID) *keys.SpendingKey {

	t, err := keys.DeriveTransparentAccountKey(
		params, seed.Expose(), uint32(account),
	)
	if err != nil {
		panic(err)
	}
	fill := seed.Expose()[0] ^ byte(account)
	usk, err := keys.NewSpendingKey(
		keys.EraOrchard, t,
		secret.Wrap(bytes.Repeat([]byte{fill}, keys.SaplingKeyLen)),
		secret.Wrap(bytes.Repeat([]byte{fill}, keys.OrchardKeyLen)),
	)
	if err != nil {
		panic(err)
	}
	return usk
}

// fakeViewingKey is unique per spending key.
func fakeViewingKey(usk *keys.SpendingKey) string {
	return "uviewtest1" + hex.EncodeToString(usk.Orchard()[:1]) +
		hex.EncodeToString(usk.Transparent()[42:50])
}

// fakeAddress derives a unified address with transparent, Sapling and
// Orchard receivers from a viewing key.
func fakeAddress(net netparams.Network) func(string) string {
	return func(ufvk string) string {
		h := chainhash.DoubleHashB([]byte(ufvk))
		h2 := chainhash.DoubleHashB(h)
		ua, err := address.NewUnified(net, []address.Receiver{
			{Typecode: address.TypeP2PKH, Data: h[:20]},
			{Typecode: address.TypeSapling, Data: append(h, h2[:11]...)},
			{Typecode: address.TypeOrchard, Data: append(h2, h[:11]...)},
		})
		if err != nil {
			panic(err)
		}
		s, err := ua.Encode()
		if err != nil {
			panic(err)
		}
		return s
	}
}

type testHarness struct {
	t       *testing.T
	engine  *mockEngine
	backend *Backend
	params  *netparams.Params
	root    string
	dbData  string
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	dir := t.TempDir()
	e := &mockEngine{}
	h := &testHarness{
		t:       t,
		engine:  e,
		backend: New(e),
		params:  netparams.TestNet.Params(),
		root:    filepath.Join(dir, "cache"),
		dbData:  filepath.Join(dir, "data.db"),
	}

	e.On("DeriveSpendingKey", mock.Anything, mock.Anything, mock.Anything).
		Return(fakeKey, nil).Maybe()
	e.On("ViewingKey", mock.Anything, mock.Anything).
		Return(fakeViewingKey, nil).Maybe()
	e.On("DefaultAddress", mock.Anything, mock.Anything).
		Return(fakeAddress(netparams.TestNet), nil).Maybe()

	return h
}

// requireOK asserts that no error is pending on env.
func requireOK(t *testing.T, env *boundary.Env) {
	t.Helper()
	require.NoError(t, env.Pending())
}

// requireCode asserts that the pending error has code c and clears it.
func requireCode(t *testing.T, env *boundary.Env, c boundary.ErrorCode) error {
	t.Helper()

	err := env.Clear()
	require.Error(t, err)
	code, ok := boundary.CodeOf(err)
	require.True(t, ok, "unclassified error: %v", err)
	require.Equal(t, c, code, "error: %v", err)
	return err
}

func (h *testHarness) initData() {
	h.t.Helper()

	env := boundary.NewEnv()
	res := h.backend.InitDataDb(env, h.dbData, nil, testNet)
	requireOK(h.t, env)
	require.Equal(h.t, InitReady, res)
}

func testTreeState() []byte {
	ts := &TreeState{
		Network:     "test",
		Height:      300000,
		Hash:        "00ff",
		Time:        1700000000,
		SaplingTree: "01020304",
	}
	return ts.Marshal()
}

func (h *testHarness) createAccount(seed []byte) *model.UnifiedSpendingKey {
	h.t.Helper()

	env := boundary.NewEnv()
	usk := h.backend.CreateAccount(
		env, h.dbData, seed, testTreeState(), -1, testNet,
	)
	requireOK(h.t, env)
	require.NotNil(h.t, usk)
	return usk
}

func (h *testHarness) store() *walletstore.Store {
	h.t.Helper()

	s, err := walletstore.Open(h.dbData, netparams.TestNet)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { s.Close() })
	return s
}

// TestInitFreshStore checks that an empty store needs no seed.
func TestInitFreshStore(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.initData()

	// Running init again on a ready store is a no-op.
	h.initData()
}

// TestInitSeedRequired checks the three-way init result when a pending
// migration needs the seed.
func TestInitSeedRequired(t *testing.T) {
	t.Parallel()

	// Arrange: a wallet with an account, rolled back to the schema
	// version before seed fingerprints.
	h := newHarness(t)
	h.initData()
	h.createAccount(testSeed)

	db, err := sql.Open("sqlite", "file:"+h.dbData)
	require.NoError(t, err)
	_, err = db.Exec("ALTER TABLE accounts DROP COLUMN seed_fingerprint")
	require.NoError(t, err)
	_, err = db.Exec("PRAGMA user_version = 1")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Act: init without a seed.
	env := boundary.NewEnv()
	res := h.backend.InitDataDb(env, h.dbData, nil, testNet)

	// Assert: seed required, no error, and the version is unchanged.
	requireOK(t, env)
	require.Equal(t, InitSeedRequired, res)

	v, err := h.store().Version(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, v)

	// A seed that did not derive the account is rejected before the
	// migration records its fingerprint.
	wrongSeed := bytes.Repeat([]byte{0x11}, 32)
	res = h.backend.InitDataDb(env, h.dbData, wrongSeed, testNet)
	require.Equal(t, InitFailed, res)
	err = requireCode(t, env, boundary.ErrStore)
	require.ErrorIs(t, err, walletstore.ErrSeedMismatch)

	v, err = h.store().Version(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, v)

	// Retrying with the seed completes the migration.
	res = h.backend.InitDataDb(env, h.dbData, testSeed, testNet)
	requireOK(t, env)
	require.Equal(t, InitReady, res)
}

func TestInitInvalidNetwork(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	env := boundary.NewEnv()
	res := h.backend.InitDataDb(env, h.dbData, nil, 2)
	require.Equal(t, InitFailed, res)
	err := requireCode(t, env, boundary.ErrValidation)
	require.Contains(t, err.Error(), "Invalid network type: 2")
}

// TestCreateAccountsIncreasing checks that accounts get increasing ids and
// distinct keys.
func TestCreateAccountsIncreasing(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.initData()

	first := h.createAccount(testSeed)
	second := h.createAccount(testSeed)

	require.EqualValues(t, 0, first.Account)
	require.EqualValues(t, 1, second.Account)
	require.NotEqual(t, first.Bytes, second.Bytes)

	env := boundary.NewEnv()
	for _, usk := range []*model.UnifiedSpendingKey{first, second} {
		require.True(t, h.backend.IsValidSpendingKey(env, usk.Bytes))
		key, err := keys.Decode(usk.Bytes, keys.EraOrchard)
		require.NoError(t, err)
		key.Destroy()
	}
	requireOK(t, env)

	require.False(t, h.backend.IsValidSpendingKey(env, []byte{1, 2, 3}))
	requireOK(t, env)

	// The stored birthday is one past the tree state's height.
	b, err := h.store().AccountBirthday(context.Background(), 1)
	require.NoError(t, err)
	require.EqualValues(t, 300001, b.Height)
	require.Equal(t, []byte{1, 2, 3, 4}, b.SaplingTree)
}

func TestCreateAccountRejectsKeyMismatch(t *testing.T) {
	t.Parallel()

	e := &mockEngine{}
	b := New(e)

	// The engine derives the key for a different account than asked.
	e.On("DeriveSpendingKey", mock.Anything, mock.Anything, mock.Anything).
		Return(func(p *netparams.Params, seed *secret.Material,
			_ engine.AccountID) *keys.SpendingKey {

			return fakeKey(p, seed, 7)
		}, nil)

	env := boundary.NewEnv()
	usk := b.DeriveSpendingKey(env, testSeed, 0, testNet)
	require.Nil(t, usk)
	err := requireCode(t, env, boundary.ErrEngine)
	require.ErrorIs(t, err, errKeyMismatch)
}

func TestDeriveSpendingKey(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	env := boundary.NewEnv()

	usk := h.backend.DeriveSpendingKey(env, testSeed, 3, testNet)
	requireOK(t, env)
	require.EqualValues(t, 3, usk.Account)

	// The host's seed buffer is left untouched.
	require.Equal(t, bytes.Repeat([]byte{0x5e}, 32), testSeed)

	usk = h.backend.DeriveSpendingKey(env, testSeed, -1, testNet)
	require.Nil(t, usk)
	err := requireCode(t, env, boundary.ErrValidation)
	require.EqualError(t, err, "Invalid account ID")
}

func TestDeriveViewingKeys(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	env := boundary.NewEnv()

	seed := secret.Copy(testSeed)
	defer seed.Destroy()

	want := make([]string, 3)
	for i := range want {
		usk := fakeKey(h.params, seed, engine.AccountID(i))
		want[i] = fakeViewingKey(usk)
		usk.Destroy()
	}

	ufvks := h.backend.DeriveUnifiedFullViewingKeysFromSeed(
		env, testSeed, 3, testNet,
	)
	requireOK(t, env)
	require.Equal(t, want, ufvks)

	// The viewing key of a host spending key matches the seed path.
	usk := h.backend.DeriveSpendingKey(env, testSeed, 2, testNet)
	requireOK(t, env)
	ufvk := h.backend.DeriveUnifiedFullViewingKey(env, usk.Bytes, testNet)
	requireOK(t, env)
	require.Equal(t, want[2], ufvk)

	require.Nil(t, h.backend.DeriveUnifiedFullViewingKeysFromSeed(
		env, testSeed, 0, testNet,
	))
	err := requireCode(t, env, boundary.ErrValidation)
	require.ErrorIs(t, err, errAccountCount)

	require.Empty(t, h.backend.DeriveUnifiedFullViewingKey(
		env, []byte{1, 2, 3}, testNet,
	))
	requireCode(t, env, boundary.ErrValidation)

	require.Empty(t, h.backend.DeriveUnifiedFullViewingKey(
		env, usk.Bytes, 7,
	))
	requireCode(t, env, boundary.ErrValidation)
}

func TestDeriveUnifiedAddress(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.initData()
	h.createAccount(testSeed)

	env := boundary.NewEnv()
	current := h.backend.GetCurrentAddress(env, h.dbData, 0, testNet)
	requireOK(t, env)

	// The seed and viewing key paths agree with the stored address.
	ua := h.backend.DeriveUnifiedAddressFromSeed(env, testSeed, 0, testNet)
	requireOK(t, env)
	require.Equal(t, current, ua)

	ufvks := h.backend.DeriveUnifiedFullViewingKeysFromSeed(
		env, testSeed, 2, testNet,
	)
	requireOK(t, env)
	ua = h.backend.DeriveUnifiedAddressFromViewingKey(env, ufvks[0], testNet)
	requireOK(t, env)
	require.Equal(t, current, ua)

	other := h.backend.DeriveUnifiedAddressFromViewingKey(
		env, ufvks[1], testNet,
	)
	requireOK(t, env)
	require.NotEqual(t, current, other)
	require.True(t, h.backend.IsValidUnifiedAddress(env, other, testNet))

	require.Empty(t, h.backend.DeriveUnifiedAddressFromSeed(
		env, testSeed, -1, testNet,
	))
	err := requireCode(t, env, boundary.ErrValidation)
	require.EqualError(t, err, "Invalid account ID")

	require.Empty(t, h.backend.DeriveUnifiedAddressFromViewingKey(
		env, "", testNet,
	))
	err = requireCode(t, env, boundary.ErrValidation)
	require.ErrorIs(t, err, errEmptyViewingKey)
}

func TestDeriveUnifiedAddressEngineErrors(t *testing.T) {
	t.Parallel()

	e := &mockEngine{}
	b := New(e)
	env := boundary.NewEnv()

	// An address for the wrong network is rejected.
	e.On("DefaultAddress", mock.Anything, "uviewtest1aa").
		Return(fakeAddress(netparams.MainNet), nil).Once()
	require.Empty(t, b.DeriveUnifiedAddressFromViewingKey(
		env, "uviewtest1aa", testNet,
	))
	err := requireCode(t, env, boundary.ErrEngine)
	require.ErrorIs(t, err, address.ErrWrongNetwork)

	e.On("DefaultAddress", mock.Anything, "uviewtest1bb").
		Return("", errors.New("unknown viewing key")).Once()
	require.Empty(t, b.DeriveUnifiedAddressFromViewingKey(
		env, "uviewtest1bb", testNet,
	))
	requireCode(t, env, boundary.ErrEngine)

	e.AssertExpectations(t)
}

func TestAddresses(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.initData()
	h.createAccount(testSeed)

	env := boundary.NewEnv()
	ua := h.backend.GetCurrentAddress(env, h.dbData, 0, testNet)
	requireOK(t, env)
	require.True(t, h.backend.IsValidUnifiedAddress(env, ua, testNet))
	require.False(t, h.backend.IsValidShieldedAddress(env, ua, testNet))
	requireOK(t, env)

	taddr := h.backend.GetTransparentReceiverForUnifiedAddress(
		env, ua, testNet,
	)
	requireOK(t, env)
	require.True(t, h.backend.IsValidTransparentAddress(env, taddr, testNet))

	zaddr := h.backend.GetSaplingReceiverForUnifiedAddress(env, ua, testNet)
	requireOK(t, env)
	require.True(t, h.backend.IsValidShieldedAddress(env, zaddr, testNet))

	receivers := h.backend.ListTransparentReceivers(env, h.dbData, 0, testNet)
	requireOK(t, env)
	require.Equal(t, []string{taddr}, receivers)

	// A testnet address is invalid on mainnet, and the error says why.
	require.False(t, h.backend.IsValidUnifiedAddress(env, ua, 1))
	err := requireCode(t, env, boundary.ErrValidation)
	require.ErrorIs(t, err, address.ErrWrongNetwork)

	require.False(t, h.backend.IsValidUnifiedAddress(env, "garbage", testNet))
	err = requireCode(t, env, boundary.ErrValidation)
	require.ErrorIs(t, err, address.ErrInvalidAddress)

	require.Equal(t, "", h.backend.GetCurrentAddress(env, h.dbData, 5, testNet))
	err = requireCode(t, env, boundary.ErrStore)
	require.ErrorIs(t, err, walletstore.ErrAccountNotFound)
}

func p2pkhScript(hash []byte) []byte {
	script := []byte{0x76, 0xa9, 0x14}
	script = append(script, hash...)
	return append(script, 0x88, 0xac)
}

func TestTransparentBalances(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.initData()
	h.createAccount(testSeed)

	env := boundary.NewEnv()
	ua := h.backend.GetCurrentAddress(env, h.dbData, 0, testNet)
	taddr := h.backend.GetTransparentReceiverForUnifiedAddress(
		env, ua, testNet,
	)
	requireOK(t, env)

	decoded, err := address.Decode(h.params, taddr)
	require.NoError(t, err)
	script := p2pkhScript(decoded.Payload)

	// No chain tip yet: the anchor is unknown.
	bal := h.backend.GetVerifiedTransparentBalance(
		env, h.dbData, taddr, testNet,
	)
	require.EqualValues(t, -1, bal)
	requireCode(t, env, boundary.ErrStore)

	require.True(t, h.backend.UpdateChainTip(env, h.dbData, 300100, testNet))
	requireOK(t, env)

	// Nothing received yet: zero, not an error.
	bal = h.backend.GetVerifiedTransparentBalance(
		env, h.dbData, taddr, testNet,
	)
	requireOK(t, env)
	require.EqualValues(t, 0, bal)

	put := func(index int32, height int64) {
		ok := h.backend.PutUtxo(
			env, h.dbData, taddr, bytes.Repeat([]byte{1}, 32),
			index, script, 50000, height, testNet,
		)
		requireOK(t, env)
		require.True(t, ok)
	}
	put(0, 300000)
	put(1, 300095)

	bal = h.backend.GetVerifiedTransparentBalance(
		env, h.dbData, taddr, testNet,
	)
	requireOK(t, env)
	require.EqualValues(t, 50000, bal)

	bal = h.backend.GetTotalTransparentBalance(env, h.dbData, taddr, testNet)
	requireOK(t, env)
	require.EqualValues(t, 100000, bal)

	// A script paying elsewhere is rejected.
	ok := h.backend.PutUtxo(
		env, h.dbData, taddr, bytes.Repeat([]byte{2}, 32), 0,
		p2pkhScript(make([]byte, 20)), 1, 300000, testNet,
	)
	require.False(t, ok)
	err = requireCode(t, env, boundary.ErrValidation)
	require.ErrorIs(t, err, errScriptMismatch)

	// Shielded addresses have no transparent balance.
	bal = h.backend.GetTotalTransparentBalance(env, h.dbData, ua, testNet)
	require.EqualValues(t, -1, bal)
	requireCode(t, env, boundary.ErrValidation)
}

func TestWalletSummary(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.initData()

	h.engine.On("WalletSummary", mock.Anything, mock.Anything,
		mock.Anything, uint32(AnchorOffset)).
		Return(fn.None[engine.WalletSummary](), nil).Once()

	env := boundary.NewEnv()
	require.Nil(t, h.backend.GetWalletSummary(env, h.dbData, testNet))
	requireOK(t, env)

	summary := engine.WalletSummary{
		ChainTipHeight:     300100,
		FullyScannedHeight: 300050,
		Accounts: map[engine.AccountID]engine.AccountBalance{
			1: {Unshielded: 7},
			0: {Sapling: engine.Balance{SpendableValue: 5}},
		},
		ProgressNumerator:   1,
		ProgressDenominator: 2,
	}
	h.engine.On("WalletSummary", mock.Anything, mock.Anything,
		mock.Anything, uint32(AnchorOffset)).
		Return(fn.Some(summary), nil).Once()

	out := h.backend.GetWalletSummary(env, h.dbData, testNet)
	requireOK(t, env)
	require.NotNil(t, out, spew.Sdump(out))
	require.Len(t, out.AccountBalances, 2)
	require.EqualValues(t, 0, out.AccountBalances[0].Account)
	require.EqualValues(t, 1, out.AccountBalances[1].Account)
}

// TestPanicReleasesStores injects engine panics and checks that the call
// reports a fault, returns its sentinel and leaves both stores openable.
func TestPanicReleasesStores(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.initData()

	env := boundary.NewEnv()
	require.EqualValues(t, 0, h.backend.InitBlockMetaDb(env, h.root))
	requireOK(t, env)

	h.engine.On("WalletSummary", mock.Anything, mock.Anything,
		mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { panic("engine exploded") })
	h.engine.On("ScanCachedBlocks", mock.Anything, mock.Anything,
		mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { panic("scan exploded") })

	require.Nil(t, h.backend.GetWalletSummary(env, h.dbData, testNet))
	err := requireCode(t, env, boundary.ErrFault)
	require.Contains(t, err.Error(), "engine exploded")

	sum := h.backend.ScanBlocks(env, h.root, h.dbData, 300000, 10, testNet)
	require.Nil(t, sum)
	err = requireCode(t, env, boundary.ErrFault)
	require.Contains(t, err.Error(), "scan exploded")

	// Both stores open again.
	h.initData()
	require.EqualValues(t, -1, h.backend.GetLatestCacheHeight(env, h.root))
	requireOK(t, env)
}

func TestScanBlocks(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.initData()

	env := boundary.NewEnv()
	h.backend.InitBlockMetaDb(env, h.root)

	var metas []model.BlockMeta
	for height := int64(300000); height < 300005; height++ {
		metas = append(metas, model.BlockMeta{
			Height:    height,
			BlockHash: bytes.Repeat([]byte{byte(height)}, 32),
			BlockTime: 1700000000 + height,
		})
	}
	require.True(t, h.backend.WriteBlockMetadata(env, h.root, metas))
	requireOK(t, env)

	h.engine.On("ScanCachedBlocks", mock.Anything, h.params, mock.Anything,
		mock.Anything, engine.Height(300000), uint32(3)).
		Return(&engine.ScanSummary{
			ScannedStart:      300000,
			ScannedEnd:        300003,
			ReceivedNoteCount: 2,
		}, nil).Once()

	sum := h.backend.ScanBlocks(env, h.root, h.dbData, 300000, 3, testNet)
	requireOK(t, env)
	require.NotNil(t, sum)
	require.EqualValues(t, 2, sum.ReceivedNoteCount)

	scanned, err := h.store().MaxScannedHeight(context.Background())
	require.NoError(t, err)
	require.Equal(t, fn.Some(engine.Height(300002)), scanned)

	// Negative limits never reach the engine.
	require.Nil(t, h.backend.ScanBlocks(
		env, h.root, h.dbData, 300000, -1, testNet,
	))
	requireCode(t, env, boundary.ErrValidation)
	h.engine.AssertExpectations(t)
}

func TestBlockMetadata(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	env := boundary.NewEnv()

	// Reads before init are store errors.
	require.EqualValues(t, -1, h.backend.GetLatestCacheHeight(env, h.root))
	requireCode(t, env, boundary.ErrStore)

	require.EqualValues(t, 0, h.backend.InitBlockMetaDb(env, h.root))
	require.EqualValues(t, -1, h.backend.GetLatestCacheHeight(env, h.root))
	requireOK(t, env)

	meta := model.BlockMeta{
		Height:              500,
		BlockHash:           bytes.Repeat([]byte{9}, 32),
		BlockTime:           1,
		SaplingOutputsCount: 2,
		OrchardActionsCount: 3,
	}
	next := meta
	next.Height = 501
	require.True(t, h.backend.WriteBlockMetadata(
		env, h.root, []model.BlockMeta{meta, next},
	))
	require.EqualValues(t, 501, h.backend.GetLatestCacheHeight(env, h.root))
	require.Equal(t, &meta, h.backend.FindBlockMetadata(env, h.root, 500))
	require.Nil(t, h.backend.FindBlockMetadata(env, h.root, 502))
	requireOK(t, env)

	h.backend.RewindBlockMetadataToHeight(env, h.root, 500)
	requireOK(t, env)
	require.EqualValues(t, 500, h.backend.GetLatestCacheHeight(env, h.root))

	// A short hash is a structural error.
	bad := meta
	bad.BlockHash = bad.BlockHash[:31]
	require.False(t, h.backend.WriteBlockMetadata(
		env, h.root, []model.BlockMeta{bad},
	))
	requireCode(t, env, boundary.ErrValidation)
}

func TestNearestRewindHeight(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	env := boundary.NewEnv()

	// Below the fast path threshold the store is never opened.
	missing := filepath.Join(t.TempDir(), "absent", "data.db")
	require.EqualValues(t, 42, h.backend.GetNearestRewindHeight(
		env, missing, 42, testNet,
	))
	requireOK(t, env)
	_, err := os.Stat(missing)
	require.True(t, os.IsNotExist(err))

	h.initData()
	h.createAccount(testSeed)

	// No unspent notes: the request stands.
	require.EqualValues(t, 400000, h.backend.GetNearestRewindHeight(
		env, h.dbData, 400000, testNet,
	))
	requireOK(t, env)

	err = h.store().PutReceivedNote(context.Background(),
		&walletstore.ReceivedNote{
			ID: engine.NoteID{
				TxID:     chainhash.Hash{1},
				Protocol: proposal.Sapling,
			},
			Value:  1000,
			Height: 300500,
		},
	)
	require.NoError(t, err)

	require.EqualValues(t, 300500, h.backend.GetNearestRewindHeight(
		env, h.dbData, 400000, testNet,
	))
	require.EqualValues(t, 200, h.backend.GetNearestRewindHeight(
		env, h.dbData, 200, testNet,
	))
	requireOK(t, env)

	require.EqualValues(t, -1, h.backend.GetNearestRewindHeight(
		env, h.dbData, -5, testNet,
	))
	requireCode(t, env, boundary.ErrValidation)
}

func TestRewindToHeight(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.initData()

	env := boundary.NewEnv()
	h.backend.InitBlockMetaDb(env, h.root)

	var metas []model.BlockMeta
	for height := int64(1000); height <= 1010; height++ {
		metas = append(metas, model.BlockMeta{
			Height:    height,
			BlockHash: make([]byte, 32),
		})
	}
	require.True(t, h.backend.WriteBlockMetadata(env, h.root, metas))

	ctx := context.Background()
	s := h.store()
	for height := engine.Height(1000); height <= 1010; height++ {
		require.NoError(t, s.InsertBlock(ctx, engine.BlockMeta{
			Height: height,
		}))
	}

	require.True(t, h.backend.RewindToHeight(
		env, h.root, h.dbData, 1004, testNet,
	))
	requireOK(t, env)

	require.EqualValues(t, 1004, h.backend.GetLatestCacheHeight(env, h.root))
	scanned, err := s.MaxScannedHeight(ctx)
	require.NoError(t, err)
	require.Equal(t, fn.Some(engine.Height(1004)), scanned)
}

func TestSuggestScanRanges(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.initData()

	ranges := []engine.ScanRange{
		{Start: 300100, End: 300200, Priority: engine.PriorityChainTip},
		{Start: 300000, End: 300100, Priority: engine.PriorityHistoric},
	}
	h.engine.On("SuggestScanRanges", mock.Anything, mock.Anything).
		Return(ranges, nil).Once()

	env := boundary.NewEnv()
	out := h.backend.SuggestScanRanges(env, h.dbData, testNet)
	requireOK(t, env)
	require.Equal(t, []*model.ScanRange{
		{StartHeight: 300100, EndHeight: 300200, Priority: 50},
		{StartHeight: 300000, EndHeight: 300100, Priority: 20},
	}, out)

	queue, err := h.store().ScanQueue(context.Background())
	require.NoError(t, err)
	require.Equal(t, ranges, queue)
}

func TestSubtreeRootsAndTip(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.initData()

	env := boundary.NewEnv()
	roots := []model.SubtreeRoot{{
		RootHash:              bytes.Repeat([]byte{4}, 32),
		CompletingBlockHeight: 300000,
	}}
	require.True(t, h.backend.PutSaplingSubtreeRoots(
		env, h.dbData, 0, roots, testNet,
	))
	requireOK(t, env)

	require.False(t, h.backend.PutSaplingSubtreeRoots(
		env, h.dbData, -1, roots, testNet,
	))
	requireCode(t, env, boundary.ErrValidation)

	stored, err := h.store().SaplingSubtreeRoots(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.EqualValues(t, 300000, stored[0].CompletingBlockHeight)
}

func TestDecryptAndStoreTransaction(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.initData()

	raw := []byte{0x05, 0x00, 0x00, 0x80}
	h.engine.On("DecryptAndStoreTransaction", mock.Anything, h.params,
		mock.Anything, raw).Return(nil).Once()

	env := boundary.NewEnv()
	require.True(t, h.backend.DecryptAndStoreTransaction(
		env, h.dbData, raw, testNet,
	))
	requireOK(t, env)
	h.engine.AssertExpectations(t)
}

// TestUpdateChainTipMaximum checks that the maximum height is refused as a
// chain tip since the next target height would not exist.
func TestUpdateChainTipMaximum(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.initData()
	env := boundary.NewEnv()

	require.False(t, h.backend.UpdateChainTip(
		env, h.dbData, math.MaxUint32, testNet,
	))
	err := requireCode(t, env, boundary.ErrValidation)
	require.ErrorIs(t, err, walletstore.ErrInvalidTip)

	require.True(t, h.backend.UpdateChainTip(
		env, h.dbData, math.MaxUint32-1, testNet,
	))
	requireOK(t, env)

	heights, err := h.store().TargetAndAnchorHeights(
		context.Background(), 10,
	)
	require.NoError(t, err)
	require.Equal(t, engine.Height(math.MaxUint32),
		heights.UnwrapOr(walletstore.AnchorHeights{}).Target)
}

func TestBranchIDForHeight(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	env := boundary.NewEnv()

	require.EqualValues(t, 0x76b809bb, h.backend.BranchIDForHeight(
		env, 419200, 1,
	))
	require.EqualValues(t, 0, h.backend.BranchIDForHeight(env, 1, 1))
	requireOK(t, env)

	require.EqualValues(t, -1, h.backend.BranchIDForHeight(env, 1, 7))
	requireCode(t, env, boundary.ErrValidation)
}

func TestTreeStateParse(t *testing.T) {
	t.Parallel()

	ts, err := ParseTreeState(testTreeState())
	require.NoError(t, err)
	require.Equal(t, &TreeState{
		Network:     "test",
		Height:      300000,
		Hash:        "00ff",
		Time:        1700000000,
		SaplingTree: "01020304",
	}, ts)

	_, err = ParseTreeState([]byte{0x0a, 0x05, 'a'})
	require.ErrorIs(t, err, errTreeState)

	// Mainnet tree states are rejected for a testnet account.
	ts.Network = "main"
	_, err = ts.birthday(netparams.TestNet.Params(), fn.None[engine.Height]())
	require.ErrorIs(t, err, errTreeState)
}

func testSaplingAddress(t *testing.T) string {
	t.Helper()

	a, err := address.NewSapling(
		netparams.TestNet, bytes.Repeat([]byte{0x33}, address.SaplingLen),
	)
	require.NoError(t, err)
	s, err := a.Encode()
	require.NoError(t, err)
	return s
}

func testTransparentAddress(t *testing.T) string {
	t.Helper()

	a, err := address.NewTransparent(
		netparams.TestNet, address.P2PKH,
		bytes.Repeat([]byte{0x44}, address.HashLen),
	)
	require.NoError(t, err)
	s, err := a.Encode()
	require.NoError(t, err)
	return s
}

func transferProposal(pay proposal.Payment, anchor uint32) *proposal.Proposal {
	return &proposal.Proposal{
		FeeRule:         proposal.FeeRuleZIP317,
		MinTargetHeight: anchor + AnchorOffset,
		AnchorHeight:    anchor,
		Steps: []proposal.Step{{
			Payments: []proposal.Payment{pay},
			Fee:      10000,
		}},
	}
}

// TestTransferMemoHandling checks that memos reach the proposal for
// shielded recipients and are dropped for transparent ones.
func TestTransferMemoHandling(t *testing.T) {
	t.Parallel()

	zaddr := testSaplingAddress(t)
	taddr := testTransparentAddress(t)
	text := []byte("thanks for lunch")

	padded, err := memo.FromBytes(text)
	require.NoError(t, err)
	wantMemo := padded.Encode()

	testCases := []struct {
		name     string
		to       string
		wantMemo []byte
	}{{
		name:     "shielded recipient keeps memo",
		to:       zaddr,
		wantMemo: wantMemo,
	}, {
		name:     "transparent recipient drops memo",
		to:       taddr,
		wantMemo: nil,
	}}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			h.initData()
			h.createAccount(testSeed)

			pay := proposal.Payment{
				Recipient: tc.to,
				Amount:    25000,
				Memo:      tc.wantMemo,
			}
			matchReq := mock.MatchedBy(func(req engine.TransferRequest) bool {
				return len(req.Payments) == 1 &&
					req.Payments[0].Recipient == tc.to &&
					bytes.Equal(req.Payments[0].Memo, tc.wantMemo)
			})
			h.engine.On("ProposeTransfer", mock.Anything, h.params,
				mock.Anything, engine.AccountID(0), matchReq,
				proposal.FeeRuleZIP317, uint32(AnchorOffset)).
				Return(transferProposal(pay, 300000), nil).Once()

			env := boundary.NewEnv()
			enc := h.backend.ProposeTransfer(
				env, h.dbData, 0, tc.to, 25000, text, testNet, true,
			)
			requireOK(t, env)
			h.engine.AssertExpectations(t)

			p, err := proposal.Decode(enc)
			require.NoError(t, err)
			require.Equal(t, tc.wantMemo, p.Steps[0].Payments[0].Memo,
				spew.Sdump(p))
		})
	}
}

func TestTransferRejectsBadInput(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.initData()
	zaddr := testSaplingAddress(t)
	env := boundary.NewEnv()

	// An oversized memo never reaches the engine.
	enc := h.backend.ProposeTransfer(
		env, h.dbData, 0, zaddr, 1, make([]byte, memo.Size+1), testNet,
		true,
	)
	require.Nil(t, enc)
	err := requireCode(t, env, boundary.ErrValidation)
	require.ErrorIs(t, err, errInvalidMemo)

	enc = h.backend.ProposeTransfer(
		env, h.dbData, 0, zaddr, -1, nil, testNet, true,
	)
	require.Nil(t, enc)
	requireCode(t, env, boundary.ErrValidation)

	enc = h.backend.ProposeTransfer(
		env, h.dbData, 0, "not an address", 1, nil, testNet, true,
	)
	require.Nil(t, enc)
	requireCode(t, env, boundary.ErrValidation)
}

func TestProposeShielding(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.initData()
	h.createAccount(testSeed)

	h.engine.On("ProposeShielding", mock.Anything, h.params, mock.Anything,
		engine.AccountID(0), btcutil.Amount(ShieldingThreshold),
		fn.None[*memo.Memo](), proposal.FeeRuleFixed,
		uint32(AnchorOffset)).Return(nil, nil).Once()

	// Nothing to shield is not an error.
	env := boundary.NewEnv()
	require.Nil(t, h.backend.ProposeShielding(
		env, h.dbData, 0, nil, testNet, false,
	))
	requireOK(t, env)

	shielding := &proposal.Proposal{
		FeeRule:         proposal.FeeRuleZIP317,
		MinTargetHeight: 300010,
		AnchorHeight:    300000,
		Steps: []proposal.Step{{
			TransparentInputs: []proposal.Outpoint{{
				TxID: chainhash.Hash{7},
			}},
			Fee:         10000,
			IsShielding: true,
		}},
	}
	h.engine.On("ProposeShielding", mock.Anything, h.params, mock.Anything,
		engine.AccountID(0), btcutil.Amount(ShieldingThreshold),
		mock.MatchedBy(func(m fn.Option[*memo.Memo]) bool {
			return m.IsSome()
		}), proposal.FeeRuleZIP317, uint32(AnchorOffset)).
		Return(shielding, nil).Once()

	enc := h.backend.ProposeShielding(
		env, h.dbData, 0, []byte("shield"), testNet, true,
	)
	requireOK(t, env)

	p, err := proposal.Decode(enc)
	require.NoError(t, err)
	require.True(t, p.Steps[0].IsShielding)
	h.engine.AssertExpectations(t)
}

func TestCreateProposedTransaction(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.initData()
	usk := h.createAccount(testSeed)

	env := boundary.NewEnv()
	require.True(t, h.backend.UpdateChainTip(env, h.dbData, 300005, testNet))
	requireOK(t, env)

	pay := proposal.Payment{
		Recipient: testSaplingAddress(t),
		Amount:    1000,
	}
	enc, err := transferProposal(pay, 300000).Encode()
	require.NoError(t, err)

	txid := chainhash.Hash{0xab, 0xcd}
	h.engine.On("CreateProposedTransactions", mock.Anything, h.params,
		mock.Anything, mock.Anything, mock.Anything, engine.Prover{
			SpendParamsPath:  "spend.params",
			OutputParamsPath: "output.params",
		}).Return([]chainhash.Hash{txid}, nil).Once()

	out := h.backend.CreateProposedTransaction(
		env, h.dbData, enc, usk.Bytes, "spend.params", "output.params",
		testNet,
	)
	requireOK(t, env)
	require.Equal(t, txid[:], out)

	// A key for an account the wallet does not hold.
	other := fakeKey(h.params, secret.Copy(bytes.Repeat([]byte{9}, 32)), 0)
	stranger, err := model.EncodeSpendingKey(0, other)
	require.NoError(t, err)

	out = h.backend.CreateProposedTransaction(
		env, h.dbData, enc, stranger.Bytes, "", "", testNet,
	)
	require.Nil(t, out)
	err = requireCode(t, env, boundary.ErrValidation)
	require.EqualError(t, err, "Spending key not recognized.")

	// An anchor above the known tip.
	future, err := transferProposal(pay, 300006).Encode()
	require.NoError(t, err)
	out = h.backend.CreateProposedTransaction(
		env, h.dbData, future, usk.Bytes, "", "", testNet,
	)
	require.Nil(t, out)
	requireCode(t, env, boundary.ErrValidation)

	// Garbage proposal bytes.
	out = h.backend.CreateProposedTransaction(
		env, h.dbData, []byte{1, 2, 3}, usk.Bytes, "", "", testNet,
	)
	require.Nil(t, out)
	err = requireCode(t, env, boundary.ErrValidation)
	require.Contains(t, err.Error(), "Could not decode proposal")

	h.engine.AssertExpectations(t)
}

func TestGetMemoAsUtf8(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.initData()
	h.createAccount(testSeed)

	s := h.store()
	ctx := context.Background()
	txid := chainhash.Hash{0x10}

	put := func(index uint16, m []byte) {
		err := s.PutReceivedNote(ctx, &walletstore.ReceivedNote{
			ID: engine.NoteID{
				TxID:        txid,
				Protocol:    proposal.Sapling,
				OutputIndex: index,
			},
			Value:  100,
			Height: 300000,
			Memo:   m,
		})
		require.NoError(t, err)
	}

	text, err := memo.FromText("hello")
	require.NoError(t, err)
	empty, err := memo.FromBytes(nil)
	require.NoError(t, err)
	arbitrary := make([]byte, memo.Size)
	arbitrary[0] = 0xff

	put(0, text.Encode())
	put(1, empty.Encode())
	put(2, arbitrary)
	put(3, nil)

	env := boundary.NewEnv()
	get := func(index int32) string {
		return h.backend.GetMemoAsUtf8(
			env, h.dbData, txid[:], int32(proposal.Sapling), index,
			testNet,
		)
	}

	require.Equal(t, "hello", get(0))
	require.Equal(t, "", get(1))
	requireOK(t, env)

	// A stored memo that is not text is a data error, not bad input.
	require.Equal(t, "", get(2))
	err = requireCode(t, env, boundary.ErrStore)
	require.ErrorIs(t, err, memo.ErrNotText)

	// Unrecovered and unknown notes are distinguishable from an empty
	// memo.
	for _, index := range []int32{3, 9} {
		require.Equal(t, "", get(index))
		err = requireCode(t, env, boundary.ErrStore)
		require.ErrorIs(t, err, errMemoNotAvailable)
	}

	require.Equal(t, "", get(-1))
	requireCode(t, env, boundary.ErrValidation)
}
