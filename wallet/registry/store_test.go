// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
	"github.com/btcsuite/walletcore/wallet/coinselect"
	"github.com/stretchr/testify/require"
)

const defaultDBTimeout = 10 * time.Second

// newTestDB creates a temporary bdb walletdb.
func newTestDB(t *testing.T) walletdb.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "registry.db")
	db, err := walletdb.Create(
		"bdb", dbPath, true, defaultDBTimeout, false,
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// TestDBStoreRoundTrip checks outputs written to the store are loaded back
// under the right account.
func TestDBStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := NewDBStore(newTestDB(t))
	require.NoError(t, err)

	btc := makeUTXOs(1, 5000, 3000)
	btc[1].ScriptType = coinselect.P2TR
	bch := makeUTXOs(2, 7000)

	keyBTC := AccountKey{Asset: coinselect.AssetBTC, Account: 2}
	keyBCH := AccountKey{Asset: coinselect.AssetBCH, Account: 0}
	require.NoError(t, store.PutUTXOs(keyBTC, btc))
	require.NoError(t, store.PutUTXOs(keyBCH, bch))

	loaded := make(map[AccountKey][]coinselect.UTXO)
	err = store.ForEachUTXO(func(k AccountKey, u coinselect.UTXO) error {
		loaded[k] = append(loaded[k], u)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, loaded[keyBTC], 2)
	require.Len(t, loaded[keyBCH], 1)
	for _, u := range loaded[keyBTC] {
		require.Equal(t, coinselect.AssetBTC, u.Asset)
		if u.OutPoint == btc[1].OutPoint {
			require.Equal(t, coinselect.P2TR, u.ScriptType)
			require.Equal(t, uint64(3000), u.Amount)
			require.Equal(t, uint32(3), u.Confirmations)
		}
	}

	require.NoError(t, store.DeleteUTXOs(
		keyBTC, []wire.OutPoint{btc[0].OutPoint},
	))
	var n int
	require.NoError(t, store.ForEachUTXO(
		func(AccountKey, coinselect.UTXO) error {
			n++
			return nil
		},
	))
	require.Equal(t, 2, n)
}

// TestRegistryPersistence checks a registry reloads tracked outputs and
// forgets spent ones across restarts.
func TestRegistryPersistence(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	store, err := NewDBStore(db)
	require.NoError(t, err)

	r, _, _ := testRegistry(t, store)
	require.NoError(t, r.AddUTXOs(
		coinselect.AssetBTC, 0, makeUTXOs(1, 5000, 3000, 2000)...,
	))

	lease, err := r.Spend(
		context.Background(), coinselect.AssetBTC, 0, selectFor(4000),
	)
	require.NoError(t, err)
	require.NoError(t, r.MarkSpent(lease.ID))

	reopened, err := NewDBStore(db)
	require.NoError(t, err)
	r2, _, _ := testRegistry(t, reopened)

	require.Equal(t, uint64(5000), r2.Balance(coinselect.AssetBTC, 0))
	require.Len(t, r2.Candidates(coinselect.AssetBTC, 0), 2)
}
