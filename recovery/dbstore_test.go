// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package recovery

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
	"github.com/btcsuite/walletcore/payload"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const defaultDBTimeout = 10 * time.Second

// newTestStore creates a DBStore over a temporary bdb walletdb.
func newTestStore(t *testing.T) *DBStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "blobs.db")
	db, err := walletdb.Create(
		"bdb", dbPath, true, defaultDBTimeout, false,
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	store, err := NewDBStore(db)
	require.NoError(t, err)

	return store
}

// TestDBStore checks blobs are stored against their checksum.
func TestDBStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.FetchEncryptedBlob(ctx, testGUID)
	require.ErrorIs(t, err, ErrNotFound)

	blob := []byte(`{"version":4}`)
	err = store.SaveEncryptedBlob(ctx, testGUID, blob, "bogus")
	require.ErrorIs(t, err, ErrChecksumMismatch)

	sum := payload.Checksum(blob)
	require.NoError(t, store.SaveEncryptedBlob(ctx, testGUID, blob, sum))

	got, err := store.FetchEncryptedBlob(ctx, testGUID)
	require.NoError(t, err)
	require.Equal(t, blob, got)

	gotSum, err := store.Checksum(testGUID)
	require.NoError(t, err)
	require.Equal(t, sum, gotSum)
}

// TestMigrateToDBStore checks the service can recover from one store and
// write the migrated payload to a local one.
func TestMigrateToDBStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	local := newTestStore(t)

	fetcher := &mockFetcher{}
	fetcher.On("FetchEncryptedBlob", mock.Anything, testGUID).Return(
		testBlob(t, testGUID, testSharedKey, testPassword), nil,
	)

	svc := New(Config{Fetcher: fetcher, Saver: local, Codec: testCodec})
	_, err := svc.Migrate(ctx, testCredentials(), nil)
	require.NoError(t, err)

	// The stored blob can be recovered from the local store alone.
	svc = New(Config{Fetcher: local, Codec: testCodec})
	p, err := svc.Recover(ctx, testCredentials())
	require.NoError(t, err)
	require.Equal(t, testGUID, p.GUID)
}

// TestCachingFetcher checks remote blobs are cached and served while the
// remote is unreachable.
func TestCachingFetcher(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blob := []byte("blob")

	remote := &mockFetcher{}
	remote.On("FetchEncryptedBlob", mock.Anything, testGUID).
		Return(blob, nil).Once()
	remote.On("FetchEncryptedBlob", mock.Anything, testGUID).
		Return(nil, ErrUnreachable).Once()
	remote.On("FetchEncryptedBlob", mock.Anything, testGUID).
		Return(nil, ErrNotFound).Once()

	f := &CachingFetcher{Remote: remote, Local: newTestStore(t)}

	got, err := f.FetchEncryptedBlob(ctx, testGUID)
	require.NoError(t, err)
	require.Equal(t, blob, got)

	got, err = f.FetchEncryptedBlob(ctx, testGUID)
	require.NoError(t, err)
	require.Equal(t, blob, got)

	_, err = f.FetchEncryptedBlob(ctx, testGUID)
	require.ErrorIs(t, err, ErrNotFound)
}
