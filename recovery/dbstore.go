// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package recovery

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/btcsuite/walletcore/payload"
)

var (
	// blobBucketKey is the top level bucket holding a nested bucket per
	// wallet GUID.
	blobBucketKey = []byte("recovery-blobs")

	blobKey     = []byte("blob")
	checksumKey = []byte("checksum")
)

// DBStore is a BlobFetcher and BlobSaver keeping blobs in a walletdb
// database.  It is used to cache fetched payloads and to hold migrated ones.
type DBStore struct {
	db walletdb.DB
}

// A compile-time assertion to ensure DBStore meets the BlobFetcher and
// BlobSaver interfaces.
var (
	_ BlobFetcher = (*DBStore)(nil)
	_ BlobSaver   = (*DBStore)(nil)
)

// NewDBStore creates the blob bucket in db if needed and returns a store
// using it.
func NewDBStore(db walletdb.DB) (*DBStore, error) {
	err := walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		_, err := tx.CreateTopLevelBucket(blobBucketKey)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create blob bucket: %w", err)
	}

	return &DBStore{db: db}, nil
}

// FetchEncryptedBlob returns the stored blob of a wallet.
func (s *DBStore) FetchEncryptedBlob(ctx context.Context,
	guid string) ([]byte, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var blob []byte
	err := walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		wallet := tx.ReadBucket(blobBucketKey).NestedReadBucket(
			[]byte(guid),
		)
		if wallet == nil {
			return ErrNotFound
		}

		v := wallet.Get(blobKey)
		if v == nil {
			return ErrNotFound
		}

		// Values are only valid for the life of the transaction.
		blob = append([]byte(nil), v...)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return blob, nil
}

// SaveEncryptedBlob stores the blob of a wallet after checking it against
// its checksum.
func (s *DBStore) SaveEncryptedBlob(ctx context.Context, guid string,
	blob []byte, checksum string) error {

	if err := ctx.Err(); err != nil {
		return err
	}

	if sum := payload.Checksum(blob); sum != checksum {
		return fmt.Errorf("%w: got %s, want %s", ErrChecksumMismatch,
			checksum, sum)
	}

	return walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		wallet, err := tx.ReadWriteBucket(blobBucketKey).
			CreateBucketIfNotExists([]byte(guid))
		if err != nil {
			return err
		}

		if err := wallet.Put(blobKey, blob); err != nil {
			return err
		}
		return wallet.Put(checksumKey, []byte(checksum))
	})
}

// Checksum returns the checksum of the stored blob of a wallet.
func (s *DBStore) Checksum(guid string) (string, error) {
	var checksum string
	err := walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		wallet := tx.ReadBucket(blobBucketKey).NestedReadBucket(
			[]byte(guid),
		)
		if wallet == nil {
			return ErrNotFound
		}

		checksum = string(wallet.Get(checksumKey))
		return nil
	})
	return checksum, err
}
