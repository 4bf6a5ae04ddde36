// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package recovery

import (
	"context"

	"github.com/btcsuite/walletcore/payload"
)

// CachingFetcher fetches blobs from a remote fetcher and keeps a local copy.
// The local copy is served when the remote is unreachable.
type CachingFetcher struct {
	Remote BlobFetcher
	Local  *DBStore
}

// A compile-time assertion to ensure CachingFetcher meets the BlobFetcher
// interface.
var _ BlobFetcher = (*CachingFetcher)(nil)

// FetchEncryptedBlob fetches the blob remotely and refreshes the local copy.
func (c *CachingFetcher) FetchEncryptedBlob(ctx context.Context,
	guid string) ([]byte, error) {

	blob, err := c.Remote.FetchEncryptedBlob(ctx, guid)
	switch {
	case err == nil:
		err := c.Local.SaveEncryptedBlob(
			ctx, guid, blob, payload.Checksum(blob),
		)
		if err != nil {
			log.Warnf("Unable to cache payload of wallet %s: %v",
				guid, err)
		}
		return blob, nil

	case isTransient(err):
		cached, cacheErr := c.Local.FetchEncryptedBlob(ctx, guid)
		if cacheErr != nil {
			return nil, err
		}

		log.Infof("Storage unavailable (%v), using cached payload of "+
			"wallet %s", err, guid)

		return cached, nil

	default:
		return nil, err
	}
}
