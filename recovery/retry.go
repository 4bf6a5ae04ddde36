// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package recovery

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3

	// DefaultInitialInterval is the delay before the first retry.
	DefaultInitialInterval = 500 * time.Millisecond

	// DefaultMaxInterval caps the delay between retries.
	DefaultMaxInterval = 5 * time.Second
)

// RetryFetcher retries transient storage failures with exponential backoff.
// Only ErrUnreachable and ErrTimeout are retried.
type RetryFetcher struct {
	// Fetcher is the wrapped fetcher.
	Fetcher BlobFetcher

	// MaxRetries bounds the retries after the first attempt.
	MaxRetries uint64

	// InitialInterval is the delay before the first retry.
	InitialInterval time.Duration

	// MaxInterval caps the delay between retries.
	MaxInterval time.Duration
}

// A compile-time assertion to ensure RetryFetcher meets the BlobFetcher
// interface.
var _ BlobFetcher = (*RetryFetcher)(nil)

// NewRetryFetcher wraps f with the default retry policy.
func NewRetryFetcher(f BlobFetcher) *RetryFetcher {
	return &RetryFetcher{
		Fetcher:         f,
		MaxRetries:      DefaultMaxRetries,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
	}
}

// isTransient returns whether a fetch failure may succeed when retried.
func isTransient(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrTimeout)
}

// FetchEncryptedBlob fetches the blob, retrying transient failures.
func (r *RetryFetcher) FetchEncryptedBlob(ctx context.Context,
	guid string) ([]byte, error) {

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.InitialInterval
	policy.MaxInterval = r.MaxInterval
	policy.MaxElapsedTime = 0

	var blob []byte
	fetch := func() error {
		var err error
		blob, err = r.Fetcher.FetchEncryptedBlob(ctx, guid)
		switch {
		case err == nil:
			return nil
		case isTransient(err):
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	notify := func(err error, wait time.Duration) {
		log.Debugf("Fetch of wallet %s failed, retrying in %v: %v",
			guid, wait, err)
	}

	err := backoff.RetryNotify(
		fetch, backoff.WithContext(
			backoff.WithMaxRetries(policy, r.MaxRetries), ctx,
		), notify,
	)
	if err != nil {
		return nil, err
	}

	return blob, nil
}
