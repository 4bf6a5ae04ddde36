// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package feeest

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL is how long fetched rates are reused.
const DefaultCacheTTL = time.Minute

// ratesKey is the cache key of the only entry.
const ratesKey = "rates"

// Cached is an Estimator that reuses the rates of a source for a while and
// collapses concurrent fetches into one.
type Cached struct {
	src   RateSource
	cache *ttlcache.Cache[string, *Rates]
	group singleflight.Group
}

// A compile-time assertion to ensure Cached meets the Estimator and
// RateSource interfaces.
var (
	_ Estimator  = (*Cached)(nil)
	_ RateSource = (*Cached)(nil)
)

// NewCached wraps src with a cache holding rates for ttl.
func NewCached(src RateSource, ttl time.Duration) *Cached {
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}

	return &Cached{
		src: src,
		cache: ttlcache.New[string, *Rates](
			ttlcache.WithTTL[string, *Rates](ttl),
			ttlcache.WithDisableTouchOnHit[string, *Rates](),
		),
	}
}

// FetchRates returns the cached rates, fetching them when missing or stale.
func (c *Cached) FetchRates(ctx context.Context) (*Rates, error) {
	if item := c.cache.Get(ratesKey); item != nil {
		return item.Value(), nil
	}

	v, err, shared := c.group.Do(ratesKey, func() (interface{}, error) {
		rates, err := c.src.FetchRates(ctx)
		if err != nil {
			return nil, err
		}
		c.cache.Set(ratesKey, rates, ttlcache.DefaultTTL)

		return rates, nil
	})
	if err != nil {
		log.Debugf("Unable to refresh fee rates: %v", err)
		return nil, err
	}
	if shared {
		log.Tracef("Shared in-flight fee rate fetch")
	}

	return v.(*Rates), nil
}

// RateFor returns the rate for the speed from the cached rates.
func (c *Cached) RateFor(ctx context.Context, speed Speed) (uint64, error) {
	rates, err := c.FetchRates(ctx)
	if err != nil {
		return 0, err
	}
	return rates.For(speed)
}

// Invalidate drops the cached rates.
func (c *Cached) Invalidate() {
	c.cache.Delete(ratesKey)
}
