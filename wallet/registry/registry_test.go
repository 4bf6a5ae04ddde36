// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/walletcore/wallet/coinselect"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/require"
)

var testTime = time.Unix(1700000000, 0)

// makeUTXOs creates P2PKH outputs with distinct outpoints, one per amount.
func makeUTXOs(seed byte, amounts ...uint64) []coinselect.UTXO {
	utxos := make([]coinselect.UTXO, 0, len(amounts))
	for i, amt := range amounts {
		utxos = append(utxos, coinselect.UTXO{
			OutPoint: wire.OutPoint{
				Hash:  chainhash.Hash{seed, byte(i)},
				Index: uint32(i),
			},
			Amount:        amt,
			ScriptType:    coinselect.P2PKH,
			Confirmations: 3,
		})
	}
	return utxos
}

// testRegistry creates a started registry with a test clock and a forced
// sweep ticker.
func testRegistry(t *testing.T, store Store) (*Registry, *clock.TestClock,
	*ticker.Force) {

	t.Helper()

	testClock := clock.NewTestClock(testTime)
	sweep := ticker.NewForce(time.Hour)

	r, err := New(Config{
		Store:         store,
		Clock:         testClock,
		LeaseDuration: time.Minute,
		SweepTicker:   sweep,
	})
	require.NoError(t, err)
	require.NoError(t, r.Start())
	t.Cleanup(func() {
		require.NoError(t, r.Stop())
	})

	return r, testClock, sweep
}

// selectFor returns a SelectFunc choosing target at a zero fee rate.
func selectFor(target uint64) SelectFunc {
	return func(c []coinselect.UTXO) (*coinselect.Result, error) {
		return coinselect.Select(coinselect.Request{
			Asset:        coinselect.AssetBTC,
			TargetAmount: target,
			AllowChange:  true,
		}, c)
	}
}

// TestSpendLeasesInputs checks leased outputs are withheld from later
// selections until released.
func TestSpendLeasesInputs(t *testing.T) {
	t.Parallel()

	r, _, _ := testRegistry(t, nil)
	utxos := makeUTXOs(1, 5000, 3000, 2000)
	require.NoError(t, r.AddUTXOs(coinselect.AssetBTC, 0, utxos...))
	require.Equal(t, uint64(10000), r.Balance(coinselect.AssetBTC, 0))

	lease, err := r.Spend(
		context.Background(), coinselect.AssetBTC, 0, selectFor(4000),
	)
	require.NoError(t, err)
	require.Len(t, lease.Result.Inputs, 1)
	require.Equal(t, uint64(5000), lease.Result.Inputs[0].Amount)
	require.Equal(t, testTime.Add(time.Minute), lease.Expiration)
	require.Equal(t, uint64(5000), r.Balance(coinselect.AssetBTC, 0))
	require.Len(t, r.Leases(), 1)

	require.NoError(t, r.Release(lease.ID))
	require.Equal(t, uint64(10000), r.Balance(coinselect.AssetBTC, 0))
	require.ErrorIs(t, r.Release(lease.ID), ErrUnknownLease)
}

// TestSpendSelectionError checks a failed selection leases nothing.
func TestSpendSelectionError(t *testing.T) {
	t.Parallel()

	r, _, _ := testRegistry(t, nil)
	require.NoError(t, r.AddUTXOs(
		coinselect.AssetBTC, 0, makeUTXOs(1, 5000)...,
	))

	_, err := r.Spend(
		context.Background(), coinselect.AssetBTC, 0, selectFor(9000),
	)
	require.ErrorIs(t, err, coinselect.ErrInsufficientFunds)
	require.Empty(t, r.Leases())

	_, err = r.Spend(
		context.Background(), coinselect.AssetBTC, 7, selectFor(1),
	)
	require.ErrorIs(t, err, coinselect.ErrNoCoinsToSelect)
}

// TestMarkSpent checks settled outputs stop being tracked.
func TestMarkSpent(t *testing.T) {
	t.Parallel()

	r, _, _ := testRegistry(t, nil)
	require.NoError(t, r.AddUTXOs(
		coinselect.AssetBTC, 0, makeUTXOs(1, 5000, 3000)...,
	))

	lease, err := r.Spend(
		context.Background(), coinselect.AssetBTC, 0, selectFor(6000),
	)
	require.NoError(t, err)
	require.NoError(t, r.MarkSpent(lease.ID))

	require.Empty(t, r.Candidates(coinselect.AssetBTC, 0))
	require.Empty(t, r.Leases())
	require.ErrorIs(t, r.MarkSpent(lease.ID), ErrUnknownLease)
}

// TestLeaseExpiry checks expired leases free their inputs immediately and
// are removed by the sweeper.
func TestLeaseExpiry(t *testing.T) {
	t.Parallel()

	r, testClock, sweep := testRegistry(t, nil)
	require.NoError(t, r.AddUTXOs(
		coinselect.AssetBTC, 0, makeUTXOs(1, 5000)...,
	))

	lease, err := r.Spend(
		context.Background(), coinselect.AssetBTC, 0, selectFor(1000),
	)
	require.NoError(t, err)
	require.Empty(t, r.Candidates(coinselect.AssetBTC, 0))

	testClock.SetTime(testTime.Add(time.Minute))
	require.Len(t, r.Candidates(coinselect.AssetBTC, 0), 1)
	require.Empty(t, r.Leases())

	// The stale lease is still held until the sweeper runs.
	r.mu.RLock()
	require.Len(t, r.leases, 1)
	r.mu.RUnlock()

	sweep.Force <- testClock.Now()
	require.Eventually(t, func() bool {
		r.mu.RLock()
		defer r.mu.RUnlock()
		return len(r.leases) == 0
	}, time.Second, 10*time.Millisecond)

	// A lease released after expiry is unknown.
	require.ErrorIs(t, r.Release(lease.ID), ErrUnknownLease)
}

// TestMarkSpentAfterExpiry checks a lease that expired before its
// transaction was settled still removes the spent outputs, dropping any
// later lease that took them.
func TestMarkSpentAfterExpiry(t *testing.T) {
	t.Parallel()

	r, testClock, sweep := testRegistry(t, nil)
	require.NoError(t, r.AddUTXOs(
		coinselect.AssetBTC, 0, makeUTXOs(1, 5000, 3000)...,
	))

	first, err := r.Spend(
		context.Background(), coinselect.AssetBTC, 0, selectFor(4000),
	)
	require.NoError(t, err)

	// The lease lapses and is swept while the transaction is pending.
	testClock.SetTime(testTime.Add(time.Minute))
	sweep.Force <- testClock.Now()
	require.Eventually(t, func() bool {
		r.mu.RLock()
		defer r.mu.RUnlock()
		return len(r.leases) == 0
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, uint64(8000), r.Balance(coinselect.AssetBTC, 0))

	// A second spend takes the freed output along with the other one.
	second, err := r.Spend(
		context.Background(), coinselect.AssetBTC, 0, selectFor(7000),
	)
	require.NoError(t, err)
	require.Len(t, second.Result.Inputs, 2)

	// Settling the expired lease removes its output and drops the
	// conflicting lease.
	require.NoError(t, r.MarkSpent(first.ID))
	require.Empty(t, r.Leases())
	candidates := r.Candidates(coinselect.AssetBTC, 0)
	require.Len(t, candidates, 1)
	require.Equal(t, uint64(3000), candidates[0].Amount)
	require.ErrorIs(t, r.MarkSpent(second.ID), ErrUnknownLease)
	require.ErrorIs(t, r.MarkSpent(first.ID), ErrUnknownLease)
}

// TestExpiredLeaseRetention checks an expired lease can no longer be settled
// once the retention period lapses.
func TestExpiredLeaseRetention(t *testing.T) {
	t.Parallel()

	r, testClock, _ := testRegistry(t, nil)
	require.NoError(t, r.AddUTXOs(
		coinselect.AssetBTC, 0, makeUTXOs(1, 5000)...,
	))

	lease, err := r.Spend(
		context.Background(), coinselect.AssetBTC, 0, selectFor(1000),
	)
	require.NoError(t, err)

	testClock.SetTime(lease.Expiration.Add(DefaultExpiredLeaseRetention))
	require.ErrorIs(t, r.MarkSpent(lease.ID), ErrUnknownLease)
	require.Len(t, r.Candidates(coinselect.AssetBTC, 0), 1)

	r.mu.RLock()
	require.Empty(t, r.expired)
	r.mu.RUnlock()
}

// TestConcurrentSpendExclusive checks concurrent spends against an account
// never lease the same output.
func TestConcurrentSpendExclusive(t *testing.T) {
	t.Parallel()

	const numCoins = 50

	r, _, _ := testRegistry(t, nil)
	amounts := make([]uint64, numCoins)
	for i := range amounts {
		amounts[i] = 1000
	}
	require.NoError(t, r.AddUTXOs(
		coinselect.AssetBTC, 0, makeUTXOs(1, amounts...)...,
	))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		seen   = make(map[wire.OutPoint]struct{})
		dups   []wire.OutPoint
		leases int
	)
	for i := 0; i < numCoins+10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			lease, err := r.Spend(
				context.Background(), coinselect.AssetBTC, 0,
				selectFor(1000),
			)
			if err != nil {
				return
			}

			mu.Lock()
			defer mu.Unlock()

			leases++
			for _, in := range lease.Result.Inputs {
				if _, ok := seen[in.OutPoint]; ok {
					dups = append(dups, in.OutPoint)
				}
				seen[in.OutPoint] = struct{}{}
			}
		}()
	}
	wg.Wait()

	require.Empty(t, dups, "outputs leased twice")
	require.Equal(t, numCoins, leases)
	require.Empty(t, r.Candidates(coinselect.AssetBTC, 0))
}

// TestSpendContextCancelled checks a cancelled spend waits for nothing and
// leases nothing.
func TestSpendContextCancelled(t *testing.T) {
	t.Parallel()

	r, _, _ := testRegistry(t, nil)
	require.NoError(t, r.AddUTXOs(
		coinselect.AssetBTC, 0, makeUTXOs(1, 5000)...,
	))

	ctx, cancel := context.WithCancel(context.Background())

	// Cancel while the selection runs.
	_, err := r.Spend(ctx, coinselect.AssetBTC, 0,
		func(c []coinselect.UTXO) (*coinselect.Result, error) {
			cancel()
			return selectFor(1000)(c)
		},
	)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, r.Leases())
	require.Len(t, r.Candidates(coinselect.AssetBTC, 0), 1)

	// A spend blocked behind another one gives up on cancellation.
	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = r.Spend(context.Background(), coinselect.AssetBTC, 0,
			func(c []coinselect.UTXO) (*coinselect.Result, error) {
				close(started)
				<-hold
				return nil, coinselect.ErrNoSelectedCoins
			},
		)
	}()
	<-started

	ctx, cancel = context.WithTimeout(
		context.Background(), 50*time.Millisecond,
	)
	defer cancel()

	_, err = r.Spend(ctx, coinselect.AssetBTC, 0, selectFor(1000))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(hold)
}

// TestAddUTXOs checks validation of added outputs.
func TestAddUTXOs(t *testing.T) {
	t.Parallel()

	r, _, _ := testRegistry(t, nil)

	err := r.AddUTXOs(coinselect.AssetBTC, 0, makeUTXOs(1, 0)...)
	require.ErrorIs(t, err, ErrInvalidAmount)

	err = r.AddUTXOs(coinselect.AssetID(99), 0, makeUTXOs(1, 10)...)
	require.ErrorIs(t, err, coinselect.ErrUnknownAsset)

	utxos := makeUTXOs(1, 5000)
	require.NoError(t, r.AddUTXOs(coinselect.AssetBTC, 0, utxos...))

	_, err = r.Spend(
		context.Background(), coinselect.AssetBTC, 0, selectFor(1000),
	)
	require.NoError(t, err)

	err = r.AddUTXOs(coinselect.AssetBTC, 0, utxos...)
	require.ErrorIs(t, err, ErrOutputAlreadyLeased)

	// Accounts are isolated from each other.
	require.Empty(t, r.Candidates(coinselect.AssetBTC, 1))
	require.Empty(t, r.Candidates(coinselect.AssetBCH, 0))
}

// TestCandidatesAreCopies checks callers cannot alter registry state
// through a snapshot.
func TestCandidatesAreCopies(t *testing.T) {
	t.Parallel()

	r, _, _ := testRegistry(t, nil)
	require.NoError(t, r.AddUTXOs(
		coinselect.AssetBTC, 0, makeUTXOs(1, 5000, 6000)...,
	))

	c := r.Candidates(coinselect.AssetBTC, 0)
	c[0].Amount = 1

	require.Equal(t, uint64(11000), r.Balance(coinselect.AssetBTC, 0))
}
