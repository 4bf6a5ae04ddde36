// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package registry tracks the spendable outputs of each wallet account and
// serializes spends against them.
//
// Outputs chosen by a spend are leased rather than removed.  A lease keeps
// the outputs out of later selections until it is settled with MarkSpent
// once the transaction is broadcast, returned with Release, or expires.
// Expired leases are ignored immediately and removed by a background sweeper.
// An expired lease can still be settled with MarkSpent for the configured
// retention period, so a broadcast that outlived its lease does not leave
// the spent outputs selectable.
package registry

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/walletcore/wallet/coinselect"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
)

const (
	// DefaultLeaseDuration is how long outputs chosen by a spend stay
	// reserved when no duration is configured.
	DefaultLeaseDuration = 10 * time.Minute

	// DefaultSweepInterval is the interval expired leases are removed at
	// when no sweep ticker is configured.
	DefaultSweepInterval = time.Minute

	// DefaultExpiredLeaseRetention is how long an expired lease can still
	// be settled when no retention is configured.
	DefaultExpiredLeaseRetention = time.Hour
)

// AccountKey identifies an account of an asset.
type AccountKey struct {
	Asset   coinselect.AssetID
	Account uint32
}

// String returns the key in asset/account form.
func (k AccountKey) String() string {
	return fmt.Sprintf("%v/%d", k.Asset, k.Account)
}

// LeaseID identifies a lease.
type LeaseID [32]byte

// String returns the hex encoding of the id.
func (id LeaseID) String() string {
	return fmt.Sprintf("%x", id[:])
}

// Lease is a reservation of the inputs of a selection.
type Lease struct {
	// ID identifies the lease for Release and MarkSpent.
	ID LeaseID

	// Key is the account the inputs belong to.
	Key AccountKey

	// Result is the selection the lease was taken for.
	Result *coinselect.Result

	// Expiration is the time after which the inputs become spendable
	// again.
	Expiration time.Time
}

// SelectFunc chooses inputs from a snapshot of the available outputs of an
// account.
type SelectFunc func(candidates []coinselect.UTXO) (*coinselect.Result,
	error)

// Config holds the dependencies of a Registry.
type Config struct {
	// Store persists tracked outputs.  Outputs are only held in memory
	// when nil.
	Store Store

	// Clock is the time source for lease expiry.
	Clock clock.Clock

	// LeaseDuration is how long a spend reserves its inputs.
	LeaseDuration time.Duration

	// SweepTicker drives the removal of expired leases.
	SweepTicker ticker.Ticker

	// ExpiredLeaseRetention is how long after expiry a lease can still be
	// settled with MarkSpent.
	ExpiredLeaseRetention time.Duration
}

// account is the in-memory state of one account.
type account struct {
	// sem is held for the whole of a spend.
	sem chan struct{}

	utxos  map[wire.OutPoint]coinselect.UTXO
	leased map[wire.OutPoint]LeaseID
}

func newAccount() *account {
	return &account{
		sem:    make(chan struct{}, 1),
		utxos:  make(map[wire.OutPoint]coinselect.UTXO),
		leased: make(map[wire.OutPoint]LeaseID),
	}
}

// Registry is the set of spendable outputs of all wallet accounts.  It is
// safe for concurrent use.  Spends against the same account are serialized
// while spends against different accounts proceed in parallel.
type Registry struct {
	started int32 // To be used atomically.
	stopped int32 // To be used atomically.

	cfg Config

	// mu guards the maps below.
	mu       sync.RWMutex
	accounts map[AccountKey]*account
	leases   map[LeaseID]*Lease

	// expired holds lapsed leases that may still be settled.
	expired map[LeaseID]*Lease

	quit chan struct{}
	wg   sync.WaitGroup
}

// New creates a registry and loads the outputs held by the configured store.
func New(cfg Config) (*Registry, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	if cfg.LeaseDuration == 0 {
		cfg.LeaseDuration = DefaultLeaseDuration
	}
	if cfg.SweepTicker == nil {
		cfg.SweepTicker = ticker.New(DefaultSweepInterval)
	}
	if cfg.ExpiredLeaseRetention == 0 {
		cfg.ExpiredLeaseRetention = DefaultExpiredLeaseRetention
	}

	r := &Registry{
		cfg:      cfg,
		accounts: make(map[AccountKey]*account),
		leases:   make(map[LeaseID]*Lease),
		expired:  make(map[LeaseID]*Lease),
		quit:     make(chan struct{}),
	}

	if cfg.Store == nil {
		return r, nil
	}

	var loaded int
	err := cfg.Store.ForEachUTXO(func(key AccountKey,
		u coinselect.UTXO) error {

		r.accountLocked(key).utxos[u.OutPoint] = u
		loaded++

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to load outputs: %w", err)
	}

	log.Infof("Loaded %d outputs across %d accounts", loaded,
		len(r.accounts))

	return r, nil
}

// Start launches the lease sweeper.
func (r *Registry) Start() error {
	if !atomic.CompareAndSwapInt32(&r.started, 0, 1) {
		return nil
	}

	r.cfg.SweepTicker.Resume()

	r.wg.Add(1)
	go r.sweeper()

	return nil
}

// Stop halts the lease sweeper and fails pending spends.
func (r *Registry) Stop() error {
	if !atomic.CompareAndSwapInt32(&r.stopped, 0, 1) {
		return nil
	}

	close(r.quit)
	r.cfg.SweepTicker.Stop()
	r.wg.Wait()

	return nil
}

// sweeper removes expired leases on every tick.
//
// NOTE: This MUST be run as a goroutine.
func (r *Registry) sweeper() {
	defer r.wg.Done()

	for {
		select {
		case <-r.cfg.SweepTicker.Ticks():
			r.mu.Lock()
			n := r.expireLocked(r.cfg.Clock.Now())
			r.mu.Unlock()

			if n > 0 {
				log.Debugf("Swept %d expired leases", n)
			}

		case <-r.quit:
			return
		}
	}
}

// accountLocked returns the state of an account, creating it if needed.
//
// NOTE: r.mu must be held for writes.
func (r *Registry) accountLocked(key AccountKey) *account {
	acct, ok := r.accounts[key]
	if !ok {
		acct = newAccount()
		r.accounts[key] = acct
	}
	return acct
}

// expireLocked frees every lease that expired at or before now and returns
// how many were freed.  Freed leases are retained for settlement until the
// retention period lapses.
//
// NOTE: r.mu must be held for writes.
func (r *Registry) expireLocked(now time.Time) int {
	var n int
	for id, lease := range r.leases {
		if now.Before(lease.Expiration) {
			continue
		}

		r.dropLeaseLocked(id, lease)
		r.expired[id] = lease
		n++
	}

	for id, lease := range r.expired {
		retainUntil := lease.Expiration.Add(r.cfg.ExpiredLeaseRetention)
		if now.Before(retainUntil) {
			continue
		}
		delete(r.expired, id)
	}

	return n
}

// dropLeaseLocked removes a lease and frees its inputs.
//
// NOTE: r.mu must be held for writes.
func (r *Registry) dropLeaseLocked(id LeaseID, lease *Lease) {
	acct := r.accounts[lease.Key]
	for _, in := range lease.Result.Inputs {
		if acct.leased[in.OutPoint] == id {
			delete(acct.leased, in.OutPoint)
		}
	}
	delete(r.leases, id)
}

// AddUTXOs starts tracking the passed outputs for an account.  Outputs that
// are already tracked have their details refreshed unless they are leased.
func (r *Registry) AddUTXOs(asset coinselect.AssetID, accountNum uint32,
	utxos ...coinselect.UTXO) error {

	if !asset.IsValid() {
		return fmt.Errorf("%w: %v", coinselect.ErrUnknownAsset, asset)
	}

	key := AccountKey{Asset: asset, Account: accountNum}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.expireLocked(r.cfg.Clock.Now())
	acct := r.accountLocked(key)

	add := make([]coinselect.UTXO, 0, len(utxos))
	for _, u := range utxos {
		if u.Amount == 0 {
			return fmt.Errorf("%w: %v", ErrInvalidAmount,
				u.OutPoint)
		}
		if _, ok := acct.leased[u.OutPoint]; ok {
			return fmt.Errorf("%w: %v", ErrOutputAlreadyLeased,
				u.OutPoint)
		}

		u.Asset = asset
		u.IsDust = false
		u.IsEffective = false
		add = append(add, u)
	}

	if r.cfg.Store != nil {
		if err := r.cfg.Store.PutUTXOs(key, add); err != nil {
			return fmt.Errorf("unable to store outputs: %w", err)
		}
	}

	for _, u := range add {
		acct.utxos[u.OutPoint] = u
	}

	log.Debugf("Tracking %d new outputs for %v", len(add), key)

	return nil
}

// Candidates returns copies of the outputs of an account that are not
// leased, ordered by outpoint.
func (r *Registry) Candidates(asset coinselect.AssetID,
	accountNum uint32) []coinselect.UTXO {

	key := AccountKey{Asset: asset, Account: accountNum}
	now := r.cfg.Clock.Now()

	r.mu.RLock()
	defer r.mu.RUnlock()

	acct, ok := r.accounts[key]
	if !ok {
		return nil
	}

	candidates := make([]coinselect.UTXO, 0, len(acct.utxos))
	for op, u := range acct.utxos {
		if r.isLeasedLocked(acct, op, now) {
			continue
		}
		candidates = append(candidates, u)
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i].OutPoint, candidates[j].OutPoint
		if c := bytes.Compare(a.Hash[:], b.Hash[:]); c != 0 {
			return c < 0
		}
		return a.Index < b.Index
	})

	return candidates
}

// Balance returns the total value of the unleased outputs of an account.
func (r *Registry) Balance(asset coinselect.AssetID, accountNum uint32) uint64 {
	var total uint64
	for _, u := range r.Candidates(asset, accountNum) {
		total += u.Amount
	}
	return total
}

// isLeasedLocked returns whether the output is held by a live lease.
//
// NOTE: r.mu must be held.
func (r *Registry) isLeasedLocked(acct *account, op wire.OutPoint,
	now time.Time) bool {

	id, ok := acct.leased[op]
	if !ok {
		return false
	}

	lease, ok := r.leases[id]
	return ok && now.Before(lease.Expiration)
}

// Spend runs fn over a snapshot of the available outputs of an account and
// leases the inputs of the returned selection.  The account is locked from
// the snapshot until the lease is taken, so concurrent spends never choose
// the same output.  If ctx is cancelled before the lease is taken nothing is
// reserved.
func (r *Registry) Spend(ctx context.Context, asset coinselect.AssetID,
	accountNum uint32, fn SelectFunc) (*Lease, error) {

	key := AccountKey{Asset: asset, Account: accountNum}

	r.mu.Lock()
	acct := r.accountLocked(key)
	r.mu.Unlock()

	select {
	case acct.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.quit:
		return nil, ErrRegistryShuttingDown
	}
	defer func() { <-acct.sem }()

	result, err := fn(r.Candidates(asset, accountNum))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return r.lease(key, result)
}

// lease reserves the inputs of a selection.
func (r *Registry) lease(key AccountKey,
	result *coinselect.Result) (*Lease, error) {

	var id LeaseID
	if _, err := rand.Read(id[:]); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.cfg.Clock.Now()
	r.expireLocked(now)

	acct := r.accountLocked(key)
	for _, in := range result.Inputs {
		if _, ok := acct.utxos[in.OutPoint]; !ok {
			return nil, fmt.Errorf("%w: %v", ErrUnknownOutput,
				in.OutPoint)
		}
		if _, ok := acct.leased[in.OutPoint]; ok {
			return nil, fmt.Errorf("%w: %v",
				ErrOutputAlreadyLeased, in.OutPoint)
		}
	}

	lease := &Lease{
		ID:         id,
		Key:        key,
		Result:     result,
		Expiration: now.Add(r.cfg.LeaseDuration),
	}
	for _, in := range result.Inputs {
		acct.leased[in.OutPoint] = id
	}
	r.leases[id] = lease

	log.Debugf("Leased %d inputs of %v until %v (lease %v)",
		len(result.Inputs), key, lease.Expiration, id)

	return lease, nil
}

// Release returns the inputs of a lease to the available set.
func (r *Registry) Release(id LeaseID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.expireLocked(r.cfg.Clock.Now())

	lease, ok := r.leases[id]
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownLease, id)
	}
	r.dropLeaseLocked(id, lease)

	log.Debugf("Released lease %v", id)

	return nil
}

// MarkSpent settles a lease once its transaction was broadcast.  The leased
// outputs stop being tracked.  A lease that expired within the retention
// period is settled by outpoint, and any live lease that has since taken one
// of its outputs is dropped.
func (r *Registry) MarkSpent(id LeaseID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.expireLocked(r.cfg.Clock.Now())

	lease, ok := r.leases[id]
	if !ok {
		lease, ok = r.expired[id]
		if !ok {
			return fmt.Errorf("%w: %v", ErrUnknownLease, id)
		}
		log.Warnf("Settling lease %v of %v after it expired", id,
			lease.Key)
	}

	acct := r.accountLocked(lease.Key)
	ops := make([]wire.OutPoint, 0, len(lease.Result.Inputs))
	for _, in := range lease.Result.Inputs {
		if _, ok := acct.utxos[in.OutPoint]; !ok {
			continue
		}
		ops = append(ops, in.OutPoint)
	}

	if r.cfg.Store != nil {
		err := r.cfg.Store.DeleteUTXOs(lease.Key, ops)
		if err != nil {
			return fmt.Errorf("unable to remove spent outputs: %w",
				err)
		}
	}

	for _, op := range ops {
		if other, ok := acct.leased[op]; ok && other != id {
			if live, ok := r.leases[other]; ok {
				log.Warnf("Dropping lease %v, output %v was "+
					"spent by lease %v", other, op, id)
				r.dropLeaseLocked(other, live)
			}
		}

		delete(acct.utxos, op)
		delete(acct.leased, op)
	}
	delete(r.leases, id)
	delete(r.expired, id)

	log.Debugf("Lease %v spent %d outputs of %v", id, len(ops), lease.Key)

	return nil
}

// Leases returns the live leases.
func (r *Registry) Leases() []Lease {
	now := r.cfg.Clock.Now()

	r.mu.RLock()
	defer r.mu.RUnlock()

	leases := make([]Lease, 0, len(r.leases))
	for _, lease := range r.leases {
		if !now.Before(lease.Expiration) {
			continue
		}
		leases = append(leases, *lease)
	}

	return leases
}
