// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
	"github.com/btcsuite/walletcore/internal/cfgutil"
	"github.com/btcsuite/walletcore/payload"
	"github.com/btcsuite/walletcore/recovery"
	"github.com/btcsuite/walletcore/wallet/coinselect"
	"github.com/btcsuite/walletcore/wallet/feeest"
	"github.com/btcsuite/walletcore/wallet/registry"
)

// environment holds the resources shared by the commands.  Resources are
// opened on first use and released by close.
type environment struct {
	cfg   *config
	stdin *bufio.Reader
	out   io.Writer

	db  walletdb.DB
	reg *registry.Registry

	// estimators caches one estimator per asset so fetched rates are
	// reused within a run.
	estimators map[coinselect.AssetID]feeest.Estimator
}

func newEnvironment(cfg *config, stdin io.Reader,
	out io.Writer) *environment {

	return &environment{
		cfg:        cfg,
		stdin:      bufio.NewReader(stdin),
		out:        out,
		estimators: make(map[coinselect.AssetID]feeest.Estimator),
	}
}

// openDB opens the database of the active network, creating it when it does
// not exist yet.
func (e *environment) openDB() (walletdb.DB, error) {
	if e.db != nil {
		return e.db, nil
	}

	dbPath := e.cfg.dbPath()
	exists, err := cfgutil.FileExists(dbPath)
	if err != nil {
		return nil, err
	}

	var db walletdb.DB
	if exists {
		db, err = walletdb.Open(
			"bdb", dbPath, true, e.cfg.DBTimeout, false,
		)
	} else {
		if err := os.MkdirAll(e.cfg.netDir(), 0700); err != nil {
			return nil, err
		}
		db, err = walletdb.Create(
			"bdb", dbPath, true, e.cfg.DBTimeout, false,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to open database %s: %w",
			dbPath, err)
	}

	log.Debugf("Opened database %s", dbPath)

	e.db = db
	return db, nil
}

// registry returns the started output registry.
func (e *environment) registry() (*registry.Registry, error) {
	if e.reg != nil {
		return e.reg, nil
	}

	db, err := e.openDB()
	if err != nil {
		return nil, err
	}
	store, err := registry.NewDBStore(db)
	if err != nil {
		return nil, err
	}
	reg, err := registry.New(registry.Config{Store: store})
	if err != nil {
		return nil, err
	}
	if err := reg.Start(); err != nil {
		return nil, err
	}

	e.reg = reg
	return reg, nil
}

// estimator returns the fee estimator of an asset.
func (e *environment) estimator(asset coinselect.AssetID) feeest.Estimator {
	if est, ok := e.estimators[asset]; ok {
		return est
	}

	var est feeest.Estimator
	if e.cfg.FeeURL == "" {
		est = &feeest.Static{
			Regular:  e.cfg.RegularFee,
			Priority: e.cfg.PriorityFee,
		}
	} else {
		url := strings.ReplaceAll(
			e.cfg.FeeURL, "{asset}", strings.ToLower(asset.String()),
		)
		est = feeest.NewCached(
			&feeest.HTTPSource{URL: url}, e.cfg.FeeCacheTTL,
		)
	}

	e.estimators[asset] = est
	return est
}

// feeRate returns rate when non-zero and the estimated rate for the named
// speed otherwise.
func (e *environment) feeRate(ctx context.Context, asset coinselect.AssetID,
	rate uint64, speedName string) (uint64, error) {

	if rate != 0 {
		return rate, nil
	}

	speed, err := feeest.ParseSpeed(speedName)
	if err != nil {
		return 0, err
	}
	rate, err = e.estimator(asset).RateFor(ctx, speed)
	if err != nil {
		return 0, fmt.Errorf("unable to estimate %v fee rate: %w",
			asset, err)
	}

	log.Debugf("Using %v %v fee rate of %d", speed, asset, rate)

	return rate, nil
}

// storageClient returns the client of the payload storage service.
func (e *environment) storageClient() *recovery.HTTPClient {
	return &recovery.HTTPClient{
		BaseURL: e.cfg.StorageURL,
		Timeout: e.cfg.StorageTimeout,
	}
}

// recoveryService returns a service fetching through the retrying storage
// client and, unless disabled, the local payload cache.
func (e *environment) recoveryService(
	client *recovery.HTTPClient) (*recovery.Service, error) {

	retry := recovery.NewRetryFetcher(client)
	retry.MaxRetries = e.cfg.FetchRetries

	var fetcher recovery.BlobFetcher = retry
	if !e.cfg.NoCache {
		db, err := e.openDB()
		if err != nil {
			return nil, err
		}
		local, err := recovery.NewDBStore(db)
		if err != nil {
			return nil, err
		}
		fetcher = &recovery.CachingFetcher{Remote: retry, Local: local}
	}

	return recovery.New(recovery.Config{
		Fetcher: fetcher,
		Saver:   client,
		Codec:   &payload.Codec{Iterations: e.cfg.Iterations},
	}), nil
}

// close releases the opened resources.
func (e *environment) close() {
	if e.reg != nil {
		if err := e.reg.Stop(); err != nil {
			log.Warnf("Unable to stop registry: %v", err)
		}
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			log.Warnf("Unable to close database: %v", err)
		}
	}
}
