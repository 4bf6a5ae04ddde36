// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinselect

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCoinsToSelect is returned when selection is attempted with an
	// empty candidate set.
	ErrNoCoinsToSelect = errors.New("no coins to select")

	// ErrNoEffectiveCoins is returned when every candidate costs more to
	// spend than it is worth at the requested fee rate.
	ErrNoEffectiveCoins = errors.New("no effective coins")

	// ErrNoSelectedCoins is returned when the effective candidates hold
	// enough value for the target but no combination also covers the fee.
	ErrNoSelectedCoins = errors.New("no selected coins")

	// ErrInsufficientFunds is returned when the effective candidates hold
	// less value than the target amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrUnknownAsset is returned for an asset id without selection
	// parameters.
	ErrUnknownAsset = errors.New("unknown asset")

	// ErrAssetMismatch is returned when a candidate belongs to an asset
	// other than the one requested.
	ErrAssetMismatch = errors.New("candidate asset mismatch")
)

// SelectionError describes why selection failed together with the amounts
// involved, so callers can present how much is missing.  It unwraps to one of
// the package's sentinel errors.
type SelectionError struct {
	// Err is the sentinel describing the failure.
	Err error

	// Target is the requested amount.
	Target uint64

	// Fee is the fee estimate at the point of failure.
	Fee uint64

	// Available is the total value of the effective candidates.
	Available uint64
}

// Error satisfies the error interface.
func (e *SelectionError) Error() string {
	return fmt.Sprintf("%v: amount: %d, minimum fee: %d, available "+
		"amount: %d", e.Err, e.Target, e.Fee, e.Available)
}

// Unwrap returns the underlying sentinel.
func (e *SelectionError) Unwrap() error {
	return e.Err
}

// selectionErr creates a SelectionError.
func selectionErr(err error, target, fee, available uint64) error {
	return &SelectionError{
		Err:       err,
		Target:    target,
		Fee:       fee,
		Available: available,
	}
}
