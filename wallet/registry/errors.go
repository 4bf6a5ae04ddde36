// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package registry

import "errors"

var (
	// ErrUnknownOutput is returned when an operation references an output
	// the registry does not track.
	ErrUnknownOutput = errors.New("unknown output")

	// ErrOutputAlreadyLeased is returned when adding an output that is
	// already tracked and currently leased.
	ErrOutputAlreadyLeased = errors.New("output already leased")

	// ErrUnknownLease is returned when releasing a lease that does not
	// exist or has already expired, or when settling a lease that does
	// not exist or expired longer ago than the retention period.
	ErrUnknownLease = errors.New("unknown lease")

	// ErrInvalidAmount is returned when adding an output with a zero
	// amount.
	ErrInvalidAmount = errors.New("output amount must be positive")

	// ErrRegistryShuttingDown is returned by Spend after Stop was called.
	ErrRegistryShuttingDown = errors.New("registry shutting down")
)
