// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package feeest provides fee rates for coin selection.
package feeest

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnknownSpeed is returned for a confirmation speed without a
	// rate.
	ErrUnknownSpeed = errors.New("unknown fee speed")

	// ErrInvalidRates is returned when a source reports unusable rates.
	ErrInvalidRates = errors.New("invalid fee rates")
)

// Speed is the confirmation urgency a fee rate is requested for.
type Speed uint8

const (
	// SpeedRegular targets confirmation within a few blocks.
	SpeedRegular Speed = iota

	// SpeedPriority targets confirmation in the next block.
	SpeedPriority
)

// String returns the speed name.
func (s Speed) String() string {
	switch s {
	case SpeedRegular:
		return "regular"
	case SpeedPriority:
		return "priority"
	default:
		return fmt.Sprintf("Speed(%d)", uint8(s))
	}
}

// ParseSpeed returns the speed with the given name.
func ParseSpeed(name string) (Speed, error) {
	switch name {
	case "regular", "":
		return SpeedRegular, nil
	case "priority":
		return SpeedPriority, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownSpeed, name)
	}
}

// Estimator returns fee rates in minor units per virtual byte, or per fee
// unit for account model assets.
type Estimator interface {
	// RateFor returns the fee rate for the given speed.
	RateFor(ctx context.Context, speed Speed) (uint64, error)
}

// RateSource fetches the full set of rates of an asset.
type RateSource interface {
	// FetchRates returns the current rates.
	FetchRates(ctx context.Context) (*Rates, error)
}

// Limits bound the rates handed out.  A zero bound is not enforced.
type Limits struct {
	Min uint64 `json:"min"`
	Max uint64 `json:"max"`
}

// Rates is a snapshot of the rates of an asset.
type Rates struct {
	Regular  uint64 `json:"regular"`
	Priority uint64 `json:"priority"`
	Limits   Limits `json:"limits"`
}

// Validate checks the rates are usable.
func (r *Rates) Validate() error {
	switch {
	case r.Regular == 0:
		return fmt.Errorf("%w: zero regular rate", ErrInvalidRates)

	case r.Priority < r.Regular:
		return fmt.Errorf("%w: priority rate %d below regular rate %d",
			ErrInvalidRates, r.Priority, r.Regular)

	case r.Limits.Max != 0 && r.Limits.Min > r.Limits.Max:
		return fmt.Errorf("%w: min limit %d above max limit %d",
			ErrInvalidRates, r.Limits.Min, r.Limits.Max)
	}

	return nil
}

// For returns the rate for a speed clamped to the limits.
func (r *Rates) For(speed Speed) (uint64, error) {
	var rate uint64
	switch speed {
	case SpeedRegular:
		rate = r.Regular
	case SpeedPriority:
		rate = r.Priority
	default:
		return 0, fmt.Errorf("%w: %v", ErrUnknownSpeed, speed)
	}

	if r.Limits.Min != 0 && rate < r.Limits.Min {
		rate = r.Limits.Min
	}
	if r.Limits.Max != 0 && rate > r.Limits.Max {
		rate = r.Limits.Max
	}

	return rate, nil
}

// Static is an Estimator with fixed rates.
type Static Rates

// A compile-time assertion to ensure Static meets the Estimator and
// RateSource interfaces.
var (
	_ Estimator  = (*Static)(nil)
	_ RateSource = (*Static)(nil)
)

// RateFor returns the fixed rate for the speed.
func (s *Static) RateFor(_ context.Context, speed Speed) (uint64, error) {
	return (*Rates)(s).For(speed)
}

// FetchRates returns a copy of the fixed rates.
func (s *Static) FetchRates(context.Context) (*Rates, error) {
	r := Rates(*s)
	return &r, nil
}
