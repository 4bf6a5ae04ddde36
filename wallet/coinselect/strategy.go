// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinselect

import (
	"bytes"
	"fmt"
	"math/rand"
	"sort"
)

// Strategy orders the effective candidates before the greedy accumulation
// runs over them.
type Strategy interface {
	// Arrange returns the coins in the order they should be drawn.  The
	// passed slice may be reordered in place.
	Arrange(coins []UTXO) []UTXO
}

var (
	// LargestFirst draws the largest coins first.  It minimizes the number
	// of inputs and is the default.
	LargestFirst Strategy = &largestFirst{}

	// SmallestFirst draws the smallest coins first, consolidating small
	// outputs at the cost of a larger transaction.
	SmallestFirst Strategy = &smallestFirst{}

	// Random shuffles the coins.  It trades determinism for not creating
	// ever smaller outputs over time.
	Random Strategy = &randomOrder{}
)

// ParseStrategy returns the strategy for one of the names "largest",
// "smallest" or "random".
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "largest":
		return LargestFirst, nil
	case "smallest":
		return SmallestFirst, nil
	case "random":
		return Random, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

// outpointLess orders coins by transaction hash then output index, which
// makes every ordering total.
func outpointLess(a, b *UTXO) bool {
	if c := bytes.Compare(a.OutPoint.Hash[:], b.OutPoint.Hash[:]); c != 0 {
		return c < 0
	}
	return a.OutPoint.Index < b.OutPoint.Index
}

type largestFirst struct{}

// Arrange sorts by descending amount.  Equal amounts prefer the more mature
// coin.
func (*largestFirst) Arrange(coins []UTXO) []UTXO {
	sort.SliceStable(coins, func(i, j int) bool {
		a, b := &coins[i], &coins[j]
		switch {
		case a.Amount != b.Amount:
			return a.Amount > b.Amount
		case a.Confirmations != b.Confirmations:
			return a.Confirmations > b.Confirmations
		default:
			return outpointLess(a, b)
		}
	})

	return coins
}

type smallestFirst struct{}

// Arrange sorts by ascending amount.  Equal amounts prefer the more mature
// coin.
func (*smallestFirst) Arrange(coins []UTXO) []UTXO {
	sort.SliceStable(coins, func(i, j int) bool {
		a, b := &coins[i], &coins[j]
		switch {
		case a.Amount != b.Amount:
			return a.Amount < b.Amount
		case a.Confirmations != b.Confirmations:
			return a.Confirmations > b.Confirmations
		default:
			return outpointLess(a, b)
		}
	})

	return coins
}

type randomOrder struct{}

// Arrange shuffles the coins.
func (*randomOrder) Arrange(coins []UTXO) []UTXO {
	rand.Shuffle(len(coins), func(i, j int) {
		coins[i], coins[j] = coins[j], coins[i]
	})

	return coins
}
