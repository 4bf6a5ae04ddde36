// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinselect

import (
	"fmt"

	"github.com/btcsuite/btcd/wire"
)

// UTXO is an immutable snapshot of a spendable output as handed to the
// selection engine.  UTXOs are always passed by value so selection never
// aliases the registry's state.
type UTXO struct {
	// OutPoint identifies the output by transaction hash and index.
	OutPoint wire.OutPoint

	// Asset is the asset the output holds.
	Asset AssetID

	// Amount is the value of the output in minor units.  It must be
	// greater than zero.
	Amount uint64

	// ScriptType is the kind of script locking the output.  It determines
	// the cost of spending the output.
	ScriptType ScriptType

	// IsDust is set when the value is below the dust threshold at the fee
	// rate the output was last classified for.
	IsDust bool

	// IsEffective is set when the value exceeds the marginal fee of
	// including the output as an input at the fee rate the output was last
	// classified for.
	IsEffective bool

	// Confirmations is the number of blocks confirming the output.
	Confirmations uint32

	// PkScript is the script locking the output, when known.  It is
	// carried through selection for signers that need it.
	PkScript []byte
}

// String returns a short description of the output for logging.
func (u UTXO) String() string {
	return fmt.Sprintf("%v(%v %d)", u.OutPoint, u.Asset, u.Amount)
}

// Classify annotates each of the passed outputs with its dust and
// effectiveness flags for the given fee rate and returns the annotated copy.
// The passed slice is not modified.
func Classify(asset AssetID, feeRatePerByte uint64, utxos []UTXO) []UTXO {
	changeType := P2PKH
	threshold := DustThreshold(asset, feeRatePerByte, changeType)

	classified := make([]UTXO, len(utxos))
	for i, u := range utxos {
		cost := spendCost(asset, feeRatePerByte, u.ScriptType)

		u.IsEffective = u.Amount > 0 && u.Amount > cost
		u.IsDust = u.Amount < threshold
		classified[i] = u
	}

	return classified
}

// spendCost returns the marginal fee of spending a single output.
func spendCost(asset AssetID, feeRatePerByte uint64, st ScriptType) uint64 {
	if asset.Model() == AccountModel {
		return feeRatePerByte * asset.FeeUnits()
	}
	return feeRatePerByte * uint64(st.InputVSize())
}

// sumAmounts returns the total value of the passed outputs.
func sumAmounts(utxos []UTXO) uint64 {
	var total uint64
	for _, u := range utxos {
		total += u.Amount
	}
	return total
}
