// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinselect

import (
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
)

// ScriptType is the kind of output script an output is locked with, or a new
// output is created with.
type ScriptType uint8

const (
	// P2PKH is a pay-to-pubkey-hash script with a compressed key.
	P2PKH ScriptType = iota

	// P2WPKH is a native segwit v0 pay-to-witness-pubkey-hash script.
	P2WPKH

	// NestedP2WPKH is a P2WPKH script nested in P2SH.
	NestedP2WPKH

	// P2TR is a taproot key-spend script.
	P2TR
)

// String returns the script type name.
func (s ScriptType) String() string {
	switch s {
	case P2PKH:
		return "p2pkh"
	case P2WPKH:
		return "p2wpkh"
	case NestedP2WPKH:
		return "np2wpkh"
	case P2TR:
		return "p2tr"
	default:
		return fmt.Sprintf("ScriptType(%d)", uint8(s))
	}
}

// ParseScriptType returns the script type with the given name.
func ParseScriptType(name string) (ScriptType, error) {
	for s := P2PKH; s <= P2TR; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown script type %q", name)
}

// PkScriptSize returns the size of an output script of this type.
func (s ScriptType) PkScriptSize() int {
	switch s {
	case P2WPKH:
		return txsizes.P2WPKHPkScriptSize
	case NestedP2WPKH:
		return txsizes.NestedP2WPKHPkScriptSize
	case P2TR:
		return txsizes.P2TRPkScriptSize
	default:
		return txsizes.P2PKHPkScriptSize
	}
}

// OutputSize returns the serialize size of an output paying to this script
// type.
func (s ScriptType) OutputSize() int {
	scriptSize := s.PkScriptSize()
	return 8 + wire.VarIntSerializeSize(uint64(scriptSize)) + scriptSize
}

// InputVSize returns the worst case virtual size an input spending this
// script type adds to a transaction.
func (s ScriptType) InputVSize() int {
	var baseSize, witnessWeight int
	switch s {
	case P2WPKH:
		baseSize = txsizes.RedeemP2WPKHInputSize
		witnessWeight = txsizes.RedeemP2WPKHInputWitnessWeight

	case NestedP2WPKH:
		baseSize = txsizes.RedeemNestedP2WPKHInputSize
		witnessWeight = txsizes.RedeemP2WPKHInputWitnessWeight

	case P2TR:
		baseSize = txsizes.RedeemP2TRInputSize
		witnessWeight = txsizes.RedeemP2TRInputWitnessWeight

	default:
		baseSize = txsizes.RedeemP2PKHInputSize
	}

	return baseSize +
		(witnessWeight+blockchain.WitnessScaleFactor-1)/
			blockchain.WitnessScaleFactor
}

// EstimateVirtualSize returns the worst case virtual size of a transaction
// spending the passed inputs to one output per entry of outputs.  A change
// output of changeType is counted when withChange is true.
func EstimateVirtualSize(inputs []UTXO, outputs []ScriptType,
	changeType ScriptType, withChange bool) int {

	var p2pkh, p2tr, p2wpkh, nested int
	for _, in := range inputs {
		switch in.ScriptType {
		case P2WPKH:
			p2wpkh++
		case NestedP2WPKH:
			nested++
		case P2TR:
			p2tr++
		default:
			p2pkh++
		}
	}

	// The size estimate only looks at the script length of each output,
	// so zero valued placeholders are sufficient.
	txOuts := make([]*wire.TxOut, 0, len(outputs))
	for _, out := range outputs {
		txOuts = append(txOuts, wire.NewTxOut(
			0, make([]byte, out.PkScriptSize()),
		))
	}

	changeScriptSize := 0
	if withChange {
		changeScriptSize = changeType.PkScriptSize()
	}

	return txsizes.EstimateVirtualSize(
		p2pkh, p2tr, p2wpkh, nested, txOuts, changeScriptSize,
	)
}

// EstimateFee returns the fee for a transaction spending inputs to outputs at
// the given rate in minor units per virtual byte.
func EstimateFee(feeRatePerByte uint64, inputs []UTXO, outputs []ScriptType,
	changeType ScriptType, withChange bool) uint64 {

	vsize := EstimateVirtualSize(inputs, outputs, changeType, withChange)
	return feeRatePerByte * uint64(vsize)
}

// DustThreshold returns the smallest change amount worth creating.  For UTXO
// assets it is the larger of the asset's fixed relay dust floor and the fee
// of creating and later spending an output of changeType.  Account model
// assets have no dust.
func DustThreshold(asset AssetID, feeRatePerByte uint64,
	changeType ScriptType) uint64 {

	if asset.Model() == AccountModel {
		return 0
	}

	roundTrip := feeRatePerByte *
		uint64(changeType.InputVSize()+changeType.OutputSize())
	if roundTrip > asset.MinDust() {
		return roundTrip
	}

	return asset.MinDust()
}
