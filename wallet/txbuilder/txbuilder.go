// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txbuilder turns coin selections into unsigned transactions ready to
// be handed to a signer.
package txbuilder

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/walletcore/wallet/coinselect"
)

// txVersion is the version of built transactions.
const txVersion = 2

var (
	// ErrNoDestination is returned when no destination address is given.
	ErrNoDestination = errors.New("no destination address")

	// ErrUnsupportedAsset is returned for assets that do not spend
	// outputs.
	ErrUnsupportedAsset = errors.New("asset does not use transaction " +
		"outputs")

	// ErrNoChangeSource is returned when a selection with change is built
	// without a change source.
	ErrNoChangeSource = errors.New("no change source")

	// ErrAmountOutOfRange is returned when a selection holds an amount
	// larger than the bitcoin supply.
	ErrAmountOutOfRange = errors.New("amount out of range")
)

// ChangeSource provides change output scripts.
type ChangeSource struct {
	// NewScript is a closure that produces unique change output scripts
	// per invocation.
	NewScript func() ([]byte, error)

	// ScriptType is the script type NewScript produces.  It should match
	// the change type the selection was sized for.
	ScriptType coinselect.ScriptType
}

// UnsignedTransaction is a transaction spending the inputs of a selection.
type UnsignedTransaction struct {
	// Tx is the unsigned transaction.
	Tx *wire.MsgTx

	// PrevInputs are the outputs spent by each input of Tx.
	PrevInputs []coinselect.UTXO

	// PrevInputValues are the amounts of the spent outputs.
	PrevInputValues []btcutil.Amount

	// ChangeIndex is the index of the change output, or -1 without one.
	ChangeIndex int

	// Fee is the fee paid by the transaction.
	Fee btcutil.Amount
}

// Signer signs transactions.  Implementations live outside of this module.
type Signer interface {
	// Sign signs every input of the packet and returns the serialized
	// final transaction.
	Sign(ctx context.Context, packet *psbt.Packet) ([]byte, error)
}

// Builder creates unsigned transactions.  The zero value builds without
// output policy checks.
type Builder struct {
	// RelayFeePerKb enables the relay dust and standardness check of each
	// output when non-zero.
	RelayFeePerKb btcutil.Amount
}

// Build creates an unsigned transaction with a zero value Builder.
func Build(result *coinselect.Result, destination btcutil.Address,
	change *ChangeSource) (*UnsignedTransaction, error) {

	var b Builder
	return b.Build(result, destination, change)
}

// Build creates an unsigned transaction spending the selected inputs in
// order.  The destination receives the target amount, followed by a change
// output when the selection has change.
func (b *Builder) Build(result *coinselect.Result,
	destination btcutil.Address,
	change *ChangeSource) (*UnsignedTransaction, error) {

	if destination == nil {
		return nil, ErrNoDestination
	}
	if result.Asset.Model() != coinselect.UTXOModel {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAsset,
			result.Asset)
	}

	if err := checkAmounts(result); err != nil {
		return nil, err
	}

	pkScript, err := txscript.PayToAddrScript(destination)
	if err != nil {
		return nil, fmt.Errorf("unable to create output script: %w",
			err)
	}

	tx := wire.NewMsgTx(txVersion)
	unsigned := &UnsignedTransaction{
		Tx:              tx,
		PrevInputs:      make([]coinselect.UTXO, 0, len(result.Inputs)),
		PrevInputValues: make([]btcutil.Amount, 0, len(result.Inputs)),
		ChangeIndex:     -1,
		Fee:             btcutil.Amount(result.EstimatedFeePaid),
	}

	for _, in := range result.Inputs {
		op := in.OutPoint
		tx.AddTxIn(wire.NewTxIn(&op, nil, nil))
		unsigned.PrevInputs = append(unsigned.PrevInputs, in)
		unsigned.PrevInputValues = append(
			unsigned.PrevInputValues, btcutil.Amount(in.Amount),
		)
	}

	outputs := []*wire.TxOut{
		wire.NewTxOut(int64(result.TargetAmount), pkScript),
	}

	if result.ChangeAmount > 0 {
		if change == nil || change.NewScript == nil {
			return nil, ErrNoChangeSource
		}

		changeScript, err := change.NewScript()
		if err != nil {
			return nil, fmt.Errorf("unable to create change "+
				"script: %w", err)
		}

		outputs = append(outputs, wire.NewTxOut(
			int64(result.ChangeAmount), changeScript,
		))
		unsigned.ChangeIndex = len(outputs) - 1
	}

	for i, out := range outputs {
		if b.RelayFeePerKb != 0 {
			err := txrules.CheckOutput(out, b.RelayFeePerKb)
			if err != nil {
				return nil, fmt.Errorf("output %d: %w", i, err)
			}
		}
		tx.AddTxOut(out)
	}

	log.Debugf("Built unsigned tx %v: %d inputs, %d outputs, fee %v",
		tx.TxHash(), len(tx.TxIn), len(tx.TxOut), unsigned.Fee)

	return unsigned, nil
}

// checkAmounts rejects selections whose amounts cannot be represented as
// output values.
func checkAmounts(result *coinselect.Result) error {
	check := func(name string, amt uint64) error {
		if amt > btcutil.MaxSatoshi {
			return fmt.Errorf("%w: %s of %d exceeds %v",
				ErrAmountOutOfRange, name, amt,
				btcutil.Amount(btcutil.MaxSatoshi))
		}
		return nil
	}

	if err := check("target", result.TargetAmount); err != nil {
		return err
	}
	if err := check("change", result.ChangeAmount); err != nil {
		return err
	}
	if err := check("fee", result.EstimatedFeePaid); err != nil {
		return err
	}
	for _, in := range result.Inputs {
		if err := check("input", in.Amount); err != nil {
			return err
		}
	}
	return nil
}

// TotalInput returns the value of the spent outputs.
func (u *UnsignedTransaction) TotalInput() btcutil.Amount {
	var total btcutil.Amount
	for _, v := range u.PrevInputValues {
		total += v
	}
	return total
}

// Packet returns a PSBT of the transaction.  Inputs spending segwit outputs
// with a known script carry their witness UTXO.
func (u *UnsignedTransaction) Packet() (*psbt.Packet, error) {
	packet, err := psbt.NewFromUnsignedTx(u.Tx.Copy())
	if err != nil {
		return nil, err
	}

	for i, prev := range u.PrevInputs {
		if prev.ScriptType == coinselect.P2PKH ||
			len(prev.PkScript) == 0 {

			continue
		}

		packet.Inputs[i].WitnessUtxo = wire.NewTxOut(
			int64(prev.Amount), prev.PkScript,
		)
		packet.Inputs[i].SighashType = txscript.SigHashDefault
		if prev.ScriptType != coinselect.P2TR {
			packet.Inputs[i].SighashType = txscript.SigHashAll
		}
	}

	return packet, nil
}

// Sign hands the transaction to signer and returns the signed transaction.
func (u *UnsignedTransaction) Sign(ctx context.Context,
	signer Signer) ([]byte, error) {

	packet, err := u.Packet()
	if err != nil {
		return nil, err
	}

	signed, err := signer.Sign(ctx, packet)
	if err != nil {
		return nil, fmt.Errorf("unable to sign transaction: %w", err)
	}

	return signed, nil
}
