// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinselect

import (
	"fmt"
)

// Request describes a payment to select inputs for.
type Request struct {
	// Asset is the asset being sent.
	Asset AssetID

	// TargetAmount is the amount the recipient receives in minor units.
	TargetAmount uint64

	// FeeRatePerByte is the fee rate in minor units per virtual byte, or
	// per fee unit for account model assets.
	FeeRatePerByte uint64

	// AllowChange permits a change output.  When false any leftover is
	// paid as fee.
	AllowChange bool

	// Strategy orders the candidates.  LargestFirst is used when nil.
	Strategy Strategy

	// ChangeScriptType is the script type of the change output.
	ChangeScriptType ScriptType

	// OutputScriptType is the script type of the payment output.
	OutputScriptType ScriptType
}

// Result is the outcome of a successful selection.  The input amounts always
// equal TargetAmount + EstimatedFeePaid + ChangeAmount.
type Result struct {
	// Asset is the asset that was selected for.
	Asset AssetID

	// Inputs are the chosen coins in the order they were drawn.
	Inputs []UTXO

	// TargetAmount is the amount paid to the recipient.
	TargetAmount uint64

	// ChangeAmount is the value returned to the wallet.  It is zero when
	// no change output is created.
	ChangeAmount uint64

	// EstimatedFeePaid is the fee implied by the selection.
	EstimatedFeePaid uint64
}

// TotalInput returns the sum of the selected input amounts.
func (r *Result) TotalInput() uint64 {
	return sumAmounts(r.Inputs)
}

// String returns a summary of the selection for logging.
func (r *Result) String() string {
	return fmt.Sprintf("%v: %d inputs, target=%d change=%d fee=%d",
		r.Asset, len(r.Inputs), r.TargetAmount, r.ChangeAmount,
		r.EstimatedFeePaid)
}

// ruleFunc is the selection rule of one ledger model.  The effective slice
// is owned by the rule and may be reordered.
type ruleFunc func(req *Request, effective []UTXO) (*Result, error)

var rules = map[LedgerModel]ruleFunc{
	UTXOModel:    selectUTXO,
	AccountModel: selectAccount,
}

// Select chooses the inputs that fund the requested payment.  Candidates are
// classified at the request fee rate first, and only effective coins are
// considered.  Failures are returned as a *SelectionError wrapping one of
// ErrNoCoinsToSelect, ErrNoEffectiveCoins, ErrInsufficientFunds or
// ErrNoSelectedCoins.
//
// The passed candidates are never modified.
func Select(req Request, candidates []UTXO) (*Result, error) {
	if !req.Asset.IsValid() {
		return nil, fmt.Errorf("%w: %v", ErrUnknownAsset, req.Asset)
	}
	if len(candidates) == 0 {
		return nil, selectionErr(
			ErrNoCoinsToSelect, req.TargetAmount, 0, 0,
		)
	}

	effective, err := effectiveCoins(
		req.Asset, req.FeeRatePerByte, candidates,
	)
	if err != nil {
		return nil, err
	}
	if len(effective) == 0 {
		return nil, selectionErr(
			ErrNoEffectiveCoins, req.TargetAmount, 0, 0,
		)
	}

	available := sumAmounts(effective)
	if available < req.TargetAmount {
		return nil, selectionErr(
			ErrInsufficientFunds, req.TargetAmount, 0, available,
		)
	}
	if req.TargetAmount == 0 {
		return nil, selectionErr(ErrNoSelectedCoins, 0, 0, available)
	}

	if req.Strategy == nil {
		req.Strategy = LargestFirst
	}

	result, err := rules[req.Asset.Model()](&req, effective)
	if err != nil {
		log.Debugf("Selection of %d %v from %d candidates failed: %v",
			req.TargetAmount, req.Asset, len(candidates), err)
		return nil, err
	}

	log.Tracef("Selected %v", result)

	return result, nil
}

// effectiveCoins classifies the candidates and returns the effective ones.
func effectiveCoins(asset AssetID, feeRate uint64,
	candidates []UTXO) ([]UTXO, error) {

	classified := Classify(asset, feeRate, candidates)

	effective := classified[:0]
	for _, u := range classified {
		if u.Asset != asset {
			return nil, fmt.Errorf("%w: %v holds %v, want %v",
				ErrAssetMismatch, u.OutPoint, u.Asset, asset)
		}
		if u.IsEffective {
			effective = append(effective, u)
		}
	}

	return effective, nil
}

// selectUTXO draws coins in strategy order until the target plus the fee of
// the growing transaction is covered.  Change is only created when it is at
// least the dust threshold; smaller leftovers are paid as fee.
func selectUTXO(req *Request, effective []UTXO) (*Result, error) {
	var (
		outputs   = []ScriptType{req.OutputScriptType}
		threshold = DustThreshold(
			req.Asset, req.FeeRatePerByte, req.ChangeScriptType,
		)
		available = sumAmounts(effective)

		selected []UTXO
		total    uint64
		fee      uint64
	)

	for _, coin := range req.Strategy.Arrange(effective) {
		selected = append(selected, coin)
		total += coin.Amount

		fee = EstimateFee(
			req.FeeRatePerByte, selected, outputs,
			req.ChangeScriptType, false,
		)
		if total < req.TargetAmount+fee {
			continue
		}

		result := &Result{
			Asset:        req.Asset,
			Inputs:       selected,
			TargetAmount: req.TargetAmount,
		}

		if req.AllowChange {
			feeWithChange := EstimateFee(
				req.FeeRatePerByte, selected, outputs,
				req.ChangeScriptType, true,
			)
			spend := req.TargetAmount + feeWithChange
			if total >= spend && total-spend >= threshold {
				result.ChangeAmount = total - spend
				result.EstimatedFeePaid = feeWithChange

				return result, nil
			}
		}

		result.EstimatedFeePaid = total - req.TargetAmount

		return result, nil
	}

	return nil, selectionErr(
		ErrNoSelectedCoins, req.TargetAmount, fee, available,
	)
}

// selectAccount picks the single largest balance entry able to pay the
// target and the fixed transfer fee.  Account model transfers never create
// change outputs, the remainder is reported as change since it stays in the
// account.
func selectAccount(req *Request, effective []UTXO) (*Result, error) {
	fee := req.FeeRatePerByte * req.Asset.FeeUnits()

	ordered := LargestFirst.Arrange(effective)
	largest := ordered[0]
	if largest.Amount < req.TargetAmount+fee {
		return nil, selectionErr(
			ErrNoSelectedCoins, req.TargetAmount, fee,
			sumAmounts(effective),
		)
	}

	return &Result{
		Asset:            req.Asset,
		Inputs:           []UTXO{largest},
		TargetAmount:     req.TargetAmount,
		ChangeAmount:     largest.Amount - req.TargetAmount - fee,
		EstimatedFeePaid: fee,
	}, nil
}

// SelectAll sweeps every effective candidate into a single output of
// outputType without change.  The result's TargetAmount is the amount the
// recipient receives.  An empty result is returned when no candidate is
// worth spending at the fee rate.
func SelectAll(asset AssetID, feeRatePerByte uint64, outputType ScriptType,
	candidates []UTXO) (*Result, error) {

	if !asset.IsValid() {
		return nil, fmt.Errorf("%w: %v", ErrUnknownAsset, asset)
	}

	effective, err := effectiveCoins(asset, feeRatePerByte, candidates)
	if err != nil {
		return nil, err
	}

	result := &Result{Asset: asset}
	if len(effective) == 0 {
		return result, nil
	}

	var fee uint64
	switch asset.Model() {
	case AccountModel:
		// Only a single balance entry can be spent per transfer.
		effective = LargestFirst.Arrange(effective)[:1]
		fee = feeRatePerByte * asset.FeeUnits()

	default:
		fee = EstimateFee(
			feeRatePerByte, effective, []ScriptType{outputType},
			P2PKH, false,
		)
	}

	total := sumAmounts(effective)
	if total <= fee {
		return result, nil
	}

	result.Inputs = effective
	result.TargetAmount = total - fee
	result.EstimatedFeePaid = fee

	log.Tracef("Sweeping %v", result)

	return result, nil
}
