// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinselect

import "fmt"

// LedgerModel describes how an asset tracks value on its chain.
type LedgerModel uint8

const (
	// UTXOModel assets hold value in discrete unspent outputs which are
	// consumed whole and may produce change.
	UTXOModel LedgerModel = iota

	// AccountModel assets hold a single balance per account.  Spending
	// debits the balance and never creates change outputs.
	AccountModel
)

// String returns the model name.
func (m LedgerModel) String() string {
	switch m {
	case UTXOModel:
		return "utxo"
	case AccountModel:
		return "account"
	default:
		return fmt.Sprintf("LedgerModel(%d)", uint8(m))
	}
}

// AssetID identifies an asset the wallet can spend.  Each asset carries the
// parameters of its selection rule, so dispatch is a lookup keyed off the tag
// rather than a type hierarchy.
type AssetID uint8

const (
	// AssetBTC is bitcoin.
	AssetBTC AssetID = iota + 1

	// AssetBCH is bitcoin cash.
	AssetBCH

	// AssetETH is ether.  Fee rates are expressed per unit of gas.
	AssetETH

	// AssetXLM is stellar lumens.  Fee rates are expressed in stroops per
	// operation.
	AssetXLM
)

// assetParams holds the static per-asset policy.
type assetParams struct {
	name  string
	model LedgerModel

	// minDust is the relay dust floor in minor units.  Outputs below this
	// value are never created regardless of the fee rate.
	minDust uint64

	// feeUnits is the number of fee-rate units a plain transfer consumes
	// for account model assets.
	feeUnits uint64
}

var assets = map[AssetID]assetParams{
	AssetBTC: {name: "BTC", model: UTXOModel, minDust: 546},
	AssetBCH: {name: "BCH", model: UTXOModel, minDust: 546},
	AssetETH: {name: "ETH", model: AccountModel, feeUnits: 21000},
	AssetXLM: {name: "XLM", model: AccountModel, feeUnits: 1},
}

// IsValid returns whether the asset is known.
func (a AssetID) IsValid() bool {
	_, ok := assets[a]
	return ok
}

// String returns the ticker of the asset.
func (a AssetID) String() string {
	if p, ok := assets[a]; ok {
		return p.name
	}
	return fmt.Sprintf("AssetID(%d)", uint8(a))
}

// Model returns the ledger model of the asset.
func (a AssetID) Model() LedgerModel {
	return assets[a].model
}

// MinDust returns the fixed dust floor of the asset in minor units.
func (a AssetID) MinDust() uint64 {
	return assets[a].minDust
}

// FeeUnits returns the number of fee-rate units consumed by a transfer of an
// account model asset.  It is zero for UTXO model assets.
func (a AssetID) FeeUnits() uint64 {
	return assets[a].feeUnits
}

// ParseAssetID returns the asset for the given ticker.
func ParseAssetID(ticker string) (AssetID, error) {
	for id, p := range assets {
		if p.name == ticker {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAsset, ticker)
}
