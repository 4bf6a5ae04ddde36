// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package payload

import (
	"errors"
	"fmt"
)

const (
	fieldHDWallets         = "hd_wallets"
	fieldAccounts          = "accounts"
	fieldXPriv             = "xpriv"
	fieldXPub              = "xpub"
	fieldDerivations       = "derivations"
	fieldDefaultDerivation = "default_derivation"
	fieldType              = "type"
	fieldPurpose           = "purpose"

	// derivationLegacy is the derivation type of BIP44 P2PKH accounts.
	derivationLegacy = "legacy"

	// purposeLegacy is the BIP44 purpose of legacy derivations.
	purposeLegacy = 44
)

// errMalformed is returned by a migration that finds a field of an
// unexpected type.
var errMalformed = errors.New("malformed field")

// version describes a single upgrade step of the payload format.
type version struct {
	// number is the version the migration upgrades to.
	number uint32

	// migration transforms the fields of a payload of version number-1
	// in place.
	migration func(fields map[string]any) error
}

// versions are the upgrade steps in order.  The last entry must upgrade to
// CurrentVersion.
var versions = []version{
	{number: 3, migration: addHDWallets},
	{number: 4, migration: addDerivations},
}

// upgrade applies every migration newer than from.
func upgrade(from uint32, fields map[string]any) error {
	for _, v := range versions {
		if v.number <= from {
			continue
		}
		if err := v.migration(fields); err != nil {
			return fmt.Errorf("upgrade to version %d: %w", v.number,
				err)
		}
		log.Debugf("Upgraded payload to version %d", v.number)
	}
	return nil
}

// addHDWallets introduces the empty list of HD wallets version 3 payloads
// carry.
func addHDWallets(fields map[string]any) error {
	if _, ok := fields[fieldHDWallets]; ok {
		return nil
	}
	fields[fieldHDWallets] = []any{}
	return nil
}

// addDerivations moves the keys of each HD account into a list of
// derivations, tagging the existing keys as the legacy derivation.
func addDerivations(fields map[string]any) error {
	hdWallets, err := list(fields, fieldHDWallets)
	if err != nil {
		return err
	}

	for i, hdWallet := range hdWallets {
		wallet, ok := hdWallet.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %s[%d]", errMalformed,
				fieldHDWallets, i)
		}

		accounts, err := list(wallet, fieldAccounts)
		if err != nil {
			return err
		}

		for j, a := range accounts {
			account, ok := a.(map[string]any)
			if !ok {
				return fmt.Errorf("%w: %s[%d]", errMalformed,
					fieldAccounts, j)
			}
			upgradeAccount(account)
		}
	}

	return nil
}

// upgradeAccount converts a single account.  Accounts that already have
// derivations are left alone.
func upgradeAccount(account map[string]any) {
	if _, ok := account[fieldDerivations]; ok {
		return
	}

	derivation := map[string]any{
		fieldType:    derivationLegacy,
		fieldPurpose: float64(purposeLegacy),
	}
	for _, k := range []string{fieldXPriv, fieldXPub} {
		if v, ok := account[k]; ok {
			derivation[k] = v
			delete(account, k)
		}
	}

	account[fieldDerivations] = []any{derivation}
	account[fieldDefaultDerivation] = derivationLegacy
}

// list returns the list stored under key, or nil if absent.
func list(fields map[string]any, key string) ([]any, error) {
	v, ok := fields[key]
	if !ok || v == nil {
		return nil, nil
	}

	l, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errMalformed, key)
	}
	return l, nil
}
