// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package registry

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/btcsuite/walletcore/wallet/coinselect"
	"github.com/lightningnetwork/lnd/tlv"
)

// Store persists the outputs tracked by a Registry.
type Store interface {
	// PutUTXOs inserts or replaces outputs of an account.
	PutUTXOs(key AccountKey, utxos []coinselect.UTXO) error

	// DeleteUTXOs removes outputs of an account.  Unknown outputs are
	// ignored.
	DeleteUTXOs(key AccountKey, ops []wire.OutPoint) error

	// ForEachUTXO calls fn for every stored output.
	ForEachUTXO(fn func(key AccountKey, u coinselect.UTXO) error) error
}

var (
	// utxoBucketKey is the top level bucket holding one record per
	// tracked output.
	utxoBucketKey = []byte("registry-utxos")
)

const (
	// utxoKeySize is the size of an output key:
	//   [0]     asset
	//   [1:5]   account
	//   [5:37]  transaction hash
	//   [37:41] output index
	utxoKeySize = 1 + 4 + chainhash.HashSize + 4

	typeUTXOAmount        tlv.Type = 0
	typeUTXOScriptType    tlv.Type = 1
	typeUTXOConfirmations tlv.Type = 2
	typeUTXOPkScript      tlv.Type = 3
)

// DBStore is a Store backed by a walletdb database.
type DBStore struct {
	db walletdb.DB
}

// A compile-time assertion to ensure DBStore meets the Store interface.
var _ Store = (*DBStore)(nil)

// NewDBStore creates the registry bucket in db if needed and returns a store
// using it.
func NewDBStore(db walletdb.DB) (*DBStore, error) {
	err := walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		_, err := tx.CreateTopLevelBucket(utxoBucketKey)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create registry bucket: %w",
			err)
	}

	return &DBStore{db: db}, nil
}

// PutUTXOs inserts or replaces outputs of an account.
func (s *DBStore) PutUTXOs(key AccountKey, utxos []coinselect.UTXO) error {
	return walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		ns := tx.ReadWriteBucket(utxoBucketKey)
		for _, u := range utxos {
			v, err := encodeUTXO(&u)
			if err != nil {
				return err
			}

			k := keyUTXO(key, &u.OutPoint)
			if err := ns.Put(k, v); err != nil {
				return fmt.Errorf("unable to put output %v: %w",
					u.OutPoint, err)
			}
		}
		return nil
	})
}

// DeleteUTXOs removes outputs of an account.
func (s *DBStore) DeleteUTXOs(key AccountKey, ops []wire.OutPoint) error {
	return walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		ns := tx.ReadWriteBucket(utxoBucketKey)
		for i := range ops {
			if err := ns.Delete(keyUTXO(key, &ops[i])); err != nil {
				return fmt.Errorf("unable to delete output "+
					"%v: %w", ops[i], err)
			}
		}
		return nil
	})
}

// ForEachUTXO calls fn for every stored output.
func (s *DBStore) ForEachUTXO(fn func(AccountKey, coinselect.UTXO) error) error {
	return walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		ns := tx.ReadBucket(utxoBucketKey)
		return ns.ForEach(func(k, v []byte) error {
			key, op, err := readUTXOKey(k)
			if err != nil {
				return err
			}

			u, err := decodeUTXO(v)
			if err != nil {
				return fmt.Errorf("unable to decode output %v: "+
					"%w", op, err)
			}
			u.OutPoint = op
			u.Asset = key.Asset

			return fn(key, u)
		})
	})
}

// keyUTXO returns the bucket key of an output.
func keyUTXO(key AccountKey, op *wire.OutPoint) []byte {
	k := make([]byte, utxoKeySize)
	k[0] = byte(key.Asset)
	binary.BigEndian.PutUint32(k[1:5], key.Account)
	copy(k[5:37], op.Hash[:])
	binary.BigEndian.PutUint32(k[37:41], op.Index)
	return k
}

// readUTXOKey parses a bucket key created by keyUTXO.
func readUTXOKey(k []byte) (AccountKey, wire.OutPoint, error) {
	var (
		key AccountKey
		op  wire.OutPoint
	)
	if len(k) != utxoKeySize {
		return key, op, fmt.Errorf("%w: bad key length %d",
			ErrUnknownOutput, len(k))
	}

	key.Asset = coinselect.AssetID(k[0])
	key.Account = binary.BigEndian.Uint32(k[1:5])
	copy(op.Hash[:], k[5:37])
	op.Index = binary.BigEndian.Uint32(k[37:41])

	return key, op, nil
}

// utxoRecords returns the TLV records of the stored output fields.
func utxoRecords(amount *uint64, scriptType *uint8, confs *uint32,
	pkScript *[]byte) []tlv.Record {

	return []tlv.Record{
		tlv.MakePrimitiveRecord(typeUTXOAmount, amount),
		tlv.MakePrimitiveRecord(typeUTXOScriptType, scriptType),
		tlv.MakePrimitiveRecord(typeUTXOConfirmations, confs),
		tlv.MakePrimitiveRecord(typeUTXOPkScript, pkScript),
	}
}

// encodeUTXO serializes the value of an output record as a TLV stream.
func encodeUTXO(u *coinselect.UTXO) ([]byte, error) {
	var (
		amount     = u.Amount
		scriptType = uint8(u.ScriptType)
		confs      = u.Confirmations
		pkScript   = u.PkScript
	)

	stream, err := tlv.NewStream(
		utxoRecords(&amount, &scriptType, &confs, &pkScript)...,
	)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	if err := stream.Encode(&b); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// decodeUTXO parses a record created by encodeUTXO.
func decodeUTXO(v []byte) (coinselect.UTXO, error) {
	var (
		amount     uint64
		scriptType uint8
		confs      uint32
		pkScript   []byte
	)

	stream, err := tlv.NewStream(
		utxoRecords(&amount, &scriptType, &confs, &pkScript)...,
	)
	if err != nil {
		return coinselect.UTXO{}, err
	}

	if err := stream.Decode(bytes.NewReader(v)); err != nil {
		return coinselect.UTXO{}, err
	}

	return coinselect.UTXO{
		Amount:        amount,
		ScriptType:    coinselect.ScriptType(scriptType),
		Confirmations: confs,
		PkScript:      pkScript,
	}, nil
}
