// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package payload encrypts and decrypts the wallet metadata payload.
//
// A blob is a JSON wrapper
//
//	{"version":N,"pbkdf2_iterations":I,"payload":"<base64>"}
//
// whose payload is salt (16 bytes) | nonce (24 bytes) | ciphertext.  The key
// is derived from the password with PBKDF2-HMAC-SHA256 over the salt and the
// ciphertext is sealed with XChaCha20-Poly1305 authenticating the version and
// iteration count.  Blobs written by older versions are migrated to
// CurrentVersion when decrypted.
package payload

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/walletcore/internal/zero"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// CurrentVersion is the payload format version written by this
	// package.
	CurrentVersion = 4

	// MinVersion is the oldest format version that can be decrypted.
	MinVersion = 2

	// DefaultIterations is the PBKDF2 iteration count of new blobs.
	DefaultIterations = 5000

	// MaxIterations bounds the PBKDF2 iteration count read from a blob
	// or used for a new one.
	MaxIterations = 1000000

	saltSize = 16
	keySize  = chacha20poly1305.KeySize

	fieldGUID      = "guid"
	fieldSharedKey = "sharedKey"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// WalletPayload is the decrypted wallet metadata.
type WalletPayload struct {
	// GUID identifies the wallet.
	GUID string

	// SharedKey authenticates the wallet to the storage service.
	SharedKey string

	// Version is the format version of the payload.
	Version uint32

	// DecryptedFields holds every other field of the payload.
	DecryptedFields map[string]any
}

// Wipe drops the payload contents.  It should be called when the session
// holding the payload is locked or ends.
func (p *WalletPayload) Wipe() {
	for k := range p.DecryptedFields {
		delete(p.DecryptedFields, k)
	}
	p.DecryptedFields = nil
	p.GUID = ""
	p.SharedKey = ""
	p.Version = 0
}

// wrapper is the outer, unencrypted JSON object of a blob.
type wrapper struct {
	Version    uint32 `json:"version"`
	Iterations uint32 `json:"pbkdf2_iterations"`
	Payload    string `json:"payload"`
}

// associatedData returns the data authenticated alongside the ciphertext.
func (w *wrapper) associatedData() []byte {
	var ad [8]byte
	binary.BigEndian.PutUint32(ad[:4], w.Version)
	binary.BigEndian.PutUint32(ad[4:], w.Iterations)
	return ad[:]
}

// Codec encrypts and decrypts payloads.
type Codec struct {
	// Iterations is the PBKDF2 iteration count used for new blobs.
	Iterations uint32
}

// DefaultCodec encrypts with DefaultIterations.
var DefaultCodec = &Codec{Iterations: DefaultIterations}

// Decrypt decrypts blob with DefaultCodec.
func Decrypt(blob, password []byte) (*WalletPayload, error) {
	return DefaultCodec.Decrypt(blob, password)
}

// Encrypt encrypts p with DefaultCodec.
func Encrypt(p *WalletPayload, password []byte) ([]byte, error) {
	return DefaultCodec.Encrypt(p, password)
}

// EncryptAndVerify encrypts p with DefaultCodec and checks the result
// decrypts back to p.
func EncryptAndVerify(p *WalletPayload, password []byte) ([]byte, error) {
	return DefaultCodec.EncryptAndVerify(p, password)
}

// deriveKey stretches the password into a cipher key.  The caller clears
// the key with zero.Bytea32.
func deriveKey(password, salt []byte, iterations uint32) *[keySize]byte {
	derived := pbkdf2.Key(
		password, salt, int(iterations), keySize, sha256.New,
	)
	defer zero.Bytes(derived)

	var key [keySize]byte
	copy(key[:], derived)
	return &key
}

// Decrypt decrypts and parses a blob.  The version is checked before any key
// derivation.  Payloads of older versions are migrated to CurrentVersion.
func (c *Codec) Decrypt(blob, password []byte) (*WalletPayload, error) {
	var w wrapper
	if err := json.Unmarshal(blob, &w); err != nil {
		return nil, payloadError(ErrCorrupt, 0,
			"unable to parse wrapper", err)
	}

	if w.Version > CurrentVersion || w.Version < MinVersion {
		str := fmt.Sprintf("version %d not in supported range "+
			"[%d, %d]", w.Version, MinVersion, CurrentVersion)
		return nil, payloadError(ErrUnsupportedVersion, w.Version, str,
			nil)
	}
	if w.Iterations == 0 || w.Iterations > MaxIterations {
		str := fmt.Sprintf("pbkdf2 iterations %d not in range "+
			"[1, %d]", w.Iterations, MaxIterations)
		return nil, payloadError(ErrCorrupt, w.Version, str, nil)
	}

	raw, err := base64.StdEncoding.DecodeString(w.Payload)
	if err != nil {
		return nil, payloadError(ErrCorrupt, w.Version,
			"unable to decode payload", err)
	}
	minSize := saltSize + chacha20poly1305.NonceSizeX +
		chacha20poly1305.Overhead
	if len(raw) < minSize {
		str := fmt.Sprintf("payload of %d bytes is shorter than %d",
			len(raw), minSize)
		return nil, payloadError(ErrCorrupt, w.Version, str, nil)
	}

	salt := raw[:saltSize]
	nonce := raw[saltSize : saltSize+chacha20poly1305.NonceSizeX]
	ciphertext := raw[saltSize+chacha20poly1305.NonceSizeX:]

	key := deriveKey(password, salt, w.Iterations)
	defer zero.Bytea32(key)

	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, payloadError(ErrCorrupt, w.Version,
			"unable to create cipher", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, w.associatedData())
	if err != nil {
		return nil, payloadError(ErrWrongPassword, w.Version,
			"unable to authenticate payload", err)
	}
	defer zero.Bytes(plaintext)

	fields := make(map[string]any)
	if err := json.Unmarshal(plaintext, &fields); err != nil {
		return nil, payloadError(ErrCorrupt, w.Version,
			"unable to parse payload", err)
	}

	guid, _ := fields[fieldGUID].(string)
	sharedKey, _ := fields[fieldSharedKey].(string)
	if guid == "" || sharedKey == "" {
		return nil, payloadError(ErrCorrupt, w.Version,
			"payload is missing guid or shared key", nil)
	}
	delete(fields, fieldGUID)
	delete(fields, fieldSharedKey)

	if err := upgrade(w.Version, fields); err != nil {
		return nil, payloadError(ErrCorrupt, w.Version,
			"unable to migrate payload", err)
	}

	if w.Version != CurrentVersion {
		log.Infof("Migrated wallet payload from version %d to %d",
			w.Version, CurrentVersion)
	}

	return &WalletPayload{
		GUID:            guid,
		SharedKey:       sharedKey,
		Version:         CurrentVersion,
		DecryptedFields: fields,
	}, nil
}

// Encrypt serializes and encrypts p at CurrentVersion with a fresh salt and
// nonce.
//
// Payloads of an older supported version are migrated first.  On success p
// is left in the form Decrypt returns: Version is CurrentVersion and
// DecryptedFields holds only JSON values (float64 numbers, []any lists and
// map[string]any objects), so decrypting the blob yields a payload equal to
// p.
func (c *Codec) Encrypt(p *WalletPayload, password []byte) ([]byte, error) {
	if p.Version > CurrentVersion || p.Version < MinVersion {
		str := fmt.Sprintf("cannot encrypt version %d payload, "+
			"supported range is [%d, %d]", p.Version, MinVersion,
			CurrentVersion)
		return nil, payloadError(ErrUnsupportedVersion, p.Version, str,
			nil)
	}
	if p.GUID == "" || p.SharedKey == "" {
		return nil, payloadError(ErrInvalidPayload, p.Version,
			"payload is missing guid or shared key", nil)
	}

	iterations := c.Iterations
	if iterations == 0 {
		iterations = DefaultIterations
	}
	if iterations > MaxIterations {
		str := fmt.Sprintf("pbkdf2 iterations %d exceed %d",
			iterations, MaxIterations)
		return nil, payloadError(ErrInvalidPayload, p.Version, str,
			nil)
	}

	fields, err := normalizeFields(p.DecryptedFields)
	if err != nil {
		return nil, payloadError(ErrInvalidPayload, p.Version,
			"unable to serialize payload", err)
	}
	if err := upgrade(p.Version, fields); err != nil {
		return nil, payloadError(ErrInvalidPayload, p.Version,
			"unable to migrate payload", err)
	}

	current := &WalletPayload{
		GUID:            p.GUID,
		SharedKey:       p.SharedKey,
		Version:         CurrentVersion,
		DecryptedFields: fields,
	}
	plaintext, err := marshalFields(current)
	if err != nil {
		return nil, payloadError(ErrInvalidPayload, p.Version,
			"unable to serialize payload", err)
	}
	defer zero.Bytes(plaintext)

	raw := make([]byte, saltSize+chacha20poly1305.NonceSizeX,
		saltSize+chacha20poly1305.NonceSizeX+len(plaintext)+
			chacha20poly1305.Overhead)
	if _, err := rand.Read(raw); err != nil {
		return nil, payloadError(ErrEncrypt, CurrentVersion,
			"unable to generate salt", err)
	}
	salt := raw[:saltSize]
	nonce := raw[saltSize:]

	key := deriveKey(password, salt, iterations)
	defer zero.Bytea32(key)

	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, payloadError(ErrEncrypt, CurrentVersion,
			"unable to create cipher", err)
	}

	w := wrapper{
		Version:    CurrentVersion,
		Iterations: iterations,
	}
	raw = aead.Seal(raw, nonce, plaintext, w.associatedData())
	w.Payload = base64.StdEncoding.EncodeToString(raw)

	blob, err := json.Marshal(&w)
	if err != nil {
		return nil, payloadError(ErrEncrypt, CurrentVersion,
			"unable to serialize wrapper", err)
	}

	if p.Version != CurrentVersion {
		log.Infof("Migrated wallet payload from version %d to %d "+
			"before encryption", p.Version, CurrentVersion)
	}
	p.Version = CurrentVersion
	p.DecryptedFields = fields

	return blob, nil
}

// EncryptAndVerify encrypts p and checks the blob decrypts back to the same
// payload before returning it.
func (c *Codec) EncryptAndVerify(p *WalletPayload,
	password []byte) ([]byte, error) {

	blob, err := c.Encrypt(p, password)
	if err != nil {
		return nil, err
	}

	decrypted, err := c.Decrypt(blob, password)
	if err != nil {
		return nil, payloadError(ErrVerifyFailed, CurrentVersion,
			"unable to decrypt new blob", err)
	}
	defer decrypted.Wipe()

	want, err := marshalFields(p)
	if err != nil {
		return nil, payloadError(ErrVerifyFailed, CurrentVersion,
			"unable to serialize payload", err)
	}
	defer zero.Bytes(want)

	got, err := marshalFields(decrypted)
	if err != nil {
		return nil, payloadError(ErrVerifyFailed, CurrentVersion,
			"unable to serialize decrypted payload", err)
	}
	defer zero.Bytes(got)

	if !bytes.Equal(want, got) {
		return nil, payloadError(ErrVerifyFailed, CurrentVersion,
			"decrypted payload differs from the original", nil)
	}

	return blob, nil
}

// normalizeFields returns a deep copy of fields holding only the values JSON
// decoding produces.  The guid and shared key are dropped since they live in
// their own payload fields.
func normalizeFields(fields map[string]any) (map[string]any, error) {
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	defer zero.Bytes(b)

	var normalized map[string]any
	if err := json.Unmarshal(b, &normalized); err != nil {
		return nil, err
	}
	if normalized == nil {
		normalized = make(map[string]any)
	}
	delete(normalized, fieldGUID)
	delete(normalized, fieldSharedKey)

	return normalized, nil
}

// marshalFields serializes the payload fields including guid and shared key.
// Map keys are sorted so equal payloads serialize identically.
func marshalFields(p *WalletPayload) ([]byte, error) {
	fields := make(map[string]any, len(p.DecryptedFields)+2)
	for k, v := range p.DecryptedFields {
		fields[k] = v
	}
	fields[fieldGUID] = p.GUID
	fields[fieldSharedKey] = p.SharedKey

	return json.Marshal(fields)
}

// Checksum returns the hex encoded SHA-256 of a blob.  The storage service
// uses it to detect concurrent modification.
func Checksum(blob []byte) string {
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}
