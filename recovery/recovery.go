// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package recovery restores the wallet metadata payload from recovery
// credentials.
package recovery

import (
	"context"
	"fmt"

	"github.com/btcsuite/walletcore/internal/zero"
	"github.com/btcsuite/walletcore/payload"
	"github.com/google/uuid"
)

// Credentials identify and unlock a wallet.
type Credentials struct {
	GUID      string
	SharedKey string

	// Password unlocks the payload.  Recover and Migrate take ownership
	// of it and zero it before returning.
	Password *zero.Secret
}

// String returns the GUID only.  Secrets are never printed.
func (c Credentials) String() string {
	return c.GUID
}

// BlobFetcher retrieves encrypted payload blobs.
type BlobFetcher interface {
	// FetchEncryptedBlob returns the blob stored for the wallet.  The
	// shared key authenticating the request is carried by ctx, see
	// WithSharedKey.
	FetchEncryptedBlob(ctx context.Context, guid string) ([]byte, error)
}

// BlobSaver stores encrypted payload blobs.
type BlobSaver interface {
	// SaveEncryptedBlob replaces the blob stored for the wallet.
	SaveEncryptedBlob(ctx context.Context, guid string, blob []byte,
		checksum string) error
}

type sharedKeyCtxKey struct{}

// WithSharedKey returns a context carrying the shared key used to
// authenticate storage requests.
func WithSharedKey(ctx context.Context, sharedKey string) context.Context {
	return context.WithValue(ctx, sharedKeyCtxKey{}, sharedKey)
}

// SharedKeyFromContext returns the shared key carried by ctx.
func SharedKeyFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(sharedKeyCtxKey{}).(string)
	return key, ok
}

// Config holds the collaborators of a Service.
type Config struct {
	// Fetcher retrieves encrypted blobs.
	Fetcher BlobFetcher

	// Saver stores migrated blobs.  Migrate fails when nil.
	Saver BlobSaver

	// Codec decrypts and encrypts payloads.  payload.DefaultCodec is
	// used when nil.
	Codec *payload.Codec
}

// Service creates wallets from recovery credentials.
type Service struct {
	cfg Config
}

// New returns a Service using the given collaborators.
func New(cfg Config) *Service {
	if cfg.Codec == nil {
		cfg.Codec = payload.DefaultCodec
	}
	return &Service{cfg: cfg}
}

// validateUUID checks s is a UUID in canonical lowercase form.
func validateUUID(s string) error {
	id, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	if id.String() != s {
		return fmt.Errorf("%q is not in canonical form", s)
	}
	return nil
}

// validateCredentials checks the credentials are well formed.
func validateCredentials(creds *Credentials) error {
	if err := validateUUID(creds.GUID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidGUID, err)
	}
	if err := validateUUID(creds.SharedKey); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSharedKey, err)
	}
	if creds.Password.Len() == 0 {
		return ErrEmptyPassword
	}
	return nil
}

// Recover fetches and decrypts the payload of the wallet identified by the
// credentials.  Malformed credentials fail before storage is contacted.  The
// password is cleared before returning.
//
// Errors are returned as a *ServiceError of kind CreationFailure whose
// CreateError code names the failed step.
func (s *Service) Recover(ctx context.Context,
	creds Credentials) (*payload.WalletPayload, error) {

	defer creds.Password.Zero()

	return s.recover(ctx, &creds)
}

// recover runs the recovery steps.  The caller clears the password.
func (s *Service) recover(ctx context.Context,
	creds *Credentials) (*payload.WalletPayload, error) {

	if err := validateCredentials(creds); err != nil {
		return nil, creationError(ErrInvalidFormat,
			"invalid recovery credentials", err)
	}

	if s.cfg.Fetcher == nil {
		return nil, creationError(ErrFetchFailed,
			"no storage to fetch wallet payload from", nil)
	}

	log.Debugf("Fetching payload of wallet %v", creds)

	ctx = WithSharedKey(ctx, creds.SharedKey)
	blob, err := s.cfg.Fetcher.FetchEncryptedBlob(ctx, creds.GUID)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, creationError(ErrFetchFailed,
			"unable to fetch wallet payload", err)
	}

	p, err := s.cfg.Codec.Decrypt(blob, creds.Password.Bytes())
	if err != nil {
		return nil, creationError(ErrDecryptFailed,
			"unable to decrypt wallet payload", err)
	}

	if p.GUID != creds.GUID || p.SharedKey != creds.SharedKey {
		p.Wipe()
		return nil, creationError(ErrVerifyFailed,
			"unable to verify wallet payload", ErrCredentialsMismatch)
	}

	if err := ctx.Err(); err != nil {
		p.Wipe()
		return nil, creationError(ErrFetchFailed,
			"recovery abandoned", err)
	}

	log.Infof("Recovered payload of wallet %v", creds)

	return p, nil
}

// Migrate recovers the payload, re-encrypts it at the current version and
// stores it.  The new blob is encrypted under newPassword, or under the
// recovery password when newPassword is empty.  Both passwords are cleared
// before returning.
func (s *Service) Migrate(ctx context.Context, creds Credentials,
	newPassword *zero.Secret) (*payload.WalletPayload, error) {

	defer creds.Password.Zero()
	defer newPassword.Zero()

	target := newPassword
	if target.Len() == 0 {
		target = creds.Password
	}

	p, err := s.recover(ctx, &creds)
	if err != nil {
		return nil, err
	}

	if s.cfg.Saver == nil {
		p.Wipe()
		return nil, creationError(ErrSaveFailed,
			"no storage for migrated payload", nil)
	}

	blob, err := s.cfg.Codec.EncryptAndVerify(p, target.Bytes())
	if err != nil {
		p.Wipe()
		return nil, creationError(ErrVerifyFailed,
			"unable to re-encrypt wallet payload", err)
	}

	ctx = WithSharedKey(ctx, creds.SharedKey)
	err = s.cfg.Saver.SaveEncryptedBlob(
		ctx, creds.GUID, blob, payload.Checksum(blob),
	)
	if err != nil {
		p.Wipe()
		return nil, creationError(ErrSaveFailed,
			"unable to store migrated payload", err)
	}

	log.Infof("Stored version %d payload of wallet %v", p.Version, creds)

	return p, nil
}
