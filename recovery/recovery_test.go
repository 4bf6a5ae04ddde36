// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package recovery

import (
	"context"
	"errors"
	"testing"

	"github.com/btcsuite/walletcore/internal/zero"
	"github.com/btcsuite/walletcore/payload"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testGUID      = "7e0e7d5a-8f8b-4f0e-9d8a-7f3b2c1d0e9f"
	testSharedKey = "b9e1f1c4-3a2d-4c5b-8e7f-6a5b4c3d2e1f"
	testPassword  = "correct horse battery staple"
)

// testCodec keeps key derivation cheap.
var testCodec = &payload.Codec{Iterations: 10}

// mockFetcher is a mock implementation of the BlobFetcher interface.
type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) FetchEncryptedBlob(ctx context.Context,
	guid string) ([]byte, error) {

	args := m.Called(ctx, guid)
	blob, _ := args.Get(0).([]byte)
	return blob, args.Error(1)
}

// mockSaver is a mock implementation of the BlobSaver interface.
type mockSaver struct {
	mock.Mock
}

func (m *mockSaver) SaveEncryptedBlob(ctx context.Context, guid string,
	blob []byte, checksum string) error {

	args := m.Called(ctx, guid, blob, checksum)
	return args.Error(0)
}

func testCredentials() Credentials {
	return Credentials{
		GUID:      testGUID,
		SharedKey: testSharedKey,
		Password:  zero.NewSecret(testPassword),
	}
}

// testBlob encrypts a payload for the given wallet.
func testBlob(t *testing.T, guid, sharedKey, password string) []byte {
	t.Helper()

	blob, err := testCodec.Encrypt(&payload.WalletPayload{
		GUID:      guid,
		SharedKey: sharedKey,
		Version:   payload.CurrentVersion,
		DecryptedFields: map[string]any{
			"hd_wallets": []any{},
		},
	}, []byte(password))
	require.NoError(t, err)

	return blob
}

// withSharedKey matches contexts carrying the test shared key.
var withSharedKey = mock.MatchedBy(func(ctx context.Context) bool {
	key, ok := SharedKeyFromContext(ctx)
	return ok && key == testSharedKey
})

// requireCreateError asserts err is a creation failure with the given code.
func requireCreateError(t *testing.T, err error, code CreateErrorCode) {
	t.Helper()

	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr), "got %v", err)
	require.Equal(t, CreationFailure, svcErr.Kind)
	require.Equal(t, code, svcErr.Err.Code)
	require.ErrorIs(t, err, code)
}

// TestRecover checks a payload is fetched, decrypted and verified.
func TestRecover(t *testing.T) {
	t.Parallel()

	fetcher := &mockFetcher{}
	fetcher.On("FetchEncryptedBlob", withSharedKey, testGUID).Return(
		testBlob(t, testGUID, testSharedKey, testPassword), nil,
	).Once()

	svc := New(Config{Fetcher: fetcher, Codec: testCodec})
	p, err := svc.Recover(context.Background(), testCredentials())
	require.NoError(t, err)
	require.Equal(t, testGUID, p.GUID)
	require.Equal(t, testSharedKey, p.SharedKey)
	require.Equal(t, uint32(payload.CurrentVersion), p.Version)
	fetcher.AssertExpectations(t)
}

// TestRecoverInvalidFormat checks malformed credentials fail without
// contacting storage.
func TestRecoverInvalidFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Credentials)
		rootErr error
	}{
		{
			name:    "malformed guid",
			mutate:  func(c *Credentials) { c.GUID = "not-a-guid" },
			rootErr: ErrInvalidGUID,
		},
		{
			name:    "empty guid",
			mutate:  func(c *Credentials) { c.GUID = "" },
			rootErr: ErrInvalidGUID,
		},
		{
			name: "uppercase guid",
			mutate: func(c *Credentials) {
				c.GUID = "7E0E7D5A-8F8B-4F0E-9D8A-7F3B2C1D0E9F"
			},
			rootErr: ErrInvalidGUID,
		},
		{
			name: "braced guid",
			mutate: func(c *Credentials) {
				c.GUID = "{" + testGUID + "}"
			},
			rootErr: ErrInvalidGUID,
		},
		{
			name:    "malformed shared key",
			mutate:  func(c *Credentials) { c.SharedKey = "abc" },
			rootErr: ErrInvalidSharedKey,
		},
		{
			name: "empty password",
			mutate: func(c *Credentials) {
				c.Password = zero.NewSecret("")
			},
			rootErr: ErrEmptyPassword,
		},
		{
			name:    "no password",
			mutate:  func(c *Credentials) { c.Password = nil },
			rootErr: ErrEmptyPassword,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			fetcher := &mockFetcher{}
			svc := New(Config{Fetcher: fetcher, Codec: testCodec})

			creds := testCredentials()
			test.mutate(&creds)

			p, err := svc.Recover(context.Background(), creds)
			require.Nil(t, p)
			requireCreateError(t, err, ErrInvalidFormat)
			require.ErrorIs(t, err, test.rootErr)
			fetcher.AssertNotCalled(
				t, "FetchEncryptedBlob", mock.Anything,
				mock.Anything,
			)
		})
	}
}

// TestRecoverFailures checks each failing step maps to its code and keeps
// the root cause reachable.
func TestRecoverFailures(t *testing.T) {
	t.Parallel()

	otherGUID := "0b5d3c8e-1f2a-4b6c-9d7e-8f9a0b1c2d3e"

	tests := []struct {
		name    string
		blob    []byte
		err     error
		code    CreateErrorCode
		rootErr error
	}{
		{
			name:    "not found",
			err:     ErrNotFound,
			code:    ErrFetchFailed,
			rootErr: ErrNotFound,
		},
		{
			name:    "unreachable",
			err:     ErrUnreachable,
			code:    ErrFetchFailed,
			rootErr: ErrUnreachable,
		},
		{
			name:    "cancelled",
			err:     context.Canceled,
			code:    ErrFetchFailed,
			rootErr: context.Canceled,
		},
		{
			name: "wrong password",
			blob: testBlob(
				t, testGUID, testSharedKey, "other password",
			),
			code:    ErrDecryptFailed,
			rootErr: payload.ErrWrongPassword,
		},
		{
			name:    "corrupt blob",
			blob:    []byte("{}"),
			code:    ErrDecryptFailed,
			rootErr: payload.ErrUnsupportedVersion,
		},
		{
			name: "other wallet",
			blob: testBlob(
				t, otherGUID, testSharedKey, testPassword,
			),
			code:    ErrVerifyFailed,
			rootErr: ErrCredentialsMismatch,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			fetcher := &mockFetcher{}
			fetcher.On(
				"FetchEncryptedBlob", mock.Anything, testGUID,
			).Return(test.blob, test.err)

			svc := New(Config{Fetcher: fetcher, Codec: testCodec})
			p, err := svc.Recover(
				context.Background(), testCredentials(),
			)
			require.Nil(t, p)
			requireCreateError(t, err, test.code)
			require.ErrorIs(t, err, test.rootErr)
		})
	}
}

// TestRecoverCancelledContext checks an attempt abandoned through its
// context returns no payload.
func TestRecoverCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	fetcher := &mockFetcher{}
	fetcher.On("FetchEncryptedBlob", mock.Anything, testGUID).Run(
		func(mock.Arguments) { cancel() },
	).Return(testBlob(t, testGUID, testSharedKey, testPassword), nil)

	svc := New(Config{Fetcher: fetcher, Codec: testCodec})
	p, err := svc.Recover(ctx, testCredentials())
	require.Nil(t, p)
	requireCreateError(t, err, ErrFetchFailed)
	require.ErrorIs(t, err, context.Canceled)
}

// TestRecoverZeroesPassword checks the caller's password buffer is cleared
// on success and on every failure.
func TestRecoverZeroesPassword(t *testing.T) {
	t.Parallel()

	blob := testBlob(t, testGUID, testSharedKey, testPassword)

	tests := []struct {
		name     string
		guid     string
		password string
		blob     []byte
		err      error
	}{
		{
			name:     "success",
			guid:     testGUID,
			password: testPassword,
			blob:     blob,
		},
		{
			name:     "invalid format",
			guid:     "x",
			password: testPassword,
		},
		{
			name:     "fetch failure",
			guid:     testGUID,
			password: testPassword,
			err:      ErrTimeout,
		},
		{
			name:     "decrypt failure",
			guid:     testGUID,
			password: "wrong",
			blob:     blob,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			fetcher := &mockFetcher{}
			fetcher.On(
				"FetchEncryptedBlob", mock.Anything, testGUID,
			).Return(test.blob, test.err)

			svc := New(Config{Fetcher: fetcher, Codec: testCodec})

			buf := []byte(test.password)
			creds := Credentials{
				GUID:      test.guid,
				SharedKey: testSharedKey,
				Password:  zero.SecretFromBytes(buf),
			}
			_, _ = svc.Recover(context.Background(), creds)
			require.Equal(t, make([]byte, len(buf)), buf)
			require.Zero(t, creds.Password.Len())
		})
	}
}

// TestRecoverNoFetcher checks a service without storage fails instead of
// dereferencing a nil fetcher.
func TestRecoverNoFetcher(t *testing.T) {
	t.Parallel()

	svc := New(Config{Codec: testCodec})
	p, err := svc.Recover(context.Background(), testCredentials())
	require.Nil(t, p)
	requireCreateError(t, err, ErrFetchFailed)
}

// TestMigrate checks a payload is re-encrypted under the new password and
// stored with its checksum.
func TestMigrate(t *testing.T) {
	t.Parallel()

	const newPassword = "new password"

	fetcher := &mockFetcher{}
	fetcher.On("FetchEncryptedBlob", withSharedKey, testGUID).Return(
		testBlob(t, testGUID, testSharedKey, testPassword), nil,
	)

	var saved []byte
	saver := &mockSaver{}
	saver.On(
		"SaveEncryptedBlob", withSharedKey, testGUID, mock.Anything,
		mock.Anything,
	).Run(func(args mock.Arguments) {
		saved = args.Get(2).([]byte)
		require.Equal(t, payload.Checksum(saved), args.String(3))
	}).Return(nil).Once()

	svc := New(Config{Fetcher: fetcher, Saver: saver, Codec: testCodec})

	oldBuf := []byte(testPassword)
	newBuf := []byte(newPassword)
	creds := testCredentials()
	creds.Password = zero.SecretFromBytes(oldBuf)

	p, err := svc.Migrate(
		context.Background(), creds, zero.SecretFromBytes(newBuf),
	)
	require.NoError(t, err)
	require.Equal(t, testGUID, p.GUID)
	saver.AssertExpectations(t)

	// Both caller buffers are cleared.
	require.Equal(t, make([]byte, len(oldBuf)), oldBuf)
	require.Equal(t, make([]byte, len(newBuf)), newBuf)

	got, err := testCodec.Decrypt(saved, []byte(newPassword))
	require.NoError(t, err)
	require.Equal(t, p, got)

	_, err = testCodec.Decrypt(saved, []byte(testPassword))
	require.ErrorIs(t, err, payload.ErrWrongPassword)
}

// TestMigrateFailures checks the migration specific failures.
func TestMigrateFailures(t *testing.T) {
	t.Parallel()

	blob := testBlob(t, testGUID, testSharedKey, testPassword)

	fetcher := &mockFetcher{}
	fetcher.On("FetchEncryptedBlob", mock.Anything, testGUID).Return(
		blob, nil,
	)

	// Without storage the payload cannot be migrated.
	svc := New(Config{Fetcher: fetcher, Codec: testCodec})
	_, err := svc.Migrate(context.Background(), testCredentials(), nil)
	requireCreateError(t, err, ErrSaveFailed)

	saver := &mockSaver{}
	saver.On(
		"SaveEncryptedBlob", mock.Anything, testGUID, mock.Anything,
		mock.Anything,
	).Return(ErrUnreachable)

	svc = New(Config{Fetcher: fetcher, Saver: saver, Codec: testCodec})
	_, err = svc.Migrate(context.Background(), testCredentials(), nil)
	requireCreateError(t, err, ErrSaveFailed)
	require.ErrorIs(t, err, ErrUnreachable)
}
