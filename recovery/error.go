// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package recovery

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by storage when no wallet exists for a
	// GUID.
	ErrNotFound = errors.New("wallet not found")

	// ErrUnreachable is returned by storage when the service cannot be
	// reached or fails.
	ErrUnreachable = errors.New("storage unreachable")

	// ErrTimeout is returned by storage when a request timed out.
	ErrTimeout = errors.New("storage request timed out")

	// ErrUnauthorized is returned by storage when the shared key is
	// rejected.
	ErrUnauthorized = errors.New("storage rejected credentials")

	// ErrChecksumMismatch is returned by storage when a saved blob does
	// not match its checksum.
	ErrChecksumMismatch = errors.New("blob checksum mismatch")

	// ErrInvalidGUID is returned for a GUID that is not a canonical UUID.
	ErrInvalidGUID = errors.New("invalid wallet guid")

	// ErrInvalidSharedKey is returned for a shared key that is not a
	// canonical UUID.
	ErrInvalidSharedKey = errors.New("invalid shared key")

	// ErrEmptyPassword is returned when no password is given.
	ErrEmptyPassword = errors.New("empty password")

	// ErrCredentialsMismatch is returned when a decrypted payload belongs
	// to a different wallet than requested.
	ErrCredentialsMismatch = errors.New("payload does not match " +
		"credentials")
)

// CreateErrorCode identifies the stage of wallet creation that failed.
type CreateErrorCode int

// These constants are used to identify a specific CreateError.
const (
	// ErrInvalidFormat indicates the credentials are malformed.  Storage
	// is never contacted.
	ErrInvalidFormat CreateErrorCode = iota

	// ErrFetchFailed indicates the encrypted blob could not be fetched.
	ErrFetchFailed

	// ErrDecryptFailed indicates the blob could not be decrypted.
	ErrDecryptFailed

	// ErrVerifyFailed indicates the decrypted payload did not match the
	// credentials or a re-encrypted blob did not verify.
	ErrVerifyFailed

	// ErrSaveFailed indicates a migrated blob could not be stored.
	ErrSaveFailed
)

// Map of CreateErrorCode values back to their constant names for pretty
// printing.
var createErrorCodeStrings = map[CreateErrorCode]string{
	ErrInvalidFormat: "ErrInvalidFormat",
	ErrFetchFailed:   "ErrFetchFailed",
	ErrDecryptFailed: "ErrDecryptFailed",
	ErrVerifyFailed:  "ErrVerifyFailed",
	ErrSaveFailed:    "ErrSaveFailed",
}

// String returns the CreateErrorCode as a human-readable name.
func (e CreateErrorCode) String() string {
	if s := createErrorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown CreateErrorCode (%d)", int(e))
}

// Error returns the name of the code, so codes can be matched with
// errors.Is.
func (e CreateErrorCode) Error() string {
	return e.String()
}

// CreateError describes a failed step of wallet creation from recovery
// credentials.
type CreateError struct {
	Code        CreateErrorCode // Describes the kind of error
	Description string          // Human readable description of the issue
	Err         error           // Underlying error
}

// Error satisfies the error interface and prints human-readable errors.
func (e *CreateError) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap returns the underlying error.
func (e *CreateError) Unwrap() error {
	return e.Err
}

// Is matches the error against its code.
func (e *CreateError) Is(target error) bool {
	code, ok := target.(CreateErrorCode)
	return ok && code == e.Code
}

// ServiceErrorKind is the category of a ServiceError.
type ServiceErrorKind int

const (
	// CreationFailure indicates the wallet could not be created from the
	// recovery credentials.
	CreationFailure ServiceErrorKind = iota
)

// String returns the kind name.
func (k ServiceErrorKind) String() string {
	switch k {
	case CreationFailure:
		return "creation failure"
	default:
		return fmt.Sprintf("ServiceErrorKind(%d)", int(k))
	}
}

// ServiceError is the error returned by Service operations.
type ServiceError struct {
	Kind ServiceErrorKind
	Err  *CreateError
}

// Error satisfies the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("wallet %v: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying CreateError.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// creationError creates a creation failure ServiceError.
func creationError(c CreateErrorCode, desc string, err error) error {
	return &ServiceError{
		Kind: CreationFailure,
		Err: &CreateError{
			Code:        c,
			Description: desc,
			Err:         err,
		},
	}
}
