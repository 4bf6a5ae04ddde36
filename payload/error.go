// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package payload

import "fmt"

// ErrorCode identifies a kind of error.  Codes are errors themselves so
// callers can match them with errors.Is.
type ErrorCode int

// These constants are used to identify a specific Error.
const (
	// ErrWrongPassword indicates the payload could not be authenticated
	// with the given password.
	ErrWrongPassword ErrorCode = iota

	// ErrCorrupt indicates the blob or the payload inside it is
	// malformed.
	ErrCorrupt

	// ErrUnsupportedVersion indicates the blob was written by a newer or
	// unknown format version.
	ErrUnsupportedVersion

	// ErrInvalidPayload indicates a payload handed in for encryption is
	// missing required fields.
	ErrInvalidPayload

	// ErrEncrypt indicates encryption failed.
	ErrEncrypt

	// ErrVerifyFailed indicates an encrypted blob did not decrypt back to
	// the payload it was created from.
	ErrVerifyFailed
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrWrongPassword:      "ErrWrongPassword",
	ErrCorrupt:            "ErrCorrupt",
	ErrUnsupportedVersion: "ErrUnsupportedVersion",
	ErrInvalidPayload:     "ErrInvalidPayload",
	ErrEncrypt:            "ErrEncrypt",
	ErrVerifyFailed:       "ErrVerifyFailed",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error returns the name of the code.
func (e ErrorCode) Error() string {
	return e.String()
}

// Error provides a single type for errors that can happen while encoding or
// decoding payloads.
type Error struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Version     uint32    // Format version of the blob, when known
	Description string    // Human readable description of the issue
	Err         error     // Underlying error
}

// Error satisfies the error interface and prints human-readable errors.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the error against its code.
func (e *Error) Is(target error) bool {
	code, ok := target.(ErrorCode)
	return ok && code == e.ErrorCode
}

// payloadError creates an Error given a set of arguments.
func payloadError(c ErrorCode, version uint32, desc string, err error) error {
	return &Error{
		ErrorCode:   c,
		Version:     version,
		Description: desc,
		Err:         err,
	}
}
