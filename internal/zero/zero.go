// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package zero contains functions to clear secrets from memory.
package zero

// Bytes sets all bytes in the passed slice to zero.  This is used to
// explicitly clear passwords and derived keys from memory.
func Bytes(b []byte) {
	z := [32]byte{}
	n := uint(copy(b, z[:]))
	for n < uint(len(b)) {
		copy(b[n:], b[:n])
		n <<= 1
	}
}

// Bytea32 clears the 32-byte array by filling it with the zero value.
// This is used to explicitly clear key material from memory.
func Bytea32(b *[32]byte) {
	*b = [32]byte{}
}

// Secret is a byte copy of a sensitive string that can be cleared once it is
// no longer needed.  Go strings are immutable and cannot be wiped, so
// secrets should be converted as early as possible and passed around as a
// Secret.
type Secret struct {
	b []byte
}

// NewSecret copies s into a new Secret.
func NewSecret(s string) *Secret {
	return &Secret{b: []byte(s)}
}

// SecretFromBytes takes ownership of b.  The caller must not use b after the
// Secret is zeroed.
func SecretFromBytes(b []byte) *Secret {
	return &Secret{b: b}
}

// Bytes returns the secret.  The returned slice is cleared by Zero.
func (s *Secret) Bytes() []byte {
	if s == nil {
		return nil
	}
	return s.b
}

// Len returns the length of the secret.  A nil Secret is empty.
func (s *Secret) Len() int {
	if s == nil {
		return 0
	}
	return len(s.b)
}

// Zero clears the secret.  It is safe to call more than once and on a nil
// Secret.
func (s *Secret) Zero() {
	if s == nil {
		return
	}
	Bytes(s.b)
	s.b = s.b[:0]
}
