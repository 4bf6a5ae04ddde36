// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package zero_test

import (
	"testing"

	"github.com/btcsuite/walletcore/internal/zero"
	"github.com/stretchr/testify/require"
)

func makeOneBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = 1
	}
	return b
}

func TestBytes(t *testing.T) {
	t.Parallel()

	tests := []int{0, 31, 32, 33, 127, 128, 129, 255, 256, 257, 511, 513}

	for _, n := range tests {
		b := makeOneBytes(n)
		zero.Bytes(b)
		require.Equal(t, make([]byte, n), b, "n=%d", n)
	}
}

func TestBytea32(t *testing.T) {
	t.Parallel()

	var b [32]byte
	copy(b[:], makeOneBytes(32))
	zero.Bytea32(&b)
	require.Equal(t, [32]byte{}, b)
}

func TestSecret(t *testing.T) {
	t.Parallel()

	buf := []byte("correct horse battery staple")
	s := zero.SecretFromBytes(buf)
	require.Equal(t, len(buf), s.Len())

	s.Zero()
	require.Equal(t, make([]byte, len(buf)), buf)
	require.Zero(t, s.Len())

	// Zeroing twice is a no-op.
	s.Zero()

	s = zero.NewSecret("hunter2")
	require.Equal(t, []byte("hunter2"), s.Bytes())

	// A nil Secret is empty and can be zeroed.
	var empty *zero.Secret
	require.Zero(t, empty.Len())
	require.Nil(t, empty.Bytes())
	empty.Zero()
}
