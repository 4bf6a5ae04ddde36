// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build !js

package prompt

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// newReader returns a reader over the given lines.  Tests in this package
// are not parallel since they replace the package output.
func newReader(t *testing.T, lines ...string) *bufio.Reader {
	t.Helper()

	output = io.Discard
	isTerminal = func(int) bool { return false }
	return bufio.NewReader(strings.NewReader(
		strings.Join(lines, "\n") + "\n",
	))
}

func TestPassPrompt(t *testing.T) {
	// Empty replies are skipped unless allowed.
	pass, err := PassPrompt(newReader(t, "", "  secret "), "pw", false,
		false)
	require.NoError(t, err)
	require.Equal(t, []byte("secret"), pass)

	pass, err = PassPrompt(newReader(t, ""), "pw", true, true)
	require.NoError(t, err)
	require.Nil(t, pass)

	// A mismatched confirmation repeats the prompt.
	pass, err = NewWalletPassword(newReader(t, "a", "b", "c", "c"))
	require.NoError(t, err)
	require.Equal(t, []byte("c"), pass)

	_, err = WalletPassword(newReader(t))
	require.Error(t, err)
}

func TestConfirm(t *testing.T) {
	ok, err := Confirm(newReader(t, "maybe", "YES"), "Upload?", "no")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Confirm(newReader(t, ""), "Upload?", "no")
	require.NoError(t, err)
	require.False(t, ok)
}
