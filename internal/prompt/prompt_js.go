// Copyright (c) 2015-2021 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build js

package prompt

import (
	"bufio"
	"errors"
)

var errNoTerminal = errors.New("prompt not supported in WebAssembly")

func Confirm(_ *bufio.Reader, _ string, _ string) (bool, error) {
	return false, errNoTerminal
}

func PassPrompt(_ *bufio.Reader, _ string, _, _ bool) ([]byte, error) {
	return nil, errNoTerminal
}

func WalletPassword(_ *bufio.Reader) ([]byte, error) {
	return nil, errNoTerminal
}

func NewWalletPassword(_ *bufio.Reader) ([]byte, error) {
	return nil, errNoTerminal
}
