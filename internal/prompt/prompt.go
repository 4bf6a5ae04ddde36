// Copyright (c) 2015-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build !js

package prompt

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/btcsuite/walletcore/internal/zero"
	"golang.org/x/term"
)

var (
	// output receives the prompts.
	output io.Writer = os.Stdout

	// isTerminal reports whether passphrases can be read without echo.
	isTerminal = term.IsTerminal
)

// readPassword reads a passphrase without echo when stdin is a terminal and
// falls back to reading a line from reader otherwise.
var readPassword = func(reader *bufio.Reader) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if isTerminal(fd) {
		pass, err := term.ReadPassword(fd)
		fmt.Fprint(output, "\n")
		return pass, err
	}

	line, err := reader.ReadBytes('\n')
	if err != nil && (err != io.EOF || len(line) == 0) {
		return nil, err
	}
	return line, nil
}

// promptList prompts the user with the given prefix, list of valid responses,
// and default list entry to use.  The function will repeat the prompt to the
// user until they enter a valid response.
func promptList(reader *bufio.Reader, prefix string, validResponses []string,
	defaultEntry string) (string, error) {

	validStrings := strings.Join(validResponses, "/")
	var prompt string
	if defaultEntry != "" {
		prompt = fmt.Sprintf("%s (%s) [%s]: ", prefix, validStrings,
			defaultEntry)
	} else {
		prompt = fmt.Sprintf("%s (%s): ", prefix, validStrings)
	}

	for {
		fmt.Fprint(output, prompt)
		reply, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		reply = strings.TrimSpace(strings.ToLower(reply))
		if reply == "" {
			reply = defaultEntry
		}

		for _, validResponse := range validResponses {
			if reply == validResponse {
				return reply, nil
			}
		}
	}
}

// Confirm prompts the user for a yes/no answer with the given prefix.
func Confirm(reader *bufio.Reader, prefix string,
	defaultEntry string) (bool, error) {

	valid := []string{"n", "no", "y", "yes"}
	response, err := promptList(reader, prefix, valid, defaultEntry)
	if err != nil {
		return false, err
	}
	return response == "yes" || response == "y", nil
}

// PassPrompt prompts the user for a passphrase with the given prefix.  When
// confirm is set the passphrase must be entered twice.  Empty passphrases are
// only returned when allowEmpty is set, otherwise the prompt repeats.
func PassPrompt(reader *bufio.Reader, prefix string, confirm,
	allowEmpty bool) ([]byte, error) {

	prompt := fmt.Sprintf("%s: ", prefix)
	for {
		fmt.Fprint(output, prompt)
		pass, err := readPassword(reader)
		if err != nil {
			return nil, err
		}
		pass = bytes.TrimSpace(pass)
		if len(pass) == 0 {
			if allowEmpty {
				return nil, nil
			}
			continue
		}

		if !confirm {
			return pass, nil
		}

		fmt.Fprint(output, "Confirm passphrase: ")
		again, err := readPassword(reader)
		if err != nil {
			zero.Bytes(pass)
			return nil, err
		}
		again = bytes.TrimSpace(again)
		match := bytes.Equal(pass, again)
		zero.Bytes(again)
		if !match {
			zero.Bytes(pass)
			fmt.Fprintln(output, "The entered passphrases do not match")
			continue
		}

		return pass, nil
	}
}

// WalletPassword prompts for the password the wallet payload is encrypted
// with.
func WalletPassword(reader *bufio.Reader) ([]byte, error) {
	return PassPrompt(reader, "Enter the wallet password", false, false)
}

// NewWalletPassword prompts for the password a migrated payload is encrypted
// with.  An empty reply keeps the current password and returns nil.
func NewWalletPassword(reader *bufio.Reader) ([]byte, error) {
	return PassPrompt(reader, "Enter a new wallet password (empty to "+
		"keep the current one)", true, true)
}
