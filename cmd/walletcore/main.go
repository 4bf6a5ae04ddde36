// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jessevdk/go-flags"
)

// appVersion is the version reported by --version.
const appVersion = "0.1.0"

func main() {
	if err := walletcoreMain(); err != nil {
		os.Exit(1)
	}
}

// walletcoreMain is the real main function.  It is necessary to work around
// the fact that deferred functions do not run when os.Exit() is called.
func walletcoreMain() error {
	cfg, args, err := loadConfig(os.Args[1:])
	switch {
	case errors.Is(err, errShowVersion):
		fmt.Println(filepath.Base(os.Args[0]), "version", appVersion)
		return nil

	case err != nil:
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) {
			if flagsErr.Type == flags.ErrHelp {
				return nil
			}
			return err
		}
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	err = initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer logRotator.Close()

	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer cancel()

	env := newEnvironment(cfg, os.Stdin, os.Stdout)
	defer env.close()

	if err := runCommand(ctx, env, args); err != nil {
		log.Errorf("%v", err)
		return err
	}

	return nil
}
