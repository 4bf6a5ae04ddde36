// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/walletcore/internal/prompt"
	"github.com/btcsuite/walletcore/internal/zero"
	"github.com/btcsuite/walletcore/recovery"
	"github.com/btcsuite/walletcore/wallet/coinselect"
	"github.com/btcsuite/walletcore/wallet/registry"
	"github.com/btcsuite/walletcore/wallet/txbuilder"
	"github.com/jessevdk/go-flags"
)

// commandHandler runs a command with the arguments following its name.
type commandHandler func(ctx context.Context, env *environment,
	args []string) error

type command struct {
	usage   string
	handler commandHandler
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"addutxo": {"Track a spendable output", addUTXO},
		"balance": {"Show the spendable balance of an account", balance},
		"select":  {"Select inputs for a payment", selectCoins},
		"sweep":   {"Select every effective output of an account", sweep},
		"recover": {"Recover a wallet payload from storage", recoverWallet},
		"migrate": {"Upgrade and store a wallet payload", migrateWallet},
	}
}

// commandUsage lists the commands for the help output.
func commandUsage() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "  %-10s%s\n", name, commands[name].usage)
	}
	return b.String()
}

// runCommand dispatches to the command named by the first argument.
func runCommand(ctx context.Context, env *environment, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("no command specified, choose one of:\n%s",
			commandUsage())
	}

	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q, choose one of:\n%s",
			args[0], commandUsage())
	}

	return cmd.handler(ctx, env, args[1:])
}

// parseCommandArgs parses the options of a command into opts.
func parseCommandArgs(name string, opts interface{}, args []string) error {
	parser := flags.NewParser(opts, flags.Default)
	parser.Name = "walletcore " + name

	rest, err := parser.ParseArgs(args)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return fmt.Errorf("unexpected arguments: %v", rest)
	}
	return nil
}

// AccountOptions name the account a command works on.
type AccountOptions struct {
	Asset   string `long:"asset" default:"BTC" description:"Asset ticker {BTC, BCH, ETH, XLM}"`
	Account uint32 `long:"account" description:"Account number"`
}

func (o *AccountOptions) asset() (coinselect.AssetID, error) {
	return coinselect.ParseAssetID(strings.ToUpper(o.Asset))
}

// parseOutPoint parses an outpoint in txid:index form.
func parseOutPoint(s string) (wire.OutPoint, error) {
	txid, index, ok := strings.Cut(s, ":")
	if !ok {
		return wire.OutPoint{}, fmt.Errorf("outpoint %q is not in "+
			"txid:index form", s)
	}
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return wire.OutPoint{}, err
	}
	idx, err := strconv.ParseUint(index, 10, 32)
	if err != nil {
		return wire.OutPoint{}, fmt.Errorf("invalid output index: %w",
			err)
	}
	return *wire.NewOutPoint(hash, uint32(idx)), nil
}

// addressScriptType returns the script type paying to addr.  Script hash
// addresses are assumed to nest a P2WPKH script.
func addressScriptType(addr btcutil.Address) (coinselect.ScriptType, error) {
	switch addr.(type) {
	case *btcutil.AddressPubKeyHash:
		return coinselect.P2PKH, nil
	case *btcutil.AddressWitnessPubKeyHash:
		return coinselect.P2WPKH, nil
	case *btcutil.AddressScriptHash:
		return coinselect.NestedP2WPKH, nil
	case *btcutil.AddressTaproot:
		return coinselect.P2TR, nil
	default:
		return 0, fmt.Errorf("unsupported address type %T", addr)
	}
}

// decodeAddress decodes an address of the active network and its script
// type.
func (e *environment) decodeAddress(s string) (btcutil.Address,
	coinselect.ScriptType, error) {

	addr, err := btcutil.DecodeAddress(s, e.cfg.activeNet)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if !addr.IsForNet(e.cfg.activeNet) {
		return nil, 0, fmt.Errorf("address %v is not for %s", addr,
			e.cfg.activeNet.Name)
	}
	scriptType, err := addressScriptType(addr)
	if err != nil {
		return nil, 0, err
	}
	return addr, scriptType, nil
}

func addUTXO(_ context.Context, env *environment, args []string) error {
	opts := struct {
		AccountOptions
		OutPoint      string `long:"outpoint" required:"true" description:"Output in txid:index form"`
		Amount        uint64 `long:"amount" required:"true" description:"Value in minor units"`
		ScriptType    string `long:"scripttype" default:"p2wpkh" description:"Script type {p2pkh, p2wpkh, np2wpkh, p2tr}"`
		Confirmations uint32 `long:"confs" description:"Confirmations of the output"`
		PkScript      string `long:"pkscript" description:"Hex encoded output script"`
	}{}
	if err := parseCommandArgs("addutxo", &opts, args); err != nil {
		return err
	}

	asset, err := opts.asset()
	if err != nil {
		return err
	}
	op, err := parseOutPoint(opts.OutPoint)
	if err != nil {
		return err
	}
	scriptType, err := coinselect.ParseScriptType(opts.ScriptType)
	if err != nil {
		return err
	}
	pkScript, err := hex.DecodeString(opts.PkScript)
	if err != nil {
		return fmt.Errorf("invalid output script: %w", err)
	}

	reg, err := env.registry()
	if err != nil {
		return err
	}
	err = reg.AddUTXOs(asset, opts.Account, coinselect.UTXO{
		OutPoint:      op,
		Asset:         asset,
		Amount:        opts.Amount,
		ScriptType:    scriptType,
		Confirmations: opts.Confirmations,
		PkScript:      pkScript,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(env.out, "Added %v to %v account %d\n", op, asset,
		opts.Account)
	return nil
}

func balance(_ context.Context, env *environment, args []string) error {
	var opts AccountOptions
	if err := parseCommandArgs("balance", &opts, args); err != nil {
		return err
	}
	asset, err := opts.asset()
	if err != nil {
		return err
	}

	reg, err := env.registry()
	if err != nil {
		return err
	}
	candidates := reg.Candidates(asset, opts.Account)

	fmt.Fprintf(env.out, "%v account %d: %d in %d outputs\n", asset,
		opts.Account, reg.Balance(asset, opts.Account), len(candidates))
	for _, u := range candidates {
		fmt.Fprintf(env.out, "  %v %d %v (%d confirmations)\n",
			u.OutPoint, u.Amount, u.ScriptType, u.Confirmations)
	}
	return nil
}

// SpendOptions are the options shared by select and sweep.
type SpendOptions struct {
	AccountOptions
	FeeRate uint64 `long:"feerate" description:"Fee rate per byte -- estimated when 0"`
	Speed   string `long:"speed" default:"regular" description:"Estimated fee speed {regular, priority}"`
	To      string `long:"to" description:"Destination address -- an unsigned PSBT is printed when set"`
	Commit  bool   `long:"commit" description:"Stop tracking the selected outputs"`
}

// spend selects and leases inputs, prints the selection and, when a
// destination is given, the unsigned transaction.  The lease is settled when
// commit is set and released otherwise.
func (e *environment) spend(ctx context.Context, opts *SpendOptions,
	asset coinselect.AssetID, dest btcutil.Address,
	change *txbuilder.ChangeSource, fn registry.SelectFunc) error {

	reg, err := e.registry()
	if err != nil {
		return err
	}
	lease, err := reg.Spend(ctx, asset, opts.Account, fn)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if err := reg.Release(lease.ID); err != nil {
			log.Warnf("Unable to release lease %v: %v", lease.ID,
				err)
		}
	}()

	result := lease.Result
	if len(result.Inputs) == 0 {
		fmt.Fprintln(e.out, "Nothing to spend")
		return nil
	}

	fmt.Fprintf(e.out, "Selected %d inputs (%d total)\n",
		len(result.Inputs), result.TotalInput())
	for _, in := range result.Inputs {
		fmt.Fprintf(e.out, "  %v %d\n", in.OutPoint, in.Amount)
	}
	fmt.Fprintf(e.out, "Target: %d\nChange: %d\nFee: %d\n",
		result.TargetAmount, result.ChangeAmount,
		result.EstimatedFeePaid)

	if dest != nil {
		b := txbuilder.Builder{RelayFeePerKb: e.cfg.RelayFee.Amount}
		unsigned, err := b.Build(result, dest, change)
		if err != nil {
			return err
		}
		packet, err := unsigned.Packet()
		if err != nil {
			return err
		}
		encoded, err := packet.B64Encode()
		if err != nil {
			return err
		}
		fmt.Fprintf(e.out, "PSBT: %s\n", encoded)
	}

	if opts.Commit {
		if err := reg.MarkSpent(lease.ID); err != nil {
			return err
		}
		committed = true
		fmt.Fprintln(e.out, "Selected outputs marked spent")
	}

	return nil
}

func selectCoins(ctx context.Context, env *environment, args []string) error {
	opts := struct {
		SpendOptions
		Amount     uint64 `long:"amount" required:"true" description:"Amount to send in minor units"`
		Strategy   string `long:"strategy" default:"largest" description:"Input order {largest, smallest, random}"`
		NoChange   bool   `long:"nochange" description:"Pay any leftover as fee instead of creating change"`
		ChangeAddr string `long:"changeaddr" description:"Change address used with --to"`
	}{}
	if err := parseCommandArgs("select", &opts, args); err != nil {
		return err
	}

	asset, err := opts.asset()
	if err != nil {
		return err
	}
	strategy, err := coinselect.ParseStrategy(opts.Strategy)
	if err != nil {
		return err
	}
	rate, err := env.feeRate(ctx, asset, opts.FeeRate, opts.Speed)
	if err != nil {
		return err
	}

	req := coinselect.Request{
		Asset:            asset,
		TargetAmount:     opts.Amount,
		FeeRatePerByte:   rate,
		AllowChange:      !opts.NoChange,
		Strategy:         strategy,
		ChangeScriptType: coinselect.P2PKH,
		OutputScriptType: coinselect.P2PKH,
	}

	var dest btcutil.Address
	if opts.To != "" {
		dest, req.OutputScriptType, err = env.decodeAddress(opts.To)
		if err != nil {
			return err
		}
	}

	var change *txbuilder.ChangeSource
	if opts.ChangeAddr != "" {
		changeAddr, changeType, err := env.decodeAddress(
			opts.ChangeAddr,
		)
		if err != nil {
			return err
		}
		req.ChangeScriptType = changeType
		change = &txbuilder.ChangeSource{
			NewScript: func() ([]byte, error) {
				return txscript.PayToAddrScript(changeAddr)
			},
			ScriptType: changeType,
		}
	}

	return env.spend(ctx, &opts.SpendOptions, asset, dest, change,
		func(candidates []coinselect.UTXO) (*coinselect.Result,
			error) {

			return coinselect.Select(req, candidates)
		},
	)
}

func sweep(ctx context.Context, env *environment, args []string) error {
	var opts SpendOptions
	if err := parseCommandArgs("sweep", &opts, args); err != nil {
		return err
	}

	asset, err := opts.asset()
	if err != nil {
		return err
	}
	rate, err := env.feeRate(ctx, asset, opts.FeeRate, opts.Speed)
	if err != nil {
		return err
	}

	outputType := coinselect.P2PKH
	var dest btcutil.Address
	if opts.To != "" {
		dest, outputType, err = env.decodeAddress(opts.To)
		if err != nil {
			return err
		}
	}

	return env.spend(ctx, &opts, asset, dest, nil,
		func(candidates []coinselect.UTXO) (*coinselect.Result,
			error) {

			return coinselect.SelectAll(
				asset, rate, outputType, candidates,
			)
		},
	)
}

// WalletOptions identify a stored wallet payload.
type WalletOptions struct {
	GUID      string `long:"guid" required:"true" description:"Wallet identifier"`
	SharedKey string `long:"sharedkey" required:"true" description:"Shared key authorizing storage access"`
}

// credentials prompts for the wallet password.  The caller owns the returned
// password and must zero it.
func (e *environment) credentials(opts *WalletOptions) (recovery.Credentials,
	error) {

	pw, err := prompt.WalletPassword(e.stdin)
	if err != nil {
		return recovery.Credentials{}, err
	}

	return recovery.Credentials{
		GUID:      opts.GUID,
		SharedKey: opts.SharedKey,
		Password:  zero.SecretFromBytes(pw),
	}, nil
}

// describeError returns the user facing description of a recovery failure.
func describeError(err error) error {
	var svcErr *recovery.ServiceError
	if !errors.As(err, &svcErr) {
		return err
	}

	switch {
	case errors.Is(err, recovery.ErrNotFound):
		return fmt.Errorf("wallet not found: %w", err)
	case errors.Is(err, recovery.ErrUnauthorized):
		return fmt.Errorf("storage refused the shared key: %w", err)
	case errors.Is(err, recovery.ErrDecryptFailed):
		return fmt.Errorf("unable to decrypt wallet, check the "+
			"password: %w", err)
	default:
		return err
	}
}

func recoverWallet(ctx context.Context, env *environment,
	args []string) error {

	var opts WalletOptions
	if err := parseCommandArgs("recover", &opts, args); err != nil {
		return err
	}

	svc, err := env.recoveryService(env.storageClient())
	if err != nil {
		return err
	}
	creds, err := env.credentials(&opts)
	if err != nil {
		return err
	}
	defer creds.Password.Zero()

	p, err := svc.Recover(ctx, creds)
	if err != nil {
		return describeError(err)
	}
	defer p.Wipe()

	fields := make([]string, 0, len(p.DecryptedFields))
	for k := range p.DecryptedFields {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	fmt.Fprintf(env.out, "Recovered wallet %s (payload version %d)\n",
		p.GUID, p.Version)
	fmt.Fprintf(env.out, "Fields: %s\n", strings.Join(fields, ", "))
	return nil
}

func migrateWallet(ctx context.Context, env *environment,
	args []string) error {

	opts := struct {
		WalletOptions
		Yes bool `short:"y" long:"yes" description:"Do not ask before storing the migrated payload"`
	}{}
	if err := parseCommandArgs("migrate", &opts, args); err != nil {
		return err
	}

	svc, err := env.recoveryService(env.storageClient())
	if err != nil {
		return err
	}
	creds, err := env.credentials(&opts.WalletOptions)
	if err != nil {
		return err
	}
	defer creds.Password.Zero()

	pw, err := prompt.NewWalletPassword(env.stdin)
	if err != nil {
		return err
	}
	newPass := zero.SecretFromBytes(pw)
	defer newPass.Zero()

	if !opts.Yes {
		ok, err := prompt.Confirm(env.stdin, "Store the migrated "+
			"payload in place of the current one?", "no")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(env.out, "Migration cancelled")
			return nil
		}
	}

	p, err := svc.Migrate(ctx, creds, newPass)
	if err != nil {
		return describeError(err)
	}
	defer p.Wipe()

	fmt.Fprintf(env.out, "Stored wallet %s at payload version %d\n",
		p.GUID, p.Version)
	return nil
}
