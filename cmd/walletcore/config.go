// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/walletcore/internal/cfgutil"
	"github.com/btcsuite/walletcore/payload"
	"github.com/btcsuite/walletcore/recovery"
	"github.com/btcsuite/walletcore/wallet/feeest"
	"github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "walletcore.conf"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "walletcore.log"
	defaultDBFilename     = "walletcore.db"
	defaultDBTimeout      = 60 * time.Second
	defaultStorageURL     = "https://blockchain.info"
	defaultRegularFee     = 10
	defaultPriorityFee    = 25
)

var (
	defaultAppDataDir = btcutil.AppDataDir("walletcore", false)
	defaultConfigFile = filepath.Join(defaultAppDataDir, defaultConfigFilename)
	defaultLogDir     = filepath.Join(defaultAppDataDir, defaultLogDirname)
)

type config struct {
	// General application behavior
	ConfigFile  *cfgutil.ExplicitString `short:"C" long:"configfile" description:"Path to configuration file"`
	ShowVersion bool                    `short:"V" long:"version" description:"Display version information and exit"`
	AppDataDir  string                  `short:"A" long:"appdata" description:"Application data directory for the output registry and cached payloads"`
	LogDir      string                  `long:"logdir" description:"Directory to log output"`
	DebugLevel  string                  `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical, off} or <subsystem>=<level>,... -- Use show to list available subsystems"`
	TestNet3    bool                    `long:"testnet" description:"Use the test bitcoin network (version 3)"`
	RegTest     bool                    `long:"regtest" description:"Use the regression test bitcoin network"`
	DBTimeout   time.Duration           `long:"dbtimeout" description:"Timeout for obtaining the database lock"`

	// Fee options
	FeeURL      string              `long:"feeurl" description:"Fee rate service endpoint, {asset} is replaced by the lowercase ticker -- static rates are used when unset"`
	FeeCacheTTL time.Duration       `long:"feecachettl" description:"How long fetched fee rates are reused"`
	RegularFee  uint64              `long:"regularfee" description:"Static regular fee rate per byte"`
	PriorityFee uint64              `long:"priorityfee" description:"Static priority fee rate per byte"`
	RelayFee    *cfgutil.AmountFlag `long:"relayfee" description:"Relay fee per kilobyte outputs are checked against -- 0 disables the check"`

	// Payload storage options
	StorageURL     string        `long:"storageurl" description:"Base URL of the wallet payload storage service"`
	StorageTimeout time.Duration `long:"storagetimeout" description:"Timeout of a single storage request"`
	FetchRetries   uint64        `long:"fetchretries" description:"Retries of a payload fetch after transient failures"`
	Iterations     uint32        `long:"iterations" description:"PBKDF2 iterations used for migrated payloads"`
	NoCache        bool          `long:"nocache" description:"Do not keep a local copy of fetched payloads"`

	activeNet *chaincfg.Params
}

// defaultConfig returns the config with every default applied.
func defaultConfig() config {
	return config{
		ConfigFile:     cfgutil.NewExplicitString(defaultConfigFile),
		AppDataDir:     defaultAppDataDir,
		LogDir:         defaultLogDir,
		DebugLevel:     defaultLogLevel,
		DBTimeout:      defaultDBTimeout,
		FeeCacheTTL:    feeest.DefaultCacheTTL,
		RegularFee:     defaultRegularFee,
		PriorityFee:    defaultPriorityFee,
		RelayFee:       cfgutil.NewAmountFlag(txrules.DefaultRelayFeePerKb),
		StorageURL:     defaultStorageURL,
		StorageTimeout: recovery.DefaultRequestTimeout,
		FetchRetries:   recovery.DefaultMaxRetries,
		Iterations:     payload.DefaultIterations,
	}
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(defaultAppDataDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// netDir returns the directory holding the databases of the active network.
func (c *config) netDir() string {
	return filepath.Join(c.AppDataDir, c.activeNet.Name)
}

// dbPath returns the path of the database of the active network.
func (c *config) dbPath() string {
	return filepath.Join(c.netDir(), defaultDBFilename)
}

// errShowVersion is returned by loadConfig when only the version was asked
// for.
var errShowVersion = errors.New("show version")

// newParser returns the parser of the global options.  Parsing stops at the
// first command name.
func newParser(cfg *config, options flags.Options) *flags.Parser {
	parser := flags.NewParser(cfg, options|flags.PassAfterNonOption)
	parser.Usage = "[OPTIONS] <command> [command options]\n\n" +
		"Commands:\n" + commandUsage()
	return parser
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The remaining arguments, starting with the command name, are returned.
func loadConfig(args []string) (*config, []string, error) {
	cfg := defaultConfig()

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.
	preCfg := cfg
	preParser := newParser(&preCfg, flags.HelpFlag)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
		}
		return nil, nil, err
	}

	if preCfg.ShowVersion {
		return nil, nil, errShowVersion
	}

	// Load additional config from file.  A missing config file is only an
	// error when it was named explicitly.
	configFile := cleanAndExpandPath(preCfg.ConfigFile.Value)
	var configFileError error
	parser := newParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(configFile)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) || preCfg.ConfigFile.ExplicitlySet() {
			return nil, nil, fmt.Errorf("unable to load config "+
				"file %s: %w", configFile, err)
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.ParseArgs(args)
	if err != nil {
		return nil, nil, err
	}

	numNets := 0
	cfg.activeNet = &chaincfg.MainNetParams
	if cfg.TestNet3 {
		cfg.activeNet = &chaincfg.TestNet3Params
		numNets++
	}
	if cfg.RegTest {
		cfg.activeNet = &chaincfg.RegressionNetParams
		numNets++
	}
	if numNets > 1 {
		return nil, nil, errors.New("the testnet and regtest params " +
			"can't be used together -- choose one")
	}

	cfg.AppDataDir = cleanAndExpandPath(cfg.AppDataDir)
	cfg.LogDir = filepath.Join(
		cleanAndExpandPath(cfg.LogDir), cfg.activeNet.Name,
	)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		return nil, nil, errShowVersion
	}

	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return nil, nil, err
	}

	if cfg.RegularFee == 0 || cfg.PriorityFee < cfg.RegularFee {
		return nil, nil, fmt.Errorf("invalid static fee rates: "+
			"regular %d, priority %d", cfg.RegularFee,
			cfg.PriorityFee)
	}
	if cfg.Iterations == 0 || cfg.Iterations > payload.MaxIterations {
		return nil, nil, fmt.Errorf("iterations must be in range "+
			"[1, %d]", payload.MaxIterations)
	}
	if cfg.StorageURL == "" {
		return nil, nil, errors.New("a storage URL is required")
	}
	cfg.StorageURL = strings.TrimSuffix(cfg.StorageURL, "/")

	// Warn about missing config file after the final command line parse
	// succeeds.  This prevents the warning on help messages and invalid
	// options.
	if configFileError != nil {
		log.Debugf("%v", configFileError)
	}

	return &cfg, remainingArgs, nil
}
