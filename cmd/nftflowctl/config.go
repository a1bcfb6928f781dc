package main

import (
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"

	"github.com/blockberries/nftflow/types"
)

const (
	transferSubCmd         = "transfer"
	createCollectionSubCmd = "createcollection"
	mintSubCmd             = "mint"
	batchMintSubCmd        = "batchmint"
	accountSubCmd          = "account"
	serveSubCmd            = "serve"
	gatewaySubCmd          = "gateway"
)

// configFlags are shared by every subcommand. Unset flags fall back to
// the environment and the .env file.
type configFlags struct {
	EnvFile string        `long:"envfile" description:"Path to a .env file" default:".env"`
	Gateway string        `short:"g" long:"gateway" description:"Remote gateway address; empty runs an in-process ledger"`
	Module  string        `short:"m" long:"module" description:"Collection module address"`
	Statsd  string        `long:"statsd" description:"StatsD address for metrics"`
	Timeout time.Duration `long:"timeout" description:"Finality timeout" default:"60s"`
	Verbose bool          `short:"v" long:"verbose" description:"Log lifecycle transitions"`
}

type transferConfig struct {
	To     string `short:"t" long:"to" description:"Recipient address"`
	Amount string `short:"a" long:"amount" description:"Amount in whole units, e.g. 0.5"`
	configFlags
}

type createCollectionConfig struct {
	Name        string `short:"n" long:"name" description:"Collection name"`
	Description string `short:"d" long:"description" description:"Collection description"`
	URI         string `short:"u" long:"uri" description:"Collection metadata URI"`
	MaxSupply   uint64 `short:"s" long:"maxsupply" description:"Maximum number of tokens"`
	configFlags
}

type mintConfig struct {
	Collection string `short:"c" long:"collection" description:"Collection address"`
	Amount     uint64 `short:"a" long:"amount" description:"Number of tokens to mint" default:"1"`
	configFlags
}

type batchMintConfig struct {
	Collection string `short:"c" long:"collection" description:"Collection address"`
	Count      uint64 `short:"n" long:"count" description:"Number of tokens to mint"`
	configFlags
}

type accountConfig struct {
	Limit int `short:"l" long:"limit" description:"Number of history entries to show" default:"10"`
	configFlags
}

type serveConfig struct {
	Listen string `short:"l" long:"listen" description:"HTTP listen address"`
	configFlags
}

type gatewayConfig struct {
	Listen string `short:"l" long:"listen" description:"gRPC listen address" default:"127.0.0.1:9090"`
	configFlags
}

func parseCommandLine() (subCommand string, config any) {
	cfg := &configFlags{}
	parser := flags.NewParser(cfg, flags.PrintErrors|flags.HelpFlag)

	transferConf := &transferConfig{}
	parser.AddCommand(transferSubCmd, "Transfer tokens", "Transfers native tokens to another account", transferConf)

	createCollectionConf := &createCollectionConfig{}
	parser.AddCommand(createCollectionSubCmd, "Create a collection", "Creates an NFT collection owned by the connected account", createCollectionConf)

	mintConf := &mintConfig{}
	parser.AddCommand(mintSubCmd, "Mint tokens", "Mints tokens from a collection", mintConf)

	batchMintConf := &batchMintConfig{}
	parser.AddCommand(batchMintSubCmd, "Batch mint tokens", "Mints several tokens from a collection in one transaction", batchMintConf)

	accountConf := &accountConfig{}
	parser.AddCommand(accountSubCmd, "Show the account", "Shows the connected account's balance and history", accountConf)

	serveConf := &serveConfig{}
	parser.AddCommand(serveSubCmd, "Serve the HTTP API", "Serves the action controls and account view over HTTP", serveConf)

	gatewayConf := &gatewayConfig{}
	parser.AddCommand(gatewaySubCmd, "Serve a sandbox gateway", "Serves an in-process ledger over gRPC", gatewayConf)

	_, err := parser.Parse()
	if err != nil {
		var flagsErr *flags.Error
		if ok := errors.As(err, &flagsErr); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	switch parser.Command.Active.Name {
	case transferSubCmd:
		combineFlags(&transferConf.configFlags, cfg)
		config = transferConf
	case createCollectionSubCmd:
		combineFlags(&createCollectionConf.configFlags, cfg)
		config = createCollectionConf
	case mintSubCmd:
		combineFlags(&mintConf.configFlags, cfg)
		validateCollection(mintConf.Collection)
		config = mintConf
	case batchMintSubCmd:
		combineFlags(&batchMintConf.configFlags, cfg)
		validateCollection(batchMintConf.Collection)
		config = batchMintConf
	case accountSubCmd:
		combineFlags(&accountConf.configFlags, cfg)
		config = accountConf
	case serveSubCmd:
		combineFlags(&serveConf.configFlags, cfg)
		config = serveConf
	case gatewaySubCmd:
		combineFlags(&gatewayConf.configFlags, cfg)
		config = gatewayConf
	}

	return parser.Command.Active.Name, config
}

// combineFlags fills subcommand flags left unset from the top-level
// ones.
func combineFlags(dst, src *configFlags) {
	if dst.Gateway == "" {
		dst.Gateway = src.Gateway
	}
	if dst.Module == "" {
		dst.Module = src.Module
	}
	if dst.Statsd == "" {
		dst.Statsd = src.Statsd
	}
	if dst.EnvFile == ".env" && src.EnvFile != "" {
		dst.EnvFile = src.EnvFile
	}
	dst.Verbose = dst.Verbose || src.Verbose
}

// validateCollection rejects a malformed collection address early.
// An empty one is left to the action's own validation.
func validateCollection(addr string) {
	if addr != "" && !types.ValidAddress(addr) {
		printErrorAndExit("collection must be a 0x-prefixed hex address")
	}
}
