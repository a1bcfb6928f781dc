package main

import (
	"context"
	"log"
	"os"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/blockberries/nftflow"
	"github.com/blockberries/nftflow/config"
	nftflowgrpc "github.com/blockberries/nftflow/grpc"
	"github.com/blockberries/nftflow/local"
	"github.com/blockberries/nftflow/orchestrator"
	"github.com/blockberries/nftflow/types"
	"github.com/blockberries/nftflow/viewstate"
)

var logger = log.New(os.Stderr, "nftflowctl: ", log.LstdFlags)

// app is a connected session with its action controls.
type app struct {
	cfg      *config.Config
	gw       nftflow.Gateway
	ledger   *local.Ledger
	stats    statsd.ClientInterface
	session  *viewstate.Session
	registry *orchestrator.Registry

	stopWatch context.CancelFunc
}

// newApp loads configuration, connects to the gateway and attaches a
// session to the wallet's account.
func newApp(ctx context.Context, flags *configFlags) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	stats, err := cfg.Stats()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, stats: stats}
	if cfg.GatewayAddr == "" {
		a.ledger = newLedger(cfg)
		a.gw = a.ledger
	} else {
		client, err := nftflowgrpc.Dial(ctx, cfg.GatewayAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			_ = stats.Close()
			return nil, err
		}
		if _, err := client.SyncAccount(ctx); err != nil {
			client.Close()
			_ = stats.Close()
			return nil, errors.Wrapf(err, "query wallet account at %s", cfg.GatewayAddr)
		}
		a.gw = client

		watchCtx, cancel := context.WithCancel(ctx)
		a.stopWatch = cancel
		go client.Watch(watchCtx, cfg.PollInterval, logger)
	}

	a.session = viewstate.NewSession(a.gw, a.gw, viewstate.SessionOptions{
		PollInterval: cfg.PollInterval,
		Cache:        cfg.SnapshotCache(),
		Logger:       logger,
		Stats:        stats,
	})
	a.session.Start(ctx)

	var observer orchestrator.Observer
	if flags.Verbose {
		observer = func(kind types.ActionKind, from, to orchestrator.State) {
			logger.Printf("%s: %s -> %s", kind, from, to)
		}
	}
	a.registry = orchestrator.NewRegistry(cfg.Targets(), a.gw, a.session, orchestrator.Options{
		Logger:          logger,
		Stats:           stats,
		Observer:        observer,
		FinalityTimeout: flags.Timeout,
	})
	return a, nil
}

// store returns the connected account's store after one refresh.
func (a *app) store(ctx context.Context) (*viewstate.Store, error) {
	store, ok := a.session.Current()
	if !ok {
		return nil, nftflow.ErrNotConnected
	}
	if err := store.Refresh(ctx); err != nil {
		return nil, errors.Wrap(err, "read account")
	}
	return store, nil
}

func (a *app) Close() {
	if a.stopWatch != nil {
		a.stopWatch()
	}
	a.registry.Wait()
	a.session.Close()
	_ = a.gw.Close()
	_ = a.stats.Close()
}

func loadConfig(flags *configFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.EnvFile)
	if err != nil {
		return nil, errors.Wrap(err, "load configuration")
	}
	if flags.Gateway != "" {
		cfg.GatewayAddr = flags.Gateway
	}
	if flags.Module != "" {
		if !types.ValidAddress(flags.Module) {
			return nil, errors.Errorf("module %q is not a valid address", flags.Module)
		}
		cfg.ModuleAddress = flags.Module
	}
	if flags.Statsd != "" {
		cfg.StatsdAddr = flags.Statsd
	}
	return cfg, nil
}

// newLedger creates a sandbox ledger with the configured account
// funded and connected.
func newLedger(cfg *config.Config) *local.Ledger {
	ledger := local.New(local.Options{Targets: cfg.Targets(), Logger: logger})
	ledger.Fund(cfg.Account, cfg.StartBalance)
	ledger.Connect(cfg.Account)
	return ledger
}
