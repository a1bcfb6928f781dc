package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/hako/durafmt"
	"github.com/pkg/errors"
	"google.golang.org/grpc"

	"github.com/blockberries/nftflow"
	nftflowgrpc "github.com/blockberries/nftflow/grpc"
	"github.com/blockberries/nftflow/httpapi"
	"github.com/blockberries/nftflow/orchestrator"
	"github.com/blockberries/nftflow/payload"
	"github.com/blockberries/nftflow/types"
)

func transfer(ctx context.Context, cfg *transferConfig) error {
	a, err := newApp(ctx, &cfg.configFlags)
	if err != nil {
		return err
	}
	defer a.Close()
	if _, err := a.store(ctx); err != nil {
		return err
	}

	in := types.TransferInput{To: cfg.To}
	if cfg.Amount != "" {
		if in.Amount, err = payload.ParseAmount(cfg.Amount); err != nil {
			return err
		}
	}
	return report(a.registry.Transfer.Submit(ctx, in))
}

func createCollection(ctx context.Context, cfg *createCollectionConfig) error {
	a, err := newApp(ctx, &cfg.configFlags)
	if err != nil {
		return err
	}
	defer a.Close()
	if _, err := a.store(ctx); err != nil {
		return err
	}
	return report(a.registry.CreateCollection.Submit(ctx, types.CreateCollectionInput{
		Name:        cfg.Name,
		Description: cfg.Description,
		URI:         cfg.URI,
		MaxSupply:   cfg.MaxSupply,
	}))
}

func mint(ctx context.Context, cfg *mintConfig) error {
	a, err := newApp(ctx, &cfg.configFlags)
	if err != nil {
		return err
	}
	defer a.Close()
	if _, err := a.store(ctx); err != nil {
		return err
	}
	return report(a.registry.Mint.Submit(ctx, types.MintInput{CollectionID: cfg.Collection, Amount: cfg.Amount}))
}

func batchMint(ctx context.Context, cfg *batchMintConfig) error {
	a, err := newApp(ctx, &cfg.configFlags)
	if err != nil {
		return err
	}
	defer a.Close()
	if _, err := a.store(ctx); err != nil {
		return err
	}
	return report(a.registry.BatchMint.Submit(ctx, types.BatchMintInput{CollectionID: cfg.Collection, Count: cfg.Count}))
}

func account(ctx context.Context, cfg *accountConfig) error {
	a, err := newApp(ctx, &cfg.configFlags)
	if err != nil {
		return err
	}
	defer a.Close()
	store, err := a.store(ctx)
	if err != nil {
		return err
	}

	snap := store.Snapshot()
	fmt.Printf("Account: %s\n", snap.Address)
	fmt.Printf("Balance: %s\n", payload.FormatAmount(snap.Balance, types.CoinDecimals))
	if len(snap.History) == 0 {
		fmt.Println("No transactions.")
		return nil
	}
	fmt.Println("History:")
	for i, r := range snap.History {
		if i == cfg.Limit {
			break
		}
		status := "success"
		if !r.Success {
			status = "failed: " + r.VMStatus
		}
		age := durafmt.Parse(time.Since(r.Time())).LimitFirstN(1).String()
		fmt.Printf("  %s  %-17s %s ago  %s\n", r.Hash, r.Kind, age, status)
	}
	return nil
}

func serve(ctx context.Context, cfg *serveConfig) error {
	a, err := newApp(ctx, &cfg.configFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := cfg.Listen
	if addr == "" {
		addr = a.cfg.HTTPAddr
	}
	srv := httpapi.NewServer(a.registry, a.session, logger)
	return errors.Wrap(srv.ListenAndServe(ctx, addr), "serve HTTP API")
}

func gateway(ctx context.Context, cfg *gatewayConfig) error {
	conf, err := loadConfig(&cfg.configFlags)
	if err != nil {
		return err
	}
	ledger := newLedger(conf)

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", cfg.Listen)
	}
	gs := grpc.NewServer()
	nftflowgrpc.NewGRPCServer(ledger, logger).Register(gs)
	logger.Printf("sandbox gateway for %s on %s", conf.Account, lis.Addr())

	errc := make(chan error, 1)
	go func() { errc <- gs.Serve(lis) }()
	select {
	case <-ctx.Done():
		gs.GracefulStop()
		return nil
	case err := <-errc:
		return errors.Wrap(err, "serve gateway")
	}
}

// report prints an action outcome and returns its error.
func report(out orchestrator.Outcome, err error) error {
	if err != nil {
		if out.Message == "" {
			return errors.New(nftflow.UserMessage(err))
		}
		return errors.New(out.Message)
	}
	fmt.Println(out.Message)
	if out.Call != nil {
		fmt.Printf("  call:  %s\n", out.Call)
	}
	return nil
}
