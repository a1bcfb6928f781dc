package nftflowtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blockberries/nftflow"
	"github.com/blockberries/nftflow/payload"
	"github.com/blockberries/nftflow/types"
)

// GatewayFixture is a gateway with a connected, funded account.
type GatewayFixture struct {
	Gateway nftflow.Gateway
	Targets payload.Targets
	// Balance is the account's starting balance in smallest units.
	Balance uint64
}

// RunGatewaySuite runs a standard compliance suite against a gateway
// that executes calls against real chain state.
//
// The factory must return a fresh gateway for each test, with an
// account connected and funded with more than 10_000 smallest units.
func RunGatewaySuite(t *testing.T, factory func(t *testing.T) GatewayFixture) {
	t.Helper()

	t.Run("account_connected", func(t *testing.T) {
		fx := factory(t)
		addr, ok := fx.Gateway.Account()
		if !ok {
			t.Fatal("expected a connected account")
		}
		if !types.ValidAddress(addr) {
			t.Errorf("connected account %q is not a valid address", addr)
		}
	})

	t.Run("read_balance", func(t *testing.T) {
		fx := factory(t)
		addr, _ := fx.Gateway.Account()
		bal, err := fx.Gateway.ReadBalance(context.Background(), addr)
		if err != nil {
			t.Fatalf("ReadBalance: %v", err)
		}
		if bal != fx.Balance {
			t.Errorf("balance = %d, want %d", bal, fx.Balance)
		}
	})

	t.Run("transfer_finalizes", func(t *testing.T) {
		fx := factory(t)
		addr, _ := fx.Gateway.Account()
		rec := submitAndWait(t, fx.Gateway, payload.Transfer(fx.Targets, "0xb0b", decimalUnits(1000)))
		if !rec.Success {
			t.Fatalf("transfer aborted: %s", rec.VMStatus)
		}
		bal, err := fx.Gateway.ReadBalance(context.Background(), addr)
		if err != nil {
			t.Fatalf("ReadBalance: %v", err)
		}
		if bal != fx.Balance-1000 {
			t.Errorf("balance = %d, want %d", bal, fx.Balance-1000)
		}
		recipient, _ := fx.Gateway.ReadBalance(context.Background(), "0xb0b")
		if recipient != 1000 {
			t.Errorf("recipient balance = %d, want 1000", recipient)
		}
	})

	t.Run("history_most_recent_first", func(t *testing.T) {
		fx := factory(t)
		addr, _ := fx.Gateway.Account()
		first := submitAndWait(t, fx.Gateway, payload.Transfer(fx.Targets, "0xb0b", decimalUnits(1)))
		second := submitAndWait(t, fx.Gateway, payload.Transfer(fx.Targets, "0xb0b", decimalUnits(2)))

		history, err := fx.Gateway.ReadHistory(context.Background(), addr)
		if err != nil {
			t.Fatalf("ReadHistory: %v", err)
		}
		if len(history) < 2 {
			t.Fatalf("expected at least 2 records, got %d", len(history))
		}
		if history[0].Hash != second.Hash || history[1].Hash != first.Hash {
			t.Errorf("history order = [%s %s], want [%s %s]",
				history[0].Hash, history[1].Hash, second.Hash, first.Hash)
		}
		if history[1].Timestamp > history[0].Timestamp {
			t.Error("history timestamps are not most recent first")
		}
	})

	t.Run("abort_is_not_an_error", func(t *testing.T) {
		fx := factory(t)
		addr, _ := fx.Gateway.Account()
		rec := submitAndWait(t, fx.Gateway, payload.Transfer(fx.Targets, "0xb0b", decimalUnits(fx.Balance+1)))
		if rec.Success {
			t.Fatal("overdrawn transfer should abort")
		}
		if rec.VMStatus == "" {
			t.Error("aborted record should carry a VM status")
		}
		bal, _ := fx.Gateway.ReadBalance(context.Background(), addr)
		if bal != fx.Balance {
			t.Errorf("aborted transfer moved funds: balance = %d, want %d", bal, fx.Balance)
		}
	})

	t.Run("collection_create_and_mint", func(t *testing.T) {
		fx := factory(t)
		addr, _ := fx.Gateway.Account()
		created := submitAndWait(t, fx.Gateway, payload.CreateCollection(fx.Targets, addr,
			"Compliance", "suite collection", "https://example.com/c.json", 10))
		if !created.Success {
			t.Fatalf("create_collection aborted: %s", created.VMStatus)
		}
		if !types.ValidAddress(created.Collection) {
			t.Fatalf("create_collection record has no collection address: %q", created.Collection)
		}

		minted := submitAndWait(t, fx.Gateway, payload.MintNFT(fx.Targets, created.Collection, 1))
		if !minted.Success {
			t.Fatalf("mint_nft aborted: %s", minted.VMStatus)
		}
		batch := submitAndWait(t, fx.Gateway, payload.BatchMintNFTs(fx.Targets, created.Collection, 9))
		if !batch.Success {
			t.Fatalf("batch_mint_nfts aborted: %s", batch.VMStatus)
		}
		over := submitAndWait(t, fx.Gateway, payload.MintNFT(fx.Targets, created.Collection, 1))
		if over.Success {
			t.Error("mint beyond max supply should abort")
		}
	})

	t.Run("unknown_function_rejected_at_submit", func(t *testing.T) {
		fx := factory(t)
		call := types.CallDescriptor{
			Function:  fx.Targets.Function("no_such_function"),
			Arguments: []types.Argument{types.U64(1)},
		}
		if _, err := fx.Gateway.SubmitAndSign(context.Background(), call); err == nil {
			t.Error("expected submission of an unknown function to fail")
		}
	})

	t.Run("wait_unknown_hash", func(t *testing.T) {
		fx := factory(t)
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		_, err := fx.Gateway.WaitForFinality(ctx, "0xdeadbeef")
		if err == nil {
			t.Error("expected waiting on an unknown hash to fail")
		}
	})

	t.Run("wait_respects_context", func(t *testing.T) {
		fx := factory(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := fx.Gateway.WaitForFinality(ctx, "0xdeadbeef")
		if err == nil {
			t.Fatal("expected an error from a cancelled wait")
		}
		if errors.Is(err, nftflow.ErrUserRejected) {
			t.Errorf("unexpected rejection error: %v", err)
		}
	})
}

func submitAndWait(t *testing.T, gw nftflow.Gateway, call types.CallDescriptor) types.TxRecord {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pending, err := gw.SubmitAndSign(ctx, call)
	if err != nil {
		t.Fatalf("SubmitAndSign(%s): %v", call.Function, err)
	}
	if pending.Hash == "" {
		t.Fatalf("SubmitAndSign(%s) returned no hash", call.Function)
	}
	rec, err := gw.WaitForFinality(ctx, pending.Hash)
	if err != nil {
		t.Fatalf("WaitForFinality(%s): %v", pending.Hash, err)
	}
	if rec.Hash != pending.Hash {
		t.Fatalf("finalized hash = %s, want %s", rec.Hash, pending.Hash)
	}
	return rec
}

func decimalUnits(units uint64) decimal.Decimal {
	return payload.FromSmallestUnit(units, types.CoinDecimals)
}
