package nftflowgrpc

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/blockberries/nftflow"
	"github.com/blockberries/nftflow/types"
)

// DefaultWatchInterval is the Watch period when none is given.
const DefaultWatchInterval = 10 * time.Second

// Compile-time interface check.
var _ nftflow.Gateway = (*Client)(nil)

// Client implements nftflow.Gateway for a remote gateway over gRPC
// using cramberry serialization.
//
// The connected account is cached locally. SyncAccount refreshes it
// and notifies subscribers when it changes.
type Client struct {
	cc *grpc.ClientConn

	mu      sync.Mutex
	account string
	subs    map[int]func(nftflow.ConnectionEvent)
	nextSub int
}

// Dial connects to a remote gateway.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append(opts, grpc.WithDefaultCallOptions(
		grpc.ForceCodec(CramberryCodec{}),
	))
	cc, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("nftflow client: dial %s: %w", addr, err)
	}
	return &Client{
		cc:   cc,
		subs: make(map[int]func(nftflow.ConnectionEvent)),
	}, nil
}

func (c *Client) Close() error {
	return c.cc.Close()
}

// --- Signer ---

func (c *Client) SubmitAndSign(ctx context.Context, call types.CallDescriptor) (types.PendingTx, error) {
	resp := new(SubmitResponse)
	if err := c.cc.Invoke(ctx, fullMethod("SubmitAndSign"), &SubmitRequest{Call: call}, resp); err != nil {
		return types.PendingTx{}, fromStatus(err)
	}
	if resp.Hash == "" {
		return types.PendingTx{}, fmt.Errorf("%w: submit returned no hash", nftflow.ErrMalformedRecord)
	}
	return types.PendingTx{Hash: resp.Hash, Status: types.TxSubmitted}, nil
}

func (c *Client) Account() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.account, c.account != ""
}

func (c *Client) Subscribe(fn func(nftflow.ConnectionEvent)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// SyncAccount fetches the remote wallet's connected account and
// notifies subscribers if it changed.
func (c *Client) SyncAccount(ctx context.Context) (string, error) {
	resp := new(AccountResponse)
	if err := c.cc.Invoke(ctx, fullMethod("Account"), &AccountRequest{}, resp); err != nil {
		return "", fromStatus(err)
	}
	addr := ""
	if resp.Connected {
		addr = resp.Address
	}

	c.mu.Lock()
	changed := addr != c.account
	c.account = addr
	subs := make([]func(nftflow.ConnectionEvent), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	if changed {
		ev := nftflow.ConnectionEvent{Connected: addr != "", Address: addr}
		for _, fn := range subs {
			fn(ev)
		}
	}
	return addr, nil
}

// Watch re-syncs the connected account every interval so subscribers
// see remote disconnects and account switches. Sync failures are
// logged and retried on the next tick. It blocks until ctx is done.
func (c *Client) Watch(ctx context.Context, interval time.Duration, logger *log.Logger) {
	if logger == nil {
		logger = log.Default()
	}
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := c.SyncAccount(ctx); err != nil && ctx.Err() == nil {
			logger.Printf("github.com/blockberries/nftflow/grpc: WARNING: sync account: %v", err)
		}
	}
}

// --- ChainClient ---

func (c *Client) WaitForFinality(ctx context.Context, hash string) (types.TxRecord, error) {
	resp := new(WireTx)
	if err := c.cc.Invoke(ctx, fullMethod("WaitForFinality"), &WaitRequest{Hash: hash}, resp); err != nil {
		return types.TxRecord{}, fromStatus(err)
	}
	rec, err := resp.ToRecord()
	if err != nil {
		return types.TxRecord{}, err
	}
	if rec.Hash != hash {
		return types.TxRecord{}, fmt.Errorf("%w: asked for %s, got %s", nftflow.ErrMalformedRecord, hash, rec.Hash)
	}
	return rec, nil
}

func (c *Client) ReadBalance(ctx context.Context, address string) (uint64, error) {
	resp := new(BalanceResponse)
	if err := c.cc.Invoke(ctx, fullMethod("ReadBalance"), &AddressRequest{Address: address}, resp); err != nil {
		return 0, fromStatus(err)
	}
	return resp.Balance, nil
}

func (c *Client) ReadHistory(ctx context.Context, address string) ([]types.TxRecord, error) {
	resp := new(HistoryResponse)
	if err := c.cc.Invoke(ctx, fullMethod("ReadHistory"), &AddressRequest{Address: address}, resp); err != nil {
		return nil, fromStatus(err)
	}
	out := make([]types.TxRecord, 0, len(resp.Records))
	for _, w := range resp.Records {
		rec, err := w.ToRecord()
		if err != nil {
			return nil, fmt.Errorf("history of %s: %w", address, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// fromStatus restores the sentinel errors the server mapped to status
// codes.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.PermissionDenied:
		return fmt.Errorf("%s: %w", st.Message(), nftflow.ErrUserRejected)
	case codes.FailedPrecondition:
		return fmt.Errorf("%s: %w", st.Message(), nftflow.ErrNotConnected)
	case codes.DeadlineExceeded:
		return fmt.Errorf("%s: %w", st.Message(), context.DeadlineExceeded)
	case codes.Canceled:
		return fmt.Errorf("%s: %w", st.Message(), context.Canceled)
	default:
		return err
	}
}
