package nftflowgrpc

import (
	"context"
	"errors"
	"log"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/blockberries/nftflow"
)

// Compile-time interface check.
var _ GatewayServiceServer = (*GRPCServer)(nil)

// GRPCServer serves an nftflow.Gateway over gRPC. Call descriptors are
// passed through unchanged; records are converted to their wire form.
type GRPCServer struct {
	gw     nftflow.Gateway
	logger *log.Logger
}

// NewGRPCServer creates a gRPC server for gw.
func NewGRPCServer(gw nftflow.Gateway, logger *log.Logger) *GRPCServer {
	if logger == nil {
		logger = log.Default()
	}
	return &GRPCServer{gw: gw, logger: logger}
}

// Register adds the gateway service to a gRPC server.
func (s *GRPCServer) Register(gs *grpc.Server) {
	RegisterGatewayServiceServer(gs, s)
}

// --- Signer RPCs ---

func (s *GRPCServer) SubmitAndSign(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	pending, err := s.gw.SubmitAndSign(ctx, req.Call)
	if err != nil {
		s.logger.Printf("github.com/blockberries/nftflow/grpc: submit %s: %v", req.Call.Function, err)
		return nil, toStatus(err, codes.InvalidArgument)
	}
	return &SubmitResponse{Hash: pending.Hash}, nil
}

func (s *GRPCServer) Account(_ context.Context, _ *AccountRequest) (*AccountResponse, error) {
	addr, ok := s.gw.Account()
	return &AccountResponse{Address: addr, Connected: ok}, nil
}

// --- ChainClient RPCs ---

func (s *GRPCServer) WaitForFinality(ctx context.Context, req *WaitRequest) (*WireTx, error) {
	rec, err := s.gw.WaitForFinality(ctx, req.Hash)
	if err != nil {
		return nil, toStatus(err, codes.NotFound)
	}
	w := FromRecord(rec)
	return &w, nil
}

func (s *GRPCServer) ReadBalance(ctx context.Context, req *AddressRequest) (*BalanceResponse, error) {
	bal, err := s.gw.ReadBalance(ctx, req.Address)
	if err != nil {
		return nil, toStatus(err, codes.Unavailable)
	}
	return &BalanceResponse{Balance: bal}, nil
}

func (s *GRPCServer) ReadHistory(ctx context.Context, req *AddressRequest) (*HistoryResponse, error) {
	history, err := s.gw.ReadHistory(ctx, req.Address)
	if err != nil {
		return nil, toStatus(err, codes.Unavailable)
	}
	resp := &HistoryResponse{Records: make([]WireTx, len(history))}
	for i, r := range history {
		resp.Records[i] = FromRecord(r)
	}
	return resp, nil
}

// toStatus maps gateway errors to gRPC status codes. Errors without a
// dedicated code get fallback.
func toStatus(err error, fallback codes.Code) error {
	switch {
	case errors.Is(err, nftflow.ErrUserRejected):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, nftflow.ErrNotConnected):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return status.FromContextError(err).Err()
	default:
		return status.Error(fallback, err.Error())
	}
}
