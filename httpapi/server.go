// Package httpapi exposes the action controls and the connected
// account's view state over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/blockberries/nftflow"
	"github.com/blockberries/nftflow/orchestrator"
	"github.com/blockberries/nftflow/payload"
	"github.com/blockberries/nftflow/types"
)

// Server serves the HTTP API.
type Server struct {
	registry *orchestrator.Registry
	accounts orchestrator.Accounts
	logger   *log.Logger
}

// NewServer creates a server over the action registry and the session
// tracking the connected account.
func NewServer(registry *orchestrator.Registry, accounts orchestrator.Accounts, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{registry: registry, accounts: accounts, logger: logger}
}

// Router returns the API routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/account", s.GetAccountHandler).Methods("GET")
	r.HandleFunc("/account/refresh", s.RefreshAccountHandler).Methods("POST")
	r.HandleFunc("/actions", s.GetControlsHandler).Methods("GET")
	r.HandleFunc("/actions/transfer", s.TransferHandler).Methods("POST")
	r.HandleFunc("/actions/create-collection", s.CreateCollectionHandler).Methods("POST")
	r.HandleFunc("/actions/mint", s.MintHandler).Methods("POST")
	r.HandleFunc("/actions/batch-mint", s.BatchMintHandler).Methods("POST")
	return r
}

// ListenAndServe serves the API on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
	s.logger.Printf("github.com/blockberries/nftflow/httpapi: listening on %s", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) GetAccountHandler(w http.ResponseWriter, _ *http.Request) {
	store, ok := s.accounts.Current()
	if !ok {
		WriteError(w, http.StatusConflict, CodeNotConnected, nftflow.ErrNotConnected.Error())
		return
	}
	WriteJSON(w, http.StatusOK, accountView(store.Snapshot()))
}

func (s *Server) RefreshAccountHandler(w http.ResponseWriter, r *http.Request) {
	store, ok := s.accounts.Current()
	if !ok {
		WriteError(w, http.StatusConflict, CodeNotConnected, nftflow.ErrNotConnected.Error())
		return
	}
	if err := store.Refresh(r.Context()); err != nil {
		s.logger.Printf("github.com/blockberries/nftflow/httpapi: WARNING: %v", err)
		WriteError(w, http.StatusBadGateway, CodeRefresh, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, accountView(store.Snapshot()))
}

func (s *Server) GetControlsHandler(w http.ResponseWriter, _ *http.Request) {
	states, disabled := s.registry.States(), s.registry.Disabled()
	out := make(map[string]ControlView, len(types.ActionKinds))
	for _, kind := range types.ActionKinds {
		out[string(kind)] = ControlView{State: states[kind].String(), Disabled: disabled[kind]}
	}
	WriteJSON(w, http.StatusOK, out)
}

type transferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) TransferHandler(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !decode(w, r, &req) {
		return
	}
	in := types.TransferInput{To: req.To}
	if req.Amount != "" {
		amount, err := payload.ParseAmount(req.Amount)
		if err != nil {
			writeOutcome(w, failedInput(types.ActionTransfer, nftflow.NewValidationError("amount", "must be a decimal number")))
			return
		}
		in.Amount = amount
	}
	out, _ := s.registry.Transfer.Submit(r.Context(), in)
	writeOutcome(w, out)
}

type createCollectionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	URI         string `json:"uri"`
	MaxSupply   uint64 `json:"max_supply"`
}

func (s *Server) CreateCollectionHandler(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if !decode(w, r, &req) {
		return
	}
	out, _ := s.registry.CreateCollection.Submit(r.Context(), types.CreateCollectionInput{
		Name:        req.Name,
		Description: req.Description,
		URI:         req.URI,
		MaxSupply:   req.MaxSupply,
	})
	writeOutcome(w, out)
}

type mintRequest struct {
	CollectionID string `json:"collection_id"`
	Amount       uint64 `json:"amount"`
}

func (s *Server) MintHandler(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if !decode(w, r, &req) {
		return
	}
	out, _ := s.registry.Mint.Submit(r.Context(), types.MintInput{CollectionID: req.CollectionID, Amount: req.Amount})
	writeOutcome(w, out)
}

type batchMintRequest struct {
	CollectionID string `json:"collection_id"`
	Count        uint64 `json:"count"`
}

func (s *Server) BatchMintHandler(w http.ResponseWriter, r *http.Request) {
	var req batchMintRequest
	if !decode(w, r, &req) {
		return
	}
	out, _ := s.registry.BatchMint.Submit(r.Context(), types.BatchMintInput{CollectionID: req.CollectionID, Count: req.Count})
	writeOutcome(w, out)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// failedInput is the outcome of input the HTTP layer itself rejected
// before it could reach an orchestrator.
func failedInput(kind types.ActionKind, err error) orchestrator.Outcome {
	return orchestrator.Outcome{
		Kind:    kind,
		State:   orchestrator.StateSettledFailure,
		Err:     err,
		Message: nftflow.UserMessage(err),
	}
}

func writeOutcome(w http.ResponseWriter, out orchestrator.Outcome) {
	WriteJSON(w, outcomeStatus(out.Err), outcomeView(out))
}

// outcomeStatus maps a settled outcome to an HTTP status.
func outcomeStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, nftflow.ErrControlBusy) {
		return http.StatusConflict
	}
	if _, ok := nftflow.IsValidation(err); ok {
		return http.StatusBadRequest
	}
	if s, ok := nftflow.IsSubmission(err); ok {
		if s.Rejected {
			return http.StatusForbidden
		}
		return http.StatusBadGateway
	}
	if f, ok := nftflow.IsFinality(err); ok {
		if f.Err != nil {
			return http.StatusGatewayTimeout
		}
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
