package signhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/wallet-custody-backend/interfaces"
	"github.com/ruteri/wallet-custody-backend/signer"
)

const (
	maxBodySize = 1024 * 1024
	// maxPollWait caps the wait parameter of GET /api/sign/pending.
	maxPollWait = 60 * time.Second
)

// RequestError carries the HTTP status an error maps to.
type RequestError struct {
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// SignQueue is the subset of *signer.Queue used by the handler.
type SignQueue interface {
	AwaitForSignature(ctx context.Context, params interfaces.SignParams) (string, error)
	Resolve(id, address string) bool
	Reject(id, reason string) bool
	Pending() (interfaces.SignParams, bool)
	Len() int
}

// AccountLister lists registered accounts; *registry.AccountRegistry implements it.
type AccountLister interface {
	Accounts(ctx context.Context) ([]string, error)
}

// SignResponse is returned for a settled sign request.
type SignResponse struct {
	Address string `json:"address,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ApproveRequest is the body of POST /api/sign/{request_id}/approve.
type ApproveRequest struct {
	Address string `json:"address"`
}

// RejectRequest is the body of POST /api/sign/{request_id}/reject.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// PendingResponse is the in-flight request and the queue depth.
type PendingResponse struct {
	Request interfaces.SignParams `json:"request"`
	Queued  int                   `json:"queued"`
}

// Handler exposes the sign queue to dApp bridges and to the sign UI.
//
// dApp bridges call POST /api/sign/request and block until the user decides. The sign UI
// polls GET /api/sign/pending and answers with approve or reject for the presented request.
type Handler struct {
	queue     SignQueue
	navigator *UINavigator
	accounts  map[interfaces.WalletType]AccountLister
	log       *slog.Logger
}

// NewHandler creates a handler. navigator must be the navigator the queue presents to.
func NewHandler(queue SignQueue, navigator *UINavigator, accounts map[interfaces.WalletType]AccountLister, log *slog.Logger) *Handler {
	return &Handler{
		queue:     queue,
		navigator: navigator,
		accounts:  accounts,
		log:       log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/sign/request", h.HandleSignRequest)
	r.Get("/api/sign/pending", h.HandlePending)
	r.Post("/api/sign/{request_id}/approve", h.HandleApprove)
	r.Post("/api/sign/{request_id}/reject", h.HandleReject)
	r.Get("/api/accounts/{wallet_type}", h.HandleAccounts)
}

// HandleSignRequest queues a sign request and waits for the user's decision.
//
// URL format: POST /api/sign/request
// Request body: interfaces.SignParams; requestId is optional.
// Response: 200 {"address"} on approval, 409 {"error"} when the user declines.
func (h *Handler) HandleSignRequest(w http.ResponseWriter, r *http.Request) {
	var params interfaces.SignParams
	if err := decodeBody(r, &params); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if params.Request.Method == "" {
		http.Error(w, "missing request method", http.StatusBadRequest)
		return
	}

	log := h.log.With(slog.String("method", params.Request.Method), slog.String("account", params.SelectedAccount))

	address, err := h.queue.AwaitForSignature(r.Context(), params)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Debug("Sign request abandoned by caller")
			return
		}
		reqErr := signError(err)
		log.Info("Sign request not approved", "err", err, slog.Int("status", reqErr.StatusCode))
		writeJSON(w, log, reqErr.StatusCode, SignResponse{Error: err.Error()})
		return
	}

	writeJSON(w, log, http.StatusOK, SignResponse{Address: address})
}

// HandlePending returns the request presented to the user.
//
// URL format: GET /api/sign/pending?wait=30s
// With wait, the call blocks until a request is presented or the duration passes.
// Response: 200 PendingResponse, or 204 when nothing is presented.
func (h *Handler) HandlePending(w http.ResponseWriter, r *http.Request) {
	var wait time.Duration
	if raw := r.URL.Query().Get("wait"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			http.Error(w, fmt.Sprintf("invalid wait duration %q", raw), http.StatusBadRequest)
			return
		}
		wait = min(d, maxPollWait)
	}

	changed := h.navigator.Changed()
	params, ok := h.queue.Pending()
	if !ok && wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-changed:
			params, ok = h.queue.Pending()
		case <-timer.C:
		case <-r.Context().Done():
			return
		}
	}

	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, h.log, http.StatusOK, PendingResponse{Request: params, Queued: h.queue.Len()})
}

// HandleApprove resolves the presented request.
//
// URL format: POST /api/sign/{request_id}/approve
// Request body: {"address": "0x..."}
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "request_id")

	var req ApproveRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Address == "" {
		http.Error(w, "missing address", http.StatusBadRequest)
		return
	}

	if !h.queue.Resolve(id, req.Address) {
		http.Error(w, "no such pending request", http.StatusNotFound)
		return
	}
	h.log.Info("Sign request approved", slog.String("request_id", id))
	writeJSON(w, h.log, http.StatusOK, map[string]string{"status": "approved"})
}

// HandleReject declines the presented request.
//
// URL format: POST /api/sign/{request_id}/reject
// Request body: {"reason": "..."}; an empty body rejects on behalf of the user.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "request_id")

	var req RejectRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if !h.queue.Reject(id, req.Reason) {
		http.Error(w, "no such pending request", http.StatusNotFound)
		return
	}
	h.log.Info("Sign request rejected", slog.String("request_id", id))
	writeJSON(w, h.log, http.StatusOK, map[string]string{"status": "rejected"})
}

// HandleAccounts lists the registered accounts of a wallet type.
//
// URL format: GET /api/accounts/{wallet_type}
func (h *Handler) HandleAccounts(w http.ResponseWriter, r *http.Request) {
	walletType, err := interfaces.ParseWalletType(chi.URLParam(r, "wallet_type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	lister, ok := h.accounts[walletType]
	if !ok {
		http.Error(w, "wallet type not configured", http.StatusNotFound)
		return
	}

	accounts, err := lister.Accounts(r.Context())
	if err != nil {
		h.log.Error("Failed to list accounts", "err", err, slog.String("wallet_type", string(walletType)))
		http.Error(w, "failed to list accounts", http.StatusInternalServerError)
		return
	}
	if accounts == nil {
		accounts = []string{}
	}
	writeJSON(w, h.log, http.StatusOK, accounts)
}

func signError(err error) *RequestError {
	var cancelled *signer.SignCancelledError
	switch {
	case errors.As(err, &cancelled):
		return &RequestError{StatusCode: http.StatusConflict, Err: err}
	case errors.Is(err, interfaces.ErrSignTimeout):
		return &RequestError{StatusCode: http.StatusGatewayTimeout, Err: err}
	case errors.Is(err, interfaces.ErrQueueClosed):
		return &RequestError{StatusCode: http.StatusServiceUnavailable, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &RequestError{StatusCode: http.StatusRequestTimeout, Err: err}
	default:
		return &RequestError{StatusCode: http.StatusBadGateway, Err: err}
	}
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("Failed to write response", "err", err, slog.Int("status", status))
	}
}
