package signhandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/ruteri/wallet-custody-backend/signer"
)

// PersonalSignRequest is the body of POST /api/eth/personal_sign.
type PersonalSignRequest struct {
	Account common.Address `json:"account"`
	Message string         `json:"message"`
}

// TransactionSignRequest is the body of POST /api/eth/transaction.
type TransactionSignRequest struct {
	Account               common.Address            `json:"account"`
	Transaction           signer.TransactionRequest `json:"transaction"`
	Send                  bool                      `json:"send"`
	HideContractAttention bool                      `json:"hideContractAttention"`
}

// EthHandler builds wallet-initiated Ethereum sign requests.
type EthHandler struct {
	eth *signer.EthSign
	log *slog.Logger
}

func NewEthHandler(eth *signer.EthSign, log *slog.Logger) *EthHandler {
	return &EthHandler{eth: eth, log: log}
}

func (h *EthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/eth/personal_sign", h.HandlePersonalSign)
	r.Post("/api/eth/transaction", h.HandleTransaction)
}

// HandlePersonalSign queues a personal_sign of a UTF-8 message.
//
// URL format: POST /api/eth/personal_sign
// Request body: {"account": "0x...", "message": "..."}
func (h *EthHandler) HandlePersonalSign(w http.ResponseWriter, r *http.Request) {
	var req PersonalSignRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Account == (common.Address{}) || req.Message == "" {
		http.Error(w, "account and message are required", http.StatusBadRequest)
		return
	}

	result, err := h.eth.PersonalSign(r.Context(), req.Account, req.Message)
	h.respond(w, signer.MethodPersonalSign, result, err)
}

// HandleTransaction queues eth_signTransaction, or eth_sendTransaction when send is set.
//
// URL format: POST /api/eth/transaction
// Request body: TransactionSignRequest
func (h *EthHandler) HandleTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionSignRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Account == (common.Address{}) {
		http.Error(w, "account is required", http.StatusBadRequest)
		return
	}

	method := signer.MethodSignTransaction
	sign := h.eth.SignTransaction
	if req.Send {
		method = signer.MethodSendTransaction
		sign = h.eth.SendTransaction
	}

	result, err := sign(r.Context(), req.Account, req.Transaction, req.HideContractAttention)
	h.respond(w, method, result, err)
}

func (h *EthHandler) respond(w http.ResponseWriter, method, result string, err error) {
	if err == nil {
		writeJSON(w, h.log, http.StatusOK, SignResponse{Address: result})
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}

	reqErr := signError(err)
	h.log.Info("Eth sign request not approved", "err", err, slog.String("method", method), slog.Int("status", reqErr.StatusCode))
	writeJSON(w, h.log, reqErr.StatusCode, SignResponse{Error: err.Error()})
}
