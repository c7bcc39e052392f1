package signer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ruteri/wallet-custody-backend/interfaces"
)

// EIP-155 signing methods.
const (
	MethodPersonalSign    = "personal_sign"
	MethodSignTransaction = "eth_signTransaction"
	MethodSendTransaction = "eth_sendTransaction"
)

// WalletMetadata describes the wallet itself as the requesting dApp.
var WalletMetadata = map[string]string{
	"name": "HAQQ Wallet",
	"url":  "https://haqq.network",
}

var errInvalidParams = errors.New("invalid params")

// EthSignError wraps a failed wallet-initiated sign request.
type EthSignError struct {
	Method string
	Err    error
}

func (e *EthSignError) Error() string {
	return fmt.Sprintf("%s: %v", e.Method, e.Err)
}

func (e *EthSignError) Unwrap() error {
	return e.Err
}

// NonceSource reports account nonces; *ethclient.Client implements it.
type NonceSource interface {
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
}

// TransactionRequest is the eth_signTransaction / eth_sendTransaction parameter.
type TransactionRequest struct {
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to,omitempty"`
	Value                *hexutil.Big    `json:"value,omitempty"`
	Data                 hexutil.Bytes   `json:"data,omitempty"`
	Gas                  *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
	Nonce                *hexutil.Uint64 `json:"nonce,omitempty"`
	ChainID              *hexutil.Big    `json:"chainId,omitempty"`
}

// EthSign builds wallet-initiated sign requests and routes them through the queue.
type EthSign struct {
	queue   *Queue
	chainID uint64
	nonces  NonceSource
}

// NewEthSign creates the helper. nonces may be nil when callers always set Nonce.
func NewEthSign(queue *Queue, chainID uint64, nonces NonceSource) *EthSign {
	return &EthSign{queue: queue, chainID: chainID, nonces: nonces}
}

// PersonalSign asks the user to sign message with account.
func (s *EthSign) PersonalSign(ctx context.Context, account common.Address, message string) (string, error) {
	if account == (common.Address{}) || message == "" {
		return "", &EthSignError{Method: MethodPersonalSign, Err: errInvalidParams}
	}

	params, err := rawParams(account.Hex(), hexutil.Encode([]byte(message)))
	if err != nil {
		return "", &EthSignError{Method: MethodPersonalSign, Err: err}
	}
	return s.await(ctx, account, MethodPersonalSign, params, false)
}

// SignTransaction asks the user to sign tx without broadcasting it.
func (s *EthSign) SignTransaction(ctx context.Context, account common.Address, tx TransactionRequest, hideContractAttention bool) (string, error) {
	return s.transaction(ctx, MethodSignTransaction, account, tx, hideContractAttention)
}

// SendTransaction asks the user to sign and broadcast tx.
func (s *EthSign) SendTransaction(ctx context.Context, account common.Address, tx TransactionRequest, hideContractAttention bool) (string, error) {
	return s.transaction(ctx, MethodSendTransaction, account, tx, hideContractAttention)
}

func (s *EthSign) transaction(ctx context.Context, method string, account common.Address, tx TransactionRequest, hideContractAttention bool) (string, error) {
	if account == (common.Address{}) {
		return "", &EthSignError{Method: method, Err: errInvalidParams}
	}

	prepared, err := s.prepareTransaction(ctx, account, tx)
	if err != nil {
		return "", &EthSignError{Method: method, Err: err}
	}

	params, err := rawParams(prepared)
	if err != nil {
		return "", &EthSignError{Method: method, Err: err}
	}
	return s.await(ctx, account, method, params, hideContractAttention)
}

// prepareTransaction fills the sender, a zero value, the chain id and the latest nonce.
func (s *EthSign) prepareTransaction(ctx context.Context, account common.Address, tx TransactionRequest) (TransactionRequest, error) {
	tx.From = account
	if tx.Value == nil {
		tx.Value = (*hexutil.Big)(new(big.Int))
	}
	if tx.ChainID == nil && s.chainID != 0 {
		tx.ChainID = (*hexutil.Big)(new(big.Int).SetUint64(s.chainID))
	}
	if tx.Nonce == nil {
		if s.nonces == nil {
			return tx, errors.New("nonce is required")
		}
		nonce, err := s.nonces.NonceAt(ctx, account, nil)
		if err != nil {
			return tx, fmt.Errorf("failed to get nonce: %w", err)
		}
		tx.Nonce = (*hexutil.Uint64)(&nonce)
	}
	return tx, nil
}

func (s *EthSign) await(ctx context.Context, account common.Address, method string, params []json.RawMessage, hideContractAttention bool) (string, error) {
	result, err := s.queue.AwaitForSignature(ctx, interfaces.SignParams{
		SelectedAccount:       account.Hex(),
		ChainID:               s.chainID,
		Request:               interfaces.JSONRPCRequest{Method: method, Params: params},
		Metadata:              WalletMetadata,
		HideContractAttention: hideContractAttention,
	})
	if err != nil {
		return "", &EthSignError{Method: method, Err: err}
	}
	return result, nil
}

func rawParams(values ...any) ([]json.RawMessage, error) {
	params := make([]json.RawMessage, len(values))
	for i, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		params[i] = data
	}
	return params, nil
}
