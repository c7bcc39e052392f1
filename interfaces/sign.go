package interfaces

import (
	"context"
	"encoding/json"
)

// RouteJSONRPCSign is the UI route presenting a sign request.
const RouteJSONRPCSign = "jsonRpcSign"

// Sign UI events.
const (
	EventSignSuccess = "json-rpc-sign-success"
	EventSignReject  = "json-rpc-sign-reject"
)

// JSONRPCRequest is the wallet request to be approved.
type JSONRPCRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// SignParams is everything the sign UI needs to present a request.
type SignParams struct {
	RequestID             string            `json:"requestId"`
	SelectedAccount       string            `json:"selectedAccount,omitempty"`
	ChainID               uint64            `json:"chainId,omitempty"`
	Request               JSONRPCRequest    `json:"request"`
	Metadata              map[string]string `json:"metadata,omitempty"`
	HideContractAttention bool              `json:"hideContractAttention,omitempty"`
}

// Navigator presents a route to the user.
type Navigator interface {
	Navigate(ctx context.Context, route string, params SignParams) error
}

// KeyboardDismisser is implemented by navigators that can hide the on-screen keyboard.
type KeyboardDismisser interface {
	DismissKeyboard()
}
