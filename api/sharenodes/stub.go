package sharenodes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/ruteri/wallet-custody-backend/interfaces"
)

const maxBodySize = 1024 * 1024

// Fault selects how a stub node misbehaves.
type Fault int

const (
	// FaultNone answers correctly.
	FaultNone Fault = iota
	// FaultOffline answers every call with HTTP 503.
	FaultOffline
	// FaultCorrupt acknowledges shares with a value different from the one it was sent.
	FaultCorrupt
)

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type dispatchFunc func(method string, params []json.RawMessage) (any, error)

var errMethodNotFound = errors.New("method not found")

func serveJSONRPC(w http.ResponseWriter, r *http.Request, dispatch dispatchFunc) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	result, err := dispatch(req.Method, req.Params)
	switch {
	case errors.Is(err, errMethodNotFound):
		resp.Error = &rpcError{Code: -32601, Message: err.Error()}
	case err != nil:
		resp.Error = &rpcError{Code: -32000, Message: err.Error()}
	default:
		resp.Result = result
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func stringParams(params []json.RawMessage, n int) ([]string, error) {
	if len(params) < n {
		return nil, fmt.Errorf("expected %d params, got %d", n, len(params))
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		if err := json.Unmarshal(params[i], &out[i]); err != nil {
			return nil, fmt.Errorf("param %d: %w", i, err)
		}
	}
	return out, nil
}

// StubNode holds sub-shares keyed by verifier and token.
type StubNode struct {
	mu     sync.Mutex
	shares map[string]string
	fault  Fault
	calls  int
	log    *slog.Logger
}

// NewStubNode creates an empty node.
func NewStubNode(log *slog.Logger) *StubNode {
	return &StubNode{
		shares: make(map[string]string),
		log:    log,
	}
}

// SetFault changes how the node answers subsequent calls.
func (n *StubNode) SetFault(fault Fault) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fault = fault
}

// Calls returns the number of JSON-RPC calls the node answered.
func (n *StubNode) Calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

// Share returns the stored sub-share for the account, if any.
func (n *StubNode) Share(verifier, token string) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	share, ok := n.shares[verifier+"|"+token]
	return share, ok
}

func (n *StubNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	fault := n.fault
	n.mu.Unlock()

	if fault == FaultOffline {
		http.Error(w, "node offline", http.StatusServiceUnavailable)
		return
	}
	serveJSONRPC(w, r, n.dispatch)
}

func (n *StubNode) dispatch(method string, params []json.RawMessage) (any, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++

	switch method {
	case "shareCreate":
		args, err := stringParams(params, 4)
		if err != nil {
			return nil, err
		}
		verifier, token, share := args[0], args[1], strings.ToLower(strings.TrimPrefix(args[3], "0x"))
		if _, ok := new(big.Int).SetString(share, 16); !ok {
			return nil, errors.New("invalid share")
		}
		n.shares[verifier+"|"+token] = share

		if n.fault == FaultCorrupt {
			v, _ := new(big.Int).SetString(share, 16)
			return interfaces.NodeShareResponse{HexShare: v.Add(v, big.NewInt(1)).Text(16)}, nil
		}
		return interfaces.NodeShareResponse{HexShare: share}, nil

	case "shareRequest":
		args, err := stringParams(params, 3)
		if err != nil {
			return nil, err
		}
		return interfaces.NodeShareResponse{HexShare: n.shares[args[0]+"|"+args[1]]}, nil

	default:
		return nil, errMethodNotFound
	}
}

// StubGenerator answers "shares" with a fixed node list.
type StubGenerator struct {
	mu    sync.Mutex
	nodes []interfaces.NodeShare
	known map[string]bool
}

// NewStubGenerator creates a generator announcing nodes.
func NewStubGenerator(nodes []interfaces.NodeShare) *StubGenerator {
	return &StubGenerator{
		nodes: nodes,
		known: make(map[string]bool),
	}
}

func (g *StubGenerator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	serveJSONRPC(w, r, g.dispatch)
}

func (g *StubGenerator) dispatch(method string, params []json.RawMessage) (any, error) {
	if method != "shares" {
		return nil, errMethodNotFound
	}
	args, err := stringParams(params, 2)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	account := args[0] + "|" + args[1]
	isNew := !g.known[account]
	g.known[account] = true

	return interfaces.NodeDetails{IsNew: isNew, Shares: g.nodes}, nil
}

// StubNetwork runs a generator and n share nodes on local test servers.
type StubNetwork struct {
	Generator *StubGenerator
	Nodes     []*StubNode

	generatorServer *httptest.Server
	nodeServers     []*httptest.Server
}

// NewStubNetwork starts the network. Node i evaluates the social polynomial at index i+1.
func NewStubNetwork(n int, log *slog.Logger) *StubNetwork {
	network := &StubNetwork{}
	shares := make([]interfaces.NodeShare, 0, n)

	for i := 0; i < n; i++ {
		node := NewStubNode(log)
		server := httptest.NewServer(node)
		network.Nodes = append(network.Nodes, node)
		network.nodeServers = append(network.nodeServers, server)
		shares = append(shares, interfaces.NodeShare{
			NodeURL:    server.URL,
			ShareIndex: fmt.Sprintf("%x", i+1),
		})
	}

	network.Generator = NewStubGenerator(shares)
	network.generatorServer = httptest.NewServer(network.Generator)
	return network
}

// GeneratorURL is the endpoint answering "shares".
func (s *StubNetwork) GeneratorURL() string {
	return s.generatorServer.URL
}

// NodeURL returns the endpoint of node i.
func (s *StubNetwork) NodeURL(i int) string {
	return s.nodeServers[i].URL
}

// Close stops all servers.
func (s *StubNetwork) Close() {
	s.generatorServer.Close()
	for _, server := range s.nodeServers {
		server.Close()
	}
}
