// Package main (cmd/httpserver) runs the custody server.
//
// The server owns the sign request queue. dApp connectors POST sign requests and block
// until the user decides; the wallet UI long-polls the presented request and approves
// or rejects it. Wallet-initiated personal_sign and transaction requests go through the
// same queue, with nonces read from --rpc-addr when set.
//
// Flags may also come from a --config file (YAML, TOML or JSON) or CUSTODY_* environment
// variables; explicit flags win.
//
// Example usage:
//
//	custody-server --listen-addr=0.0.0.0:8080 \
//	    --local-storage=redis://localhost:6379/0 \
//	    --sign-timeout=5m \
//	    --rpc-addr=https://rpc.eth.haqq.network
package main
