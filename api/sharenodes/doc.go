// Package sharenodes implements the JSON-RPC client of the share generator and share nodes,
// DNS SRV endpoint discovery, and an in-process stub network for tests and local development.
//
// Methods (JSON-RPC 2.0 over HTTP, positional params):
//
//	shares(verifier, token, isNew)                 -> {"isNew": bool, "shares": [[nodeUrl, shareIndex], ...]}
//	shareCreate(verifier, token, publicKey, share) -> {"hex_share": "..."}
//	shareRequest(verifier, token, tmpPublicKey)    -> {"hex_share": "..."}
package sharenodes
