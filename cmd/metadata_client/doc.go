// Package main (cmd/metadata_client) inspects the remote services a wallet depends on.
//
//	nodes  - ask the share generator for an identity's share nodes and resolve srv:// endpoints
//	get    - read a metadata field signed with an access share
package main
