// Package signer serializes sign requests into a single-flight FIFO queue.
//
// Every request that needs user approval goes through Queue.AwaitForSignature, which
// presents it on the "jsonRpcSign" route and blocks until the UI settles it with one of
// the json-rpc-sign-success / json-rpc-sign-reject events, the sign timeout fires, or the
// caller gives up. EthSign builds the wallet's own personal_sign and transaction requests
// on top of the queue.
package signer
