// Package metadata implements the client of the metadata server and an in-memory stub.
//
// The metadata server stores small JSON values, such as the social share index, keyed by
// the public key of an access share. Requests are signed: the access share is used as a
// secp256k1 private key and the signature covers
// keccak256(namespace || field || value || timestamp).
//
//	POST <url>/get  {"pub_key","namespace","field","timestamp","signature"}         -> 200 {"value": ...} | 404
//	POST <url>/set  {"pub_key","namespace","field","value","timestamp","signature"} -> 204
package metadata
