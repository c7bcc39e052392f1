/*
Package api holds the HTTP surface of the custody service and its remote service clients.

Subpackages:

  - signhandler: sign request routes for dApp bridges and the sign UI
  - metadata: client and stub of the metadata service holding the social share index
  - sharenodes: JSON-RPC client and stub network of the social share nodes

HTTPServerConfig configures the listener built by the httpserver package.
*/
package api
