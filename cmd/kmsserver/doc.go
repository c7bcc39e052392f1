// Package main (cmd/kmsserver) serves development stand-ins for the remote services of the
// wallet: the metadata service under /metadata, the share generator under /shares and the
// share nodes under /nodes/{i}. Nodes can be started offline or corrupt to rehearse quorum
// and integrity failures.
//
// Example usage:
//
//	share-nodes --listen-addr=127.0.0.1:8081 --nodes=4 --offline-nodes=2
//	custody-admin --metadata-url=http://127.0.0.1:8081/metadata \
//	    --generate-shares-url=http://127.0.0.1:8081/shares signup --verifier=google --token=user-1
package main
