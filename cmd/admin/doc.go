// Package main (cmd/admin) is the wallet administration client.
//
// It runs the threshold wallet operations against the configured local store, cloud
// storage backends, metadata service and share nodes:
//
//	signup          - create a wallet and distribute its cloud, device and social shares
//	restore         - rebuild a wallet from its cloud share and/or social share
//	import          - create a wallet for an existing private key (prompted)
//	accounts        - list the registered accounts of a wallet type
//	account-info    - rebuild the secret from device and cloud shares and derive an account
//	recover-social  - check whether the share nodes hold a social share for an identity
//	remove          - forget an account locally
//
// The device share password is read from CUSTODY_WALLET_PASSWORD or prompted.
//
// Example usage:
//
//	custody-admin --local-storage=file:///var/lib/wallet \
//	    --cloud-storage=s3://wallet-shares/prod?region=eu-central-1 \
//	    --metadata-url=https://metadata.example --generate-shares-url=srv://_shares._tcp.example \
//	    signup --verifier=google --token=$TOKEN
package main
