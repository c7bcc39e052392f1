// Package cryptoutils provides the cryptographic helpers of the wallet custody backend.
//
// # Device Share Encryption
//
// The device share is stored in local storage encrypted with a password:
//
//   - Argon2id (time=1, memory=64MiB, threads=4) derives a 32-byte key from the password
//     and a random 16-byte salt
//   - AES-256-GCM encrypts the share with a random nonce
//   - The result is stored as JSON {"cipher", "nonce", "salt"} with hex encoded fields
//
// # Accounts
//
// Secrets reconstructed from shares are secp256k1 scalars. AddressFromScalar yields the
// wallet identifier and DeriveAccount derives BIP-32 children (hdkeychain, mainnet
// parameters) at paths such as m/44'/60'/0'/0/0.
package cryptoutils
