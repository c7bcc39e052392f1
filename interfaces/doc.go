// Package interfaces defines the core interfaces and types shared by the wallet custody backend.
//
// It holds the contracts between components without implementation details:
//
// # Storage Interfaces
//
//   - KeyValueStore: local encrypted storage for device shares and the account registry
//   - AtomicUpdater: optional serialized read-modify-write on a single key
//   - CloudStorage: the user's cloud drive holding the cloud share
//
// # Remote Services
//
//   - MetadataClient: metadata server holding the social share index
//   - ShareNodeClient: share generator and share nodes holding sub-shares of the social share
//
// # Providers and Signing
//
//   - ThresholdKeyProvider: handle over a reconstructed threshold wallet
//   - Navigator: presents sign requests to the user
//
// Storage key helpers (CloudShareKey, DeviceShareKey, AccountsKey, StorageRecordKey)
// fix the key layout shared by every backend.
package interfaces
