// Package registry keeps the list of known wallet accounts.
//
// The list is a JSON array of lowercased addresses stored under <prefix>_accounts in the
// local store, one list per wallet type. Appends are read-modify-write cycles and are
// serialized: stores implementing interfaces.AtomicUpdater (Redis, memory) update in a
// single transaction, other stores are guarded by a mutex owned by the registry.
// Appending a known address leaves the list unchanged.
package registry
