package interfaces

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// StorageBackendLocation represents URI for storage backend.
type StorageBackendLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname
	Path   string     // Resource path
	Query  url.Values // Query parameters
	Auth   string     // Authentication info
}

// NewStorageBackendLocation creates a new storage location from a URI string with validation.
func NewStorageBackendLocation(uri string) (StorageBackendLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StorageBackendLocation{}, fmt.Errorf("%w: %w", ErrInvalidLocationURI, err)
	}

	scheme := parsed.Scheme
	switch scheme {
	case "file", "s3", "ipfs", "vault", "redis", "memory":
	default:
		return StorageBackendLocation{}, fmt.Errorf("%w: unsupported storage scheme %q", ErrInvalidLocationURI, scheme)
	}

	var auth string
	if parsed.User != nil {
		auth = parsed.User.String()
	}

	return StorageBackendLocation{
		Raw:    uri,
		Scheme: scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		Auth:   auth,
	}, nil
}

// String returns the original URI string.
func (loc StorageBackendLocation) String() string {
	return loc.Raw
}

// IsLocal reports whether the location can hold the local encrypted store.
func (loc StorageBackendLocation) IsLocal() bool {
	switch loc.Scheme {
	case "file", "vault", "redis", "memory":
		return true
	}
	return false
}

// GetParam returns a query parameter value.
func (loc StorageBackendLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

// GetParamBool returns a boolean query parameter value.
func (loc StorageBackendLocation) GetParamBool(name string) bool {
	value := loc.Query.Get(name)
	return value == "true" || value == "1" || value == "yes"
}

var (
	// ErrContentNotFound is returned when requested content cannot be found in the storage backend.
	ErrContentNotFound = errors.New("content not found")

	// ErrBackendUnavailable is returned when a storage backend is not accessible.
	// This could be due to network issues, authentication failures, or service outages.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// KeyValueStore is the local encrypted storage holding device shares,
// the account registry and per-account storage records.
type KeyValueStore interface {
	// Get returns the value stored under key or ErrContentNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Available checks if backend is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this backend.
	LocationURI() string
}

// UpdateFunc computes the new value of a key from its current value.
// found is false when the key does not exist yet.
type UpdateFunc func(current []byte, found bool) ([]byte, error)

// AtomicUpdater is implemented by stores able to run a read-modify-write
// cycle on a single key without interleaving with other writers.
type AtomicUpdater interface {
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

// CloudStorage is the user's personal cloud drive holding the cloud share.
type CloudStorage interface {
	// GetItem returns the value stored under key or ErrContentNotFound.
	GetItem(ctx context.Context, key string) (string, error)

	// SetItem stores value under key and reports whether it was persisted.
	SetItem(ctx context.Context, key string, value string) (bool, error)

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this backend.
	LocationURI() string
}
