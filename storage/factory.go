package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ruteri/wallet-custody-backend/interfaces"
)

// StorageFactory creates local stores and cloud storages from location URIs.
type StorageFactory struct {
	log *slog.Logger

	mu     sync.Mutex
	memory map[string]*MemoryStore
}

// NewStorageFactory creates a new factory instance.
func NewStorageFactory(logger *slog.Logger) *StorageFactory {
	return &StorageFactory{
		log:    logger,
		memory: make(map[string]*MemoryStore),
	}
}

// KeyValueStoreFor creates a local store from a location URI.
//
// Supported schemes:
//   - file:///absolute/path - one file per key
//   - vault://host:port/mount/path?token=...&tls=true - HashiCorp Vault KV v2
//   - redis://[user:password@]host:port/db?prefix=custody - Redis
//   - memory://name - in-process store, the same name yields the same store
func (sf *StorageFactory) KeyValueStoreFor(location interfaces.StorageBackendLocation) (interfaces.KeyValueStore, error) {
	u, err := url.Parse(location.Raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return sf.createFileStore(u)
	case "vault":
		return sf.createVaultStore(u)
	case "redis":
		return sf.createRedisStore(u)
	case "memory":
		return sf.memoryStore(u.Host), nil
	default:
		return nil, fmt.Errorf("%w: unsupported local store scheme %s", interfaces.ErrInvalidLocationURI, u.Scheme)
	}
}

// CloudStorageFor creates a cloud storage from a location URI.
// s3:// and ipfs:// are native cloud backends; local schemes are adapted with CloudFromStore.
func (sf *StorageFactory) CloudStorageFor(location interfaces.StorageBackendLocation) (interfaces.CloudStorage, error) {
	u, err := url.Parse(location.Raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "s3":
		return sf.createS3Storage(u)
	case "ipfs":
		return sf.createIPFSStorage(u)
	default:
		store, err := sf.KeyValueStoreFor(location)
		if err != nil {
			return nil, err
		}
		return CloudFromStore(store), nil
	}
}

// CreateMultiCloud creates a multi-backend cloud storage from a list of locations.
// Locations that fail to initialize are skipped.
func (sf *StorageFactory) CreateMultiCloud(locations []interfaces.StorageBackendLocation) (interfaces.CloudStorage, error) {
	backends := make([]interfaces.CloudStorage, 0, len(locations))

	for _, location := range locations {
		backend, err := sf.CloudStorageFor(location)
		if err != nil {
			sf.log.Warn("Failed to create cloud storage",
				"err", err,
				slog.String("locationURI", location.Raw))
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid cloud storage backends created")
	}
	if len(backends) == 1 {
		return backends[0], nil
	}

	return NewMultiCloudStorage(backends, sf.log), nil
}

// OpenRecorded reopens a cloud storage from its LocationURI, including the
// multi:[uri,uri] form reported by MultiCloudStorage.
func (sf *StorageFactory) OpenRecorded(locationURI string) (interfaces.CloudStorage, error) {
	uris := []string{locationURI}
	if inner, ok := strings.CutPrefix(locationURI, "multi:["); ok {
		uris = strings.Split(strings.TrimSuffix(inner, "]"), ",")
	}

	locations := make([]interfaces.StorageBackendLocation, 0, len(uris))
	for _, uri := range uris {
		location, err := interfaces.NewStorageBackendLocation(uri)
		if err != nil {
			return nil, err
		}
		locations = append(locations, location)
	}
	return sf.CreateMultiCloud(locations)
}

func (sf *StorageFactory) memoryStore(name string) *MemoryStore {
	sf.mu.Lock()
	defer sf.mu.Unlock()

	if store, ok := sf.memory[name]; ok {
		return store
	}
	store := NewMemoryStore(name)
	sf.memory[name] = store
	return store
}

// createFileStore handles file:///absolute/path and file://./relative/path.
func (sf *StorageFactory) createFileStore(u *url.URL) (interfaces.KeyValueStore, error) {
	sf.log.Debug("Creating file store", slog.String("uri", u.String()))

	path := u.Path
	if u.Host != "" {
		path = u.Host + "/" + strings.TrimPrefix(path, "/")
	}

	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI %s", interfaces.ErrInvalidLocationURI, u.String())
	}

	return NewFileStore(path, sf.log)
}

// createVaultStore handles vault://host:port/mount/path?token=...&tls=true.
func (sf *StorageFactory) createVaultStore(u *url.URL) (interfaces.KeyValueStore, error) {
	sf.log.Debug("Creating Vault store", slog.String("host", u.Host))

	query := u.Query()
	scheme := "https"
	if query.Get("tls") == "false" {
		scheme = "http"
	}

	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	mountPath := parts[0]
	if mountPath == "" {
		mountPath = "secret"
	}
	dataPath := ""
	if len(parts) == 2 {
		dataPath = parts[1]
	}

	return NewVaultStore(fmt.Sprintf("%s://%s", scheme, u.Host), mountPath, dataPath, query.Get("token"), sf.log)
}

// createRedisStore handles redis://[user:password@]host:port/db?prefix=custody.
func (sf *StorageFactory) createRedisStore(u *url.URL) (interfaces.KeyValueStore, error) {
	sf.log.Debug("Creating Redis store", slog.String("host", u.Host))

	opts := &redis.Options{Addr: u.Host}
	if u.User != nil {
		opts.Username = u.User.Username()
		opts.Password, _ = u.User.Password()
	}
	if db := strings.Trim(u.Path, "/"); db != "" {
		n, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid redis db %q", interfaces.ErrInvalidLocationURI, db)
		}
		opts.DB = n
	}

	return NewRedisStore(opts, u.Query().Get("prefix"), sf.log)
}

// createS3Storage handles s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=us-west-2&endpoint=custom.s3.com.
func (sf *StorageFactory) createS3Storage(u *url.URL) (interfaces.CloudStorage, error) {
	sf.log.Debug("Creating S3 cloud storage", slog.String("bucket", u.Host))

	query := u.Query()
	region := query.Get("region")
	if region == "" {
		region = "us-east-1"
	}

	var accessKey, secretKey string
	if u.User != nil {
		accessKey = u.User.Username()
		secretKey, _ = u.User.Password()
	}

	return NewS3CloudStorage(u.Host, strings.TrimPrefix(u.Path, "/"), region, query.Get("endpoint"), accessKey, secretKey, sf.log)
}

// createIPFSStorage handles ipfs://host:port/base/dir?timeout=30s.
func (sf *StorageFactory) createIPFSStorage(u *url.URL) (interfaces.CloudStorage, error) {
	sf.log.Debug("Creating IPFS cloud storage", slog.String("host", u.Host))

	port := u.Port()
	if port == "" {
		port = "5001"
	}

	timeout := 30 * time.Second
	if raw := u.Query().Get("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid timeout %q", interfaces.ErrInvalidLocationURI, raw)
		}
		timeout = d
	}

	baseDir := u.Path
	if baseDir == "" || baseDir == "/" {
		baseDir = "/custody"
	}

	return NewIPFSCloudStorage(u.Hostname(), port, baseDir, timeout, sf.log), nil
}
