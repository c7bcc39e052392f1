package storage

import (
	"io"
	"log/slog"
	"testing"

	"github.com/ruteri/wallet-custody-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageFactory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := NewStorageFactory(logger)

	dir := t.TempDir()
	loc, err := interfaces.NewStorageBackendLocation("file://" + dir)
	require.NoError(t, err)
	store, err := factory.KeyValueStoreFor(loc)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	loc, err = interfaces.NewStorageBackendLocation("memory://local")
	require.NoError(t, err)
	first, err := factory.KeyValueStoreFor(loc)
	require.NoError(t, err)
	second, err := factory.KeyValueStoreFor(loc)
	require.NoError(t, err)
	assert.Same(t, first, second, "Same memory name should yield the same store")

	cloudLoc, err := interfaces.NewStorageBackendLocation("s3://bucket/shares?region=eu-west-1")
	require.NoError(t, err)
	cloud, err := factory.CloudStorageFor(cloudLoc)
	require.NoError(t, err)
	assert.IsType(t, &S3CloudStorage{}, cloud)
	assert.Equal(t, "s3-bucket", cloud.Name())

	ipfsLoc, err := interfaces.NewStorageBackendLocation("ipfs://127.0.0.1:5001/wallet?timeout=5s")
	require.NoError(t, err)
	cloud, err = factory.CloudStorageFor(ipfsLoc)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://127.0.0.1:5001/wallet", cloud.LocationURI())

	_, err = factory.KeyValueStoreFor(cloudLoc)
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI, "s3 cannot hold the local store")

	multi, err := factory.CreateMultiCloud([]interfaces.StorageBackendLocation{loc, cloudLoc})
	require.NoError(t, err)
	assert.IsType(t, &MultiCloudStorage{}, multi)

	_, err = interfaces.NewStorageBackendLocation("ftp://host/path")
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
}

func TestStorageFactory_OpenRecorded(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := NewStorageFactory(logger)

	locations := make([]interfaces.StorageBackendLocation, 0, 2)
	for _, uri := range []string{"memory://first", "memory://second"} {
		loc, err := interfaces.NewStorageBackendLocation(uri)
		require.NoError(t, err)
		locations = append(locations, loc)
	}

	multi, err := factory.CreateMultiCloud(locations)
	require.NoError(t, err)
	reopened, err := factory.OpenRecorded(multi.LocationURI())
	require.NoError(t, err)
	assert.Equal(t, multi.LocationURI(), reopened.LocationURI())

	single, err := factory.OpenRecorded("memory://first")
	require.NoError(t, err)
	assert.Equal(t, "memory://first", single.LocationURI())

	_, err = factory.OpenRecorded("ftp://host/path")
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
}
