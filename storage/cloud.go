package storage

import (
	"context"
	"errors"

	"github.com/ruteri/wallet-custody-backend/interfaces"
)

// StoreCloudStorage exposes a KeyValueStore as cloud storage.
type StoreCloudStorage struct {
	store interfaces.KeyValueStore
}

// CloudFromStore adapts store to the CloudStorage interface.
func CloudFromStore(store interfaces.KeyValueStore) *StoreCloudStorage {
	return &StoreCloudStorage{store: store}
}

func (c *StoreCloudStorage) GetItem(ctx context.Context, key string) (string, error) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SetItem reports false without error when the store is unavailable.
func (c *StoreCloudStorage) SetItem(ctx context.Context, key, value string) (bool, error) {
	if !c.store.Available(ctx) {
		return false, nil
	}
	if err := c.store.Set(ctx, key, []byte(value)); err != nil {
		if errors.Is(err, interfaces.ErrBackendUnavailable) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *StoreCloudStorage) Name() string {
	return c.store.Name()
}

func (c *StoreCloudStorage) LocationURI() string {
	return c.store.LocationURI()
}
