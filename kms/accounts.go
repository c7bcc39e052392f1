package kms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/wallet-custody-backend/interfaces"
)

var (
	// ErrUnknownAccount is returned for accounts missing from the registry.
	ErrUnknownAccount = errors.New("unknown account")
	// ErrNoCloudStorage is returned when no cloud storage is given and none is recorded.
	ErrNoCloudStorage = errors.New("no cloud storage for account")
)

// GetAccounts lists the registered accounts of the initializer's wallet type.
func (i *Initializer) GetAccounts(ctx context.Context) ([]string, error) {
	return i.accounts.Accounts(ctx)
}

// Provider opens a registered account. With a nil storage the cloud share is read from the
// storage recorded when the account was initialized.
func (i *Initializer) Provider(ctx context.Context, address common.Address, storage interfaces.CloudStorage, getPassword interfaces.PasswordFunc) (*Provider, error) {
	known, err := i.accounts.Contains(ctx, address)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, address.Hex())
	}

	recorded, err := GetStorageForAccount(ctx, i.localStore, i.walletType, address)
	if err != nil {
		return nil, err
	}

	switch {
	case storage != nil:
		if recorded != "" && recorded != storage.LocationURI() {
			i.log.Warn("Cloud storage differs from the recorded one",
				slog.String("address", interfaces.AddressKey(address)),
				slog.String("recorded", recorded),
				slog.String("storage", storage.LocationURI()))
		}
	case recorded == "" || i.openCloud == nil:
		return nil, fmt.Errorf("%w: %s", ErrNoCloudStorage, address.Hex())
	default:
		storage, err = i.openCloud(recorded)
		if err != nil {
			return nil, fmt.Errorf("failed to open recorded cloud storage: %w", err)
		}
	}

	return NewProvider(ProviderConfig{
		WalletType:  i.walletType,
		Address:     address,
		LocalStore:  i.localStore,
		Storage:     storage,
		GetPassword: getPassword,
		Log:         i.log,
	}), nil
}

// RemoveAccount deletes the device share and storage record of an account and unregisters it.
// The cloud share and the social share are left in place.
func (i *Initializer) RemoveAccount(ctx context.Context, address common.Address) error {
	for _, key := range []string{
		interfaces.DeviceShareKey(i.walletType, address),
		interfaces.StorageRecordKey(i.walletType, address),
	} {
		if err := i.localStore.Delete(ctx, key); err != nil && !errors.Is(err, interfaces.ErrContentNotFound) {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}

	removed, err := i.accounts.Remove(ctx, address)
	if err != nil {
		return err
	}

	i.log.Info("Account removed", slog.String("address", interfaces.AddressKey(address)), slog.Bool("was_registered", removed))
	return nil
}
