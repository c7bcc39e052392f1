package kms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/wallet-custody-backend/cryptoutils"
	"github.com/ruteri/wallet-custody-backend/interfaces"
)

// ErrAddressMismatch is returned when the stored shares rebuild a different account.
var ErrAddressMismatch = errors.New("reconstructed secret does not match account")

// ProviderConfig holds the parameters of a Provider.
type ProviderConfig struct {
	WalletType  interfaces.WalletType
	Address     common.Address
	LocalStore  interfaces.KeyValueStore
	Storage     interfaces.CloudStorage
	GetPassword interfaces.PasswordFunc
	Log         *slog.Logger
}

// Provider is the threshold key provider of one account. It holds no key material;
// every operation rebuilds the secret from the device and cloud shares.
type Provider struct {
	walletType  interfaces.WalletType
	address     common.Address
	localStore  interfaces.KeyValueStore
	storage     interfaces.CloudStorage
	getPassword interfaces.PasswordFunc
	log         *slog.Logger
}

var _ interfaces.ThresholdKeyProvider = (*Provider)(nil)

// NewProvider creates a provider for an already initialized account.
func NewProvider(cfg ProviderConfig) *Provider {
	if cfg.WalletType == "" {
		cfg.WalletType = interfaces.WalletTypeSSS
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Provider{
		walletType:  cfg.WalletType,
		address:     cfg.Address,
		localStore:  cfg.LocalStore,
		storage:     cfg.Storage,
		getPassword: cfg.GetPassword,
		log:         cfg.Log.With(slog.String("address", interfaces.AddressKey(cfg.Address))),
	}
}

// GetIdentifier returns the lowercased account address.
func (p *Provider) GetIdentifier() string {
	return interfaces.AddressKey(p.address)
}

// Address returns the account address.
func (p *Provider) Address() common.Address {
	return p.address
}

// WalletType returns the provider variant.
func (p *Provider) WalletType() interfaces.WalletType {
	return p.walletType
}

// DeviceShare decrypts the locally stored device share.
func (p *Provider) DeviceShare(ctx context.Context) (Share, error) {
	if p.getPassword == nil {
		return Share{}, errors.New("password function is required")
	}

	data, err := p.localStore.Get(ctx, interfaces.DeviceShareKey(p.walletType, p.address))
	if err != nil {
		return Share{}, fmt.Errorf("failed to read device share: %w", err)
	}

	password, err := p.getPassword(ctx)
	if err != nil {
		return Share{}, fmt.Errorf("failed to get password: %w", err)
	}

	plaintext, err := cryptoutils.DecryptShare(data, password)
	if err != nil {
		return Share{}, err
	}

	return ParseShare(string(plaintext))
}

// CloudShare reads the cloud share from the provider's cloud storage.
func (p *Provider) CloudShare(ctx context.Context) (Share, error) {
	if p.storage == nil {
		return Share{}, errors.New("cloud storage is not configured")
	}

	value, err := p.storage.GetItem(ctx, interfaces.CloudShareKey(p.address))
	if err != nil {
		return Share{}, fmt.Errorf("failed to read cloud share from %s: %w", p.storage.Name(), err)
	}
	return ParseShare(value)
}

// GetAccountInfo rebuilds the secret and derives the account at hdPath.
// The 32-byte big-endian secret is the BIP-32 seed.
func (p *Provider) GetAccountInfo(ctx context.Context, hdPath string) (interfaces.AccountInfo, error) {
	secret, err := p.secret(ctx)
	if err != nil {
		return interfaces.AccountInfo{}, err
	}

	seed := secret.FillBytes(make([]byte, 32))
	info, err := cryptoutils.DeriveAccount(seed, hdPath)
	if err != nil {
		return interfaces.AccountInfo{}, err
	}

	p.log.Debug("Derived account", slog.String("path", info.Path), slog.String("derived", info.Address.Hex()))
	return info, nil
}

func (p *Provider) secret(ctx context.Context) (*big.Int, error) {
	device, err := p.DeviceShare(ctx)
	if err != nil {
		return nil, err
	}

	cloud, err := p.CloudShare(ctx)
	if err != nil {
		return nil, err
	}

	poly, err := PolynomialFromShares([]Share{device, cloud})
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct secret: %w", err)
	}

	secret := poly.Secret()
	if secret.Sign() == 0 {
		return nil, interfaces.ErrNullSecret
	}

	address, err := cryptoutils.AddressFromScalar(secret)
	if err != nil {
		return nil, err
	}
	if address != p.address {
		return nil, ErrAddressMismatch
	}

	return secret, nil
}

// SetStorageForAccount records the location URI of the cloud storage holding an account's cloud share.
func SetStorageForAccount(ctx context.Context, store interfaces.KeyValueStore, walletType interfaces.WalletType, address common.Address, locationURI string) error {
	if err := store.Set(ctx, interfaces.StorageRecordKey(walletType, address), []byte(locationURI)); err != nil {
		return fmt.Errorf("failed to record cloud storage: %w", err)
	}
	return nil
}

// GetStorageForAccount returns the recorded cloud storage location URI, or "" when none is recorded.
func GetStorageForAccount(ctx context.Context, store interfaces.KeyValueStore, walletType interfaces.WalletType, address common.Address) (string, error) {
	data, err := store.Get(ctx, interfaces.StorageRecordKey(walletType, address))
	if errors.Is(err, interfaces.ErrContentNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read cloud storage record: %w", err)
	}
	return string(data), nil
}
