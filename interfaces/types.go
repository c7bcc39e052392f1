package interfaces

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// WalletType tags the threshold provider variant.
type WalletType string

const (
	WalletTypeSSS WalletType = "sss"
	WalletTypeMPC WalletType = "mpc"
)

// ParseWalletType validates a wallet type name.
func ParseWalletType(s string) (WalletType, error) {
	switch WalletType(strings.ToLower(s)) {
	case WalletTypeSSS:
		return WalletTypeSSS, nil
	case WalletTypeMPC:
		return WalletTypeMPC, nil
	}
	return "", fmt.Errorf("unknown wallet type %q", s)
}

// ItemPrefix returns the local storage key prefix for the wallet type.
func (t WalletType) ItemPrefix() string {
	switch t {
	case WalletTypeMPC:
		return "MPC_KEY"
	default:
		return "SSS_KEY"
	}
}

// AddressKey returns the lowercased 0x-prefixed hex form used in storage keys.
func AddressKey(address common.Address) string {
	return strings.ToLower(address.Hex())
}

// CloudShareKey is the cloud storage key of the cloud share.
func CloudShareKey(address common.Address) string {
	return "haqq_" + AddressKey(address)
}

// DeviceShareKey is the local storage key of the encrypted device share.
func DeviceShareKey(walletType WalletType, address common.Address) string {
	return walletType.ItemPrefix() + "_" + AddressKey(address)
}

// AccountsKey is the local storage key of the account registry.
func AccountsKey(walletType WalletType) string {
	return walletType.ItemPrefix() + "_accounts"
}

// StorageRecordKey is the local storage key recording the canonical cloud storage of an account.
func StorageRecordKey(walletType WalletType, address common.Address) string {
	return walletType.ItemPrefix() + "_storage_" + AddressKey(address)
}

// PasswordFunc supplies the password protecting the device share.
type PasswordFunc func(ctx context.Context) (string, error)

// AccountInfo describes a derived account.
type AccountInfo struct {
	Address    common.Address `json:"address"`
	PublicKey  string         `json:"publicKey"`
	PrivateKey string         `json:"-"`
	Path       string         `json:"path"`
}

// ThresholdKeyProvider is the handle returned by wallet initialization.
type ThresholdKeyProvider interface {
	// GetIdentifier returns the account address of the reconstructed secret.
	GetIdentifier() string

	// GetAccountInfo derives the account at hdPath.
	GetAccountInfo(ctx context.Context, hdPath string) (AccountInfo, error)

	// WalletType returns the provider variant.
	WalletType() WalletType
}
