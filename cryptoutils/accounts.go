package cryptoutils

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/wallet-custody-backend/interfaces"
)

// PrivateKeyFromScalar interprets a scalar as a secp256k1 private key.
func PrivateKeyFromScalar(secret *big.Int) (*ecdsa.PrivateKey, error) {
	if secret == nil || secret.Sign() <= 0 {
		return nil, errors.New("empty private key scalar")
	}
	if secret.BitLen() > 256 {
		return nil, errors.New("private key scalar out of range")
	}
	return crypto.ToECDSA(secret.FillBytes(make([]byte, 32)))
}

// PrivateKeyFromHex interprets a hex scalar, with or without 0x prefix, as a private key.
func PrivateKeyFromHex(value string) (*ecdsa.PrivateKey, error) {
	scalar, ok := new(big.Int).SetString(strings.TrimPrefix(value, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex scalar")
	}
	return PrivateKeyFromScalar(scalar)
}

// AddressFromScalar derives the account address of a secret scalar.
func AddressFromScalar(secret *big.Int) (common.Address, error) {
	key, err := PrivateKeyFromScalar(secret)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

// CompressedPublicKeyHex returns the hex encoded 33-byte public key.
func CompressedPublicKeyHex(key *ecdsa.PrivateKey) string {
	return hex.EncodeToString(crypto.CompressPubkey(&key.PublicKey))
}

// DeriveAccount derives the BIP-32 child at hdPath from the master seed.
func DeriveAccount(seed []byte, hdPath string) (interfaces.AccountInfo, error) {
	path, err := accounts.ParseDerivationPath(hdPath)
	if err != nil {
		return interfaces.AccountInfo{}, fmt.Errorf("invalid derivation path %q: %w", hdPath, err)
	}

	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return interfaces.AccountInfo{}, fmt.Errorf("failed to create master key: %w", err)
	}
	for _, item := range path {
		key, err = key.Derive(item)
		if err != nil {
			return interfaces.AccountInfo{}, fmt.Errorf("failed to derive child %d: %w", item, err)
		}
	}

	privKey, err := key.ECPrivKey()
	if err != nil {
		return interfaces.AccountInfo{}, err
	}
	ecdsaKey := privKey.ToECDSA()

	return interfaces.AccountInfo{
		Address:    crypto.PubkeyToAddress(ecdsaKey.PublicKey),
		PublicKey:  CompressedPublicKeyHex(ecdsaKey),
		PrivateKey: hex.EncodeToString(crypto.FromECDSA(ecdsaKey)),
		Path:       path.String(),
	}, nil
}
