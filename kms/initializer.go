package kms

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/wallet-custody-backend/cryptoutils"
	"github.com/ruteri/wallet-custody-backend/interfaces"
	"github.com/ruteri/wallet-custody-backend/registry"
)

const (
	// accountThreshold is the number of shares (cloud, social, device) needed to rebuild a wallet.
	accountThreshold = 2
	// socialThreshold is the number of node sub-shares needed to rebuild the social share.
	socialThreshold = 3
	// minNodeResponses is the quorum of share nodes acknowledging a sub-share.
	minNodeResponses = 2
)

// Initialize outcomes reported to the observer.
const (
	OutcomeSuccess         = "success"
	OutcomeNotEnoughShares = "not_enough_shares"
	OutcomeIntegrity       = "integrity"
	OutcomeError           = "error"
)

// InitializeObserver is notified when an initialization finishes.
type InitializeObserver interface {
	InitializeFinished(walletType interfaces.WalletType, outcome string)
}

// InitializeOptions carries the remote service endpoints.
type InitializeOptions struct {
	MetadataURL       string
	GenerateSharesURL string
}

// InitializeParams describes one wallet creation or restoration.
// Empty strings mean the input is absent.
type InitializeParams struct {
	// SocialShare is the hex value of the social share recovered from the share nodes.
	SocialShare string
	// CloudShare is the JSON share read from the user's cloud storage.
	CloudShare string
	// PrivateKey forces a wallet for this hex private key.
	PrivateKey string

	Verifier string
	Token    string

	GetPassword interfaces.PasswordFunc
	Storage     interfaces.CloudStorage
	Options     InitializeOptions
}

// InitializerConfig holds the collaborators of an Initializer.
type InitializerConfig struct {
	WalletType interfaces.WalletType
	LocalStore interfaces.KeyValueStore
	Metadata   interfaces.MetadataClient
	Nodes      interfaces.ShareNodeClient
	Observer   InitializeObserver
	Log        *slog.Logger

	// OpenCloud opens a recorded cloud storage location. Optional.
	OpenCloud func(locationURI string) (interfaces.CloudStorage, error)
}

// Initializer creates and restores threshold wallets.
//
// A wallet secret is the constant term of a threshold 2 polynomial. Three shares of it are
// kept apart: the cloud share in the user's cloud storage, the device share encrypted in
// local storage, and the social share, itself split with a threshold 3 polynomial across
// the share nodes. Any two of the three rebuild the wallet.
type Initializer struct {
	walletType interfaces.WalletType
	localStore interfaces.KeyValueStore
	accounts   *registry.AccountRegistry
	metadata   interfaces.MetadataClient
	nodes      interfaces.ShareNodeClient
	observer   InitializeObserver
	openCloud  func(locationURI string) (interfaces.CloudStorage, error)
	log        *slog.Logger
}

// NewInitializer validates cfg and creates an Initializer.
func NewInitializer(cfg InitializerConfig) (*Initializer, error) {
	if cfg.LocalStore == nil {
		return nil, errors.New("local store is required")
	}
	if cfg.Metadata == nil || cfg.Nodes == nil {
		return nil, errors.New("metadata and share node clients are required")
	}
	if cfg.WalletType == "" {
		cfg.WalletType = interfaces.WalletTypeSSS
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	log := cfg.Log.With(slog.String("wallet_type", string(cfg.WalletType)))
	return &Initializer{
		walletType: cfg.WalletType,
		localStore: cfg.LocalStore,
		accounts:   registry.NewAccountRegistry(cfg.LocalStore, cfg.WalletType, log),
		metadata:   cfg.Metadata,
		nodes:      cfg.Nodes,
		observer:   cfg.Observer,
		openCloud:  cfg.OpenCloud,
		log:        log,
	}, nil
}

// Registry returns the account registry of the initializer's wallet type.
func (i *Initializer) Registry() *registry.AccountRegistry {
	return i.accounts
}

// Initialize creates a new wallet or restores an existing one from the supplied shares.
//
// With fewer than two shares, or when PrivateKey is set, a new secret is generated (or taken
// from PrivateKey). Missing social and cloud shares are minted and distributed, a fresh device
// share is always stored, and the account is added to the registry.
func (i *Initializer) Initialize(ctx context.Context, p InitializeParams) (provider *Provider, err error) {
	defer func() {
		i.observe(err)
	}()

	if p.GetPassword == nil {
		return nil, errors.New("password function is required")
	}
	if p.Storage == nil {
		return nil, errors.New("cloud storage is required")
	}

	shares, socialUsable, err := i.collectShares(ctx, p)
	if err != nil {
		return nil, err
	}

	forceNew := p.PrivateKey != ""

	var poly *Polynomial
	if len(shares) < accountThreshold || forceNew {
		var secret *big.Int
		if forceNew {
			key, err := crypto.HexToECDSA(strings.TrimPrefix(p.PrivateKey, "0x"))
			if err != nil {
				return nil, fmt.Errorf("invalid private key: %w", err)
			}
			secret = key.D
		} else {
			secret, err = RandomScalar()
			if err != nil {
				return nil, err
			}
		}
		poly, err = NewPolynomial(secret, accountThreshold)
		if err != nil {
			return nil, err
		}
		i.log.Debug("Generated new account polynomial", slog.Bool("imported", forceNew))
	} else {
		poly, err = PolynomialFromShares(shares)
		if err != nil {
			return nil, fmt.Errorf("failed to reconstruct polynomial: %w", err)
		}
	}

	// A social share without a published index is unusable and gets replaced.
	if !socialUsable || forceNew {
		if err := i.registerSocialShare(ctx, poly, p); err != nil {
			return nil, err
		}
	}

	secret := poly.Secret()
	if secret.Sign() == 0 {
		return nil, interfaces.ErrNullSecret
	}
	address, err := cryptoutils.AddressFromScalar(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to derive address: %w", err)
	}
	log := i.log.With(slog.String("address", interfaces.AddressKey(address)))

	// An imported key replaces the supplied shares, so its cloud share is always minted.
	if p.CloudShare == "" || forceNew {
		if err := i.storeCloudShare(ctx, poly, address, p.Storage); err != nil {
			return nil, err
		}
	}

	if err := i.storeDeviceShare(ctx, poly, address, p.GetPassword); err != nil {
		return nil, err
	}

	if _, err := i.accounts.Append(ctx, address); err != nil {
		return nil, fmt.Errorf("failed to register account: %w", err)
	}

	log.Info("Wallet initialized",
		slog.Bool("had_cloud_share", p.CloudShare != ""),
		slog.Bool("had_social_share", socialUsable),
		slog.Bool("imported", forceNew))

	return NewProvider(ProviderConfig{
		WalletType:  i.walletType,
		Address:     address,
		LocalStore:  i.localStore,
		Storage:     p.Storage,
		GetPassword: p.GetPassword,
		Log:         i.log,
	}), nil
}

// collectShares parses the cloud share and resolves the social share index from metadata.
// socialUsable reports whether the social share was supplied and has a published index.
func (i *Initializer) collectShares(ctx context.Context, p InitializeParams) (shares []Share, socialUsable bool, err error) {
	if p.CloudShare != "" {
		share, err := ParseShare(p.CloudShare)
		if err != nil {
			return nil, false, fmt.Errorf("invalid cloud share: %w", err)
		}
		shares = append(shares, share)
	}

	if p.SocialShare == "" {
		return shares, false, nil
	}

	value, err := ParseScalar(p.SocialShare)
	if err != nil {
		return nil, false, fmt.Errorf("invalid social share: %w", err)
	}

	raw, err := i.metadata.GetMetadataValue(ctx, p.Options.MetadataURL, p.SocialShare, interfaces.SocialShareIndexField)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read social share index: %w", err)
	}
	if raw == nil {
		i.log.Warn("Social share has no index in metadata, ignoring it")
		return shares, false, nil
	}

	var meta struct {
		Index string `json:"index"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, false, fmt.Errorf("invalid social share index: %w", err)
	}
	index, err := ParseScalar(meta.Index)
	if err != nil {
		return nil, false, fmt.Errorf("invalid social share index: %w", err)
	}
	return append(shares, Share{Index: index, Value: value}), true, nil
}

type nodeResponse struct {
	index *big.Int
	value *big.Int
}

// registerSocialShare mints a social share of poly, splits it across the share nodes and
// records its index in metadata keyed by the social share itself.
func (i *Initializer) registerSocialShare(ctx context.Context, poly *Polynomial, p InitializeParams) error {
	social, err := poly.NewShare()
	if err != nil {
		return err
	}

	socialPoly, err := NewPolynomial(social.Value, socialThreshold)
	if err != nil {
		return err
	}

	details, err := i.nodes.Shares(ctx, p.Options.GenerateSharesURL, p.Verifier, p.Token, true)
	if err != nil {
		return fmt.Errorf("failed to get share nodes: %w", err)
	}

	tmpKey, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("failed to generate temporary key: %w", err)
	}
	tmpPublicKey := hex.EncodeToString(crypto.CompressPubkey(&tmpKey.PublicKey))

	responses := make([]*nodeResponse, len(details.Shares))
	var wg sync.WaitGroup
	for n, node := range details.Shares {
		wg.Add(1)
		go func(n int, node interfaces.NodeShare) {
			defer wg.Done()

			index, err := ParseScalar(node.ShareIndex)
			if err != nil {
				i.log.Debug("Invalid share index from generator", slog.String("node", node.NodeURL), "err", err)
				return
			}

			sub := socialPoly.Share(index)
			resp, err := i.nodes.ShareCreate(ctx, node.NodeURL, p.Verifier, p.Token, tmpPublicKey, ScalarHex(sub.Value))
			if err != nil {
				i.log.Debug("Share node did not respond", slog.String("node", node.NodeURL), "err", err)
				return
			}

			value, err := ParseScalar(resp.HexShare)
			if err != nil {
				i.log.Debug("Share node returned invalid share", slog.String("node", node.NodeURL), "err", err)
				return
			}
			if value.Cmp(sub.Value) != 0 {
				i.log.Warn("Share node acknowledged a different share", slog.String("node", node.NodeURL))
				return
			}
			responses[n] = &nodeResponse{index: index, value: value}
		}(n, node)
	}
	wg.Wait()

	var values, indices []*big.Int
	for _, r := range responses {
		if r != nil {
			values = append(values, r.value)
			indices = append(indices, r.index)
		}
	}

	if len(values) < minNodeResponses {
		i.log.Warn("Not enough share nodes responded",
			slog.Int("responses", len(values)),
			slog.Int("nodes", len(details.Shares)))
		return interfaces.ErrNotEnoughShares
	}

	recovered, err := LagrangeInterpolation(values, indices)
	if err != nil || recovered.Cmp(social.Value) != 0 {
		i.log.Warn("Share node responses do not match the social share", slog.Int("responses", len(values)))
		return interfaces.ErrShareIntegrity
	}

	err = i.metadata.SetMetadataValue(ctx, p.Options.MetadataURL, ScalarHex(social.Value),
		interfaces.SocialShareIndexField, map[string]string{"index": social.Index.Text(16)})
	if err != nil {
		return fmt.Errorf("failed to store social share index: %w", err)
	}

	i.log.Debug("Social share registered", slog.Int("responses", len(values)))
	return nil
}

func (i *Initializer) storeCloudShare(ctx context.Context, poly *Polynomial, address common.Address, storage interfaces.CloudStorage) error {
	share, err := poly.NewShare()
	if err != nil {
		return err
	}

	stored, err := storage.SetItem(ctx, interfaces.CloudShareKey(address), share.String())
	if err != nil {
		return fmt.Errorf("failed to store cloud share: %w", err)
	}
	if !stored {
		i.log.Warn("Cloud storage did not persist the cloud share", slog.String("storage", storage.Name()))
		return nil
	}

	return SetStorageForAccount(ctx, i.localStore, i.walletType, address, storage.LocationURI())
}

func (i *Initializer) storeDeviceShare(ctx context.Context, poly *Polynomial, address common.Address, getPassword interfaces.PasswordFunc) error {
	share, err := poly.NewShare()
	if err != nil {
		return err
	}

	password, err := getPassword(ctx)
	if err != nil {
		return fmt.Errorf("failed to get password: %w", err)
	}

	encrypted, err := cryptoutils.EncryptShare([]byte(share.String()), password)
	if err != nil {
		return err
	}

	if err := i.localStore.Set(ctx, interfaces.DeviceShareKey(i.walletType, address), encrypted); err != nil {
		return fmt.Errorf("failed to store device share: %w", err)
	}
	return nil
}

func (i *Initializer) observe(err error) {
	if i.observer == nil {
		return
	}
	outcome := OutcomeSuccess
	switch {
	case err == nil:
	case errors.Is(err, interfaces.ErrNotEnoughShares):
		outcome = OutcomeNotEnoughShares
	case errors.Is(err, interfaces.ErrShareIntegrity):
		outcome = OutcomeIntegrity
	default:
		outcome = OutcomeError
	}
	i.observer.InitializeFinished(i.walletType, outcome)
}
