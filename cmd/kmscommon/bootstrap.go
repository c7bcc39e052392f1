package kmscommon

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/wallet-custody-backend/api/metadata"
	"github.com/ruteri/wallet-custody-backend/api/sharenodes"
	"github.com/ruteri/wallet-custody-backend/interfaces"
	"github.com/ruteri/wallet-custody-backend/kms"
	"github.com/ruteri/wallet-custody-backend/storage"
	"github.com/urfave/cli/v2"
)

var LocalStorageFlag = &cli.StringFlag{
	Name:  "local-storage",
	Value: "file:///var/lib/wallet-custody",
	Usage: "location URI of the local store holding device shares and account registries (file, vault, redis, memory)",
}

var CloudStorageFlag = &cli.StringSliceFlag{
	Name:  "cloud-storage",
	Usage: "location URIs of the cloud share backends (s3, ipfs, file, memory); repeat or comma separate",
}

var MetadataURLFlag = &cli.StringFlag{
	Name:  "metadata-url",
	Usage: "base URL of the metadata service",
}

var GenerateSharesURLFlag = &cli.StringFlag{
	Name:  "generate-shares-url",
	Usage: "share generator endpoint, srv:// endpoints are resolved through DNS",
}

var DNSServerFlag = &cli.StringFlag{
	Name:  "dns-server",
	Value: sharenodes.DefaultDNSServer,
	Usage: "DNS server used for srv:// endpoints",
}

var RemoteTimeoutFlag = &cli.DurationFlag{
	Name:  "remote-timeout",
	Value: 15 * time.Second,
	Usage: "timeout of metadata and share node requests",
}

var KmsFlags = []cli.Flag{
	LocalStorageFlag,
	CloudStorageFlag,
	MetadataURLFlag,
	GenerateSharesURLFlag,
	DNSServerFlag,
	RemoteTimeoutFlag,
}

// Wallets bundles the wallet collaborators configured from the command line.
type Wallets struct {
	Factory      *storage.StorageFactory
	LocalStore   interfaces.KeyValueStore
	Options      kms.InitializeOptions
	Initializers map[interfaces.WalletType]*kms.Initializer

	cloudURIs []string
}

// SetupKMS opens the local store and creates one initializer per wallet type.
// Cloud storage is opened lazily by Cloud since read-only commands do not need it.
func SetupKMS(cCtx *cli.Context, logger *slog.Logger, observer kms.InitializeObserver) (*Wallets, error) {
	localURI := cCtx.String(LocalStorageFlag.Name)
	timeout := cCtx.Duration(RemoteTimeoutFlag.Name)

	localLocation, err := interfaces.NewStorageBackendLocation(localURI)
	if err != nil {
		return nil, fmt.Errorf("invalid local-storage: %w", err)
	}

	factory := storage.NewStorageFactory(logger)
	localStore, err := factory.KeyValueStoreFor(localLocation)
	if err != nil {
		return nil, fmt.Errorf("could not open local store: %w", err)
	}

	resolver := sharenodes.NewSRVResolver(cCtx.String(DNSServerFlag.Name), timeout)
	nodes := sharenodes.NewClient(timeout, resolver, logger)
	metadataClient := metadata.NewClient(timeout, logger)

	wallets := &Wallets{
		Factory:    factory,
		LocalStore: localStore,
		Options: kms.InitializeOptions{
			MetadataURL:       cCtx.String(MetadataURLFlag.Name),
			GenerateSharesURL: cCtx.String(GenerateSharesURLFlag.Name),
		},
		Initializers: make(map[interfaces.WalletType]*kms.Initializer),
		cloudURIs:    cCtx.StringSlice(CloudStorageFlag.Name),
	}

	for _, walletType := range []interfaces.WalletType{interfaces.WalletTypeSSS, interfaces.WalletTypeMPC} {
		initializer, err := kms.NewInitializer(kms.InitializerConfig{
			WalletType: walletType,
			LocalStore: localStore,
			Metadata:   metadataClient,
			Nodes:      nodes,
			Observer:   observer,
			Log:        logger,
			OpenCloud:  factory.OpenRecorded,
		})
		if err != nil {
			return nil, err
		}
		wallets.Initializers[walletType] = initializer
	}

	logger.Info("Wallet storage configured", "local", localLocation.String(), "cloud", len(wallets.cloudURIs))
	return wallets, nil
}

// Initializer returns the initializer of a wallet type name.
func (w *Wallets) Initializer(name string) (*kms.Initializer, error) {
	walletType, err := interfaces.ParseWalletType(name)
	if err != nil {
		return nil, err
	}
	return w.Initializers[walletType], nil
}

// Cloud opens the configured cloud share backends, mirrored when more than one is given.
func (w *Wallets) Cloud() (interfaces.CloudStorage, error) {
	if len(w.cloudURIs) == 0 {
		return nil, errors.New("cloud-storage is required")
	}

	locations := make([]interfaces.StorageBackendLocation, 0, len(w.cloudURIs))
	for _, uri := range w.cloudURIs {
		location, err := interfaces.NewStorageBackendLocation(uri)
		if err != nil {
			return nil, fmt.Errorf("invalid cloud-storage %q: %w", uri, err)
		}
		locations = append(locations, location)
	}
	return w.Factory.CreateMultiCloud(locations)
}
