package kms

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/wallet-custody-backend/api/metadata"
	"github.com/ruteri/wallet-custody-backend/api/sharenodes"
	"github.com/ruteri/wallet-custody-backend/interfaces"
	"github.com/ruteri/wallet-custody-backend/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPath = "m/44'/60'/0'/0/0"

// countingCloud records SetItem calls on top of an in-memory cloud.
type countingCloud struct {
	interfaces.CloudStorage

	mu       sync.Mutex
	setCalls int
}

func (c *countingCloud) SetItem(ctx context.Context, key, value string) (bool, error) {
	c.mu.Lock()
	c.setCalls++
	c.mu.Unlock()
	return c.CloudStorage.SetItem(ctx, key, value)
}

func (c *countingCloud) SetCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setCalls
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) InitializeFinished(_ interfaces.WalletType, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

type testEnv struct {
	network     *sharenodes.StubNetwork
	metadata    *metadata.StubServer
	metadataURL string
	cloud       *countingCloud
	logger      *slog.Logger
}

func newTestEnv(t *testing.T, nodes int) *testEnv {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	network := sharenodes.NewStubNetwork(nodes, logger)
	t.Cleanup(network.Close)

	stub := metadata.NewStubServer(logger)
	server := httptest.NewServer(stub.Handler())
	t.Cleanup(server.Close)

	return &testEnv{
		network:     network,
		metadata:    stub,
		metadataURL: server.URL,
		cloud:       &countingCloud{CloudStorage: storage.CloudFromStore(storage.NewMemoryStore("cloud"))},
		logger:      logger,
	}
}

// device creates an initializer with its own local storage, like a fresh install.
func (e *testEnv) device(t *testing.T, observer InitializeObserver) (*Initializer, *storage.MemoryStore) {
	local := storage.NewMemoryStore("device")
	initializer, err := NewInitializer(InitializerConfig{
		WalletType: interfaces.WalletTypeSSS,
		LocalStore: local,
		Metadata:   metadata.NewClient(5*time.Second, e.logger),
		Nodes:      sharenodes.NewClient(5*time.Second, nil, e.logger),
		Observer:   observer,
		Log:        e.logger,
	})
	require.NoError(t, err)
	return initializer, local
}

func (e *testEnv) params() InitializeParams {
	return InitializeParams{
		Verifier:    "google",
		Token:       "user-1",
		GetPassword: staticPassword("correct horse"),
		Storage:     e.cloud,
		Options: InitializeOptions{
			MetadataURL:       e.metadataURL,
			GenerateSharesURL: e.network.GeneratorURL(),
		},
	}
}

func staticPassword(password string) interfaces.PasswordFunc {
	return func(context.Context) (string, error) {
		return password, nil
	}
}

func TestInitialize_Signup(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 3)
	observer := &recordingObserver{}
	initializer, local := env.device(t, observer)

	provider, err := initializer.Initialize(ctx, env.params())
	require.NoError(t, err, "Signup should succeed")
	assert.Equal(t, interfaces.WalletTypeSSS, provider.WalletType())
	assert.True(t, common.IsHexAddress(provider.GetIdentifier()))

	address := provider.Address()
	assert.Equal(t, strings.ToLower(address.Hex()), provider.GetIdentifier(), "Identifier should be the lowercased address")

	assert.Equal(t, 1, env.cloud.SetCalls(), "Cloud share should be written once")
	cloudShare, err := env.cloud.GetItem(ctx, interfaces.CloudShareKey(address))
	require.NoError(t, err)
	_, err = ParseShare(cloudShare)
	require.NoError(t, err, "Cloud share should be a share")

	_, err = local.Get(ctx, interfaces.DeviceShareKey(interfaces.WalletTypeSSS, address))
	require.NoError(t, err, "Device share should be stored")

	location, err := GetStorageForAccount(ctx, local, interfaces.WalletTypeSSS, address)
	require.NoError(t, err)
	assert.Equal(t, env.cloud.LocationURI(), location)

	accounts, err := initializer.GetAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{interfaces.AddressKey(address)}, accounts)

	assert.Equal(t, 1, env.metadata.Len(), "Social share index should be published")
	for i, node := range env.network.Nodes {
		_, ok := node.Share("google", "user-1")
		assert.True(t, ok, "Node %d should hold a sub-share", i)
	}

	assert.Equal(t, []string{OutcomeSuccess}, observer.outcomes)
}

func TestProvider_GetAccountInfo(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 3)
	initializer, _ := env.device(t, nil)

	provider, err := initializer.Initialize(ctx, env.params())
	require.NoError(t, err)

	first, err := provider.GetAccountInfo(ctx, testPath)
	require.NoError(t, err)
	second, err := provider.GetAccountInfo(ctx, testPath)
	require.NoError(t, err)
	assert.Equal(t, first, second, "Derivation should be deterministic")
	assert.Equal(t, testPath, first.Path)
	assert.NotEmpty(t, first.PrivateKey)

	other, err := provider.GetAccountInfo(ctx, "m/44'/60'/0'/0/1")
	require.NoError(t, err)
	assert.NotEqual(t, first.Address, other.Address)

	reopened, err := initializer.Provider(ctx, provider.Address(), env.cloud, staticPassword("correct horse"))
	require.NoError(t, err)
	again, err := reopened.GetAccountInfo(ctx, testPath)
	require.NoError(t, err)
	assert.Equal(t, first.Address, again.Address)
}

func TestProvider_WrongPassword(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 3)
	initializer, _ := env.device(t, nil)

	provider, err := initializer.Initialize(ctx, env.params())
	require.NoError(t, err)

	reopened, err := initializer.Provider(ctx, provider.Address(), env.cloud, staticPassword("wrong"))
	require.NoError(t, err)
	_, err = reopened.GetAccountInfo(ctx, testPath)
	assert.Error(t, err, "Wrong password should not decrypt the device share")
}

func TestInitialize_RestoreFromSocialAndCloud(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 3)
	first, _ := env.device(t, nil)

	original, err := first.Initialize(ctx, env.params())
	require.NoError(t, err)
	originalInfo, err := original.GetAccountInfo(ctx, testPath)
	require.NoError(t, err)

	cloudShare, err := env.cloud.GetItem(ctx, interfaces.CloudShareKey(original.Address()))
	require.NoError(t, err)

	second, local := env.device(t, nil)
	socialShare, err := second.RecoverSocialShare(ctx, env.network.GeneratorURL(), "google", "user-1")
	require.NoError(t, err)
	require.NotEmpty(t, socialShare, "Social share should be recoverable from the nodes")

	p := env.params()
	p.SocialShare = socialShare
	p.CloudShare = cloudShare
	restored, err := second.Initialize(ctx, p)
	require.NoError(t, err, "Restore should succeed")

	assert.Equal(t, original.Address(), restored.Address(), "Restore should yield the same account")
	assert.Equal(t, 1, env.cloud.SetCalls(), "Restore should not rewrite the cloud share")
	assert.Equal(t, 1, env.metadata.Len(), "Restore should not register a new social share")

	_, err = local.Get(ctx, interfaces.DeviceShareKey(interfaces.WalletTypeSSS, restored.Address()))
	require.NoError(t, err, "Restore should store a device share on the new device")

	restoredInfo, err := restored.GetAccountInfo(ctx, testPath)
	require.NoError(t, err)
	assert.Equal(t, originalInfo.Address, restoredInfo.Address)
}

func TestInitialize_RestoreFromCloudOnly(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 3)
	initializer, local := env.device(t, nil)

	p := env.params()
	p.CloudShare = `{"index":"a1","value":"5d2c8f0b6a1e"}`
	provider, err := initializer.Initialize(ctx, p)
	require.NoError(t, err)

	assert.Equal(t, 0, env.cloud.SetCalls(), "Cloud share is present and must not be rewritten")
	assert.Equal(t, 2, local.Keys(), "Only the device share and the registry should be stored")
	_, err = local.Get(ctx, interfaces.DeviceShareKey(interfaces.WalletTypeSSS, provider.Address()))
	require.NoError(t, err)

	assert.Equal(t, 1, env.metadata.Len(), "A new social share should be registered")
	for i, node := range env.network.Nodes {
		_, ok := node.Share("google", "user-1")
		assert.True(t, ok, "Node %d should hold a sub-share", i)
	}
}

func TestInitialize_UnindexedSocialShare(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 3)
	initializer, _ := env.device(t, nil)

	unknown, err := RandomScalar()
	require.NoError(t, err)

	p := env.params()
	p.SocialShare = ScalarHex(unknown)
	provider, err := initializer.Initialize(ctx, p)
	require.NoError(t, err)

	assert.Equal(t, 1, env.metadata.Len(), "A social share without an index should be replaced")
	for i, node := range env.network.Nodes {
		_, ok := node.Share("google", "user-1")
		assert.True(t, ok, "Node %d should hold a sub-share", i)
	}

	recovered, err := initializer.RecoverSocialShare(ctx, env.network.GeneratorURL(), "google", "user-1")
	require.NoError(t, err)
	assert.NotEqual(t, ScalarHex(unknown), recovered)

	cloudShare, err := env.cloud.GetItem(ctx, interfaces.CloudShareKey(provider.Address()))
	require.NoError(t, err)

	restorer, _ := env.device(t, nil)
	restore := env.params()
	restore.SocialShare = recovered
	restore.CloudShare = cloudShare
	restored, err := restorer.Initialize(ctx, restore)
	require.NoError(t, err)
	assert.Equal(t, provider.Address(), restored.Address(), "Minted social share should restore the wallet")
}

func TestProvider_RecordedStorage(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 3)

	local := storage.NewMemoryStore("device")
	var opened []string
	initializer, err := NewInitializer(InitializerConfig{
		WalletType: interfaces.WalletTypeSSS,
		LocalStore: local,
		Metadata:   metadata.NewClient(5*time.Second, env.logger),
		Nodes:      sharenodes.NewClient(5*time.Second, nil, env.logger),
		Log:        env.logger,
		OpenCloud: func(locationURI string) (interfaces.CloudStorage, error) {
			opened = append(opened, locationURI)
			return env.cloud, nil
		},
	})
	require.NoError(t, err)

	provider, err := initializer.Initialize(ctx, env.params())
	require.NoError(t, err)
	want, err := provider.GetAccountInfo(ctx, testPath)
	require.NoError(t, err)

	reopened, err := initializer.Provider(ctx, provider.Address(), nil, staticPassword("correct horse"))
	require.NoError(t, err)
	assert.Equal(t, []string{env.cloud.LocationURI()}, opened, "Recorded storage should be opened")

	info, err := reopened.GetAccountInfo(ctx, testPath)
	require.NoError(t, err)
	assert.Equal(t, want.Address, info.Address)

	without, _ := env.device(t, nil)
	_, err = without.Initialize(ctx, env.params())
	require.NoError(t, err)
	accounts, err := without.GetAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	_, err = without.Provider(ctx, common.HexToAddress(accounts[0]), nil, staticPassword("correct horse"))
	assert.ErrorIs(t, err, ErrNoCloudStorage, "Without an opener a storage must be given")
}

func TestInitialize_ImportPrivateKey(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 3)
	initializer, _ := env.device(t, nil)

	existing, err := initializer.Initialize(ctx, env.params())
	require.NoError(t, err)
	cloudShare, err := env.cloud.GetItem(ctx, interfaces.CloudShareKey(existing.Address()))
	require.NoError(t, err)
	socialShare, err := initializer.RecoverSocialShare(ctx, env.network.GeneratorURL(), "google", "user-1")
	require.NoError(t, err)

	const rawKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	key, err := crypto.HexToECDSA(rawKey)
	require.NoError(t, err)

	p := env.params()
	p.CloudShare = cloudShare
	p.SocialShare = socialShare
	p.PrivateKey = rawKey
	provider, err := initializer.Initialize(ctx, p)
	require.NoError(t, err)

	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), provider.Address(), "Address should come from the imported key")
	assert.Equal(t, 2, env.metadata.Len(), "Import should register a new social share")

	info, err := provider.GetAccountInfo(ctx, testPath)
	require.NoError(t, err, "Imported account should be usable")
	assert.Equal(t, testPath, info.Path)

	accounts, err := initializer.GetAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)

	p.PrivateKey = "0x" + strings.ToUpper(rawKey)
	again, err := initializer.Initialize(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, provider.Address(), again.Address(), "Address derivation should be idempotent")
}

func TestInitialize_InvalidPrivateKey(t *testing.T) {
	env := newTestEnv(t, 3)
	initializer, _ := env.device(t, nil)

	p := env.params()
	p.PrivateKey = "not-a-key"
	_, err := initializer.Initialize(context.Background(), p)
	assert.Error(t, err)
}

func TestInitialize_NodeFaults(t *testing.T) {
	tests := []struct {
		name    string
		nodes   int
		faults  map[int]sharenodes.Fault
		wantErr error
		outcome string
	}{
		{
			name:    "one node offline out of four",
			nodes:   4,
			faults:  map[int]sharenodes.Fault{2: sharenodes.FaultOffline},
			outcome: OutcomeSuccess,
		},
		{
			name:    "quorum lost",
			nodes:   3,
			faults:  map[int]sharenodes.Fault{0: sharenodes.FaultOffline, 1: sharenodes.FaultOffline},
			wantErr: interfaces.ErrNotEnoughShares,
			outcome: OutcomeNotEnoughShares,
		},
		{
			name:    "all nodes offline",
			nodes:   3,
			faults:  map[int]sharenodes.Fault{0: sharenodes.FaultOffline, 1: sharenodes.FaultOffline, 2: sharenodes.FaultOffline},
			wantErr: interfaces.ErrNotEnoughShares,
			outcome: OutcomeNotEnoughShares,
		},
		{
			name:    "corrupted response",
			nodes:   3,
			faults:  map[int]sharenodes.Fault{1: sharenodes.FaultCorrupt},
			wantErr: interfaces.ErrShareIntegrity,
			outcome: OutcomeIntegrity,
		},
		{
			name:    "corrupted response drops below quorum",
			nodes:   2,
			faults:  map[int]sharenodes.Fault{1: sharenodes.FaultCorrupt},
			wantErr: interfaces.ErrNotEnoughShares,
			outcome: OutcomeNotEnoughShares,
		},
		{
			name:    "two honest responses below social threshold",
			nodes:   3,
			faults:  map[int]sharenodes.Fault{2: sharenodes.FaultOffline},
			wantErr: interfaces.ErrShareIntegrity,
			outcome: OutcomeIntegrity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			env := newTestEnv(t, tt.nodes)
			for i, fault := range tt.faults {
				env.network.Nodes[i].SetFault(fault)
			}
			observer := &recordingObserver{}
			initializer, local := env.device(t, observer)

			provider, err := initializer.Initialize(ctx, env.params())
			assert.Equal(t, []string{tt.outcome}, observer.outcomes)

			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.NotNil(t, provider)
				return
			}

			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, provider)
			assert.Equal(t, 0, env.metadata.Len(), "Failed registration must not publish an index")
			assert.Equal(t, 0, env.cloud.SetCalls(), "Failed registration must not write the cloud share")
			assert.Equal(t, 0, local.Keys(), "Failed registration must not touch local storage")
		})
	}
}

func TestInitialize_MissingCollaborators(t *testing.T) {
	env := newTestEnv(t, 3)
	initializer, _ := env.device(t, nil)

	p := env.params()
	p.GetPassword = nil
	_, err := initializer.Initialize(context.Background(), p)
	assert.Error(t, err)

	p = env.params()
	p.Storage = nil
	_, err = initializer.Initialize(context.Background(), p)
	assert.Error(t, err)

	_, err = NewInitializer(InitializerConfig{})
	assert.Error(t, err)
}

func TestRecoverSocialShare_UnknownIdentity(t *testing.T) {
	env := newTestEnv(t, 3)
	initializer, _ := env.device(t, nil)

	share, err := initializer.RecoverSocialShare(context.Background(), env.network.GeneratorURL(), "google", "nobody")
	require.NoError(t, err)
	assert.Empty(t, share)
}

func TestRemoveAccount(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 3)
	initializer, local := env.device(t, nil)

	provider, err := initializer.Initialize(ctx, env.params())
	require.NoError(t, err)

	require.NoError(t, initializer.RemoveAccount(ctx, provider.Address()))

	accounts, err := initializer.GetAccounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)

	_, err = local.Get(ctx, interfaces.DeviceShareKey(interfaces.WalletTypeSSS, provider.Address()))
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	_, err = initializer.Provider(ctx, provider.Address(), env.cloud, staticPassword("correct horse"))
	assert.ErrorIs(t, err, ErrUnknownAccount)
}
