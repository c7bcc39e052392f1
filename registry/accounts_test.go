package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/wallet-custody-backend/interfaces"
	"github.com/ruteri/wallet-custody-backend/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAddress(i int) common.Address {
	return common.HexToAddress(fmt.Sprintf("0x%040x", i+1))
}

func TestAccountRegistry_AppendDedupes(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemoryStore("registry")
	reg := NewAccountRegistry(store, interfaces.WalletTypeSSS, logger)

	accounts, err := reg.Accounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)

	address := common.HexToAddress("0xAbCdEf0000000000000000000000000000000001")
	added, err := reg.Append(ctx, address)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = reg.Append(ctx, address)
	require.NoError(t, err)
	assert.False(t, added, "Second append of the same address should be a no-op")

	accounts, err = reg.Accounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0xabcdef0000000000000000000000000000000001"}, accounts)

	raw, err := store.Get(ctx, "SSS_KEY_accounts")
	require.NoError(t, err)
	assert.JSONEq(t, `["0xabcdef0000000000000000000000000000000001"]`, string(raw))

	ok, err := reg.Contains(ctx, address)
	require.NoError(t, err)
	assert.True(t, ok)

	removed, err := reg.Remove(ctx, address)
	require.NoError(t, err)
	assert.True(t, removed)
	accounts, err = reg.Accounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestAccountRegistry_WalletTypesAreSeparate(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemoryStore("registry")

	sss := NewAccountRegistry(store, interfaces.WalletTypeSSS, logger)
	mpc := NewAccountRegistry(store, interfaces.WalletTypeMPC, logger)

	_, err := sss.Append(ctx, testAddress(1))
	require.NoError(t, err)

	accounts, err := mpc.Accounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)

	_, err = store.Get(ctx, "SSS_KEY_accounts")
	assert.NoError(t, err)
	_, err = store.Get(ctx, "MPC_KEY_accounts")
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)
}

func TestAccountRegistry_ConcurrentAppends(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fileStore, err := storage.NewFileStore(t.TempDir(), logger)
	require.NoError(t, err)

	stores := map[string]interfaces.KeyValueStore{
		"atomic updater": storage.NewMemoryStore("registry"),
		"mutex":          fileStore,
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			reg := NewAccountRegistry(store, interfaces.WalletTypeSSS, logger)

			const n = 32
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := reg.Append(ctx, testAddress(i))
					assert.NoError(t, err)
				}(i)
			}
			wg.Wait()

			accounts, err := reg.Accounts(ctx)
			require.NoError(t, err)
			assert.Len(t, accounts, n, "No append should be lost")
		})
	}
}

func TestAccountRegistry_CorruptedData(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemoryStore("registry")
	require.NoError(t, store.Set(ctx, "SSS_KEY_accounts", []byte("{not json")))

	reg := NewAccountRegistry(store, interfaces.WalletTypeSSS, logger)
	_, err := reg.Accounts(ctx)
	assert.Error(t, err)
	_, err = reg.Append(ctx, testAddress(0))
	assert.Error(t, err)
}
