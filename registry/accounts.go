package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/wallet-custody-backend/interfaces"
)

// AccountRegistry keeps the list of known accounts of one wallet type in local storage.
type AccountRegistry struct {
	store      interfaces.KeyValueStore
	walletType interfaces.WalletType
	log        *slog.Logger

	// serializes read-modify-write when the store cannot update atomically
	mu sync.Mutex
}

// NewAccountRegistry creates a registry over store.
func NewAccountRegistry(store interfaces.KeyValueStore, walletType interfaces.WalletType, log *slog.Logger) *AccountRegistry {
	return &AccountRegistry{
		store:      store,
		walletType: walletType,
		log:        log,
	}
}

// WalletType returns the wallet type whose accounts are tracked.
func (r *AccountRegistry) WalletType() interfaces.WalletType {
	return r.walletType
}

// Accounts returns the registered addresses in registration order.
func (r *AccountRegistry) Accounts(ctx context.Context) ([]string, error) {
	data, err := r.store.Get(ctx, interfaces.AccountsKey(r.walletType))
	if errors.Is(err, interfaces.ErrContentNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read account registry: %w", err)
	}
	return decodeAccounts(data, true)
}

// Contains reports whether address is registered.
func (r *AccountRegistry) Contains(ctx context.Context, address common.Address) (bool, error) {
	accounts, err := r.Accounts(ctx)
	if err != nil {
		return false, err
	}
	key := interfaces.AddressKey(address)
	for _, a := range accounts {
		if a == key {
			return true, nil
		}
	}
	return false, nil
}

// Append registers address. Registering a known address is a no-op and returns false.
func (r *AccountRegistry) Append(ctx context.Context, address common.Address) (bool, error) {
	key := interfaces.AddressKey(address)
	added := false

	err := r.update(ctx, func(accounts []string) []string {
		added = false
		for _, a := range accounts {
			if a == key {
				return accounts
			}
		}
		added = true
		return append(accounts, key)
	})
	if err != nil {
		return false, err
	}

	if added {
		r.log.Debug("Account registered",
			slog.String("address", key),
			slog.String("wallet_type", string(r.walletType)))
	}
	return added, nil
}

// Remove unregisters address and reports whether it was present.
func (r *AccountRegistry) Remove(ctx context.Context, address common.Address) (bool, error) {
	key := interfaces.AddressKey(address)
	removed := false

	err := r.update(ctx, func(accounts []string) []string {
		removed = false
		out := accounts[:0]
		for _, a := range accounts {
			if a == key {
				removed = true
				continue
			}
			out = append(out, a)
		}
		return out
	})
	return removed, err
}

func (r *AccountRegistry) update(ctx context.Context, mutate func([]string) []string) error {
	key := interfaces.AccountsKey(r.walletType)

	apply := func(current []byte, found bool) ([]byte, error) {
		var accounts []string
		if found {
			var err error
			accounts, err = decodeAccounts(current, false)
			if err != nil {
				return nil, err
			}
		}
		if accounts == nil {
			accounts = []string{}
		}
		return json.Marshal(mutate(accounts))
	}

	if updater, ok := r.store.(interfaces.AtomicUpdater); ok {
		return updater.Update(ctx, key, apply)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.store.Get(ctx, key)
	found := true
	if errors.Is(err, interfaces.ErrContentNotFound) {
		found = false
	} else if err != nil {
		return fmt.Errorf("failed to read account registry: %w", err)
	}

	next, err := apply(current, found)
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, key, next); err != nil {
		return fmt.Errorf("failed to write account registry: %w", err)
	}
	return nil
}

// decodeAccounts parses the stored list. Entries are normalized to lowercase;
// dedupe drops repeated entries left by older writers.
func decodeAccounts(data []byte, dedupe bool) ([]string, error) {
	var accounts []string
	if len(data) > 0 {
		if err := json.Unmarshal(data, &accounts); err != nil {
			return nil, fmt.Errorf("corrupted account registry: %w", err)
		}
	}

	out := make([]string, 0, len(accounts))
	seen := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		a = strings.ToLower(a)
		if _, ok := seen[a]; ok && dedupe {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out, nil
}
