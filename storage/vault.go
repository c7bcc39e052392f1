package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/wallet-custody-backend/interfaces"
)

// VaultStore implements a key-value store using HashiCorp Vault KV v2.
// Each key is a secret under mountPath/data/dataPath holding a single "content" field.
type VaultStore struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultStore creates a new Vault backed store.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: Vault mount path (e.g. "secret")
//   - dataPath: Path within the mount (e.g. "custody")
//   - token: Vault token, falls back to VAULT_TOKEN when empty
//   - log: Structured logger
func NewVaultStore(address, mountPath, dataPath, token string, log *slog.Logger) (*VaultStore, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.HttpClient = &http.Client{Timeout: 30 * time.Second}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	mountPath = strings.Trim(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")

	return &VaultStore{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", strings.TrimPrefix(strings.TrimPrefix(address, "https://"), "http://"), mountPath, dataPath),
	}, nil
}

func (b *VaultStore) secretPath(key string) string {
	if b.dataPath == "" {
		return fmt.Sprintf("%s/data/%s", b.mountPath, key)
	}
	return fmt.Sprintf("%s/data/%s/%s", b.mountPath, b.dataPath, key)
}

func (b *VaultStore) metadataPath(key string) string {
	if b.dataPath == "" {
		return fmt.Sprintf("%s/metadata/%s", b.mountPath, key)
	}
	return fmt.Sprintf("%s/metadata/%s/%s", b.mountPath, b.dataPath, key)
}

// Get reads the secret for key.
func (b *VaultStore) Get(ctx context.Context, key string) ([]byte, error) {
	path := b.secretPath(key)

	secret, err := b.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		b.log.Error("Failed to read from Vault", slog.String("path", path), "err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	if secret == nil || secret.Data == nil {
		return nil, interfaces.ErrContentNotFound
	}

	// KV v2 returns data: null for deleted versions
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok || data == nil {
		return nil, interfaces.ErrContentNotFound
	}

	content, ok := data["content"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid content format in Vault data")
	}

	b.log.Debug("Fetched key from Vault", slog.String("path", path))
	return []byte(content), nil
}

// Set writes a new version of the secret for key.
func (b *VaultStore) Set(ctx context.Context, key string, value []byte) error {
	path := b.secretPath(key)

	_, err := b.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"data": map[string]interface{}{
			"content": string(value),
		},
	})
	if err != nil {
		b.log.Error("Failed to write to Vault", slog.String("path", path), "err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Stored key in Vault", slog.String("path", path))
	return nil
}

// Delete removes all versions of the secret for key.
func (b *VaultStore) Delete(ctx context.Context, key string) error {
	if _, err := b.client.Logical().DeleteWithContext(ctx, b.metadataPath(key)); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

// Available checks that Vault is initialized and unsealed.
func (b *VaultStore) Available(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := b.client.Sys().HealthWithContext(healthCtx)
	if err != nil {
		b.log.Debug("Vault health check failed", "err", err)
		return false
	}

	if !health.Initialized || health.Sealed {
		b.log.Debug("Vault is not available",
			slog.Bool("initialized", health.Initialized),
			slog.Bool("sealed", health.Sealed))
		return false
	}

	return true
}

// Name returns a unique identifier for this store.
func (b *VaultStore) Name() string {
	return fmt.Sprintf("vault-%s-%s", b.mountPath, b.dataPath)
}

// LocationURI returns the URI that identifies this store.
func (b *VaultStore) LocationURI() string {
	return b.locationURI
}
