package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/wallet-custody-backend/interfaces"
)

// IPFSCloudStorage keeps cloud shares in the mutable file system of an IPFS node.
// Items are files under baseDir; the node's MFS is private to the node operator.
type IPFSCloudStorage struct {
	shell       *shell.Shell
	apiURL      string
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewIPFSCloudStorage connects to the IPFS API at host:port.
func NewIPFSCloudStorage(host, port, baseDir string, timeout time.Duration, log *slog.Logger) *IPFSCloudStorage {
	apiURL := fmt.Sprintf("%s:%s", host, port)
	baseDir = "/" + strings.Trim(baseDir, "/")

	sh := shell.NewShell(apiURL)
	if timeout > 0 {
		sh.SetTimeout(timeout)
	}

	return &IPFSCloudStorage{
		shell:       sh,
		apiURL:      apiURL,
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s%s", apiURL, baseDir),
	}
}

// GetItem reads the MFS file for key.
func (b *IPFSCloudStorage) GetItem(ctx context.Context, key string) (string, error) {
	start := time.Now()
	filePath := path.Join(b.baseDir, key)

	if !b.shell.IsUp() {
		b.log.Warn("IPFS node unavailable", slog.String("api", b.apiURL))
		return "", interfaces.ErrBackendUnavailable
	}

	reader, err := b.shell.FilesRead(ctx, filePath)
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") {
			return "", interfaces.ErrContentNotFound
		}
		b.log.Error("Failed to read file from IPFS",
			slog.String("path", filePath),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return "", fmt.Errorf("failed to read file from IPFS: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read data from IPFS: %w", err)
	}

	b.log.Debug("Fetched item from IPFS",
		slog.String("path", filePath),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return string(data), nil
}

// SetItem writes the MFS file for key, creating parent directories.
func (b *IPFSCloudStorage) SetItem(ctx context.Context, key, value string) (bool, error) {
	filePath := path.Join(b.baseDir, key)

	if !b.shell.IsUp() {
		return false, nil
	}

	err := b.shell.FilesWrite(ctx, filePath, strings.NewReader(value),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
		shell.FilesWrite.Truncate(true))
	if err != nil {
		return false, fmt.Errorf("failed to write file to IPFS: %w", err)
	}

	b.log.Debug("Stored item in IPFS", slog.String("path", filePath))
	return true, nil
}

// Available checks if the IPFS node is accessible.
func (b *IPFSCloudStorage) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

func (b *IPFSCloudStorage) Name() string {
	return fmt.Sprintf("ipfs-%s", b.apiURL)
}

func (b *IPFSCloudStorage) LocationURI() string {
	return b.locationURI
}
