package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/ruteri/wallet-custody-backend/interfaces"
)

var validKey = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// FileStore implements a key-value store using the local file system.
// Every key is stored in its own file under the base directory.
type FileStore struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileStore creates a new file store using the specified base directory.
func NewFileStore(baseDir string, log *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileStore{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Get reads the file for key. Returns ErrContentNotFound if it doesn't exist.
func (b *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	filePath, err := b.filePath(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, interfaces.ErrContentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	b.log.Debug("Fetched key from file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return data, nil
}

// Set writes value atomically by renaming a temporary file over the target.
func (b *FileStore) Set(ctx context.Context, key string, value []byte) error {
	filePath, err := b.filePath(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(b.baseDir, ".tmp-"+key+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}

	b.log.Debug("Stored key in file", slog.String("path", filePath))
	return nil
}

// Delete removes the file for key.
func (b *FileStore) Delete(ctx context.Context, key string) error {
	filePath, err := b.filePath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Available checks if the base directory exists.
func (b *FileStore) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	if err != nil {
		b.log.Debug("File store unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this store.
func (b *FileStore) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this store.
func (b *FileStore) LocationURI() string {
	return b.locationURI
}

func (b *FileStore) filePath(key string) (string, error) {
	if !validKey.MatchString(key) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(b.baseDir, key), nil
}
