package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/wallet-custody-backend/interfaces"
)

type availabilityChecker interface {
	Available(ctx context.Context) bool
}

// MultiCloudStorage implements interfaces.CloudStorage over several backends.
// Writes go to every available backend, reads come from the first backend holding the key.
type MultiCloudStorage struct {
	backends []interfaces.CloudStorage
	log      *slog.Logger
}

// NewMultiCloudStorage creates a new multi-backend cloud storage with fallback.
func NewMultiCloudStorage(backends []interfaces.CloudStorage, logger *slog.Logger) *MultiCloudStorage {
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiCloudStorage{
		backends: backends,
		log:      logger,
	}
}

func available(ctx context.Context, backend interfaces.CloudStorage) bool {
	if checker, ok := backend.(availabilityChecker); ok {
		return checker.Available(ctx)
	}
	return true
}

// GetItem returns the value from the first backend that has the key.
func (m *MultiCloudStorage) GetItem(ctx context.Context, key string) (string, error) {
	start := time.Now()
	var errs []error
	notFound := 0

	for _, backend := range m.backends {
		if !available(ctx, backend) {
			m.log.Debug("Backend unavailable", slog.String("backend_name", backend.Name()))
			continue
		}

		value, err := backend.GetItem(ctx, key)
		if err == nil {
			m.log.Debug("Fetched item",
				slog.String("backend_name", backend.Name()),
				slog.Duration("duration", time.Since(start)))
			return value, nil
		}
		if errors.Is(err, interfaces.ErrContentNotFound) {
			notFound++
			continue
		}

		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		m.log.Debug("Failed to fetch from backend",
			slog.String("backend_name", backend.Name()),
			"err", err)
	}

	if len(errs) == 0 {
		return "", interfaces.ErrContentNotFound
	}

	m.log.Warn("No backend returned the item",
		slog.Int("failed_backends", len(errs)),
		slog.Int("missing", notFound),
		slog.Duration("duration", time.Since(start)))

	return "", fmt.Errorf("all backends failed to fetch item: %w", errors.Join(errs...))
}

// SetItem stores value in all available backends. It succeeds if at least one backend stored it.
func (m *MultiCloudStorage) SetItem(ctx context.Context, key, value string) (bool, error) {
	var errs []error
	stored := 0

	for _, backend := range m.backends {
		if !available(ctx, backend) {
			m.log.Debug("Backend unavailable", slog.String("backend_name", backend.Name()))
			continue
		}

		ok, err := backend.SetItem(ctx, key, value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Debug("Failed to store to backend",
				slog.String("backend_name", backend.Name()),
				"err", err)
			continue
		}
		if ok {
			stored++
		}
	}

	if stored > 0 {
		m.log.Debug("Stored item", slog.Int("backends", stored))
		return true, nil
	}
	if len(errs) > 0 {
		return false, fmt.Errorf("all backends failed to store item: %w", errors.Join(errs...))
	}
	return false, nil
}

// Available checks if any backend is available.
func (m *MultiCloudStorage) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if available(ctx, backend) {
			return true
		}
	}
	return false
}

func (m *MultiCloudStorage) Name() string {
	return "multi-storage"
}

// LocationURI joins the locations of all backends.
func (m *MultiCloudStorage) LocationURI() string {
	var locations []string
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}

	return "multi:[" + strings.Join(locations, ",") + "]"
}
