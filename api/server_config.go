package api

import (
	"log/slog"
	"time"
)

// HTTPServerConfig configures the custody API listener.
type HTTPServerConfig struct {
	// ListenAddr is the API listen address.
	ListenAddr string

	// MetricsAddr is the Prometheus listen address. Empty disables the listener.
	MetricsAddr string

	EnablePprof bool
	Log         *slog.Logger

	// DrainDuration is how long GET /drain holds before answering.
	DrainDuration time.Duration

	GracefulShutdownDuration time.Duration
	ReadTimeout              time.Duration

	// WriteTimeout bounds every response, including POST /api/sign/request which blocks
	// until the user decides. It must exceed the sign timeout.
	WriteTimeout time.Duration
}
