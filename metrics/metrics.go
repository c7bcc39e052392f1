// Package metrics exposes the service's Prometheus metrics on a dedicated listener.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ruteri/wallet-custody-backend/interfaces"
)

// Namespace prefixes every metric name.
const Namespace = "wallet_custody"

// Collectors are the application metrics. They implement signer.QueueObserver
// and kms.InitializeObserver.
type Collectors struct {
	queueDepth      prometheus.Gauge
	signOutcomes    *prometheus.CounterVec
	initOutcomes    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewCollectors creates the collectors and registers them with reg.
func NewCollectors(namespace string, reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sign_queue_depth",
			Help:      "Unsettled sign requests, including the one presented.",
		}),
		signOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sign_requests_total",
			Help:      "Settled sign requests by outcome.",
		}, []string{"outcome"}),
		initOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallet_initializations_total",
			Help:      "Wallet initializations by wallet type and outcome.",
		}, []string{"wallet_type", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}

	for _, collector := range []prometheus.Collector{c.queueDepth, c.signOutcomes, c.initOutcomes, c.requestDuration} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return c, nil
}

func (c *Collectors) QueueDepth(n int) {
	c.queueDepth.Set(float64(n))
}

func (c *Collectors) SignSettled(outcome string) {
	c.signOutcomes.WithLabelValues(outcome).Inc()
}

func (c *Collectors) InitializeFinished(walletType interfaces.WalletType, outcome string) {
	c.initOutcomes.WithLabelValues(string(walletType), outcome).Inc()
}

// ObserveRequest records the latency of one HTTP request.
func (c *Collectors) ObserveRequest(route string, code int, elapsed time.Duration) {
	c.requestDuration.WithLabelValues(route, fmt.Sprint(code)).Observe(elapsed.Seconds())
}

// MetricsServer serves /metrics from its own registry.
type MetricsServer struct {
	registry   *prometheus.Registry
	collectors *Collectors
	srv        *http.Server
}

// New creates a metrics server listening on addr with the runtime and application collectors.
func New(namespace, addr string) (*MetricsServer, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c, err := NewCollectors(namespace, registry)
	if err != nil {
		return nil, err
	}

	mux := chi.NewRouter()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	return &MetricsServer{
		registry:   registry,
		collectors: c,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Collectors returns the application metrics of the server's registry.
func (m *MetricsServer) Collectors() *Collectors {
	return m.collectors
}

// Handler returns the /metrics router.
func (m *MetricsServer) Handler() http.Handler {
	return m.srv.Handler
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
