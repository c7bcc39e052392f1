package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ruteri/wallet-custody-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors(t *testing.T) {
	c, err := NewCollectors("custody", prometheus.NewRegistry())
	require.NoError(t, err)

	c.QueueDepth(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(c.queueDepth))

	c.SignSettled("approved")
	c.SignSettled("approved")
	c.SignSettled("rejected")
	assert.Equal(t, 2.0, testutil.ToFloat64(c.signOutcomes.WithLabelValues("approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.signOutcomes.WithLabelValues("rejected")))

	c.InitializeFinished(interfaces.WalletTypeSSS, "success")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.initOutcomes.WithLabelValues("sss", "success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.initOutcomes.WithLabelValues("mpc", "success")))

	c.ObserveRequest("/api/sign/pending", http.StatusNoContent, 10*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(c.requestDuration))
}

func TestCollectors_DuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewCollectors("custody", registry)
	require.NoError(t, err)
	_, err = NewCollectors("custody", registry)
	assert.Error(t, err)
}

func TestMetricsServer_Handler(t *testing.T) {
	srv, err := New("custody", "127.0.0.1:0")
	require.NoError(t, err)
	srv.Collectors().SignSettled("timeout")

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `custody_sign_requests_total{outcome="timeout"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
