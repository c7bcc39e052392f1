package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.ListenAddr)
	assert.Equal(t, int64(45), cfg.Server.DrainSeconds)
	assert.Equal(t, 300*time.Millisecond, cfg.Sign.SettleDelay)
	assert.Equal(t, 10*time.Minute, cfg.Sign.Timeout)
	assert.Equal(t, uint64(11235), cfg.Sign.ChainID)
	assert.Empty(t, cfg.Storage.Cloud)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custody.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  listen_addr: 0.0.0.0:9000
storage:
  local: redis://localhost:6379/0
  cloud:
    - s3://wallet-shares/prod?region=eu-central-1
    - ipfs://127.0.0.1:5001/haqq
remote:
  metadata_url: https://metadata.example
  timeout: 5s
sign:
  settle_delay: 1s
`), 0o600))

	t.Setenv("CUSTODY_SIGN_TIMEOUT", "2m")
	t.Setenv("CUSTODY_REMOTE_GENERATE_SHARES_URL", "srv://_shares._tcp.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.ListenAddr)
	assert.Equal(t, "127.0.0.1:8090", cfg.Server.MetricsAddr, "Unset keys keep defaults")
	assert.Equal(t, "redis://localhost:6379/0", cfg.Storage.Local)
	assert.Len(t, cfg.Storage.Cloud, 2)
	assert.Equal(t, 5*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, time.Second, cfg.Sign.SettleDelay)
	assert.Equal(t, 2*time.Minute, cfg.Sign.Timeout, "Environment overrides the file")
	assert.Equal(t, "srv://_shares._tcp.example", cfg.Remote.GenerateSharesURL)

	values := cfg.FlagValues()
	assert.Equal(t, "0.0.0.0:9000", values["listen-addr"])
	assert.Equal(t, "s3://wallet-shares/prod?region=eu-central-1,ipfs://127.0.0.1:5001/haqq", values["cloud-storage"])
	assert.Equal(t, "2m0s", values["sign-timeout"])
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
