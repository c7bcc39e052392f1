// Package config reads the optional service configuration file.
//
// Values come from defaults, then the YAML/TOML/JSON file, then CUSTODY_* environment
// variables (CUSTODY_SIGN_TIMEOUT overrides sign.timeout). Command line flags set
// explicitly take precedence over all of them; see FlagValues.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment overrides.
const EnvPrefix = "CUSTODY"

type Config struct {
	Server struct {
		ListenAddr   string `mapstructure:"listen_addr"`
		MetricsAddr  string `mapstructure:"metrics_addr"`
		Pprof        bool   `mapstructure:"pprof"`
		DrainSeconds int64  `mapstructure:"drain_seconds"`
	} `mapstructure:"server"`

	Log struct {
		JSON    bool   `mapstructure:"json"`
		Debug   bool   `mapstructure:"debug"`
		Service string `mapstructure:"service"`
	} `mapstructure:"log"`

	Storage struct {
		// Local is the location URI of the local store (device shares, registry).
		Local string `mapstructure:"local"`
		// Cloud lists the location URIs of the cloud share backends.
		Cloud []string `mapstructure:"cloud"`
	} `mapstructure:"storage"`

	Remote struct {
		MetadataURL       string        `mapstructure:"metadata_url"`
		GenerateSharesURL string        `mapstructure:"generate_shares_url"`
		DNSServer         string        `mapstructure:"dns_server"`
		Timeout           time.Duration `mapstructure:"timeout"`
	} `mapstructure:"remote"`

	Sign struct {
		SettleDelay time.Duration `mapstructure:"settle_delay"`
		Timeout     time.Duration `mapstructure:"timeout"`
		ChainID     uint64        `mapstructure:"chain_id"`
		RPCURL      string        `mapstructure:"rpc_url"`
	} `mapstructure:"sign"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", "127.0.0.1:8080")
	v.SetDefault("server.metrics_addr", "127.0.0.1:8090")
	v.SetDefault("server.pprof", false)
	v.SetDefault("server.drain_seconds", 45)

	v.SetDefault("log.json", false)
	v.SetDefault("log.debug", false)
	v.SetDefault("log.service", "")

	v.SetDefault("storage.local", "file:///var/lib/wallet-custody")
	v.SetDefault("storage.cloud", []string{})

	v.SetDefault("remote.metadata_url", "")
	v.SetDefault("remote.generate_shares_url", "")
	v.SetDefault("remote.dns_server", "127.0.0.53:53")
	v.SetDefault("remote.timeout", 15*time.Second)

	v.SetDefault("sign.settle_delay", 300*time.Millisecond)
	v.SetDefault("sign.timeout", 10*time.Minute)
	v.SetDefault("sign.chain_id", 11235)
	v.SetDefault("sign.rpc_url", "")
}

// Load reads path, or only defaults and environment when path is empty.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// FlagValues maps command line flag names to the configured values.
// Multi-valued flags are comma separated.
func (c *Config) FlagValues() map[string]string {
	return map[string]string{
		"listen-addr":         c.Server.ListenAddr,
		"metrics-addr":        c.Server.MetricsAddr,
		"pprof":               strconv.FormatBool(c.Server.Pprof),
		"drain-seconds":       strconv.FormatInt(c.Server.DrainSeconds, 10),
		"log-json":            strconv.FormatBool(c.Log.JSON),
		"log-debug":           strconv.FormatBool(c.Log.Debug),
		"log-service":         c.Log.Service,
		"local-storage":       c.Storage.Local,
		"cloud-storage":       strings.Join(c.Storage.Cloud, ","),
		"metadata-url":        c.Remote.MetadataURL,
		"generate-shares-url": c.Remote.GenerateSharesURL,
		"dns-server":          c.Remote.DNSServer,
		"remote-timeout":      c.Remote.Timeout.String(),
		"sign-settle-delay":   c.Sign.SettleDelay.String(),
		"sign-timeout":        c.Sign.Timeout.String(),
		"chain-id":            strconv.FormatUint(c.Sign.ChainID, 10),
		"rpc-addr":            c.Sign.RPCURL,
	}
}
