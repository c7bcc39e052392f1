package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/wallet-custody-backend/api"
	"github.com/ruteri/wallet-custody-backend/common"
	"github.com/ruteri/wallet-custody-backend/config"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

// ConfigureServer builds the API listener config. The write timeout leaves room for a
// sign request to block for the whole sign timeout.
func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *api.HTTPServerConfig {
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	var writeTimeout time.Duration
	if signTimeout := cCtx.Duration(SignTimeoutFlag.Name); signTimeout > 0 {
		writeTimeout = signTimeout + 30*time.Second
	}

	return &api.HTTPServerConfig{
		ListenAddr:               cCtx.String(ListenAddrFlag.Name),
		MetricsAddr:              cCtx.String(MetricsAddrFlag.Name),
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             writeTimeout,
	}
}

// ApplyConfig loads the --config file and uses its values for every app level flag not
// given on the command line. Use it as the app's Before hook.
func ApplyConfig(cCtx *cli.Context) error {
	cfg, err := config.Load(cCtx.String(ConfigFileFlag.Name))
	if err != nil {
		return err
	}

	defined := make(map[string]bool)
	for _, f := range cCtx.App.Flags {
		for _, name := range f.Names() {
			defined[name] = true
		}
	}

	for name, value := range cfg.FlagValues() {
		if value == "" || !defined[name] || cCtx.IsSet(name) {
			continue
		}
		if err := cCtx.Set(name, value); err != nil {
			return err
		}
	}
	return nil
}

var ConfigFileFlag = &cli.StringFlag{
	Name:    "config",
	Usage:   "YAML, TOML or JSON config file; command line flags take precedence",
	EnvVars: []string{"CUSTODY_CONFIG"},
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}

var RpcAddrFlag = &cli.StringFlag{
	Name:  "rpc-addr",
	Usage: "EVM JSON-RPC endpoint used for transaction nonces",
}

var ChainIDFlag = &cli.Uint64Flag{
	Name:  "chain-id",
	Value: 11235,
	Usage: "EIP-155 chain id of sign requests",
}

var SignSettleDelayFlag = &cli.DurationFlag{
	Name:  "sign-settle-delay",
	Value: 300 * time.Millisecond,
	Usage: "pause between settling a sign request and presenting the next one",
}

var SignTimeoutFlag = &cli.DurationFlag{
	Name:  "sign-timeout",
	Value: 10 * time.Minute,
	Usage: "reject sign requests left unanswered this long, 0 to wait forever",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var LogFlags = []cli.Flag{
	ConfigFileFlag,
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
}

var ServerFlags = []cli.Flag{
	ListenAddrFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
	SignSettleDelayFlag,
	SignTimeoutFlag,
	ChainIDFlag,
	RpcAddrFlag,
}
