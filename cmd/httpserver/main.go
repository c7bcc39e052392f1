package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ruteri/wallet-custody-backend/api/signhandler"
	"github.com/ruteri/wallet-custody-backend/cmd/flags"
	"github.com/ruteri/wallet-custody-backend/cmd/kmscommon"
	"github.com/ruteri/wallet-custody-backend/common"
	"github.com/ruteri/wallet-custody-backend/httpserver"
	"github.com/ruteri/wallet-custody-backend/interfaces"
	"github.com/ruteri/wallet-custody-backend/metrics"
	"github.com/ruteri/wallet-custody-backend/signer"
	"github.com/urfave/cli/v2"
)

func main() {
	appFlags := append([]cli.Flag{flags.LogServiceFlagFn(common.PackageName)}, flags.LogFlags...)
	appFlags = append(appFlags, flags.ServerFlags...)
	appFlags = append(appFlags, kmscommon.KmsFlags...)

	app := &cli.App{
		Name:   "custody-server",
		Usage:  "Serve the wallet sign request queue and account registry",
		Flags:  appFlags,
		Before: flags.ApplyConfig,
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)
			cfg := flags.ConfigureServer(cCtx, logger)

			metricsSrv, err := metrics.New(metrics.Namespace, cfg.MetricsAddr)
			if err != nil {
				logger.Error("Failed to create metrics server", "err", err)
				return err
			}
			collectors := metricsSrv.Collectors()

			wallets, err := kmscommon.SetupKMS(cCtx, logger, collectors)
			if err != nil {
				logger.Error("Failed to set up wallets", "err", err)
				return err
			}

			navigator := signhandler.NewUINavigator()
			queueCfg := signer.DefaultQueueConfig(navigator, logger)
			queueCfg.SettleDelay = cCtx.Duration(flags.SignSettleDelayFlag.Name)
			queueCfg.SignTimeout = cCtx.Duration(flags.SignTimeoutFlag.Name)
			queueCfg.Observer = collectors
			queue, err := signer.NewQueue(queueCfg)
			if err != nil {
				logger.Error("Failed to create sign queue", "err", err)
				return err
			}
			defer queue.Close()

			var nonces signer.NonceSource
			if rpcAddress := cCtx.String(flags.RpcAddrFlag.Name); rpcAddress != "" {
				logger.Info("Connecting to Ethereum RPC", "address", rpcAddress)
				ethClient, err := ethclient.Dial(rpcAddress)
				if err != nil {
					logger.Error("Failed to dial RPC", "err", err)
					return err
				}
				defer ethClient.Close()
				nonces = ethClient
			}
			ethSign := signer.NewEthSign(queue, cCtx.Uint64(flags.ChainIDFlag.Name), nonces)

			accounts := make(map[interfaces.WalletType]signhandler.AccountLister, len(wallets.Initializers))
			for walletType, initializer := range wallets.Initializers {
				accounts[walletType] = initializer.Registry()
			}

			server, err := httpserver.New(cfg, metricsSrv,
				signhandler.NewHandler(queue, navigator, accounts, logger),
				signhandler.NewEthHandler(ethSign, logger),
			)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server")
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			// pending callers get ErrQueueClosed before the listener drains
			queue.Close()
			server.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
