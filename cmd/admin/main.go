package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/wallet-custody-backend/cmd/flags"
	"github.com/ruteri/wallet-custody-backend/cmd/kmscommon"
	"github.com/ruteri/wallet-custody-backend/interfaces"
	"github.com/ruteri/wallet-custody-backend/kms"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

// PasswordEnv supplies the device share password without a prompt.
const PasswordEnv = "CUSTODY_WALLET_PASSWORD"

var flagWalletType = &cli.StringFlag{
	Name:  "wallet-type",
	Value: string(interfaces.WalletTypeSSS),
	Usage: "wallet type: 'sss' or 'mpc'",
}

var flagVerifier = &cli.StringFlag{
	Name:  "verifier",
	Usage: "social login verifier of the share node identity",
}

var flagToken = &cli.StringFlag{
	Name:  "token",
	Usage: "social login token of the share node identity",
}

var flagAddress = &cli.StringFlag{
	Name:     "address",
	Usage:    "account address",
	Required: true,
}

var flagHDPath = &cli.StringFlag{
	Name:  "hd-path",
	Value: accounts.DefaultBaseDerivationPath.String(),
	Usage: "BIP-32 derivation path",
}

var identityFlags = []cli.Flag{flagWalletType, flagVerifier, flagToken}

func main() {
	appFlags := append([]cli.Flag{flags.LogServiceFlagFn("custody-admin")}, flags.LogFlags...)
	appFlags = append(appFlags, kmscommon.KmsFlags...)

	app := &cli.App{
		Name:           "custody-admin",
		Usage:          "Create, restore and inspect threshold wallets",
		DefaultCommand: "accounts",
		Flags:          appFlags,
		Before:         flags.ApplyConfig,
		Commands: []*cli.Command{
			{
				Name:  "signup",
				Usage: "create a new wallet and distribute its shares",
				Flags: identityFlags,
				Action: func(cCtx *cli.Context) error {
					return initialize(cCtx, func(ctx context.Context, w *kmscommon.Wallets, i *kms.Initializer, p *kms.InitializeParams) error {
						return nil
					})
				},
			},
			{
				Name:  "restore",
				Usage: "restore a wallet from its social and cloud shares",
				Flags: append([]cli.Flag{flagAddress}, identityFlags...),
				Action: func(cCtx *cli.Context) error {
					return initialize(cCtx, func(ctx context.Context, w *kmscommon.Wallets, i *kms.Initializer, p *kms.InitializeParams) error {
						address, err := parseAddress(cCtx.String(flagAddress.Name))
						if err != nil {
							return err
						}

						cloudShare, err := p.Storage.GetItem(ctx, interfaces.CloudShareKey(address))
						if err != nil && !errors.Is(err, interfaces.ErrContentNotFound) {
							return fmt.Errorf("failed to read cloud share: %w", err)
						}
						p.CloudShare = cloudShare

						if p.Verifier != "" {
							social, err := i.RecoverSocialShare(ctx, w.Options.GenerateSharesURL, p.Verifier, p.Token)
							if err != nil {
								return err
							}
							p.SocialShare = social
						}

						if p.CloudShare == "" && p.SocialShare == "" {
							return fmt.Errorf("no shares found for %s", address.Hex())
						}
						return nil
					})
				},
			},
			{
				Name:  "import",
				Usage: "create a wallet for an existing private key",
				Flags: identityFlags,
				Action: func(cCtx *cli.Context) error {
					return initialize(cCtx, func(ctx context.Context, w *kmscommon.Wallets, i *kms.Initializer, p *kms.InitializeParams) error {
						key, err := readSecret(ctx, "Private key: ")
						if err != nil {
							return err
						}
						p.PrivateKey = strings.TrimSpace(key)
						return nil
					})
				},
			},
			{
				Name:  "accounts",
				Usage: "list registered accounts",
				Flags: []cli.Flag{flagWalletType},
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx)
					wallets, err := kmscommon.SetupKMS(cCtx, logger, nil)
					if err != nil {
						return err
					}
					initializer, err := wallets.Initializer(cCtx.String(flagWalletType.Name))
					if err != nil {
						return err
					}

					addresses, err := initializer.GetAccounts(cCtx.Context)
					if err != nil {
						return err
					}
					return printJSON(addresses)
				},
			},
			{
				Name:  "account-info",
				Usage: "rebuild the wallet from device and cloud shares and derive an account",
				Flags: []cli.Flag{flagWalletType, flagAddress, flagHDPath},
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx)
					wallets, err := kmscommon.SetupKMS(cCtx, logger, nil)
					if err != nil {
						return err
					}
					initializer, err := wallets.Initializer(cCtx.String(flagWalletType.Name))
					if err != nil {
						return err
					}
					address, err := parseAddress(cCtx.String(flagAddress.Name))
					if err != nil {
						return err
					}
					// Without --cloud-storage the account's recorded storage is used.
					var cloud interfaces.CloudStorage
					if len(cCtx.StringSlice(kmscommon.CloudStorageFlag.Name)) > 0 {
						cloud, err = wallets.Cloud()
						if err != nil {
							return err
						}
					}

					provider, err := initializer.Provider(cCtx.Context, address, cloud, promptPassword)
					if err != nil {
						return err
					}
					info, err := provider.GetAccountInfo(cCtx.Context, cCtx.String(flagHDPath.Name))
					if err != nil {
						return err
					}
					return printJSON(info)
				},
			},
			{
				Name:  "recover-social",
				Usage: "check whether the share nodes hold a social share for an identity",
				Flags: identityFlags,
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx)
					wallets, err := kmscommon.SetupKMS(cCtx, logger, nil)
					if err != nil {
						return err
					}
					initializer, err := wallets.Initializer(cCtx.String(flagWalletType.Name))
					if err != nil {
						return err
					}

					social, err := initializer.RecoverSocialShare(cCtx.Context, wallets.Options.GenerateSharesURL,
						cCtx.String(flagVerifier.Name), cCtx.String(flagToken.Name))
					if err != nil {
						return err
					}
					return printJSON(map[string]bool{"found": social != ""})
				},
			},
			{
				Name:  "remove",
				Usage: "forget an account: device share, storage record and registry entry",
				Flags: []cli.Flag{flagWalletType, flagAddress},
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx)
					wallets, err := kmscommon.SetupKMS(cCtx, logger, nil)
					if err != nil {
						return err
					}
					initializer, err := wallets.Initializer(cCtx.String(flagWalletType.Name))
					if err != nil {
						return err
					}
					address, err := parseAddress(cCtx.String(flagAddress.Name))
					if err != nil {
						return err
					}
					return initializer.RemoveAccount(cCtx.Context, address)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

type prepareFunc func(ctx context.Context, w *kmscommon.Wallets, i *kms.Initializer, p *kms.InitializeParams) error

// initialize runs Initialize with the identity flags after prepare fills the shares.
func initialize(cCtx *cli.Context, prepare prepareFunc) error {
	logger := flags.SetupLogger(cCtx)
	wallets, err := kmscommon.SetupKMS(cCtx, logger, nil)
	if err != nil {
		return err
	}
	initializer, err := wallets.Initializer(cCtx.String(flagWalletType.Name))
	if err != nil {
		return err
	}
	cloud, err := wallets.Cloud()
	if err != nil {
		return err
	}

	params := kms.InitializeParams{
		Verifier:    cCtx.String(flagVerifier.Name),
		Token:       cCtx.String(flagToken.Name),
		GetPassword: promptPassword,
		Storage:     cloud,
		Options:     wallets.Options,
	}
	if err := prepare(cCtx.Context, wallets, initializer, &params); err != nil {
		return err
	}

	provider, err := initializer.Initialize(cCtx.Context, params)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{
		"address":    provider.GetIdentifier(),
		"walletType": string(provider.WalletType()),
	})
}

func promptPassword(ctx context.Context) (string, error) {
	if password, ok := os.LookupEnv(PasswordEnv); ok {
		return password, nil
	}
	return readSecret(ctx, "Wallet password: ")
}

func readSecret(_ context.Context, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("cannot prompt for %q: stdin is not a terminal", strings.TrimSuffix(prompt, ": "))
	}
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(secret), nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
