package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ruteri/wallet-custody-backend/api/metadata"
	"github.com/ruteri/wallet-custody-backend/api/sharenodes"
	"github.com/ruteri/wallet-custody-backend/cmd/flags"
	"github.com/ruteri/wallet-custody-backend/cmd/kmscommon"
	"github.com/ruteri/wallet-custody-backend/interfaces"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

var flagField = &cli.StringFlag{
	Name:  "field",
	Value: interfaces.SocialShareIndexField,
	Usage: "metadata field to read",
}

var flagVerifier = &cli.StringFlag{
	Name:     "verifier",
	Required: true,
	Usage:    "social login verifier",
}

var flagToken = &cli.StringFlag{
	Name:     "token",
	Required: true,
	Usage:    "social login token",
}

// nodeEndpoint is a share node with its dialable URL.
type nodeEndpoint struct {
	NodeURL    string `json:"nodeUrl"`
	Resolved   string `json:"resolved"`
	ShareIndex string `json:"shareIndex"`
}

func main() {
	app := &cli.App{
		Name:           "metadata client",
		Usage:          "Inspect the metadata service and share node network",
		DefaultCommand: "nodes",
		Flags:          append(append([]cli.Flag{flags.LogServiceFlagFn("metadata-client")}, flags.LogFlags...), kmscommon.KmsFlags...),
		Before:         flags.ApplyConfig,
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "read a metadata field signed with an access share (prompted)",
				Flags: []cli.Flag{flagField},
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx)
					client := metadata.NewClient(cCtx.Duration(kmscommon.RemoteTimeoutFlag.Name), logger)

					accessShare, err := readAccessShare()
					if err != nil {
						return err
					}

					value, err := client.GetMetadataValue(cCtx.Context, cCtx.String(kmscommon.MetadataURLFlag.Name), accessShare, cCtx.String(flagField.Name))
					if err != nil {
						return err
					}
					if value == nil {
						return fmt.Errorf("field %q is not set", cCtx.String(flagField.Name))
					}
					fmt.Println(string(value))
					return nil
				},
			},
			{
				Name:  "nodes",
				Usage: "list the share nodes of an identity and resolve their endpoints",
				Flags: []cli.Flag{flagVerifier, flagToken},
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx)
					timeout := cCtx.Duration(kmscommon.RemoteTimeoutFlag.Name)
					resolver := sharenodes.NewSRVResolver(cCtx.String(kmscommon.DNSServerFlag.Name), timeout)
					client := sharenodes.NewClient(timeout, resolver, logger)

					details, err := client.Shares(cCtx.Context, cCtx.String(kmscommon.GenerateSharesURLFlag.Name),
						cCtx.String(flagVerifier.Name), cCtx.String(flagToken.Name), false)
					if err != nil {
						return err
					}

					endpoints, err := resolveNodes(cCtx.Context, resolver, details.Shares)
					if err != nil {
						return err
					}

					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(map[string]any{
						"isNew": details.IsNew,
						"nodes": endpoints,
					})
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func resolveNodes(ctx context.Context, resolver sharenodes.EndpointResolver, shares []interfaces.NodeShare) ([]nodeEndpoint, error) {
	endpoints := make([]nodeEndpoint, 0, len(shares))
	for _, share := range shares {
		resolved, err := resolver.Resolve(ctx, share.NodeURL)
		if err != nil {
			return nil, fmt.Errorf("could not resolve %s: %w", share.NodeURL, err)
		}
		endpoints = append(endpoints, nodeEndpoint{
			NodeURL:    share.NodeURL,
			Resolved:   resolved,
			ShareIndex: share.ShareIndex,
		})
	}
	return endpoints, nil
}

func readAccessShare() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("cannot prompt for the access share: stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "Access share (hex): ")
	share, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(share)), nil
}
