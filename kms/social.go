package kms

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/wallet-custody-backend/interfaces"
)

// RecoverSocialShare asks every share node of the verifier/token identity for its sub-share
// and interpolates the social share from the non-empty answers.
// It returns "" when no node holds a share for the identity.
func (i *Initializer) RecoverSocialShare(ctx context.Context, generateSharesURL, verifier, token string) (string, error) {
	details, err := i.nodes.Shares(ctx, generateSharesURL, verifier, token, false)
	if err != nil {
		return "", fmt.Errorf("failed to get share nodes: %w", err)
	}

	if details.IsNew {
		i.log.Debug("Identity has no social share yet", slog.String("verifier", verifier))
		return "", nil
	}

	tmpKey, err := crypto.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate temporary key: %w", err)
	}
	tmpPublicKey := hex.EncodeToString(crypto.CompressPubkey(&tmpKey.PublicKey))

	responses := make([]*nodeResponse, len(details.Shares))
	var wg sync.WaitGroup
	for n, node := range details.Shares {
		wg.Add(1)
		go func(n int, node interfaces.NodeShare) {
			defer wg.Done()

			index, err := ParseScalar(node.ShareIndex)
			if err != nil {
				i.log.Debug("Invalid share index from generator", slog.String("node", node.NodeURL), "err", err)
				return
			}

			resp, err := i.nodes.ShareRequest(ctx, node.NodeURL, verifier, token, tmpPublicKey)
			if err != nil {
				i.log.Debug("Share node did not respond", slog.String("node", node.NodeURL), "err", err)
				return
			}
			if resp.HexShare == "" {
				return
			}

			value, err := ParseScalar(resp.HexShare)
			if err != nil {
				i.log.Debug("Share node returned invalid share", slog.String("node", node.NodeURL), "err", err)
				return
			}
			responses[n] = &nodeResponse{index: index, value: value}
		}(n, node)
	}
	wg.Wait()

	var values, indices []*big.Int
	for _, r := range responses {
		if r != nil {
			values = append(values, r.value)
			indices = append(indices, r.index)
		}
	}

	if len(values) == 0 {
		return "", nil
	}

	secret, err := LagrangeInterpolation(values, indices)
	if err != nil {
		return "", fmt.Errorf("failed to interpolate social share: %w", err)
	}

	i.log.Debug("Recovered social share", slog.Int("responses", len(values)))
	return ScalarHex(secret), nil
}
