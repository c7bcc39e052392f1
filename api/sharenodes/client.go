package sharenodes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ruteri/wallet-custody-backend/interfaces"
)

// Client implements interfaces.ShareNodeClient over JSON-RPC 2.0.
type Client struct {
	httpClient *http.Client
	resolver   EndpointResolver
	log        *slog.Logger
}

// NewClient creates a share node client. resolver may be nil when endpoints are plain URLs.
func NewClient(timeout time.Duration, resolver EndpointResolver, log *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		resolver:   resolver,
		log:        log,
	}
}

// Shares asks the generator which nodes hold (or will hold) sub-shares for the account.
func (c *Client) Shares(ctx context.Context, url, verifier, token string, isNew bool) (*interfaces.NodeDetails, error) {
	var details interfaces.NodeDetails
	if err := c.call(ctx, url, &details, "shares", verifier, token, isNew); err != nil {
		return nil, err
	}
	return &details, nil
}

// ShareCreate registers a sub-share on a node.
func (c *Client) ShareCreate(ctx context.Context, nodeURL, verifier, token, publicKey, share string) (*interfaces.NodeShareResponse, error) {
	var resp interfaces.NodeShareResponse
	if err := c.call(ctx, nodeURL, &resp, "shareCreate", verifier, token, publicKey, share); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ShareRequest fetches the sub-share a node holds for the account.
func (c *Client) ShareRequest(ctx context.Context, nodeURL, verifier, token, tmpPublicKey string) (*interfaces.NodeShareResponse, error) {
	var resp interfaces.NodeShareResponse
	if err := c.call(ctx, nodeURL, &resp, "shareRequest", verifier, token, tmpPublicKey); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) call(ctx context.Context, endpoint string, result any, method string, args ...any) error {
	if c.resolver != nil {
		resolved, err := c.resolver.Resolve(ctx, endpoint)
		if err != nil {
			return err
		}
		endpoint = resolved
	}

	client, err := rpc.DialOptions(ctx, endpoint, rpc.WithHTTPClient(c.httpClient))
	if err != nil {
		return fmt.Errorf("could not dial %s: %w", endpoint, err)
	}
	defer client.Close()

	start := time.Now()
	if err := client.CallContext(ctx, result, method, args...); err != nil {
		c.log.Debug("Share node call failed",
			slog.String("method", method),
			slog.String("endpoint", endpoint),
			"err", err)
		return fmt.Errorf("%s on %s: %w", method, endpoint, err)
	}

	c.log.Debug("Share node call",
		slog.String("method", method),
		slog.String("endpoint", endpoint),
		slog.Duration("duration", time.Since(start)))
	return nil
}
