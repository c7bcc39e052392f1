package metadata

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/wallet-custody-backend/cryptoutils"
)

// Client implements interfaces.MetadataClient over HTTP.
// Every request is signed with the access share used as a secp256k1 private key.
type Client struct {
	Client    *http.Client
	Namespace string
	log       *slog.Logger
}

// NewClient creates a metadata client with the given request timeout.
func NewClient(timeout time.Duration, log *slog.Logger) *Client {
	return &Client{
		Client:    &http.Client{Timeout: timeout},
		Namespace: DefaultNamespace,
		log:       log,
	}
}

// GetMetadataValue returns the value stored under field, or nil when the field is not set.
func (c *Client) GetMetadataValue(ctx context.Context, url, accessShare, field string) (json.RawMessage, error) {
	req, err := c.signedRequest(accessShare, field, nil)
	if err != nil {
		return nil, err
	}

	status, body, err := c.post(ctx, endpoint(url, "get"), req)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		c.log.Debug("Metadata field not set", slog.String("field", field))
		return nil, nil
	default:
		return nil, fmt.Errorf("metadata server returned %d: %s", status, string(body))
	}

	var resp GetResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("could not parse metadata response: %w", err)
	}
	if len(resp.Value) == 0 || string(resp.Value) == "null" {
		return nil, nil
	}
	return resp.Value, nil
}

// SetMetadataValue stores value under field.
func (c *Client) SetMetadataValue(ctx context.Context, url, accessShare, field string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("could not encode metadata value: %w", err)
	}

	req, err := c.signedRequest(accessShare, field, raw)
	if err != nil {
		return err
	}

	status, body, err := c.post(ctx, endpoint(url, "set"), req)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return fmt.Errorf("metadata server returned %d: %s", status, string(body))
	}

	c.log.Debug("Metadata field stored", slog.String("field", field))
	return nil
}

func (c *Client) signedRequest(accessShare, field string, value json.RawMessage) (*SignedRequest, error) {
	key, err := cryptoutils.PrivateKeyFromHex(accessShare)
	if err != nil {
		return nil, fmt.Errorf("invalid access share: %w", err)
	}

	namespace := c.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}

	req := &SignedRequest{
		PubKey:    cryptoutils.CompressedPublicKeyHex(key),
		Namespace: namespace,
		Field:     field,
		Value:     value,
		Timestamp: time.Now().Unix(),
	}

	sig, err := crypto.Sign(req.Digest(), key)
	if err != nil {
		return nil, fmt.Errorf("could not sign metadata request: %w", err)
	}
	req.Signature = hex.EncodeToString(sig)
	return req, nil
}

func (c *Client) post(ctx context.Context, url string, payload *SignedRequest) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("could not initialize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.Client == nil {
		c.Client = http.DefaultClient
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("could not request metadata server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("could not read metadata response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func endpoint(base, path string) string {
	return strings.TrimSuffix(base, "/") + "/" + path
}
