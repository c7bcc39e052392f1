package interfaces

import (
	"context"
	"encoding/json"
)

// SocialShareIndexField is the metadata field holding the social share index.
const SocialShareIndexField = "socialShareIndex"

// MetadataClient reads and writes values on the metadata server.
// Requests are authenticated with the access share used as a private key.
type MetadataClient interface {
	// GetMetadataValue returns the stored value or nil when the field is not set.
	GetMetadataValue(ctx context.Context, url, accessShare, field string) (json.RawMessage, error)

	// SetMetadataValue stores value under field.
	SetMetadataValue(ctx context.Context, url, accessShare, field string, value any) error
}

// NodeShare pairs a share node endpoint with the index it evaluates the social polynomial at.
type NodeShare struct {
	NodeURL    string
	ShareIndex string
}

// MarshalJSON encodes the pair as a two element array.
func (n NodeShare) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{n.NodeURL, n.ShareIndex})
}

// UnmarshalJSON decodes a two element array.
func (n *NodeShare) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	n.NodeURL, n.ShareIndex = pair[0], pair[1]
	return nil
}

// NodeDetails is returned by the share generator.
type NodeDetails struct {
	IsNew  bool        `json:"isNew"`
	Shares []NodeShare `json:"shares"`
}

// NodeShareResponse is returned by shareCreate and shareRequest.
type NodeShareResponse struct {
	HexShare string `json:"hex_share"`
}

// ShareNodeClient talks to the share generator and share nodes.
type ShareNodeClient interface {
	Shares(ctx context.Context, url, verifier, token string, isNew bool) (*NodeDetails, error)
	ShareCreate(ctx context.Context, nodeURL, verifier, token, publicKey, share string) (*NodeShareResponse, error)
	ShareRequest(ctx context.Context, nodeURL, verifier, token, tmpPublicKey string) (*NodeShareResponse, error)
}
