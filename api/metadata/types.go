package metadata

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultNamespace scopes metadata values of the wallet.
const DefaultNamespace = "haqq"

// MaxClockSkew bounds the age of a signed request accepted by the server.
const MaxClockSkew = 5 * time.Minute

var ErrInvalidSignature = errors.New("invalid metadata request signature")

// SignedRequest is the body of /get and /set requests.
// Value is omitted on /get.
type SignedRequest struct {
	PubKey    string          `json:"pub_key"`
	Namespace string          `json:"namespace"`
	Field     string          `json:"field"`
	Value     json.RawMessage `json:"value,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Signature string          `json:"signature"`
}

// GetResponse is returned by /get for a stored field.
type GetResponse struct {
	Value json.RawMessage `json:"value"`
}

// ErrorResponse is returned with non-2xx statuses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Digest is the keccak256 hash the request signature covers.
func (r *SignedRequest) Digest() []byte {
	return crypto.Keccak256(
		[]byte(r.Namespace),
		[]byte(r.Field),
		r.Value,
		[]byte(strconv.FormatInt(r.Timestamp, 10)),
	)
}

// Verify checks the signature against the embedded public key and the timestamp window.
func (r *SignedRequest) Verify(now time.Time) error {
	sig, err := hex.DecodeString(strings.TrimPrefix(r.Signature, "0x"))
	if err != nil || len(sig) != crypto.SignatureLength {
		return fmt.Errorf("%w: malformed signature", ErrInvalidSignature)
	}

	pub, err := crypto.SigToPub(r.Digest(), sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if hex.EncodeToString(crypto.CompressPubkey(pub)) != strings.TrimPrefix(strings.ToLower(r.PubKey), "0x") {
		return fmt.Errorf("%w: public key mismatch", ErrInvalidSignature)
	}

	skew := now.Sub(time.Unix(r.Timestamp, 0))
	if skew > MaxClockSkew || skew < -MaxClockSkew {
		return fmt.Errorf("%w: timestamp outside allowed window", ErrInvalidSignature)
	}
	return nil
}
