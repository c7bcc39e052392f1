package kms

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// curveOrder is the secp256k1 group order. All share arithmetic is done modulo it.
var curveOrder = new(big.Int).Set(crypto.S256().Params().N)

var (
	errInvalidThreshold = errors.New("threshold must be at least 1")
	errNoShares         = errors.New("no shares to interpolate")
	errDuplicateIndex   = errors.New("duplicate share index")
	errZeroIndex        = errors.New("share index must be non-zero")
)

// Share is a point (index, value) on a secret sharing polynomial.
type Share struct {
	Index *big.Int
	Value *big.Int
}

type shareJSON struct {
	Index string `json:"index"`
	Value string `json:"value"`
}

// MarshalJSON encodes the share as {"index": "<hex>", "value": "<hex>"}.
func (s Share) MarshalJSON() ([]byte, error) {
	if s.Index == nil || s.Value == nil {
		return nil, errors.New("incomplete share")
	}
	return json.Marshal(shareJSON{Index: s.Index.Text(16), Value: s.Value.Text(16)})
}

// UnmarshalJSON decodes a share, accepting optional 0x prefixes.
func (s *Share) UnmarshalJSON(data []byte) error {
	var raw shareJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	index, err := ParseScalar(raw.Index)
	if err != nil {
		return fmt.Errorf("invalid share index: %w", err)
	}
	value, err := ParseScalar(raw.Value)
	if err != nil {
		return fmt.Errorf("invalid share value: %w", err)
	}
	s.Index, s.Value = index, value
	return nil
}

// ParseShare decodes the JSON form of a share.
func ParseShare(data string) (Share, error) {
	var share Share
	if err := json.Unmarshal([]byte(data), &share); err != nil {
		return Share{}, fmt.Errorf("failed to parse share: %w", err)
	}
	return share, nil
}

// String returns the JSON form of the share.
func (s Share) String() string {
	data, err := s.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(data)
}

// ParseScalar decodes a hex scalar and reduces it modulo the curve order.
func ParseScalar(hexValue string) (*big.Int, error) {
	clean := strings.TrimPrefix(strings.TrimPrefix(hexValue, "0x"), "0X")
	if clean == "" {
		return nil, errors.New("empty hex value")
	}
	v, ok := new(big.Int).SetString(clean, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex value %q", hexValue)
	}
	return v.Mod(v, curveOrder), nil
}

// ScalarHex encodes a scalar as 64 hex characters.
func ScalarHex(v *big.Int) string {
	return fmt.Sprintf("%064x", v)
}

// RandomScalar returns a uniformly random non-zero scalar.
func RandomScalar() (*big.Int, error) {
	buf := make([]byte, 32)
	for {
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to read randomness: %w", err)
		}
		v := new(big.Int).SetBytes(buf)
		v.Mod(v, curveOrder)
		if v.Sign() != 0 {
			return v, nil
		}
	}
}

// RandomIndex returns a random non-zero 16-byte share index.
func RandomIndex() (*big.Int, error) {
	buf := make([]byte, 16)
	for {
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to read randomness: %w", err)
		}
		v := new(big.Int).SetBytes(buf)
		if v.Sign() != 0 {
			return v, nil
		}
	}
}

// Polynomial is a secret sharing polynomial over the secp256k1 scalar field.
// coefficients[0] is the secret; a polynomial of threshold t has degree t-1.
type Polynomial struct {
	coefficients []*big.Int
}

// NewPolynomial creates a random polynomial with the given secret and threshold.
func NewPolynomial(secret *big.Int, threshold int) (*Polynomial, error) {
	if threshold < 1 {
		return nil, errInvalidThreshold
	}
	if secret == nil {
		return nil, errors.New("secret is required")
	}

	coefficients := make([]*big.Int, threshold)
	coefficients[0] = new(big.Int).Mod(secret, curveOrder)
	for i := 1; i < threshold; i++ {
		c, err := RandomScalar()
		if err != nil {
			return nil, err
		}
		coefficients[i] = c
	}
	return &Polynomial{coefficients: coefficients}, nil
}

// PolynomialFromShares interpolates the polynomial passing through all shares.
// The threshold of the result equals the number of shares.
func PolynomialFromShares(shares []Share) (*Polynomial, error) {
	if len(shares) == 0 {
		return nil, errNoShares
	}
	if err := validateIndices(shares); err != nil {
		return nil, err
	}

	n := len(shares)
	result := make([]*big.Int, n)
	for i := range result {
		result[i] = new(big.Int)
	}

	for i, si := range shares {
		// basis = prod_{j != i} (x - x_j), denominator = prod_{j != i} (x_i - x_j)
		basis := []*big.Int{big.NewInt(1)}
		denominator := big.NewInt(1)
		for j, sj := range shares {
			if i == j {
				continue
			}
			basis = mulLinear(basis, sj.Index)
			diff := new(big.Int).Sub(si.Index, sj.Index)
			denominator.Mul(denominator, diff)
			denominator.Mod(denominator, curveOrder)
		}

		inv := new(big.Int).ModInverse(denominator, curveOrder)
		if inv == nil {
			return nil, errDuplicateIndex
		}
		scale := new(big.Int).Mul(si.Value, inv)
		scale.Mod(scale, curveOrder)

		for k, c := range basis {
			term := new(big.Int).Mul(c, scale)
			result[k].Add(result[k], term)
			result[k].Mod(result[k], curveOrder)
		}
	}

	return &Polynomial{coefficients: result}, nil
}

// mulLinear multiplies poly by (x - root).
func mulLinear(poly []*big.Int, root *big.Int) []*big.Int {
	out := make([]*big.Int, len(poly)+1)
	for i := range out {
		out[i] = new(big.Int)
	}
	negRoot := new(big.Int).Neg(root)
	for i, c := range poly {
		out[i+1].Add(out[i+1], c)
		t := new(big.Int).Mul(c, negRoot)
		out[i].Add(out[i], t)
	}
	for _, c := range out {
		c.Mod(c, curveOrder)
	}
	return out
}

func validateIndices(shares []Share) error {
	seen := make(map[string]struct{}, len(shares))
	for _, s := range shares {
		if s.Index == nil || s.Value == nil {
			return errors.New("incomplete share")
		}
		idx := new(big.Int).Mod(s.Index, curveOrder)
		if idx.Sign() == 0 {
			return errZeroIndex
		}
		key := idx.Text(16)
		if _, ok := seen[key]; ok {
			return errDuplicateIndex
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Threshold returns the number of shares needed to reconstruct the polynomial.
func (p *Polynomial) Threshold() int {
	return len(p.coefficients)
}

// Secret returns the constant term.
func (p *Polynomial) Secret() *big.Int {
	return new(big.Int).Set(p.coefficients[0])
}

// Evaluate computes p(x) using Horner's scheme.
func (p *Polynomial) Evaluate(x *big.Int) *big.Int {
	result := new(big.Int)
	for i := len(p.coefficients) - 1; i >= 0; i-- {
		result.Mul(result, x)
		result.Add(result, p.coefficients[i])
		result.Mod(result, curveOrder)
	}
	return result
}

// Share evaluates the polynomial at index.
func (p *Polynomial) Share(index *big.Int) Share {
	idx := new(big.Int).Set(index)
	return Share{Index: idx, Value: p.Evaluate(idx)}
}

// NewShare evaluates the polynomial at a fresh random index.
func (p *Polynomial) NewShare() (Share, error) {
	index, err := RandomIndex()
	if err != nil {
		return Share{}, err
	}
	return p.Share(index), nil
}

// LagrangeInterpolation returns f(0) for the polynomial through (indices[i], values[i]).
func LagrangeInterpolation(values, indices []*big.Int) (*big.Int, error) {
	if len(values) != len(indices) {
		return nil, errors.New("values and indices length mismatch")
	}
	if len(values) == 0 {
		return nil, errNoShares
	}

	shares := make([]Share, len(values))
	for i := range values {
		shares[i] = Share{Index: indices[i], Value: values[i]}
	}
	if err := validateIndices(shares); err != nil {
		return nil, err
	}

	secret := new(big.Int)
	for i := range indices {
		numerator := big.NewInt(1)
		denominator := big.NewInt(1)
		for j := range indices {
			if i == j {
				continue
			}
			// l_i(0) = prod x_j / (x_j - x_i)
			numerator.Mul(numerator, indices[j])
			numerator.Mod(numerator, curveOrder)
			diff := new(big.Int).Sub(indices[j], indices[i])
			denominator.Mul(denominator, diff)
			denominator.Mod(denominator, curveOrder)
		}
		inv := new(big.Int).ModInverse(denominator, curveOrder)
		if inv == nil {
			return nil, errDuplicateIndex
		}
		term := new(big.Int).Mul(values[i], numerator)
		term.Mul(term, inv)
		secret.Add(secret, term)
		secret.Mod(secret, curveOrder)
	}
	return secret, nil
}
