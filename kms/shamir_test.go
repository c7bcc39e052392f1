package kms

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolynomial_Reconstruct(t *testing.T) {
	for _, threshold := range []int{2, 3} {
		secret, err := RandomScalar()
		require.NoError(t, err, "Failed to generate secret")

		poly, err := NewPolynomial(secret, threshold)
		require.NoError(t, err, "NewPolynomial should succeed")
		assert.Equal(t, threshold, poly.Threshold())
		assert.Equal(t, 0, secret.Cmp(poly.Secret()), "Constant term should be the secret")

		shares := make([]Share, threshold+2)
		for i := range shares {
			shares[i], err = poly.NewShare()
			require.NoError(t, err, "Failed to create share")
		}

		// Every window of threshold shares reconstructs the same secret
		for start := 0; start+threshold <= len(shares); start++ {
			subset := shares[start : start+threshold]
			restored, err := PolynomialFromShares(subset)
			require.NoError(t, err, "Interpolation should succeed")
			assert.Equal(t, 0, secret.Cmp(restored.Secret()), "Restored secret should match for threshold %d", threshold)

			values := make([]*big.Int, threshold)
			indices := make([]*big.Int, threshold)
			for i, s := range subset {
				values[i], indices[i] = s.Value, s.Index
			}
			atZero, err := LagrangeInterpolation(values, indices)
			require.NoError(t, err)
			assert.Equal(t, 0, secret.Cmp(atZero), "f(0) should match for threshold %d", threshold)
		}
	}
}

func TestPolynomial_RestoredPolynomialEvaluatesSamePoints(t *testing.T) {
	secret, err := RandomScalar()
	require.NoError(t, err)
	poly, err := NewPolynomial(secret, 2)
	require.NoError(t, err)

	a, err := poly.NewShare()
	require.NoError(t, err)
	b, err := poly.NewShare()
	require.NoError(t, err)

	restored, err := PolynomialFromShares([]Share{a, b})
	require.NoError(t, err)

	index, err := RandomIndex()
	require.NoError(t, err)
	assert.Equal(t, 0, poly.Share(index).Value.Cmp(restored.Share(index).Value),
		"New shares of the restored polynomial should lie on the original polynomial")
}

func TestPolynomial_BelowThreshold(t *testing.T) {
	secret, err := RandomScalar()
	require.NoError(t, err)
	poly, err := NewPolynomial(secret, 3)
	require.NoError(t, err)

	a, err := poly.NewShare()
	require.NoError(t, err)
	b, err := poly.NewShare()
	require.NoError(t, err)

	atZero, err := LagrangeInterpolation([]*big.Int{a.Value, b.Value}, []*big.Int{a.Index, b.Index})
	require.NoError(t, err, "Interpolation itself should not fail")
	assert.NotEqual(t, 0, secret.Cmp(atZero), "Two shares of a threshold 3 polynomial should not reveal the secret")
}

func TestPolynomial_InvalidInput(t *testing.T) {
	_, err := NewPolynomial(big.NewInt(1), 0)
	assert.Error(t, err, "Should fail with zero threshold")

	_, err = PolynomialFromShares(nil)
	assert.Error(t, err, "Should fail without shares")

	share := Share{Index: big.NewInt(5), Value: big.NewInt(7)}
	_, err = PolynomialFromShares([]Share{share, share})
	assert.ErrorIs(t, err, errDuplicateIndex)

	_, err = PolynomialFromShares([]Share{{Index: big.NewInt(0), Value: big.NewInt(7)}})
	assert.ErrorIs(t, err, errZeroIndex)

	_, err = LagrangeInterpolation([]*big.Int{big.NewInt(1)}, nil)
	assert.Error(t, err, "Should fail with mismatched lengths")
}

func TestShare_JSON(t *testing.T) {
	share, err := ParseShare(`{"index":"a1","value":"0x1f"}`)
	require.NoError(t, err)
	assert.Equal(t, int64(0xa1), share.Index.Int64())
	assert.Equal(t, int64(0x1f), share.Value.Int64())

	data, err := json.Marshal(share)
	require.NoError(t, err)
	assert.JSONEq(t, `{"index":"a1","value":"1f"}`, string(data))

	_, err = ParseShare(`{"index":"","value":"1f"}`)
	assert.Error(t, err, "Should fail with empty index")

	_, err = ParseShare(`{"index":"zz","value":"1f"}`)
	assert.Error(t, err, "Should fail with invalid hex")
}

func TestRandomScalar_InRange(t *testing.T) {
	for i := 0; i < 32; i++ {
		v, err := RandomScalar()
		require.NoError(t, err)
		assert.Equal(t, 1, v.Sign())
		assert.Equal(t, -1, v.Cmp(curveOrder))
	}
}
