package signer

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedNonce struct {
	nonce uint64
	err   error
}

func (f fixedNonce) NonceAt(context.Context, common.Address, *big.Int) (uint64, error) {
	return f.nonce, f.err
}

var testAccount = common.HexToAddress("0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf")

func TestEthSign_PersonalSign(t *testing.T) {
	queue, navigator := newTestQueue(t, 0, 0)
	eth := NewEthSign(queue, 11235, nil)

	done := make(chan signResult, 1)
	go func() {
		sig, err := eth.PersonalSign(context.Background(), testAccount, "hello")
		done <- signResult{address: sig, err: err}
	}()

	params := navigator.next(t)
	assert.Equal(t, MethodPersonalSign, params.Request.Method)
	assert.Equal(t, testAccount.Hex(), params.SelectedAccount)
	assert.Equal(t, uint64(11235), params.ChainID)
	assert.Equal(t, WalletMetadata, params.Metadata)
	require.Len(t, params.Request.Params, 2)
	assert.JSONEq(t, `"`+testAccount.Hex()+`"`, string(params.Request.Params[0]))
	assert.JSONEq(t, `"0x68656c6c6f"`, string(params.Request.Params[1]))

	require.True(t, queue.Resolve(params.RequestID, "0xsig"))
	r := wait(t, done)
	require.NoError(t, r.err)
	assert.Equal(t, "0xsig", r.address)
}

func TestEthSign_SignTransaction(t *testing.T) {
	queue, navigator := newTestQueue(t, 0, 0)
	eth := NewEthSign(queue, 11235, fixedNonce{nonce: 7})

	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	done := make(chan signResult, 1)
	go func() {
		raw, err := eth.SignTransaction(context.Background(), testAccount, TransactionRequest{To: &to}, true)
		done <- signResult{address: raw, err: err}
	}()

	params := navigator.next(t)
	assert.Equal(t, MethodSignTransaction, params.Request.Method)
	assert.True(t, params.HideContractAttention)
	require.Len(t, params.Request.Params, 1)

	var tx TransactionRequest
	require.NoError(t, json.Unmarshal(params.Request.Params[0], &tx))
	assert.Equal(t, testAccount, tx.From)
	require.NotNil(t, tx.Nonce)
	assert.Equal(t, hexutil.Uint64(7), *tx.Nonce)
	require.NotNil(t, tx.Value)
	assert.Equal(t, 0, tx.Value.ToInt().Sign(), "Missing value should default to zero")
	require.NotNil(t, tx.ChainID)
	assert.Equal(t, int64(11235), tx.ChainID.ToInt().Int64())

	require.True(t, queue.Reject(params.RequestID, "user declined"))
	r := wait(t, done)

	var signErr *EthSignError
	require.ErrorAs(t, r.err, &signErr)
	assert.Equal(t, MethodSignTransaction, signErr.Method)
	var cancelled *SignCancelledError
	assert.ErrorAs(t, r.err, &cancelled)
}

func TestEthSign_InvalidInput(t *testing.T) {
	queue, navigator := newTestQueue(t, 0, 0)

	eth := NewEthSign(queue, 1, nil)
	_, err := eth.PersonalSign(context.Background(), common.Address{}, "hello")
	var signErr *EthSignError
	require.ErrorAs(t, err, &signErr)
	assert.ErrorIs(t, err, errInvalidParams)

	_, err = eth.SendTransaction(context.Background(), testAccount, TransactionRequest{}, false)
	assert.Error(t, err, "Nonce is required without a nonce source")

	failing := NewEthSign(queue, 1, fixedNonce{err: errors.New("rpc down")})
	_, err = failing.SendTransaction(context.Background(), testAccount, TransactionRequest{}, false)
	require.ErrorAs(t, err, &signErr)
	assert.Equal(t, MethodSendTransaction, signErr.Method)

	assert.Equal(t, 0, navigator.Calls(), "Invalid requests must not reach the user")
	assert.Equal(t, 0, queue.Len())
}
