package signhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/ruteri/wallet-custody-backend/interfaces"
	"github.com/ruteri/wallet-custody-backend/registry"
	"github.com/ruteri/wallet-custody-backend/signer"
	"github.com/ruteri/wallet-custody-backend/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingLister struct{}

func (failingLister) Accounts(context.Context) ([]string, error) {
	return nil, errors.New("store unavailable")
}

type testServer struct {
	server    *httptest.Server
	queue     *signer.Queue
	navigator *UINavigator
	accounts  *registry.AccountRegistry
}

func newTestServer(t *testing.T) *testServer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	navigator := NewUINavigator()
	cfg := signer.DefaultQueueConfig(navigator, logger)
	cfg.SettleDelay = 0
	cfg.SignTimeout = 0
	queue, err := signer.NewQueue(cfg)
	require.NoError(t, err)
	t.Cleanup(queue.Close)

	accounts := registry.NewAccountRegistry(storage.NewMemoryStore("local"), interfaces.WalletTypeSSS, logger)
	handler := NewHandler(queue, navigator, map[interfaces.WalletType]AccountLister{
		interfaces.WalletTypeSSS: accounts,
		interfaces.WalletTypeMPC: failingLister{},
	}, logger)

	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{server: server, queue: queue, navigator: navigator, accounts: accounts}
}

func (s *testServer) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(s.server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testServer) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(s.server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// sign submits a dApp request in the background.
func (s *testServer) sign(t *testing.T, body string) <-chan *http.Response {
	out := make(chan *http.Response, 1)
	go func() {
		resp, err := http.Post(s.server.URL+"/api/sign/request", "application/json", strings.NewReader(body))
		if err != nil {
			close(out)
			return
		}
		out <- resp
	}()
	return out
}

func (s *testServer) waitPending(t *testing.T) PendingResponse {
	t.Helper()
	resp := s.get(t, "/api/sign/pending?wait=2s")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pending PendingResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pending))
	return pending
}

func receive(t *testing.T, ch <-chan *http.Response) *http.Response {
	t.Helper()
	select {
	case resp, ok := <-ch:
		require.True(t, ok, "Sign request failed")
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for sign response")
		return nil
	}
}

const personalSign = `{"selectedAccount":"0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf","chainId":11235,
	"request":{"method":"personal_sign","params":["0x68656c6c6f","0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"]},
	"metadata":{"name":"dapp","url":"https://dapp.example"}}`

func TestHandleSignRequest_Approve(t *testing.T) {
	s := newTestServer(t)

	result := s.sign(t, personalSign)
	pending := s.waitPending(t)
	assert.Equal(t, "personal_sign", pending.Request.Request.Method)
	assert.Equal(t, uint64(11235), pending.Request.ChainID)
	assert.Equal(t, "dapp", pending.Request.Metadata["name"])
	assert.Equal(t, 1, pending.Queued)
	require.NotEmpty(t, pending.Request.RequestID)

	resp := s.post(t, "/api/sign/"+pending.Request.RequestID+"/approve", `{"address":"0xabc"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	signResp := receive(t, result)
	require.Equal(t, http.StatusOK, signResp.StatusCode)
	var body SignResponse
	require.NoError(t, json.NewDecoder(signResp.Body).Decode(&body))
	assert.Equal(t, "0xabc", body.Address)

	resp = s.post(t, "/api/sign/"+pending.Request.RequestID+"/approve", `{"address":"0xabc"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "Settled request cannot be approved again")
}

func TestHandleSignRequest_Reject(t *testing.T) {
	s := newTestServer(t)

	result := s.sign(t, personalSign)
	pending := s.waitPending(t)

	resp := s.post(t, "/api/sign/"+pending.Request.RequestID+"/reject", `{"reason":"not now"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	signResp := receive(t, result)
	require.Equal(t, http.StatusConflict, signResp.StatusCode)
	var body SignResponse
	require.NoError(t, json.NewDecoder(signResp.Body).Decode(&body))
	assert.Contains(t, body.Error, "not now")
}

func TestHandleSignRequest_RejectWithoutBody(t *testing.T) {
	s := newTestServer(t)

	result := s.sign(t, personalSign)
	pending := s.waitPending(t)

	req, err := http.NewRequest(http.MethodPost, s.server.URL+"/api/sign/"+pending.Request.RequestID+"/reject", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	signResp := receive(t, result)
	var body SignResponse
	require.NoError(t, json.NewDecoder(signResp.Body).Decode(&body))
	assert.Contains(t, body.Error, "rejected by user")
}

func TestHandleSignRequest_SequentialSessions(t *testing.T) {
	s := newTestServer(t)

	first := s.sign(t, personalSign)
	pendingFirst := s.waitPending(t)
	require.Eventually(t, func() bool { return s.queue.Len() == 1 }, time.Second, time.Millisecond)

	second := s.sign(t, strings.Replace(personalSign, `"chainId":11235`, `"chainId":54211`, 1))
	require.Eventually(t, func() bool { return s.queue.Len() == 2 }, time.Second, time.Millisecond)

	pending := s.waitPending(t)
	assert.Equal(t, pendingFirst.Request.RequestID, pending.Request.RequestID, "Second session must wait for the first")
	assert.Equal(t, 2, pending.Queued)

	resp := s.post(t, "/api/sign/"+pendingFirst.Request.RequestID+"/approve", `{"address":"0xAAA"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, http.StatusOK, receive(t, first).StatusCode)

	require.Eventually(t, func() bool {
		params, ok := s.queue.Pending()
		return ok && params.RequestID != pendingFirst.Request.RequestID
	}, 2*time.Second, time.Millisecond)

	pendingSecond := s.waitPending(t)
	assert.Equal(t, uint64(54211), pendingSecond.Request.ChainID)
	resp = s.post(t, "/api/sign/"+pendingSecond.Request.RequestID+"/approve", `{"address":"0xBBB"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, http.StatusOK, receive(t, second).StatusCode)
	assert.Equal(t, 2, s.navigator.Presented())
}

func TestHandlePending_Idle(t *testing.T) {
	s := newTestServer(t)

	resp := s.get(t, "/api/sign/pending")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	start := time.Now()
	resp = s.get(t, "/api/sign/pending?wait=50ms")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	resp = s.get(t, "/api/sign/pending?wait=soon")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleSignRequest_InvalidBody(t *testing.T) {
	s := newTestServer(t)

	resp := s.post(t, "/api/sign/request", `{`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.post(t, "/api/sign/request", `{"request":{}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.post(t, "/api/sign/unknown/approve", `{"address":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.post(t, "/api/sign/unknown/approve", `{"address":"0xabc"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleAccounts(t *testing.T) {
	s := newTestServer(t)

	resp := s.get(t, "/api/accounts/sss")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(bytes.TrimSpace(body)))

	address := common.HexToAddress("0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf")
	_, err = s.accounts.Append(context.Background(), address)
	require.NoError(t, err)

	resp = s.get(t, "/api/accounts/SSS")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var accounts []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accounts))
	assert.Equal(t, []string{interfaces.AddressKey(address)}, accounts)

	resp = s.get(t, "/api/accounts/mpc")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp = s.get(t, "/api/accounts/ledger")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSignError(t *testing.T) {
	assert.Equal(t, http.StatusConflict, signError(&signer.SignCancelledError{Message: "no"}).StatusCode)
	assert.Equal(t, http.StatusGatewayTimeout, signError(interfaces.ErrSignTimeout).StatusCode)
	assert.Equal(t, http.StatusServiceUnavailable, signError(interfaces.ErrQueueClosed).StatusCode)
	assert.Equal(t, http.StatusBadGateway, signError(errors.New("navigation failed")).StatusCode)
}

// brokenWriter fails every body write.
type brokenWriter struct {
	*httptest.ResponseRecorder
}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestWriteJSON_LogsEncodeFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	w := brokenWriter{httptest.NewRecorder()}
	writeJSON(w, logger, http.StatusOK, SignResponse{Address: "0xsigned"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, buf.String(), "Failed to write response")
	assert.Contains(t, buf.String(), "connection reset")
}
