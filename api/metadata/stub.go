package metadata

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

const maxBodySize = 1024 * 1024

// StubServer is an in-memory metadata server verifying request signatures.
// Values are scoped by the signer's public key, the namespace and the field.
type StubServer struct {
	mu     sync.RWMutex
	values map[string]json.RawMessage
	now    func() time.Time
	log    *slog.Logger
}

// NewStubServer creates an empty stub server.
func NewStubServer(log *slog.Logger) *StubServer {
	return &StubServer{
		values: make(map[string]json.RawMessage),
		now:    time.Now,
		log:    log,
	}
}

// RegisterRoutes mounts /get and /set on r.
func (s *StubServer) RegisterRoutes(r chi.Router) {
	r.Post("/get", s.handleGet)
	r.Post("/set", s.handleSet)
}

// Handler returns a standalone router serving the stub.
func (s *StubServer) Handler() http.Handler {
	r := chi.NewRouter()
	s.RegisterRoutes(r)
	return r
}

// Len returns the number of stored values.
func (s *StubServer) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

func valueKey(req *SignedRequest) string {
	return strings.ToLower(strings.TrimPrefix(req.PubKey, "0x")) + "/" + req.Namespace + "/" + req.Field
}

func (s *StubServer) readRequest(w http.ResponseWriter, r *http.Request) (*SignedRequest, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, false
	}

	var req SignedRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	if req.Field == "" {
		writeError(w, http.StatusBadRequest, errors.New("field is required"))
		return nil, false
	}
	if err := req.Verify(s.now()); err != nil {
		s.log.Debug("Rejected metadata request", "err", err)
		writeError(w, http.StatusUnauthorized, err)
		return nil, false
	}
	return &req, true
}

func (s *StubServer) handleGet(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readRequest(w, r)
	if !ok {
		return
	}

	s.mu.RLock()
	value, found := s.values[valueKey(req)]
	s.mu.RUnlock()

	if !found {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(GetResponse{Value: value})
}

func (s *StubServer) handleSet(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	if len(req.Value) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("value is required"))
		return
	}

	s.mu.Lock()
	s.values[valueKey(req)] = append(json.RawMessage(nil), req.Value...)
	s.mu.Unlock()

	s.log.Debug("Stored metadata value", slog.String("field", req.Field))
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: err.Error()})
}
