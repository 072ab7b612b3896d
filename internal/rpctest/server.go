package rpctest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"

	"w3ext/internal/jsonrpc"
)

// Server is an HTTP JSON-RPC server backed by a Handler
type Server struct {
	*httptest.Server

	mu      sync.Mutex
	handler Handler
	status  int

	requests atomic.Int64
}

// NewServer starts a new Server; callers must Close it
func NewServer(h Handler) *Server {
	s := &Server{handler: h}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	return s
}

// SetHandler replaces the handler
func (s *Server) SetHandler(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// FailWith makes every request fail with the HTTP status; 0 restores normal operation
func (s *Server) FailWith(status int) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Requests returns the number of HTTP requests served
func (s *Server) Requests() int {
	return int(s.requests.Load())
}

// request is one call of an HTTP body
type request struct {
	Version string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type response struct {
	Version string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpc.Error  `json:"error,omitempty"`
}

func errorResponse(id json.RawMessage, err *jsonrpc.Error) response {
	if id == nil {
		id = json.RawMessage("null")
	}
	return response{Version: "2.0", ID: id, Error: err}
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)

	s.mu.Lock()
	handler, status := s.handler, s.status
	s.mu.Unlock()

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var requests []request
		if err := json.Unmarshal(body, &requests); err != nil || len(requests) == 0 {
			writeJSON(w, errorResponse(nil, jsonrpc.ErrParse))
			return
		}
		responses := make([]response, 0, len(requests))
		for _, req := range requests {
			responses = append(responses, serveOne(handler, req))
		}
		writeJSON(w, responses)
		return
	}

	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, errorResponse(nil, jsonrpc.ErrParse))
		return
	}
	writeJSON(w, serveOne(handler, req))
}

func serveOne(handler Handler, req request) response {
	if req.Version != "2.0" || req.Method == "" {
		return errorResponse(req.ID, jsonrpc.ErrInvalidRequest)
	}

	result, rpcErr := handler(req.Method, req.Params)
	if rpcErr != nil {
		return errorResponse(req.ID, rpcErr)
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return errorResponse(req.ID, jsonrpc.ErrInternal)
	}
	return response{Version: "2.0", ID: req.ID, Result: raw}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
