package rpctest

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"w3ext/internal/jsonrpc"
)

func post(t *testing.T, s *Server, body string) []byte {
	t.Helper()
	resp, err := http.Post(s.URL, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return raw
}

func TestServerBatch(t *testing.T) {
	var gotParams []json.RawMessage
	s := NewServer(Methods{
		"eth_chainId": Static("0x1"),
		"eth_getBalance": func(params []json.RawMessage) (interface{}, *jsonrpc.Error) {
			gotParams = params
			return "0x2", nil
		},
	}.Handle)
	defer s.Close()

	raw := post(t, s, ` [{"jsonrpc":"2.0","id":1,"method":"eth_chainId"},{"jsonrpc":"2.0","id":2,"method":"eth_getBalance","params":["0x01","latest"]}]`)

	var responses []response
	if err := json.Unmarshal(raw, &responses); err != nil {
		t.Fatalf("batch response: %v (%s)", err, raw)
	}
	if len(responses) != 2 {
		t.Fatalf("len = %d, want 2", len(responses))
	}
	if string(responses[0].Result) != `"0x1"` || string(responses[1].Result) != `"0x2"` {
		t.Errorf("results = %s, %s", responses[0].Result, responses[1].Result)
	}
	if string(responses[1].ID) != "2" {
		t.Errorf("id = %s, want 2", responses[1].ID)
	}
	if len(gotParams) != 2 || string(gotParams[1]) != `"latest"` {
		t.Errorf("params = %s, want [\"0x01\", \"latest\"]", gotParams)
	}
	if s.Requests() != 1 {
		t.Errorf("Requests = %d, want 1", s.Requests())
	}
}

func TestServerRejectsMalformed(t *testing.T) {
	s := NewServer(Methods{}.Handle)
	defer s.Close()

	tests := []struct {
		name string
		body string
		code int
	}{
		{"empty batch", "[]", jsonrpc.CodeParseError},
		{"bad json", "{", jsonrpc.CodeParseError},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"eth_chainId"}`, jsonrpc.CodeInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"eth_foo"}`, jsonrpc.CodeMethodNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp response
			if err := json.Unmarshal(post(t, s, tt.body), &resp); err != nil {
				t.Fatalf("response: %v", err)
			}
			if resp.Error == nil || resp.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %d", resp.Error, tt.code)
			}
		})
	}
}
