package abis

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestEmbeddedABIs(t *testing.T) {
	erc20 := ERC20()
	for _, m := range []string{"name", "symbol", "decimals", "balanceOf", "allowance", "approve", "transfer"} {
		if _, ok := erc20.Methods[m]; !ok {
			t.Errorf("ERC20 is missing %s", m)
		}
	}

	erc721 := ERC721()
	transfer, ok := erc721.Methods["safeTransferFrom"]
	if !ok {
		t.Fatal("ERC721 is missing safeTransferFrom")
	}
	if len(transfer.Inputs) != 3 {
		t.Errorf("safeTransferFrom has %d inputs, want 3", len(transfer.Inputs))
	}
	if _, ok := erc721.Methods["tokenOfOwnerByIndex"]; !ok {
		t.Error("ERC721 is missing tokenOfOwnerByIndex")
	}
}

func TestParseShapes(t *testing.T) {
	bare := `[{"type":"function","name":"ping","inputs":[],"outputs":[],"stateMutability":"view"}]`
	tests := []struct {
		name string
		doc  string
	}{
		{"bare", bare},
		{"artifact", `{"contractName":"Ping","abi":` + bare + `}`},
		{"explorer", `{"status":"1","result":` + strconv.Quote(bare) + `}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := Parse([]byte(tt.doc))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if _, ok := parsed.Methods["ping"]; !ok {
				t.Error("method ping not found")
			}
		})
	}

	if _, err := Parse([]byte(`{"status":"0"}`)); !errors.Is(err, ErrNoABI) {
		t.Errorf("error = %v, want ErrNoABI", err)
	}
}

func TestLoaderFileAndURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "erc20.json")
	if err := os.WriteFile(path, []byte(erc20JSON), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"abi":` + erc721JSON + `}`))
	}))
	defer srv.Close()

	l, err := NewLoader(5*time.Second, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	defer l.Close()

	fromFile, err := l.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load file: %v", err)
	}
	if _, ok := fromFile.Methods["decimals"]; !ok {
		t.Error("file abi is missing decimals")
	}

	for i := 0; i < 2; i++ {
		fromURL, err := l.Load(context.Background(), srv.URL+"/abi")
		if err != nil {
			t.Fatalf("Load url: %v", err)
		}
		if _, ok := fromURL.Methods["ownerOf"]; !ok {
			t.Error("url abi is missing ownerOf")
		}
	}
	if hits.Load() != 1 {
		t.Errorf("abi fetched %d times, want 1", hits.Load())
	}

	if _, err := l.Load(context.Background(), filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
