package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"w3ext/internal/abis"
	"w3ext/internal/config"
	"w3ext/internal/jsonrpc"
	"w3ext/internal/nft"
	"w3ext/internal/plugin"
	"w3ext/internal/rpctest"
	"w3ext/internal/token"
)

const (
	usdcAddress  = "0xA0b86991c6218b36c1d19d4A2e9Eb0cE3606eB48"
	punksAddress = "0xb47e3cd837dDF8e4c57F05d70Ab865de6e193BBB"
)

func nodeServer(chainID uint64) *rpctest.Server {
	erc721 := abis.ERC721()
	name, _ := erc721.Methods["name"].Outputs.Pack("Punks")
	return rpctest.NewServer(rpctest.Methods{
		"eth_chainId":     rpctest.Static(hexutil.Uint64(chainID)),
		"eth_blockNumber": rpctest.Static(hexutil.Uint64(100)),
		"eth_call": func([]json.RawMessage) (interface{}, *jsonrpc.Error) {
			return hexutil.Bytes(name), nil
		},
	}.Handle)
}

func registryServer(rpcURL string) *httptest.Server {
	registry := fmt.Sprintf(`[
		{"name": "Ethereum", "chainId": 1, "rpc": [], "explorers": [{"name": "etherscan", "url": "https://etherscan.io/", "standard": "EIP3091"}]},
		{"name": "Base", "chainId": 8453, "rpc": [%q]}
	]`, rpcURL)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(registry))
	}))
}

func newTestApp(t *testing.T) (*App, *rpctest.Server) {
	t.Helper()
	eth := nodeServer(1)
	t.Cleanup(eth.Close)
	base := nodeServer(8453)
	t.Cleanup(base.Close)
	registry := registryServer(base.URL)
	t.Cleanup(registry.Close)

	data := fmt.Sprintf(`{
		"chainlist": {"url": %q},
		"chains": [
			{
				"name": "ethereum",
				"chainId": 1,
				"rpc": [%q],
				"tokens": [{"alias": "usdc", "address": %q, "name": "USD Coin", "symbol": "USDC", "decimals": 6}],
				"nfts": [{"alias": "punks", "address": %q}]
			},
			{"name": "base", "chainId": 8453}
		]
	}`, registry.URL, eth.URL, usdcAddress, punksAddress)

	cfg, err := config.Parse([]byte(data), ".json")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	a, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Close)
	return a, eth
}

func TestChainLoadsConfiguredAssets(t *testing.T) {
	a, eth := newTestApp(t)
	ctx := context.Background()

	c, err := a.Chain(ctx, "ethereum")
	if err != nil {
		t.Fatalf("Chain: %v", err)
	}
	if c.ID() != 1 || c.Name() != "ethereum" {
		t.Errorf("chain = %d %s, want 1 ethereum", c.ID(), c.Name())
	}
	if !strings.HasPrefix(c.TxScanURL(common.Hash{}), "https://etherscan.io/tx/") {
		t.Errorf("TxScanURL = %s, want the chainlist explorer", c.TxScanURL(common.Hash{}))
	}

	usdc, ok := token.FromChain(c, "usdc")
	if !ok {
		t.Fatal("usdc not registered")
	}
	if usdc.Symbol != "USDC" || usdc.Decimals != 6 {
		t.Errorf("usdc = %s %d, want USDC 6", usdc.Symbol, usdc.Decimals)
	}

	punks, err := a.Collection(ctx, "1", "punks")
	if err != nil {
		t.Fatalf("Collection: %v", err)
	}
	if punks.Name != "Punks" {
		t.Errorf("collection name = %s, want Punks", punks.Name)
	}

	again, err := a.Chain(ctx, "1")
	if err != nil {
		t.Fatalf("Chain: %v", err)
	}
	if again != c {
		t.Error("second lookup connected the chain again")
	}
	if eth.Requests() == 0 {
		t.Error("static rpc was not used")
	}
}

func TestChainResolvesRPCFromChainlist(t *testing.T) {
	a, _ := newTestApp(t)

	c, err := a.Chain(context.Background(), "base")
	if err != nil {
		t.Fatalf("Chain: %v", err)
	}
	if err := c.VerifyChainID(context.Background()); err != nil {
		t.Errorf("VerifyChainID: %v", err)
	}
}

func TestUnknownChainAndProvider(t *testing.T) {
	a, _ := newTestApp(t)

	if _, err := a.Chain(context.Background(), "solana"); !errors.Is(err, ErrUnknownChain) {
		t.Errorf("Chain error = %v, want ErrUnknownChain", err)
	}
	if _, err := a.Provider("alchemy"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("Provider error = %v, want ErrUnknownProvider", err)
	}
	if p, err := a.Provider(""); p != nil || err != nil {
		t.Errorf("Provider(\"\") = %v, %v, want nil, nil", p, err)
	}
}

func TestProviderFromConfig(t *testing.T) {
	a, _ := newTestApp(t)
	a.cfg.NFT.OpenseaKey = "key"

	p, err := a.Provider("opensea")
	if err != nil {
		t.Fatalf("Provider: %v", err)
	}
	if _, ok := p.(*nft.OpenSea); !ok {
		t.Errorf("Provider = %T, want *nft.OpenSea", p)
	}
}

func TestProbe(t *testing.T) {
	a, _ := newTestApp(t)

	results, err := a.Probe(context.Background(), "ethereum")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if len(results) != 1 || !results[0].Healthy() {
		t.Errorf("results = %+v, want one healthy endpoint", results)
	}
}

func TestCallServesPluginMethods(t *testing.T) {
	a, _ := newTestApp(t)
	a.plugins = plugin.NewManager(0, zerolog.Nop())
	script := "// @method custom_head\nfunction execute(params, upstream) { return upstream.call('eth_blockNumber', []); }"
	if err := a.plugins.Load("head", script); err != nil {
		t.Fatalf("Load: %v", err)
	}

	raw, err := a.Call(context.Background(), "ethereum", "custom_head")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(raw) != `"0x64"` {
		t.Errorf("custom_head = %s, want \"0x64\"", raw)
	}

	raw, err = a.Call(context.Background(), "ethereum", "eth_chainId")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(raw) != `"0x1"` {
		t.Errorf("eth_chainId = %s, want \"0x1\"", raw)
	}
}
