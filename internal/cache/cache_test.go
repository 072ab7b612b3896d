package cache

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMemoryCacheTTL(t *testing.T) {
	c, err := NewMemoryCache[string](10, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewMemoryCache: %v", err)
	}
	defer c.Close()

	c.Set("a", "1")
	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Fatalf("Get(a) = %q, %v, want 1, true", v, ok)
	}

	time.Sleep(40 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Error("Get(a) after ttl should miss")
	}
}

func TestMemoryCacheEvictsBySize(t *testing.T) {
	c, err := NewMemoryCache[int](2, 0)
	if err != nil {
		t.Fatalf("NewMemoryCache: %v", err)
	}
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry should be evicted")
	}
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Errorf("Get(c) = %d, %v, want 3, true", v, ok)
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}

	c.Remove("c")
	if _, ok := c.Get("c"); ok {
		t.Error("removed entry should miss")
	}
}

func TestNoopCache(t *testing.T) {
	var c Cache[[]byte] = NewNoopCache[[]byte]()
	c.Set("a", []byte("x"))
	if _, ok := c.Get("a"); ok {
		t.Error("noop cache should never hit")
	}
	c.Close()
}

func TestPolicyIsCacheable(t *testing.T) {
	p := NewPolicy([]string{"eth_getCode"})

	tests := []struct {
		method string
		params string
		want   bool
	}{
		{"eth_chainId", ``, true},
		{"eth_blockNumber", `[]`, false},
		{"eth_getBalance", `["0xabc","latest"]`, false},
		{"eth_getBalance", `["0xabc","0x10"]`, true},
		{"eth_call", `[{"to":"0x01"},"latest"]`, false},
		{"eth_call", `[{"to":"0x01"},"0x5"]`, true},
		{"eth_getCode", `["0xabc","0x10"]`, false},
		{"eth_getLogs", `[{"fromBlock":"0x1","toBlock":"0x2"}]`, true},
		{"eth_getLogs", `[{"fromBlock":"0x1"}]`, false},
		{"eth_getTransactionReceipt", `["0x01"]`, false},
	}

	for _, tt := range tests {
		if got := p.IsCacheable(tt.method, json.RawMessage(tt.params)); got != tt.want {
			t.Errorf("IsCacheable(%s, %s) = %v, want %v", tt.method, tt.params, got, tt.want)
		}
	}
}

func TestGenerateCacheKeyNormalizes(t *testing.T) {
	a := GenerateCacheKey("1", "eth_call", json.RawMessage(`[{"to":"0xABC","data":"0x01"},"0x10"]`))
	b := GenerateCacheKey("1", "eth_call", json.RawMessage(`[{"data":"0x01","to":"0xabc"},"0x10"]`))
	if a != b {
		t.Errorf("keys differ: %s vs %s", a, b)
	}

	c := GenerateCacheKey("10", "eth_call", json.RawMessage(`[{"to":"0xabc","data":"0x01"},"0x10"]`))
	if a == c {
		t.Error("keys of different scopes should differ")
	}
}
