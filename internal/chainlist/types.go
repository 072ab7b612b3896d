package chainlist

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Chain is one entry of the chainlist registry
type Chain struct {
	ChainID   chainID     `json:"chainId"`
	Name      string      `json:"name"`
	RPC       []RPC       `json:"rpc"`
	Explorers []Explorer  `json:"explorers"`
}

// ID returns the chain id, false when the entry carries a malformed one
func (c *Chain) ID() (uint64, bool) {
	return uint64(c.ChainID), c.ChainID != 0
}

// chainID accepts numbers and numeric strings; anything else decodes to 0
type chainID uint64

// UnmarshalJSON implements json.Unmarshaler
func (id *chainID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		*id = 0
		return nil
	}
	*id = chainID(n)
	return nil
}

// HTTPRPCs returns the http(s) RPC URLs in registry order
func (c *Chain) HTTPRPCs() []string {
	urls := make([]string, 0, len(c.RPC))
	for _, r := range c.RPC {
		if isHTTP(r.URL) {
			urls = append(urls, r.URL)
		}
	}
	return urls
}

// ExplorerURL returns the base URL of the first EIP-3091 explorer
func (c *Chain) ExplorerURL() (string, bool) {
	for _, e := range c.Explorers {
		if strings.EqualFold(e.Standard, "EIP3091") && e.URL != "" {
			return strings.TrimRight(e.URL, "/"), true
		}
	}
	return "", false
}

// RPC is an RPC entry; the registry lists either a bare URL or an object
type RPC struct {
	URL      string `json:"url"`
	Tracking string `json:"tracking,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler
func (r *RPC) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &r.URL)
	}
	type plain RPC
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		// entries of unknown shape are ignored
		*r = RPC{}
		return nil
	}
	*r = RPC(p)
	return nil
}

// Explorer is a block explorer entry
type Explorer struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Standard string `json:"standard"`
}

func isHTTP(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}
