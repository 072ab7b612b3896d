package nft

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"w3ext/internal/cache"
)

// DefaultIPFSGateway serves ipfs:// URIs
const DefaultIPFSGateway = "https://ipfs.io/ipfs/"

// Metadata is the JSON document an item's tokenURI points at, with
// attributes flattened by ParseAttributes
type Metadata map[string]interface{}

// Name returns the "name" field
func (m Metadata) Name() string {
	s, _ := m["name"].(string)
	return s
}

// Image returns the "image" field
func (m Metadata) Image() string {
	s, _ := m["image"].(string)
	return s
}

// Attributes returns the flattened attributes
func (m Metadata) Attributes() map[string]interface{} {
	attrs, _ := m["attributes"].(map[string]interface{})
	return attrs
}

// ParseAttributes turns a trait list into a map from trait_type to value.
// Items without trait_type become value: true.
func ParseAttributes(attrs []interface{}) map[string]interface{} {
	parsed := make(map[string]interface{}, len(attrs))
	for _, raw := range attrs {
		item, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		trait, ok := item["trait_type"]
		if !ok {
			parsed[fmt.Sprint(item["value"])] = true
			continue
		}
		parsed[fmt.Sprint(trait)] = item["value"]
	}
	return parsed
}

// MetadataFetcherConfig for creating a new MetadataFetcher
type MetadataFetcherConfig struct {
	IPFSGateway string
	Timeout     time.Duration
	CacheTTL    time.Duration
	CacheSize   int
	Logger      zerolog.Logger
}

// MetadataFetcher downloads item metadata from http(s), ipfs and data URIs
type MetadataFetcher struct {
	gateway string
	http    *resty.Client
	cache   *cache.MemoryCache[Metadata]
	logger  zerolog.Logger
}

// NewMetadataFetcher creates a new MetadataFetcher
func NewMetadataFetcher(cfg MetadataFetcherConfig) (*MetadataFetcher, error) {
	if cfg.IPFSGateway == "" {
		cfg.IPFSGateway = DefaultIPFSGateway
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}

	c, err := cache.NewMemoryCache[Metadata](cfg.CacheSize, cfg.CacheTTL)
	if err != nil {
		return nil, err
	}
	return &MetadataFetcher{
		gateway: strings.TrimSuffix(cfg.IPFSGateway, "/") + "/",
		http:    resty.New().SetTimeout(cfg.Timeout).SetHeader("Accept", "application/json"),
		cache:   c,
		logger:  cfg.Logger.With().Str("component", "nft-metadata").Logger(),
	}, nil
}

var defaultFetcher = sync.OnceValue(func() *MetadataFetcher {
	f, err := NewMetadataFetcher(MetadataFetcherConfig{})
	if err != nil {
		panic(err)
	}
	return f
})

// Fetch downloads and decodes the metadata at uri
func (f *MetadataFetcher) Fetch(ctx context.Context, uri string) (Metadata, error) {
	if meta, ok := f.cache.Get(uri); ok {
		return meta, nil
	}

	data, err := f.read(ctx, uri)
	if err != nil {
		return nil, err
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if meta == nil {
		return nil, errors.New("decode metadata: document is not an object")
	}
	attrs, _ := meta["attributes"].([]interface{})
	meta["attributes"] = ParseAttributes(attrs)

	f.cache.Set(uri, meta)
	return meta, nil
}

func (f *MetadataFetcher) read(ctx context.Context, uri string) ([]byte, error) {
	if strings.HasPrefix(uri, "data:") {
		return decodeDataURI(uri)
	}

	target := f.Resolve(uri)
	resp, err := f.http.R().SetContext(ctx).Get(target)
	if err != nil {
		return nil, fmt.Errorf("fetch metadata: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch metadata %s: unexpected status %d", target, resp.StatusCode())
	}
	f.logger.Debug().Str("uri", target).Dur("took", resp.Time()).Msg("metadata fetched")
	return resp.Body(), nil
}

// Resolve rewrites ipfs:// URIs to the gateway
func (f *MetadataFetcher) Resolve(uri string) string {
	if rest, ok := strings.CutPrefix(uri, "ipfs://"); ok {
		rest = strings.TrimPrefix(rest, "ipfs/")
		return f.gateway + rest
	}
	return uri
}

// Close drops cached metadata
func (f *MetadataFetcher) Close() {
	f.cache.Close()
}

// decodeDataURI decodes data:[<mediatype>][;base64],<data>
func decodeDataURI(uri string) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("malformed data uri")
	}
	if strings.HasSuffix(header, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("decode data uri: %w", err)
		}
		return data, nil
	}
	data, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("decode data uri: %w", err)
	}
	return []byte(data), nil
}
