package abis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"w3ext/internal/cache"
)

// ErrNoABI is returned when a document holds no recognizable ABI
var ErrNoABI = errors.New("no abi found")

// Loader loads ABIs from file paths or http(s) URLs and keeps them by source
type Loader struct {
	http   *resty.Client
	cache  *cache.MemoryCache[abi.ABI]
	logger zerolog.Logger
}

// NewLoader creates a new Loader
func NewLoader(timeout time.Duration, logger zerolog.Logger) (*Loader, error) {
	c, err := cache.NewMemoryCache[abi.ABI](128, 0)
	if err != nil {
		return nil, err
	}
	return &Loader{
		http:   resty.New().SetTimeout(timeout),
		cache:  c,
		logger: logger.With().Str("component", "abis").Logger(),
	}, nil
}

// Load returns the ABI at source. Besides a bare ABI array it accepts
// a compiler artifact ({"abi": [...]}) and an explorer getabi answer
// ({"result": "<abi json>"}).
func (l *Loader) Load(ctx context.Context, source string) (abi.ABI, error) {
	if parsed, ok := l.cache.Get(source); ok {
		return parsed, nil
	}

	data, err := l.read(ctx, source)
	if err != nil {
		return abi.ABI{}, err
	}
	parsed, err := Parse(data)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("%s: %w", source, err)
	}

	l.logger.Debug().
		Str("source", source).
		Int("methods", len(parsed.Methods)).
		Int("events", len(parsed.Events)).
		Msg("abi loaded")
	l.cache.Set(source, parsed)
	return parsed, nil
}

func (l *Loader) read(ctx context.Context, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		resp, err := l.http.R().SetContext(ctx).Get(source)
		if err != nil {
			return nil, fmt.Errorf("fetch abi: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("fetch abi %s: unexpected status %d", source, resp.StatusCode())
		}
		return resp.Body(), nil
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("read abi: %w", err)
	}
	return data, nil
}

// Parse parses an ABI document in any of the shapes Load accepts
func Parse(data []byte) (abi.ABI, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return abi.ABI{}, ErrNoABI
	}
	if data[0] == '[' {
		return abi.JSON(bytes.NewReader(data))
	}

	var doc struct {
		ABI    json.RawMessage `json:"abi"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi document: %w", err)
	}

	switch {
	case len(doc.ABI) > 0:
		return Parse(unquote(doc.ABI))
	case len(doc.Result) > 0:
		return Parse(unquote(doc.Result))
	}
	return abi.ABI{}, ErrNoABI
}

// unquote unwraps an ABI embedded as a JSON string
func unquote(raw json.RawMessage) []byte {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []byte(s)
	}
	return raw
}

// Close stops the cache cleanup
func (l *Loader) Close() {
	l.cache.Close()
}
