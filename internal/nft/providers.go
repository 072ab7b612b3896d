package nft

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"w3ext/internal/currency"
)

// ErrUnsupportedChain is returned by providers for chains they do not index
var ErrUnsupportedChain = errors.New("chain is not supported by the provider")

// DataProvider lists the items an address holds using an off-chain indexer
type DataProvider interface {
	OwnedBy(ctx context.Context, col *Collection, owner common.Address) ([]*Nft721, error)
}

// ProviderConfig for creating a provider
type ProviderConfig struct {
	APIKey string
	// BaseURL overrides the API location; for Alchemy "{network}" is replaced
	// by the network of the chain
	BaseURL string
	Timeout time.Duration
	Logger  zerolog.Logger
}

func newHTTP(cfg ProviderConfig) *resty.Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return resty.New().SetTimeout(cfg.Timeout).SetHeader("Accept", "application/json")
}

// Alchemy uses the Alchemy NFT API v2
type Alchemy struct {
	apiKey  string
	baseURL string
	http    *resty.Client
	logger  zerolog.Logger
}

var alchemyNetworks = map[uint64]string{
	1:     "eth-mainnet",
	10:    "opt-mainnet",
	137:   "polygon-mainnet",
	8453:  "base-mainnet",
	42161: "arb-mainnet",
}

// NewAlchemy creates a new Alchemy provider
func NewAlchemy(cfg ProviderConfig) *Alchemy {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://{network}.g.alchemy.com"
	}
	return &Alchemy{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    newHTTP(cfg),
		logger:  cfg.Logger.With().Str("component", "alchemy").Logger(),
	}
}

type alchemyPage struct {
	OwnedNfts []struct {
		ID struct {
			TokenID string `json:"tokenId"`
		} `json:"id"`
		TokenID string `json:"tokenId"`
	} `json:"ownedNfts"`
	PageKey string `json:"pageKey"`
}

// OwnedBy implements DataProvider
func (a *Alchemy) OwnedBy(ctx context.Context, col *Collection, owner common.Address) ([]*Nft721, error) {
	network, ok := alchemyNetworks[col.Chain().ID()]
	if !ok {
		return nil, fmt.Errorf("alchemy: %w: %d", ErrUnsupportedChain, col.Chain().ID())
	}
	endpoint := strings.ReplaceAll(a.baseURL, "{network}", network) + "/nft/v2/" + a.apiKey + "/getNFTs/"

	var items []*Nft721
	pageKey := ""
	for {
		var page alchemyPage
		req := a.http.R().
			SetContext(ctx).
			SetQueryParam("owner", owner.Hex()).
			SetQueryParam("contractAddresses[]", col.Address().Hex()).
			SetQueryParam("withMetadata", "false").
			SetResult(&page)
		if pageKey != "" {
			req.SetQueryParam("pageKey", pageKey)
		}
		resp, err := req.Get(endpoint)
		if err != nil {
			return nil, fmt.Errorf("alchemy: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("alchemy: unexpected status %d", resp.StatusCode())
		}

		for _, nft := range page.OwnedNfts {
			raw := nft.ID.TokenID
			if raw == "" {
				raw = nft.TokenID
			}
			id, ok := currency.ParseInt(raw)
			if !ok {
				return nil, fmt.Errorf("alchemy: invalid token id %q", raw)
			}
			items = append(items, ownedItem(col, id, owner))
		}

		if page.PageKey == "" {
			break
		}
		pageKey = page.PageKey
	}

	a.logger.Debug().Str("collection", col.Name).Int("items", len(items)).Msg("owned items fetched")
	return items, nil
}

// OpenSea uses the OpenSea API v2
type OpenSea struct {
	apiKey  string
	baseURL string
	http    *resty.Client
	logger  zerolog.Logger
}

var openSeaNetworks = map[uint64]string{
	1:     "ethereum",
	10:    "optimism",
	56:    "bsc",
	137:   "matic",
	8453:  "base",
	42161: "arbitrum",
}

// openSeaPageSize is the largest page the API serves
const openSeaPageSize = 200

// NewOpenSea creates a new OpenSea provider
func NewOpenSea(cfg ProviderConfig) *OpenSea {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.opensea.io"
	}
	return &OpenSea{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    newHTTP(cfg).SetHeader("x-api-key", cfg.APIKey),
		logger:  cfg.Logger.With().Str("component", "opensea").Logger(),
	}
}

// OwnedBy implements DataProvider
func (o *OpenSea) OwnedBy(ctx context.Context, col *Collection, owner common.Address) ([]*Nft721, error) {
	network, ok := openSeaNetworks[col.Chain().ID()]
	if !ok {
		return nil, fmt.Errorf("opensea: %w: %d", ErrUnsupportedChain, col.Chain().ID())
	}

	slug, err := o.collectionSlug(ctx, network, col.Address())
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/api/v2/chain/%s/account/%s/nfts", o.baseURL, network, owner.Hex())
	var items []*Nft721
	next := ""
	for {
		var page struct {
			NFTs []struct {
				Identifier string `json:"identifier"`
			} `json:"nfts"`
			Next string `json:"next"`
		}
		req := o.http.R().
			SetContext(ctx).
			SetQueryParam("collection", slug).
			SetQueryParam("limit", strconv.Itoa(openSeaPageSize)).
			SetResult(&page)
		if next != "" {
			req.SetQueryParam("next", next)
		}
		resp, err := req.Get(endpoint)
		if err != nil {
			return nil, fmt.Errorf("opensea: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("opensea: unexpected status %d", resp.StatusCode())
		}

		for _, nft := range page.NFTs {
			id, ok := new(big.Int).SetString(nft.Identifier, 10)
			if !ok {
				return nil, fmt.Errorf("opensea: invalid identifier %q", nft.Identifier)
			}
			items = append(items, ownedItem(col, id, owner))
		}

		if page.Next == "" {
			break
		}
		next = page.Next
	}

	o.logger.Debug().Str("collection", slug).Int("items", len(items)).Msg("owned items fetched")
	return items, nil
}

func (o *OpenSea) collectionSlug(ctx context.Context, network string, address common.Address) (string, error) {
	var info struct {
		Collection string `json:"collection"`
	}
	resp, err := o.http.R().
		SetContext(ctx).
		SetResult(&info).
		Get(fmt.Sprintf("%s/api/v2/chain/%s/contract/%s", o.baseURL, network, address.Hex()))
	if err != nil {
		return "", fmt.Errorf("opensea: %w", err)
	}
	if resp.StatusCode() != http.StatusOK || info.Collection == "" {
		return "", fmt.Errorf("opensea: collection of %s not found", address.Hex())
	}
	return info.Collection, nil
}

func ownedItem(col *Collection, id *big.Int, owner common.Address) *Nft721 {
	item := col.Item(id)
	item.owner = &owner
	return item
}
