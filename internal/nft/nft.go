// Package nft implements ERC721 collections, their items and metadata.
package nft

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"w3ext/internal/abis"
	"w3ext/internal/chain"
)

// maxEnumerate bounds concurrent tokenOfOwnerByIndex calls
const maxEnumerate = 32

// MaxEnumerated is the largest balance OwnedBy walks on chain; bigger holdings need a provider
const MaxEnumerated = 10000

var (
	// ErrMetadataNotLoaded is returned by Meta before RefreshMetadata succeeded
	ErrMetadataNotLoaded = errors.New("metadata not found, refresh it first")
	// ErrTooManyItems is returned by OwnedBy when the balance exceeds MaxEnumerated
	ErrTooManyItems = errors.New("too many items to enumerate, use a provider")
	// ErrNoSender is returned by Transfer without a signer or a from address
	ErrNoSender = errors.New("transfer needs a signer or a from address")
)

// Collection is an ERC721 contract
type Collection struct {
	Name     string
	contract *chain.Contract
	fetcher  *MetadataFetcher
}

type options struct {
	abi     *abi.ABI
	cacheAs string
	fetcher *MetadataFetcher
}

// Option configures Load
type Option func(*options)

// WithABI uses contractABI instead of the standard ERC721 ABI
func WithABI(contractABI abi.ABI) Option {
	return func(o *options) { o.abi = &contractABI }
}

// WithCacheAs registers the loaded collection on its chain under alias
func WithCacheAs(alias string) Option {
	return func(o *options) { o.cacheAs = alias }
}

// WithMetadataFetcher sets how item metadata is downloaded
func WithMetadataFetcher(f *MetadataFetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// Load reads the collection name and returns the collection
func Load(ctx context.Context, c *chain.Chain, address common.Address, opts ...Option) (*Collection, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	contractABI := abis.ERC721()
	if o.abi != nil {
		contractABI = *o.abi
	}

	contract := c.Contract(address, contractABI)
	name, err := chain.CallAs[string](ctx, contract, chain.CallOpts{}, "name")
	if err != nil {
		return nil, fmt.Errorf("load collection %s on %s: %w", address.Hex(), c, err)
	}

	col := New(contract, name, o.fetcher)
	if o.cacheAs != "" {
		c.Register(o.cacheAs, col)
	}
	return col, nil
}

// New creates a collection without touching the chain. A nil fetcher
// uses the public IPFS gateway.
func New(contract *chain.Contract, name string, fetcher *MetadataFetcher) *Collection {
	if fetcher == nil {
		fetcher = defaultFetcher()
	}
	return &Collection{Name: name, contract: contract, fetcher: fetcher}
}

// FromChain returns the collection registered on c under alias
func FromChain(c *chain.Chain, alias string) (*Collection, bool) {
	v, ok := c.Lookup(alias)
	if !ok {
		return nil, false
	}
	col, ok := v.(*Collection)
	return col, ok
}

// Address returns the contract address
func (col *Collection) Address() common.Address {
	return col.contract.Address()
}

// Chain returns the chain of the collection
func (col *Collection) Chain() *chain.Chain {
	return col.contract.Chain()
}

// Contract returns the collection contract
func (col *Collection) Contract() *chain.Contract {
	return col.contract
}

// String returns the name
func (col *Collection) String() string {
	return col.Name
}

// Balance returns how many items owner holds
func (col *Collection) Balance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return chain.CallAs[*big.Int](ctx, col.contract, chain.CallOpts{}, "balanceOf", owner)
}

// OwnedBy lists the items of owner. With a provider the indexer is asked;
// otherwise the ERC721 enumeration extension is walked on chain.
func (col *Collection) OwnedBy(ctx context.Context, owner common.Address, provider DataProvider) ([]*Nft721, error) {
	if provider != nil {
		return provider.OwnedBy(ctx, col, owner)
	}

	total, err := col.Balance(ctx, owner)
	if err != nil {
		return nil, err
	}
	if total.Sign() < 0 || total.Cmp(big.NewInt(MaxEnumerated)) > 0 {
		return nil, fmt.Errorf("%s holds %s %s items: %w", owner.Hex(), total, col.Name, ErrTooManyItems)
	}

	items := make([]*Nft721, total.Int64())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxEnumerate)
	for i := range items {
		i := i
		g.Go(func() error {
			id, err := chain.CallAs[*big.Int](gctx, col.contract, chain.CallOpts{}, "tokenOfOwnerByIndex", owner, big.NewInt(int64(i)))
			if err != nil {
				return err
			}
			items[i] = ownedItem(col, id, owner)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("enumerate %s items of %s: %w", col.Name, owner.Hex(), err)
	}
	return items, nil
}

// Item returns the item with id
func (col *Collection) Item(id *big.Int) *Nft721 {
	return &Nft721{Collection: col, ID: new(big.Int).Set(id)}
}

// Nft721 is one item of a collection
type Nft721 struct {
	Collection *Collection
	ID         *big.Int

	mu    sync.Mutex
	owner *common.Address
	meta  Metadata
}

// String returns "<collection>#<id>"
func (n *Nft721) String() string {
	return fmt.Sprintf("%s#%s", n.Collection.Name, n.ID)
}

// Owner returns the item owner, asking the chain when unknown or when force is set
func (n *Nft721) Owner(ctx context.Context, force bool) (common.Address, error) {
	n.mu.Lock()
	known := n.owner
	n.mu.Unlock()
	if known != nil && !force {
		return *known, nil
	}

	owner, err := chain.CallAs[common.Address](ctx, n.Collection.contract, chain.CallOpts{}, "ownerOf", n.ID)
	if err != nil {
		return common.Address{}, err
	}
	n.mu.Lock()
	n.owner = &owner
	n.mu.Unlock()
	return owner, nil
}

// Transfer moves the item to `to` with safeTransferFrom. The sender is the
// signer, or opts.From when signing is left to ctx or the node.
func (n *Nft721) Transfer(ctx context.Context, signer chain.Signer, to common.Address, opts chain.TxParams) (common.Hash, error) {
	var from common.Address
	switch {
	case signer != nil:
		from = signer.Address()
	case opts.From != nil:
		from = *opts.From
	default:
		return common.Hash{}, ErrNoSender
	}

	hash, err := n.Collection.contract.Transact(ctx, signer, opts, "safeTransferFrom", from, to, n.ID)
	if err != nil {
		return common.Hash{}, err
	}
	n.mu.Lock()
	n.owner = nil
	n.mu.Unlock()
	return hash, nil
}

// RefreshMetadata downloads the metadata tokenURI points at
func (n *Nft721) RefreshMetadata(ctx context.Context) error {
	uri, err := chain.CallAs[string](ctx, n.Collection.contract, chain.CallOpts{}, "tokenURI", n.ID)
	if err != nil {
		return fmt.Errorf("%s: token uri: %w", n, err)
	}
	meta, err := n.Collection.fetcher.Fetch(ctx, uri)
	if err != nil {
		return fmt.Errorf("%s: %w", n, err)
	}

	n.mu.Lock()
	n.meta = meta
	n.mu.Unlock()
	return nil
}

// Meta returns the metadata loaded by RefreshMetadata
func (n *Nft721) Meta() (Metadata, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.meta == nil {
		return nil, ErrMetadataNotLoaded
	}
	return n.meta, nil
}
