// Package bundler wraps ERC721 and ERC1155 tokens into a single ERC721
// bundle token. The bundler holds the wrapped tokens until the bundle owner
// unwraps it. Bundles are ordinary rentable ERC721 tokens, so a renting
// protocol holding the renting operator role can rent them out, and a bundle
// can itself be wrapped into another bundle.
package bundler

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/kaifufi/nftspace-settlement-go/access"
	"github.com/kaifufi/nftspace-settlement-go/events"
	"github.com/kaifufi/nftspace-settlement-go/ledger"
	"github.com/kaifufi/nftspace-settlement-go/metrics"
	"github.com/kaifufi/nftspace-settlement-go/registry"
	"github.com/kaifufi/nftspace-settlement-go/sequencer"
)

// Revert reasons of the bundler
const (
	ReasonBundlingPaused   = "Bundling of NFTs has been paused by the admin."
	ReasonUnbundlingPaused = "Unbundling of NFTs has been paused by the admin."
	ReasonNotPauser        = "Account has no pauser role"
	ReasonNotTokenContract = "provided address doesn't support token interfaces"
	ReasonEmptyBundle      = "a bundle must hold at least one token"
	ReasonERC721Amount     = "ERC721 tokens are bundled one at a time"
	ReasonOnlyOwner        = "Only owner can unbundle a token."
)

// Standard is the token standard of a bundled item.
type Standard uint8

const (
	ERC721 Standard = iota + 1
	ERC1155
)

func (s Standard) String() string {
	switch s {
	case ERC721:
		return "erc721"
	case ERC1155:
		return "erc1155"
	default:
		return "unknown"
	}
}

// Item is one token held by a bundle.
type Item struct {
	Contract common.Address
	TokenID  *big.Int
	Amount   *big.Int
	Standard Standard
}

// Bundle is the record of one bundle token. BurnDate stays zero until the
// bundle is unwrapped.
type Bundle struct {
	ID           *big.Int
	Creator      common.Address
	CreationDate uint64
	BurnDate     uint64
	Items        []Item
}

type nonFungible interface {
	SupportsInterface(id [4]byte) bool
	TransferFrom(caller, from, to common.Address, tokenID *big.Int) error
}

type semiFungible interface {
	SupportsInterface(id [4]byte) bool
	SafeTransferFrom(caller, from, to common.Address, id, amount *big.Int) error
}

// Options configures a deployment.
type Options struct {
	// Admin receives the admin and pauser roles.
	Admin common.Address
	// RentingProtocol is granted the renting operator role when set.
	RentingProtocol common.Address
	BaseURI         string
	Sink            events.Sink
	Metrics         metrics.Recorder
	Logger          *logrus.Logger
}

// Bundler is one deployed bundling contract. Its bundle tokens live in the
// embedded collection, which shares the bundler's address.
type Bundler struct {
	*ledger.ERC721Collection

	world   *ledger.World
	seq     *sequencer.Sequencer
	baseURI string
	logger  *logrus.Logger

	mu               sync.RWMutex
	bundlingPaused   bool
	unbundlingPaused bool
	nextID           *big.Int
	bundles          map[common.Hash]*Bundle
}

// Deploy creates a bundler at a fresh address on w.
func Deploy(w *ledger.World, opts Options) *Bundler {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoOpCollector()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	collection := ledger.DeployERC721(w, "NFT Bundler", opts.Admin, opts.RentingProtocol)
	address := collection.Address()
	roles := collection.Roles()
	// The bundler mints its own bundle tokens.
	_ = roles.GrantRole(opts.Admin, access.DefaultAdminRole, address)
	_ = roles.GrantRole(opts.Admin, access.PauserRole, opts.Admin)

	b := &Bundler{
		ERC721Collection: collection,
		world:            w,
		baseURI:          opts.BaseURI,
		logger:           opts.Logger,
		nextID:           new(big.Int),
		bundles:          make(map[common.Hash]*Bundle),
	}
	b.seq = sequencer.New(address, w, registry.NewMemoryStore(),
		sequencer.WithSink(opts.Sink),
		sequencer.WithMetrics(opts.Metrics),
		sequencer.WithLogger(opts.Logger),
	)
	w.Register(address, b)

	opts.Logger.WithFields(logrus.Fields{
		"address": address.Hex(),
		"admin":   opts.Admin.Hex(),
	}).Info("Bundler deployed")
	return b
}

// NextTokenID returns the id the next bundle will be minted with.
func (b *Bundler) NextTokenID() *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return new(big.Int).Set(b.nextID)
}

// TokenURI returns the metadata URI of a bundle token.
func (b *Bundler) TokenURI(tokenID *big.Int) string {
	return b.baseURI + tokenID.String()
}

// BundleOf returns the record of a bundle, unwrapped ones included.
func (b *Bundler) BundleOf(tokenID *big.Int) (Bundle, bool) {
	if tokenID == nil || tokenID.Sign() < 0 || tokenID.BitLen() > 256 {
		return Bundle{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	bundle, ok := b.bundles[common.BigToHash(tokenID)]
	if !ok {
		return Bundle{}, false
	}
	out := *bundle
	out.Items = append([]Item(nil), bundle.Items...)
	return out, true
}

func (b *Bundler) IsBundlingPaused() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bundlingPaused
}

func (b *Bundler) IsUnbundlingPaused() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.unbundlingPaused
}

// SetBundlingPaused suspends or resumes wrapping.
func (b *Bundler) SetBundlingPaused(ctx context.Context, caller common.Address, paused bool) (*sequencer.Receipt, error) {
	return b.seq.Run(ctx, "setIsBundling", caller, func(*sequencer.Call) error {
		if err := b.Roles().Require(access.PauserRole, caller, ReasonNotPauser); err != nil {
			return err
		}
		b.mu.Lock()
		b.bundlingPaused = paused
		b.mu.Unlock()
		return nil
	})
}

// SetUnbundlingPaused suspends or resumes unwrapping.
func (b *Bundler) SetUnbundlingPaused(ctx context.Context, caller common.Address, paused bool) (*sequencer.Receipt, error) {
	return b.seq.Run(ctx, "setIsUnbundling", caller, func(*sequencer.Call) error {
		if err := b.Roles().Require(access.PauserRole, caller, ReasonNotPauser); err != nil {
			return err
		}
		b.mu.Lock()
		b.unbundlingPaused = paused
		b.mu.Unlock()
		return nil
	})
}
