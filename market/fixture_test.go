package market

import (
	"context"
	"io"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/kaifufi/nftspace-settlement-go/chain"
	"github.com/kaifufi/nftspace-settlement-go/events"
	"github.com/kaifufi/nftspace-settlement-go/ledger"
)

const (
	genesis    = uint64(1_700_000_000)
	price      = int64(10000)
	commission = uint64(100)
)

var (
	ctx     = context.Background()
	tokenID = big.NewInt(10)
)

type account struct {
	*chain.OrderSigner
}

func newAccount(t *testing.T) account {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return account{chain.NewOrderSigner(key)}
}

type fixture struct {
	t           *testing.T
	world       *ledger.World
	market      *Marketplace
	nft         *ledger.ERC721Collection
	sft         *ledger.ERC1155Collection
	usdt        *ledger.ERC20Token
	recorder    *events.Recorder
	admin       account
	seller      account
	seller2     account
	buyer       account
	beneficiary common.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{
		t:           t,
		world:       ledger.NewWorld(big.NewInt(31337), genesis),
		recorder:    &events.Recorder{},
		admin:       newAccount(t),
		seller:      newAccount(t),
		seller2:     newAccount(t),
		buyer:       newAccount(t),
		beneficiary: common.HexToAddress("0x000000000000000000000000000000000000beef"),
	}
	f.market = Deploy(f.world, Options{Admin: f.admin.Address(), Sink: f.recorder, Logger: logger})
	f.nft = ledger.DeployERC721(f.world, "Collection", f.admin.Address(), common.Address{})
	f.sft = ledger.DeployERC1155(f.world, f.admin.Address())
	f.usdt = ledger.DeployERC20(f.world, "USDT", 6)
	return f
}

// withCommission sets a 100 permille commission paid to the beneficiary.
func (f *fixture) withCommission() *fixture {
	_, err := f.market.SetMarketplaceCommissionPermille(ctx, f.admin.Address(), commission)
	require.NoError(f.t, err)
	_, err = f.market.SetMarketplaceBeneficiary(ctx, f.admin.Address(), f.beneficiary)
	require.NoError(f.t, err)
	return f
}

func (f *fixture) allowUSDT() *fixture {
	_, err := f.market.SetSettlementTokenStatus(ctx, f.admin.Address(), f.usdt.Address(), true)
	require.NoError(f.t, err)
	return f
}

// listNFT mints tokenID to the seller and approves the marketplace.
func (f *fixture) listNFT() {
	require.NoError(f.t, f.nft.Mint(f.admin.Address(), f.seller.Address(), tokenID))
	f.nft.SetApprovalForAll(f.seller.Address(), f.market.Address(), true)
}

func (f *fixture) fundUSDT(holder common.Address, amount int64) {
	f.usdt.Mint(holder, big.NewInt(amount))
	f.usdt.Approve(holder, f.market.Address(), big.NewInt(amount))
}

func sign[T chain.Order](f *fixture, by account, order T) *chain.Signed[T] {
	f.t.Helper()
	signed, err := chain.Sign(by.OrderSigner, f.market.Domain(), order)
	require.NoError(f.t, err)
	return signed
}

func (f *fixture) sellOrder(settlementToken common.Address) *chain.SellOrder {
	return &chain.SellOrder{
		Seller:          f.seller.Address(),
		TokenContract:   f.nft.Address(),
		TokenID:         tokenID,
		SettlementToken: settlementToken,
		SettlementPrice: big.NewInt(price),
		Nonce:           big.NewInt(1),
	}
}

func (f *fixture) offer() *chain.Offer {
	return &chain.Offer{
		Buyer:           f.buyer.Address(),
		TokenContract:   f.nft.Address(),
		TokenID:         tokenID,
		SettlementToken: f.usdt.Address(),
		SettlementPrice: big.NewInt(price),
		Deadline:        new(big.Int).SetUint64(genesis + 1000),
		Nonce:           big.NewInt(1),
	}
}

func (f *fixture) auction() *chain.Auction {
	return &chain.Auction{
		Seller:          f.seller.Address(),
		TokenContract:   f.nft.Address(),
		TokenID:         tokenID,
		SettlementToken: f.usdt.Address(),
		MinimumBidPrice: big.NewInt(price),
		ReservePrice:    big.NewInt(price),
		ExpirationDate:  new(big.Int).SetUint64(genesis + 1000),
		Nonce:           big.NewInt(1),
	}
}

func (f *fixture) bid(value int64) *chain.Bid {
	return &chain.Bid{
		Bidder:          f.buyer.Address(),
		TokenContract:   f.nft.Address(),
		TokenID:         tokenID,
		SettlementToken: f.usdt.Address(),
		BidValue:        big.NewInt(value),
		Nonce:           big.NewInt(1),
	}
}

func (f *fixture) isCancelled(sigHash common.Hash) bool {
	f.t.Helper()
	cancelled, err := f.market.IsCancelled(ctx, sigHash)
	require.NoError(f.t, err)
	return cancelled
}

func (f *fixture) ownerOf(id *big.Int) common.Address {
	f.t.Helper()
	owner, err := f.nft.OwnerOf(id)
	require.NoError(f.t, err)
	return owner
}

func bigInt(x int64) *big.Int { return big.NewInt(x) }

// twoTo256 is added to or subtracted from a signed value to get one that
// packs to the same ABI word.
var twoTo256 = new(big.Int).Lsh(big.NewInt(1), 256)

func aliased(x int64) *big.Int { return new(big.Int).Sub(big.NewInt(x), twoTo256) }

// forge pairs a changed copy of signed's order with the original signature.
func forge[T any, PT interface {
	*T
	chain.Order
}](signed *chain.Signed[PT], mutate func(PT)) *chain.Signed[PT] {
	order := *signed.Order
	changed := PT(&order)
	mutate(changed)
	return &chain.Signed[PT]{Order: changed, Signature: signed.Signature}
}
