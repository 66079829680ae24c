package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	nftspace "github.com/kaifufi/nftspace-settlement-go"
	"github.com/kaifufi/nftspace-settlement-go/events"
	"github.com/kaifufi/nftspace-settlement-go/feed"
	"github.com/kaifufi/nftspace-settlement-go/ledger"
)

// runDemo lists and sells one token for USDT, rents out a second one and
// wraps a third into a bundle, watching the node's own feed.
func (n *node) runDemo(ctx context.Context, endpoint string) error {
	watcher := feed.NewClient(feed.ClientConfig{
		Endpoint:          endpoint,
		HeartbeatInterval: n.cfg.Feed.HeartbeatInterval,
		OnEvent: func(evt events.Event) {
			n.logger.WithFields(logrus.Fields{
				"type":  evt.Type,
				"price": evt.Data["price"],
			}).Info("Feed event")
		},
		OnError: func(err error) {
			n.logger.WithError(err).Warn("Feed client error")
		},
	})
	if err := watcher.Connect(ctx); err != nil {
		return err
	}
	defer watcher.Disconnect()
	if err := watcher.SubscribeSettlements(); err != nil {
		return err
	}
	if err := watcher.SubscribeRentals(); err != nil {
		return err
	}
	if err := watcher.SubscribeBundles(); err != nil {
		return err
	}

	seller, err := n.demoClient()
	if err != nil {
		return err
	}
	buyer, err := n.demoClient()
	if err != nil {
		return err
	}

	usdt := ledger.DeployERC20(n.world, "USDT", 6)
	if _, err := n.marketplace.SetSettlementTokenStatus(ctx, n.admin.Address(), usdt.Address(), true); err != nil {
		return err
	}
	collection := ledger.DeployERC721(n.world, "Demo", n.admin.Address(), n.renting.Address())
	for _, id := range []int64{1, 2, 3} {
		if err := collection.Mint(n.admin.Address(), seller.Address(), big.NewInt(id)); err != nil {
			return err
		}
	}
	collection.SetApprovalForAll(seller.Address(), n.marketplace.Address(), true)

	price, err := nftspace.AmountToWei("25", int(usdt.Decimals()))
	if err != nil {
		return err
	}
	usdt.Mint(buyer.Address(), new(big.Int).Mul(price, big.NewInt(4)))
	usdt.Approve(buyer.Address(), n.marketplace.Address(), price)

	sell, err := seller.NewSellOrder(nftspace.SellInput{
		TokenContract:   collection.Address(),
		TokenID:         big.NewInt(1),
		SettlementToken: usdt.Address(),
		Price:           price,
	})
	if err != nil {
		return err
	}
	if _, err := buyer.Buy(ctx, sell, nil); err != nil {
		return fmt.Errorf("buy: %w", err)
	}

	daily, err := nftspace.AmountToWei("1.5", int(usdt.Decimals()))
	if err != nil {
		return err
	}
	const days = 3
	usdt.Approve(buyer.Address(), n.renting.Address(), nftspace.RentPrice(daily, days))
	listing, err := seller.NewRentListing(nftspace.RentListingInput{
		TokenContract:          collection.Address(),
		TokenID:                big.NewInt(2),
		SettlementToken:        usdt.Address(),
		DailyPrice:             daily,
		MinimumDays:            1,
		MaximumDays:            7,
		PrematureReturnAllowed: true,
	})
	if err != nil {
		return err
	}
	if _, err := buyer.Rent(ctx, days, listing, nil); err != nil {
		return fmt.Errorf("rent: %w", err)
	}

	wrapped := big.NewInt(3)
	if err := collection.Approve(seller.Address(), n.bundler.Address(), wrapped); err != nil {
		return err
	}
	bundleID := n.bundler.NextTokenID()
	if _, err := n.bundler.Wrap(ctx, seller.Address(),
		[]common.Address{collection.Address()}, []*big.Int{wrapped}, []*big.Int{big.NewInt(1)}); err != nil {
		return fmt.Errorf("wrap: %w", err)
	}

	n.logger.WithFields(logrus.Fields{
		"seller_usdt": nftspace.WeiToAmount(usdt.BalanceOf(seller.Address()), int(usdt.Decimals())),
		"buyer_usdt":  nftspace.WeiToAmount(usdt.BalanceOf(buyer.Address()), int(usdt.Decimals())),
		"bundle_id":   bundleID.String(),
	}).Info("Demo settled")

	// give the feed a moment to deliver before disconnecting
	select {
	case <-time.After(500 * time.Millisecond):
	case <-ctx.Done():
	}
	return nil
}

func (n *node) demoClient() (*nftspace.Client, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return nftspace.NewClient(nftspace.ClientConfig{
		ChainID:     nftspace.ChainID(n.cfg.ChainID),
		PrivateKey:  hex.EncodeToString(crypto.FromECDSA(key)),
		Marketplace: n.marketplace,
		Renting:     n.renting,
		Logger:      n.logger,
	})
}
