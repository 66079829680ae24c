package bundler

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/kaifufi/nftspace-settlement-go/chain"
	"github.com/kaifufi/nftspace-settlement-go/events"
	"github.com/kaifufi/nftspace-settlement-go/ledger"
	"github.com/kaifufi/nftspace-settlement-go/sequencer"
)

// Wrap moves the listed tokens from caller into the bundler and mints
// caller a bundle token holding them. The three slices are read in
// parallel. ERC721 items need the bundler approved for the token or for all
// of caller's tokens and ERC1155 items need it approved for all.
func (b *Bundler) Wrap(ctx context.Context, caller common.Address, contracts []common.Address, tokenIDs, amounts []*big.Int) (*sequencer.Receipt, error) {
	return b.seq.Run(ctx, "createWrappedToken", caller, func(c *sequencer.Call) error {
		if b.IsBundlingPaused() {
			return chain.ErrPaused.WithReason(ReasonBundlingPaused)
		}
		if len(contracts) != len(tokenIDs) || len(contracts) != len(amounts) {
			return chain.ErrLengthMismatch
		}
		if len(contracts) == 0 {
			return chain.ErrInvalidAmount.WithReason(ReasonEmptyBundle)
		}

		items := make([]Item, 0, len(contracts))
		for i, addr := range contracts {
			item, err := b.deposit(caller, addr, tokenIDs[i], amounts[i])
			if err != nil {
				return err
			}
			items = append(items, item)
		}

		id := b.NextTokenID()
		if err := b.Mint(b.Address(), caller, id); err != nil {
			return err
		}
		b.record(&Bundle{ID: id, Creator: caller, CreationDate: c.Now(), Items: items})

		c.Emit(c.NewEvent(events.BundleCreated).
			With("bundle_id", id).
			With("creator", caller).
			With("items", uint64(len(items))))
		b.logger.WithFields(logrus.Fields{
			"bundle_id": id.String(),
			"creator":   caller.Hex(),
			"items":     len(items),
		}).Debug("Bundle created")
		return nil
	})
}

// Unwrap burns a bundle token and gives the tokens it holds to caller, who
// must own the bundle. Rented bundles cannot be unwrapped.
func (b *Bundler) Unwrap(ctx context.Context, caller common.Address, tokenID *big.Int) (*sequencer.Receipt, error) {
	return b.seq.Run(ctx, "unbundleWrappedToken", caller, func(c *sequencer.Call) error {
		if b.IsUnbundlingPaused() {
			return chain.ErrPaused.WithReason(ReasonUnbundlingPaused)
		}
		owner, err := b.OwnerOf(tokenID)
		if err != nil {
			return err
		}
		if owner != caller {
			return chain.ErrNotOwner.WithReason(ReasonOnlyOwner)
		}
		if b.IsRented(tokenID) {
			return chain.ErrTokenRented.WithReason(ledger.ReasonTransferWhileRent)
		}
		bundle, ok := b.BundleOf(tokenID)
		if !ok {
			return chain.ErrNonexistentToken
		}

		if err := b.Burn(caller, tokenID); err != nil {
			return err
		}
		for _, item := range bundle.Items {
			if err := b.withdraw(caller, item); err != nil {
				return err
			}
		}
		b.markBurned(bundle, c.Now())

		c.Emit(c.NewEvent(events.BundleUnwrapped).
			With("bundle_id", bundle.ID).
			With("owner", caller).
			With("items", uint64(len(bundle.Items))))
		return nil
	})
}

func (b *Bundler) deposit(caller, addr common.Address, tokenID, amount *big.Int) (Item, error) {
	if tokenID == nil || amount == nil {
		return Item{}, chain.ErrInvalidAmount
	}
	contract, _ := b.world.Contract(addr)
	if nft, ok := contract.(nonFungible); ok && nft.SupportsInterface(chain.InterfaceIDERC721) {
		if amount.Cmp(big.NewInt(1)) != 0 {
			return Item{}, chain.ErrInvalidAmount.WithReason(ReasonERC721Amount)
		}
		if err := nft.TransferFrom(b.Address(), caller, b.Address(), tokenID); err != nil {
			return Item{}, err
		}
		return Item{Contract: addr, TokenID: new(big.Int).Set(tokenID), Amount: big.NewInt(1), Standard: ERC721}, nil
	}
	if sft, ok := contract.(semiFungible); ok && sft.SupportsInterface(chain.InterfaceIDERC1155) {
		if amount.Sign() <= 0 {
			return Item{}, chain.ErrInvalidAmount
		}
		if err := sft.SafeTransferFrom(b.Address(), caller, b.Address(), tokenID, amount); err != nil {
			return Item{}, err
		}
		return Item{Contract: addr, TokenID: new(big.Int).Set(tokenID), Amount: new(big.Int).Set(amount), Standard: ERC1155}, nil
	}
	return Item{}, chain.ErrInvalidTokenContract.WithReason(ReasonNotTokenContract)
}

func (b *Bundler) withdraw(to common.Address, item Item) error {
	contract, _ := b.world.Contract(item.Contract)
	switch item.Standard {
	case ERC721:
		if nft, ok := contract.(nonFungible); ok {
			return nft.TransferFrom(b.Address(), b.Address(), to, item.TokenID)
		}
	case ERC1155:
		if sft, ok := contract.(semiFungible); ok {
			return sft.SafeTransferFrom(b.Address(), b.Address(), to, item.TokenID, item.Amount)
		}
	}
	return chain.ErrInvalidTokenContract.WithReason(ReasonNotTokenContract)
}

// record stores a new bundle and advances the id counter. Both revert with
// the world.
func (b *Bundler) record(bundle *Bundle) {
	key := common.BigToHash(bundle.ID)
	b.mu.Lock()
	prevID := b.nextID
	b.bundles[key] = bundle
	b.nextID = new(big.Int).Add(bundle.ID, big.NewInt(1))
	b.mu.Unlock()

	b.world.Journal(func() {
		b.mu.Lock()
		delete(b.bundles, key)
		b.nextID = prevID
		b.mu.Unlock()
	})
}

func (b *Bundler) markBurned(bundle Bundle, now uint64) {
	key := common.BigToHash(bundle.ID)
	b.mu.Lock()
	prev := b.bundles[key]
	burned := *prev
	burned.BurnDate = now
	b.bundles[key] = &burned
	b.mu.Unlock()

	b.world.Journal(func() {
		b.mu.Lock()
		b.bundles[key] = prev
		b.mu.Unlock()
	})
}
