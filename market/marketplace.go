// Package market settles signed sell orders, offers and auctions for ERC721
// and ERC1155 tokens. Each entry point is one atomic call: it either
// completes every transfer and registry write or leaves state untouched.
package market

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/kaifufi/nftspace-settlement-go/access"
	"github.com/kaifufi/nftspace-settlement-go/chain"
	"github.com/kaifufi/nftspace-settlement-go/events"
	"github.com/kaifufi/nftspace-settlement-go/metrics"
	"github.com/kaifufi/nftspace-settlement-go/payment"
	"github.com/kaifufi/nftspace-settlement-go/registry"
	"github.com/kaifufi/nftspace-settlement-go/sequencer"
)

// MaxCommissionPermille bounds the marketplace commission.
const MaxCommissionPermille = 500

// Revert reasons of the configuration entry points
const (
	ReasonNotFundManager     = "Account has no fund manager role"
	ReasonNotPauser          = "Account has no pauser role"
	ReasonZeroERC20          = "Wrong ERC20 contract: address can't be 0"
	ReasonZeroCommission     = "Commission must be greater than 0"
	ReasonCommissionTooHigh  = "Commission cannot exceed 500 permille"
	ReasonZeroBeneficiary    = "Beneficiary can't be 0 address"
	ReasonCancelNotSigner    = "Only message signer can cancel signature"
	ReasonCancelSigner       = "Signers mismatch"
	ReasonSellerMismatch     = "seller mismatch"
	ReasonBuyerMismatch      = "buyer mismatch"
	ReasonBidderMismatch     = "bidder mismatch"
	ReasonNativeShort        = "not enough funds"
	ReasonOwnOffer           = "user cannot accept their own offer"
	ReasonBuyerOwns          = "Buyer is already the owner of this NFT"
	ReasonAccepterNotOwner   = "User is not the owner of this NFT"
	ReasonAccepterNotApprove = "Marketplace is not approved to manage the user's tokens"
	ReasonSellerNotOwner     = "seller is no longer the owner of this NFT"
	ReasonEmptySignatures    = "Signatures are empty"
	ReasonMultiTokenRejected = "ERC20 token not approved as a settlement token"
	ReasonMintMismatch       = "mint voucher does not match the sell order"
)

// Options configures a deployment.
type Options struct {
	// Admin receives the admin, fund manager and pauser roles.
	Admin common.Address
	// Store backs the cancellation and fill registry. Defaults to memory.
	Store   registry.Store
	Sink    events.Sink
	Metrics metrics.Recorder
	Logger  *logrus.Logger
}

// Marketplace is one deployed settlement contract.
type Marketplace struct {
	address  common.Address
	backend  Backend
	domain   *chain.EIP712Domain
	roles    *access.Roles
	seq      *sequencer.Sequencer
	payments *payment.Distributor
	metrics  metrics.Recorder
	logger   *logrus.Logger

	mu                 sync.RWMutex
	commissionPermille uint64
	beneficiary        common.Address
	settlementTokens   map[common.Address]bool
	paused             bool
}

// Deploy creates a marketplace at a fresh address on backend.
func Deploy(backend Backend, opts Options) *Marketplace {
	if opts.Store == nil {
		opts.Store = registry.NewMemoryStore()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoOpCollector()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	address := backend.NewAddress()
	roles := access.New(opts.Admin)
	_ = roles.GrantRole(opts.Admin, access.FundManagerRole, opts.Admin)
	_ = roles.GrantRole(opts.Admin, access.PauserRole, opts.Admin)

	m := &Marketplace{
		address:          address,
		backend:          backend,
		domain:           chain.NewMarketplaceDomain(backend.ChainID(), address),
		roles:            roles,
		payments:         payment.NewDistributor(backend, address, opts.Logger),
		metrics:          opts.Metrics,
		logger:           opts.Logger,
		settlementTokens: make(map[common.Address]bool),
	}
	m.seq = sequencer.New(address, backend, opts.Store,
		sequencer.WithSink(opts.Sink),
		sequencer.WithMetrics(opts.Metrics),
		sequencer.WithLogger(opts.Logger),
	)
	backend.Register(address, m)

	opts.Logger.WithFields(logrus.Fields{
		"address":  address.Hex(),
		"admin":    opts.Admin.Hex(),
		"chain_id": backend.ChainID().String(),
	}).Info("Marketplace deployed")
	return m
}

func (m *Marketplace) Address() common.Address     { return m.address }
func (m *Marketplace) Domain() *chain.EIP712Domain { return m.domain }
func (m *Marketplace) Roles() *access.Roles        { return m.roles }

// CommissionPermille returns the commission charged on every settlement.
func (m *Marketplace) CommissionPermille() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.commissionPermille
}

// Beneficiary returns the account commissions are paid to.
func (m *Marketplace) Beneficiary() common.Address {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.beneficiary
}

// SettlementTokenStatus reports whether token may be used to settle.
func (m *Marketplace) SettlementTokenStatus(token common.Address) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settlementTokens[token]
}

// Paused reports whether settlements are suspended.
func (m *Marketplace) Paused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}

// IsCancelled reports whether the signature with sigHash can no longer settle.
func (m *Marketplace) IsCancelled(ctx context.Context, sigHash common.Hash) (bool, error) {
	return m.seq.Store().IsCancelled(ctx, sigHash)
}

// FillOf returns the fill progress of a multi-unit order.
func (m *Marketplace) FillOf(ctx context.Context, sigHash common.Hash) (registry.FillState, error) {
	return m.seq.Store().Fill(ctx, sigHash)
}

// AmountAvailable returns how many of the total units signed under sigHash
// are still for sale.
func (m *Marketplace) AmountAvailable(ctx context.Context, sigHash common.Hash, total *big.Int) (*big.Int, error) {
	return registry.Remaining(ctx, m.seq.Store(), sigHash, orZero(total))
}

// SetSettlementTokenStatus allows or forbids an ERC20 token as settlement asset.
func (m *Marketplace) SetSettlementTokenStatus(ctx context.Context, caller, token common.Address, allowed bool) (*sequencer.Receipt, error) {
	return m.seq.Run(ctx, "setSettlementTokenStatus", caller, func(*sequencer.Call) error {
		if err := m.roles.Require(access.FundManagerRole, caller, ReasonNotFundManager); err != nil {
			return err
		}
		if token == (common.Address{}) {
			return chain.ErrZeroAddress.WithReason(ReasonZeroERC20)
		}
		m.mu.Lock()
		m.settlementTokens[token] = allowed
		m.mu.Unlock()
		return nil
	})
}

// SetMarketplaceCommissionPermille sets the commission in parts per thousand.
func (m *Marketplace) SetMarketplaceCommissionPermille(ctx context.Context, caller common.Address, permille uint64) (*sequencer.Receipt, error) {
	return m.seq.Run(ctx, "setMarketplaceCommissionPermille", caller, func(*sequencer.Call) error {
		if err := m.roles.Require(access.FundManagerRole, caller, ReasonNotFundManager); err != nil {
			return err
		}
		if permille == 0 {
			return chain.ErrInvalidConfig.WithReason(ReasonZeroCommission)
		}
		if permille > MaxCommissionPermille {
			return chain.ErrInvalidConfig.WithReason(ReasonCommissionTooHigh)
		}
		m.mu.Lock()
		m.commissionPermille = permille
		m.mu.Unlock()
		return nil
	})
}

// SetMarketplaceBeneficiary sets the account commissions are paid to.
func (m *Marketplace) SetMarketplaceBeneficiary(ctx context.Context, caller, beneficiary common.Address) (*sequencer.Receipt, error) {
	return m.seq.Run(ctx, "setMarketplaceBeneficiary", caller, func(*sequencer.Call) error {
		if err := m.roles.Require(access.FundManagerRole, caller, ReasonNotFundManager); err != nil {
			return err
		}
		if beneficiary == (common.Address{}) {
			return chain.ErrZeroAddress.WithReason(ReasonZeroBeneficiary)
		}
		m.mu.Lock()
		m.beneficiary = beneficiary
		m.mu.Unlock()
		return nil
	})
}

// SetPaused suspends or resumes settlements. Cancellations stay available.
func (m *Marketplace) SetPaused(ctx context.Context, caller common.Address, paused bool) (*sequencer.Receipt, error) {
	return m.seq.Run(ctx, "setPaused", caller, func(*sequencer.Call) error {
		if err := m.roles.Require(access.PauserRole, caller, ReasonNotPauser); err != nil {
			return err
		}
		m.mu.Lock()
		m.paused = paused
		m.mu.Unlock()
		return nil
	})
}

// commission returns the rate and beneficiary of the current configuration.
// Nothing is charged until both a commission and a beneficiary are set.
func (m *Marketplace) commission() (payment.Rate, common.Address) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.commissionPermille == 0 || m.beneficiary == (common.Address{}) {
		return payment.Rate{}, common.Address{}
	}
	return payment.Permille(m.commissionPermille), m.beneficiary
}

// settle runs fn as a settlement call. Attached native value is taken from
// the caller when fn first pays with it and whatever fn leaves unspent is
// refunded to the caller.
func (m *Marketplace) settle(ctx context.Context, op string, caller common.Address, value *big.Int, fn func(*sequencer.Call, *payment.Purse) error) (*sequencer.Receipt, error) {
	value = orZero(value)
	receipt, err := m.seq.Run(ctx, op, caller, func(c *sequencer.Call) error {
		if m.Paused() {
			return chain.ErrPaused
		}
		purse := payment.NewAttachedPurse(m.backend, caller, m.address, value)
		if err := fn(c, purse); err != nil {
			return err
		}
		return m.backend.TransferNative(m.address, caller, purse.Drain())
	})
	if err != nil {
		return nil, err
	}
	m.observe(op, receipt)
	return receipt, nil
}

func (m *Marketplace) observe(op string, receipt *sequencer.Receipt) {
	for _, evt := range receipt.Events {
		if evt.Type != events.SettlementCompleted {
			continue
		}
		price, ok := new(big.Int).SetString(evt.Data["price"], 10)
		if !ok {
			continue
		}
		asset := "native"
		if token := evt.Data["settlement_token"]; token != (common.Address{}).Hex() {
			asset = token
		}
		m.metrics.RecordVolume(op, asset, price)
	}
}
