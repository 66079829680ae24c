// Package renting settles signed rent listings. A rent moves an ERC721
// token to the renter for a whole number of days through the collection's
// rental state machine and pays the daily price to the original owner,
// minus the protocol fee.
package renting

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

// MaxProtocolFeeBasisPoints bounds the protocol fee.
const MaxProtocolFeeBasisPoints = 5000

// Revert reasons of the renting protocol
const (
	ReasonNotFeeManager      = "Caller has no fee manager role"
	ReasonFeeTooHigh         = "Protocol fee cannot be more than 5000 basis points"
	ReasonZeroDenominator    = "Denominator cannot be 0"
	ReasonNumeratorTooHigh   = "Numerator must not be more than half the value of denominator"
	ReasonListingCancelled   = "singature was cancelled"
	ReasonZeroTokenContract  = "invalid token contract address"
	ReasonNotERC721          = "Provided contract doesn't support erc721"
	ReasonRenterOwns         = "user is already the owner of this NFT"
	ReasonActiveRent         = "This NFT is already in an active rent session"
	ReasonNativeShort        = "not enough funds"
	ReasonAllowance          = "rental protocol is not approved to spend user's tokens"
	ReasonNotSettlementToken = "settlement token is not an ERC20 contract"
	ReasonCancelNotOwner     = "only original owner can cancel a rent signature"
	ReasonAlreadyCancelled   = "signature was cancelled already"
)

// Backend is the chain a renting protocol is deployed on.
type Backend interface {
	sequencer.Host
	ChainID() *big.Int
	NewAddress() common.Address
	Register(addr common.Address, contract interface{})
	Contract(addr common.Address) (interface{}, bool)
	TransferNative(from, to common.Address, value *big.Int) error
}

// Collection is an ERC721 collection that lets the protocol drive its
// rental state machine.
type Collection interface {
	SupportsInterface(id [4]byte) bool
	OwnerOf(tokenID *big.Int) (common.Address, error)
	IsRented(tokenID *big.Int) bool
	RentNFT(caller, originalOwner, temporaryOwner common.Address, tokenID *big.Int, returnTimestamp uint64, prematureReturnAllowed bool) error
	ReturnNFT(caller, requester common.Address, tokenID *big.Int) error
}

type allowanceReader interface {
	Allowance(owner, spender common.Address) *big.Int
}

// Options configures a deployment.
type Options struct {
	// Admin receives the admin and fee manager roles.
	Admin common.Address
	// Store records cancelled and consumed listings. Defaults to memory.
	Store   registry.Store
	Sink    events.Sink
	Metrics metrics.Recorder
	Logger  *logrus.Logger
}

// Protocol is one deployed renting protocol.
type Protocol struct {
	address  common.Address
	backend  Backend
	domain   *chain.EIP712Domain
	roles    *access.Roles
	seq      *sequencer.Sequencer
	payments *payment.Distributor
	metrics  metrics.Recorder
	logger   *logrus.Logger

	mu          sync.RWMutex
	fee         payment.Rate
	feeReceiver common.Address
}

// Deploy creates a renting protocol at a fresh address on backend.
// Collections must grant it the renting operator role.
func Deploy(backend Backend, opts Options) *Protocol {
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
	_ = roles.GrantRole(opts.Admin, access.FeeManagerRole, opts.Admin)

	p := &Protocol{
		address:  address,
		backend:  backend,
		domain:   chain.NewRentingDomain(backend.ChainID(), address),
		roles:    roles,
		payments: payment.NewDistributor(backend, address, opts.Logger),
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		fee:      payment.BasisPoints(0),
	}
	p.seq = sequencer.New(address, backend, opts.Store,
		sequencer.WithSink(opts.Sink),
		sequencer.WithMetrics(opts.Metrics),
		sequencer.WithLogger(opts.Logger),
	)
	backend.Register(address, p)

	opts.Logger.WithFields(logrus.Fields{
		"address":  address.Hex(),
		"admin":    opts.Admin.Hex(),
		"chain_id": backend.ChainID().String(),
	}).Info("Renting protocol deployed")
	return p
}

func (p *Protocol) Address() common.Address     { return p.address }
func (p *Protocol) Domain() *chain.EIP712Domain { return p.domain }
func (p *Protocol) Roles() *access.Roles        { return p.roles }

// ProtocolFee returns the fee charged on every rent.
func (p *Protocol) ProtocolFee() payment.Rate {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fee
}

// ProtocolFeeReceiver returns the account fees are paid to.
func (p *Protocol) ProtocolFeeReceiver() common.Address {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.feeReceiver
}

// IsCancelled reports whether a listing was cancelled or consumed.
func (p *Protocol) IsCancelled(ctx context.Context, sigHash common.Hash) (bool, error) {
	return p.seq.Store().IsCancelled(ctx, sigHash)
}

// SetProtocolFeeBasisPoints sets the fee to bps/10000.
func (p *Protocol) SetProtocolFeeBasisPoints(ctx context.Context, caller common.Address, bps uint64) (*sequencer.Receipt, error) {
	return p.seq.Run(ctx, "setProtocolFeeBasisPoints", caller, func(*sequencer.Call) error {
		if err := p.roles.Require(access.FeeManagerRole, caller, ReasonNotFeeManager); err != nil {
			return err
		}
		if bps > MaxProtocolFeeBasisPoints {
			return chain.ErrInvalidConfig.WithReason(ReasonFeeTooHigh)
		}
		p.setFee(payment.BasisPoints(bps))
		return nil
	})
}

// SetProtocolFeeCustom sets the fee to numerator/denominator, at most one half.
func (p *Protocol) SetProtocolFeeCustom(ctx context.Context, caller common.Address, numerator, denominator *big.Int) (*sequencer.Receipt, error) {
	return p.seq.Run(ctx, "setProtocolFeeCustom", caller, func(*sequencer.Call) error {
		if err := p.roles.Require(access.FeeManagerRole, caller, ReasonNotFeeManager); err != nil {
			return err
		}
		rate, err := payment.NewRate(numerator, denominator)
		if err != nil {
			return chain.ErrInvalidConfig.WithReason(ReasonZeroDenominator)
		}
		double := new(big.Int).Lsh(rate.Numerator, 1)
		if double.Cmp(rate.Denominator) > 0 {
			return chain.ErrInvalidConfig.WithReason(ReasonNumeratorTooHigh)
		}
		p.setFee(rate)
		return nil
	})
}

// SetProtocolFeeReceiver sets the account fees are paid to. No fee is
// charged while the receiver is the zero address.
func (p *Protocol) SetProtocolFeeReceiver(ctx context.Context, caller, receiver common.Address) (*sequencer.Receipt, error) {
	return p.seq.Run(ctx, "setProtocolFeeReceiver", caller, func(*sequencer.Call) error {
		if err := p.roles.Require(access.FeeManagerRole, caller, ReasonNotFeeManager); err != nil {
			return err
		}
		p.mu.Lock()
		p.feeReceiver = receiver
		p.mu.Unlock()
		return nil
	})
}

func (p *Protocol) setFee(rate payment.Rate) {
	p.mu.Lock()
	p.fee = rate
	p.mu.Unlock()
}

func (p *Protocol) feeSplit() (payment.Rate, common.Address) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.feeReceiver == (common.Address{}) {
		return payment.Rate{}, common.Address{}
	}
	return p.fee, p.feeReceiver
}

func (p *Protocol) collection(addr common.Address) (Collection, error) {
	if addr == (common.Address{}) {
		return nil, chain.ErrInvalidTokenContract.WithReason(ReasonZeroTokenContract)
	}
	if c, ok := p.backend.Contract(addr); ok {
		if nft, ok := c.(Collection); ok && nft.SupportsInterface(chain.InterfaceIDERC721) {
			return nft, nil
		}
	}
	return nil, chain.ErrInvalidTokenContract.WithReason(ReasonNotERC721)
}
