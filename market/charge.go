package market

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kaifufi/nftspace-settlement-go/chain"
	"github.com/kaifufi/nftspace-settlement-go/payment"
)

// charge is a payment owed by payer to seller for one order.
type charge struct {
	payer           common.Address
	seller          common.Address
	settlementToken common.Address
	price           *big.Int
	// nativeReason is raised when the attached value does not cover price.
	nativeReason string
	// tokenReason is raised when settlementToken is not allowed.
	tokenReason string
}

// collect pays ch in the order's settlement asset. Native payments come out
// of purse; ERC20 payments are pulled from the payer. A nil purse means the
// payer is not the caller, so only ERC20 settlement is possible.
func (m *Marketplace) collect(ch charge, purse *payment.Purse) (payment.Shares, error) {
	if ch.nativeReason == "" {
		ch.nativeReason = chain.ErrInsufficientFunds.Reason
	}
	if ch.tokenReason == "" {
		ch.tokenReason = chain.ErrTokenNotApproved.Reason
	}
	rate, beneficiary := m.commission()
	s := payment.Settlement{
		Payer:       ch.payer,
		Seller:      ch.seller,
		Beneficiary: beneficiary,
		Price:       orZero(ch.price),
		Rate:        rate,
		Purse:       purse,
		FundsReason: ch.nativeReason,
	}

	if ch.settlementToken == chain.NativeCurrency && purse != nil {
		if !purse.Covers(s.Price) {
			return payment.Shares{}, chain.ErrInsufficientFunds.WithReason(ch.nativeReason)
		}
		return m.payments.Settle(s)
	}

	token, ok := m.erc20(ch.settlementToken)
	if !ok || !m.SettlementTokenStatus(ch.settlementToken) {
		return payment.Shares{}, chain.ErrTokenNotApproved.WithReason(ch.tokenReason)
	}
	s.Token = token
	return m.payments.Settle(s)
}
