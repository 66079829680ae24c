package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T) *OrderSigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return NewOrderSigner(key)
}

func TestSignAndVerify(t *testing.T) {
	signer := newTestSigner(t)
	domain := NewMarketplaceDomain(testChainID, testVerifier)

	signed, err := Sign(signer, domain, &SellOrder{
		Seller: signer.Address(), TokenContract: testCollection, TokenID: big.NewInt(10),
		SettlementToken: testERC20, SettlementPrice: big.NewInt(10000), Nonce: big.NewInt(0),
	})
	require.NoError(t, err)
	require.Len(t, signed.Signature, 65)
	assert.Contains(t, []byte{27, 28}, signed.Signature[64])

	require.NoError(t, Verify(domain, signed, "seller mismatch"))

	recovered, err := Recover(domain, signed)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
}

func TestVerifyRejectsTamperedOrder(t *testing.T) {
	signer := newTestSigner(t)
	domain := NewMarketplaceDomain(testChainID, testVerifier)

	signed, err := Sign(signer, domain, &SellOrder{
		Seller: signer.Address(), TokenContract: testCollection, TokenID: big.NewInt(10),
		SettlementToken: testERC20, SettlementPrice: big.NewInt(10000), Nonce: big.NewInt(0),
	})
	require.NoError(t, err)

	signed.Order.SettlementPrice = big.NewInt(1)
	err = Verify(domain, signed, "seller mismatch")
	require.ErrorIs(t, err, ErrSignerMismatch)
	assert.EqualError(t, err, "seller mismatch")
}

func TestVerifyRejectsOtherDomain(t *testing.T) {
	signer := newTestSigner(t)
	market := NewMarketplaceDomain(testChainID, testVerifier)
	renting := NewRentingDomain(testChainID, testVerifier)

	signed, err := Sign(signer, market, &Bid{
		Bidder: signer.Address(), TokenContract: testCollection, TokenID: big.NewInt(1),
		SettlementToken: testERC20, BidValue: big.NewInt(5), Nonce: big.NewInt(0),
	})
	require.NoError(t, err)

	assert.ErrorIs(t, Verify(renting, signed, "bidder mismatch"), ErrSignerMismatch)
}

func TestVerifyRejectsForeignSigner(t *testing.T) {
	alice := newTestSigner(t)
	bob := newTestSigner(t)
	domain := NewMarketplaceDomain(testChainID, testVerifier)

	signed, err := Sign(bob, domain, &Offer{
		Buyer: alice.Address(), TokenContract: testCollection, TokenID: big.NewInt(1),
		SettlementToken: testERC20, SettlementPrice: big.NewInt(5), Deadline: big.NewInt(100), Nonce: big.NewInt(0),
	})
	require.NoError(t, err)

	assert.ErrorIs(t, Verify(domain, signed, "buyer mismatch"), ErrSignerMismatch)
}

func TestRecoverSignerRejectsMalformedSignatures(t *testing.T) {
	signer := newTestSigner(t)
	digest := crypto.Keccak256Hash([]byte("digest"))
	signature, err := signer.SignHash(digest)
	require.NoError(t, err)

	_, err = RecoverSigner(digest, signature[:64])
	assert.ErrorIs(t, err, ErrInvalidSignatureFormat)

	// s' = n - s recovers a valid key but is malleable.
	n := crypto.S256().Params().N
	s := new(big.Int).SetBytes(signature[32:64])
	malleable := make([]byte, 65)
	copy(malleable, signature)
	copy(malleable[32:64], new(big.Int).Sub(n, s).FillBytes(make([]byte, 32)))
	malleable[64] = 27 + (1 - (signature[64] - 27))
	_, err = RecoverSigner(digest, malleable)
	assert.ErrorIs(t, err, ErrInvalidSignatureFormat)

	recovered, err := RecoverSigner(digest, signature)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
}

func TestSignatureHashIsSignatureIdentity(t *testing.T) {
	signer := newTestSigner(t)
	domain := NewMarketplaceDomain(testChainID, testVerifier)
	order := &SellOrder{
		Seller: signer.Address(), TokenContract: testCollection, TokenID: big.NewInt(10),
		SettlementToken: testERC20, SettlementPrice: big.NewInt(10000), Nonce: big.NewInt(0),
	}

	signed, err := Sign(signer, domain, order)
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256Hash(signed.Signature), signed.SigHash())

	// A second valid signature over the same order is a separate entry.
	digest := CreateSignHash(domain, order)
	alt := make([]byte, 65)
	copy(alt, signed.Signature)
	alt[64] -= 27
	recovered, err := RecoverSigner(digest, alt)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
	assert.NotEqual(t, signed.SigHash(), SignatureHash(alt))
}

func TestNewOrderSignerFromHex(t *testing.T) {
	signer, err := NewOrderSignerFromHex("0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", signer.Address().Hex())

	_, err = NewOrderSignerFromHex("not-a-key")
	assert.Error(t, err)
}

func TestRandomNonce(t *testing.T) {
	a, err := RandomNonce()
	require.NoError(t, err)
	b, err := RandomNonce()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyRejectsValuesAliasedModulo2To256(t *testing.T) {
	signer := newTestSigner(t)
	domain := NewMarketplaceDomain(testChainID, testVerifier)
	twoTo256 := new(big.Int).Lsh(big.NewInt(1), 256)

	signed, err := Sign(signer, domain, &SellOrder{
		Seller: signer.Address(), TokenContract: testCollection, TokenID: big.NewInt(10),
		SettlementToken: NativeCurrency, SettlementPrice: big.NewInt(10000), Nonce: big.NewInt(0),
	})
	require.NoError(t, err)
	digest := CreateSignHash(domain, signed.Order)

	tampered := map[string]func(o *SellOrder){
		"negative price": func(o *SellOrder) { o.SettlementPrice = new(big.Int).Sub(big.NewInt(10000), twoTo256) },
		"wide price":     func(o *SellOrder) { o.SettlementPrice = new(big.Int).Add(big.NewInt(10000), twoTo256) },
		"wide token id":  func(o *SellOrder) { o.TokenID = new(big.Int).Add(big.NewInt(10), twoTo256) },
		"negative nonce": func(o *SellOrder) { o.Nonce = new(big.Int).Neg(twoTo256) },
	}
	for name, mutate := range tampered {
		t.Run(name, func(t *testing.T) {
			order := *signed.Order
			mutate(&order)
			forged := &Signed[*SellOrder]{Order: &order, Signature: signed.Signature}

			// ABI packing reduces the value, so the digest alone cannot tell them apart.
			assert.Equal(t, digest, CreateSignHash(domain, forged.Order))

			err := Verify(domain, forged, "seller mismatch")
			assert.ErrorIs(t, err, ErrSignerMismatch)
			assert.EqualError(t, err, "seller mismatch")

			_, err = Recover(domain, forged)
			assert.ErrorIs(t, err, ErrValueOutOfRange)
		})
	}
}

func TestCheckUint256(t *testing.T) {
	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	assert.NoError(t, CheckUint256(&Bid{BidValue: maxUint256}))
	assert.NoError(t, CheckUint256(&Bid{}))
	assert.NoError(t, CheckUint256((*Bid)(nil)))

	err := CheckUint256(&RentListing{DailyPrice: big.NewInt(-1)})
	assert.ErrorIs(t, err, ErrValueOutOfRange)
	assert.EqualError(t, err, "DailyPrice is out of the uint256 range")

	err = CheckUint256(&BidMultiple{Amount: new(big.Int).Add(maxUint256, big.NewInt(1))})
	assert.EqualError(t, err, "Amount is out of the uint256 range")
}

func TestSignRefusesOutOfRangeFields(t *testing.T) {
	signer := newTestSigner(t)
	_, err := Sign(signer, NewMarketplaceDomain(testChainID, testVerifier), &SellOrder{
		Seller:          signer.Address(),
		TokenContract:   testCollection,
		TokenID:         big.NewInt(-1),
		SettlementPrice: big.NewInt(1),
	})
	assert.EqualError(t, err, "TokenID is out of the uint256 range")
}
