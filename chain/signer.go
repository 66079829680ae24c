package chain

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// OrderSigner signs EIP712 digests with a single secp256k1 key.
type OrderSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewOrderSigner creates a new OrderSigner
func NewOrderSigner(key *ecdsa.PrivateKey) *OrderSigner {
	return &OrderSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// NewOrderSignerFromHex parses a hex private key, with or without 0x prefix.
func NewOrderSignerFromHex(privateKeyHex string) (*OrderSigner, error) {
	if len(privateKeyHex) > 1 && privateKeyHex[:2] == "0x" {
		privateKeyHex = privateKeyHex[2:]
	}
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewOrderSigner(key), nil
}

// Address returns the address of the signer
func (s *OrderSigner) Address() common.Address {
	return s.address
}

// SignHash signs a 32-byte digest and returns r ++ s ++ v with v in {27, 28}.
func (s *OrderSigner) SignHash(digest common.Hash) ([]byte, error) {
	signature, err := crypto.Sign(digest.Bytes(), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}

	// Add recovery ID
	signature[64] += 27
	return signature, nil
}

// Sign signs order under domain. Orders with out of range integer fields
// are refused.
func Sign[T Order](s *OrderSigner, domain *EIP712Domain, order T) (*Signed[T], error) {
	if err := CheckUint256(order); err != nil {
		return nil, err
	}
	signature, err := s.SignHash(CreateSignHash(domain, order))
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s: %w", order.Kind(), err)
	}
	return &Signed[T]{Order: order, Signature: signature}, nil
}

// RecoverSigner returns the address that produced signature over digest.
// Malleable (high-s) signatures are rejected.
func RecoverSigner(digest common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, ErrInvalidSignatureFormat.WithReason("ECDSA: invalid signature length")
	}

	sig := make([]byte, crypto.SignatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	r := new(big.Int).SetBytes(sig[:32])
	sv := new(big.Int).SetBytes(sig[32:64])
	if !crypto.ValidateSignatureValues(sig[64], r, sv, true) {
		return common.Address{}, ErrInvalidSignatureFormat.WithReason("ECDSA: invalid signature 's' value")
	}

	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, ErrInvalidSignatureFormat
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify re-derives the digest of signed under domain and checks that it was
// signed by the order's initiator. A mismatch fails with ErrSignerMismatch
// carrying reason; an unparseable signature or an out of range field counts
// as a mismatch.
func Verify[T Order](domain *EIP712Domain, signed *Signed[T], reason string) error {
	if CheckUint256(signed.Order) != nil {
		return ErrSignerMismatch.WithReason(reason)
	}
	signer, err := RecoverSigner(CreateSignHash(domain, signed.Order), signed.Signature)
	if err != nil || signer != signed.Order.Initiator() {
		return ErrSignerMismatch.WithReason(reason)
	}
	return nil
}

// Recover returns the address that signed signed under domain.
func Recover[T Order](domain *EIP712Domain, signed *Signed[T]) (common.Address, error) {
	if err := CheckUint256(signed.Order); err != nil {
		return common.Address{}, err
	}
	return RecoverSigner(CreateSignHash(domain, signed.Order), signed.Signature)
}

// SignatureHash is keccak256 over the raw signature bytes. Two signatures
// over the same order are distinct registry entries.
func SignatureHash(signature []byte) common.Hash {
	return crypto.Keccak256Hash(signature)
}

// RandomNonce returns a random 64-bit nonce for a new order.
func RandomNonce() (*big.Int, error) {
	n, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return n, nil
}
