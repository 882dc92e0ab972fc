// Copyright (c) 2025 Lux Partners Limited
// SPDX-License-Identifier: MIT

// Package escrow synthesizes the side-steps that move an asset into the
// router's custody without the owner ever granting a standing operator
// approval: either a matched pair of orders on a protocol with atomic order
// matching, or a signed time-boxed batch-allowance permit. Both require a
// fresh nonce from the owning protocol and are signature-verified before
// being trusted.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/luxfi/aggregator/order"
)

var (
	// ErrBadSignature means a synthesized artifact did not recover to its
	// claimed owner and must not be used.
	ErrBadSignature = errors.New("signature does not recover to owner")
)

// Token identifies one asset to move.
type Token struct {
	Contract common.Address
	TokenID  *big.Int
	Amount   *big.Int
	Kind     order.ContractKind
}

// NonceSource reads the owner's current counter from the owning protocol.
type NonceSource interface {
	Nonce(ctx context.Context, owner common.Address) (*big.Int, error)
}

// Signer signs 32-byte digests on behalf of an address.
type Signer interface {
	Address() common.Address
	SignDigest(digest common.Hash) ([]byte, error)
}

// EIP-712 type definitions for the batch-allowance permit.
var (
	domainTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	permitTypeHash = crypto.Keccak256Hash([]byte("BatchTransferPermit(address giver,address receiver,bytes32 tokensHash,uint256 nonce,uint256 deadline)"))
	tokenTypeHash  = crypto.Keccak256Hash([]byte("PermitToken(address contract,uint256 tokenId,uint256 amount,uint8 kind)"))

	domainName    = crypto.Keccak256Hash([]byte("RouterPermit"))
	domainVersion = crypto.Keccak256Hash([]byte("1"))
)

// Permit is a signed one-time, time-boxed batch allowance.
type Permit struct {
	Giver     common.Address
	Receiver  common.Address
	Tokens    []Token
	Nonce     *big.Int
	Deadline  *big.Int
	Signature []byte

	chainID  uint64
	verifier common.Address
}

// Pair is a matched escrow/mirror order pair: a real order offering the
// asset with the receiver as sole consideration recipient, and a zero-offer
// mirror from the receiver. Submitted together, the protocol's matching
// engine moves the asset atomically.
type Pair struct {
	Offer  []byte
	Mirror []byte
	Nonce  *big.Int
}

// Synthesizer builds permits and escrow pairs against one matching-capable
// protocol deployment.
type Synthesizer struct {
	chainID  uint64
	verifier common.Address
	nonces   NonceSource
}

// NewSynthesizer creates a Synthesizer. verifier is the contract that will
// consume the synthesized artifacts (the permit module or the matching
// exchange).
func NewSynthesizer(chainID uint64, verifier common.Address, nonces NonceSource) *Synthesizer {
	return &Synthesizer{chainID: chainID, verifier: verifier, nonces: nonces}
}

// Permit builds and signature-verifies a batch-allowance permit that
// authorizes moving tokens from the giver to the receiver until deadline.
func (s *Synthesizer) Permit(ctx context.Context, giver Signer, receiver common.Address, tokens []Token, ttl time.Duration) (*Permit, error) {
	if len(tokens) == 0 {
		return nil, errors.New("no tokens to permit")
	}
	nonce, err := s.nonces.Nonce(ctx, giver.Address())
	if err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}

	p := &Permit{
		Giver:    giver.Address(),
		Receiver: receiver,
		Tokens:   tokens,
		Nonce:    nonce,
		Deadline: big.NewInt(time.Now().Add(ttl).Unix()),
		chainID:  s.chainID,
		verifier: s.verifier,
	}

	sig, err := giver.SignDigest(p.Digest())
	if err != nil {
		return nil, fmt.Errorf("sign permit: %w", err)
	}
	p.Signature = sig

	if err := p.Verify(); err != nil {
		return nil, err
	}
	return p, nil
}

// PairedOrders builds the escrow/mirror order pair. The giver signs the
// offer-side order over the same domain the matching exchange verifies.
func (s *Synthesizer) PairedOrders(ctx context.Context, giver Signer, receiver common.Address, tokens []Token) (*Pair, error) {
	if len(tokens) == 0 {
		return nil, errors.New("no tokens to escrow")
	}
	nonce, err := s.nonces.Nonce(ctx, giver.Address())
	if err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}

	offer, err := packEscrowOrder(giver.Address(), receiver, tokens, nonce)
	if err != nil {
		return nil, err
	}
	digest := escrowDigest(s.chainID, s.verifier, offer)
	sig, err := giver.SignDigest(digest)
	if err != nil {
		return nil, fmt.Errorf("sign escrow order: %w", err)
	}
	if err := verifyDigest(digest, sig, giver.Address()); err != nil {
		return nil, err
	}

	// The mirror order offers nothing; it exists so the matching engine
	// has a taker side and needs no signature of its own.
	mirror, err := packEscrowOrder(receiver, giver.Address(), nil, nonce)
	if err != nil {
		return nil, err
	}

	signed, err := packSigned(offer, sig)
	if err != nil {
		return nil, err
	}
	return &Pair{Offer: signed, Mirror: mirror, Nonce: nonce}, nil
}

// Digest is the EIP-712 signing hash of the permit.
func (p *Permit) Digest() common.Hash {
	domain := crypto.Keccak256(
		domainTypeHash.Bytes(),
		domainName.Bytes(),
		domainVersion.Bytes(),
		common.BigToHash(new(big.Int).SetUint64(p.chainID)).Bytes(),
		common.BytesToHash(p.verifier.Bytes()).Bytes(),
	)

	tokenHashes := make([]byte, 0, len(p.Tokens)*32)
	for _, t := range p.Tokens {
		amount := t.Amount
		if amount == nil {
			amount = big.NewInt(1)
		}
		h := crypto.Keccak256(
			tokenTypeHash.Bytes(),
			common.BytesToHash(t.Contract.Bytes()).Bytes(),
			common.BigToHash(t.TokenID).Bytes(),
			common.BigToHash(amount).Bytes(),
			common.BigToHash(big.NewInt(int64(t.Kind))).Bytes(),
		)
		tokenHashes = append(tokenHashes, h...)
	}

	structHash := crypto.Keccak256(
		permitTypeHash.Bytes(),
		common.BytesToHash(p.Giver.Bytes()).Bytes(),
		common.BytesToHash(p.Receiver.Bytes()).Bytes(),
		crypto.Keccak256(tokenHashes),
		common.BigToHash(p.Nonce).Bytes(),
		common.BigToHash(p.Deadline).Bytes(),
	)

	return crypto.Keccak256Hash([]byte("\x19\x01"), domain, structHash)
}

// Verify recovers the signature and checks it matches the giver.
func (p *Permit) Verify() error {
	return verifyDigest(p.Digest(), p.Signature, p.Giver)
}

// Expired reports whether the permit's deadline has passed.
func (p *Permit) Expired(now time.Time) bool {
	return p.Deadline != nil && p.Deadline.Cmp(big.NewInt(now.Unix())) < 0
}

const sigTransferWithPermit = "transferWithPermit(((address,uint256,uint256,uint8)[],address,address,uint256,uint256),bytes)"

var (
	typePermit = mustType("tuple", []abi.ArgumentMarshaling{
		{Name: "tokens", Type: "tuple[]", Components: []abi.ArgumentMarshaling{
			{Name: "token", Type: "address"},
			{Name: "tokenId", Type: "uint256"},
			{Name: "amount", Type: "uint256"},
			{Name: "kind", Type: "uint8"},
		}},
		{Name: "giver", Type: "address"},
		{Name: "receiver", Type: "address"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	})
	typeBytes = mustType("bytes", nil)

	typeEscrowOrder = mustType("tuple", []abi.ArgumentMarshaling{
		{Name: "maker", Type: "address"},
		{Name: "recipient", Type: "address"},
		{Name: "tokens", Type: "tuple[]", Components: []abi.ArgumentMarshaling{
			{Name: "token", Type: "address"},
			{Name: "tokenId", Type: "uint256"},
			{Name: "amount", Type: "uint256"},
			{Name: "kind", Type: "uint8"},
		}},
		{Name: "nonce", Type: "uint256"},
	})
)

type permitToken struct {
	Token   common.Address
	TokenId *big.Int
	Amount  *big.Int
	Kind    uint8
}

type permitStruct struct {
	Tokens   []permitToken
	Giver    common.Address
	Receiver common.Address
	Nonce    *big.Int
	Deadline *big.Int
}

type escrowOrder struct {
	Maker     common.Address
	Recipient common.Address
	Tokens    []permitToken
	Nonce     *big.Int
}

func mustType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(fmt.Sprintf("abi type %s: %v", t, err))
	}
	return typ
}

func permitTokens(tokens []Token) []permitToken {
	out := make([]permitToken, 0, len(tokens))
	for _, t := range tokens {
		amount := t.Amount
		if amount == nil {
			amount = big.NewInt(1)
		}
		tokenID := t.TokenID
		if tokenID == nil {
			tokenID = new(big.Int)
		}
		out = append(out, permitToken{Token: t.Contract, TokenId: tokenID, Amount: amount, Kind: uint8(t.Kind)})
	}
	return out
}

// ExecutionInfo wraps the verified permit as the execution entry spliced in
// front of the real fills.
func (p *Permit) ExecutionInfo(module common.Address) (order.ExecutionInfo, error) {
	if err := p.Verify(); err != nil {
		return order.ExecutionInfo{}, err
	}
	packed, err := abi.Arguments{{Type: typePermit}, {Type: typeBytes}}.Pack(permitStruct{
		Tokens:   permitTokens(p.Tokens),
		Giver:    p.Giver,
		Receiver: p.Receiver,
		Nonce:    p.Nonce,
		Deadline: p.Deadline,
	}, p.Signature)
	if err != nil {
		return order.ExecutionInfo{}, fmt.Errorf("pack permit: %w", err)
	}
	data := append(crypto.Keccak256([]byte(sigTransferWithPermit))[:4], packed...)
	return order.ExecutionInfo{Module: module, Data: data, Value: new(big.Int)}, nil
}

func packEscrowOrder(maker, recipient common.Address, tokens []Token, nonce *big.Int) ([]byte, error) {
	packed, err := abi.Arguments{{Type: typeEscrowOrder}}.Pack(escrowOrder{
		Maker:     maker,
		Recipient: recipient,
		Tokens:    permitTokens(tokens),
		Nonce:     nonce,
	})
	if err != nil {
		return nil, fmt.Errorf("pack escrow order: %w", err)
	}
	return packed, nil
}

func packSigned(orderData, sig []byte) ([]byte, error) {
	packed, err := abi.Arguments{{Type: typeBytes}, {Type: typeBytes}}.Pack(orderData, sig)
	if err != nil {
		return nil, fmt.Errorf("pack signed order: %w", err)
	}
	return packed, nil
}

func escrowDigest(chainID uint64, verifier common.Address, orderData []byte) common.Hash {
	domain := crypto.Keccak256(
		domainTypeHash.Bytes(),
		domainName.Bytes(),
		domainVersion.Bytes(),
		common.BigToHash(new(big.Int).SetUint64(chainID)).Bytes(),
		common.BytesToHash(verifier.Bytes()).Bytes(),
	)
	return crypto.Keccak256Hash([]byte("\x19\x01"), domain, crypto.Keccak256(orderData))
}

func verifyDigest(digest common.Hash, sig []byte, owner common.Address) error {
	if len(sig) != 65 {
		return fmt.Errorf("%w: bad signature length %d", ErrBadSignature, len(sig))
	}
	// Normalize the recovery id; signers emit either 0/1 or 27/28.
	s := make([]byte, 65)
	copy(s, sig)
	if s[64] >= 27 {
		s[64] -= 27
	}
	pub, err := crypto.SigToPub(digest.Bytes(), s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if crypto.PubkeyToAddress(*pub) != owner {
		return ErrBadSignature
	}
	return nil
}
