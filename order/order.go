// Copyright (c) 2025 Lux Partners Limited
// SPDX-License-Identifier: MIT

// Package order defines the protocol-tagged order union consumed by the
// fill router: listing and bid details, fees, execution entries, and the
// facade interface through which per-protocol order objects are driven.
package order

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Kind identifies the exchange protocol an order belongs to. The set is
// closed: the router switches exhaustively over it and rejects anything it
// does not recognize.
type Kind int

const (
	KindUnknown Kind = iota
	KindSeaport
	KindSeaportPartial
	KindLooksRare
	KindX2Y2
	KindZeroExV4ERC721
	KindZeroExV4ERC1155
	KindZora
	KindRarible
	KindSudoswap
	KindFoundation
	KindCryptoPunks
	KindForward
	KindUniverse
	KindElement
	KindBlur
	KindManifold
	KindInfinity
	KindNFTX
)

var kindNames = map[Kind]string{
	KindSeaport:         "seaport",
	KindSeaportPartial:  "seaport-partial",
	KindLooksRare:       "looks-rare",
	KindX2Y2:            "x2y2",
	KindZeroExV4ERC721:  "zeroex-v4-erc721",
	KindZeroExV4ERC1155: "zeroex-v4-erc1155",
	KindZora:            "zora",
	KindRarible:         "rarible",
	KindSudoswap:        "sudoswap",
	KindFoundation:      "foundation",
	KindCryptoPunks:     "cryptopunks",
	KindForward:         "forward",
	KindUniverse:        "universe",
	KindElement:         "element",
	KindBlur:            "blur",
	KindManifold:        "manifold",
	KindInfinity:        "infinity",
	KindNFTX:            "nftx",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// ParseKind resolves a protocol name to its Kind. Returns KindUnknown for
// names outside the supported set.
func ParseKind(name string) Kind {
	for k, n := range kindNames {
		if n == name {
			return k
		}
	}
	return KindUnknown
}

// Batchable reports whether more than one order of this kind can be filled
// through the aggregator in a single module call. Blur and Manifold predate
// the modular aggregator and only support direct single-order fills.
func (k Kind) Batchable() bool {
	switch k {
	case KindBlur, KindManifold:
		return false
	}
	return true
}

// FeeCapable reports whether the kind's fill path accepts a trailing fee
// array. Direct-fill integrations take no fees.
func (k Kind) FeeCapable() bool {
	return k.Batchable()
}

// PartialFillable reports whether orders of this kind carry a quantity that
// can be consumed across multiple fills.
func (k Kind) PartialFillable() bool {
	switch k {
	case KindSeaportPartial, KindZeroExV4ERC1155:
		return true
	}
	return false
}

// ExternallySigned reports whether encoding a fill of this kind depends on a
// fallible per-order call to an off-chain service. Only these kinds are
// eligible for the caller's skip-on-error policy.
func (k Kind) ExternallySigned() bool {
	switch k {
	case KindX2Y2, KindZeroExV4ERC721, KindZeroExV4ERC1155:
		return true
	}
	return false
}

// DirectBidFill reports whether bids of this kind are filled straight on the
// exchange contract with no router indirection.
func (k Kind) DirectBidFill() bool {
	switch k {
	case KindBlur, KindManifold:
		return true
	}
	return false
}

// ContractKind distinguishes the two supported token standards.
type ContractKind int

const (
	ERC721 ContractKind = iota
	ERC1155
)

func (c ContractKind) String() string {
	if c == ERC1155 {
		return "erc1155"
	}
	return "erc721"
}

// Fee is a payout attached to a fill: a flat amount to a recipient.
// Zero-amount and zero-recipient fees are dropped before encoding because
// several module contracts reject them.
type Fee struct {
	Recipient common.Address `json:"recipient"`
	Amount    *big.Int       `json:"amount"`
}

// ExecutionInfo is one call the aggregator contract will make: a module
// address, opaque calldata, and the native value forwarded with the call.
// Ordering between entries is significant; earlier entries may produce
// outputs (wrapped currency, escrowed assets) consumed by later ones.
type ExecutionInfo struct {
	Module common.Address
	Data   []byte
	Value  *big.Int
}

// TxData is the assembled transaction the caller submits.
type TxData struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Data  []byte         `json:"data"`
	Value *big.Int       `json:"value"`
}

// Order is the facade over a built, signed per-protocol order object. The
// router only ever drives orders through this interface; construction,
// hashing and validity checking happen upstream.
type Order interface {
	// Kind tags the protocol the order belongs to.
	Kind() Kind
	// SettlementPrice is the price for filling the entire order, in the
	// order's settlement currency.
	SettlementPrice() *big.Int
	// FillableAmount is the total quantity the order can still fill.
	// Non-quantity protocols report 1.
	FillableAmount() *big.Int
	// MatchingCounterOrder builds the taker-side order the protocol's
	// matching engine pairs against this one.
	MatchingCounterOrder(taker common.Address) ([]byte, error)
	// RawEncodedForm is the protocol-native encoding of the order, passed
	// opaquely to the protocol's module contract.
	RawEncodedForm() ([]byte, error)
}

// FeeBearing is implemented by orders whose protocol charges fees on top of
// the settlement price rather than embedding them in it (ZeroExV4).
type FeeBearing interface {
	AdditionalFees() []Fee
}

// Releasable is implemented by orders held by an off-chain custody service
// that must release them before they become fillable (ZeroExV4 cb orders).
type Releasable interface {
	ReleaseKey() string
}

// ListingDetail describes one listing the caller wants to buy.
type ListingDetail struct {
	ContractKind ContractKind
	Contract     common.Address
	TokenID      *big.Int
	// Amount is the fill quantity; nil or zero means 1. Only meaningful
	// for partially fillable kinds.
	Amount   *big.Int
	Currency common.Address
	Fees     []Fee
	Order    Order
}

// Kind returns the protocol tag of the underlying order.
func (d *ListingDetail) Kind() Kind {
	if d.Order == nil {
		return KindUnknown
	}
	return d.Order.Kind()
}

// FillAmount normalizes the requested quantity, defaulting to 1.
func (d *ListingDetail) FillAmount() *big.Int {
	if d.Amount == nil || d.Amount.Sign() == 0 {
		return big.NewInt(1)
	}
	return d.Amount
}

// BidDetail describes one bid/offer the caller wants to accept by selling
// an asset into it.
type BidDetail struct {
	ContractKind ContractKind
	Contract     common.Address
	TokenID      *big.Int
	Amount       *big.Int
	Fees         []Fee
	Order        Order
}

// Kind returns the protocol tag of the underlying order.
func (d *BidDetail) Kind() Kind {
	if d.Order == nil {
		return KindUnknown
	}
	return d.Order.Kind()
}

// FillAmount normalizes the sell quantity, defaulting to 1.
func (d *BidDetail) FillAmount() *big.Int {
	if d.Amount == nil || d.Amount.Sign() == 0 {
		return big.NewInt(1)
	}
	return d.Amount
}
