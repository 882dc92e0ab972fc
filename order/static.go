// Copyright (c) 2025 Lux Partners Limited
// SPDX-License-Identifier: MIT

package order

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Static is a pre-built order carrying its protocol-native encoding
// verbatim. Upstream order builders hand the router Static values when the
// order was constructed and signed elsewhere (order-book API responses,
// previously stored fills).
type Static struct {
	OrderKind Kind
	Price     *big.Int
	Fillable  *big.Int
	Raw       []byte
	// Counter, when set, is the pre-built taker-side matching order.
	Counter []byte
	// ExtraFees are protocol fees charged on top of Price (ZeroExV4).
	ExtraFees []Fee
	// CustodyKey, when set, marks the order as held by the off-chain
	// custody service under that key.
	CustodyKey string
}

var _ Order = (*Static)(nil)

// Kind implements Order.
func (s *Static) Kind() Kind { return s.OrderKind }

// SettlementPrice implements Order.
func (s *Static) SettlementPrice() *big.Int {
	if s.Price == nil {
		return new(big.Int)
	}
	return s.Price
}

// FillableAmount implements Order.
func (s *Static) FillableAmount() *big.Int {
	if s.Fillable == nil || s.Fillable.Sign() == 0 {
		return big.NewInt(1)
	}
	return s.Fillable
}

// MatchingCounterOrder implements Order.
func (s *Static) MatchingCounterOrder(taker common.Address) ([]byte, error) {
	if len(s.Counter) == 0 {
		return nil, errors.New("order has no matching counter order")
	}
	out := make([]byte, len(s.Counter))
	copy(out, s.Counter)
	return out, nil
}

// RawEncodedForm implements Order.
func (s *Static) RawEncodedForm() ([]byte, error) {
	if len(s.Raw) == 0 {
		return nil, errors.New("order has no raw encoded form")
	}
	out := make([]byte, len(s.Raw))
	copy(out, s.Raw)
	return out, nil
}

// AdditionalFees implements FeeBearing for kinds whose fees are additive.
func (s *Static) AdditionalFees() []Fee { return s.ExtraFees }

// ReleaseKey implements Releasable.
func (s *Static) ReleaseKey() string { return s.CustodyKey }
