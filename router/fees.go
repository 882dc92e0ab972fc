// Copyright (c) 2025 Lux Partners Limited
// SPDX-License-Identifier: MIT

package router

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/luxfi/aggregator/order"
)

// ProportionalFees computes the fee list for one protocol group: the
// batch-wide global fees scaled by the group's share of the batch (by item
// count, floor division), followed by each member's own local fees
// unscaled. Zero-amount and zero-recipient entries are dropped because some
// module contracts reject them.
//
// The count-proportional split is an approximation: a flat referral fee is
// spread by how many of the batch's items the group is responsible for, not
// by value. Truncation can lose at most one wei per global fee across all
// groups; it never fabricates value.
func ProportionalFees(group []*order.ListingDetail, batchSize int, global []order.Fee) []order.Fee {
	fees := make([]order.Fee, 0, len(global)+len(group))

	if batchSize > 0 {
		m := big.NewInt(int64(len(group)))
		n := big.NewInt(int64(batchSize))
		for _, f := range global {
			if !feeUsable(f) {
				continue
			}
			share := new(big.Int).Mul(f.Amount, m)
			share.Div(share, n)
			if share.Sign() == 0 {
				continue
			}
			fees = append(fees, order.Fee{Recipient: f.Recipient, Amount: share})
		}
	}

	for _, d := range group {
		for _, f := range d.Fees {
			if !feeUsable(f) {
				continue
			}
			fees = append(fees, order.Fee{Recipient: f.Recipient, Amount: new(big.Int).Set(f.Amount)})
		}
	}

	return fees
}

// FilterFees drops zero-amount and zero-recipient entries from a flat list.
func FilterFees(fees []order.Fee) []order.Fee {
	out := make([]order.Fee, 0, len(fees))
	for _, f := range fees {
		if feeUsable(f) {
			out = append(out, order.Fee{Recipient: f.Recipient, Amount: new(big.Int).Set(f.Amount)})
		}
	}
	return out
}

// feeTotal sums fee amounts.
func feeTotal(fees []order.Fee) *big.Int {
	total := new(big.Int)
	for _, f := range fees {
		if f.Amount != nil {
			total.Add(total, f.Amount)
		}
	}
	return total
}

func feeUsable(f order.Fee) bool {
	return f.Amount != nil && f.Amount.Sign() > 0 && f.Recipient != (common.Address{})
}
