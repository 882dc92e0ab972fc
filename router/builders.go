// Copyright (c) 2025 Lux Partners Limited
// SPDX-License-Identifier: MIT

package router

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/aggregator/order"
)

// listingGroup is a same-kind subsequence of the input detail list. The
// original indices are retained so results can be scattered back into the
// caller's arrays.
type listingGroup struct {
	kind    order.Kind
	indices []int
	details []*order.ListingDetail
}

// groupResult is the outcome of building one protocol group.
type groupResult struct {
	exec order.ExecutionInfo
	// included holds the original indices of details placed into the
	// execution; skipped holds those dropped under the caller's
	// skip-on-error policy.
	included []int
	skipped  []int
	// spend is the total settlement-currency amount this execution
	// consumes (price including protocol-additive fees, plus fee payouts).
	spend *big.Int
}

// prorate computes the payment owed for filling `fill` units of an order
// whose full price covers `total` units. Floor division, except quantity
// protocols where the unit price rounds up to avoid underpaying.
func prorate(price, fill, total *big.Int, roundUp bool) *big.Int {
	if total.Sign() == 0 || fill.Cmp(total) == 0 {
		return new(big.Int).Set(price)
	}
	num := new(big.Int).Mul(price, fill)
	if roundUp {
		num.Add(num, new(big.Int).Sub(total, big.NewInt(1)))
	}
	return num.Div(num, total)
}

// detailPayload resolves the bytes handed to the module for one detail.
// For most kinds this is the order's raw encoded form; X2Y2 payloads are
// fetched from the protocol's signing API, and ZeroExV4 cb orders must be
// released from off-chain custody first.
func (r *Router) detailPayload(ctx context.Context, kind order.Kind, d *order.ListingDetail, taker common.Address) ([]byte, error) {
	o := d.Order
	if rel, ok := o.(order.Releasable); ok && rel.ReleaseKey() != "" {
		if r.custody == nil {
			return nil, fmt.Errorf("order requires custody release but no custody client is configured")
		}
		if err := r.custody.Release(ctx, rel.ReleaseKey()); err != nil {
			return nil, fmt.Errorf("release custody order: %w", err)
		}
	}

	raw, err := o.RawEncodedForm()
	if err != nil {
		return nil, fmt.Errorf("encode order: %w", err)
	}

	if kind == order.KindX2Y2 {
		if r.x2y2 == nil {
			return nil, fmt.Errorf("x2y2 order requires a signing client but none is configured")
		}
		input, err := r.x2y2.FetchInput(ctx, raw, taker)
		if err != nil {
			return nil, fmt.Errorf("fetch x2y2 input: %w", err)
		}
		return input, nil
	}

	return raw, nil
}

// resolvePayloads fetches every group member's module payload. Lookups are
// read-only and order-independent, so externally-signed kinds are resolved
// concurrently; per-detail failures either abort the build or, when the
// caller opted in and the kind's generation is itself fallible, drop just
// that detail.
func (r *Router) resolvePayloads(ctx context.Context, g listingGroup, taker common.Address, skipErrors bool) (payloads [][]byte, kept []int, skipped []int, err error) {
	payloads = make([][]byte, len(g.details))
	errs := make([]error, len(g.details))

	if g.kind.ExternallySigned() {
		eg, egCtx := errgroup.WithContext(ctx)
		var mu sync.Mutex
		for i := range g.details {
			i := i
			eg.Go(func() error {
				p, perr := r.detailPayload(egCtx, g.kind, g.details[i], taker)
				mu.Lock()
				payloads[i], errs[i] = p, perr
				mu.Unlock()
				if perr != nil && !skipErrors {
					return perr
				}
				return nil
			})
		}
		if werr := eg.Wait(); werr != nil {
			return nil, nil, nil, werr
		}
	} else {
		for i := range g.details {
			payloads[i], errs[i] = r.detailPayload(ctx, g.kind, g.details[i], taker)
			if errs[i] != nil {
				return nil, nil, nil, errs[i]
			}
		}
	}

	for i := range g.details {
		if errs[i] != nil {
			skipped = append(skipped, g.indices[i])
			continue
		}
		kept = append(kept, i)
	}
	return payloads, kept, skipped, nil
}

// buildListingGroup emits exactly one ExecutionInfo for a non-empty
// same-kind group: the module's single-order entry point for one member,
// its batch entry point otherwise.
func (r *Router) buildListingGroup(ctx context.Context, g listingGroup, taker common.Address, batchSize int, opts ListingOptions) (groupResult, error) {
	module, err := r.reg.Module(g.kind)
	if err != nil {
		return groupResult{}, err
	}

	payloads, kept, skipped, err := r.resolvePayloads(ctx, g, taker, opts.SkipErrors)
	if err != nil {
		return groupResult{}, err
	}
	if len(kept) == 0 {
		return groupResult{skipped: skipped}, nil
	}

	roundUp := g.kind.PartialFillable()
	totalPrice := new(big.Int)
	orderData := make([][]byte, 0, len(kept))
	included := make([]int, 0, len(kept))
	keptDetails := make([]*order.ListingDetail, 0, len(kept))

	for _, i := range kept {
		d := g.details[i]
		o := d.Order
		pay := prorate(o.SettlementPrice(), d.FillAmount(), o.FillableAmount(), roundUp && d.ContractKind == order.ERC1155)
		// ZeroExV4 charges its fees on top of the settlement price.
		if fb, ok := o.(order.FeeBearing); ok {
			for _, f := range fb.AdditionalFees() {
				if f.Amount != nil {
					pay.Add(pay, f.Amount)
				}
			}
		}
		totalPrice.Add(totalPrice, pay)
		orderData = append(orderData, payloads[i])
		included = append(included, g.indices[i])
		keptDetails = append(keptDetails, d)
	}

	fees := ProportionalFees(keptDetails, batchSize, opts.GlobalFees)
	totalFees := feeTotal(fees)

	native := keptDetails[0].Currency == (common.Address{})
	revertIfIncomplete := !opts.Partial

	var data []byte
	if native {
		params := ethListingParams{
			FillTo:             taker,
			RefundTo:           taker,
			RevertIfIncomplete: revertIfIncomplete,
			Amount:             totalPrice,
		}
		if len(orderData) == 1 {
			data, err = packAcceptETHListing(orderData[0], params, fees)
		} else {
			data, err = packAcceptETHListings(orderData, params, fees)
		}
	} else {
		params := ercListingParams{
			Token:              keptDetails[0].Currency,
			FillTo:             taker,
			RefundTo:           taker,
			RevertIfIncomplete: revertIfIncomplete,
			Amount:             totalPrice,
		}
		if len(orderData) == 1 {
			data, err = packAcceptERC20Listing(orderData[0], params, fees)
		} else {
			data, err = packAcceptERC20Listings(orderData, params, fees)
		}
	}
	if err != nil {
		return groupResult{}, err
	}

	spend := new(big.Int).Add(totalPrice, totalFees)
	value := new(big.Int)
	if native {
		// Payment for ERC20-settled fills flows via a prior currency
		// leg, not via call value.
		value.Set(spend)
	}

	return groupResult{
		exec:     order.ExecutionInfo{Module: module, Data: data, Value: value},
		included: included,
		skipped:  skipped,
		spend:    spend,
	}, nil
}

// buildSeaportDirect builds the exchange's own fill transaction for a batch
// that lives entirely on the generic multi-item protocol. The aggregator
// wrapper adds gas overhead with no benefit when nothing needs
// cross-protocol composition, so this path bypasses it entirely.
func (r *Router) buildSeaportDirect(details []*order.ListingDetail, taker common.Address) (*order.TxData, error) {
	exchange, err := r.reg.Exchange(order.KindSeaport)
	if err != nil {
		return nil, err
	}

	value := new(big.Int)
	raws := make([][]byte, 0, len(details))
	for _, d := range details {
		raw, err := d.Order.RawEncodedForm()
		if err != nil {
			return nil, fmt.Errorf("encode order: %w", err)
		}
		raws = append(raws, raw)
		value.Add(value, prorate(d.Order.SettlementPrice(), d.FillAmount(), d.Order.FillableAmount(), false))
	}

	var data []byte
	if len(raws) == 1 {
		data, err = packFulfillOrder(raws[0], taker)
	} else {
		data, err = packFulfillOrders(raws, taker)
	}
	if err != nil {
		return nil, err
	}

	return &order.TxData{From: taker, To: exchange, Data: data, Value: value}, nil
}

// buildDirectListing builds the fill transaction for a single listing on a
// protocol that cannot go through the aggregator at all.
func (r *Router) buildDirectListing(d *order.ListingDetail, taker common.Address) (*order.TxData, error) {
	exchange, err := r.reg.Exchange(d.Kind())
	if err != nil {
		return nil, err
	}
	raw, err := d.Order.RawEncodedForm()
	if err != nil {
		return nil, fmt.Errorf("encode order: %w", err)
	}
	data, err := packDirectFill(raw, taker)
	if err != nil {
		return nil, err
	}
	value := new(big.Int)
	if d.Currency == (common.Address{}) {
		value = prorate(d.Order.SettlementPrice(), d.FillAmount(), d.Order.FillableAmount(), false)
	}
	return &order.TxData{From: taker, To: exchange, Data: data, Value: value}, nil
}
