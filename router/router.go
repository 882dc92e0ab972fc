// Copyright (c) 2025 Lux Partners Limited
// SPDX-License-Identifier: MIT

// Package router synthesizes fill transactions for heterogeneous batches of
// NFT marketplace orders. Given listing or bid details that may span many
// mutually-incompatible exchange protocols, it produces the minimal ordered
// set of (module, data, value) calls that executes all of them through the
// aggregator contract, with exact payment accounting and proportional fee
// distribution.
package router

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/luxfi/aggregator/order"
	"github.com/luxfi/aggregator/registry"
)

// Build-time error taxonomy. All are fatal and never retried; only
// external-dependency failures on fallible kinds can be downgraded to a
// per-detail skip via ListingOptions.SkipErrors.
var (
	ErrSweepUnsupported = errors.New("sweeping multiple orders is not supported for this protocol")
	ErrFeesUnsupported  = errors.New("fees are not supported for this protocol")
	ErrCurrencyMismatch = errors.New("settlement currency mismatch")
	ErrUnsupportedKind  = errors.New("unsupported exchange kind")
	ErrNothingToFill    = errors.New("no fillable orders remain")
)

// X2Y2Source fetches the protocol-signed fill payload for an X2Y2 order.
type X2Y2Source interface {
	FetchInput(ctx context.Context, rawOrder []byte, taker common.Address) ([]byte, error)
}

// CustodyReleaser releases a cb order from off-chain custody so it becomes
// fillable.
type CustodyReleaser interface {
	Release(ctx context.Context, key string) error
}

// SwapPlanner produces the currency leg that converts the caller's
// presented currency into the batch's settlement currency.
type SwapPlanner interface {
	Plan(ctx context.Context, from, to common.Address, amountOut *big.Int, recipient, refundTo common.Address, maxInput *big.Int) (order.ExecutionInfo, error)
}

// Dependencies are the external collaborators a Router may need. Any field
// may be nil; builds that would require a missing collaborator fail with a
// descriptive error.
type Dependencies struct {
	X2Y2    X2Y2Source
	Custody CustodyReleaser
	Planner SwapPlanner
}

// Router is the execution assembler. It holds no mutable state across
// calls; every build is an independent computation.
type Router struct {
	reg     *registry.Registry
	x2y2    X2Y2Source
	custody CustodyReleaser
	planner SwapPlanner
}

// New creates a Router over a registry and its external collaborators.
func New(reg *registry.Registry, deps Dependencies) *Router {
	return &Router{
		reg:     reg,
		x2y2:    deps.X2Y2,
		custody: deps.Custody,
		planner: deps.Planner,
	}
}

// ListingOptions control a listing batch build.
type ListingOptions struct {
	// GlobalFees are batch-wide fees distributed proportionally across
	// protocol groups by item count.
	GlobalFees []order.Fee
	// ForceRouter disables the direct single-protocol fast path.
	ForceRouter bool
	// Partial requests best-effort on-chain filling: modules fill what
	// they can and refund the rest instead of reverting the whole batch.
	Partial bool
	// SkipErrors drops details whose off-chain payload generation fails
	// instead of aborting the build. Honored only for kinds whose
	// per-item generation is itself fallible.
	SkipErrors bool
	// MaxSwapInput caps the input the caller will spend on a currency
	// swap leg; unspent input is refunded.
	MaxSwapInput *big.Int
}

// BidOptions control a bid fill build.
type BidOptions struct {
	Partial bool
}

// ListingFill is the result of a listing batch build.
type ListingFill struct {
	Tx *order.TxData
	// Success is index-aligned with the input details: true iff the
	// detail was placed into some emitted execution.
	Success []bool
	// Skipped lists the original indices excluded under SkipErrors, for
	// the caller to retry or drop.
	Skipped []int
}

// FillListings builds one transaction that fills every listing in the
// batch. The caller presents payment in `currency` (the zero address means
// the native asset); listings denominated in a different currency require a
// swap leg and are otherwise rejected.
func (r *Router) FillListings(ctx context.Context, details []*order.ListingDetail, taker common.Address, currency common.Address, opts ListingOptions) (*ListingFill, error) {
	if len(details) == 0 {
		return nil, ErrNothingToFill
	}

	for i, d := range details {
		if d.Order == nil || d.Kind() == order.KindUnknown {
			return nil, fmt.Errorf("%w: detail %d", ErrUnsupportedKind, i)
		}
	}

	// Protocols that predate the modular aggregator can only be filled
	// directly, one order at a time, with no fee support.
	nonBatchable := 0
	for _, d := range details {
		if !d.Kind().Batchable() {
			nonBatchable++
		}
	}
	if nonBatchable > 0 {
		if len(details) > 1 {
			return nil, fmt.Errorf("%w: %s", ErrSweepUnsupported, details[0].Kind())
		}
		d := details[0]
		if len(opts.GlobalFees) > 0 || len(FilterFees(d.Fees)) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrFeesUnsupported, d.Kind())
		}
		tx, err := r.buildDirectListing(d, taker)
		if err != nil {
			return nil, err
		}
		return &ListingFill{Tx: tx, Success: []bool{true}}, nil
	}

	// Fast path: a uniform batch on the generic multi-item protocol with
	// no fees needs no cross-protocol composition, so the exchange's own
	// fill transaction is emitted byte-for-byte.
	if !opts.ForceRouter && len(opts.GlobalFees) == 0 && currency == (common.Address{}) && uniformSeaportNoFees(details) {
		tx, err := r.buildSeaportDirect(details, taker)
		if err != nil {
			return nil, err
		}
		success := make([]bool, len(details))
		for i := range success {
			success[i] = true
		}
		return &ListingFill{Tx: tx, Success: success}, nil
	}

	// The batch must present one settlement currency.
	settle := details[0].Currency
	for _, d := range details[1:] {
		if d.Currency != settle {
			return nil, fmt.Errorf("%w: mixed listing currencies", ErrCurrencyMismatch)
		}
	}
	needsCurrencyLeg := settle != currency
	if needsCurrencyLeg && r.planner == nil {
		return nil, fmt.Errorf("%w: no swap planning configured for %s", ErrCurrencyMismatch, settle)
	}

	groups := groupByKind(details)

	success := make([]bool, len(details))
	var skipped []int
	executions := make([]order.ExecutionInfo, 0, len(groups)+1)
	spend := new(big.Int)

	for _, g := range groups {
		res, err := r.buildListingGroup(ctx, g, taker, len(details), opts)
		if err != nil {
			return nil, err
		}
		skipped = append(skipped, res.skipped...)
		if len(res.included) == 0 {
			continue
		}
		for _, idx := range res.included {
			success[idx] = true
		}
		executions = append(executions, res.exec)
		spend.Add(spend, res.spend)
	}

	if len(executions) == 0 {
		return nil, ErrNothingToFill
	}

	// A currency leg must run before the fills that consume its output.
	if needsCurrencyLeg {
		leg, err := r.planner.Plan(ctx, currency, settle, spend, r.reg.Aggregator, taker, opts.MaxSwapInput)
		if err != nil {
			return nil, err
		}
		executions = append([]order.ExecutionInfo{leg}, executions...)
	}

	data, err := packExecute(executions)
	if err != nil {
		return nil, err
	}
	value := new(big.Int)
	for _, e := range executions {
		if e.Value != nil {
			value.Add(value, e.Value)
		}
	}

	return &ListingFill{
		Tx:      &order.TxData{From: taker, To: r.reg.Aggregator, Data: data, Value: value},
		Success: success,
		Skipped: skipped,
	}, nil
}

// FillBid builds the transaction that accepts a single bid. Protocols with
// a native direct fill are delegated immediately (direct=true). Everything
// else funnels through the protocol's module: because filling a bid moves
// the asset away from the taker and the taker has not approved the router,
// the module call rides as the auxiliary payload of a safe transfer from
// the taker to the asset contract, so the asset moves and the fill executes
// within one sender-initiated call with no standing approval.
func (r *Router) FillBid(ctx context.Context, d *order.BidDetail, taker common.Address, opts BidOptions) (*order.TxData, bool, error) {
	if d == nil || d.Order == nil || d.Kind() == order.KindUnknown {
		return nil, false, ErrUnsupportedKind
	}

	if d.Kind().DirectBidFill() {
		exchange, err := r.reg.Exchange(d.Kind())
		if err != nil {
			return nil, false, err
		}
		data, err := d.Order.MatchingCounterOrder(taker)
		if err != nil {
			return nil, false, fmt.Errorf("build matching order: %w", err)
		}
		return &order.TxData{From: taker, To: exchange, Data: data, Value: new(big.Int)}, true, nil
	}

	module, err := r.reg.Module(d.Kind())
	if err != nil {
		return nil, false, err
	}

	ld := &order.ListingDetail{ContractKind: d.ContractKind, Contract: d.Contract, TokenID: d.TokenID, Amount: d.Amount, Fees: d.Fees, Order: d.Order}
	payload, err := r.detailPayload(ctx, d.Kind(), ld, taker)
	if err != nil {
		return nil, false, err
	}

	offerData, err := packAcceptOffer(payload, offerParams{
		FillTo:             taker,
		RefundTo:           taker,
		RevertIfIncomplete: !opts.Partial,
	}, FilterFees(d.Fees))
	if err != nil {
		return nil, false, err
	}

	data, err := packSafeTransferWithData(d.ContractKind, taker, module, d.TokenID, d.FillAmount(), offerData)
	if err != nil {
		return nil, false, err
	}

	return &order.TxData{From: taker, To: d.Contract, Data: data, Value: new(big.Int)}, false, nil
}

// groupByKind partitions details into per-protocol groups, preserving each
// member's original index and the batch's first-occurrence ordering.
func groupByKind(details []*order.ListingDetail) []listingGroup {
	var groups []listingGroup
	byKind := make(map[order.Kind]int)
	for i, d := range details {
		k := d.Kind()
		gi, ok := byKind[k]
		if !ok {
			gi = len(groups)
			byKind[k] = gi
			groups = append(groups, listingGroup{kind: k})
		}
		groups[gi].indices = append(groups[gi].indices, i)
		groups[gi].details = append(groups[gi].details, d)
	}
	return groups
}

func uniformSeaportNoFees(details []*order.ListingDetail) bool {
	for _, d := range details {
		if d.Kind() != order.KindSeaport || d.Currency != (common.Address{}) {
			return false
		}
		if len(FilterFees(d.Fees)) > 0 {
			return false
		}
	}
	return true
}
