// Copyright (c) 2025 Lux Partners Limited
// SPDX-License-Identifier: MIT

// Package swap plans the currency leg of an aggregated fill: wrapping,
// unwrapping, or swapping the caller's presented currency into the exact
// output amount the fills consume. Route computation for genuine cross-asset
// swaps is delegated to an external route finder.
package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/luxfi/aggregator/order"
	"github.com/luxfi/aggregator/registry"
)

// ErrNoRoute means no viable exact-output single-hop route exists. The
// planner fails loudly rather than silently underpaying.
var ErrNoRoute = errors.New("no viable swap route")

// Route is an exact-output, single-pool, single-hop swap plan.
type Route struct {
	Pool      common.Address
	FeeTier   *big.Int
	TokenIn   common.Address
	TokenOut  common.Address
	AmountOut *big.Int
	// AmountInMax is the route finder's quoted worst-case input.
	AmountInMax *big.Int
}

// RouteFinder computes exact-output swap routes. Implementations typically
// wrap a DEX aggregation service.
type RouteFinder interface {
	FindRoute(ctx context.Context, tokenIn, tokenOut common.Address, amountOut *big.Int) (*Route, error)
}

// Planner emits the single execution entry that obtains the needed output
// amount. The entry must run before the fills that consume its output.
type Planner struct {
	reg    *registry.Registry
	finder RouteFinder
}

// NewPlanner creates a Planner; finder may be nil when only wrap/unwrap
// conversions are needed.
func NewPlanner(reg *registry.Registry, finder RouteFinder) *Planner {
	return &Planner{reg: reg, finder: finder}
}

const (
	sigWrap            = "wrap(address)"
	sigUnwrap          = "unwrap(uint256,address)"
	sigSwapExactOutput = "swapExactOutput((address,address,uint24,uint256,uint256,address,address))"
)

var (
	typeAddress = mustType("address", nil)
	typeUint256 = mustType("uint256", nil)

	typeSwapParams = mustType("tuple", []abi.ArgumentMarshaling{
		{Name: "tokenIn", Type: "address"},
		{Name: "tokenOut", Type: "address"},
		{Name: "feeTier", Type: "uint24"},
		{Name: "amountOut", Type: "uint256"},
		{Name: "amountInMaximum", Type: "uint256"},
		{Name: "recipient", Type: "address"},
		{Name: "refundTo", Type: "address"},
	})
)

type swapExactOutputParams struct {
	TokenIn         common.Address
	TokenOut        common.Address
	FeeTier         *big.Int
	AmountOut       *big.Int
	AmountInMaximum *big.Int
	Recipient       common.Address
	RefundTo        common.Address
}

func mustType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(fmt.Sprintf("abi type %s: %v", t, err))
	}
	return typ
}

func pack(sig string, args abi.Arguments, values ...interface{}) ([]byte, error) {
	packed, err := args.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", sig, err)
	}
	return append(crypto.Keccak256([]byte(sig))[:4], packed...), nil
}

// Plan produces the execution entry that converts `amountOut` of currency
// `to` for a caller presenting currency `from`. Three cases: wrap native
// into the wrapped token (value = amount), unwrap (value = 0), or a genuine
// cross-asset exact-output swap whose value is the maximum input the caller
// will spend; anything unspent is refunded to refundTo.
func (p *Planner) Plan(ctx context.Context, from, to common.Address, amountOut *big.Int, recipient, refundTo common.Address, maxInput *big.Int) (order.ExecutionInfo, error) {
	native := common.Address{}

	switch {
	case from == native && to == p.reg.WrappedNative:
		data, err := pack(sigWrap, abi.Arguments{{Type: typeAddress}}, recipient)
		if err != nil {
			return order.ExecutionInfo{}, err
		}
		return order.ExecutionInfo{
			Module: p.reg.SwapModule,
			Data:   data,
			Value:  new(big.Int).Set(amountOut),
		}, nil

	case from == p.reg.WrappedNative && to == native:
		data, err := pack(sigUnwrap, abi.Arguments{{Type: typeUint256}, {Type: typeAddress}}, amountOut, recipient)
		if err != nil {
			return order.ExecutionInfo{}, err
		}
		return order.ExecutionInfo{
			Module: p.reg.SwapModule,
			Data:   data,
			Value:  new(big.Int),
		}, nil
	}

	if p.finder == nil {
		return order.ExecutionInfo{}, fmt.Errorf("%w: %s -> %s", ErrNoRoute, from, to)
	}

	// Swaps settle through the wrapped token; a native input is wrapped
	// by the module itself.
	tokenIn := from
	if tokenIn == native {
		tokenIn = p.reg.WrappedNative
	}
	route, err := p.finder.FindRoute(ctx, tokenIn, to, amountOut)
	if err != nil {
		return order.ExecutionInfo{}, fmt.Errorf("%w: %v", ErrNoRoute, err)
	}
	if route == nil || route.AmountInMax == nil || route.AmountInMax.Sign() == 0 {
		return order.ExecutionInfo{}, fmt.Errorf("%w: empty route for %s -> %s", ErrNoRoute, from, to)
	}

	limit := route.AmountInMax
	if maxInput != nil {
		if maxInput.Cmp(route.AmountInMax) < 0 {
			return order.ExecutionInfo{}, fmt.Errorf("%w: route needs up to %s input, caller allows %s", ErrNoRoute, route.AmountInMax, maxInput)
		}
		limit = maxInput
	}

	feeTier := route.FeeTier
	if feeTier == nil {
		feeTier = new(big.Int)
	}
	data, err := pack(sigSwapExactOutput, abi.Arguments{{Type: typeSwapParams}}, swapExactOutputParams{
		TokenIn:         route.TokenIn,
		TokenOut:        route.TokenOut,
		FeeTier:         feeTier,
		AmountOut:       new(big.Int).Set(amountOut),
		AmountInMaximum: new(big.Int).Set(limit),
		Recipient:       recipient,
		RefundTo:        refundTo,
	})
	if err != nil {
		return order.ExecutionInfo{}, err
	}

	value := new(big.Int)
	if from == native {
		value.Set(limit)
	}
	return order.ExecutionInfo{Module: p.reg.SwapModule, Data: data, Value: value}, nil
}
