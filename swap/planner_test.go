// Copyright (c) 2025 Lux Partners Limited
// SPDX-License-Identifier: MIT

package swap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/luxfi/aggregator/registry"
)

var (
	swapModule = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	weth       = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc       = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	recipient  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	refundTo   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func testReg() *registry.Registry {
	return &registry.Registry{
		ChainID:       1,
		SwapModule:    swapModule,
		WrappedNative: weth,
	}
}

type fixedFinder struct {
	route *Route
	err   error
}

func (f *fixedFinder) FindRoute(ctx context.Context, tokenIn, tokenOut common.Address, amountOut *big.Int) (*Route, error) {
	return f.route, f.err
}

func sel(sig string) []byte {
	return crypto.Keccak256([]byte(sig))[:4]
}

func TestPlanWrap(t *testing.T) {
	p := NewPlanner(testReg(), nil)
	amount := big.NewInt(1000)

	exec, err := p.Plan(context.Background(), common.Address{}, weth, amount, recipient, refundTo, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if exec.Module != swapModule {
		t.Errorf("module = %v, want swap module", exec.Module)
	}
	if !bytes.Equal(exec.Data[:4], sel(sigWrap)) {
		t.Errorf("selector = %x, want wrap", exec.Data[:4])
	}
	// Wrapping carries the native input as call value.
	if exec.Value.Cmp(amount) != 0 {
		t.Errorf("value = %s, want %s", exec.Value, amount)
	}
}

func TestPlanUnwrap(t *testing.T) {
	p := NewPlanner(testReg(), nil)

	exec, err := p.Plan(context.Background(), weth, common.Address{}, big.NewInt(1000), recipient, refundTo, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !bytes.Equal(exec.Data[:4], sel(sigUnwrap)) {
		t.Errorf("selector = %x, want unwrap", exec.Data[:4])
	}
	if exec.Value.Sign() != 0 {
		t.Errorf("value = %s, want 0", exec.Value)
	}
}

func TestPlanSwapRequiresFinder(t *testing.T) {
	p := NewPlanner(testReg(), nil)
	_, err := p.Plan(context.Background(), usdc, weth, big.NewInt(1000), recipient, refundTo, nil)
	if !errors.Is(err, ErrNoRoute) {
		t.Errorf("err = %v, want ErrNoRoute", err)
	}
}

func TestPlanSwapExactOutput(t *testing.T) {
	amountOut := big.NewInt(1000)
	finder := &fixedFinder{route: &Route{
		TokenIn:     usdc,
		TokenOut:    weth,
		FeeTier:     big.NewInt(3000),
		AmountOut:   amountOut,
		AmountInMax: big.NewInt(2_500_000),
	}}
	p := NewPlanner(testReg(), finder)

	exec, err := p.Plan(context.Background(), usdc, weth, amountOut, recipient, refundTo, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !bytes.Equal(exec.Data[:4], sel(sigSwapExactOutput)) {
		t.Errorf("selector = %x, want swapExactOutput", exec.Data[:4])
	}
	// ERC20-in swaps carry no call value.
	if exec.Value.Sign() != 0 {
		t.Errorf("value = %s, want 0", exec.Value)
	}
}

func TestPlanSwapFromNativeCarriesValue(t *testing.T) {
	finder := &fixedFinder{route: &Route{
		TokenIn:     weth,
		TokenOut:    usdc,
		AmountOut:   big.NewInt(1000),
		AmountInMax: big.NewInt(777),
	}}
	p := NewPlanner(testReg(), finder)

	exec, err := p.Plan(context.Background(), common.Address{}, usdc, big.NewInt(1000), recipient, refundTo, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if exec.Value.Int64() != 777 {
		t.Errorf("value = %s, want the route's max input", exec.Value)
	}
}

func TestPlanSwapInputCap(t *testing.T) {
	finder := &fixedFinder{route: &Route{
		TokenIn:     usdc,
		TokenOut:    weth,
		AmountOut:   big.NewInt(1000),
		AmountInMax: big.NewInt(500),
	}}
	p := NewPlanner(testReg(), finder)
	ctx := context.Background()

	t.Run("cap below route fails", func(t *testing.T) {
		_, err := p.Plan(ctx, usdc, weth, big.NewInt(1000), recipient, refundTo, big.NewInt(400))
		if !errors.Is(err, ErrNoRoute) {
			t.Errorf("err = %v, want ErrNoRoute", err)
		}
	})

	t.Run("cap above route is the limit", func(t *testing.T) {
		if _, err := p.Plan(ctx, usdc, weth, big.NewInt(1000), recipient, refundTo, big.NewInt(600)); err != nil {
			t.Errorf("Plan: %v", err)
		}
	})
}

func TestPlanFinderFailure(t *testing.T) {
	p := NewPlanner(testReg(), &fixedFinder{err: fmt.Errorf("no pools")})
	_, err := p.Plan(context.Background(), usdc, weth, big.NewInt(1000), recipient, refundTo, nil)
	if !errors.Is(err, ErrNoRoute) {
		t.Errorf("err = %v, want ErrNoRoute", err)
	}
}

func TestPlanEmptyRoute(t *testing.T) {
	p := NewPlanner(testReg(), &fixedFinder{route: &Route{}})
	_, err := p.Plan(context.Background(), usdc, weth, big.NewInt(1000), recipient, refundTo, nil)
	if !errors.Is(err, ErrNoRoute) {
		t.Errorf("err = %v, want ErrNoRoute", err)
	}
}
