// Copyright (c) 2025 Lux Partners Limited
// SPDX-License-Identifier: MIT

package router

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/luxfi/aggregator/order"
)

// Module calldata conventions. Every protocol module exposes the same
// single-order and multi-order accept-listing functions plus an accept-offer
// function, each taking the protocol-native order bytes, a trailing params
// struct and a trailing fee array. The aggregator itself exposes a single
// execute entry point over (module, data, value) triples.
const (
	sigExecute            = "execute((address,bytes,uint256)[])"
	sigAcceptETHListing   = "acceptETHListing(bytes,(address,address,bool,uint256),(address,uint256)[])"
	sigAcceptETHListings  = "acceptETHListings(bytes[],(address,address,bool,uint256),(address,uint256)[])"
	sigAcceptERCListing   = "acceptERC20Listing(bytes,(address,address,address,bool,uint256),(address,uint256)[])"
	sigAcceptERCListings  = "acceptERC20Listings(bytes[],(address,address,address,bool,uint256),(address,uint256)[])"
	sigAcceptOffer        = "acceptOffer(bytes,(address,address,bool),(address,uint256)[])"
	sigSafeTransfer721    = "safeTransferFrom(address,address,uint256,bytes)"
	sigSafeTransfer1155   = "safeTransferFrom(address,address,uint256,uint256,bytes)"
	sigFulfillOrder       = "fulfillOrder(bytes,address)"
	sigFulfillOrders      = "fulfillAvailableOrders(bytes[],address)"
	sigDirectFill         = "fill(bytes,address)"
)

// ethListingParams is the standard trailing options struct for native
// currency fills: unspent value above Amount is refunded to RefundTo.
type ethListingParams struct {
	FillTo             common.Address
	RefundTo           common.Address
	RevertIfIncomplete bool
	Amount             *big.Int
}

// ercListingParams extends ethListingParams with the settlement token for
// ERC20-denominated fills; payment flows from a prior currency leg, not
// from call value.
type ercListingParams struct {
	Token              common.Address
	FillTo             common.Address
	RefundTo           common.Address
	RevertIfIncomplete bool
	Amount             *big.Int
}

// offerParams is the trailing options struct for accept-offer calls.
type offerParams struct {
	FillTo             common.Address
	RefundTo           common.Address
	RevertIfIncomplete bool
}

var (
	typeBytes      = mustType("bytes", nil)
	typeBytesSlice = mustType("bytes[]", nil)
	typeAddress    = mustType("address", nil)
	typeUint256    = mustType("uint256", nil)

	typeExecutionSlice = mustType("tuple[]", []abi.ArgumentMarshaling{
		{Name: "module", Type: "address"},
		{Name: "data", Type: "bytes"},
		{Name: "value", Type: "uint256"},
	})
	typeFeeSlice = mustType("tuple[]", []abi.ArgumentMarshaling{
		{Name: "recipient", Type: "address"},
		{Name: "amount", Type: "uint256"},
	})
	typeETHParams = mustType("tuple", []abi.ArgumentMarshaling{
		{Name: "fillTo", Type: "address"},
		{Name: "refundTo", Type: "address"},
		{Name: "revertIfIncomplete", Type: "bool"},
		{Name: "amount", Type: "uint256"},
	})
	typeERCParams = mustType("tuple", []abi.ArgumentMarshaling{
		{Name: "token", Type: "address"},
		{Name: "fillTo", Type: "address"},
		{Name: "refundTo", Type: "address"},
		{Name: "revertIfIncomplete", Type: "bool"},
		{Name: "amount", Type: "uint256"},
	})
	typeOfferParams = mustType("tuple", []abi.ArgumentMarshaling{
		{Name: "fillTo", Type: "address"},
		{Name: "refundTo", Type: "address"},
		{Name: "revertIfIncomplete", Type: "bool"},
	})
)

func mustType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(fmt.Sprintf("abi type %s: %v", t, err))
	}
	return typ
}

// selector computes the 4-byte function selector for a canonical signature.
func selector(sig string) []byte {
	return crypto.Keccak256([]byte(sig))[:4]
}

func pack(sig string, args abi.Arguments, values ...interface{}) ([]byte, error) {
	packed, err := args.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", sig, err)
	}
	return append(selector(sig), packed...), nil
}

// packExecute wraps the ordered execution list in the aggregator's execute
// entry point.
func packExecute(executions []order.ExecutionInfo) ([]byte, error) {
	for i := range executions {
		if executions[i].Value == nil {
			executions[i].Value = new(big.Int)
		}
	}
	return pack(sigExecute,
		abi.Arguments{{Type: typeExecutionSlice}},
		executions)
}

func packAcceptETHListing(orderData []byte, params ethListingParams, fees []order.Fee) ([]byte, error) {
	return pack(sigAcceptETHListing,
		abi.Arguments{{Type: typeBytes}, {Type: typeETHParams}, {Type: typeFeeSlice}},
		orderData, params, normalizeFees(fees))
}

func packAcceptETHListings(orderData [][]byte, params ethListingParams, fees []order.Fee) ([]byte, error) {
	return pack(sigAcceptETHListings,
		abi.Arguments{{Type: typeBytesSlice}, {Type: typeETHParams}, {Type: typeFeeSlice}},
		orderData, params, normalizeFees(fees))
}

func packAcceptERC20Listing(orderData []byte, params ercListingParams, fees []order.Fee) ([]byte, error) {
	return pack(sigAcceptERCListing,
		abi.Arguments{{Type: typeBytes}, {Type: typeERCParams}, {Type: typeFeeSlice}},
		orderData, params, normalizeFees(fees))
}

func packAcceptERC20Listings(orderData [][]byte, params ercListingParams, fees []order.Fee) ([]byte, error) {
	return pack(sigAcceptERCListings,
		abi.Arguments{{Type: typeBytesSlice}, {Type: typeERCParams}, {Type: typeFeeSlice}},
		orderData, params, normalizeFees(fees))
}

func packAcceptOffer(orderData []byte, params offerParams, fees []order.Fee) ([]byte, error) {
	return pack(sigAcceptOffer,
		abi.Arguments{{Type: typeBytes}, {Type: typeOfferParams}, {Type: typeFeeSlice}},
		orderData, params, normalizeFees(fees))
}

// packSafeTransferWithData encodes the sender-initiated asset transfer that
// carries a module call as its auxiliary payload. The receiving module
// executes the payload inside its received-token hook, so the taker never
// grants a standing approval.
func packSafeTransferWithData(kind order.ContractKind, from, to common.Address, tokenID, amount *big.Int, data []byte) ([]byte, error) {
	if kind == order.ERC1155 {
		return pack(sigSafeTransfer1155,
			abi.Arguments{{Type: typeAddress}, {Type: typeAddress}, {Type: typeUint256}, {Type: typeUint256}, {Type: typeBytes}},
			from, to, tokenID, amount, data)
	}
	return pack(sigSafeTransfer721,
		abi.Arguments{{Type: typeAddress}, {Type: typeAddress}, {Type: typeUint256}, {Type: typeBytes}},
		from, to, tokenID, data)
}

// packFulfillOrder encodes a direct single-order exchange fill.
func packFulfillOrder(orderData []byte, recipient common.Address) ([]byte, error) {
	return pack(sigFulfillOrder,
		abi.Arguments{{Type: typeBytes}, {Type: typeAddress}},
		orderData, recipient)
}

// packFulfillOrders encodes a direct multi-order exchange fill.
func packFulfillOrders(orderData [][]byte, recipient common.Address) ([]byte, error) {
	return pack(sigFulfillOrders,
		abi.Arguments{{Type: typeBytesSlice}, {Type: typeAddress}},
		orderData, recipient)
}

// packDirectFill encodes a single-order fill on a non-aggregatable exchange.
func packDirectFill(orderData []byte, recipient common.Address) ([]byte, error) {
	return pack(sigDirectFill,
		abi.Arguments{{Type: typeBytes}, {Type: typeAddress}},
		orderData, recipient)
}

func normalizeFees(fees []order.Fee) []order.Fee {
	out := make([]order.Fee, 0, len(fees))
	for _, f := range fees {
		if f.Amount == nil {
			f.Amount = new(big.Int)
		}
		out = append(out, f)
	}
	return out
}
