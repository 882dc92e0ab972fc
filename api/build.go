// Copyright (c) 2025 Lux Partners Limited
// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/luxfi/aggregator/order"
	"github.com/luxfi/aggregator/router"
)

// BuildListings synthesizes one listing fill from a JSON body in the HTTP
// request layout ({"details": [...], "global_fees": [...]}). It backs the
// CLI one-shot mode so detail files and request bodies stay interchangeable.
func BuildListings(ctx context.Context, fills *router.Router, body []byte, taker, currency common.Address, partial, skipErrors bool) (*FillListingsResponse, error) {
	var req struct {
		Details    []detailRequest `json:"details"`
		GlobalFees []feeRequest    `json:"global_fees"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("parse request: %w", err)
	}

	details := make([]*order.ListingDetail, 0, len(req.Details))
	for i, dr := range req.Details {
		d, err := listingDetail(dr)
		if err != nil {
			return nil, fmt.Errorf("detail %d: %w", i, err)
		}
		details = append(details, d)
	}

	fill, err := fills.FillListings(ctx, details, taker, currency, router.ListingOptions{
		GlobalFees: fees(req.GlobalFees),
		Partial:    partial,
		SkipErrors: skipErrors,
	})
	if err != nil {
		return nil, err
	}

	return &FillListingsResponse{
		RequestID: uuid.NewString(),
		Tx:        tx(fill.Tx),
		Success:   fill.Success,
		Skipped:   fill.Skipped,
	}, nil
}
