// Copyright (c) 2025 Lux Partners Limited
// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/luxfi/aggregator/order"
	"github.com/luxfi/aggregator/registry"
	"github.com/luxfi/aggregator/router"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	modules := make(map[order.Kind]common.Address)
	exchanges := make(map[order.Kind]common.Address)
	for i, k := range []order.Kind{order.KindSeaport, order.KindLooksRare, order.KindBlur} {
		var m, e common.Address
		m[0], m[19] = 0xd0, byte(i+1)
		e[0], e[19] = 0xe0, byte(i+1)
		modules[k] = m
		exchanges[k] = e
	}
	reg := &registry.Registry{
		ChainID:    1,
		Aggregator: common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		Modules:    modules,
		Exchanges:  exchanges,
	}
	return NewServer(Config{HTTPPort: 0, ChainID: 1}, router.New(reg, router.Dependencies{}))
}

func postJSON(t *testing.T, s *Server, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
}

func TestFillListingsEndpoint(t *testing.T) {
	s := testServer(t)

	rec := postJSON(t, s, "/v1/fill/listings", map[string]interface{}{
		"taker": "0x00000000000000000000000000000000000000b1",
		"details": []map[string]interface{}{
			{
				"kind":     "seaport",
				"contract": "0x00000000000000000000000000000000000000c1",
				"token_id": "0x1",
				"price":    "0xde0b6b3a7640000", // 1 ether
				"raw":      "0x0102",
			},
		},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body)
	}

	var resp FillListingsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.RequestID == "" {
		t.Error("missing request id")
	}
	if len(resp.Success) != 1 || !resp.Success[0] {
		t.Errorf("success = %v, want [true]", resp.Success)
	}
	if resp.Tx.Value == nil || resp.Tx.Value.ToInt().String() != "1000000000000000000" {
		t.Errorf("value = %v, want 1 ether", resp.Tx.Value)
	}
}

func TestFillListingsEndpointErrors(t *testing.T) {
	s := testServer(t)

	tests := []struct {
		name string
		body map[string]interface{}
		want int
	}{
		{
			"empty batch",
			map[string]interface{}{
				"taker":   "0x00000000000000000000000000000000000000b1",
				"details": []map[string]interface{}{},
			},
			http.StatusBadRequest,
		},
		{
			"unknown kind",
			map[string]interface{}{
				"taker": "0x00000000000000000000000000000000000000b1",
				"details": []map[string]interface{}{
					{"kind": "wyvern", "raw": "0x01"},
				},
			},
			http.StatusBadRequest,
		},
		{
			"missing raw order",
			map[string]interface{}{
				"taker": "0x00000000000000000000000000000000000000b1",
				"details": []map[string]interface{}{
					{"kind": "seaport"},
				},
			},
			http.StatusBadRequest,
		},
		{
			"blur sweep",
			map[string]interface{}{
				"taker": "0x00000000000000000000000000000000000000b1",
				"details": []map[string]interface{}{
					{"kind": "blur", "price": "0x1", "raw": "0x01"},
					{"kind": "blur", "price": "0x1", "raw": "0x02"},
				},
			},
			http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, s, "/v1/fill/listings", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d; body: %s", rec.Code, tt.want, rec.Body)
			}
			var errResp ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if errResp.Message == "" {
				t.Error("error body missing message")
			}
		})
	}
}

func TestFillListingsEndpointMalformedJSON(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest("POST", "/v1/fill/listings", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestFillBidEndpoint(t *testing.T) {
	s := testServer(t)

	rec := postJSON(t, s, "/v1/fill/bid", map[string]interface{}{
		"taker": "0x00000000000000000000000000000000000000b1",
		"detail": map[string]interface{}{
			"kind":     "seaport",
			"contract": "0x00000000000000000000000000000000000000c1",
			"token_id": "0x2a",
			"price":    "0x64",
			"raw":      "0x0102",
		},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body)
	}

	var resp fillBidResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Direct {
		t.Error("direct = true, want module-routed bid")
	}
	// The bid fill targets the NFT contract.
	if resp.Tx.To != common.HexToAddress("0x00000000000000000000000000000000000000c1") {
		t.Errorf("to = %v, want the token contract", resp.Tx.To)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest("GET", "/v1/fill/listings", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
