// Copyright (c) 2025 Lux Partners Limited
// SPDX-License-Identifier: MIT

// Package offchain implements the HTTP clients for the off-chain services
// some protocols require at fill time: the X2Y2 signing API, which co-signs
// a fill payload per order, and the ZeroExV4 custody API, which must
// release cb orders before they become fillable.
package offchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// X2Y2Client fetches protocol-signed fill inputs from the X2Y2 API.
type X2Y2Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewX2Y2Client creates a client against the given API base URL.
func NewX2Y2Client(baseURL, apiKey string, timeout time.Duration) *X2Y2Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &X2Y2Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type x2y2InputRequest struct {
	Order hexutil.Bytes  `json:"order"`
	Taker common.Address `json:"taker"`
}

type x2y2InputResponse struct {
	Input hexutil.Bytes `json:"input"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// FetchInput requests the server-co-signed calldata blob for one order.
func (c *X2Y2Client) FetchInput(ctx context.Context, rawOrder []byte, taker common.Address) ([]byte, error) {
	reqBody, err := json.Marshal(x2y2InputRequest{Order: rawOrder, Taker: taker})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/orders/sign", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("signing api status %d", resp.StatusCode)
	}

	var result x2y2InputResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("signing api error %d: %s", result.Error.Code, result.Error.Message)
	}
	if len(result.Input) == 0 {
		return nil, fmt.Errorf("signing api returned empty input")
	}
	return result.Input, nil
}

// CustodyClient releases cb orders from the ZeroExV4 off-chain custody
// service.
type CustodyClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewCustodyClient creates a client against the custody API base URL.
func NewCustodyClient(baseURL, apiKey string, timeout time.Duration) *CustodyClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CustodyClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type custodyReleaseResponse struct {
	Released bool   `json:"released"`
	Message  string `json:"message,omitempty"`
}

// Release asks the custody service to release the order held under key.
func (c *CustodyClient) Release(ctx context.Context, key string) error {
	reqBody, err := json.Marshal(map[string]string{"key": key})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/orders/release", bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("custody api status %d", resp.StatusCode)
	}

	var result custodyReleaseResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !result.Released {
		if result.Message != "" {
			return fmt.Errorf("custody release refused: %s", result.Message)
		}
		return fmt.Errorf("custody release refused")
	}
	return nil
}
