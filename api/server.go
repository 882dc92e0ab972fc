// Copyright (c) 2025 Lux Partners Limited
// SPDX-License-Identifier: MIT

// Package api exposes the fill router over HTTP: callers post batches of
// order details and receive the synthesized transaction back.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/luxfi/aggregator/order"
	"github.com/luxfi/aggregator/router"
)

// Config for the API server.
type Config struct {
	HTTPPort int
	ChainID  uint64
}

// Server wraps a Router behind a REST surface.
type Server struct {
	config Config
	fills  *router.Router
	router *mux.Router
}

// NewServer creates the HTTP server.
func NewServer(cfg Config, fills *router.Router) *Server {
	s := &Server{
		config: cfg,
		fills:  fills,
		router: mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/fill/listings", s.handleFillListings).Methods("POST")
	v1.HandleFunc("/fill/bid", s.handleFillBid).Methods("POST")
}

// Start runs the server until the listener fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.HTTPPort)
	log.Printf("fill API listening on %s", addr)
	server := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return server.ListenAndServe()
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.router }

// detailRequest is the wire form of one listing or bid detail. The order
// payload arrives pre-built and pre-signed; the server never constructs or
// signs orders.
type detailRequest struct {
	Kind         string         `json:"kind"`
	ContractKind string         `json:"contract_kind"`
	Contract     common.Address `json:"contract"`
	TokenID      *hexutil.Big   `json:"token_id"`
	Amount       *hexutil.Big   `json:"amount,omitempty"`
	Currency     common.Address `json:"currency"`
	Price        *hexutil.Big   `json:"price"`
	Fillable     *hexutil.Big   `json:"fillable,omitempty"`
	Raw          hexutil.Bytes  `json:"raw"`
	Counter      hexutil.Bytes  `json:"counter,omitempty"`
	CustodyKey   string         `json:"custody_key,omitempty"`
	Fees         []feeRequest   `json:"fees,omitempty"`
	ExtraFees    []feeRequest   `json:"extra_fees,omitempty"`
}

type feeRequest struct {
	Recipient common.Address `json:"recipient"`
	Amount    *hexutil.Big   `json:"amount"`
}

type fillListingsRequest struct {
	Taker       common.Address  `json:"taker"`
	Currency    common.Address  `json:"currency"`
	Details     []detailRequest `json:"details"`
	GlobalFees  []feeRequest    `json:"global_fees,omitempty"`
	ForceRouter bool            `json:"force_router,omitempty"`
	Partial     bool            `json:"partial,omitempty"`
	SkipErrors  bool            `json:"skip_errors,omitempty"`
}

type fillBidRequest struct {
	Taker   common.Address `json:"taker"`
	Detail  detailRequest  `json:"detail"`
	Partial bool           `json:"partial,omitempty"`
}

type txResponse struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Data  hexutil.Bytes  `json:"data"`
	Value *hexutil.Big   `json:"value"`
}

// FillListingsResponse is the listing build result, shared by the HTTP
// handler and one-shot CLI builds.
type FillListingsResponse struct {
	RequestID string     `json:"request_id"`
	Tx        txResponse `json:"tx"`
	Success   []bool     `json:"success"`
	Skipped   []int      `json:"skipped,omitempty"`
}

type fillBidResponse struct {
	RequestID string     `json:"request_id"`
	Tx        txResponse `json:"tx"`
	Direct    bool       `json:"direct"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"chain_id": s.config.ChainID,
		"version":  "1.0.0",
	})
}

func (s *Server) handleFillListings(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()

	var req fillListingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	details := make([]*order.ListingDetail, 0, len(req.Details))
	for i, dr := range req.Details {
		d, err := listingDetail(dr)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("detail %d: %v", i, err))
			return
		}
		details = append(details, d)
	}

	fill, err := s.fills.FillListings(r.Context(), details, req.Taker, req.Currency, router.ListingOptions{
		GlobalFees:  fees(req.GlobalFees),
		ForceRouter: req.ForceRouter,
		Partial:     req.Partial,
		SkipErrors:  req.SkipErrors,
	})
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}

	log.Printf("request %s: built listing fill, %d details, value %s", requestID, len(details), fill.Tx.Value)
	s.writeJSON(w, http.StatusOK, FillListingsResponse{
		RequestID: requestID,
		Tx:        tx(fill.Tx),
		Success:   fill.Success,
		Skipped:   fill.Skipped,
	})
}

func (s *Server) handleFillBid(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()

	var req fillBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	d, err := bidDetail(req.Detail)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	txData, direct, err := s.fills.FillBid(r.Context(), d, req.Taker, router.BidOptions{Partial: req.Partial})
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}

	log.Printf("request %s: built bid fill, direct=%v", requestID, direct)
	s.writeJSON(w, http.StatusOK, fillBidResponse{RequestID: requestID, Tx: tx(txData), Direct: direct})
}

func listingDetail(dr detailRequest) (*order.ListingDetail, error) {
	o, err := staticOrder(dr)
	if err != nil {
		return nil, err
	}
	return &order.ListingDetail{
		ContractKind: contractKind(dr.ContractKind),
		Contract:     dr.Contract,
		TokenID:      bigOrNil(dr.TokenID),
		Amount:       bigOrNil(dr.Amount),
		Currency:     dr.Currency,
		Fees:         fees(dr.Fees),
		Order:        o,
	}, nil
}

func bidDetail(dr detailRequest) (*order.BidDetail, error) {
	o, err := staticOrder(dr)
	if err != nil {
		return nil, err
	}
	return &order.BidDetail{
		ContractKind: contractKind(dr.ContractKind),
		Contract:     dr.Contract,
		TokenID:      bigOrNil(dr.TokenID),
		Amount:       bigOrNil(dr.Amount),
		Fees:         fees(dr.Fees),
		Order:        o,
	}, nil
}

func staticOrder(dr detailRequest) (*order.Static, error) {
	kind := order.ParseKind(dr.Kind)
	if kind == order.KindUnknown {
		return nil, fmt.Errorf("unknown kind %q", dr.Kind)
	}
	if len(dr.Raw) == 0 {
		return nil, fmt.Errorf("missing raw order payload")
	}
	return &order.Static{
		OrderKind:  kind,
		Price:      bigOrNil(dr.Price),
		Fillable:   bigOrNil(dr.Fillable),
		Raw:        dr.Raw,
		Counter:    dr.Counter,
		ExtraFees:  fees(dr.ExtraFees),
		CustodyKey: dr.CustodyKey,
	}, nil
}

func contractKind(s string) order.ContractKind {
	if s == "erc1155" {
		return order.ERC1155
	}
	return order.ERC721
}

func fees(in []feeRequest) []order.Fee {
	if len(in) == 0 {
		return nil
	}
	out := make([]order.Fee, 0, len(in))
	for _, f := range in {
		out = append(out, order.Fee{Recipient: f.Recipient, Amount: bigOrNil(f.Amount)})
	}
	return out
}

func bigOrNil(h *hexutil.Big) *big.Int {
	if h == nil {
		return nil
	}
	return (*big.Int)(h)
}

func tx(t *order.TxData) txResponse {
	return txResponse{From: t.From, To: t.To, Data: t.Data, Value: (*hexutil.Big)(t.Value)}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, router.ErrSweepUnsupported),
		errors.Is(err, router.ErrFeesUnsupported),
		errors.Is(err, router.ErrCurrencyMismatch),
		errors.Is(err, router.ErrUnsupportedKind),
		errors.Is(err, router.ErrNothingToFill):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Message: message})
}
