// Copyright (c) 2025 Lux Partners Limited
// SPDX-License-Identifier: MIT

// Package main provides the CLI for the NFT fill router: either serve the
// HTTP build API or synthesize one fill transaction from a details file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/luxfi/aggregator/api"
	"github.com/luxfi/aggregator/offchain"
	"github.com/luxfi/aggregator/registry"
	"github.com/luxfi/aggregator/router"
	"github.com/luxfi/aggregator/swap"
)

var version = "dev"

func main() {
	var (
		configPath  = flag.String("config", "", "Registry YAML config path")
		httpPort    = flag.Int("port", 0, "Serve the fill API on this port")
		detailsPath = flag.String("details", "", "JSON file of listing details to build once")
		taker       = flag.String("taker", "", "Taker address for one-shot builds")
		currency    = flag.String("currency", "", "Presented currency address (empty = native)")
		x2y2URL     = flag.String("x2y2-api", "https://api.x2y2.org", "X2Y2 signing API base URL")
		custodyURL  = flag.String("custody-api", "", "ZeroExV4 custody API base URL")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("fill-router %s\n", version)
		os.Exit(0)
	}

	if *configPath == "" {
		flag.Usage()
		log.Fatal("Missing required flag: -config")
	}

	reg, err := registry.Load(*configPath)
	if err != nil {
		log.Fatalf("Load registry: %v", err)
	}

	deps := router.Dependencies{
		Planner: swap.NewPlanner(reg, nil),
	}
	if reg.X2Y2APIKey != "" {
		deps.X2Y2 = offchain.NewX2Y2Client(*x2y2URL, reg.X2Y2APIKey, reg.HTTPTimeout)
	}
	if *custodyURL != "" {
		deps.Custody = offchain.NewCustodyClient(*custodyURL, reg.CustodyAPIKey, reg.HTTPTimeout)
	}
	fills := router.New(reg, deps)

	switch {
	case *httpPort != 0:
		serve(reg.ChainID, *httpPort, fills)
	case *detailsPath != "":
		if *taker == "" || !common.IsHexAddress(*taker) {
			log.Fatal("One-shot builds require a valid -taker address")
		}
		buildOnce(fills, *detailsPath, *taker, *currency)
	default:
		flag.Usage()
		log.Fatal("Nothing to do: pass -port to serve or -details to build once")
	}
}

func serve(chainID uint64, port int, fills *router.Router) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutdown signal received")
		cancel()
	}()

	server := api.NewServer(api.Config{HTTPPort: port, ChainID: chainID}, fills)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("API server: %v", err)
		}
	}()
	<-ctx.Done()
}

// buildFile is the one-shot input format: the API's listing request body.
type buildFile struct {
	Details    json.RawMessage `json:"details"`
	GlobalFees json.RawMessage `json:"global_fees,omitempty"`
	Partial    bool            `json:"partial,omitempty"`
	SkipErrors bool            `json:"skip_errors,omitempty"`
}

func buildOnce(fills *router.Router, path, taker, currency string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Read details file: %v", err)
	}

	var bf buildFile
	if err := json.Unmarshal(data, &bf); err != nil {
		log.Fatalf("Parse details file: %v", err)
	}

	// Reuse the API request layout so files and HTTP bodies stay
	// interchangeable.
	body, err := json.Marshal(map[string]json.RawMessage{
		"details":     bf.Details,
		"global_fees": orNull(bf.GlobalFees),
	})
	if err != nil {
		log.Fatalf("Build request: %v", err)
	}

	fill, err := api.BuildListings(context.Background(), fills, body, common.HexToAddress(taker), parseCurrency(currency), bf.Partial, bf.SkipErrors)
	if err != nil {
		log.Fatalf("Build fill: %v", err)
	}

	out, err := json.MarshalIndent(fill, "", "  ")
	if err != nil {
		log.Fatalf("Encode result: %v", err)
	}
	fmt.Println(string(out))
}

func parseCurrency(s string) common.Address {
	if s == "" {
		return common.Address{}
	}
	return common.HexToAddress(s)
}

func orNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
