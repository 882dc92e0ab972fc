// Copyright (c) 2025 Lux Partners Limited
// SPDX-License-Identifier: MIT

// Package registry holds the per-chain contract address book and API-key
// configuration the fill router depends on. Nothing in the router reads the
// environment directly; everything arrives through a Registry built here.
package registry

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/luxfi/aggregator/order"
)

// Registry is the resolved configuration for one chain.
type Registry struct {
	ChainID uint64

	// Aggregator is the router contract exposing the execute entry point.
	Aggregator common.Address
	// SwapModule performs wrap/unwrap/exact-output swaps.
	SwapModule common.Address
	// PermitModule consumes signed batch-allowance permits.
	PermitModule common.Address
	// WrappedNative is the canonical wrapped native token (WETH on mainnet).
	WrappedNative common.Address

	// Modules maps each protocol kind to its adapter module contract.
	Modules map[order.Kind]common.Address
	// Exchanges maps each protocol kind to the exchange contract itself,
	// used for direct (non-aggregated) fills.
	Exchanges map[order.Kind]common.Address

	// X2Y2APIKey authenticates against the X2Y2 order signing API.
	X2Y2APIKey string
	// CustodyAPIKey authenticates against the ZeroExV4 cb-order custody API.
	CustodyAPIKey string

	// HTTPTimeout bounds off-chain API calls.
	HTTPTimeout time.Duration
}

// Module returns the adapter module address for a kind.
func (r *Registry) Module(k order.Kind) (common.Address, error) {
	addr, ok := r.Modules[k]
	if !ok || addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("no module configured for kind %s", k)
	}
	return addr, nil
}

// Exchange returns the exchange contract address for a kind.
func (r *Registry) Exchange(k order.Kind) (common.Address, error) {
	addr, ok := r.Exchanges[k]
	if !ok || addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("no exchange configured for kind %s", k)
	}
	return addr, nil
}

// Validate checks the registry is usable for aggregated fills.
func (r *Registry) Validate() error {
	if r.ChainID == 0 {
		return fmt.Errorf("chain id is required")
	}
	if r.Aggregator == (common.Address{}) {
		return fmt.Errorf("aggregator address is required")
	}
	if len(r.Modules) == 0 {
		return fmt.Errorf("at least one protocol module is required")
	}
	return nil
}

// yamlConfig is the on-disk layout. Addresses are hex strings; API keys may
// reference environment variables via ${VAR} expansion.
type yamlConfig struct {
	ChainID       uint64            `yaml:"chain_id"`
	Aggregator    string            `yaml:"aggregator"`
	SwapModule    string            `yaml:"swap_module"`
	PermitModule  string            `yaml:"permit_module"`
	WrappedNative string            `yaml:"wrapped_native"`
	Modules       map[string]string `yaml:"modules"`
	Exchanges     map[string]string `yaml:"exchanges"`
	X2Y2APIKey    string            `yaml:"x2y2_api_key"`
	CustodyAPIKey string            `yaml:"custody_api_key"`
	HTTPTimeout   string            `yaml:"http_timeout"`
}

// Load reads a registry from a YAML file, expanding environment variables
// first, and validates it. Mainnet exchange addresses are filled in for any
// protocol the file leaves unset.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var yc yamlConfig
	if err := yaml.Unmarshal([]byte(expanded), &yc); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	reg := &Registry{
		ChainID:       yc.ChainID,
		Modules:       make(map[order.Kind]common.Address),
		Exchanges:     make(map[order.Kind]common.Address),
		X2Y2APIKey:    yc.X2Y2APIKey,
		CustodyAPIKey: yc.CustodyAPIKey,
		HTTPTimeout:   30 * time.Second,
	}

	if yc.HTTPTimeout != "" {
		d, err := time.ParseDuration(yc.HTTPTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid http_timeout: %w", err)
		}
		reg.HTTPTimeout = d
	}

	if reg.Aggregator, err = parseAddr("aggregator", yc.Aggregator); err != nil {
		return nil, err
	}
	if reg.SwapModule, err = parseAddr("swap_module", yc.SwapModule); err != nil {
		return nil, err
	}
	if reg.PermitModule, err = parseAddr("permit_module", yc.PermitModule); err != nil {
		return nil, err
	}
	if reg.WrappedNative, err = parseAddr("wrapped_native", yc.WrappedNative); err != nil {
		return nil, err
	}

	for name, addr := range yc.Modules {
		kind := order.ParseKind(name)
		if kind == order.KindUnknown {
			return nil, fmt.Errorf("unknown protocol kind in modules: %q", name)
		}
		a, err := parseAddr("modules."+name, addr)
		if err != nil {
			return nil, err
		}
		reg.Modules[kind] = a
	}

	for name, addr := range yc.Exchanges {
		kind := order.ParseKind(name)
		if kind == order.KindUnknown {
			return nil, fmt.Errorf("unknown protocol kind in exchanges: %q", name)
		}
		a, err := parseAddr("exchanges."+name, addr)
		if err != nil {
			return nil, err
		}
		reg.Exchanges[kind] = a
	}

	applyMainnetDefaults(reg)

	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

func parseAddr(field, s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address for %s: %q", field, s)
	}
	return common.HexToAddress(s), nil
}

// Mainnet exchange contracts. Module addresses are deployment-specific and
// always come from the config file.
var mainnetExchanges = map[order.Kind]string{
	order.KindSeaport:         "0x00000000000000ADc04C56Bf30aC9d3c0aAF14dC",
	order.KindSeaportPartial:  "0x00000000000000ADc04C56Bf30aC9d3c0aAF14dC",
	order.KindLooksRare:       "0x59728544B08AB483533076417FbBB2fD0B17CE3a",
	order.KindX2Y2:            "0x74312363e45DCaBA76c59ec49a7Aa8A65a67EeD3",
	order.KindZeroExV4ERC721:  "0xDef1C0ded9bec7F1a1670819833240f027b25EfF",
	order.KindZeroExV4ERC1155: "0xDef1C0ded9bec7F1a1670819833240f027b25EfF",
	order.KindZora:            "0xE468cE99444174Bd3bBBEd09209577d25D1ad673",
	order.KindRarible:         "0x9757F2d2b135150BBeb65308D4a91804107cd8D6",
	order.KindSudoswap:        "0x2B2e8cDA09bBA9660dCA5cB6233787738Ad68329",
	order.KindFoundation:      "0xcDA72070E455bb31C7690a170224Ce43623d0B6f",
	order.KindCryptoPunks:     "0xb47e3cd837dDF8e4c57F05d70Ab865de6e193BBB",
	order.KindElement:         "0x20F780A973856B93f63670377900C1d2a50a77c4",
	order.KindBlur:            "0x000000000000Ad05Ccc4F10045630fb830B95127",
}

const mainnetWETH = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"

func applyMainnetDefaults(reg *Registry) {
	if reg.ChainID != 1 {
		return
	}
	for kind, addr := range mainnetExchanges {
		if _, ok := reg.Exchanges[kind]; !ok {
			reg.Exchanges[kind] = common.HexToAddress(addr)
		}
	}
	if reg.WrappedNative == (common.Address{}) {
		reg.WrappedNative = common.HexToAddress(mainnetWETH)
	}
}
